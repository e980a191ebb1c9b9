package access

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/receiptly/team-api/internal/models"
)

func newTestManager(t *testing.T) (*Manager, *fakeDirectory) {
	t.Helper()
	dir := &fakeDirectory{}
	return NewManager(ManagerConfig{
		Directory:     dir,
		Subscriptions: &fakeSubscriptions{ents: proEntitlements()},
		Watcher:       newFakeWatcher(),
		Notifier:      &fakeNotifier{},
		LoadTimeout:   time.Second,
		SignoutDelay:  5 * time.Millisecond,
		Logger:        zerolog.Nop(),
	}), dir
}

func TestManagerControllerReuse(t *testing.T) {
	manager, _ := newTestManager(t)
	user := models.User{ID: "user-1"}

	first := manager.Controller(context.Background(), user)
	second := manager.Controller(context.Background(), user)
	require.Same(t, first, second)

	other := manager.Controller(context.Background(), models.User{ID: "user-2"})
	require.NotSame(t, first, other)
}

func TestManagerLogout(t *testing.T) {
	manager, _ := newTestManager(t)
	user := models.User{ID: "user-1"}

	before := manager.Controller(context.Background(), user)
	manager.Logout(user.ID)

	// A fresh sign-in builds a new controller.
	after := manager.Controller(context.Background(), user)
	require.NotSame(t, before, after)
}

func TestReLoginDuringSignoutDelay(t *testing.T) {
	dir := &fakeDirectory{
		membership: &models.TeamMember{
			ID:              "m-1",
			AccountHolderID: "holder-1",
			UserID:          "user-1",
			Role:            models.RoleTeammate,
			Status:          models.MemberStatusActive,
		},
	}
	watcher := newFakeWatcher()
	manager := NewManager(ManagerConfig{
		Directory:     dir,
		Subscriptions: &fakeSubscriptions{ents: proEntitlements()},
		Watcher:       watcher,
		Notifier:      &fakeNotifier{},
		LoadTimeout:   time.Second,
		SignoutDelay:  100 * time.Millisecond,
		Logger:        zerolog.Nop(),
	})
	user := models.User{ID: "user-1"}

	revoked := manager.Controller(context.Background(), user)
	watcher.emit("m-1", MembershipEvent{Member: nil})

	// The revocation instant lands with the notice, ahead of the delayed
	// teardown, so stale tokens die immediately.
	require.Eventually(t, func() bool {
		return !manager.SessionValidAt("user-1", time.Now().Add(-time.Hour))
	}, time.Second, time.Millisecond)

	// Signing back in during the delay yields a fresh controller...
	fresh := manager.Controller(context.Background(), user)
	require.NotSame(t, revoked, fresh)
	issuedAt := time.Now()

	// ...which the delayed teardown of the old session must not touch.
	time.Sleep(300 * time.Millisecond)
	require.Same(t, fresh, manager.Controller(context.Background(), user))
	require.True(t, manager.SessionValidAt("user-1", issuedAt))
}

func TestSessionValidAt(t *testing.T) {
	manager, _ := newTestManager(t)

	t.Run("unknown users are valid", func(t *testing.T) {
		require.True(t, manager.SessionValidAt("never-seen", time.Now().Add(-time.Hour)))
	})

	t.Run("tokens issued before sign-out are rejected", func(t *testing.T) {
		issued := time.Now()
		time.Sleep(time.Millisecond)
		manager.Logout("user-1")

		require.False(t, manager.SessionValidAt("user-1", issued))
		require.True(t, manager.SessionValidAt("user-1", time.Now().Add(time.Millisecond)))
	})
}
