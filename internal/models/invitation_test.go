package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInvitationConsumability(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("pending and unexpired is consumable", func(t *testing.T) {
		inv := TeamInvitation{Status: InvitationStatusPending, ExpiresAt: now.Add(time.Hour)}
		require.True(t, inv.IsConsumable(now))
	})

	t.Run("expired invitation is not consumable", func(t *testing.T) {
		inv := TeamInvitation{Status: InvitationStatusPending, ExpiresAt: now.Add(-time.Minute)}
		require.False(t, inv.IsConsumable(now))
	})

	t.Run("revoked invitation is not consumable even before expiry", func(t *testing.T) {
		inv := TeamInvitation{Status: InvitationStatusRevoked, ExpiresAt: now.Add(time.Hour)}
		require.False(t, inv.IsConsumable(now))
	})

	t.Run("accepted invitation is not consumable", func(t *testing.T) {
		inv := TeamInvitation{Status: InvitationStatusAccepted, ExpiresAt: now.Add(time.Hour)}
		require.False(t, inv.IsConsumable(now))
	})
}

func TestInvitationEffectiveStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("pending past expiry reads as expired", func(t *testing.T) {
		inv := TeamInvitation{Status: InvitationStatusPending, ExpiresAt: now.Add(-time.Second)}
		require.Equal(t, InvitationStatusExpired, inv.EffectiveStatus(now))
	})

	t.Run("revoked wins over expiry", func(t *testing.T) {
		inv := TeamInvitation{Status: InvitationStatusRevoked, ExpiresAt: now.Add(-time.Hour)}
		require.Equal(t, InvitationStatusRevoked, inv.EffectiveStatus(now))
	})

	t.Run("pending before expiry stays pending", func(t *testing.T) {
		inv := TeamInvitation{Status: InvitationStatusPending, ExpiresAt: now.Add(time.Hour)}
		require.Equal(t, InvitationStatusPending, inv.EffectiveStatus(now))
	})
}
