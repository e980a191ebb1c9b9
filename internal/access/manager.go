package access

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/models"
)

type ManagerConfig struct {
	Directory     Directory
	Subscriptions SubscriptionSource
	Watcher       MembershipWatcher
	Notifier      Notifier
	LoadTimeout   time.Duration
	SignoutDelay  time.Duration
	Logger        zerolog.Logger
}

// Manager owns one access controller per signed-in identity. Controllers are
// created on first authenticated touch and torn down on logout; the manager
// also tracks the sign-out instant so tokens issued before a forced
// revocation can be rejected.
type Manager struct {
	cfg ManagerConfig

	mu          sync.Mutex
	controllers map[string]*Controller
	signedOutAt map[string]time.Time
}

func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:         cfg,
		controllers: make(map[string]*Controller),
		signedOutAt: make(map[string]time.Time),
	}
}

// Controller returns the controller for user, creating and loading it on the
// first call of a session. A revoked controller still awaiting its delayed
// teardown never serves a fresh sign-in; it is replaced.
func (m *Manager) Controller(ctx context.Context, user models.User) *Controller {
	m.mu.Lock()
	if existing, ok := m.controllers[user.ID]; ok {
		if !existing.isRevoked() {
			m.mu.Unlock()
			return existing
		}
		delete(m.controllers, user.ID)
		existing.Close()
	}

	var ctrl *Controller
	ctrl = NewController(Config{
		User:          user,
		Directory:     m.cfg.Directory,
		Subscriptions: m.cfg.Subscriptions,
		Watcher:       m.cfg.Watcher,
		Notifier:      m.cfg.Notifier,
		Logout: func(userID string) {
			m.expireSession(userID, ctrl)
		},
		SessionRevoked: m.recordSignout,
		LoadTimeout:    m.cfg.LoadTimeout,
		SignoutDelay:   m.cfg.SignoutDelay,
		Logger:         m.cfg.Logger,
	})
	m.controllers[user.ID] = ctrl
	m.mu.Unlock()

	ctrl.LoadTeamData(ctx)
	return ctrl
}

// Logout tears down the user's controller and records the sign-out instant.
// It serves both voluntary logout and the forced-revocation path.
func (m *Manager) Logout(userID string) {
	m.mu.Lock()
	ctrl := m.controllers[userID]
	delete(m.controllers, userID)
	m.signedOutAt[userID] = time.Now()
	m.mu.Unlock()

	if ctrl != nil {
		ctrl.Close()
	}
}

// recordSignout stamps the revocation instant the moment access loss is
// detected, so tokens minted before it fail validation without waiting for
// the delayed teardown.
func (m *Manager) recordSignout(userID string, at time.Time) {
	m.mu.Lock()
	m.signedOutAt[userID] = at
	m.mu.Unlock()
}

// expireSession finishes a forced revocation: the sign-out instant was
// already recorded when the notice fired, so here we only tear the
// controller down, and only if the user has not signed in again since.
func (m *Manager) expireSession(userID string, ctrl *Controller) {
	m.mu.Lock()
	if m.controllers[userID] != ctrl {
		m.mu.Unlock()
		return
	}
	delete(m.controllers, userID)
	m.mu.Unlock()

	ctrl.Close()
}

// SessionValidAt reports whether a token issued at issuedAt is still
// acceptable for userID. Tokens issued before the last sign-out are not.
func (m *Manager) SessionValidAt(userID string, issuedAt time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	signedOut, ok := m.signedOutAt[userID]
	if !ok {
		return true
	}
	return issuedAt.After(signedOut)
}
