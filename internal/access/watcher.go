package access

import (
	"context"
	"errors"

	"github.com/receiptly/team-api/internal/models"
)

// ErrWatchUnauthorized classifies watch errors that mean the subscriber lost
// read access to the membership document. A member who can no longer read
// their own membership is, functionally, revoked.
var ErrWatchUnauthorized = errors.New("membership watch unauthorized")

// MembershipEvent is one change notification for a watched membership.
// Member is the current snapshot, nil when the document no longer exists.
// Err is set instead of a snapshot when the subscription itself failed.
type MembershipEvent struct {
	Member *models.TeamMember
	Err    error
}

// MembershipWatcher delivers change notifications for a single membership
// document. The returned cancel func must be called on every path that stops
// caring about the id; after cancel the channel is closed. Delivery is
// at-least-once.
type MembershipWatcher interface {
	Watch(ctx context.Context, memberID string) (<-chan MembershipEvent, func(), error)
}
