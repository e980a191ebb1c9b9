package models

import "time"

type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusRevoked  InvitationStatus = "revoked"
	// InvitationStatusExpired is derived from the expiry timestamp and is
	// never written back to the store.
	InvitationStatusExpired InvitationStatus = "expired"
)

// TeamInvitation is a pending or resolved offer of membership. The raw token
// is handed out once at creation; only its hash is persisted.
type TeamInvitation struct {
	ID                string           `json:"id" db:"id"`
	AccountHolderID   string           `json:"account_holder_id" db:"account_holder_id"`
	AccountHolderName string           `json:"account_holder_name" db:"account_holder_name"`
	InviteEmail       string           `json:"invite_email" db:"invite_email"`
	Role              MemberRole       `json:"role" db:"role"`
	TokenHash         string           `json:"-" db:"token_hash"`
	Status            InvitationStatus `json:"status" db:"status"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	ExpiresAt         time.Time        `json:"expires_at" db:"expires_at"`
}

func (i TeamInvitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsConsumable reports whether the invitation can still be accepted.
func (i TeamInvitation) IsConsumable(now time.Time) bool {
	return i.Status == InvitationStatusPending && !i.IsExpired(now)
}

// EffectiveStatus folds expiry into the persisted status.
func (i TeamInvitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationStatusPending && i.IsExpired(now) {
		return InvitationStatusExpired
	}
	return i.Status
}
