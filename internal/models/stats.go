package models

import "time"

// TeamStats is a derived aggregate recomputed on demand. It is never written
// back to the store.
type TeamStats struct {
	TotalMembers       int        `json:"total_members" db:"total_members"`
	AdminCount         int        `json:"admin_count" db:"admin_count"`
	TeammateCount      int        `json:"teammate_count" db:"teammate_count"`
	PendingInvitations int        `json:"pending_invitations" db:"pending_invitations"`
	LastJoinedAt       *time.Time `json:"last_joined_at,omitempty" db:"last_joined_at"`
}
