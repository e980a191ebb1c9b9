package models

import (
	"encoding/json"
	"time"
)

type MemberRole string

const (
	// RoleAdmin grants account-holder-equivalent team management rights.
	RoleAdmin MemberRole = "admin"
	// RoleTeammate members only manage their own receipts and reports.
	RoleTeammate MemberRole = "teammate"
)

func (r MemberRole) Valid() bool {
	return r == RoleAdmin || r == RoleTeammate
}

type MemberStatus string

const (
	MemberStatusActive  MemberStatus = "active"
	MemberStatusRevoked MemberStatus = "revoked"
)

// TeamMember links a user to the account holder whose subscription they
// operate under. At most one active membership exists per user.
type TeamMember struct {
	ID                 string          `json:"id" db:"id"`
	AccountHolderID    string          `json:"account_holder_id" db:"account_holder_id"`
	AccountHolderEmail string          `json:"account_holder_email" db:"account_holder_email"`
	BusinessID         *string         `json:"business_id,omitempty" db:"business_id"`
	BusinessName       *string         `json:"business_name,omitempty" db:"business_name"`
	UserID             string          `json:"user_id" db:"user_id"`
	Email              string          `json:"email" db:"email"`
	DisplayName        string          `json:"display_name" db:"display_name"`
	Role               MemberRole      `json:"role" db:"role"`
	Status             MemberStatus    `json:"status" db:"status"`
	JoinedAt           time.Time       `json:"joined_at" db:"joined_at"`
	LastActiveAt       time.Time       `json:"last_active_at" db:"last_active_at"`
	Permissions        json.RawMessage `json:"permissions,omitempty" db:"permissions"`
}

// IsActive reports whether the membership still grants access. Any status
// other than active is treated as revoked.
func (m TeamMember) IsActive() bool {
	return m.Status == MemberStatusActive
}
