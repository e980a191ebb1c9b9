package models

import (
	"encoding/json"
	"time"
)

type NotificationSeverity string

const (
	NotificationSeverityInfo    NotificationSeverity = "info"
	NotificationSeverityWarning NotificationSeverity = "warning"
	NotificationSeverityError   NotificationSeverity = "error"
)

type NotificationEvent string

const (
	NotificationEventInvitationSent    NotificationEvent = "invitation_sent"
	NotificationEventInvitationRevoked NotificationEvent = "invitation_revoked"
	NotificationEventMemberJoined      NotificationEvent = "member_joined"
	NotificationEventMemberRemoved     NotificationEvent = "member_removed"
	NotificationEventAccessRevoked     NotificationEvent = "access_revoked"
)

type Notification struct {
	ID        string               `json:"id" db:"id"`
	UserID    *string              `json:"user_id,omitempty" db:"user_id"`
	EventType NotificationEvent    `json:"event_type" db:"event_type"`
	Severity  NotificationSeverity `json:"severity" db:"severity"`
	Title     string               `json:"title" db:"title"`
	Message   string               `json:"message" db:"message"`
	Metadata  json.RawMessage      `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
	ReadAt    *time.Time           `json:"read_at,omitempty" db:"read_at"`
}
