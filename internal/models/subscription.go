package models

import "time"

type SubscriptionTier string

const (
	TierFree     SubscriptionTier = "free"
	TierPro      SubscriptionTier = "pro"
	TierBusiness SubscriptionTier = "business"
)

// MembersUnlimited marks a plan with no member cap.
const MembersUnlimited = -1

// Subscription is the billing state of one account holder. It is written by
// the payment pipeline, which is outside this service; we only read it.
type Subscription struct {
	AccountHolderID string           `json:"account_holder_id" db:"account_holder_id"`
	Tier            SubscriptionTier `json:"tier" db:"tier"`
	IsActive        bool             `json:"is_active" db:"is_active"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// Entitlements are the limits and feature flags derived from a subscription.
type Entitlements struct {
	Tier           SubscriptionTier `json:"tier"`
	Active         bool             `json:"active"`
	MaxTeamMembers int              `json:"max_team_members"`
	TeamManagement bool             `json:"team_management"`
}

// Entitlements resolves the plan catalog for this subscription. A lapsed
// subscription keeps its tier but loses team management.
func (s Subscription) Entitlements() Entitlements {
	ent := Entitlements{Tier: s.Tier, Active: s.IsActive}
	if !s.IsActive {
		return ent
	}
	switch s.Tier {
	case TierPro:
		ent.MaxTeamMembers = 5
		ent.TeamManagement = true
	case TierBusiness:
		ent.MaxTeamMembers = MembersUnlimited
		ent.TeamManagement = true
	}
	return ent
}

// DefaultSubscription is the state assumed for an account holder with no
// subscription row: on the free tier, active, without team management.
func DefaultSubscription(accountHolderID string) Subscription {
	return Subscription{
		AccountHolderID: accountHolderID,
		Tier:            TierFree,
		IsActive:        true,
	}
}
