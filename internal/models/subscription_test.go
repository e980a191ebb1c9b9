package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscriptionEntitlements(t *testing.T) {
	t.Parallel()

	t.Run("free tier has no team management", func(t *testing.T) {
		ents := Subscription{Tier: TierFree, IsActive: true}.Entitlements()
		require.False(t, ents.TeamManagement)
		require.Zero(t, ents.MaxTeamMembers)
	})

	t.Run("pro tier caps members at five", func(t *testing.T) {
		ents := Subscription{Tier: TierPro, IsActive: true}.Entitlements()
		require.True(t, ents.TeamManagement)
		require.Equal(t, 5, ents.MaxTeamMembers)
	})

	t.Run("business tier is unlimited", func(t *testing.T) {
		ents := Subscription{Tier: TierBusiness, IsActive: true}.Entitlements()
		require.True(t, ents.TeamManagement)
		require.Equal(t, MembersUnlimited, ents.MaxTeamMembers)
	})

	t.Run("lapsed subscription keeps tier but loses management", func(t *testing.T) {
		ents := Subscription{Tier: TierBusiness, IsActive: false}.Entitlements()
		require.Equal(t, TierBusiness, ents.Tier)
		require.False(t, ents.Active)
		require.False(t, ents.TeamManagement)
	})

	t.Run("missing subscription defaults to free", func(t *testing.T) {
		sub := DefaultSubscription("acct-1")
		require.Equal(t, TierFree, sub.Tier)
		require.True(t, sub.IsActive)
		require.False(t, sub.Entitlements().TeamManagement)
	})
}
