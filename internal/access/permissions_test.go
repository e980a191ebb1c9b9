package access

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/receiptly/team-api/internal/models"
)

func TestCanManageTeam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   PermissionInput
		want bool
	}{
		{
			name: "account holder with team management",
			in:   PermissionInput{SubscriptionLoaded: true, TeamManagement: true},
			want: true,
		},
		{
			name: "account holder without team management",
			in:   PermissionInput{SubscriptionLoaded: true, TeamManagement: false},
			want: false,
		},
		{
			name: "nothing allowed before subscription resolves",
			in:   PermissionInput{SubscriptionLoaded: false, TeamManagement: true},
			want: false,
		},
		{
			name: "admin member manages regardless of holder flag",
			in:   PermissionInput{SubscriptionLoaded: true, TeamManagement: false, IsTeamMember: true, Role: models.RoleAdmin},
			want: true,
		},
		{
			name: "teammate never manages",
			in:   PermissionInput{SubscriptionLoaded: true, TeamManagement: true, IsTeamMember: true, Role: models.RoleTeammate},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CanManageTeam(tt.in))
			// Invite follows the same rule.
			require.Equal(t, tt.want, CanInviteMembers(tt.in))
		})
	}
}

func TestReachedMemberLimit(t *testing.T) {
	t.Parallel()

	t.Run("pending invitations count against the cap", func(t *testing.T) {
		require.False(t, ReachedMemberLimit(5, 2, 2))
		require.True(t, ReachedMemberLimit(5, 3, 2))
		require.True(t, ReachedMemberLimit(5, 5, 0))
	})

	t.Run("unlimited plans never hit the cap", func(t *testing.T) {
		require.False(t, ReachedMemberLimit(models.MembersUnlimited, 10000, 500))
	})

	t.Run("zero cap blocks the first invite", func(t *testing.T) {
		require.True(t, ReachedMemberLimit(0, 0, 0))
	})
}
