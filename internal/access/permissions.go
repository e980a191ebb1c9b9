package access

import "github.com/receiptly/team-api/internal/models"

// PermissionInput is everything the permission rules depend on. The rules are
// pure functions over this snapshot so they can be tested independently of
// the controller plumbing.
type PermissionInput struct {
	SubscriptionLoaded bool
	TeamManagement     bool
	IsTeamMember       bool
	Role               models.MemberRole
}

// CanManageTeam reports whether the caller may view and mutate team
// membership. Account holders need the teamManagement feature on their plan;
// admin members carry management authority from their role alone,
// independent of the account holder's flag. Nothing is allowed while the
// subscription state is still unresolved.
func CanManageTeam(in PermissionInput) bool {
	if !in.SubscriptionLoaded {
		return false
	}
	if in.IsTeamMember {
		return in.Role == models.RoleAdmin
	}
	return in.TeamManagement
}

// CanInviteMembers follows the same rule as CanManageTeam.
func CanInviteMembers(in PermissionInput) bool {
	return CanManageTeam(in)
}

// ReachedMemberLimit applies the quota rule. Pending unexpired invitations
// count against the limit so a team cannot invite past capacity while offers
// are outstanding.
func ReachedMemberLimit(maxMembers, activeMembers, pendingInvitations int) bool {
	if maxMembers == models.MembersUnlimited {
		return false
	}
	return activeMembers+pendingInvitations >= maxMembers
}
