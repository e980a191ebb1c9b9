package directory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/receiptly/team-api/internal/models"
	"github.com/receiptly/team-api/internal/repository"
)

type fakeMemberRepo struct {
	members map[string]models.TeamMember
	stats   models.TeamStats
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{members: make(map[string]models.TeamMember)}
}

func (f *fakeMemberRepo) GetMemberByID(_ context.Context, id string) (models.TeamMember, error) {
	member, ok := f.members[id]
	if !ok {
		return models.TeamMember{}, sql.ErrNoRows
	}
	return member, nil
}

func (f *fakeMemberRepo) GetActiveMemberByUserID(_ context.Context, userID string) (models.TeamMember, error) {
	for _, member := range f.members {
		if member.UserID == userID && member.IsActive() {
			return member, nil
		}
	}
	return models.TeamMember{}, sql.ErrNoRows
}

func (f *fakeMemberRepo) ListActiveMembers(_ context.Context, accountHolderID string) ([]models.TeamMember, error) {
	var out []models.TeamMember
	for _, member := range f.members {
		if member.AccountHolderID == accountHolderID && member.IsActive() {
			out = append(out, member)
		}
	}
	return out, nil
}

func (f *fakeMemberRepo) TouchLastActive(_ context.Context, memberID string) error {
	member, ok := f.members[memberID]
	if !ok {
		return sql.ErrNoRows
	}
	member.LastActiveAt = time.Now()
	f.members[memberID] = member
	return nil
}

func (f *fakeMemberRepo) DeleteMember(_ context.Context, memberID string) error {
	if _, ok := f.members[memberID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.members, memberID)
	return nil
}

func (f *fakeMemberRepo) GetMemberStats(_ context.Context, _ string) (models.TeamStats, error) {
	return f.stats, nil
}

type fakeInvitationRepo struct {
	invitations map[string]models.TeamInvitation
	members     *fakeMemberRepo
}

func newFakeInvitationRepo(members *fakeMemberRepo) *fakeInvitationRepo {
	return &fakeInvitationRepo{
		invitations: make(map[string]models.TeamInvitation),
		members:     members,
	}
}

func (f *fakeInvitationRepo) CreateInvitation(_ context.Context, invitation models.TeamInvitation) (models.TeamInvitation, error) {
	invitation.CreatedAt = time.Now().UTC()
	f.invitations[invitation.ID] = invitation
	return invitation, nil
}

func (f *fakeInvitationRepo) GetInvitationByID(_ context.Context, id string) (models.TeamInvitation, error) {
	invitation, ok := f.invitations[id]
	if !ok {
		return models.TeamInvitation{}, sql.ErrNoRows
	}
	return invitation, nil
}

func (f *fakeInvitationRepo) GetInvitationByTokenHash(_ context.Context, tokenHash string) (models.TeamInvitation, error) {
	for _, invitation := range f.invitations {
		if invitation.TokenHash == tokenHash {
			return invitation, nil
		}
	}
	return models.TeamInvitation{}, sql.ErrNoRows
}

func (f *fakeInvitationRepo) ListInvitationsByAccount(_ context.Context, accountHolderID string) ([]models.TeamInvitation, error) {
	var out []models.TeamInvitation
	for _, invitation := range f.invitations {
		if invitation.AccountHolderID == accountHolderID {
			out = append(out, invitation)
		}
	}
	return out, nil
}

func (f *fakeInvitationRepo) HasPendingInvitation(_ context.Context, accountHolderID, email string, now time.Time) (bool, error) {
	for _, invitation := range f.invitations {
		if invitation.AccountHolderID == accountHolderID && invitation.InviteEmail == email && invitation.IsConsumable(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeInvitationRepo) CountPendingInvitations(_ context.Context, accountHolderID string, now time.Time) (int, error) {
	count := 0
	for _, invitation := range f.invitations {
		if invitation.AccountHolderID == accountHolderID && invitation.IsConsumable(now) {
			count++
		}
	}
	return count, nil
}

func (f *fakeInvitationRepo) AcceptInvitation(_ context.Context, invitationID string, member models.TeamMember) (models.TeamMember, error) {
	invitation, ok := f.invitations[invitationID]
	if !ok || !invitation.IsConsumable(time.Now()) {
		return models.TeamMember{}, sql.ErrNoRows
	}
	invitation.Status = models.InvitationStatusAccepted
	f.invitations[invitationID] = invitation

	member.JoinedAt = time.Now().UTC()
	member.LastActiveAt = member.JoinedAt
	f.members.members[member.ID] = member
	return member, nil
}

func (f *fakeInvitationRepo) MarkRevoked(_ context.Context, invitationID string) error {
	invitation, ok := f.invitations[invitationID]
	if !ok {
		return sql.ErrNoRows
	}
	if invitation.Status == models.InvitationStatusPending {
		invitation.Status = models.InvitationStatusRevoked
		f.invitations[invitationID] = invitation
	}
	return nil
}

type fakeUserRepo struct {
	users map[string]models.User
}

func newFakeUserRepo(users ...models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]models.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (f *fakeUserRepo) CreateUser(_ context.Context, email, _, displayName string) (models.User, error) {
	user := models.User{ID: email, Email: email, DisplayName: displayName, IsActive: true}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) AuthenticateUser(_ context.Context, _, _ string) (models.User, error) {
	return models.User{}, sql.ErrNoRows
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, userID string) (models.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

var _ repository.MemberRepository = (*fakeMemberRepo)(nil)
var _ repository.InvitationRepository = (*fakeInvitationRepo)(nil)
var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newTestService(t *testing.T) (*Service, *fakeMemberRepo, *fakeInvitationRepo, *fakeUserRepo) {
	t.Helper()
	members := newFakeMemberRepo()
	invitations := newFakeInvitationRepo(members)
	users := newFakeUserRepo(models.User{ID: "holder-1", Email: "owner@example.com", DisplayName: "Owner", IsActive: true})
	svc := NewService(members, invitations, users, time.Hour, zerolog.Nop())
	return svc, members, invitations, users
}

func TestCreateInvitation(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending invitation and returns the raw token once", func(t *testing.T) {
		svc, _, invitations, _ := newTestService(t)

		invitation, token, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{
			InviteEmail:       "New.Hire@Example.com",
			Role:              models.RoleTeammate,
			AccountHolderName: "Owner",
		})
		require.NoError(t, err)
		require.NotEmpty(t, token)
		require.Equal(t, "new.hire@example.com", invitation.InviteEmail)
		require.Equal(t, models.InvitationStatusPending, invitation.Status)
		require.NotEqual(t, token, invitation.TokenHash)

		stored := invitations.invitations[invitation.ID]
		require.Equal(t, hashInvitationToken(token), stored.TokenHash)
	})

	t.Run("rejects malformed email", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		_, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: "not-an-email"})
		require.ErrorIs(t, err, ErrInvalidEmail)
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		_, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{
			InviteEmail: "a@example.com",
			Role:        models.MemberRole("owner"),
		})
		require.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("defaults the role to teammate", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		invitation, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: "a@example.com"})
		require.NoError(t, err)
		require.Equal(t, models.RoleTeammate, invitation.Role)
	})

	t.Run("rejects a second pending invitation for the same address", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		_, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: "a@example.com"})
		require.NoError(t, err)

		_, _, err = svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: "A@example.com"})
		require.ErrorIs(t, err, ErrDuplicateInvitation)
	})

	t.Run("allows re-inviting after the previous invitation expired", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		_, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: "a@example.com"})
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, _, err = svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: "a@example.com"})
		require.NoError(t, err)
	})
}

func TestGetInvitationByToken(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves a raw token", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		created, token, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: "a@example.com"})
		require.NoError(t, err)

		found, err := svc.GetInvitationByToken(ctx, token)
		require.NoError(t, err)
		require.Equal(t, created.ID, found.ID)
	})

	t.Run("unknown or empty tokens are not found", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		_, err := svc.GetInvitationByToken(ctx, "bogus")
		require.ErrorIs(t, err, ErrInvitationNotFound)

		_, err = svc.GetInvitationByToken(ctx, "  ")
		require.ErrorIs(t, err, ErrInvitationNotFound)
	})
}

func TestAcceptInvitation(t *testing.T) {
	ctx := context.Background()
	joiner := models.User{ID: "user-2", Email: "new.hire@example.com", DisplayName: "New Hire"}

	t.Run("creates the membership and consumes the invitation", func(t *testing.T) {
		svc, members, invitations, _ := newTestService(t)

		invitation, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{
			InviteEmail: joiner.Email,
			Role:        models.RoleAdmin,
		})
		require.NoError(t, err)

		member, err := svc.AcceptInvitation(ctx, invitation.ID, joiner)
		require.NoError(t, err)
		require.Equal(t, "holder-1", member.AccountHolderID)
		require.Equal(t, "owner@example.com", member.AccountHolderEmail)
		require.Equal(t, joiner.ID, member.UserID)
		require.Equal(t, models.RoleAdmin, member.Role)
		require.True(t, member.IsActive())

		require.Equal(t, models.InvitationStatusAccepted, invitations.invitations[invitation.ID].Status)
		_, err = members.GetActiveMemberByUserID(ctx, joiner.ID)
		require.NoError(t, err)
	})

	t.Run("rejects an expired invitation", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		invitation, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: joiner.Email})
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err = svc.AcceptInvitation(ctx, invitation.ID, joiner)
		require.ErrorIs(t, err, ErrInvitationInvalid)
	})

	t.Run("rejects a revoked invitation", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		invitation, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: joiner.Email})
		require.NoError(t, err)
		require.NoError(t, svc.RevokeInvitation(ctx, invitation.ID))

		_, err = svc.AcceptInvitation(ctx, invitation.ID, joiner)
		require.ErrorIs(t, err, ErrInvitationInvalid)
	})

	t.Run("rejects a user who already belongs to a team", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		first, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: joiner.Email})
		require.NoError(t, err)
		_, err = svc.AcceptInvitation(ctx, first.ID, joiner)
		require.NoError(t, err)

		second, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: "again@example.com"})
		require.NoError(t, err)
		_, err = svc.AcceptInvitation(ctx, second.ID, joiner)
		require.ErrorIs(t, err, ErrAlreadyMember)
	})

	t.Run("unknown invitation is not found", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		_, err := svc.AcceptInvitation(ctx, "missing", joiner)
		require.ErrorIs(t, err, ErrInvitationNotFound)
	})
}

func TestRevokeInvitation(t *testing.T) {
	ctx := context.Background()

	t.Run("revoking twice succeeds", func(t *testing.T) {
		svc, _, invitations, _ := newTestService(t)

		invitation, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: "a@example.com"})
		require.NoError(t, err)

		require.NoError(t, svc.RevokeInvitation(ctx, invitation.ID))
		require.NoError(t, svc.RevokeInvitation(ctx, invitation.ID))
		require.Equal(t, models.InvitationStatusRevoked, invitations.invitations[invitation.ID].Status)
	})

	t.Run("unknown invitation is not found", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		require.ErrorIs(t, svc.RevokeInvitation(ctx, "missing"), ErrInvitationNotFound)
	})
}

func TestGetInvitationsForAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("folds expiry into the status", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		invitation, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: "a@example.com"})
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		listed, err := svc.GetInvitationsForAccount(ctx, "holder-1")
		require.NoError(t, err)
		require.Len(t, listed, 1)
		require.Equal(t, invitation.ID, listed[0].ID)
		require.Equal(t, models.InvitationStatusExpired, listed[0].Status)
	})
}

func TestGetTeamMembershipByUserID(t *testing.T) {
	ctx := context.Background()

	t.Run("account holders have no membership", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		membership, err := svc.GetTeamMembershipByUserID(ctx, "holder-1")
		require.NoError(t, err)
		require.Nil(t, membership)
	})

	t.Run("members resolve to their document", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		joiner := models.User{ID: "user-2", Email: "b@example.com"}

		invitation, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: joiner.Email})
		require.NoError(t, err)
		_, err = svc.AcceptInvitation(ctx, invitation.ID, joiner)
		require.NoError(t, err)

		membership, err := svc.GetTeamMembershipByUserID(ctx, joiner.ID)
		require.NoError(t, err)
		require.NotNil(t, membership)
		require.Equal(t, joiner.ID, membership.UserID)
	})
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()

	t.Run("removes an existing member", func(t *testing.T) {
		svc, members, _, _ := newTestService(t)
		members.members["m-1"] = models.TeamMember{ID: "m-1", UserID: "user-2", Status: models.MemberStatusActive}

		require.NoError(t, svc.RemoveMember(ctx, "m-1"))
		require.Empty(t, members.members)
	})

	t.Run("unknown member is not found", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		require.ErrorIs(t, svc.RemoveMember(ctx, "missing"), ErrMemberNotFound)
	})
}

func TestGetTeamStats(t *testing.T) {
	ctx := context.Background()

	svc, members, _, _ := newTestService(t)
	members.stats = models.TeamStats{TotalMembers: 3, AdminCount: 1, TeammateCount: 2}

	_, _, err := svc.CreateInvitation(ctx, "holder-1", CreateInvitationRequest{InviteEmail: "a@example.com"})
	require.NoError(t, err)

	stats, err := svc.GetTeamStats(ctx, "holder-1")
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalMembers)
	require.Equal(t, 1, stats.PendingInvitations)
}
