package directory

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/models"
	"github.com/receiptly/team-api/internal/repository"
)

const defaultInvitationTTL = 7 * 24 * time.Hour

// CreateInvitationRequest carries the caller-supplied fields of a new
// invitation. The account holder identity is passed separately because it is
// resolved by the access controller, not trusted from the request.
type CreateInvitationRequest struct {
	InviteEmail       string            `json:"invite_email"`
	Role              models.MemberRole `json:"role"`
	AccountHolderName string            `json:"account_holder_name"`
}

// Service is the stateless team directory: every operation is a round trip to
// the store with no state retained between calls.
type Service struct {
	members     repository.MemberRepository
	invitations repository.InvitationRepository
	users       repository.UserRepository
	ttl         time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(members repository.MemberRepository, invitations repository.InvitationRepository, users repository.UserRepository, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultInvitationTTL
	}
	return &Service{
		members:     members,
		invitations: invitations,
		users:       users,
		ttl:         ttl,
		logger:      logger.With().Str("component", "team_directory").Logger(),
		now:         time.Now,
	}
}

// CreateInvitation persists a pending invitation and returns it together with
// the single-use raw token. Only the token hash is stored.
func (s *Service) CreateInvitation(ctx context.Context, accountHolderID string, req CreateInvitationRequest) (models.TeamInvitation, string, error) {
	email := strings.TrimSpace(strings.ToLower(req.InviteEmail))
	if email == "" {
		return models.TeamInvitation{}, "", ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.TeamInvitation{}, "", ErrInvalidEmail
	}

	role := req.Role
	if role == "" {
		role = models.RoleTeammate
	}
	if !role.Valid() {
		return models.TeamInvitation{}, "", ErrInvalidRole
	}

	now := s.now()
	exists, err := s.invitations.HasPendingInvitation(ctx, accountHolderID, email, now)
	if err != nil {
		return models.TeamInvitation{}, "", errors.Wrap(err, "check pending invitations")
	}
	if exists {
		return models.TeamInvitation{}, "", ErrDuplicateInvitation
	}

	token, err := generateInvitationToken()
	if err != nil {
		return models.TeamInvitation{}, "", errors.Wrap(err, "generate invitation token")
	}

	invitation, err := s.invitations.CreateInvitation(ctx, models.TeamInvitation{
		ID:                uuid.NewString(),
		AccountHolderID:   accountHolderID,
		AccountHolderName: strings.TrimSpace(req.AccountHolderName),
		InviteEmail:       email,
		Role:              role,
		TokenHash:         hashInvitationToken(token),
		Status:            models.InvitationStatusPending,
		ExpiresAt:         now.Add(s.ttl),
	})
	if err != nil {
		return models.TeamInvitation{}, "", errors.Wrap(err, "create invitation")
	}

	s.logger.Debug().
		Str("invitation_id", invitation.ID).
		Str("account_holder_id", accountHolderID).
		Str("role", string(role)).
		Time("expires_at", invitation.ExpiresAt).
		Msg("invitation created")

	return invitation, token, nil
}

// GetInvitationByToken resolves a raw token to its invitation.
func (s *Service) GetInvitationByToken(ctx context.Context, token string) (models.TeamInvitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.TeamInvitation{}, ErrInvitationNotFound
	}

	invitation, err := s.invitations.GetInvitationByTokenHash(ctx, hashInvitationToken(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TeamInvitation{}, ErrInvitationNotFound
		}
		return models.TeamInvitation{}, errors.Wrap(err, "load invitation")
	}

	return invitation, nil
}

// AcceptInvitation consumes a pending, unexpired invitation and creates the
// membership for user. Both writes happen in one transaction; on any failure
// the invitation is left untouched.
func (s *Service) AcceptInvitation(ctx context.Context, invitationID string, user models.User) (models.TeamMember, error) {
	invitation, err := s.invitations.GetInvitationByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TeamMember{}, ErrInvitationNotFound
		}
		return models.TeamMember{}, errors.Wrap(err, "load invitation")
	}

	if !invitation.IsConsumable(s.now()) {
		return models.TeamMember{}, ErrInvitationInvalid
	}

	if _, err := s.members.GetActiveMemberByUserID(ctx, user.ID); err == nil {
		return models.TeamMember{}, ErrAlreadyMember
	} else if !errors.Is(err, sql.ErrNoRows) {
		return models.TeamMember{}, errors.Wrap(err, "check existing membership")
	}

	holderEmail := ""
	if holder, err := s.users.GetUserByID(ctx, invitation.AccountHolderID); err == nil {
		holderEmail = holder.Email
	} else if !errors.Is(err, sql.ErrNoRows) {
		return models.TeamMember{}, errors.Wrap(err, "load account holder")
	}

	member, err := s.invitations.AcceptInvitation(ctx, invitation.ID, models.TeamMember{
		ID:                 uuid.NewString(),
		AccountHolderID:    invitation.AccountHolderID,
		AccountHolderEmail: holderEmail,
		UserID:             user.ID,
		Email:              user.Email,
		DisplayName:        user.DisplayName,
		Role:               invitation.Role,
		Status:             models.MemberStatusActive,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race: the invitation was consumed or revoked between
			// the read above and the transactional update.
			return models.TeamMember{}, ErrInvitationInvalid
		}
		return models.TeamMember{}, errors.Wrap(err, "accept invitation")
	}

	s.logger.Info().
		Str("member_id", member.ID).
		Str("user_id", user.ID).
		Str("account_holder_id", member.AccountHolderID).
		Str("role", string(member.Role)).
		Msg("invitation accepted")

	return member, nil
}

// RevokeInvitation marks an invitation revoked. Revoking an already revoked
// invitation succeeds.
func (s *Service) RevokeInvitation(ctx context.Context, invitationID string) error {
	if err := s.invitations.MarkRevoked(ctx, invitationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvitationNotFound
		}
		return errors.Wrap(err, "revoke invitation")
	}
	return nil
}

// GetTeamMembers returns the active members of an account, ordered by join time.
func (s *Service) GetTeamMembers(ctx context.Context, accountHolderID string) ([]models.TeamMember, error) {
	members, err := s.members.ListActiveMembers(ctx, accountHolderID)
	if err != nil {
		return nil, errors.Wrap(err, "list team members")
	}
	return members, nil
}

// GetInvitationsForAccount returns every invitation for the account, all
// statuses, with expiry folded into the status field. Callers filter further.
func (s *Service) GetInvitationsForAccount(ctx context.Context, accountHolderID string) ([]models.TeamInvitation, error) {
	invitations, err := s.invitations.ListInvitationsByAccount(ctx, accountHolderID)
	if err != nil {
		return nil, errors.Wrap(err, "list invitations")
	}

	now := s.now()
	for i := range invitations {
		invitations[i].Status = invitations[i].EffectiveStatus(now)
	}

	return invitations, nil
}

// GetTeamMembershipByUserID returns the active membership for a user, or nil
// when the user is an account holder rather than a member.
func (s *Service) GetTeamMembershipByUserID(ctx context.Context, userID string) (*models.TeamMember, error) {
	member, err := s.members.GetActiveMemberByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load membership")
	}
	return &member, nil
}

// UpdateMemberLastActive refreshes the membership activity timestamp. Best
// effort: failures are logged, never surfaced.
func (s *Service) UpdateMemberLastActive(ctx context.Context, memberID string) {
	if err := s.members.TouchLastActive(ctx, memberID); err != nil {
		s.logger.Warn().Err(err).Str("member_id", memberID).Msg("failed to update member last active")
	}
}

// RemoveMember deletes the membership document. Deletion is a hard revoke:
// the change notification it produces drives the revocation watcher.
func (s *Service) RemoveMember(ctx context.Context, memberID string) error {
	if err := s.members.DeleteMember(ctx, memberID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMemberNotFound
		}
		return errors.Wrap(err, "remove member")
	}

	s.logger.Info().Str("member_id", memberID).Msg("team member removed")
	return nil
}

// GetTeamStats recomputes the aggregate view for an account.
func (s *Service) GetTeamStats(ctx context.Context, accountHolderID string) (models.TeamStats, error) {
	stats, err := s.members.GetMemberStats(ctx, accountHolderID)
	if err != nil {
		return models.TeamStats{}, errors.Wrap(err, "load member stats")
	}

	pending, err := s.invitations.CountPendingInvitations(ctx, accountHolderID, s.now())
	if err != nil {
		return models.TeamStats{}, errors.Wrap(err, "count pending invitations")
	}
	stats.PendingInvitations = pending

	return stats, nil
}

func generateInvitationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashInvitationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
