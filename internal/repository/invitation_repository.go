package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/receiptly/team-api/internal/models"
)

const invitationColumns = `
	id, account_holder_id, account_holder_name, invite_email, role,
	token_hash, status, created_at, expires_at`

type InvitationRepository interface {
	CreateInvitation(ctx context.Context, invitation models.TeamInvitation) (models.TeamInvitation, error)
	GetInvitationByID(ctx context.Context, id string) (models.TeamInvitation, error)
	GetInvitationByTokenHash(ctx context.Context, tokenHash string) (models.TeamInvitation, error)
	ListInvitationsByAccount(ctx context.Context, accountHolderID string) ([]models.TeamInvitation, error)
	HasPendingInvitation(ctx context.Context, accountHolderID, email string, now time.Time) (bool, error)
	CountPendingInvitations(ctx context.Context, accountHolderID string, now time.Time) (int, error)
	// AcceptInvitation marks the invitation accepted and creates the team
	// member in a single transaction. Returns sql.ErrNoRows when the
	// invitation is no longer pending or has expired.
	AcceptInvitation(ctx context.Context, invitationID string, member models.TeamMember) (models.TeamMember, error)
	MarkRevoked(ctx context.Context, invitationID string) error
}

type invitationRepository struct {
	db *sql.DB
}

func NewInvitationRepository(db *sql.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) CreateInvitation(ctx context.Context, invitation models.TeamInvitation) (models.TeamInvitation, error) {
	const query = `
		INSERT INTO team.team_invitations
			(id, account_holder_id, account_holder_name, invite_email, role, token_hash, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + invitationColumns + `;
	`

	return scanInvitation(r.db.QueryRowContext(ctx, query,
		invitation.ID,
		invitation.AccountHolderID,
		invitation.AccountHolderName,
		invitation.InviteEmail,
		invitation.Role,
		invitation.TokenHash,
		invitation.Status,
		invitation.ExpiresAt,
	))
}

func (r *invitationRepository) GetInvitationByID(ctx context.Context, id string) (models.TeamInvitation, error) {
	const query = `
		SELECT ` + invitationColumns + `
		FROM team.team_invitations
		WHERE id = $1;
	`
	return scanInvitation(r.db.QueryRowContext(ctx, query, id))
}

func (r *invitationRepository) GetInvitationByTokenHash(ctx context.Context, tokenHash string) (models.TeamInvitation, error) {
	const query = `
		SELECT ` + invitationColumns + `
		FROM team.team_invitations
		WHERE token_hash = $1;
	`
	return scanInvitation(r.db.QueryRowContext(ctx, query, tokenHash))
}

func (r *invitationRepository) ListInvitationsByAccount(ctx context.Context, accountHolderID string) ([]models.TeamInvitation, error) {
	const query = `
		SELECT ` + invitationColumns + `
		FROM team.team_invitations
		WHERE account_holder_id = $1
		ORDER BY created_at DESC;
	`

	rows, err := r.db.QueryContext(ctx, query, accountHolderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []models.TeamInvitation
	for rows.Next() {
		invitation, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, invitation)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return invitations, nil
}

func (r *invitationRepository) HasPendingInvitation(ctx context.Context, accountHolderID, email string, now time.Time) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1
			FROM team.team_invitations
			WHERE account_holder_id = $1
			  AND lower(invite_email) = lower($2)
			  AND status = 'pending'
			  AND expires_at > $3
		);
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, accountHolderID, email, now).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *invitationRepository) CountPendingInvitations(ctx context.Context, accountHolderID string, now time.Time) (int, error) {
	const query = `
		SELECT count(*)
		FROM team.team_invitations
		WHERE account_holder_id = $1 AND status = 'pending' AND expires_at > $2;
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, accountHolderID, now).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *invitationRepository) AcceptInvitation(ctx context.Context, invitationID string, member models.TeamMember) (models.TeamMember, error) {
	const acceptQuery = `
		UPDATE team.team_invitations
		SET status = 'accepted'
		WHERE id = $1 AND status = 'pending' AND expires_at > now();
	`
	const insertQuery = `
		INSERT INTO team.team_members
			(id, account_holder_id, account_holder_email, business_id, business_name,
			 user_id, email, display_name, role, status, permissions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + memberColumns + `;
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.TeamMember{}, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, acceptQuery, invitationID)
	if err != nil {
		return models.TeamMember{}, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return models.TeamMember{}, err
	}
	if rowsAffected == 0 {
		return models.TeamMember{}, sql.ErrNoRows
	}

	permissions := member.Permissions
	if len(permissions) == 0 {
		permissions = []byte("{}")
	}

	created, err := scanMember(tx.QueryRowContext(ctx, insertQuery,
		member.ID,
		member.AccountHolderID,
		member.AccountHolderEmail,
		member.BusinessID,
		member.BusinessName,
		member.UserID,
		member.Email,
		member.DisplayName,
		member.Role,
		member.Status,
		permissions,
	))
	if err != nil {
		return models.TeamMember{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.TeamMember{}, err
	}

	return created, nil
}

func (r *invitationRepository) MarkRevoked(ctx context.Context, invitationID string) error {
	// Idempotent: revoking an already revoked invitation is a no-op.
	const query = `
		UPDATE team.team_invitations
		SET status = 'revoked'
		WHERE id = $1 AND status IN ('pending', 'revoked');
	`

	result, err := r.db.ExecContext(ctx, query, invitationID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func scanInvitation(row rowScanner) (models.TeamInvitation, error) {
	var (
		invitation models.TeamInvitation
		createdAt  time.Time
		expiresAt  time.Time
	)
	err := row.Scan(
		&invitation.ID,
		&invitation.AccountHolderID,
		&invitation.AccountHolderName,
		&invitation.InviteEmail,
		&invitation.Role,
		&invitation.TokenHash,
		&invitation.Status,
		&createdAt,
		&expiresAt,
	)
	if err != nil {
		return models.TeamInvitation{}, err
	}

	invitation.CreatedAt = createdAt.UTC()
	invitation.ExpiresAt = expiresAt.UTC()

	return invitation, nil
}
