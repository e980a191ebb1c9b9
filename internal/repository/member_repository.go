package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/receiptly/team-api/internal/models"
)

const memberColumns = `
	id, account_holder_id, account_holder_email, business_id, business_name,
	user_id, email, display_name, role, status, joined_at, last_active_at, permissions`

type MemberRepository interface {
	GetMemberByID(ctx context.Context, id string) (models.TeamMember, error)
	GetActiveMemberByUserID(ctx context.Context, userID string) (models.TeamMember, error)
	ListActiveMembers(ctx context.Context, accountHolderID string) ([]models.TeamMember, error)
	TouchLastActive(ctx context.Context, memberID string) error
	DeleteMember(ctx context.Context, memberID string) error
	GetMemberStats(ctx context.Context, accountHolderID string) (models.TeamStats, error)
}

type memberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) GetMemberByID(ctx context.Context, id string) (models.TeamMember, error) {
	const query = `
		SELECT ` + memberColumns + `
		FROM team.team_members
		WHERE id = $1;
	`
	return scanMember(r.db.QueryRowContext(ctx, query, id))
}

func (r *memberRepository) GetActiveMemberByUserID(ctx context.Context, userID string) (models.TeamMember, error) {
	const query = `
		SELECT ` + memberColumns + `
		FROM team.team_members
		WHERE user_id = $1 AND status = 'active';
	`
	return scanMember(r.db.QueryRowContext(ctx, query, userID))
}

func (r *memberRepository) ListActiveMembers(ctx context.Context, accountHolderID string) ([]models.TeamMember, error) {
	const query = `
		SELECT ` + memberColumns + `
		FROM team.team_members
		WHERE account_holder_id = $1 AND status = 'active'
		ORDER BY joined_at;
	`

	rows, err := r.db.QueryContext(ctx, query, accountHolderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.TeamMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return members, nil
}

func (r *memberRepository) TouchLastActive(ctx context.Context, memberID string) error {
	const query = `
		UPDATE team.team_members
		SET last_active_at = now()
		WHERE id = $1 AND status = 'active';
	`
	_, err := r.db.ExecContext(ctx, query, memberID)
	return err
}

func (r *memberRepository) DeleteMember(ctx context.Context, memberID string) error {
	const query = `
		DELETE FROM team.team_members
		WHERE id = $1;
	`

	result, err := r.db.ExecContext(ctx, query, memberID)
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

func (r *memberRepository) GetMemberStats(ctx context.Context, accountHolderID string) (models.TeamStats, error) {
	const query = `
		SELECT
			count(*)                              AS total_members,
			count(*) FILTER (WHERE role = 'admin')    AS admin_count,
			count(*) FILTER (WHERE role = 'teammate') AS teammate_count,
			max(joined_at)                        AS last_joined_at
		FROM team.team_members
		WHERE account_holder_id = $1 AND status = 'active';
	`

	var (
		stats      models.TeamStats
		lastJoined sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, accountHolderID).Scan(
		&stats.TotalMembers,
		&stats.AdminCount,
		&stats.TeammateCount,
		&lastJoined,
	)
	if err != nil {
		return models.TeamStats{}, err
	}

	if lastJoined.Valid {
		joined := lastJoined.Time.UTC()
		stats.LastJoinedAt = &joined
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (models.TeamMember, error) {
	var (
		member       models.TeamMember
		businessID   sql.NullString
		businessName sql.NullString
		permissions  []byte
		joinedAt     time.Time
		lastActiveAt time.Time
	)
	err := row.Scan(
		&member.ID,
		&member.AccountHolderID,
		&member.AccountHolderEmail,
		&businessID,
		&businessName,
		&member.UserID,
		&member.Email,
		&member.DisplayName,
		&member.Role,
		&member.Status,
		&joinedAt,
		&lastActiveAt,
		&permissions,
	)
	if err != nil {
		return models.TeamMember{}, err
	}

	if businessID.Valid {
		member.BusinessID = &businessID.String
	}
	if businessName.Valid {
		member.BusinessName = &businessName.String
	}
	member.JoinedAt = joinedAt.UTC()
	member.LastActiveAt = lastActiveAt.UTC()
	member.Permissions = permissions

	return member, nil
}
