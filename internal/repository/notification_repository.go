package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/receiptly/team-api/internal/models"
)

type CreateNotificationParams struct {
	UserID   *string
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

type NotificationRepository interface {
	Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error)
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	metadata := []byte("{}")
	if len(params.Metadata) > 0 {
		encoded, err := json.Marshal(params.Metadata)
		if err != nil {
			return models.Notification{}, errors.Wrap(err, "encode notification metadata")
		}
		metadata = encoded
	}

	const query = `
		INSERT INTO team.notifications (user_id, event_type, severity, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, event_type, severity, title, message, metadata, created_at, read_at;
	`

	return r.scanNotification(r.db.QueryRowContext(ctx, query,
		params.UserID,
		params.Event,
		params.Severity,
		params.Title,
		params.Message,
		metadata,
	))
}

func (r *notificationRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	const query = `
		SELECT id, user_id, event_type, severity, title, message, metadata, created_at, read_at
		FROM team.notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2;
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notif, err := r.scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notif)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error) {
	const query = `
		UPDATE team.notifications
		SET read_at = COALESCE(read_at, now())
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, event_type, severity, title, message, metadata, created_at, read_at;
	`
	return r.scanNotification(r.db.QueryRowContext(ctx, query, notificationID, userID))
}

func (r *notificationRepository) scanNotification(row rowScanner) (models.Notification, error) {
	var (
		notif    models.Notification
		userID   sql.NullString
		metadata []byte
		readAt   sql.NullTime
	)
	err := row.Scan(
		&notif.ID,
		&userID,
		&notif.EventType,
		&notif.Severity,
		&notif.Title,
		&notif.Message,
		&metadata,
		&notif.CreatedAt,
		&readAt,
	)
	if err != nil {
		return models.Notification{}, err
	}

	if userID.Valid {
		notif.UserID = &userID.String
	}
	notif.Metadata = metadata
	if readAt.Valid {
		read := readAt.Time.UTC()
		notif.ReadAt = &read
	}

	return notif, nil
}
