package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/receiptly/team-api/internal/models"
)

type SubscriptionRepository interface {
	GetSubscription(ctx context.Context, accountHolderID string) (models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub models.Subscription) (models.Subscription, error)
	// Entitlements resolves the plan catalog for an account holder. A missing
	// subscription row resolves to the free-tier defaults.
	Entitlements(ctx context.Context, accountHolderID string) (models.Entitlements, error)
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetSubscription(ctx context.Context, accountHolderID string) (models.Subscription, error) {
	const query = `
		SELECT account_holder_id, tier, is_active, updated_at
		FROM team.subscriptions
		WHERE account_holder_id = $1;
	`

	var sub models.Subscription
	err := r.db.QueryRowContext(ctx, query, accountHolderID).Scan(
		&sub.AccountHolderID,
		&sub.Tier,
		&sub.IsActive,
		&sub.UpdatedAt,
	)
	if err != nil {
		return models.Subscription{}, err
	}

	return sub, nil
}

func (r *subscriptionRepository) UpsertSubscription(ctx context.Context, sub models.Subscription) (models.Subscription, error) {
	const query = `
		INSERT INTO team.subscriptions (account_holder_id, tier, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_holder_id)
		DO UPDATE SET tier = EXCLUDED.tier, is_active = EXCLUDED.is_active, updated_at = now()
		RETURNING account_holder_id, tier, is_active, updated_at;
	`

	var updated models.Subscription
	err := r.db.QueryRowContext(ctx, query, sub.AccountHolderID, sub.Tier, sub.IsActive).Scan(
		&updated.AccountHolderID,
		&updated.Tier,
		&updated.IsActive,
		&updated.UpdatedAt,
	)
	if err != nil {
		return models.Subscription{}, err
	}

	return updated, nil
}

func (r *subscriptionRepository) Entitlements(ctx context.Context, accountHolderID string) (models.Entitlements, error) {
	sub, err := r.GetSubscription(ctx, accountHolderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultSubscription(accountHolderID).Entitlements(), nil
		}
		return models.Entitlements{}, err
	}
	return sub.Entitlements(), nil
}
