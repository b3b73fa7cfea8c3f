package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository persists the billing-provider subscription mirror.
// One row per profile; each upsert is a full statement of current truth so
// redelivered or reordered events converge on the latest state.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, rec *model.SubscriptionRecord) error
	UpdateStatus(ctx context.Context, profileID, status string) error
	GetByProfileID(ctx context.Context, profileID string) (*model.SubscriptionRecord, error)
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Upsert(ctx context.Context, rec *model.SubscriptionRecord) error {
	const q = `
        INSERT INTO subscriptions (profile_id, external_customer_id, external_subscription_id, status, tier, current_period_end, cancel_at_period_end, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
        ON CONFLICT (profile_id) DO UPDATE
        SET external_customer_id = EXCLUDED.external_customer_id,
            external_subscription_id = EXCLUDED.external_subscription_id,
            status = EXCLUDED.status,
            tier = EXCLUDED.tier,
            current_period_end = EXCLUDED.current_period_end,
            cancel_at_period_end = EXCLUDED.cancel_at_period_end,
            updated_at = NOW();
    `
	_, err := r.pool.Exec(ctx, q,
		rec.ProfileID,
		rec.ExternalCustomerID,
		rec.ExternalSubscriptionID,
		rec.Status,
		rec.Tier,
		rec.CurrentPeriodEnd,
		rec.CancelAtPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription for profile %s: %w", rec.ProfileID, err)
	}
	return nil
}

func (r *subscriptionRepo) UpdateStatus(ctx context.Context, profileID, status string) error {
	const q = `
        UPDATE subscriptions
        SET status = $2, updated_at = NOW()
        WHERE profile_id = $1
    `
	if _, err := r.pool.Exec(ctx, q, profileID, status); err != nil {
		return fmt.Errorf("update subscription status for profile %s: %w", profileID, err)
	}
	return nil
}

func (r *subscriptionRepo) GetByProfileID(ctx context.Context, profileID string) (*model.SubscriptionRecord, error) {
	const q = `
        SELECT profile_id, external_customer_id, external_subscription_id, status, tier, current_period_end, cancel_at_period_end, created_at, updated_at
        FROM subscriptions
        WHERE profile_id = $1
    `
	var rec model.SubscriptionRecord
	err := r.pool.QueryRow(ctx, q, profileID).Scan(
		&rec.ProfileID,
		&rec.ExternalCustomerID,
		&rec.ExternalSubscriptionID,
		&rec.Status,
		&rec.Tier,
		&rec.CurrentPeriodEnd,
		&rec.CancelAtPeriodEnd,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch subscription for profile %s: %w", profileID, err)
	}
	return &rec, nil
}
