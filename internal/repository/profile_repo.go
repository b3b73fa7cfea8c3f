package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository persists contractor profiles. The identity_id UNIQUE
// constraint is the source of truth for the one-profile-per-identity
// guarantee; application code never relies on a read-then-write check.
type ProfileRepository interface {
	// CreateIfAbsent inserts the profile unless one already exists for the
	// identity. Returns true if a row was inserted.
	CreateIfAbsent(ctx context.Context, p *model.ContractorProfile) (bool, error)
	GetByID(ctx context.Context, id string) (*model.ContractorProfile, error)
	GetByIdentityID(ctx context.Context, identityID string) (*model.ContractorProfile, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*model.ContractorProfile, error)
	UpdateStripeCustomerID(ctx context.Context, profileID, customerID string) error
	UpdateTier(ctx context.Context, profileID, tier string) error
	CompleteOnboarding(ctx context.Context, profileID, companyName string) error
}

type profileRepo struct {
	pool *pgxpool.Pool
}

// NewProfileRepo creates a new ProfileRepository.
func NewProfileRepo(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepo{pool: pool}
}

func (r *profileRepo) CreateIfAbsent(ctx context.Context, p *model.ContractorProfile) (bool, error) {
	const q = `
        INSERT INTO contractor_profiles (id, identity_id, phone, company_name, tier, onboarding_completed, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, FALSE, NOW(), NOW())
        ON CONFLICT (identity_id) DO NOTHING
    `
	tag, err := r.pool.Exec(ctx, q, p.ID, p.IdentityID, p.Phone, p.CompanyName, p.Tier)
	if err != nil {
		return false, fmt.Errorf("inserting profile for identity %s: %w", p.IdentityID, err)
	}
	return tag.RowsAffected() == 1, nil
}

const profileColumns = `
    id, identity_id, phone, company_name, tier, stripe_customer_id, onboarding_completed, created_at, updated_at
`

func (r *profileRepo) scanProfile(row pgx.Row, key string) (*model.ContractorProfile, error) {
	var p model.ContractorProfile
	err := row.Scan(
		&p.ID,
		&p.IdentityID,
		&p.Phone,
		&p.CompanyName,
		&p.Tier,
		&p.StripeCustomerID,
		&p.OnboardingCompleted,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch profile %s: %w", key, err)
	}
	return &p, nil
}

func (r *profileRepo) GetByID(ctx context.Context, id string) (*model.ContractorProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM contractor_profiles WHERE id = $1`
	return r.scanProfile(r.pool.QueryRow(ctx, q, id), id)
}

func (r *profileRepo) GetByIdentityID(ctx context.Context, identityID string) (*model.ContractorProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM contractor_profiles WHERE identity_id = $1`
	return r.scanProfile(r.pool.QueryRow(ctx, q, identityID), identityID)
}

func (r *profileRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (*model.ContractorProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM contractor_profiles WHERE stripe_customer_id = $1`
	return r.scanProfile(r.pool.QueryRow(ctx, q, customerID), customerID)
}

func (r *profileRepo) UpdateStripeCustomerID(ctx context.Context, profileID, customerID string) error {
	const q = `
        UPDATE contractor_profiles
        SET stripe_customer_id = $2, updated_at = NOW()
        WHERE id = $1
    `
	if _, err := r.pool.Exec(ctx, q, profileID, customerID); err != nil {
		return fmt.Errorf("storing stripe customer id for profile %s: %w", profileID, err)
	}
	return nil
}

func (r *profileRepo) UpdateTier(ctx context.Context, profileID, tier string) error {
	const q = `
        UPDATE contractor_profiles
        SET tier = $2, updated_at = NOW()
        WHERE id = $1
    `
	if _, err := r.pool.Exec(ctx, q, profileID, tier); err != nil {
		return fmt.Errorf("updating tier for profile %s: %w", profileID, err)
	}
	return nil
}

func (r *profileRepo) CompleteOnboarding(ctx context.Context, profileID, companyName string) error {
	const q = `
        UPDATE contractor_profiles
        SET company_name = $2, onboarding_completed = TRUE, updated_at = NOW()
        WHERE id = $1
    `
	if _, err := r.pool.Exec(ctx, q, profileID, companyName); err != nil {
		return fmt.Errorf("completing onboarding for profile %s: %w", profileID, err)
	}
	return nil
}
