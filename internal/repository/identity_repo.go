package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdentityRepository persists contractor identities keyed by verified phone.
type IdentityRepository interface {
	// FindOrCreate returns the identity for the phone, creating it if this is
	// the first verification. The unique constraint on phone guarantees one
	// identity per number even under concurrent verifications.
	FindOrCreate(ctx context.Context, id, phone string) (*model.ContractorIdentity, error)
	GetByID(ctx context.Context, id string) (*model.ContractorIdentity, error)
}

type identityRepo struct {
	pool *pgxpool.Pool
}

// NewIdentityRepo creates a new IdentityRepository.
func NewIdentityRepo(pool *pgxpool.Pool) IdentityRepository {
	return &identityRepo{pool: pool}
}

func (r *identityRepo) FindOrCreate(ctx context.Context, id, phone string) (*model.ContractorIdentity, error) {
	// DO UPDATE rather than DO NOTHING so RETURNING always yields the
	// surviving row, whichever caller inserted it.
	const q = `
        INSERT INTO contractor_identities (id, phone, created_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
        RETURNING id, phone, created_at
    `
	var ident model.ContractorIdentity
	err := r.pool.QueryRow(ctx, q, id, phone).Scan(&ident.ID, &ident.Phone, &ident.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("find or create identity for phone %s: %w", phone, err)
	}
	return &ident, nil
}

func (r *identityRepo) GetByID(ctx context.Context, id string) (*model.ContractorIdentity, error) {
	const q = `SELECT id, phone, created_at FROM contractor_identities WHERE id = $1`
	var ident model.ContractorIdentity
	err := r.pool.QueryRow(ctx, q, id).Scan(&ident.ID, &ident.Phone, &ident.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch identity %s: %w", id, err)
	}
	return &ident, nil
}
