package repository

import (
	"context"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionRepository appends financial records. Inserts are deduplicated
// on external_charge_id so replayed billing events never double-book.
type TransactionRepository interface {
	// InsertIfAbsent writes the record unless one already exists for its
	// external charge id. Returns true if a row was inserted.
	InsertIfAbsent(ctx context.Context, t *model.TransactionRecord) (bool, error)
	ListByProfileID(ctx context.Context, profileID string, limit int) ([]model.TransactionRecord, error)
}

type transactionRepo struct {
	pool *pgxpool.Pool
}

// NewTransactionRepo creates a new TransactionRepository.
func NewTransactionRepo(pool *pgxpool.Pool) TransactionRepository {
	return &transactionRepo{pool: pool}
}

func (r *transactionRepo) InsertIfAbsent(ctx context.Context, t *model.TransactionRecord) (bool, error) {
	const q = `
        INSERT INTO transactions (id, profile_id, amount_cents, type, status, external_charge_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
        ON CONFLICT (external_charge_id) DO NOTHING
    `
	tag, err := r.pool.Exec(ctx, q, t.ID, t.ProfileID, t.AmountCents, t.Type, t.Status, t.ExternalChargeID)
	if err != nil {
		return false, fmt.Errorf("inserting transaction %s: %w", t.ExternalChargeID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *transactionRepo) ListByProfileID(ctx context.Context, profileID string, limit int) ([]model.TransactionRecord, error) {
	const q = `
        SELECT id, profile_id, amount_cents, type, status, external_charge_id, created_at
        FROM transactions
        WHERE profile_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.pool.Query(ctx, q, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for profile %s: %w", profileID, err)
	}
	defer rows.Close()

	var out []model.TransactionRecord
	for rows.Next() {
		var t model.TransactionRecord
		if err := rows.Scan(&t.ID, &t.ProfileID, &t.AmountCents, &t.Type, &t.Status, &t.ExternalChargeID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions for profile %s: %w", profileID, err)
	}
	return out, nil
}
