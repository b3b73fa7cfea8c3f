package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OTPRepository persists one-time passcode challenges.
type OTPRepository interface {
	// SupersedeAndCreate invalidates any outstanding challenge for the phone
	// and inserts the new one in the same transaction, so a stale code can
	// never validate once the new challenge is visible.
	SupersedeAndCreate(ctx context.Context, ch *model.OtpChallenge) error
	// GetLatest returns the most recent challenge for the phone regardless of
	// consumption state, or nil if none exists. Consumed state is returned so
	// the verifier can tell a replayed code apart from a missing challenge.
	GetLatest(ctx context.Context, phone string) (*model.OtpChallenge, error)
	// Consume marks the challenge consumed. Returns false if it was already
	// consumed (or does not exist), which is how replay is detected.
	Consume(ctx context.Context, id string) (bool, error)
	// CountIssuedSince counts challenges created for the phone since the given
	// time, for rate limiting.
	CountIssuedSince(ctx context.Context, phone string, since time.Time) (int, error)
	// ListExpired returns up to limit challenges past expiry at the given time.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.OtpChallenge, error)
	// Delete removes a challenge row.
	Delete(ctx context.Context, id string) error
}

type otpRepo struct {
	pool *pgxpool.Pool
}

// NewOTPRepo creates a new OTPRepository.
func NewOTPRepo(pool *pgxpool.Pool) OTPRepository {
	return &otpRepo{pool: pool}
}

func (r *otpRepo) SupersedeAndCreate(ctx context.Context, ch *model.OtpChallenge) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction for challenge issue: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	const supersedeQ = `
        UPDATE otp_challenges
        SET consumed = TRUE
        WHERE phone = $1 AND consumed = FALSE
    `
	if _, err := tx.Exec(ctx, supersedeQ, ch.Phone); err != nil {
		return fmt.Errorf("superseding challenges for phone %s: %w", ch.Phone, err)
	}
	const insertQ = `
        INSERT INTO otp_challenges (id, phone, code, created_at, expires_at, consumed)
        VALUES ($1, $2, $3, $4, $5, FALSE)
    `
	if _, err := tx.Exec(ctx, insertQ, ch.ID, ch.Phone, ch.Code, ch.CreatedAt, ch.ExpiresAt); err != nil {
		return fmt.Errorf("inserting challenge for phone %s: %w", ch.Phone, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing challenge for phone %s: %w", ch.Phone, err)
	}
	return nil
}

func (r *otpRepo) GetLatest(ctx context.Context, phone string) (*model.OtpChallenge, error) {
	const q = `
        SELECT id, phone, code, created_at, expires_at, consumed
        FROM otp_challenges
        WHERE phone = $1
        ORDER BY created_at DESC
        LIMIT 1
    `
	var ch model.OtpChallenge
	err := r.pool.QueryRow(ctx, q, phone).Scan(
		&ch.ID,
		&ch.Phone,
		&ch.Code,
		&ch.CreatedAt,
		&ch.ExpiresAt,
		&ch.Consumed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch challenge for phone %s: %w", phone, err)
	}
	return &ch, nil
}

func (r *otpRepo) Consume(ctx context.Context, id string) (bool, error) {
	const q = `
        UPDATE otp_challenges
        SET consumed = TRUE
        WHERE id = $1 AND consumed = FALSE
    `
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("consuming challenge %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *otpRepo) CountIssuedSince(ctx context.Context, phone string, since time.Time) (int, error) {
	const q = `
        SELECT COUNT(*)
        FROM otp_challenges
        WHERE phone = $1 AND created_at >= $2
    `
	var count int
	if err := r.pool.QueryRow(ctx, q, phone, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting challenges for phone %s: %w", phone, err)
	}
	return count, nil
}

func (r *otpRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.OtpChallenge, error) {
	const q = `
        SELECT id, phone, code, created_at, expires_at, consumed
        FROM otp_challenges
        WHERE expires_at < $1
        ORDER BY expires_at
        LIMIT $2
    `
	rows, err := r.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, fmt.Errorf("listing expired challenges: %w", err)
	}
	defer rows.Close()

	var out []model.OtpChallenge
	for rows.Next() {
		var ch model.OtpChallenge
		if err := rows.Scan(&ch.ID, &ch.Phone, &ch.Code, &ch.CreatedAt, &ch.ExpiresAt, &ch.Consumed); err != nil {
			return nil, fmt.Errorf("scanning expired challenge: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expired challenges: %w", err)
	}
	return out, nil
}

func (r *otpRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM otp_challenges WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("deleting challenge %s: %w", id, err)
	}
	return nil
}
