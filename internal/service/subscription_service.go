package service

import (
	"context"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// SubscriptionService defines business logic methods for subscription state
// and financial records.
type SubscriptionService interface {
	Get(ctx context.Context, profileID string) (*model.SubscriptionRecord, error)
	Upsert(ctx context.Context, rec *model.SubscriptionRecord) error
	MarkPastDue(ctx context.Context, profileID string) error
	// RecordPayment appends a transaction unless one already exists for the
	// charge reference. Returns true if a new record was written.
	RecordPayment(ctx context.Context, t *model.TransactionRecord) (bool, error)
	ListTransactions(ctx context.Context, profileID string, limit int) ([]model.TransactionRecord, error)
}

type subscriptionService struct {
	subRepo repository.SubscriptionRepository
	txRepo  repository.TransactionRepository
	logger  zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionService with a scoped logger.
func NewSubscriptionService(subRepo repository.SubscriptionRepository, txRepo repository.TransactionRepository, logger zerolog.Logger) SubscriptionService {
	return &subscriptionService{
		subRepo: subRepo,
		txRepo:  txRepo,
		logger:  logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

func (s *subscriptionService) Get(ctx context.Context, profileID string) (*model.SubscriptionRecord, error) {
	rec, err := s.subRepo.GetByProfileID(ctx, profileID)
	if err != nil {
		s.logger.Error().Err(err).Str("profile_id", profileID).Msg("Failed to fetch subscription")
		return nil, err
	}
	return rec, nil
}

func (s *subscriptionService) Upsert(ctx context.Context, rec *model.SubscriptionRecord) error {
	if err := s.subRepo.Upsert(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("profile_id", rec.ProfileID).Str("status", rec.Status).Msg("Failed to upsert subscription")
		return err
	}
	return nil
}

func (s *subscriptionService) MarkPastDue(ctx context.Context, profileID string) error {
	if err := s.subRepo.UpdateStatus(ctx, profileID, model.SubscriptionPastDue); err != nil {
		s.logger.Error().Err(err).Str("profile_id", profileID).Msg("Failed to mark subscription past_due")
		return err
	}
	return nil
}

func (s *subscriptionService) RecordPayment(ctx context.Context, t *model.TransactionRecord) (bool, error) {
	inserted, err := s.txRepo.InsertIfAbsent(ctx, t)
	if err != nil {
		s.logger.Error().Err(err).Str("charge_id", t.ExternalChargeID).Msg("Failed to record payment")
		return false, err
	}
	return inserted, nil
}

func (s *subscriptionService) ListTransactions(ctx context.Context, profileID string, limit int) ([]model.TransactionRecord, error) {
	txs, err := s.txRepo.ListByProfileID(ctx, profileID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("profile_id", profileID).Msg("Failed to list transactions")
		return nil, err
	}
	return txs, nil
}
