package service

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrProfileNotFound  = errors.New("profile not found")
)

// ProfileService provisions and reads contractor profiles. Provisioning is
// idempotent: concurrent first logins for one identity converge on a single
// profile row, enforced by the identity_id unique constraint.
type ProfileService interface {
	// EnsureIdentity returns the identity for a verified phone number,
	// minting it on first verification.
	EnsureIdentity(ctx context.Context, phone string) (*model.ContractorIdentity, error)
	// EnsureProfile finds or creates the profile for the identity. All
	// concurrent callers receive the same profile.
	EnsureProfile(ctx context.Context, identityID, phone string) (*model.ContractorProfile, error)
	Get(ctx context.Context, profileID string) (*model.ContractorProfile, error)
	CompleteOnboarding(ctx context.Context, profileID, companyName string) error
}

type profileService struct {
	identityRepo repository.IdentityRepository
	profileRepo  repository.ProfileRepository
	logger       zerolog.Logger
}

// NewProfileService creates a ProfileService with a scoped logger.
func NewProfileService(identityRepo repository.IdentityRepository, profileRepo repository.ProfileRepository, logger zerolog.Logger) ProfileService {
	return &profileService{
		identityRepo: identityRepo,
		profileRepo:  profileRepo,
		logger:       logger.With().Str("service", "ProfileService").Logger(),
	}
}

func (s *profileService) EnsureIdentity(ctx context.Context, phone string) (*model.ContractorIdentity, error) {
	ident, err := s.identityRepo.FindOrCreate(ctx, uuid.NewString(), phone)
	if err != nil {
		s.logger.Error().Err(err).Str("phone", phone).Msg("Failed to find or create identity")
		return nil, err
	}
	return ident, nil
}

func (s *profileService) EnsureProfile(ctx context.Context, identityID, phone string) (*model.ContractorProfile, error) {
	ident, err := s.identityRepo.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		// Defense against forged calls bypassing OTP verification.
		return nil, ErrIdentityNotFound
	}

	candidate := &model.ContractorProfile{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Phone:      phone,
		Tier:       model.TierBase,
	}
	inserted, err := s.profileRepo.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if inserted {
		s.logger.Info().Str("profile_id", candidate.ID).Str("identity_id", identityID).Msg("Provisioned contractor profile")
	}
	// Read back unconditionally: on conflict this is the retry of the find
	// path, on insert it picks up DB-assigned timestamps.
	profile, err := s.profileRepo.GetByIdentityID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("profile for identity %s vanished after provisioning", identityID)
	}
	return profile, nil
}

func (s *profileService) Get(ctx context.Context, profileID string) (*model.ContractorProfile, error) {
	profile, err := s.profileRepo.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

func (s *profileService) CompleteOnboarding(ctx context.Context, profileID, companyName string) error {
	if err := s.profileRepo.CompleteOnboarding(ctx, profileID, companyName); err != nil {
		s.logger.Error().Err(err).Str("profile_id", profileID).Msg("Failed to complete onboarding")
		return err
	}
	return nil
}
