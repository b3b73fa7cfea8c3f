package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"app/internal/analytics"
	"app/internal/config"
	"app/internal/messaging"
	"app/internal/model"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidPhone         = errors.New("invalid phone number")
	ErrRateLimited          = errors.New("too many codes requested")
	ErrTransportUnavailable = errors.New("message delivery failed")
	ErrNoChallenge          = errors.New("no outstanding challenge")
	ErrCodeExpired          = errors.New("code expired")
	ErrCodeMismatch         = errors.New("code mismatch")
	ErrCodeConsumed         = errors.New("code already consumed")
)

// e164Pattern matches normalized E.164 phone numbers.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// opTimeout bounds a single issue/verify operation. Retry on timeout is the
// caller's responsibility.
const opTimeout = 5 * time.Second

// CodeGenerator produces one-time codes. The fixed variant replaces the
// random one in development so local logins need no real delivery.
type CodeGenerator interface {
	Generate(length int) (string, error)
}

// RandomCodeGenerator draws a numeric code from crypto/rand, preserving
// leading zeros.
type RandomCodeGenerator struct{}

func (RandomCodeGenerator) Generate(length int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// FixedCodeGenerator always returns the same code.
type FixedCodeGenerator struct {
	Code string
}

func (g FixedCodeGenerator) Generate(int) (string, error) {
	return g.Code, nil
}

// OTPService issues, verifies and expires one-time passcodes.
type OTPService interface {
	// Issue supersedes any outstanding challenge for the phone, persists a
	// fresh one and dispatches the code. On a delivery failure the challenge
	// stays valid and ErrTransportUnavailable is returned alongside it, so the
	// caller may retry dispatch without re-issuing.
	Issue(ctx context.Context, phone string) (*model.OtpChallenge, error)
	// Verify checks the submitted code against the latest challenge for the
	// phone and consumes it exactly once. Returns the verified phone number.
	Verify(ctx context.Context, phone, code string) (string, error)
	// SweepExpired removes challenges past expiry at the given time, emitting
	// an expired event for each unconsumed one. Continues past per-row
	// failures and returns the number of rows actually removed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type otpService struct {
	repo       repository.OTPRepository
	sender     messaging.Sender
	sink       analytics.Sink
	gen        CodeGenerator
	codeLength int
	ttl        time.Duration
	rateMax    int
	rateWindow time.Duration
	logger     zerolog.Logger
}

// NewOTPService creates an OTPService with a scoped logger.
func NewOTPService(cfg *config.Config, repo repository.OTPRepository, sender messaging.Sender, sink analytics.Sink, gen CodeGenerator, logger zerolog.Logger) OTPService {
	return &otpService{
		repo:       repo,
		sender:     sender,
		sink:       sink,
		gen:        gen,
		codeLength: cfg.OTPCodeLength,
		ttl:        time.Duration(cfg.OTPTTLSec) * time.Second,
		rateMax:    cfg.OTPRateLimitMax,
		rateWindow: time.Duration(cfg.OTPRateLimitWindowSec) * time.Second,
		logger:     logger.With().Str("service", "OTPService").Logger(),
	}
}

func (s *otpService) Issue(ctx context.Context, phone string) (*model.OtpChallenge, error) {
	if !e164Pattern.MatchString(phone) {
		return nil, ErrInvalidPhone
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	issued, err := s.repo.CountIssuedSince(ctx, phone, now.Add(-s.rateWindow))
	if err != nil {
		return nil, fmt.Errorf("checking issuance rate for %s: %w", phone, err)
	}
	if issued >= s.rateMax {
		s.logger.Warn().Str("phone", phone).Int("issued", issued).Msg("OTP issuance rate limit hit")
		return nil, ErrRateLimited
	}

	code, err := s.gen.Generate(s.codeLength)
	if err != nil {
		return nil, err
	}
	ch := &model.OtpChallenge{
		ID:        uuid.NewString(),
		Phone:     phone,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.SupersedeAndCreate(ctx, ch); err != nil {
		return nil, err
	}

	s.sink.Track(ctx, analytics.EventSendAttempt, map[string]string{"phone": phone, "challenge_id": ch.ID})
	body := fmt.Sprintf("Your FixItForMe verification code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes()))
	if err := s.sender.Send(ctx, phone, body); err != nil {
		s.logger.Error().Err(err).Str("phone", phone).Msg("Failed to dispatch OTP")
		s.sink.Track(ctx, analytics.EventSendFailure, map[string]string{"phone": phone, "challenge_id": ch.ID})
		// The challenge row stays valid; the caller decides whether to retry
		// dispatch or re-issue.
		return ch, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	s.sink.Track(ctx, analytics.EventSendSuccess, map[string]string{"phone": phone, "challenge_id": ch.ID})
	return ch, nil
}

func (s *otpService) Verify(ctx context.Context, phone, code string) (string, error) {
	if !e164Pattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ch, err := s.repo.GetLatest(ctx, phone)
	if err != nil {
		return "", err
	}
	if ch == nil {
		s.trackFailure(ctx, phone, "no_challenge")
		return "", ErrNoChallenge
	}
	if ch.Expired(time.Now().UTC()) {
		if !ch.Consumed {
			// Opportunistic cleanup so the sweep never emits a second
			// expired event for this challenge.
			if _, err := s.repo.Consume(ctx, ch.ID); err != nil {
				s.logger.Warn().Err(err).Str("challenge_id", ch.ID).Msg("Failed to consume expired challenge")
			} else {
				s.sink.Track(ctx, analytics.EventExpired, map[string]string{"phone": phone, "challenge_id": ch.ID})
			}
		}
		s.trackFailure(ctx, phone, "expired")
		return "", ErrCodeExpired
	}
	// Exact string comparison keeps leading zeros significant; constant time
	// avoids a timing side channel.
	if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) != 1 {
		s.trackFailure(ctx, phone, "mismatch")
		return "", ErrCodeMismatch
	}
	if ch.Consumed {
		s.trackFailure(ctx, phone, "replay")
		return "", ErrCodeConsumed
	}
	consumed, err := s.repo.Consume(ctx, ch.ID)
	if err != nil {
		return "", err
	}
	if !consumed {
		// Lost the race against a concurrent verify with the same code.
		s.trackFailure(ctx, phone, "replay")
		return "", ErrCodeConsumed
	}
	s.sink.Track(ctx, analytics.EventVerifySuccess, map[string]string{"phone": phone, "challenge_id": ch.ID})
	return ch.Phone, nil
}

func (s *otpService) trackFailure(ctx context.Context, phone, reason string) {
	s.sink.Track(ctx, analytics.EventVerifyFailure, map[string]string{"phone": phone, "reason": reason})
}

const sweepBatchSize = 500

func (s *otpService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.ListExpired(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range expired {
		ch := &expired[i]
		if !ch.Consumed {
			s.sink.Track(ctx, analytics.EventExpired, map[string]string{"phone": ch.Phone, "challenge_id": ch.ID})
		}
		if err := s.repo.Delete(ctx, ch.ID); err != nil {
			s.logger.Error().Err(err).Str("challenge_id", ch.ID).Msg("Failed to delete expired challenge; continuing")
			continue
		}
		count++
	}
	return count, nil
}
