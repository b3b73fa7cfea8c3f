package messaging

import (
	"context"

	"github.com/rs/zerolog"
)

// SandboxSender logs messages instead of delivering them. Used in development
// where no gateway credentials are configured.
type SandboxSender struct {
	logger zerolog.Logger
}

// NewSandboxSender creates a log-only Sender.
func NewSandboxSender(logger zerolog.Logger) *SandboxSender {
	return &SandboxSender{logger: logger.With().Str("sender", "sandbox").Logger()}
}

func (s *SandboxSender) Send(_ context.Context, phone, body string) error {
	s.logger.Info().Str("phone", phone).Str("body", body).Msg("Sandbox message (not delivered)")
	return nil
}
