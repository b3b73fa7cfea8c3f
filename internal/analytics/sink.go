// Package analytics emits OTP lifecycle events on a best-effort basis.
// Failures are logged and dropped; they must never affect the operation that
// produced the event.
package analytics

import "context"

// Event names emitted by the OTP subsystem.
const (
	EventSendAttempt   = "send_attempt"
	EventSendSuccess   = "send_success"
	EventSendFailure   = "send_failure"
	EventVerifySuccess = "verify_success"
	EventVerifyFailure = "verify_failure"
	EventExpired       = "expired"
)

// Sink records an event with optional properties. Implementations never
// return an error; delivery is best-effort by contract.
type Sink interface {
	Track(ctx context.Context, event string, properties map[string]string)
}

// NopSink discards all events. Used in tests and when no analytics project
// is configured.
type NopSink struct{}

func (NopSink) Track(context.Context, string, map[string]string) {}
