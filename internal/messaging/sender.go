// Package messaging delivers one-time codes through an external SMS/WhatsApp
// gateway. The transport variant is selected once at construction; nothing
// downstream branches on environment.
package messaging

import "context"

// Sender delivers a message body to a destination phone number. Failure must
// be distinguishable from success; the wire protocol is the gateway's concern.
type Sender interface {
	Send(ctx context.Context, phone, body string) error
}
