package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"app/internal/config"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// PubSubSink publishes events to a Google Pub/Sub topic.
type PubSubSink struct {
	client *pubsub.Client
	topic  string
	logger zerolog.Logger
}

// NewPubSubSink creates a PubSubSink using the GCP project from config.
func NewPubSubSink(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, cfg.GCPProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubSink{
		client: client,
		topic:  cfg.AnalyticsTopic,
		logger: logger.With().Str("service", "PubSubSink").Logger(),
	}, nil
}

type eventPayload struct {
	Event      string            `json:"event"`
	Properties map[string]string `json:"properties,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Track publishes the event without blocking the caller on the publish
// result. Publish failures are logged and dropped.
func (s *PubSubSink) Track(ctx context.Context, event string, properties map[string]string) {
	payload, err := json.Marshal(eventPayload{Event: event, Properties: properties, Timestamp: time.Now().UTC()})
	if err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal analytics event")
		return
	}
	t := s.client.Topic(s.topic)
	result := t.Publish(ctx, &pubsub.Message{Data: payload})
	go func() {
		// Detach from the request context so an aborted request does not
		// cancel an in-flight publish.
		waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := result.Get(waitCtx); err != nil {
			s.logger.Warn().Err(err).Str("event", event).Msg("Dropped analytics event")
		}
	}()
}

// Close releases the underlying Pub/Sub client.
func (s *PubSubSink) Close() error {
	return s.client.Close()
}
