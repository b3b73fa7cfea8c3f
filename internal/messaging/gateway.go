package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"app/internal/config"
)

// GatewaySender sends messages through an HTTP JSON messaging gateway.
type GatewaySender struct {
	client  *http.Client
	baseURL string
	apiKey  string
	sender  string
	channel string
}

// NewGatewaySender creates a Sender backed by the configured gateway.
func NewGatewaySender(cfg *config.Config) *GatewaySender {
	return &GatewaySender{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: cfg.SMSGatewayURL,
		apiKey:  cfg.SMSGatewayKey,
		sender:  cfg.SMSSenderID,
		channel: cfg.SMSChannel,
	}
}

// Send posts the message to the gateway and treats any non-2xx response as a
// delivery failure.
func (g *GatewaySender) Send(ctx context.Context, phone, body string) error {
	requestBody := map[string]string{
		"to":      phone,
		"from":    g.sender,
		"channel": g.channel,
		"body":    body,
	}
	bodyJSON, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/messages", bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
		}
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error.Message != "" {
			return fmt.Errorf("gateway rejected message: %s", errorResp.Error.Message)
		}
		return fmt.Errorf("gateway returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
