package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"app/internal/config"
)

func gatewayConfig(baseURL string) *config.Config {
	return &config.Config{
		SMSGatewayURL: baseURL,
		SMSGatewayKey: "test-key",
		SMSSenderID:   "FixItForMe",
		SMSChannel:    "sms",
	}
}

func TestGatewaySenderSend(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewGatewaySender(gatewayConfig(srv.URL))
	if err := sender.Send(context.Background(), "+15551234567", "Your code is 123456"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want Bearer test-key", gotAuth)
	}
	if gotBody["to"] != "+15551234567" || gotBody["from"] != "FixItForMe" || gotBody["channel"] != "sms" {
		t.Errorf("unexpected payload: %v", gotBody)
	}
}

func TestGatewaySenderRejectedMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error": {"message": "unsupported destination"}}`))
	}))
	defer srv.Close()

	sender := NewGatewaySender(gatewayConfig(srv.URL))
	err := sender.Send(context.Background(), "+15551234567", "Your code is 123456")
	if err == nil {
		t.Fatal("expected an error for a rejected message")
	}
	if !strings.Contains(err.Error(), "unsupported destination") {
		t.Errorf("error should carry the gateway message, got: %v", err)
	}
}

func TestGatewaySenderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewGatewaySender(gatewayConfig(srv.URL))
	if err := sender.Send(context.Background(), "+15551234567", "Your code is 123456"); err == nil {
		t.Fatal("expected an error for a 5xx response")
	}
}

func TestGatewaySenderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	sender := NewGatewaySender(gatewayConfig(srv.URL))
	if err := sender.Send(context.Background(), "+15551234567", "Your code is 123456"); err == nil {
		t.Fatal("expected an error when the gateway is unreachable")
	}
}
