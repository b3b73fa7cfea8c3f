package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"app/internal/config"
	"app/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
)

type fakeSubscriptionRepo struct {
	mu        sync.Mutex
	byProfile map[string]*model.SubscriptionRecord
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{byProfile: make(map[string]*model.SubscriptionRecord)}
}

func (r *fakeSubscriptionRepo) Upsert(_ context.Context, rec *model.SubscriptionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	cp.UpdatedAt = time.Now().UTC()
	r.byProfile[rec.ProfileID] = &cp
	return nil
}

func (r *fakeSubscriptionRepo) UpdateStatus(_ context.Context, profileID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byProfile[profileID]; ok {
		rec.Status = status
	}
	return nil
}

func (r *fakeSubscriptionRepo) GetByProfileID(_ context.Context, profileID string) (*model.SubscriptionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byProfile[profileID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

type fakeTransactionRepo struct {
	mu       sync.Mutex
	byCharge map[string]model.TransactionRecord
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{byCharge: make(map[string]model.TransactionRecord)}
}

func (r *fakeTransactionRepo) InsertIfAbsent(_ context.Context, t *model.TransactionRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCharge[t.ExternalChargeID]; ok {
		return false, nil
	}
	cp := *t
	cp.CreatedAt = time.Now().UTC()
	r.byCharge[t.ExternalChargeID] = cp
	return true, nil
}

func (r *fakeTransactionRepo) ListByProfileID(_ context.Context, profileID string, limit int) ([]model.TransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TransactionRecord
	for _, t := range r.byCharge {
		if t.ProfileID == profileID {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stripeFixture struct {
	svc         *StripeService
	profileRepo *fakeProfileRepo
	subRepo     *fakeSubscriptionRepo
	txRepo      *fakeTransactionRepo
	profile     *model.ContractorProfile
}

const (
	testCustomerID    = "cus_test1"
	testElevatedPrice = "price_elevated"
)

func newStripeFixture(t *testing.T) *stripeFixture {
	t.Helper()
	cfg := &config.Config{
		StripePriceElevated: testElevatedPrice,
		StripeWebhookSecret: "whsec_test",
	}
	profileRepo := newFakeProfileRepo()
	subRepo := newFakeSubscriptionRepo()
	txRepo := newFakeTransactionRepo()
	subSvc := NewSubscriptionService(subRepo, txRepo, zerolog.Nop())
	svc := NewStripeService(cfg, profileRepo, subSvc, zerolog.Nop())

	profile := &model.ContractorProfile{
		ID:         uuid.NewString(),
		IdentityID: uuid.NewString(),
		Phone:      testPhone,
		Tier:       model.TierBase,
	}
	if _, err := profileRepo.CreateIfAbsent(context.Background(), profile); err != nil {
		t.Fatal(err)
	}
	if err := profileRepo.UpdateStripeCustomerID(context.Background(), profile.ID, testCustomerID); err != nil {
		t.Fatal(err)
	}
	return &stripeFixture{svc: svc, profileRepo: profileRepo, subRepo: subRepo, txRepo: txRepo, profile: profile}
}

func billingEvent(eventType stripe.EventType, raw string) stripe.Event {
	return stripe.Event{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func subscriptionRaw(customerID, priceID, status string) string {
	return fmt.Sprintf(`{
		"id": "sub_test1",
		"status": %q,
		"cancel_at_period_end": false,
		"customer": {"id": %q},
		"items": {"data": [{"price": {"id": %q}, "current_period_end": 1893456000}]}
	}`, status, customerID, priceID)
}

func invoiceRaw(customerID, invoiceID, billingReason string, amountPaid int64) string {
	return fmt.Sprintf(`{
		"id": %q,
		"customer": {"id": %q},
		"billing_reason": %q,
		"amount_paid": %d
	}`, invoiceID, customerID, billingReason, amountPaid)
}

func TestSubscriptionUpdatedElevatesTier(t *testing.T) {
	f := newStripeFixture(t)

	event := billingEvent("customer.subscription.updated", subscriptionRaw(testCustomerID, testElevatedPrice, "active"))
	if err := f.svc.ApplyBillingEvent(context.Background(), event); err != nil {
		t.Fatalf("ApplyBillingEvent returned error: %v", err)
	}

	profile, _ := f.profileRepo.GetByID(context.Background(), f.profile.ID)
	if profile.Tier != model.TierElevated {
		t.Errorf("profile tier = %q, want %q", profile.Tier, model.TierElevated)
	}
	rec, _ := f.subRepo.GetByProfileID(context.Background(), f.profile.ID)
	if rec == nil {
		t.Fatal("expected subscription record")
	}
	if rec.Status != model.SubscriptionActive || rec.Tier != model.TierElevated {
		t.Errorf("record = status %q tier %q, want active/elevated", rec.Status, rec.Tier)
	}
	if rec.ExternalSubscriptionID == nil || *rec.ExternalSubscriptionID != "sub_test1" {
		t.Errorf("external subscription id not mirrored: %v", rec.ExternalSubscriptionID)
	}
	if rec.CurrentPeriodEnd.Unix() != 1893456000 {
		t.Errorf("period end = %v, want unix 1893456000", rec.CurrentPeriodEnd)
	}
}

func TestSubscriptionWithUnknownPriceStaysBase(t *testing.T) {
	f := newStripeFixture(t)

	event := billingEvent("customer.subscription.updated", subscriptionRaw(testCustomerID, "price_other", "active"))
	if err := f.svc.ApplyBillingEvent(context.Background(), event); err != nil {
		t.Fatalf("ApplyBillingEvent returned error: %v", err)
	}
	profile, _ := f.profileRepo.GetByID(context.Background(), f.profile.ID)
	if profile.Tier != model.TierBase {
		t.Errorf("profile tier = %q, want %q", profile.Tier, model.TierBase)
	}
}

func TestSubscriptionDeletedDowngrades(t *testing.T) {
	f := newStripeFixture(t)

	up := billingEvent("customer.subscription.updated", subscriptionRaw(testCustomerID, testElevatedPrice, "active"))
	if err := f.svc.ApplyBillingEvent(context.Background(), up); err != nil {
		t.Fatal(err)
	}
	down := billingEvent("customer.subscription.deleted", subscriptionRaw(testCustomerID, testElevatedPrice, "canceled"))
	if err := f.svc.ApplyBillingEvent(context.Background(), down); err != nil {
		t.Fatalf("ApplyBillingEvent returned error: %v", err)
	}

	profile, _ := f.profileRepo.GetByID(context.Background(), f.profile.ID)
	if profile.Tier != model.TierBase {
		t.Errorf("profile tier after deletion = %q, want %q", profile.Tier, model.TierBase)
	}
	rec, _ := f.subRepo.GetByProfileID(context.Background(), f.profile.ID)
	if rec.Status != model.SubscriptionCanceled {
		t.Errorf("record status = %q, want %q", rec.Status, model.SubscriptionCanceled)
	}
}

func TestSubscriptionEventRedeliveryConverges(t *testing.T) {
	f := newStripeFixture(t)

	event := billingEvent("customer.subscription.updated", subscriptionRaw(testCustomerID, testElevatedPrice, "active"))
	for i := 0; i < 3; i++ {
		if err := f.svc.ApplyBillingEvent(context.Background(), event); err != nil {
			t.Fatalf("redelivery %d returned error: %v", i, err)
		}
	}
	if n := len(f.subRepo.byProfile); n != 1 {
		t.Errorf("expected one subscription row, got %d", n)
	}
}

func TestPaymentSucceededRecordsOnce(t *testing.T) {
	f := newStripeFixture(t)

	event := billingEvent("invoice.payment_succeeded", invoiceRaw(testCustomerID, "in_test1", "subscription_cycle", 9900))
	for i := 0; i < 2; i++ {
		if err := f.svc.ApplyBillingEvent(context.Background(), event); err != nil {
			t.Fatalf("delivery %d returned error: %v", i, err)
		}
	}

	txs, err := f.txRepo.ListByProfileID(context.Background(), f.profile.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected exactly one transaction, got %d", len(txs))
	}
	tx := txs[0]
	if tx.AmountCents != 9900 || tx.ExternalChargeID != "in_test1" || tx.Status != model.TransactionStatusSucceeded {
		t.Errorf("unexpected transaction: %+v", tx)
	}
}

func TestPaymentSucceededIgnoresOneOffInvoices(t *testing.T) {
	f := newStripeFixture(t)

	event := billingEvent("invoice.payment_succeeded", invoiceRaw(testCustomerID, "in_manual", "manual", 500))
	if err := f.svc.ApplyBillingEvent(context.Background(), event); err != nil {
		t.Fatalf("ApplyBillingEvent returned error: %v", err)
	}
	txs, _ := f.txRepo.ListByProfileID(context.Background(), f.profile.ID, 10)
	if len(txs) != 0 {
		t.Errorf("expected no transactions for a one-off invoice, got %d", len(txs))
	}
}

func TestPaymentFailedMarksPastDueOnly(t *testing.T) {
	f := newStripeFixture(t)

	up := billingEvent("customer.subscription.updated", subscriptionRaw(testCustomerID, testElevatedPrice, "active"))
	if err := f.svc.ApplyBillingEvent(context.Background(), up); err != nil {
		t.Fatal(err)
	}
	failed := billingEvent("invoice.payment_failed", invoiceRaw(testCustomerID, "in_failed", "subscription_cycle", 9900))
	if err := f.svc.ApplyBillingEvent(context.Background(), failed); err != nil {
		t.Fatalf("ApplyBillingEvent returned error: %v", err)
	}

	rec, _ := f.subRepo.GetByProfileID(context.Background(), f.profile.ID)
	if rec.Status != model.SubscriptionPastDue {
		t.Errorf("record status = %q, want %q", rec.Status, model.SubscriptionPastDue)
	}
	// The tier only moves on subscription.updated/deleted.
	profile, _ := f.profileRepo.GetByID(context.Background(), f.profile.ID)
	if profile.Tier != model.TierElevated {
		t.Errorf("profile tier = %q, want %q after payment failure", profile.Tier, model.TierElevated)
	}
}

func TestEventForUnknownCustomerDropped(t *testing.T) {
	f := newStripeFixture(t)

	event := billingEvent("customer.subscription.updated", subscriptionRaw("cus_stranger", testElevatedPrice, "active"))
	if err := f.svc.ApplyBillingEvent(context.Background(), event); err != nil {
		t.Fatalf("expected unknown customer to be dropped, got error: %v", err)
	}
	if n := len(f.subRepo.byProfile); n != 0 {
		t.Errorf("expected no subscription rows, got %d", n)
	}
}

func TestUnknownEventTypeAcked(t *testing.T) {
	f := newStripeFixture(t)
	event := billingEvent("invoice.finalized", `{"id": "in_x"}`)
	if err := f.svc.ApplyBillingEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown event types must be acked, got error: %v", err)
	}
}

func TestMalformedEventRejectedAsPermanent(t *testing.T) {
	f := newStripeFixture(t)
	event := billingEvent("customer.subscription.updated", `{"id": `)
	err := f.svc.ApplyBillingEvent(context.Background(), event)
	var malformed *malformedEventError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected malformedEventError, got %v", err)
	}
}

func TestCheckoutCompletedLinksCustomer(t *testing.T) {
	f := newStripeFixture(t)

	// A fresh profile with no Stripe customer yet.
	fresh := &model.ContractorProfile{
		ID:         uuid.NewString(),
		IdentityID: uuid.NewString(),
		Phone:      "+15559876543",
		Tier:       model.TierBase,
	}
	if _, err := f.profileRepo.CreateIfAbsent(context.Background(), fresh); err != nil {
		t.Fatal(err)
	}

	raw := fmt.Sprintf(`{
		"id": "cs_test1",
		"customer": {"id": "cus_new"},
		"metadata": {"profile_id": %q}
	}`, fresh.ID)
	event := billingEvent("checkout.session.completed", raw)
	if err := f.svc.ApplyBillingEvent(context.Background(), event); err != nil {
		t.Fatalf("ApplyBillingEvent returned error: %v", err)
	}

	profile, _ := f.profileRepo.GetByID(context.Background(), fresh.ID)
	if profile.StripeCustomerID == nil || *profile.StripeCustomerID != "cus_new" {
		t.Errorf("customer not linked: %v", profile.StripeCustomerID)
	}
	// Redelivery is a no-op.
	if err := f.svc.ApplyBillingEvent(context.Background(), event); err != nil {
		t.Fatalf("redelivered checkout event returned error: %v", err)
	}
}

func signWebhookPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestHandleWebhookSignature(t *testing.T) {
	f := newStripeFixture(t)
	payload := []byte(`{"id": "evt_1", "type": "invoice.finalized", "data": {"object": {"id": "in_x"}}}`)

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/billing/webhook", strings.NewReader(string(payload)))
		req.Header.Set("Stripe-Signature", signWebhookPayload(payload, "whsec_test", time.Now()))
		rr := httptest.NewRecorder()
		f.svc.HandleWebhook(rr, req)
		if rr.Code != 200 {
			t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/billing/webhook", strings.NewReader(string(payload)))
		req.Header.Set("Stripe-Signature", signWebhookPayload(payload, "whsec_wrong", time.Now()))
		rr := httptest.NewRecorder()
		f.svc.HandleWebhook(rr, req)
		if rr.Code != 400 {
			t.Fatalf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("missing signature", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/billing/webhook", strings.NewReader(string(payload)))
		rr := httptest.NewRecorder()
		f.svc.HandleWebhook(rr, req)
		if rr.Code != 400 {
			t.Fatalf("status = %d, want 400", rr.Code)
		}
	})
}
