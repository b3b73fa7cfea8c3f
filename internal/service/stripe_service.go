package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeService manages Stripe integration: checkout/portal sessions on the
// way out, webhook reconciliation on the way in. Each webhook event is
// treated as a full statement of current truth for the fields its type owns,
// so redelivery and mild reordering converge rather than compound.
type StripeService struct {
	cfg         *config.Config
	profileRepo repository.ProfileRepository
	subSvc      SubscriptionService
	logger      zerolog.Logger
	customerMu  keyedMutex
}

// NewStripeService initializes the Stripe key and returns the service with a
// scoped logger.
func NewStripeService(cfg *config.Config, profileRepo repository.ProfileRepository, subSvc SubscriptionService, logger zerolog.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	lg := logger.With().Str("service", "StripeService").Logger()
	return &StripeService{cfg: cfg, profileRepo: profileRepo, subSvc: subSvc, logger: lg}
}

// resolveProfile finds the profile a webhook event refers to, preferring the
// profile_id metadata set at checkout and falling back to the stored Stripe
// customer ID. A nil profile with nil error means the event has no local
// subject and must be dropped, not retried.
func (s *StripeService) resolveProfile(ctx context.Context, metadata map[string]string, customerID string) (*model.ContractorProfile, error) {
	if profileID, ok := metadata["profile_id"]; ok && profileID != "" {
		p, err := s.profileRepo.GetByID(ctx, profileID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	if customerID == "" {
		return nil, nil
	}
	return s.profileRepo.GetByStripeCustomerID(ctx, customerID)
}

// GetOrCreateCustomer ensures a Stripe customer exists for a profile.
func (s *StripeService) GetOrCreateCustomer(ctx context.Context, profile *model.ContractorProfile) (string, error) {
	if profile.StripeCustomerID != nil && *profile.StripeCustomerID != "" {
		return *profile.StripeCustomerID, nil
	}
	params := &stripe.CustomerParams{
		Phone:    stripe.String(profile.Phone),
		Name:     stripe.String(profile.CompanyName),
		Metadata: map[string]string{"profile_id": profile.ID},
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("profile_id", profile.ID).Msg("Failed to create Stripe customer")
		return "", err
	}
	if err := s.profileRepo.UpdateStripeCustomerID(ctx, profile.ID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("profile_id", profile.ID).Msg("Failed to store stripe customer id")
		return "", err
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a Stripe Checkout session for the elevated plan.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, profileID string) (string, error) {
	profile, err := s.profileRepo.GetByID(ctx, profileID)
	if err != nil {
		return "", err
	}
	if profile == nil {
		return "", ErrProfileNotFound
	}
	customerID, err := s.GetOrCreateCustomer(ctx, profile)
	if err != nil {
		return "", err
	}
	sessParams := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(s.cfg.StripePriceElevated), Quantity: stripe.Int64(1)}},
		Mode:               stripe.String(stripe.CheckoutSessionModeSubscription),
		SuccessURL:         stripe.String(s.cfg.StripePortalReturnURL + "?status=success"),
		CancelURL:          stripe.String(s.cfg.StripePortalReturnURL + "?status=cancel"),
		Metadata:           map[string]string{"profile_id": profile.ID},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("profile_id", profileID).Msg("Failed to create Stripe checkout session")
		return "", err
	}
	return sess.URL, nil
}

// CreatePortalSession creates a Stripe Customer Portal session.
func (s *StripeService) CreatePortalSession(ctx context.Context, profileID string) (string, error) {
	profile, err := s.profileRepo.GetByID(ctx, profileID)
	if err != nil {
		return "", err
	}
	if profile == nil || profile.StripeCustomerID == nil || *profile.StripeCustomerID == "" {
		return "", errors.New("no stripe customer for profile")
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*profile.StripeCustomerID),
		ReturnURL: stripe.String(s.cfg.StripePortalReturnURL),
	}
	sess, err := billingsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("profile_id", profileID).Msg("Failed to create Stripe billing portal session")
		return "", err
	}
	return sess.URL, nil
}

// HandleWebhook verifies and processes Stripe webhook events. Unverifiable
// payloads are rejected before any parsing.
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_type", string(event.Type)).Str("event_id", event.ID).Msg("Stripe webhook received")

	if err := s.ApplyBillingEvent(r.Context(), event); err != nil {
		var malformed *malformedEventError
		if errors.As(err, &malformed) {
			http.Error(w, malformed.Error(), http.StatusBadRequest)
			return
		}
		// Transient failure: let Stripe's retry machinery redeliver.
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// malformedEventError marks payloads that will never parse; retrying them is
// pointless.
type malformedEventError struct {
	msg string
}

func (e *malformedEventError) Error() string { return e.msg }

// ApplyBillingEvent reconciles local state with a verified billing event.
// Safe to re-invoke from scratch: every branch is idempotent.
func (s *StripeService) ApplyBillingEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			s.logger.Error().Err(err).Msg("Invalid checkout.session data")
			return &malformedEventError{msg: "invalid checkout.session data"}
		}
		return s.applyCheckoutCompleted(ctx, &cs)
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var ss stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
			s.logger.Error().Err(err).Msg("Invalid subscription data")
			return &malformedEventError{msg: "invalid subscription data"}
		}
		return s.applySubscriptionEvent(ctx, event.Type, &ss)
	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			s.logger.Error().Err(err).Msg("Invalid invoice.payment_succeeded payload")
			return &malformedEventError{msg: "invalid invoice data"}
		}
		return s.applyPaymentSucceeded(ctx, &invoice)
	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			s.logger.Error().Err(err).Msg("Invalid invoice.payment_failed payload")
			return &malformedEventError{msg: "invalid invoice data"}
		}
		return s.applyPaymentFailed(ctx, &invoice)
	default:
		// Forward compatibility: unknown event types are acked, not errors.
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
		return nil
	}
}

func (s *StripeService) applyCheckoutCompleted(ctx context.Context, cs *stripe.CheckoutSession) error {
	profileID := cs.Metadata["profile_id"]
	if profileID == "" {
		s.logger.Warn().Str("session_id", cs.ID).Msg("Checkout session has no profile_id metadata; dropping")
		return nil
	}
	if cs.Customer == nil || cs.Customer.ID == "" {
		s.logger.Warn().Str("session_id", cs.ID).Msg("Checkout session has no customer; dropping")
		return nil
	}
	profile, err := s.profileRepo.GetByID(ctx, profileID)
	if err != nil {
		return err
	}
	if profile == nil {
		// The profile may not exist yet if this webhook raced the checkout
		// response; drop so Stripe does not retry forever.
		s.logger.Warn().Str("profile_id", profileID).Msg("No profile for checkout session; dropping")
		return nil
	}
	if profile.StripeCustomerID != nil && *profile.StripeCustomerID == cs.Customer.ID {
		return nil
	}
	return s.profileRepo.UpdateStripeCustomerID(ctx, profile.ID, cs.Customer.ID)
}

func (s *StripeService) applySubscriptionEvent(ctx context.Context, eventType stripe.EventType, ss *stripe.Subscription) error {
	customerID := ""
	if ss.Customer != nil {
		customerID = ss.Customer.ID
	}
	unlock := s.customerMu.lock(customerID)
	defer unlock()

	profile, err := s.resolveProfile(ctx, ss.Metadata, customerID)
	if err != nil {
		return err
	}
	if profile == nil {
		s.logger.Warn().Str("stripe_customer_id", customerID).Str("subscription_id", ss.ID).Msg("No profile for subscription event; dropping")
		return nil
	}

	tier := s.tierFromItems(ss.Items)
	status := string(ss.Status)
	var periodEnd time.Time
	if ss.Items != nil && len(ss.Items.Data) > 0 {
		periodEnd = time.Unix(ss.Items.Data[0].CurrentPeriodEnd, 0)
	}
	if eventType == "customer.subscription.deleted" {
		tier = model.TierBase
		status = model.SubscriptionCanceled
	}

	rec := &model.SubscriptionRecord{
		ProfileID:              profile.ID,
		ExternalCustomerID:     customerID,
		ExternalSubscriptionID: stripe.String(ss.ID),
		Status:                 status,
		Tier:                   tier,
		CurrentPeriodEnd:       periodEnd,
		CancelAtPeriodEnd:      ss.CancelAtPeriodEnd,
	}
	if err := s.subSvc.Upsert(ctx, rec); err != nil {
		return err
	}
	if err := s.profileRepo.UpdateTier(ctx, profile.ID, tier); err != nil {
		return err
	}
	s.logger.Info().Str("profile_id", profile.ID).Str("tier", tier).Str("status", status).Msg("Reconciled subscription state")
	return nil
}

func (s *StripeService) applyPaymentSucceeded(ctx context.Context, invoice *stripe.Invoice) error {
	reason := string(invoice.BillingReason)
	if reason != "subscription_create" && reason != "subscription_cycle" {
		s.logger.Info().Str("invoice_id", invoice.ID).Str("billing_reason", reason).Msg("Ignoring non-subscription invoice payment")
		return nil
	}
	customerID := ""
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	profile, err := s.resolveProfile(ctx, invoice.Metadata, customerID)
	if err != nil {
		return err
	}
	if profile == nil {
		s.logger.Warn().Str("stripe_customer_id", customerID).Str("invoice_id", invoice.ID).Msg("No profile for paid invoice; dropping")
		return nil
	}
	inserted, err := s.subSvc.RecordPayment(ctx, &model.TransactionRecord{
		ID:               uuid.NewString(),
		ProfileID:        profile.ID,
		AmountCents:      invoice.AmountPaid,
		Type:             model.TransactionTypeSubscription,
		Status:           model.TransactionStatusSucceeded,
		ExternalChargeID: invoice.ID,
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.Info().Str("invoice_id", invoice.ID).Msg("Duplicate payment event; transaction already recorded")
	}
	return nil
}

func (s *StripeService) applyPaymentFailed(ctx context.Context, invoice *stripe.Invoice) error {
	customerID := ""
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	profile, err := s.resolveProfile(ctx, invoice.Metadata, customerID)
	if err != nil {
		return err
	}
	if profile == nil {
		s.logger.Warn().Str("stripe_customer_id", customerID).Str("invoice_id", invoice.ID).Msg("No profile for failed invoice; dropping")
		return nil
	}
	// Recorded for observability only. Downgrade happens exclusively via
	// subscription.updated/deleted since Stripe manages grace periods.
	if err := s.subSvc.MarkPastDue(ctx, profile.ID); err != nil {
		return err
	}
	s.logger.Warn().Str("profile_id", profile.ID).Str("invoice_id", invoice.ID).Msg("Payment failed; subscription marked past_due")
	return nil
}

// tierFromItems derives the profile tier: elevated iff the configured
// elevated price appears among the subscription's items.
func (s *StripeService) tierFromItems(items *stripe.SubscriptionItemList) string {
	if items == nil {
		return model.TierBase
	}
	for _, item := range items.Data {
		if item != nil && item.Price != nil && item.Price.ID == s.cfg.StripePriceElevated {
			return model.TierElevated
		}
	}
	return model.TierBase
}

// keyedMutex serializes webhook writes per Stripe customer so bursts of
// events for one customer cannot interleave.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
