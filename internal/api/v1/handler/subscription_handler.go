package handler

import (
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// SubscriptionHandler handles subscription-related endpoints.
type SubscriptionHandler struct {
	stripeSvc *service.StripeService
	subSvc    service.SubscriptionService
	logger    zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(stripeSvc *service.StripeService, subSvc service.SubscriptionService, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{stripeSvc: stripeSvc, subSvc: subSvc, logger: logger}
}

// RegisterRoutes registers the subscription endpoints. The billing webhook is
// mounted without auth middleware; it authenticates via its signature header.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.Handle("/subscriptions/me", authMiddleware(http.HandlerFunc(h.getSubscription)))
	mux.Handle("/subscriptions/transactions", authMiddleware(http.HandlerFunc(h.listTransactions)))
	mux.Handle("/subscriptions/checkout", authMiddleware(http.HandlerFunc(h.checkout)))
	mux.Handle("/subscriptions/portal", authMiddleware(http.HandlerFunc(h.portal)))
	mux.Handle("/billing/webhook", http.HandlerFunc(h.stripeSvc.HandleWebhook))
}

func (h *SubscriptionHandler) getSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	rec, err := h.subSvc.Get(r.Context(), profileID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to fetch subscription")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "no subscription", http.StatusNotFound)
		return
	}
	writeJSON(w, h.logger, dto.SubscriptionResponseDTO{
		Status:            rec.Status,
		Tier:              rec.Tier,
		CurrentPeriodEnd:  rec.CurrentPeriodEnd,
		CancelAtPeriodEnd: rec.CancelAtPeriodEnd,
	})
}

const transactionPageSize = 50

func (h *SubscriptionHandler) listTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	txs, err := h.subSvc.ListTransactions(r.Context(), profileID, transactionPageSize)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list transactions")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	out := make([]dto.TransactionResponseDTO, 0, len(txs))
	for _, t := range txs {
		out = append(out, dto.TransactionResponseDTO{
			ID:          t.ID,
			AmountCents: t.AmountCents,
			Type:        t.Type,
			Status:      t.Status,
			CreatedAt:   t.CreatedAt,
		})
	}
	writeJSON(w, h.logger, out)
}

func (h *SubscriptionHandler) checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	url, err := h.stripeSvc.CreateCheckoutSession(r.Context(), profileID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create checkout session")
		http.Error(w, "failed to create checkout session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, map[string]string{"url": url})
}

func (h *SubscriptionHandler) portal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	url, err := h.stripeSvc.CreatePortalSession(r.Context(), profileID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create portal session")
		http.Error(w, "failed to create portal session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, map[string]string{"url": url})
}
