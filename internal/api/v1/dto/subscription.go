package dto

import "time"

// SubscriptionResponseDTO mirrors the reconciled billing state for a profile.
type SubscriptionResponseDTO struct {
	Status            string    `json:"status"`
	Tier              string    `json:"tier"`
	CurrentPeriodEnd  time.Time `json:"current_period_end"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
}

// TransactionResponseDTO is a single financial record.
type TransactionResponseDTO struct {
	ID          string    `json:"id"`
	AmountCents int64     `json:"amount_cents"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
