package model

import "time"

// Transaction types and statuses.
const (
	TransactionTypeSubscription = "subscription_payment"
	TransactionStatusSucceeded  = "succeeded"
	TransactionStatusFailed     = "failed"
)

// TransactionRecord is an append-only financial record. One row per
// successfully processed payment event, deduplicated on the external
// charge reference so webhook redelivery never double-books.
type TransactionRecord struct {
	ID               string    `db:"id" json:"id"`
	ProfileID        string    `db:"profile_id" json:"profile_id"`
	AmountCents      int64     `db:"amount_cents" json:"amount_cents"`
	Type             string    `db:"type" json:"type"`
	Status           string    `db:"status" json:"status"`
	ExternalChargeID string    `db:"external_charge_id" json:"external_charge_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
