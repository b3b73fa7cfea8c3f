package model

import "time"

// Subscription statuses mirrored from the billing provider.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
	SubscriptionUnpaid   = "unpaid"
)

// SubscriptionRecord mirrors the most recent billing-provider state for a
// profile. Created and updated exclusively by the subscription reconciler.
type SubscriptionRecord struct {
	ProfileID              string    `db:"profile_id" json:"profile_id"`
	ExternalCustomerID     string    `db:"external_customer_id" json:"external_customer_id"`
	ExternalSubscriptionID *string   `db:"external_subscription_id" json:"external_subscription_id,omitempty"`
	Status                 string    `db:"status" json:"status"`
	Tier                   string    `db:"tier" json:"tier"`
	CurrentPeriodEnd       time.Time `db:"current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd      bool      `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}
