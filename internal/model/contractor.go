package model

import "time"

// Subscription tiers for a contractor profile.
const (
	TierBase     = "base"
	TierElevated = "elevated"
)

// ContractorIdentity is the stable identity minted on first successful OTP
// verification for a phone number. One identity per verified phone.
type ContractorIdentity struct {
	ID        string    `db:"id" json:"id"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ContractorProfile is the durable per-identity profile. Exactly one profile
// exists per identity id; creation happens on first login, tier mutations
// belong to the subscription reconciler.
type ContractorProfile struct {
	ID                  string    `db:"id" json:"id"`
	IdentityID          string    `db:"identity_id" json:"identity_id"`
	Phone               string    `db:"phone" json:"phone"`
	CompanyName         string    `db:"company_name" json:"company_name"`
	Tier                string    `db:"tier" json:"tier"`
	StripeCustomerID    *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	OnboardingCompleted bool      `db:"onboarding_completed" json:"onboarding_completed"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}
