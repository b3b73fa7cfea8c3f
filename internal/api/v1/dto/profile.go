package dto

import "time"

// ProfileResponseDTO is returned in API responses.
type ProfileResponseDTO struct {
	ProfileID           string    `json:"profile_id"`
	Phone               string    `json:"phone"`
	CompanyName         string    `json:"company_name"`
	Tier                string    `json:"tier"`
	OnboardingCompleted bool      `json:"onboarding_completed"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// OnboardingDTO completes a contractor's onboarding.
type OnboardingDTO struct {
	CompanyName string `json:"company_name" validate:"required,min=2,max=120"`
}
