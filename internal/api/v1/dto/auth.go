package dto

import "time"

// OTPRequestDTO asks for a one-time code to be sent to a phone number.
type OTPRequestDTO struct {
	Phone string `json:"phone" validate:"required,e164"`
}

// OTPRequestResponseDTO is returned after a code has been issued.
type OTPRequestResponseDTO struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// OTPVerifyDTO submits a received code for verification.
type OTPVerifyDTO struct {
	Phone string `json:"phone" validate:"required,e164"`
	Code  string `json:"code" validate:"required,min=4,max=10"`
}

// OTPVerifyResponseDTO carries the session token minted on success.
type OTPVerifyResponseDTO struct {
	Token     string `json:"token"`
	ProfileID string `json:"profile_id"`
}
