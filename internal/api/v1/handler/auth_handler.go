package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/service"
	"app/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const sessionTTL = 24 * time.Hour

// AuthHandler handles the OTP login flow.
type AuthHandler struct {
	otpSvc     service.OTPService
	profileSvc service.ProfileService
	jwtSecret  string
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(otpSvc service.OTPService, profileSvc service.ProfileService, jwtSecret string, v *validator.Validate, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{otpSvc: otpSvc, profileSvc: profileSvc, jwtSecret: jwtSecret, validate: v, logger: logger}
}

// RegisterRoutes mounts v1 auth routes.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/auth/otp", http.HandlerFunc(h.requestOTP))
	mux.Handle("/auth/verify", http.HandlerFunc(h.verifyOTP))
}

func (h *AuthHandler) requestOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req dto.OTPRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "invalid phone number", http.StatusBadRequest)
		return
	}
	ch, err := h.otpSvc.Issue(r.Context(), req.Phone)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidPhone):
		http.Error(w, "invalid phone number", http.StatusBadRequest)
		return
	case errors.Is(err, service.ErrRateLimited):
		http.Error(w, "too many codes requested, try again later", http.StatusTooManyRequests)
		return
	case errors.Is(err, service.ErrTransportUnavailable):
		// The challenge is persisted; the client may simply retry.
		http.Error(w, "message delivery failed, try again", http.StatusBadGateway)
		return
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request timed out, try again", http.StatusGatewayTimeout)
		return
	default:
		h.logger.Error().Err(err).Msg("failed to issue OTP")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, dto.OTPRequestResponseDTO{ExpiresAt: ch.ExpiresAt})
}

func (h *AuthHandler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req dto.OTPVerifyDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "invalid phone number or code", http.StatusBadRequest)
		return
	}
	phone, err := h.otpSvc.Verify(r.Context(), req.Phone, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPhone):
			http.Error(w, "invalid phone number", http.StatusBadRequest)
		case errors.Is(err, service.ErrNoChallenge),
			errors.Is(err, service.ErrCodeExpired),
			errors.Is(err, service.ErrCodeMismatch),
			errors.Is(err, service.ErrCodeConsumed):
			// The precise failure kind stays in logs; the client only learns
			// the code did not work.
			h.logger.Info().Err(err).Str("phone", req.Phone).Msg("OTP verification rejected")
			http.Error(w, "invalid or expired code", http.StatusUnauthorized)
		case errors.Is(err, context.DeadlineExceeded):
			http.Error(w, "request timed out, try again", http.StatusGatewayTimeout)
		default:
			h.logger.Error().Err(err).Msg("failed to verify OTP")
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	ident, err := h.profileSvc.EnsureIdentity(r.Context(), phone)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to ensure identity after verification")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	profile, err := h.profileSvc.EnsureProfile(r.Context(), ident.ID, phone)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to provision profile after verification")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	token, err := util.GenerateJWT(profile.ID, phone, h.jwtSecret, sessionTTL)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to mint session token")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, dto.OTPVerifyResponseDTO{Token: token, ProfileID: profile.ID})
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
