package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ProfileHandler handles contractor profile endpoints.
type ProfileHandler struct {
	profileSvc service.ProfileService
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(profileSvc service.ProfileService, v *validator.Validate, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{profileSvc: profileSvc, validate: v, logger: logger}
}

// RegisterRoutes mounts v1 contractor routes.
func (h *ProfileHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/contractors/me", authMw(http.HandlerFunc(h.getProfile)))
	mux.Handle("/contractors/me/onboarding", authMw(http.HandlerFunc(h.completeOnboarding)))
}

func profileIDFromContext(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(middleware.ProfileContextKey).(string)
	return id, ok && id != ""
}

func (h *ProfileHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	profile, err := h.profileSvc.Get(r.Context(), profileID)
	if err != nil {
		if errors.Is(err, service.ErrProfileNotFound) {
			http.Error(w, "profile not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Msg("failed to fetch profile")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, toProfileDTO(profile))
}

func (h *ProfileHandler) completeOnboarding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.NotFound(w, r)
		return
	}
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.OnboardingDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.profileSvc.CompleteOnboarding(r.Context(), profileID, req.CompanyName); err != nil {
		h.logger.Error().Err(err).Msg("failed to complete onboarding")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toProfileDTO(p *model.ContractorProfile) dto.ProfileResponseDTO {
	return dto.ProfileResponseDTO{
		ProfileID:           p.ID,
		Phone:               p.Phone,
		CompanyName:         p.CompanyName,
		Tier:                p.Tier,
		OnboardingCompleted: p.OnboardingCompleted,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}
