package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"otp-auth-service/internal/service"
	"otp-auth-service/internal/util"
)

// ProfileHandler serves the authenticated profile endpoints.
type ProfileHandler struct {
	profileService *service.ProfileService
	logger         *zap.Logger
}

func NewProfileHandler(profileService *service.ProfileService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		profileService: profileService,
		logger:         logger,
	}
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	profile, err := h.profileService.Get(r.Context(), userID)
	if err != nil {
		writeError(w, statusForError(err), messageForError(err))
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req service.ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.profileService.Update(r.Context(), userID, &req)
	if err != nil {
		writeError(w, statusForError(err), messageForError(err))
		return
	}

	writeJSON(w, http.StatusOK, profile)

	h.logger.Info("Profile updated via HTTP",
		util.String("user_id", userID),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *ProfileHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	results, err := h.profileService.Search(r.Context(), query)
	if err != nil {
		writeError(w, statusForError(err), messageForError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"total":   len(results),
	})

	h.logger.Debug("Profile search via HTTP", zap.Int("results", len(results)))
}
