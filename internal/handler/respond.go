package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"otp-auth-service/internal/service"
	"otp-auth-service/internal/util"
)

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// statusForError maps service sentinels to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserDisabled):
		return http.StatusForbidden
	case errors.Is(err, service.ErrAlreadyRedeemed):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidReferralCode):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// messageForError picks the caller-facing text. Internal errors are never
// echoed back.
func messageForError(err error) string {
	if statusForError(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
