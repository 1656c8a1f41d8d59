package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otp-auth-service/internal/service"
	"otp-auth-service/internal/util"
)

type contextKey string

// userIDKey carries the authenticated user's ID through the request context.
const userIDKey contextKey = "user_id"

// UserIDFromContext returns the authenticated user ID set by RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// AuthHandler serves the login and verification endpoints and owns the
// bearer-token middleware.
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

type loginRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type loginUser struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
}

type loginResponse struct {
	User     loginUser `json:"user"`
	NextPage string    `json:"next_page"`
	Message  string    `json:"message"`
}

// Login issues a one-time code for the phone number, creating the user on
// first contact. Always 201 on success, for both new and returning users.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.authService.RequestLogin(r.Context(), req.PhoneNumber)
	if err != nil {
		writeError(w, statusForError(err), messageForError(err))
		return
	}

	writeJSON(w, http.StatusCreated, loginResponse{
		User: loginUser{
			ID:          result.User.ID,
			PhoneNumber: result.User.PhoneNumber,
		},
		NextPage: result.NextPage,
		Message:  result.Message,
	})

	h.logger.Info("Login requested via HTTP",
		util.String("user_id", result.User.ID),
		util.Bool("created", result.Created),
		util.Duration("duration", time.Since(startTime)),
	)
}

type verifyRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

type verifyResponse struct {
	Token string `json:"token"`
}

// Verify checks the submitted code and returns the user's bearer token.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user ID is required")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.authService.VerifyCode(r.Context(), userID, req.PhoneNumber, req.Code)
	if err != nil {
		writeError(w, statusForError(err), messageForError(err))
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Token: token.Key})

	h.logger.Info("Code verified via HTTP",
		util.String("user_id", userID),
		util.Duration("duration", time.Since(startTime)),
	)
}

// RequireAuth authenticates the request from its bearer token and stores
// the user ID in the context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		var key string
		switch {
		case strings.HasPrefix(header, "Bearer "):
			key = strings.TrimPrefix(header, "Bearer ")
		case strings.HasPrefix(header, "Token "):
			// Accepted for compatibility with older clients.
			key = strings.TrimPrefix(header, "Token ")
		default:
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := h.authService.ResolveToken(r.Context(), strings.TrimSpace(key))
		if err != nil {
			if errors.Is(err, service.ErrUserDisabled) {
				writeError(w, http.StatusForbidden, "account disabled")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
