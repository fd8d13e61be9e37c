package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/MrEthical07/carebook"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

const (
	msgBadRequest   = "Invalid request body"
	msgUnauthorized = "Unauthorized"
	msgServerError  = "Something went wrong. Please try again later."
)

type errorMapping struct {
	err     error
	status  int
	message string
}

// Order matters only for errors that wrap more than one sentinel.
var errorMappings = []errorMapping{
	{carebook.ErrInvalidEmail, http.StatusBadRequest, "Please provide a valid email address"},
	{carebook.ErrInvalidCodeFormat, http.StatusBadRequest, "The code must be 6 digits"},
	{carebook.ErrInvalidRequest, http.StatusBadRequest, "Please check the submitted fields"},
	{carebook.ErrRoleInvalid, http.StatusBadRequest, "Role must be user, counselor or admin"},
	{carebook.ErrCodeInvalid, http.StatusUnauthorized, "Invalid or expired code"},
	{carebook.ErrCodeExpired, http.StatusUnauthorized, "Invalid or expired code"},
	{carebook.ErrCodeAttemptsExceeded, http.StatusUnauthorized, "Too many attempts. Please request a new code"},
	{carebook.ErrCodeUsed, http.StatusUnauthorized, "This code has already been used"},
	{carebook.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{carebook.ErrTokenInvalid, http.StatusUnauthorized, msgUnauthorized},
	{carebook.ErrMagicLinkInvalid, http.StatusBadRequest, "Invalid or expired magic link"},
	{carebook.ErrUserNotFound, http.StatusNotFound, "No account found for this email"},
	{carebook.ErrAccountExists, http.StatusConflict, "An account with this email already exists"},
	{carebook.ErrDeliveryFailed, http.StatusInternalServerError, "We could not send the email. Please try again later."},
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *carebook.RateLimitError
	if errors.As(err, &rl) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"message":       rateLimitMessage(rl),
			"remainingTime": int64(math.Ceil(rl.RemainingTime.Seconds())),
		})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeMessage(w, m.status, m.message)
			return
		}
	}

	s.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeMessage(w, http.StatusInternalServerError, msgServerError)
}

func rateLimitMessage(rl *carebook.RateLimitError) string {
	if rl.Message != "" {
		return rl.Message
	}
	return "Too many requests. Please try again later."
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
