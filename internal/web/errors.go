package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/notepid/twilight_forum/internal/domain"
)

func errorBody(code, message string, retryAfter int) domain.ErrorResponse {
	return domain.ErrorResponse{Error: code, Message: message, RetryAfter: retryAfter}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody(code, message, 0))
}

var errBodyTooLarge = errors.New("request body too large")

var errorTable = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrWeakPassword, http.StatusBadRequest, "weak_password"},
	{domain.ErrPasswordMismatch, http.StatusBadRequest, "password_mismatch"},
	{domain.ErrValidation, http.StatusBadRequest, "validation_error"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{domain.ErrAuthRequired, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrUsernameTaken, http.StatusConflict, "username_taken"},
	{domain.ErrVerificationFailed, http.StatusServiceUnavailable, "verification_failed"},
	{errBodyTooLarge, http.StatusRequestEntityTooLarge, "too_large"},
}

// writeError maps err onto the error taxonomy. Only the sentinel text is
// sent to clients; wrapped detail stays in the logs.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		writeJSONError(w, http.StatusBadRequest, "validation_error", ve.Message)
		return
	}
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			writeJSONError(w, e.status, e.code, e.target.Error())
			return
		}
	}
	slog.Error("request failed",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeJSONError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
}
