// Package api provides HTTP handlers for the intake API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/symptom-intake/internal/domain"
)

const defaultMaxRequestBodySize = 64 * 1024

// Client-facing messages. Upstream detail is logged, never returned.
const (
	msgEmptyInput    = "input must not be empty"
	msgBusy          = "a turn for this interview is already in progress"
	msgUpstream      = "the interview assistant is unavailable, please try again"
	msgInternal      = "internal error"
	msgInvalidBody   = "invalid JSON body"
	msgBodyTooLarge  = "request body too large"
	msgNotActive     = "interview is not active; start a new one"
	msgNotComplete   = "interview is not complete"
	msgAlreadyActive = "interview already started; reset it first"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-capped JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) error {
	if limit <= 0 {
		limit = defaultMaxRequestBodySize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeDecodeError maps a decodeJSON failure to 400 or 413.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		return
	}
	Error(w, http.StatusBadRequest, msgInvalidBody)
}

// statusFor maps controller errors to an HTTP status and a client-safe message.
func statusFor(err error, invalidStateMsg string) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyInput):
		return http.StatusBadRequest, msgEmptyInput
	case errors.Is(err, domain.ErrSessionBusy):
		return http.StatusConflict, msgBusy
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, invalidStateMsg
	case errors.Is(err, domain.ErrUpstreamReasoning):
		return http.StatusBadGateway, msgUpstream
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error, invalidStateMsg string) {
	status, msg := statusFor(err, invalidStateMsg)
	if status >= http.StatusInternalServerError {
		slog.Error("Interview request failed", "op", op, "status", status, "error", err, "path", r.URL.Path)
	} else {
		slog.Info("Interview request rejected", "op", op, "status", status, "reason", fmt.Sprint(err))
	}
	Error(w, status, msg)
}
