// Package response writes JSON bodies for handlers that run outside huma:
// the file stream, rate limit rejections and router fallbacks.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	domainerrors "github.com/booksyapp/booksy-server/internal/errors"
)

// Envelope provides a consistent JSON response structure for successes.
type Envelope struct {
	Data    any  `json:"data,omitempty"`
	Success bool `json:"success"`
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a JSON envelope with the given status code.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	write(w, status, Envelope{Success: status < 400, Data: data}, logger)
}

// Success writes a successful JSON response (200 OK).
func Success(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusOK, data, logger)
}

// Error writes an error body with the given status code.
func Error(w http.ResponseWriter, status int, code domainerrors.Code, message string, details any, logger *slog.Logger) {
	write(w, status, ErrorBody{Code: string(code), Message: message, Details: details}, logger)
}

// DomainError writes err with status. Errors outside the taxonomy are
// reported as INTERNAL without leaking their text.
func DomainError(w http.ResponseWriter, status int, err error, logger *slog.Logger) {
	var derr *domainerrors.Error
	if domainerrors.As(err, &derr) {
		Error(w, status, derr.Code, derr.Message, derr.Details, logger)
		return
	}
	if logger != nil {
		logger.Error("Unhandled error", "error", err)
	}
	Error(w, http.StatusInternalServerError, domainerrors.CodeInternal, "internal server error", nil, logger)
}

// Unauthorized writes a 401 response.
func Unauthorized(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusUnauthorized, domainerrors.CodeUnauthorized, message, nil, logger)
}

// TooManyRequests writes a 429 response.
func TooManyRequests(w http.ResponseWriter, logger *slog.Logger) {
	Error(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down", nil, logger)
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusNotFound, domainerrors.CodeNotFound, message, nil, logger)
}

func write(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		if logger != nil {
			logger.Error("Failed to encode JSON response", "error", err)
		}
	}
}
