package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/documentquery/internal/services"
)

// Envelope wraps every response body.
type Envelope struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Data      any        `json:"data"`
	Error     *ErrorBody `json:"error"`
	RequestID string     `json:"requestId,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Type    string       `json:"type"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
	// Detail carries the internal error text in development only.
	Detail string `json:"detail,omitempty"`
}

// FieldError names one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrUnauthorized is returned when the upstream identity header is missing.
var ErrUnauthorized = errors.New("unauthorized")

// errorMapping maps an error kind onto a status code and a public message.
type errorMapping struct {
	sentinel error
	status   int
	errType  string
	code     string
	message  string
}

var errorMappings = []errorMapping{
	{services.ErrValidation, http.StatusBadRequest, "Validation Error", "VALIDATION_ERROR", "Validation failed"},
	{ErrUnauthorized, http.StatusUnauthorized, "Authentication Error", "AUTH_ERROR", "Unauthorized access"},
	{services.ErrNotFound, http.StatusNotFound, "Not Found", "NOT_FOUND", services.MsgFileNotFound},
	{services.ErrServiceUnavailable, http.StatusServiceUnavailable, "Service Unavailable", "SERVICE_UNAVAILABLE", services.MsgServiceUnavailable},
	{services.ErrTimeout, http.StatusGatewayTimeout, "Timeout", "TIMEOUT", "The request timed out"},
}

var internalMapping = errorMapping{
	status:  http.StatusInternalServerError,
	errType: "Server Error",
	code:    "INTERNAL_ERROR",
	message: "Internal server error",
}

func mapError(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			return m
		}
	}
	return internalMapping
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeSuccess(w http.ResponseWriter, r *http.Request, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		RequestID: RequestIDFrom(r.Context()),
	})
}

// writeError maps err onto the envelope. Internal detail is only exposed
// when development is set.
func writeError(w http.ResponseWriter, r *http.Request, err error, development bool) {
	m := mapError(err)
	body := &ErrorBody{Type: m.errType, Code: m.code, Message: m.message}

	var ve *services.ValidationError
	if errors.As(err, &ve) {
		body.Message = ve.Message
		if ve.Field != "" {
			body.Errors = []FieldError{{Field: ve.Field, Message: ve.Message}}
		}
	}
	if development {
		body.Detail = err.Error()
	}

	logCtx := slog.With("requestId", RequestIDFrom(r.Context()), "status", m.status, "path", r.URL.Path)
	if m.status >= http.StatusInternalServerError {
		logCtx.Error("API Error", "error", err)
	} else {
		logCtx.Warn("API Error", "error", err)
	}

	writeJSON(w, m.status, Envelope{
		Success:   false,
		Message:   body.Message,
		Error:     body,
		RequestID: RequestIDFrom(r.Context()),
	})
}
