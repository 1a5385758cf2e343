// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and the mapping from domain errors to status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"kiptrack/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.payload)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"internal","message":"encoding failed"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "not_found", message)
}

// ConflictError creates a 409 Conflict error response.
func ConflictError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusConflict, "conflict", message)
}

// ServiceUnavailableError creates a 503 response asking the client to retry.
func ServiceUnavailableError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, "unavailable", message).
		Header("Retry-After", "5")
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal", message)
}

// validationErrors are reported to the client verbatim as 400s.
var validationErrors = []error{
	core.ErrEmptyStudent,
	core.ErrEmptyDescription,
	core.ErrEmptyCategory,
	core.ErrInvalidQuantity,
	core.ErrInvalidPrice,
	core.ErrInvalidAmount,
	core.ErrInvalidDate,
	core.ErrInvalidStatus,
}

// errorFor maps a service error to its response.
func errorFor(ctx context.Context, err error) *JSONResponseBuilder {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return BadRequestError(v.Error())
		}
	}
	switch {
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, core.ErrAlreadyDecided):
		return ConflictError(err.Error())
	case errors.Is(err, core.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		slog.WarnContext(ctx, "Store unavailable", "error", err)
		return ServiceUnavailableError("store temporarily unavailable")
	default:
		slog.ErrorContext(ctx, "Request failed", "error", err)
		return InternalServerError("internal error")
	}
}
