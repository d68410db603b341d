// Package http exposes the trip expense service as a JSON API.
//
// This file implements the Builder Pattern for JSON responses and the single
// place where domain errors are mapped to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"tripsplit/internal/core"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.payload)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse creates the standard error envelope.
func ErrorResponse(statusCode int, code, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		JSON(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", message)
}

// UnauthorizedError creates a 401 response for requests without an identity.
func UnauthorizedError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, "unauthenticated", message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError() *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal", "internal server error")
}

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{core.ErrInvalidSplit, http.StatusUnprocessableEntity, "invalid_split"},
	{core.ErrSplitMismatch, http.StatusUnprocessableEntity, "split_mismatch"},
	{core.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{core.ErrInvalidCurrency, http.StatusUnprocessableEntity, "invalid_currency"},
	{core.ErrEmptyDescription, http.StatusUnprocessableEntity, "empty_description"},
	{core.ErrUnsupportedCurrency, http.StatusNotFound, "unsupported_currency"},
	{core.ErrTripNotFound, http.StatusNotFound, "trip_not_found"},
	{core.ErrNotTripMember, http.StatusForbidden, "not_trip_member"},
	{core.ErrUnknownMember, http.StatusConflict, "unknown_member"},
	{core.ErrDuplicateMember, http.StatusConflict, "duplicate_member"},
	{core.ErrInvalidTrip, http.StatusUnprocessableEntity, "invalid_trip"},
}

// statusForError maps a service error to a status and error code. Unknown
// errors are internal.
func statusForError(err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// FromError builds the error response for a service error. Internal errors
// never leak their message.
func FromError(err error) *ResponseBuilder {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		return InternalServerError()
	}
	return ErrorResponse(status, code, err.Error())
}
