// Package apierror carries caller-visible failures from services to the
// HTTP layer without leaking internal detail.
package apierror

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeBadRequest         = "BAD_REQUEST"
	CodeInternal           = "INTERNAL_ERROR"
)

type APIError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    string            `json:"details,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	HTTPStatus int               `json:"-"`
	cause      error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(keys, ", "))
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the domain sentinel so callers can still match with errors.Is.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

// Wrap builds an APIError that unwraps to cause.
func Wrap(cause error, code string, message string, status int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: status, cause: cause}
}

// Validation reports field-level input problems. Fields maps the JSON field
// name to a human readable reason.
func Validation(cause error, fields map[string]string) *APIError {
	return &APIError{
		Code:       CodeValidation,
		Message:    "request validation failed",
		Fields:     fields,
		HTTPStatus: http.StatusBadRequest,
		cause:      cause,
	}
}

// Unauthorized is the single response shape for every token and session
// failure; which check failed is never disclosed.
func Unauthorized(cause error) *APIError {
	return Wrap(cause, CodeUnauthorized, "not authorized", http.StatusUnauthorized)
}
