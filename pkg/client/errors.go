package client

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrUnauthorized       = errors.New("not authorized")
	ErrForbidden          = errors.New("access denied")
	ErrNotFound           = errors.New("not found")

	// ErrNoSession is returned when a refresh is needed but no refresh token
	// is held.
	ErrNoSession = errors.New("no active session")

	// ErrSessionExpired wraps the cause of a failed refresh. Requests that
	// were waiting on that refresh fail with it.
	ErrSessionExpired = errors.New("session expired")
)

// Error is a non-validation failure reported by the API envelope.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api: %s: %s", e.Code, e.Message)
}

// Is lets callers match envelope codes with errors.Is against the package
// sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidCredentials:
		return e.Code == "INVALID_CREDENTIALS"
	case ErrDuplicateEmail:
		return e.Code == "DUPLICATE_EMAIL"
	case ErrUnauthorized:
		return e.Code == "UNAUTHORIZED" || (e.Code == "" && e.StatusCode == http.StatusUnauthorized)
	case ErrForbidden:
		return e.Code == "FORBIDDEN" || (e.Code == "" && e.StatusCode == http.StatusForbidden)
	case ErrNotFound:
		return e.Code == "NOT_FOUND" || (e.Code == "" && e.StatusCode == http.StatusNotFound)
	}
	return false
}

// ValidationError carries field-level problems, keyed by JSON field name.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "api: " + e.Message
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("api: %s (%s)", e.Message, strings.Join(keys, ", "))
}
