package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go-realestate/internal/model"
)

// Timeout bounds each API request. On expiry the client receives 503 with
// code REQUEST_TIMEOUT and the handler's context is cancelled.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: "REQUEST_TIMEOUT", Message: "request timed out"},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
