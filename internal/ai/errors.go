package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("OpenRouter API key not configured (run: batu config set-key)")

	// ErrEmptyBody is returned when a successful response carries no body.
	ErrEmptyBody = errors.New("empty response body")

	ErrAuthFailed          = errors.New("authentication failed")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrModelNotFound       = errors.New("model not found")
	ErrRateLimited         = errors.New("rate limited")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" && e.Code != fmt.Sprint(e.Status) {
		return fmt.Sprintf("OpenRouter error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("OpenRouter error (HTTP %d): %s", e.Status, e.Message)
}

// Is maps well-known statuses onto the sentinel errors so callers can use
// errors.Is(err, ErrAuthFailed) and friends.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrInsufficientCredits:
		return e.Status == http.StatusPaymentRequired
	case ErrModelNotFound:
		return e.Status == http.StatusNotFound
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// newAPIError builds an APIError from a status line and the (possibly
// truncated) response body.
func newAPIError(status int, statusText string, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var envelope apiErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Code = strings.Trim(string(envelope.Error.Code), `"`)
		if apiErr.Code == "null" {
			apiErr.Code = ""
		}
		return apiErr
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = statusText
	}
	apiErr.Message = msg
	return apiErr
}
