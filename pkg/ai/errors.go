package ai

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingAPIKey indicates the Gemini API key is not configured.
var ErrMissingAPIKey = errors.New("gemini api key required")

// APIError is a non-2xx response from the Gemini API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	switch e.Status {
	case http.StatusTooManyRequests:
		return fmt.Sprintf("gemini api error: rate limit or quota exceeded (%d): %s", e.Status, e.Message)
	case http.StatusForbidden:
		return fmt.Sprintf("gemini api error: permission denied, check the API key (%d): %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("gemini api error (%d): %s", e.Status, e.Message)
	}
}

// InvalidJSONError indicates the model returned text that is not the
// expected JSON document.
type InvalidJSONError struct {
	Raw string
	Err error
}

func (e *InvalidJSONError) Error() string {
	return fmt.Sprintf("gemini returned invalid json: %v", e.Err)
}

func (e *InvalidJSONError) Unwrap() error { return e.Err }
