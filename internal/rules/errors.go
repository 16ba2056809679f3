package rules

import (
	"errors"
	"fmt"
)

// ErrNoGameID is returned when an operation needs a game id and none is set.
var ErrNoGameID = errors.New("rules: empty game id")

// APIError is the {"detail": "..."} body the rules server returns for
// rejected moves and unknown games.
type APIError struct {
	StatusCode int    `json:"-"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rules: HTTP %d: %s", e.StatusCode, e.Detail)
}

// IsNotFound reports whether the game does not exist on the server.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsIllegalMove reports whether the server rejected the move itself.
func (e *APIError) IsIllegalMove() bool {
	return e.StatusCode == 400 || e.StatusCode == 422
}

// HTTPError represents a non-2xx response without a parseable detail.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("rules: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited returns true for 429 responses.
func (e *HTTPError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsRetryable returns true for rate limits and server errors (5xx).
func (e *HTTPError) IsRetryable() bool {
	return e.IsRateLimited() || e.StatusCode >= 500
}
