package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/raphaelgruber/docchat/internal/models"
)

// Sentinel errors for authentication failures.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuthenticationRequired means the call needs a token and none is available.
	// It is raised before any network traffic.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrAuthenticationExpired means a backend answered 401 or 403. The expiry
	// handler has already signed the session out; callers must not retry.
	ErrAuthenticationExpired = errors.New("authentication expired")
)

// APIError is a non-2xx response other than 401/403.
type APIError struct {
	Status  int
	Message string

	// Body is the parsed JSON body when the backend sent JSON, the text otherwise.
	Body any
}

func (e *APIError) Error() string {
	return e.Message
}

// ValidationDetail returns the server-side validation failure carried by a 422 response.
func (e *APIError) ValidationDetail() (models.HTTPValidationError, bool) {
	var detail models.HTTPValidationError
	if e.Status != http.StatusUnprocessableEntity {
		return detail, false
	}
	raw, err := json.Marshal(e.Body)
	if err != nil {
		return detail, false
	}
	if err := json.Unmarshal(raw, &detail); err != nil || len(detail.Detail) == 0 {
		return detail, false
	}
	return detail, true
}

func newAPIError(resp *Response) *APIError {
	e := &APIError{
		Status:  resp.Status,
		Message: fmt.Sprintf("API error: %d %s", resp.Status, http.StatusText(resp.Status)),
		Body:    resp.Text,
	}
	if resp.Data != nil {
		var body any
		if err := json.Unmarshal(resp.Data, &body); err == nil {
			e.Body = body
		}
	}
	return e
}

// NetworkError is a transport-level failure: DNS, refused connection, timeout.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying: network failures that are
// not caller cancellations, 5xx, 408 and 429.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthenticationExpired) || errors.Is(err, ErrAuthenticationRequired) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 ||
			apiErr.Status == http.StatusRequestTimeout ||
			apiErr.Status == http.StatusTooManyRequests
	}

	return false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
