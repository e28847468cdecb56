package flowerr

import "fmt"

// ApiError represents a non-2xx HTTP response from an ApiCall operation
// (spec.md §4.2/§4.7). Status drives RetryPolicy classification: 408, 429,
// and 5xx are retryable; other 4xx are terminal.
type ApiError struct {
	Status     int
	RetryAfter string // raw Retry-After header value, if present
	Message    string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// Retryable reports whether this status is retryable per spec.md §4.7.
func (e *ApiError) Retryable() bool {
	if e.Status == 408 || e.Status == 429 {
		return true
	}
	return e.Status >= 500 && e.Status <= 599
}

// NewApiError builds a FlowError wrapping an ApiError; callers attach the
// operation ID with WithOperation.
func NewApiError(status int, retryAfter, message string) *FlowError {
	ae := &ApiError{Status: status, RetryAfter: retryAfter, Message: message}
	return &FlowError{
		Type:        "ApiError",
		Category:    CategoryNetwork,
		Err:         ae,
		Message:     message,
		Recoverable: ae.Retryable(),
		Context:     map[string]any{"status": status},
	}
}
