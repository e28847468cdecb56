// Package flowerr defines the engine's error taxonomy.
//
// Purpose:
//   - Provides a single structured error type, FlowError, carrying the
//     error type, category, operation ID, sanitized context, and suggestions
//     that the executor surfaces to callers (spec §7).
//   - Provides sentinel errors for each taxonomy entry so callers can use
//     errors.Is without parsing strings.
//
// Scope: this package has no dependency on any other engine package; it is
// imported by all of them.
package flowerr

import (
	"errors"
	"fmt"
)

// Category mirrors the taxonomy in spec.md §7. It is distinct from
// FlowError.Type: Type is a stable machine-readable error name, Category
// groups types for the response's error category.
type Category string

const (
	CategoryStructure   Category = "structure"
	CategoryPermission  Category = "permission"
	CategoryDependency  Category = "dependency"
	CategoryType        Category = "type"
	CategoryData        Category = "data"
	CategoryNetwork     Category = "network"
	CategoryRateLimit   Category = "rate_limit"
	CategoryResource    Category = "resource"
	CategoryCancelled   Category = "cancelled"
	CategoryExecution   Category = "execution"
	CategoryValidation  Category = "validation"
	CategoryAuthz       Category = "authorization"
)

// Sentinel errors, one per taxonomy entry in spec.md §7. Wrap these with
// New to attach context; compare with errors.Is.
var (
	ErrStructure     = errors.New("structure error")
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrData          = errors.New("data error")
	ErrNetwork       = errors.New("network error")
	ErrTimeout       = errors.New("timeout error")
	ErrAPI           = errors.New("api error")
	ErrRateLimit     = errors.New("rate limit error")
	ErrResource      = errors.New("resource error")
	ErrCancelled     = errors.New("cancellation error")
	ErrExecution     = errors.New("execution error")
	ErrRetryable     = errors.New("retryable error")
)

// FlowError is the structured error surfaced across the executor/validator
// boundary. It implements error and Unwrap, grounded in the teacher's
// FrameworkError (core/errors.go) but extended with the fields spec.md §7
// requires on every user-visible error.
type FlowError struct {
	// Type is the machine-readable taxonomy name, e.g. "ApiError", "DataError".
	Type string
	// Category groups Type for the validator/response shaping.
	Category Category
	// OperationID names the operation this error occurred on, if any.
	OperationID string
	// Message is a human-readable summary.
	Message string
	// Err is the wrapped sentinel or upstream error.
	Err error
	// Context carries sanitized diagnostic fields (status code, domain,
	// field name) — never URLs with credentials or raw response bodies.
	Context map[string]any
	// Suggestions are machine-readable remediation hints.
	Suggestions []string
	// Recoverable indicates whether retrying the same workflow could succeed.
	Recoverable bool
}

func (e *FlowError) Error() string {
	if e.OperationID != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Type, e.OperationID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *FlowError) Unwrap() error { return e.Err }

// New builds a FlowError wrapping sentinel for the given type/category.
func New(typ string, category Category, sentinel error, message string) *FlowError {
	return &FlowError{Type: typ, Category: category, Err: sentinel, Message: message}
}

// WithOperation sets the OperationID and returns the receiver for chaining.
func (e *FlowError) WithOperation(id string) *FlowError {
	e.OperationID = id
	return e
}

// WithContext merges fields into Context and returns the receiver.
func (e *FlowError) WithContext(fields map[string]any) *FlowError {
	if e.Context == nil {
		e.Context = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		e.Context[k] = v
	}
	return e
}

// WithSuggestions appends suggestions and returns the receiver.
func (e *FlowError) WithSuggestions(s ...string) *FlowError {
	e.Suggestions = append(e.Suggestions, s...)
	return e
}

// WithRecoverable sets Recoverable and returns the receiver.
func (e *FlowError) WithRecoverable(r bool) *FlowError {
	e.Recoverable = r
	return e
}

// IsRetryable reports whether err should be retried by the RetryPolicy,
// per the classification in spec.md §4.7: NetworkError, TimeoutError,
// ApiError with status in {408,429,5xx}, or an explicit RetryableError
// marker. ApiError carries the status and is checked separately by
// callers that have it in hand (see retry package); this helper covers the
// sentinel-only cases.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRetryable)
}

// IsTerminal is the complement used for documentation/clarity at call
// sites; RateLimitError, ValidationError and AuthorizationError are never
// retried by the RetryPolicy layer.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrAuthorization) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrStructure)
}
