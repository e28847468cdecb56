package executor

import "github.com/agentforge/flowengine/validator"

// Status is the Execution record's lifecycle terminus (spec.md §4.4).
type Status string

const (
	StatusSuccess        Status = "success"
	StatusFailed         Status = "failed"
	StatusPartialSuccess Status = "partial_success"
)

// OpStatus is an individual operation's lifecycle state (spec.md §3).
type OpStatus string

const (
	OpPending OpStatus = "pending"
	OpRunning OpStatus = "running"
	OpSuccess OpStatus = "success"
	OpFailed  OpStatus = "failed"
	OpSkipped OpStatus = "skipped"
)

// ErrorInfo is the wire shape of a surfaced error (spec.md §6).
type ErrorInfo struct {
	Type        string         `json:"type"`
	Category    string         `json:"category"`
	Message     string         `json:"message"`
	OperationID string         `json:"operationId"`
	Recoverable bool           `json:"recoverable"`
	Context     map[string]any `json:"context,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// OperationSummary is one entry of the Execution response's `operations`
// map (spec.md §6).
type OperationSummary struct {
	Status     OpStatus   `json:"status"`
	DurationMs int64      `json:"durationMs"`
	Result     any        `json:"result,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
}

// Response is the Executor's top-level result (spec.md §6's Execution
// response).
type Response struct {
	ExecutionID string                      `json:"executionId"`
	Status      Status                      `json:"status"`
	Operations  map[string]OperationSummary `json:"operations"`
	Data        map[string]any              `json:"data"`
	DurationMs  int64                       `json:"durationMs"`
}

// Outcome is what Run returns: exactly one of Validation (when the
// workflow was rejected before execution) or Response (when it ran) is
// non-nil.
type Outcome struct {
	Validation *validator.Result
	Response   *Response
}
