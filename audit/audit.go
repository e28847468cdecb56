// Package audit implements the AuditLog port (spec.md §4.8): an
// append-only sink for execution, operation, and credential-use events,
// grounded in the teacher's event-sink convention (telemetry/events.go)
// but scoped to the five event kinds spec.md names.
package audit

import (
	"sync"
	"time"
)

// EventType names one of the five audit event kinds (spec.md §4.8).
type EventType string

const (
	EventExecutionStarted  EventType = "ExecutionStarted"
	EventExecutionFinished EventType = "ExecutionFinished"
	EventOperationStarted  EventType = "OperationStarted"
	EventOperationFinished EventType = "OperationFinished"
	EventCredentialUsed    EventType = "CredentialUsed"
)

// Event carries timestamps, IDs, durations, and sanitized argument
// digests. Credential values are never written here; callers must
// sanitize before constructing an Event (spec.md §4.8, §7).
type Event struct {
	Type        EventType
	Timestamp   time.Time
	ExecutionID string
	OperationID string
	AgentID     string
	Kind        string
	DurationMs  int64
	Status      string
	ArgsDigest  map[string]any
	CredentialID string
	Err         string
}

// AuditLog is the append-only sink contract (spec.md §6).
type AuditLog interface {
	Append(event Event)
}

// InMemory is a ring-buffer AuditLog for tests and the flowctl CLI, where
// persistence beyond the process is unnecessary (spec.md explicitly
// leaves durability as an external concern).
type InMemory struct {
	mu     sync.Mutex
	cap    int
	events []Event
}

// NewInMemory builds a ring buffer holding at most capacity events; older
// events are dropped once full.
func NewInMemory(capacity int) *InMemory {
	if capacity <= 0 {
		capacity = 10000
	}
	return &InMemory{cap: capacity}
}

func (l *InMemory) Append(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	if len(l.events) > l.cap {
		l.events = l.events[len(l.events)-l.cap:]
	}
}

// Events returns a snapshot of everything currently retained, for tests
// and CLI introspection.
func (l *InMemory) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// SanitizeArgsDigest strips credential references and known-sensitive
// header values (Authorization-like) from args before they are attached
// to an Event, per spec.md §4.8/§7's "credential values are never
// written" requirement.
func SanitizeArgsDigest(args map[string]any) map[string]any {
	return sanitizeValue(args).(map[string]any)
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if _, ok := t["credentialRef"]; ok && len(t) == 1 {
			return "<credential>"
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSensitiveHeaderKey(k) {
				out[k] = "<redacted>"
				continue
			}
			out[k] = sanitizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitizeValue(val)
		}
		return out
	default:
		return t
	}
}

func isSensitiveHeaderKey(k string) bool {
	switch k {
	case "Authorization", "authorization", "Proxy-Authorization":
		return true
	default:
		return false
	}
}
