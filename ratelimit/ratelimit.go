// Package ratelimit implements the per-agent sliding-window RateLimiter
// (spec.md §4.5), grounded in the teacher's timestamp-bucket counters
// (resilience/circuitbreaker.go's sliding failure window) generalized to
// minute/hour/day granularity plus per-operation-kind sub-limits.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/agentforge/flowengine/catalog"
)

// Limits is one tier of request-count ceilings.
type Limits struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	ApiCallsPerMinute int
	ApiCallsPerHour   int
}

// DefaultLimits returns generous defaults suitable for a single-tenant
// deployment; production configs should override via Config.RateLimits.
func DefaultLimits() Limits {
	return Limits{
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		RequestsPerDay:    10000,
		ApiCallsPerMinute: 30,
		ApiCallsPerHour:   500,
	}
}

// Decision is the result of an acquisition attempt.
type Decision struct {
	Allowed      bool
	RetryAfterMs int64
}

// RateLimiter is the port the Executor asks for an execution slot before
// dispatching an operation (spec.md §4.4 step 5). Implementations must be
// safe for concurrent use across executions.
type RateLimiter interface {
	Acquire(ctx context.Context, agentID string, kind catalog.Kind) Decision
}

type window struct {
	mu      sync.Mutex
	minute  []time.Time
	hour    []time.Time
	day     []time.Time
	apiMin  []time.Time
	apiHour []time.Time
	lastUse time.Time
}

// InMemory is the default RateLimiter: one window per agent, timestamp
// buckets evicted lazily on each request.
type InMemory struct {
	mu       sync.Mutex
	windows  map[string]*window
	defaults Limits
	perAgent map[string]Limits
	throttle time.Duration
}

// NewInMemory builds a limiter with the given default limits. perAgent
// overrides replace the defaults entirely for that agent (spec.md §4.5's
// "per-agent override table").
func NewInMemory(defaults Limits, perAgent map[string]Limits) *InMemory {
	if perAgent == nil {
		perAgent = make(map[string]Limits)
	}
	return &InMemory{windows: make(map[string]*window), defaults: defaults, perAgent: perAgent}
}

// WithThrottle sets a small fixed delay enforced between successful
// requests from the same agent (spec.md §4.5's "thin throttle hook").
func (l *InMemory) WithThrottle(d time.Duration) *InMemory {
	l.throttle = d
	return l
}

func (l *InMemory) limitsFor(agentID string) Limits {
	if lim, ok := l.perAgent[agentID]; ok {
		return lim
	}
	return l.defaults
}

func (l *InMemory) windowFor(agentID string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[agentID]
	if !ok {
		w = &window{}
		l.windows[agentID] = w
	}
	return w
}

func (l *InMemory) Acquire(ctx context.Context, agentID string, kind catalog.Kind) Decision {
	lim := l.limitsFor(agentID)
	w := l.windowFor(agentID)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()

	if l.throttle > 0 && !w.lastUse.IsZero() {
		if elapsed := now.Sub(w.lastUse); elapsed < l.throttle {
			return Decision{Allowed: false, RetryAfterMs: (l.throttle - elapsed).Milliseconds()}
		}
	}

	w.minute = evict(w.minute, now, time.Minute)
	w.hour = evict(w.hour, now, time.Hour)
	w.day = evict(w.day, now, 24*time.Hour)

	if d, blocked := checkBucket(w.minute, lim.RequestsPerMinute, time.Minute); blocked {
		return d
	}
	if d, blocked := checkBucket(w.hour, lim.RequestsPerHour, time.Hour); blocked {
		return d
	}
	if d, blocked := checkBucket(w.day, lim.RequestsPerDay, 24*time.Hour); blocked {
		return d
	}

	if kind == catalog.KindApiCall {
		w.apiMin = evict(w.apiMin, now, time.Minute)
		w.apiHour = evict(w.apiHour, now, time.Hour)
		if d, blocked := checkBucket(w.apiMin, lim.ApiCallsPerMinute, time.Minute); blocked {
			return d
		}
		if d, blocked := checkBucket(w.apiHour, lim.ApiCallsPerHour, time.Hour); blocked {
			return d
		}
		w.apiMin = append(w.apiMin, now)
		w.apiHour = append(w.apiHour, now)
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	w.day = append(w.day, now)
	w.lastUse = now

	return Decision{Allowed: true}
}

func evict(bucket []time.Time, now time.Time, span time.Duration) []time.Time {
	cutoff := now.Add(-span)
	i := 0
	for i < len(bucket) && bucket[i].Before(cutoff) {
		i++
	}
	return bucket[i:]
}

func checkBucket(bucket []time.Time, limit int, span time.Duration) (Decision, bool) {
	if limit <= 0 {
		return Decision{}, false
	}
	if len(bucket) < limit {
		return Decision{}, false
	}
	retryAfter := span - time.Since(bucket[0])
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{Allowed: false, RetryAfterMs: retryAfter.Milliseconds()}, true
}
