// Package retry implements the RetryPolicy (spec.md §4.7): error
// classification plus exponential backoff with jitter, delegating the
// backoff computation itself to a real library
// (github.com/cenkalti/backoff/v5) rather than hand-rolled math, per
// DESIGN.md's "wire it or delete it" decision for that dependency.
package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agentforge/flowengine/catalog"
	"github.com/agentforge/flowengine/flowerr"
)

// Config mirrors spec.md §6's `retry` configuration group.
type Config struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffBase   float64
	Jitter        bool
}

// DefaultConfig returns the teacher-convention defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		BackoffBase:  2.0,
		Jitter:       true,
	}
}

// Policy wraps an operation invocation with classification + backoff.
type Policy struct {
	cfg Config
}

// New builds a Policy from cfg.
func New(cfg Config) *Policy {
	return &Policy{cfg: cfg}
}

// Do invokes fn, retrying per classification rules in spec.md §4.7. Only
// call this for kinds the catalog marks Retryable (today, only ApiCall);
// the Executor gates on catalog.Descriptor.Retryable before wrapping.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialDelay
	b.MaxInterval = p.cfg.MaxDelay
	b.Multiplier = p.cfg.BackoffBase
	if !p.cfg.Jitter {
		b.RandomizationFactor = 0
	}
	ob := &overrideBackOff{base: b}

	operation := func() (any, error) {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return result, backoff.Permanent(err)
		}
		if wait, ok := retryAfterOverride(err); ok {
			ob.setOverride(wait)
		}
		return result, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(ob),
		backoff.WithMaxTries(uint(p.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, _ time.Duration) {}),
	)
	if err != nil {
		return nil, unwrapPermanent(err)
	}
	return result, nil
}

// overrideBackOff wraps a base backoff.BackOff so that a server-specified
// Retry-After value (spec.md §4.7: "respect that value in place of
// computed backoff") preempts exactly the next computed delay. operation
// calls setOverride when it sees a 429 with a Retry-After header; Do's
// single-goroutine retry loop means no further synchronization is needed
// beyond the mutex guarding the value against the library's own internal
// bookkeeping goroutine-safety assumptions.
type overrideBackOff struct {
	base backoff.BackOff

	mu       sync.Mutex
	override time.Duration
	pending  bool
}

func (o *overrideBackOff) setOverride(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.override = d
	o.pending = true
}

func (o *overrideBackOff) NextBackOff() time.Duration {
	o.mu.Lock()
	if o.pending {
		d := o.override
		o.pending = false
		o.mu.Unlock()
		return d
	}
	o.mu.Unlock()
	return o.base.NextBackOff()
}

func (o *overrideBackOff) Reset() {
	o.mu.Lock()
	o.pending = false
	o.mu.Unlock()
	o.base.Reset()
}

func retryAfterOverride(err error) (time.Duration, bool) {
	var apiErr *flowerr.FlowError
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	var ae *flowerr.ApiError
	if !errors.As(apiErr.Err, &ae) {
		return 0, false
	}
	if ae.Status != 429 || ae.RetryAfter == "" {
		return 0, false
	}
	return catalog.RetryAfterDuration(ae.RetryAfter)
}

func unwrapPermanent(err error) error {
	return err
}

// IsRetryable classifies err per spec.md §4.7: NetworkError, TimeoutError,
// ApiError with status in {408, 429, 5xx}, or an explicit RetryableError
// marker are retryable; everything else (ValidationError,
// AuthorizationError, RateLimitError, other ApiError statuses) is
// terminal and never retried by this layer.
func IsRetryable(err error) bool {
	if flowerr.IsRetryable(err) {
		return true
	}
	var fe *flowerr.FlowError
	if errors.As(err, &fe) {
		var ae *flowerr.ApiError
		if errors.As(fe.Err, &ae) {
			return ae.Retryable()
		}
	}
	return false
}
