package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/flowengine/flowerr"
)

func TestDoRetriesTransientNetworkError(t *testing.T) {
	p := New(Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffBase: 2})
	attempts := 0
	result, err := p.Do(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, flowerr.New("NetworkError", flowerr.CategoryNetwork, flowerr.ErrNetwork, "dial tcp: timeout")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnTerminalError(t *testing.T) {
	p := New(DefaultConfig())
	attempts := 0
	_, err := p.Do(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		return nil, flowerr.New("ValidationError", flowerr.CategoryValidation, flowerr.ErrValidation, "bad input")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

// TestDoRespectsRetryAfterOverride proves that a 429 carrying a Retry-After
// header preempts the computed exponential backoff (spec.md §4.7: "respect
// that value in place of computed backoff"). InitialDelay is set far below
// the Retry-After value so a pass that ignored the header would complete in
// well under 1s.
func TestDoRespectsRetryAfterOverride(t *testing.T) {
	p := New(Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffBase: 2})
	attempts := 0
	start := time.Now()
	result, err := p.Do(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		if attempts < 2 {
			return nil, flowerr.NewApiError(429, "1", "rate limited")
		}
		return "ok", nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, attempts)
	assert.GreaterOrEqualf(t, elapsed, 900*time.Millisecond, "Retry-After: 1 must be honored instead of the ~1ms computed backoff, got %s", elapsed)
}

func TestDoRetryAfterHonorsContextCancellation(t *testing.T) {
	p := New(Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffBase: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Do(ctx, func(ctx context.Context) (any, error) {
		return nil, flowerr.NewApiError(429, "5", "rate limited")
	})
	assert.Error(t, err)
}
