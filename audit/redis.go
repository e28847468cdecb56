package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis appends events to a Redis stream (SPEC_FULL.md §2 DOMAIN note:
// redisaudit), for deployments that want a durable, tailable event log
// without standing up a separate store just for audit data.
type Redis struct {
	client *redis.Client
	stream string
}

// NewRedis wraps an already-connected client, appending to streamKey.
func NewRedis(client *redis.Client, streamKey string) *Redis {
	if streamKey == "" {
		streamKey = "flowengine:audit"
	}
	return &Redis{client: client, stream: streamKey}
}

// Append serializes event and XADDs it to the stream. Redis.Append is
// fire-and-forget from the caller's perspective (marshal and XADD errors
// are discarded, neither logged nor surfaced to the operation pipeline) since
// the audit path must never block or fail an execution (spec.md §6: "the
// core does not depend on [the log's] readability").
func (r *Redis) Append(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{"event": string(data)},
	}).Result()
}
