package flowtelemetry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/agentforge/flowengine/flowtelemetry"
)

// TestOTelRecordMetricConcurrentSafe exercises the histograms map from many
// goroutines at once, mirroring executor.Executor's documented "one value
// serves any number of concurrent Run calls" usage. Run with -race to catch
// a regression to the unsynchronized map.
func TestOTelRecordMetricConcurrentSafe(t *testing.T) {
	o := flowtelemetry.NewOTel("flowtelemetry-test")

	names := []string{"execution.duration", "cache.hit", "cache.miss", "retry.attempt"}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		name := names[i%len(names)]
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			o.RecordMetric(name, 1.0, map[string]string{"op": name})
		}(name)
	}
	wg.Wait()
}

func TestNoopTelemetryDiscardsSpansAndMetrics(t *testing.T) {
	tel := flowtelemetry.NewNoop()
	ctx, span := tel.StartSpan(context.Background(), "op")
	span.SetAttribute("k", "v")
	span.RecordError(nil)
	span.End()
	tel.RecordMetric("anything", 1, nil)
	_ = ctx
}
