package catalog

import (
	"time"

	"github.com/agentforge/flowengine/flowerr"
)

const maxWaitMs = 600000

// waitDescriptor implements Wait: `{duration: int ms, 0 <= duration <=
// 600000}` (spec.md §4.2). Suspends the current execution; honours
// cancellation. `Wait(0)` returns immediately without suspending
// observably (spec.md §8).
func waitDescriptor() *Descriptor {
	return &Descriptor{
		Kind:           KindWait,
		RequiredFields: []string{"duration"},
		Cacheable:      false,
		OutputType:     OutputObject,
		Execute:        executeWait,
	}
}

func executeWait(ec *ExecContext) (any, error) {
	duration, ok := ec.Args["duration"].(float64)
	if !ok || duration < 0 || duration > maxWaitMs {
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "Wait.duration must be an integer in [0, 600000]").WithOperation(ec.OperationID)
	}
	if duration == 0 {
		return map[string]any{"waitedMs": 0}, nil
	}

	timer := time.NewTimer(time.Duration(duration) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return map[string]any{"waitedMs": duration}, nil
	case <-ec.Ctx.Done():
		return nil, flowerr.New("CancellationError", flowerr.CategoryCancelled, flowerr.ErrCancelled, "wait cancelled").WithOperation(ec.OperationID)
	}
}
