// Package datamodel implements the execution-local DataModel tree and the
// path grammar used to address it, grounded in the teacher's map+mutex
// thread-safety convention (orchestration/catalog.go, workflow_dag.go) but
// scoped to a single execution rather than shared process state — the
// DataModel is owned by one Executor and needs no locking beyond what the
// executor's own serial loop already provides (spec.md §5). The mutex is
// kept anyway because Loop and Conditional sub-executions read concurrently
// with StoreData/Wait running on separate goroutines in a future
// parallel-branch extension; today's executor is strictly sequential, but
// the lock is cheap insurance that the type is safe to share.
package datamodel

import (
	"fmt"
	"sync"

	"github.com/agentforge/flowengine/flowerr"
)

// DataModel is the tree rooted at /workflow. Values are JSON-shaped: nil,
// bool, float64/int, string, []any, map[string]any — the same shapes
// encoding/json produces when decoding into interface{}.
type DataModel struct {
	mu   sync.RWMutex
	root map[string]any
}

// New creates an empty DataModel.
func New() *DataModel {
	return &DataModel{root: make(map[string]any)}
}

// Read returns a deep copy of the value at path. Missing paths (including
// out-of-bounds array indices) produce a DataError, never a panic
// (spec.md §8).
func (d *DataModel) Read(path Path) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var cur any = d.root
	for _, seg := range path.segments {
		switch seg.kind {
		case segField:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, notFound(path)
			}
			v, ok := m[seg.field]
			if !ok {
				return nil, notFound(path)
			}
			cur = v
		case segIndex:
			arr, ok := cur.([]any)
			if !ok {
				return nil, notFound(path)
			}
			if seg.index < 0 || seg.index >= len(arr) {
				return nil, notFound(path)
			}
			cur = arr[seg.index]
		}
	}
	return deepCopy(cur), nil
}

// Exists reports whether path currently resolves to a value.
func (d *DataModel) Exists(path Path) bool {
	_, err := d.Read(path)
	return err == nil
}

// Write replaces the value at path's leaf, autovivifying intermediate
// object segments (spec.md §4.1: "intermediate segments are autovivified
// as objects on write"). Index segments whose parent array is shorter than
// needed are not extended — only explicit leaf-object field segments
// autovivify; writing through a missing array index is a caller error.
func (d *DataModel) Write(path Path, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	segs := path.segments
	if len(segs) == 0 {
		return flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "cannot write to root path").WithContext(map[string]any{"path": path.String()})
	}

	var cur any = d.root
	for i := 0; i < len(segs)-1; i++ {
		seg := segs[i]
		switch seg.kind {
		case segField:
			m, ok := cur.(map[string]any)
			if !ok {
				return flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "path traverses a non-object value").WithContext(map[string]any{"path": path.String()})
			}
			next, ok := m[seg.field]
			if !ok || next == nil {
				next = make(map[string]any)
				m[seg.field] = next
			}
			cur = next
		case segIndex:
			arr, ok := cur.([]any)
			if !ok {
				return flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "path traverses a non-array value").WithContext(map[string]any{"path": path.String()})
			}
			if seg.index < 0 || seg.index >= len(arr) {
				return notFound(path)
			}
			cur = arr[seg.index]
		}
	}

	last := segs[len(segs)-1]
	switch last.kind {
	case segField:
		m, ok := cur.(map[string]any)
		if !ok {
			return flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "path traverses a non-object value").WithContext(map[string]any{"path": path.String()})
		}
		m[last.field] = deepCopy(value)
	case segIndex:
		arr, ok := cur.([]any)
		if !ok {
			return flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "path traverses a non-array value").WithContext(map[string]any{"path": path.String()})
		}
		if last.index < 0 || last.index >= len(arr) {
			return notFound(path)
		}
		arr[last.index] = deepCopy(value)
	}
	return nil
}

// Snapshot returns a deep copy of the entire tree rooted at /workflow,
// used by the Executor to build the response's `data` projection.
func (d *DataModel) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return deepCopy(d.root).(map[string]any)
}

// SizeBytes estimates the tree's serialized size for the ResourceError cap
// in spec.md §5 (maxDataModelBytes). It is an estimate, not an exact
// encoding/json size, to avoid re-marshaling the whole tree on every write.
func (d *DataModel) SizeBytes() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return estimateSize(d.root)
}

func notFound(path Path) error {
	return flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, fmt.Sprintf("path not found: %s", path.String())).
		WithContext(map[string]any{"path": path.String()})
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

func estimateSize(v any) int {
	switch t := v.(type) {
	case map[string]any:
		n := 0
		for k, val := range t {
			n += len(k) + estimateSize(val)
		}
		return n
	case []any:
		n := 0
		for _, val := range t {
			n += estimateSize(val)
		}
		return n
	case string:
		return len(t)
	default:
		return 8
	}
}
