package catalog

import (
	"github.com/agentforge/flowengine/flowerr"
)

const minMergeSources = 2

// mergeDataDescriptor implements MergeData: `{sources: [path], strategy
// ∈ {concat,union,intersect,deepMerge}, outputPath}` (spec.md §4.2).
// Minimum two sources — rejected at validation, not here, per spec.md §8's
// boundary behaviour ("MergeData with one source is rejected at
// validation"); Execute still guards defensively. `union`/`intersect`
// operate on arrays treating elements by deep equality; `deepMerge`
// recursively merges objects with right-precedence. Cacheable.
func mergeDataDescriptor() *Descriptor {
	return &Descriptor{
		Kind:            KindMergeData,
		RequiredFields:  []string{"sources", "strategy", "outputPath"},
		Cacheable:       true,
		OutputType:      OutputAny,
		InputArrayField: "sources",
		Execute:         executeMergeData,
	}
}

func executeMergeData(ec *ExecContext) (any, error) {
	sources, ok := ec.Args["sources"].([]any)
	if !ok || len(sources) < minMergeSources {
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "MergeData.sources must resolve to at least two values").WithOperation(ec.OperationID)
	}

	strategy, _ := ec.Args["strategy"].(string)

	switch strategy {
	case "concat":
		return mergeConcat(sources)
	case "union":
		merged, err := mergeConcat(sources)
		if err != nil {
			return nil, err
		}
		return dedupe(merged.([]any)), nil
	case "intersect":
		return mergeIntersect(sources)
	case "deepMerge":
		return mergeDeep(sources), nil
	default:
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "unsupported MergeData.strategy").WithOperation(ec.OperationID)
	}
}

func mergeConcat(sources []any) (any, error) {
	var out []any
	for _, src := range sources {
		arr, ok := src.([]any)
		if !ok {
			return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "MergeData.sources entries must each resolve to an array for this strategy")
		}
		out = append(out, arr...)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func mergeIntersect(sources []any) (any, error) {
	arrays := make([][]any, len(sources))
	for i, src := range sources {
		arr, ok := src.([]any)
		if !ok {
			return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "MergeData.sources entries must each resolve to an array for this strategy")
		}
		arrays[i] = arr
	}

	out := make([]any, 0)
	for _, candidate := range arrays[0] {
		inAll := true
		for _, other := range arrays[1:] {
			if !arrayContains(other, candidate) {
				inAll = false
				break
			}
		}
		if inAll && !arrayContains(out, candidate) {
			out = append(out, candidate)
		}
	}
	return out, nil
}

func arrayContains(arr []any, v any) bool {
	for _, item := range arr {
		if deepEqual(item, v) {
			return true
		}
	}
	return false
}

func mergeDeep(sources []any) any {
	var acc any
	for _, src := range sources {
		acc = deepMergeValue(acc, src)
	}
	return acc
}

func deepMergeValue(base, override any) any {
	baseMap, baseOK := base.(map[string]any)
	overrideMap, overrideOK := override.(map[string]any)
	if !baseOK || !overrideOK {
		return override
	}
	out := make(map[string]any, len(baseMap)+len(overrideMap))
	for k, v := range baseMap {
		out[k] = v
	}
	for k, v := range overrideMap {
		if existing, ok := out[k]; ok {
			out[k] = deepMergeValue(existing, v)
		} else {
			out[k] = v
		}
	}
	return out
}

func dedupe(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		if !arrayContains(out, item) {
			out = append(out, item)
		}
	}
	return out
}

func deepEqual(a, b any) bool {
	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, v := range at {
			bv, ok := bt[k]
			if !ok || !deepEqual(v, bv) {
				return false
			}
		}
		return true
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i, v := range at {
			if !deepEqual(v, bt[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
