package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agentforge/flowengine/flowerr"
)

// transformDataDescriptor implements TransformData: `{inputPath, transform
// ∈ {map,sort,group,aggregate,select}, config, outputPath}` (spec.md
// §4.2). Each transform's `config` shape is fixed and interpreted by this
// package — there is no user-expression evaluator, per spec.md's
// non-goal on user-defined scripting inside operations.
func transformDataDescriptor() *Descriptor {
	return &Descriptor{
		Kind:           KindTransformData,
		RequiredFields: []string{"inputPath", "transform", "config", "outputPath"},
		Cacheable:      true,
		OutputType:     OutputAny,
		Execute:        executeTransformData,
	}
}

func executeTransformData(ec *ExecContext) (any, error) {
	input := ec.Args["inputPath"]
	transform, _ := ec.Args["transform"].(string)
	config, _ := ec.Args["config"].(map[string]any)

	switch transform {
	case "map":
		return transformMap(ec, input, config)
	case "sort":
		return transformSort(ec, input, config)
	case "group":
		return transformGroup(ec, input, config)
	case "aggregate":
		return transformAggregate(ec, input, config)
	case "select":
		return transformSelect(ec, input, config)
	default:
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, fmt.Sprintf("unsupported TransformData.transform %q", transform)).WithOperation(ec.OperationID)
	}
}

func asArray(ec *ExecContext, input any) ([]any, error) {
	arr, ok := input.([]any)
	if !ok {
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "TransformData.inputPath did not resolve to an array").WithOperation(ec.OperationID)
	}
	return arr, nil
}

// transformSort stable-sorts by config.field (missing field sorts last,
// ties preserve input order); config.order may be "asc" (default) or
// "desc".
func transformSort(ec *ExecContext, input any, config map[string]any) (any, error) {
	arr, err := asArray(ec, input)
	if err != nil {
		return nil, err
	}
	field, _ := config["field"].(string)
	desc, _ := config["order"].(string)

	out := make([]any, len(arr))
	copy(out, arr)

	sort.SliceStable(out, func(i, j int) bool {
		vi, oki := sortKey(out[i], field)
		vj, okj := sortKey(out[j], field)
		if !oki && !okj {
			return false
		}
		if !oki {
			return false
		}
		if !okj {
			return true
		}
		less := lessValue(vi, vj)
		if desc == "desc" {
			return !less && !equalValue(vi, vj)
		}
		return less
	})
	return out, nil
}

func sortKey(item any, field string) (any, bool) {
	if field == "" {
		return item, true
	}
	m, ok := item.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}

func lessValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func equalValue(a, b any) bool {
	return compareEqual(a, b)
}

// transformGroup produces `{groupValue: [items]}` keyed by config.field.
func transformGroup(ec *ExecContext, input any, config map[string]any) (any, error) {
	arr, err := asArray(ec, input)
	if err != nil {
		return nil, err
	}
	field, _ := config["field"].(string)

	groups := make(map[string]any)
	for _, item := range arr {
		key := fmt.Sprint(fieldValue(item, field))
		existing, _ := groups[key].([]any)
		groups[key] = append(existing, item)
	}
	return groups, nil
}

// transformAggregate emits a scalar: sum, min, max, avg, count over
// config.field (numeric values) across the input array.
func transformAggregate(ec *ExecContext, input any, config map[string]any) (any, error) {
	arr, err := asArray(ec, input)
	if err != nil {
		return nil, err
	}
	op, _ := config["op"].(string)
	field, _ := config["field"].(string)

	if op == "count" {
		return float64(len(arr)), nil
	}

	values := make([]float64, 0, len(arr))
	for _, item := range arr {
		v := fieldValue(item, field)
		if f, ok := toFloat(v); ok {
			values = append(values, f)
		}
	}

	switch op {
	case "sum":
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum, nil
	case "avg":
		if len(values) == 0 {
			return 0.0, nil
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case "min":
		if len(values) == 0 {
			return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "TransformData aggregate.min over empty input").WithOperation(ec.OperationID)
		}
		lowest := values[0]
		for _, v := range values[1:] {
			if v < lowest {
				lowest = v
			}
		}
		return lowest, nil
	case "max":
		if len(values) == 0 {
			return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "TransformData aggregate.max over empty input").WithOperation(ec.OperationID)
		}
		highest := values[0]
		for _, v := range values[1:] {
			if v > highest {
				highest = v
			}
		}
		return highest, nil
	default:
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, fmt.Sprintf("unsupported TransformData aggregate op %q", op)).WithOperation(ec.OperationID)
	}
}

// transformSelect projects config.fields from each object in the array.
// Selecting every field of every item is the identity transform (spec.md
// §8: `TransformData(x, select, all-fields) ≡ x`).
func transformSelect(ec *ExecContext, input any, config map[string]any) (any, error) {
	arr, err := asArray(ec, input)
	if err != nil {
		return nil, err
	}
	fields := stringList(config["fields"])

	out := make([]any, len(arr))
	for i, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			out[i] = item
			continue
		}
		projected := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := m[f]; ok {
				projected[f] = v
			}
		}
		out[i] = projected
	}
	return out, nil
}

// transformMap applies a fixed set of per-field rewrites named in
// config.fields: `{fieldName: {op: "toUpper"|"toLower"|"trim"|
// "toString"|"toNumber"|"const", value?}}`. No user expressions are
// evaluated, only this closed set of operations.
func transformMap(ec *ExecContext, input any, config map[string]any) (any, error) {
	arr, err := asArray(ec, input)
	if err != nil {
		return nil, err
	}
	rewrites, _ := config["fields"].(map[string]any)

	out := make([]any, len(arr))
	for i, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			out[i] = item
			continue
		}
		rewritten := make(map[string]any, len(m))
		for k, v := range m {
			rewritten[k] = v
		}
		for field, raw := range rewrites {
			rule, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			rewritten[field] = applyFieldRewrite(rule, m[field])
		}
		out[i] = rewritten
	}
	return out, nil
}

func applyFieldRewrite(rule map[string]any, current any) any {
	op, _ := rule["op"].(string)
	switch op {
	case "toUpper":
		s, _ := current.(string)
		return strings.ToUpper(s)
	case "toLower":
		s, _ := current.(string)
		return strings.ToLower(s)
	case "trim":
		s, _ := current.(string)
		return strings.TrimSpace(s)
	case "toString":
		return fmt.Sprint(current)
	case "toNumber":
		s, ok := current.(string)
		if !ok {
			return current
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return current
		}
		return f
	case "const":
		return rule["value"]
	default:
		return current
	}
}
