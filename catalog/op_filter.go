package catalog

import (
	"fmt"

	"github.com/agentforge/flowengine/flowerr"
)

// filterDataDescriptor implements FilterData: `{inputPath, conditions:
// [{field, op, value}], outputPath}` (spec.md §4.2). Reads an array;
// retains elements where ALL conditions are true; non-array input fails
// with DataError. Grounded in the teacher's capability-matching predicate
// style (orchestration/catalog.go's MatchCapability filters).
func filterDataDescriptor() *Descriptor {
	return &Descriptor{
		Kind:            KindFilterData,
		RequiredFields:  []string{"inputPath", "conditions", "outputPath"},
		Cacheable:       true,
		OutputType:      OutputArray,
		InputArrayField: "inputPath",
		Execute:         executeFilterData,
	}
}

func executeFilterData(ec *ExecContext) (any, error) {
	input, ok := ec.Args["inputPath"].([]any)
	if !ok {
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "FilterData.inputPath did not resolve to an array").WithOperation(ec.OperationID)
	}
	conditions, _ := ec.Args["conditions"].([]any)

	out := make([]any, 0, len(input))
	for _, item := range input {
		matched := true
		for _, raw := range conditions {
			cond, ok := raw.(map[string]any)
			if !ok {
				return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "FilterData.conditions entries must be objects").WithOperation(ec.OperationID)
			}
			ok2, err := evalFieldCondition(cond, item)
			if err != nil {
				return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, err.Error()).WithOperation(ec.OperationID)
			}
			if !ok2 {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, item)
		}
	}
	return out, nil
}

// evalFieldCondition evaluates `{field, op, value}` against item, where
// field is a dotted path into item (or "" meaning item itself). Supported
// operators per spec.md §4.2: ==, !=, >, <, >=, <=, in, contains,
// startsWith, endsWith.
func evalFieldCondition(cond map[string]any, item any) (bool, error) {
	field, _ := cond["field"].(string)
	op, _ := cond["op"].(string)
	target := fieldValue(item, field)
	value := cond["value"]

	switch op {
	case "==":
		return compareEqual(target, value), nil
	case "!=":
		return !compareEqual(target, value), nil
	case ">", "<", ">=", "<=":
		return compareOrdered(op, target, value)
	case "in":
		return containsValue(value, target), nil
	case "contains":
		return containsValue(target, value), nil
	case "startsWith":
		s, _ := target.(string)
		pre, _ := value.(string)
		return hasPrefix(s, pre), nil
	case "endsWith":
		s, _ := target.(string)
		suf, _ := value.(string)
		return hasSuffix(s, suf), nil
	default:
		return false, fmt.Errorf("unsupported FilterData condition op %q", op)
	}
}

func fieldValue(item any, field string) any {
	if field == "" {
		return item
	}
	cur := item
	for _, part := range splitDots(field) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func splitDots(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func compareEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, v := range h {
			if compareEqual(v, needle) {
				return true
			}
		}
		return false
	case string:
		s, _ := needle.(string)
		return s != "" && hasSubstring(h, s)
	default:
		return false
	}
}

func hasSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func compareOrdered(op string, a, b any) (bool, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false, fmt.Errorf("operator %q requires numeric operands", op)
	}
	switch op {
	case ">":
		return af > bf, nil
	case ">=":
		return af >= bf, nil
	case "<":
		return af < bf, nil
	case "<=":
		return af <= bf, nil
	}
	return false, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}
