package catalog

import (
	"fmt"

	"github.com/agentforge/flowengine/flowerr"
)

// conditionalDescriptor implements Conditional: `{condition: {path, op,
// value?}, ifTrue: [opId], ifFalse?: [opId]}` (spec.md §4.2). ifTrue/
// ifFalse name operationIds that MUST already appear in the outer `order`
// (spec.md §9 open question, resolved: pure gate, never an inline
// sub-workflow). Never cacheable: its effect is which other operations
// run, not a value.
func conditionalDescriptor() *Descriptor {
	return &Descriptor{
		Kind:           KindConditional,
		RequiredFields: []string{"condition", "ifTrue"},
		OptionalFields: []string{"ifFalse"},
		Cacheable:      false,
		OutputType:     OutputObject,
		Execute:        executeConditional,
	}
}

// condition.path arrives already resolved to a concrete value: the executor
// reads it tolerantly before Execute runs, substituting nil when the path
// doesn't exist, so exists/empty can test for absence instead of the whole
// operation failing on an unresolved reference.
// Supported operators per spec.md §4.2: ==, !=, >, <, >=, <=, exists, empty.
func executeConditional(ec *ExecContext) (any, error) {
	cond, ok := ec.Args["condition"].(map[string]any)
	if !ok {
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "Conditional.condition must be an object").WithOperation(ec.OperationID)
	}
	matched, err := evalPathCondition(cond)
	if err != nil {
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, err.Error()).WithOperation(ec.OperationID)
	}

	ifTrue := stringList(ec.Args["ifTrue"])
	ifFalse := stringList(ec.Args["ifFalse"])

	if matched {
		ec.SkipOps(ifFalse)
		if err := ec.RunOps(ec.Ctx, ifTrue); err != nil {
			return nil, err
		}
	} else {
		ec.SkipOps(ifTrue)
		if err := ec.RunOps(ec.Ctx, ifFalse); err != nil {
			return nil, err
		}
	}

	return map[string]any{"matched": matched}, nil
}

func evalPathCondition(cond map[string]any) (bool, error) {
	op, _ := cond["op"].(string)
	value := cond["path"] // resolved value of the referenced path
	target := cond["value"]

	switch op {
	case "exists":
		return value != nil, nil
	case "empty":
		return isEmptyValue(value), nil
	case "==":
		return compareEqual(value, target), nil
	case "!=":
		return !compareEqual(value, target), nil
	case ">", "<", ">=", "<=":
		return compareOrdered(op, value, target)
	default:
		return false, fmt.Errorf("unsupported Conditional condition op %q", op)
	}
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
