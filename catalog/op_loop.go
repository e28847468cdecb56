package catalog

import (
	"fmt"

	"github.com/agentforge/flowengine/datamodel"
	"github.com/agentforge/flowengine/flowerr"
)

var loopCurrentPath = datamodel.MustParsePath(datamodel.Root + "/_loop/current")
var loopIndexPath = datamodel.MustParsePath(datamodel.Root + "/_loop/index")

// loopDescriptor implements Loop: `{inputPath, operations: [opId],
// outputPath?}` (spec.md §4.2). For each element, binds
// `/workflow/_loop/current` and `/workflow/_loop/index`, then executes
// `operations`. Iterations are sequential; failures abort the loop. The
// executor's generic step 7 writes this operation's result (the
// per-iteration snapshot of `/workflow/_loop/current` after its
// operations ran) to `outputPath` if one was given — Loop itself does not
// need special-case output handling. Never cacheable.
func loopDescriptor() *Descriptor {
	return &Descriptor{
		Kind:            KindLoop,
		RequiredFields:  []string{"inputPath", "operations"},
		OptionalFields:  []string{"outputPath"},
		Cacheable:       false,
		OutputType:      OutputArray,
		InputArrayField: "inputPath",
		Execute:         executeLoop,
	}
}

func executeLoop(ec *ExecContext) (any, error) {
	items, ok := ec.Args["inputPath"].([]any)
	if !ok {
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "Loop.inputPath did not resolve to an array").WithOperation(ec.OperationID)
	}
	operations := stringList(ec.Args["operations"])

	results := make([]any, 0, len(items))
	for i, item := range items {
		if err := ec.Model.Write(loopCurrentPath, item); err != nil {
			return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, fmt.Sprintf("writing loop item %d: %v", i, err)).WithOperation(ec.OperationID)
		}
		if err := ec.Model.Write(loopIndexPath, float64(i)); err != nil {
			return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, fmt.Sprintf("writing loop index %d: %v", i, err)).WithOperation(ec.OperationID)
		}

		if err := ec.RunOps(ec.Ctx, operations); err != nil {
			return nil, err
		}

		current, err := ec.Model.Read(loopCurrentPath)
		if err != nil {
			return nil, err
		}
		results = append(results, current)
	}

	return results, nil
}
