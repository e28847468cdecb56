// Package catalog implements the OperationCatalog: the registry of the
// eight built-in operation kinds (spec.md §4.2), each with its argument
// schema, an executor function, and cacheability/output-type metadata the
// Validator and Executor consult. Grounded in the teacher's tagged-variant
// registry style (orchestration/catalog.go's map-based AgentCatalog) per
// spec.md §9's "no open class hierarchy" design note.
package catalog

import (
	"context"
	"fmt"

	"github.com/agentforge/flowengine/datamodel"
	"github.com/agentforge/flowengine/storage"
)

// Kind names a built-in operation kind.
type Kind string

const (
	KindApiCall       Kind = "ApiCall"
	KindFilterData    Kind = "FilterData"
	KindTransformData Kind = "TransformData"
	KindConditional   Kind = "Conditional"
	KindLoop          Kind = "Loop"
	KindStoreData     Kind = "StoreData"
	KindWait          Kind = "Wait"
	KindMergeData     Kind = "MergeData"
)

// OutputType is the static output shape a kind declares, consulted by the
// Validator's type check (spec.md §4.3 step 4): FilterData, Loop and
// MergeData inputs must reference an operation whose declared output is
// array-typed.
type OutputType string

const (
	OutputArray  OutputType = "array"
	OutputObject OutputType = "object"
	OutputScalar OutputType = "scalar"
	OutputAny    OutputType = "any"
)

// StepRunner executes a list of already-defined, already-ordered operation
// IDs through the Executor's full per-operation pipeline (resolve, cache,
// rate-limit, retry, write, audit). Conditional and Loop call back into it
// for their nested operation IDs; the Executor supplies the implementation
// so catalog has no dependency on the executor package.
type StepRunner func(ctx context.Context, operationIDs []string) error

// SkipFunc marks operation IDs (and, transitively, anything that reads
// from them) as skipped. Conditional uses it for the branch not taken.
type SkipFunc func(operationIDs []string)

// ExecContext is the per-invocation context passed to an operation's
// Execute function. Args is the concrete-args view: reference paths
// already resolved, credential references already resolved and formatted.
type ExecContext struct {
	Ctx         context.Context
	OperationID string
	Args        map[string]any
	Model       *datamodel.DataModel
	Storage     storage.Storage
	RunOps      StepRunner
	SkipOps     SkipFunc
}

// Descriptor fully describes one catalog entry.
type Descriptor struct {
	Kind Kind
	// RequiredFields/OptionalFields document the argument schema for the
	// Validator's structural check; both are field names.
	RequiredFields []string
	OptionalFields []string
	// Cacheable is static for most kinds; ApiCall overrides this per
	// invocation (GET with no credential in body) via CacheableFunc.
	Cacheable bool
	// CacheableFunc, when non-nil, overrides Cacheable for a specific
	// invocation's concrete args (used by ApiCall).
	CacheableFunc func(args map[string]any) bool
	// Retryable indicates whether this kind's executor classifies any of
	// its failures as retryable; only ApiCall does today (spec.md §4.4
	// step 6).
	Retryable bool
	// OutputType is this kind's declared output shape.
	OutputType OutputType
	// InputArrayField, when non-empty, names the argument field whose
	// value must reference an array-typed output (FilterData.inputPath,
	// Loop.inputPath, MergeData.sources).
	InputArrayField string
	// Execute runs the operation and returns its JSON-shaped result.
	Execute func(ec *ExecContext) (any, error)
}

// Catalog is the registry of built-in operation kinds.
type Catalog struct {
	entries map[Kind]*Descriptor
}

// New builds the catalog with all eight built-in kinds registered.
func New() *Catalog {
	c := &Catalog{entries: make(map[Kind]*Descriptor)}
	for _, d := range builtins() {
		c.entries[d.Kind] = d
	}
	return c
}

// Lookup returns the descriptor for kind, or false if kind is not a
// catalog entry.
func (c *Catalog) Lookup(kind Kind) (*Descriptor, bool) {
	d, ok := c.entries[kind]
	return d, ok
}

// Kinds returns every registered kind name, used to build the agent's
// permission allow-list checks and for documentation/introspection.
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	return out
}

// Dispatch looks up kind and invokes its Execute function, returning a
// structured error if kind is unknown (should not happen after validation).
func (c *Catalog) Dispatch(kind Kind, ec *ExecContext) (any, error) {
	d, ok := c.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}
	return d.Execute(ec)
}

func builtins() []*Descriptor {
	return []*Descriptor{
		apiCallDescriptor(),
		filterDataDescriptor(),
		transformDataDescriptor(),
		conditionalDescriptor(),
		loopDescriptor(),
		storeDataDescriptor(),
		waitDescriptor(),
		mergeDataDescriptor(),
	}
}
