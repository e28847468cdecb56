// Package validator implements the static checks a parsed workflow must
// pass before any side effects run (spec.md §4.3), grounded in the
// teacher's capability-matching / permission-check style
// (orchestration/catalog.go's MatchCapability, core/registration.go's
// schema checks) generalized to the four-stage pipeline spec.md defines.
package validator

import (
	"fmt"
	"net/url"

	"github.com/agentforge/flowengine/catalog"
	"github.com/agentforge/flowengine/credential"
	"github.com/agentforge/flowengine/datamodel"
	"github.com/agentforge/flowengine/parser"
)

// Severity is an Issue's severity level.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Category groups an Issue by which validator stage produced it.
type Category string

const (
	CategoryStructure  Category = "structure"
	CategoryPermission Category = "permission"
	CategoryDependency Category = "dependency"
	CategoryType       Category = "type"
)

// Issue is one validator finding (spec.md §6's Issue shape).
type Issue struct {
	Severity    Severity
	Category    Category
	OperationID string
	Message     string
	Suggestion  string
}

// Result is the validator's response (spec.md §6's Validation response).
type Result struct {
	Valid    bool
	Errors   []Issue
	Warnings []Issue
}

// Permissions scopes what an agent may do: allowed operation kinds, API
// hosts, and credential IDs (spec.md §4.3 step 2). Populated from a
// CatalogProvider snapshot by the caller (the executor).
type Permissions struct {
	OperationKinds map[catalog.Kind]bool
	APIHosts       map[string]bool
	CredentialIDs  map[string]bool
}

// Validate runs all four stages in order, short-circuiting after a stage
// that produced any error-severity Issue so later stages don't report
// noise caused by an earlier failure (spec.md §4.3).
func Validate(wf *parser.Workflow, perms Permissions, cat *catalog.Catalog) Result {
	var all []Issue

	structural := checkStructural(wf, cat)
	all = append(all, structural...)
	if hasErrors(structural) {
		return finish(all)
	}

	permIssues := checkPermissions(wf, perms)
	all = append(all, permIssues...)
	if hasErrors(permIssues) {
		return finish(all)
	}

	outputPaths, depIssues := checkDependencyDAG(wf)
	all = append(all, depIssues...)
	if hasErrors(depIssues) {
		return finish(all)
	}

	typeIssues := checkTypes(wf, cat, outputPaths)
	all = append(all, typeIssues...)

	return finish(all)
}

func finish(issues []Issue) Result {
	res := Result{Valid: true}
	for _, i := range issues {
		if i.Severity == SeverityError {
			res.Valid = false
			res.Errors = append(res.Errors, i)
		} else {
			res.Warnings = append(res.Warnings, i)
		}
	}
	return res
}

func hasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// checkStructural checks, per operation, what only the catalog can tell
// us: whether `kind` names a known entry and whether the operation's
// required fields are present (spec.md §4.3 step 1), plus MergeData's
// source count and that every Conditional ifTrue/ifFalse ID is in the
// order. The stream-level rules the parser enforces (unique IDs,
// BeginExecution last, order well-formed) are not checked again here.
func checkStructural(wf *parser.Workflow, cat *catalog.Catalog) []Issue {
	var issues []Issue
	inOrder := make(map[string]bool, len(wf.Order))
	for _, id := range wf.Order {
		inOrder[id] = true
	}
	for _, id := range wf.Order {
		op := wf.Operations[id]
		desc, ok := cat.Lookup(op.Kind)
		if !ok {
			issues = append(issues, Issue{
				Severity: SeverityError, Category: CategoryStructure, OperationID: id,
				Message:    fmt.Sprintf("unknown operation kind %q", op.Kind),
				Suggestion: "use one of the catalog's built-in kinds",
			})
			continue
		}
		for _, field := range desc.RequiredFields {
			if _, present := op.Args[field]; !present {
				issues = append(issues, Issue{
					Severity: SeverityError, Category: CategoryStructure, OperationID: id,
					Message:    fmt.Sprintf("%s is missing required field %q", op.Kind, field),
					Suggestion: fmt.Sprintf("add %q to the operation's args", field),
				})
			}
		}

		if op.Kind == catalog.KindMergeData {
			if sources, ok := op.Args["sources"].([]any); !ok || len(sources) < 2 {
				issues = append(issues, Issue{
					Severity: SeverityError, Category: CategoryStructure, OperationID: id,
					Message:    "MergeData.sources must list at least two sources",
				})
			}
		}

		if op.Kind == catalog.KindConditional {
			for _, field := range []string{"ifTrue", "ifFalse"} {
				branch, _ := op.Args[field].([]any)
				for _, b := range branch {
					if s, _ := b.(string); !inOrder[s] {
						issues = append(issues, Issue{Severity: SeverityError, Category: CategoryStructure, OperationID: id,
							Message: fmt.Sprintf("Conditional.%s names %q, which is not in operationOrder", field, s)})
					}
				}
			}
		}
	}
	return issues
}

// checkPermissions enforces the agent's allow-lists: operation kind,
// ApiCall host, and every credential reference ID (spec.md §4.3 step 2).
func checkPermissions(wf *parser.Workflow, perms Permissions) []Issue {
	var issues []Issue
	for _, id := range wf.Order {
		op := wf.Operations[id]
		if perms.OperationKinds != nil && !perms.OperationKinds[op.Kind] {
			issues = append(issues, Issue{
				Severity: SeverityError, Category: CategoryPermission, OperationID: id,
				Message:    fmt.Sprintf("agent is not permitted to use operation kind %q", op.Kind),
				Suggestion: "request access to this operation kind or remove it from the workflow",
			})
		}

		if op.Kind == catalog.KindApiCall {
			if rawURL, ok := op.Args["url"].(string); ok && !datamodel.LooksLikePath(rawURL) {
				if host := hostOf(rawURL); host != "" && perms.APIHosts != nil && !perms.APIHosts[host] {
					issues = append(issues, Issue{
						Severity: SeverityError, Category: CategoryPermission, OperationID: id,
						Message:    fmt.Sprintf("host %q is not in the agent's allowed-APIs set", host),
						Suggestion: "request access to this host or point the call at an allowed API",
					})
				}
			}
		}

		for _, credID := range credential.FindRefIDs(op.Args) {
			if perms.CredentialIDs != nil && !perms.CredentialIDs[credID] {
				issues = append(issues, Issue{
					Severity: SeverityError, Category: CategoryPermission, OperationID: id,
					Message:    fmt.Sprintf("credential %q is not in the agent's allowed-credentials set", credID),
					Suggestion: "request access to this credential",
				})
			}
		}
	}
	return issues
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// checkDependencyDAG collects, for each operation, the DataModel paths it
// reads and requires each to be the outputPath of some strictly earlier
// operation in order (or a sub-path of it) — the only dependency rule; no
// implicit reordering (spec.md §4.3 step 3, §8, §9). Returns the
// outputPath table built along the way for reuse by checkTypes.
// loopBindingPath is the /workflow/_loop subtree Loop binds dynamically on
// each iteration (current, index); references into it never resolve to an
// earlier operation's outputPath, so the dependency check special-cases it.
var loopBindingPath = datamodel.MustParsePath(datamodel.Root + "/_loop")

func checkDependencyDAG(wf *parser.Workflow) (map[string]datamodel.Path, []Issue) {
	var issues []Issue
	outputPaths := make(map[string]datamodel.Path)

	for i, id := range wf.Order {
		op := wf.Operations[id]

		// outputPath is where op writes, not a path it reads.
		readArgs := make(map[string]any, len(op.Args))
		for k, v := range op.Args {
			if k != "outputPath" {
				readArgs[k] = v
			}
		}
		refs, err := datamodel.CollectPaths(readArgs)
		if err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError, Category: CategoryDependency, OperationID: id,
				Message: fmt.Sprintf("malformed reference path: %v", err),
			})
		}

		for _, ref := range refs {
			if loopBindingPath.IsPrefixOf(ref) {
				continue // bound dynamically by the enclosing Loop, not by any outputPath
			}
			satisfied := false
			for _, earlierID := range wf.Order[:i] {
				out, ok := outputPaths[earlierID]
				if ok && out.IsPrefixOf(ref) {
					satisfied = true
					break
				}
			}
			if !satisfied {
				issues = append(issues, Issue{
					Severity: SeverityError, Category: CategoryDependency, OperationID: id,
					Message:    fmt.Sprintf("reference to %q is not the outputPath of any earlier operation", ref.String()),
					Suggestion: "reorder the workflow or produce this path from an earlier operation",
				})
			}
		}

		if rawOut, ok := op.Args["outputPath"].(string); ok {
			if p, err := datamodel.ParsePath(rawOut); err == nil {
				outputPaths[id] = p
			}
		}
	}

	return outputPaths, issues
}

// checkTypes enforces the static output-type table: FilterData, Loop, and
// MergeData must reference an array-typed outputPath; Conditional.
// condition.path must be readable (already proven by the dependency
// check, since an unreadable path would have failed there) (spec.md §4.3
// step 4).
func checkTypes(wf *parser.Workflow, cat *catalog.Catalog, outputPaths map[string]datamodel.Path) []Issue {
	var issues []Issue
	producerKind := make(map[string]catalog.Kind, len(wf.Operations))
	for id, op := range wf.Operations {
		producerKind[id] = op.Kind
	}

	for _, id := range wf.Order {
		op := wf.Operations[id]
		desc, ok := cat.Lookup(op.Kind)
		if !ok || desc.InputArrayField == "" {
			continue
		}
		if !typeCheckArrayField(wf, desc, op, outputPaths, producerKind, cat, &issues, id) {
			continue
		}
	}
	return issues
}

func typeCheckArrayField(wf *parser.Workflow, desc *catalog.Descriptor, op *parser.Operation, outputPaths map[string]datamodel.Path, producerKind map[string]catalog.Kind, cat *catalog.Catalog, issues *[]Issue, id string) bool {
	refPaths := collectFieldPaths(op.Args[desc.InputArrayField])
	for _, ref := range refPaths {
		producer := findProducer(ref, outputPaths)
		if producer == "" {
			continue // already flagged by the dependency check
		}
		pd, ok := cat.Lookup(producerKind[producer])
		if !ok {
			continue
		}
		if pd.OutputType != catalog.OutputArray && pd.OutputType != catalog.OutputAny {
			*issues = append(*issues, Issue{
				Severity: SeverityError, Category: CategoryType, OperationID: id,
				Message:    fmt.Sprintf("%s.%s references %q, whose producing operation %q does not declare an array output", op.Kind, desc.InputArrayField, ref.String(), producer),
				Suggestion: "reference an operation whose output is array-typed",
			})
		}
	}
	return true
}

func collectFieldPaths(v any) []datamodel.Path {
	var out []datamodel.Path
	switch t := v.(type) {
	case string:
		if datamodel.LooksLikePath(t) {
			if p, err := datamodel.ParsePath(t); err == nil {
				out = append(out, p)
			}
		}
	case []any:
		for _, e := range t {
			out = append(out, collectFieldPaths(e)...)
		}
	}
	return out
}

func findProducer(ref datamodel.Path, outputPaths map[string]datamodel.Path) string {
	for id, out := range outputPaths {
		if out.IsPrefixOf(ref) {
			return id
		}
	}
	return ""
}
