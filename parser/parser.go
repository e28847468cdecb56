// Package parser turns a JSON Lines workflow stream into a parsed
// Workflow, grounded in the teacher's streaming message-decode pattern
// (core/discovery.go's line-oriented registration decoder) but adapted to
// the two-message workflow grammar in spec.md §3/§6.
//
// Wire format (spec.md §9 open question, resolved): one JSON object per
// line, two kinds distinguished by `type`:
//
//	{"type":"operationUpdate","operationId":"a","operation":{"ApiCall":{...}}}
//	{"type":"beginExecution","executionId":"e1","operationOrder":["a","b"]}
//
// The batched `{operationUpdate:{operations:[...]}}` shape is rejected as
// a StructureError.
package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/agentforge/flowengine/catalog"
	"github.com/agentforge/flowengine/flowerr"
)

// MaxLineBytes is the maximum length of a single JSONL line (spec.md §6).
const MaxLineBytes = 256 * 1024

var operationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

const (
	msgOperationUpdate = "operationUpdate"
	msgBeginExecution  = "beginExecution"
)

// Operation is one parsed OperationDefinition message (spec.md §3).
type Operation struct {
	ID   string
	Kind catalog.Kind
	Args map[string]any
}

// Workflow is the fully parsed input: every defined operation plus the
// terminating BeginExecution message's execution order.
type Workflow struct {
	ExecutionID     string
	Operations      map[string]*Operation
	Order           []string
	ContinueOnError bool
}

type rawEnvelope struct {
	Type            string          `json:"type"`
	OperationID     string          `json:"operationId"`
	Operation       json.RawMessage `json:"operation"`
	ExecutionID     string          `json:"executionId"`
	OperationOrder  []string        `json:"operationOrder"`
	ContinueOnError bool            `json:"continueOnError"`
}

// Parse decodes workflowBytes per the JSONL grammar. Structural
// violations (malformed JSON, bad operationId, duplicate IDs, missing or
// misplaced BeginExecution, order referencing undefined IDs, duplicate
// order entries, empty order) are reported as a single StructureError
// naming the first violation found. The validator does not check these
// stream-level rules again, so only the first violation is ever reported.
func Parse(workflowBytes []byte) (*Workflow, error) {
	wf := &Workflow{Operations: make(map[string]*Operation)}

	scanner := bufio.NewScanner(bytes.NewReader(workflowBytes))
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes+1)

	sawBegin := false
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if len(line) > MaxLineBytes {
			return nil, structureErr(fmt.Sprintf("line %d exceeds maximum length of %d bytes", lineNo, MaxLineBytes))
		}
		if sawBegin {
			return nil, structureErr("beginExecution must be the last message in the stream")
		}

		var env rawEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			return nil, structureErr(fmt.Sprintf("line %d: malformed JSON: %v", lineNo, err))
		}

		switch env.Type {
		case msgOperationUpdate:
			op, err := parseOperationUpdate(env)
			if err != nil {
				return nil, err
			}
			if _, exists := wf.Operations[op.ID]; exists {
				return nil, structureErr(fmt.Sprintf("duplicate operationId %q", op.ID))
			}
			wf.Operations[op.ID] = op
		case msgBeginExecution:
			if err := validateOrder(env, wf.Operations); err != nil {
				return nil, err
			}
			wf.ExecutionID = env.ExecutionID
			wf.Order = env.OperationOrder
			wf.ContinueOnError = env.ContinueOnError
			sawBegin = true
		case "":
			return nil, structureErr(fmt.Sprintf("line %d: missing \"type\" field", lineNo))
		default:
			return nil, structureErr(fmt.Sprintf("line %d: unknown message type %q", lineNo, env.Type))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, structureErr(fmt.Sprintf("reading workflow stream: %v", err))
	}
	if !sawBegin {
		return nil, structureErr("workflow stream is missing a beginExecution message")
	}
	return wf, nil
}

func parseOperationUpdate(env rawEnvelope) (*Operation, error) {
	if !operationIDPattern.MatchString(env.OperationID) {
		return nil, structureErr(fmt.Sprintf("operationId %q does not match [A-Za-z0-9_-]{1,100}", env.OperationID))
	}

	var kinded map[string]json.RawMessage
	if err := json.Unmarshal(env.Operation, &kinded); err != nil {
		return nil, structureErr(fmt.Sprintf("operation %q: operation field must be a single-key object", env.OperationID))
	}
	if len(kinded) != 1 {
		return nil, structureErr(fmt.Sprintf("operation %q: operation must name exactly one kind (batched form is rejected)", env.OperationID))
	}

	var kindName string
	var rawArgs json.RawMessage
	for k, v := range kinded {
		kindName = k
		rawArgs = v
	}

	var args map[string]any
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, structureErr(fmt.Sprintf("operation %q: args must be a JSON object", env.OperationID))
	}

	return &Operation{ID: env.OperationID, Kind: catalog.Kind(kindName), Args: args}, nil
}

func validateOrder(env rawEnvelope, defined map[string]*Operation) error {
	if len(env.OperationOrder) == 0 {
		return structureErr("beginExecution.operationOrder must be a non-empty list")
	}
	seen := make(map[string]bool, len(env.OperationOrder))
	for _, id := range env.OperationOrder {
		if seen[id] {
			return structureErr(fmt.Sprintf("operationOrder contains duplicate entry %q", id))
		}
		seen[id] = true
		if _, ok := defined[id]; !ok {
			return structureErr(fmt.Sprintf("operationOrder references undefined operationId %q", id))
		}
	}
	return nil
}

func structureErr(message string) error {
	return flowerr.New("StructureError", flowerr.CategoryStructure, flowerr.ErrStructure, message)
}
