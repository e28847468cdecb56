// Package executor implements the Executor (spec.md §4.4): it ties parser,
// validator, catalog, datamodel, credential, ratelimit, resultcache, retry
// and audit together into the per-operation pipeline and final response
// assembly. Grounded in the teacher's orchestration loop
// (orchestration/workflow_dag.go's sequential step executor) generalized to
// the eight-step pipeline and the Conditional/Loop callback seam spec.md
// defines.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentforge/flowengine/audit"
	"github.com/agentforge/flowengine/catalog"
	"github.com/agentforge/flowengine/config"
	"github.com/agentforge/flowengine/credential"
	"github.com/agentforge/flowengine/datamodel"
	"github.com/agentforge/flowengine/flowerr"
	"github.com/agentforge/flowengine/flowlog"
	"github.com/agentforge/flowengine/flowtelemetry"
	"github.com/agentforge/flowengine/parser"
	"github.com/agentforge/flowengine/ratelimit"
	"github.com/agentforge/flowengine/resultcache"
	"github.com/agentforge/flowengine/retry"
	"github.com/agentforge/flowengine/storage"
	"github.com/agentforge/flowengine/validator"
)

// Executor is the engine's top-level entry point: one value serves any
// number of concurrent Run calls, each building its own DataModel and
// execution-local state.
type Executor struct {
	catalog     *catalog.Catalog
	cache       *resultcache.Cache
	limiter     ratelimit.RateLimiter
	audit       audit.AuditLog
	resolver    credential.Resolver
	provider    CatalogProvider
	retryPolicy *retry.Policy
	storage     storage.Storage
	cfg         config.Config
	logger      flowlog.Logger
	telemetry   flowtelemetry.Telemetry
}

// New builds an Executor from defaults, overridden by opts. The zero-config
// default accepts every operation kind/host/credential (allowAllProvider)
// and errors only if a workflow actually references a credential without a
// configured CredentialResolver.
func New(opts ...Option) *Executor {
	cfg := config.Default()
	e := &Executor{
		catalog:     catalog.New(),
		cache:       resultcache.New(cfg.Cache.MaxSize, time.Duration(cfg.Cache.DefaultTTLSec)*time.Second, cfg.Cache.PerKindTTL()),
		limiter:     ratelimit.NewInMemory(ratelimit.DefaultLimits(), nil),
		audit:       audit.NewInMemory(0),
		resolver:    unconfiguredResolver{},
		provider:    allowAllProvider{},
		retryPolicy: retry.New(retry.DefaultConfig()),
		storage:     storage.NewDefault(""),
		cfg:         cfg,
		logger:      flowlog.NewNoop(),
		telemetry:   flowtelemetry.NewNoop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if !e.cfg.Cache.Enabled {
		e.cache = nil
	}
	return e
}

// execState is one Run call's mutable execution-local bookkeeping. It is
// never shared across goroutines beyond the single Run that owns it, except
// through the DataModel's own internal locking.
type execState struct {
	ctx         context.Context
	agentID     string
	wf          *parser.Workflow
	model       *datamodel.DataModel
	outputPaths map[string]datamodel.Path

	processed map[string]bool
	skipped   map[string]bool
	summaries map[string]OperationSummary

	opCount   int
	start     time.Time
	hardAbort error // first error returned by a top-level step; stops the top-level walk
}

// Run parses, validates, and — if valid — executes workflowBytes for
// agentID. The returned Outcome carries exactly one of Validation (rejected
// before any side effect) or Response (ran, possibly with per-operation
// failures). A non-nil error means a collaborator (CatalogProvider) failed,
// not that the workflow was rejected.
func (e *Executor) Run(ctx context.Context, agentID string, workflowBytes []byte) (*Outcome, error) {
	logger := e.logger
	if ca, ok := logger.(flowlog.ComponentAware); ok {
		logger = ca.WithComponent("executor")
	}

	wf, err := parser.Parse(workflowBytes)
	if err != nil {
		return &Outcome{Validation: rejectionFromError(err)}, nil
	}

	ac, err := e.provider.GetAllowedCatalog(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("fetch allowed catalog for agent %q: %w", agentID, err)
	}
	perms := buildPermissions(ac)

	result := validator.Validate(wf, perms, e.catalog)
	if !result.Valid {
		logger.Warn("workflow rejected by validator", map[string]interface{}{"agentId": agentID, "errors": len(result.Errors)})
		return &Outcome{Validation: &result}, nil
	}

	ctx = flowlog.WithCorrelation(ctx, flowlog.Correlation{ExecutionID: wf.ExecutionID, AgentID: agentID})
	ctx, span := e.telemetry.StartSpan(ctx, "flowengine.execution")
	defer span.End()

	run := &execState{
		ctx:         ctx,
		agentID:     agentID,
		wf:          wf,
		model:       datamodel.New(),
		outputPaths: staticOutputPaths(wf),
		processed:   make(map[string]bool, len(wf.Operations)),
		skipped:     make(map[string]bool),
		summaries:   make(map[string]OperationSummary, len(wf.Operations)),
		start:       time.Now(),
	}

	e.audit.Append(audit.Event{
		Type: audit.EventExecutionStarted, Timestamp: run.start,
		ExecutionID: wf.ExecutionID, AgentID: agentID,
	})
	logger.InfoContext(ctx, "execution started", map[string]interface{}{"operations": len(wf.Order)})

	for _, id := range wf.Order {
		if run.hardAbort != nil {
			break
		}
		if err := e.topLevelStep(run, id); err != nil {
			run.hardAbort = err
			span.RecordError(err)
			break
		}
	}

	status := computeStatus(run)
	durationMs := time.Since(run.start).Milliseconds()

	e.audit.Append(audit.Event{
		Type: audit.EventExecutionFinished, Timestamp: time.Now(),
		ExecutionID: wf.ExecutionID, AgentID: agentID,
		DurationMs: durationMs, Status: string(status),
	})
	e.telemetry.RecordMetric("flowengine.execution.duration_ms", float64(durationMs), map[string]string{"status": string(status)})
	logger.InfoContext(ctx, "execution finished", map[string]interface{}{"status": string(status), "durationMs": durationMs})

	resp := &Response{
		ExecutionID: wf.ExecutionID,
		Status:      status,
		Operations:  run.summaries,
		Data:        projectDataModel(run.model, e.cfg.Limits),
		DurationMs:  durationMs,
	}
	return &Outcome{Response: resp}, nil
}

// resolveConditionalArgs resolves Conditional's args without routing
// condition.path through the generic Resolver: exists/empty test a path's
// absence, which the generic Resolver can never report since Read fails
// outright on a missing path. A missing condition.path therefore resolves to
// nil (exists=false, empty=true) instead of failing argument resolution.
// ifTrue/ifFalse hold operation IDs, never references, so they pass through
// untouched; condition.value is resolved the same tolerant way in case a
// workflow compares against another path's current value.
func resolveConditionalArgs(model *datamodel.DataModel, args map[string]any) (map[string]any, error) {
	patched := make(map[string]any, len(args))
	for k, v := range args {
		patched[k] = v
	}
	cond, ok := args["condition"].(map[string]any)
	if !ok {
		return patched, nil
	}
	newCond := make(map[string]any, len(cond))
	for k, v := range cond {
		newCond[k] = v
	}
	if rawPath, ok := cond["path"].(string); ok && datamodel.LooksLikePath(rawPath) {
		p, err := datamodel.ParsePath(rawPath)
		if err != nil {
			return nil, err
		}
		value, readErr := model.Read(p)
		if readErr != nil {
			value = nil
		}
		newCond["path"] = value
	}
	if rawVal, ok := cond["value"].(string); ok && datamodel.LooksLikePath(rawVal) {
		if p, err := datamodel.ParsePath(rawVal); err == nil {
			if v, readErr := model.Read(p); readErr == nil {
				newCond["value"] = v
			}
		}
	}
	patched["condition"] = newCond
	return patched, nil
}

// staticOutputPaths precomputes each operation's declared outputPath (a
// literal in the operation's own args, known before anything executes) so
// the skip-cascade check can find an upstream producer without waiting for
// it to actually run.
func staticOutputPaths(wf *parser.Workflow) map[string]datamodel.Path {
	out := make(map[string]datamodel.Path, len(wf.Operations))
	for id, op := range wf.Operations {
		raw, ok := op.Args["outputPath"].(string)
		if !ok {
			continue
		}
		if p, err := datamodel.ParsePath(raw); err == nil {
			out[id] = p
		}
	}
	return out
}

// topLevelStep drives one entry of the outer operationOrder walk. It is a
// no-op if id was already handled by a nested RunOps/SkipOps call from an
// enclosing Conditional or Loop (spec.md §4.4: Conditional/Loop branches
// "appear in outer order" but must not re-run once their owning operation
// has already executed them).
func (e *Executor) topLevelStep(run *execState, id string) error {
	if run.processed[id] {
		return nil
	}
	if run.skipped[id] {
		run.processed[id] = true
		run.summaries[id] = OperationSummary{Status: OpSkipped}
		return nil
	}
	if _, skippedUpstream := e.upstreamSkipped(run, id); skippedUpstream {
		run.skipped[id] = true
		run.processed[id] = true
		run.summaries[id] = OperationSummary{Status: OpSkipped}
		return nil
	}
	return e.execOne(run, id)
}

// upstreamSkipped reports whether any path id's operation reads from is
// produced by an operation that was itself skipped, propagating the skip
// transitively (spec.md §4.4 step 2).
func (e *Executor) upstreamSkipped(run *execState, id string) (string, bool) {
	op := run.wf.Operations[id]
	refs, err := datamodel.CollectPaths(referenceArgs(op.Args))
	if err != nil {
		return "", false
	}
	for _, ref := range refs {
		for producer, out := range run.outputPaths {
			if producer == id {
				continue
			}
			if out.IsPrefixOf(ref) && run.skipped[producer] {
				return producer, true
			}
		}
	}
	return "", false
}

// referenceArgs returns args without the top-level outputPath: outputPath
// names where an operation writes, not a path it reads, so it is neither
// resolved nor part of the cache key.
func referenceArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if k != "outputPath" {
			out[k] = v
		}
	}
	return out
}

// runOpsCallback is handed to Conditional/Loop as catalog.StepRunner. It
// executes every id given to it except those a Conditional has marked
// skipped (unlike topLevelStep, it is never gated by `processed` — a Loop
// body must re-run each iteration).
func (e *Executor) runOpsCallback(run *execState) catalog.StepRunner {
	return func(ctx context.Context, ids []string) error {
		for _, id := range ids {
			if run.skipped[id] {
				continue
			}
			if err := e.execOne(run, id); err != nil {
				return err
			}
		}
		return nil
	}
}

// skipOpsCallback is handed to Conditional as catalog.SkipFunc for the
// branch not taken.
func (e *Executor) skipOpsCallback(run *execState) catalog.SkipFunc {
	return func(ids []string) {
		for _, id := range ids {
			run.skipped[id] = true
		}
	}
}

// execOne runs the full eight-step pipeline for id unconditionally: resolve
// paths, canonicalize for the cache key, check cache, rate-limit, resolve
// credentials, dispatch (with retry if Retryable), write outputPath, audit.
func (e *Executor) execOne(run *execState, id string) error {
	if err := e.checkBudget(run); err != nil {
		run.processed[id] = true
		run.summaries[id] = failureSummary(id, err, 0)
		return err
	}
	run.opCount++

	op := run.wf.Operations[id]
	desc, ok := e.catalog.Lookup(op.Kind)
	if !ok {
		err := flowerr.New("StructureError", flowerr.CategoryStructure, flowerr.ErrStructure, fmt.Sprintf("unknown operation kind %q", op.Kind)).WithOperation(id)
		run.processed[id] = true
		run.summaries[id] = failureSummary(id, err, 0)
		return err
	}

	opStart := time.Now()
	ctx, span := e.telemetry.StartSpan(run.ctx, "flowengine.operation."+string(op.Kind))
	defer span.End()

	var resolvedArgs map[string]any
	if op.Kind == catalog.KindConditional {
		var cerr error
		resolvedArgs, cerr = resolveConditionalArgs(run.model, op.Args)
		if cerr != nil {
			werr := flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, cerr.Error()).WithOperation(id)
			return e.finishFailed(run, id, werr, opStart, span)
		}
	} else {
		resolver := datamodel.NewResolver(run.model)
		resolvedAny, rerr := resolver.Resolve(referenceArgs(op.Args))
		if rerr != nil {
			werr := flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, rerr.Error()).WithOperation(id)
			return e.finishFailed(run, id, werr, opStart, span)
		}
		resolvedArgs, _ = resolvedAny.(map[string]any)
		if out, ok := op.Args["outputPath"]; ok {
			resolvedArgs["outputPath"] = out
		}
	}

	canonicalArgs := credential.Canonicalize(referenceArgs(resolvedArgs))

	cacheable := desc.Cacheable
	if desc.CacheableFunc != nil {
		cacheable = desc.CacheableFunc(resolvedArgs)
	}

	var cacheKey string
	if cacheable && e.cache != nil {
		cacheKey = resultcache.Key(op.Kind, canonicalArgs)
		if cached, hit := e.cache.Get(cacheKey); hit {
			e.telemetry.RecordMetric("flowengine.cache.hit", 1, map[string]string{"kind": string(op.Kind)})
			return e.finishSucceeded(run, id, op, resolvedArgs, cached, opStart, span)
		}
		e.telemetry.RecordMetric("flowengine.cache.miss", 1, map[string]string{"kind": string(op.Kind)})
	}

	decision := e.limiter.Acquire(ctx, run.agentID, op.Kind)
	if !decision.Allowed {
		werr := flowerr.New("RateLimitError", flowerr.CategoryRateLimit, flowerr.ErrRateLimit, "rate limit exceeded").
			WithOperation(id).
			WithContext(map[string]any{"retryAfterMs": decision.RetryAfterMs}).
			WithRecoverable(true)
		e.telemetry.RecordMetric("flowengine.ratelimit.denied", 1, map[string]string{"kind": string(op.Kind)})
		return e.finishFailed(run, id, werr, opStart, span)
	}

	finalAny, err := credential.ResolveRefs(ctx, resolvedArgs, e.resolver, func(credID string) {
		e.audit.Append(audit.Event{
			Type: audit.EventCredentialUsed, Timestamp: time.Now(),
			ExecutionID: run.wf.ExecutionID, OperationID: id, AgentID: run.agentID,
			CredentialID: credID,
		})
	})
	if err != nil {
		werr := flowerr.New("AuthorizationError", flowerr.CategoryAuthz, flowerr.ErrAuthorization, err.Error()).WithOperation(id)
		return e.finishFailed(run, id, werr, opStart, span)
	}
	finalArgs, _ := finalAny.(map[string]any)

	e.audit.Append(audit.Event{
		Type: audit.EventOperationStarted, Timestamp: opStart,
		ExecutionID: run.wf.ExecutionID, OperationID: id, AgentID: run.agentID, Kind: string(op.Kind),
		ArgsDigest: audit.SanitizeArgsDigest(finalArgs),
	})

	ec := &catalog.ExecContext{
		Ctx: ctx, OperationID: id, Args: finalArgs, Model: run.model, Storage: e.storage,
		RunOps: e.runOpsCallback(run), SkipOps: e.skipOpsCallback(run),
	}

	var result any
	if desc.Retryable && e.retryPolicy != nil {
		result, err = e.retryPolicy.Do(ctx, func(ctx context.Context) (any, error) {
			ec.Ctx = ctx
			return e.catalog.Dispatch(op.Kind, ec)
		})
	} else {
		result, err = e.catalog.Dispatch(op.Kind, ec)
	}
	if err != nil {
		return e.finishFailed(run, id, err, opStart, span)
	}

	if cacheable && e.cache != nil {
		e.cache.Set(cacheKey, op.Kind, result)
	}
	return e.finishSucceeded(run, id, op, resolvedArgs, result, opStart, span)
}

func (e *Executor) finishSucceeded(run *execState, id string, op *parser.Operation, resolvedArgs map[string]any, result any, start time.Time, span flowtelemetry.Span) error {
	if raw, ok := resolvedArgs["outputPath"].(string); ok {
		if p, err := datamodel.ParsePath(raw); err == nil {
			if err := run.model.Write(p, result); err != nil {
				werr := flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, err.Error()).WithOperation(id)
				return e.finishFailed(run, id, werr, start, span)
			}
		}
	}

	durationMs := time.Since(start).Milliseconds()
	run.processed[id] = true
	run.summaries[id] = OperationSummary{Status: OpSuccess, DurationMs: durationMs, Result: result}

	e.audit.Append(audit.Event{
		Type: audit.EventOperationFinished, Timestamp: time.Now(),
		ExecutionID: run.wf.ExecutionID, OperationID: id, AgentID: run.agentID, Kind: string(op.Kind),
		DurationMs: durationMs, Status: string(OpSuccess),
	})
	return nil
}

func (e *Executor) finishFailed(run *execState, id string, err error, start time.Time, span flowtelemetry.Span) error {
	span.RecordError(err)
	durationMs := time.Since(start).Milliseconds()
	run.processed[id] = true
	run.summaries[id] = failureSummary(id, err, durationMs)

	op := run.wf.Operations[id]
	kind := ""
	if op != nil {
		kind = string(op.Kind)
	}
	e.audit.Append(audit.Event{
		Type: audit.EventOperationFinished, Timestamp: time.Now(),
		ExecutionID: run.wf.ExecutionID, OperationID: id, AgentID: run.agentID, Kind: kind,
		DurationMs: durationMs, Status: string(OpFailed), Err: err.Error(),
	})
	return err
}

func failureSummary(id string, err error, durationMs int64) OperationSummary {
	return OperationSummary{
		Status:     OpFailed,
		DurationMs: durationMs,
		Error:      errorInfo(id, err),
	}
}

func errorInfo(id string, err error) *ErrorInfo {
	var fe *flowerr.FlowError
	if errors.As(err, &fe) {
		return &ErrorInfo{
			Type: fe.Type, Category: string(fe.Category), Message: fe.Message,
			OperationID: id, Recoverable: fe.Recoverable, Context: fe.Context, Suggestions: fe.Suggestions,
		}
	}
	return &ErrorInfo{Type: "ExecutionError", Category: string(flowerr.CategoryExecution), Message: err.Error(), OperationID: id}
}

// checkBudget enforces the resource caps from spec.md §5 before another
// operation is dispatched.
func (e *Executor) checkBudget(run *execState) error {
	lim := e.cfg.Limits
	if lim.MaxOperationsPerWorkflow > 0 && run.opCount >= lim.MaxOperationsPerWorkflow {
		return flowerr.New("ResourceError", flowerr.CategoryResource, flowerr.ErrResource,
			fmt.Sprintf("workflow exceeded the maximum of %d operations", lim.MaxOperationsPerWorkflow))
	}
	if lim.MaxWorkflowDurationMs > 0 {
		if time.Since(run.start) > time.Duration(lim.MaxWorkflowDurationMs)*time.Millisecond {
			return flowerr.New("ResourceError", flowerr.CategoryResource, flowerr.ErrResource,
				fmt.Sprintf("workflow exceeded the maximum duration of %dms", lim.MaxWorkflowDurationMs))
		}
	}
	if lim.MaxDataModelBytes > 0 && run.model.SizeBytes() > lim.MaxDataModelBytes {
		return flowerr.New("ResourceError", flowerr.CategoryResource, flowerr.ErrResource,
			fmt.Sprintf("DataModel exceeded the maximum of %d bytes", lim.MaxDataModelBytes))
	}
	select {
	case <-run.ctx.Done():
		return flowerr.New("CancellationError", flowerr.CategoryCancelled, flowerr.ErrCancelled, "execution cancelled")
	default:
	}
	return nil
}

func computeStatus(run *execState) Status {
	sawSkipped := false
	for _, s := range run.summaries {
		if s.Status == OpFailed {
			return StatusFailed
		}
		if s.Status == OpSkipped {
			sawSkipped = true
		}
	}
	if sawSkipped {
		return StatusPartialSuccess
	}
	return StatusSuccess
}

// projectDataModel returns the DataModel's full snapshot for the response's
// `data` field. The Limits argument is not read: strings longer than
// MaxStringFieldBytes are not elided and arrays longer than MaxArrayLength
// are not truncated. MaxDataModelBytes is checked only before each
// operation is dispatched, so the returned tree can exceed it.
func projectDataModel(model *datamodel.DataModel, _ config.Limits) map[string]any {
	return model.Snapshot()
}

// rejectionFromError converts a parser-level StructureError into a
// validator.Result shape, so callers only ever branch on Outcome.Validation
// vs Outcome.Response regardless of whether rejection happened at parse
// time or at validation time.
func rejectionFromError(err error) *validator.Result {
	var fe *flowerr.FlowError
	msg := err.Error()
	category := validator.CategoryStructure
	if errors.As(err, &fe) {
		msg = fe.Message
	}
	return &validator.Result{
		Valid: false,
		Errors: []validator.Issue{
			{Severity: validator.SeverityError, Category: category, Message: msg},
		},
	}
}
