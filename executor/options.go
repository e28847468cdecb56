package executor

import (
	"context"
	"fmt"

	"github.com/agentforge/flowengine/audit"
	"github.com/agentforge/flowengine/catalog"
	"github.com/agentforge/flowengine/config"
	"github.com/agentforge/flowengine/credential"
	"github.com/agentforge/flowengine/flowlog"
	"github.com/agentforge/flowengine/flowtelemetry"
	"github.com/agentforge/flowengine/ratelimit"
	"github.com/agentforge/flowengine/resultcache"
	"github.com/agentforge/flowengine/retry"
	"github.com/agentforge/flowengine/storage"
	"github.com/agentforge/flowengine/validator"
)

// AllowedCatalog is one agent's permission snapshot, fetched fresh on every
// Run call (spec.md §6: "the CatalogProvider is asked once per execution,
// not cached by the Executor").
type AllowedCatalog struct {
	OperationKinds []catalog.Kind
	APIHosts       []string
	CredentialIDs  []string
}

// CatalogProvider is the external collaborator naming what an agent is
// permitted to do (spec.md §6). A nil slice in the returned AllowedCatalog
// means "unrestricted" for that dimension, matching validator.Permissions'
// nil-map convention.
type CatalogProvider interface {
	GetAllowedCatalog(ctx context.Context, agentID string) (AllowedCatalog, error)
}

// allowAllProvider is the zero-config default: every kind, host, and
// credential ID is permitted. Production deployments are expected to
// supply their own CatalogProvider via WithCatalogProvider.
type allowAllProvider struct{}

func (allowAllProvider) GetAllowedCatalog(context.Context, string) (AllowedCatalog, error) {
	return AllowedCatalog{}, nil
}

// unconfiguredResolver errors on every Resolve call. It is the default so a
// workflow that never references a credential runs with zero setup, while
// one that does gets a clear, immediate failure rather than a silent wrong
// value.
type unconfiguredResolver struct{}

func (unconfiguredResolver) Resolve(context.Context, string) (string, credential.Type, error) {
	return "", "", fmt.Errorf("no credential resolver configured")
}

func buildPermissions(ac AllowedCatalog) validator.Permissions {
	perms := validator.Permissions{}
	if ac.OperationKinds != nil {
		perms.OperationKinds = make(map[catalog.Kind]bool, len(ac.OperationKinds))
		for _, k := range ac.OperationKinds {
			perms.OperationKinds[k] = true
		}
	}
	if ac.APIHosts != nil {
		perms.APIHosts = make(map[string]bool, len(ac.APIHosts))
		for _, h := range ac.APIHosts {
			perms.APIHosts[h] = true
		}
	}
	if ac.CredentialIDs != nil {
		perms.CredentialIDs = make(map[string]bool, len(ac.CredentialIDs))
		for _, c := range ac.CredentialIDs {
			perms.CredentialIDs[c] = true
		}
	}
	return perms
}

// Option configures an Executor at construction time, matching the
// teacher's functional-options convention (agent.go's AgentOption).
type Option func(*Executor)

// WithCatalog overrides the built-in operation catalog; mainly useful for
// tests that register a stub kind.
func WithCatalog(c *catalog.Catalog) Option {
	return func(e *Executor) { e.catalog = c }
}

// WithCache installs a ResultCache. Pass nil to disable caching entirely.
func WithCache(c *resultcache.Cache) Option {
	return func(e *Executor) { e.cache = c }
}

// WithRateLimiter installs a RateLimiter.
func WithRateLimiter(l ratelimit.RateLimiter) Option {
	return func(e *Executor) { e.limiter = l }
}

// WithAuditLog installs an AuditLog sink.
func WithAuditLog(a audit.AuditLog) Option {
	return func(e *Executor) { e.audit = a }
}

// WithCredentialResolver installs the CredentialResolver used to format
// {credentialRef:{id}} markers into live values.
func WithCredentialResolver(r credential.Resolver) Option {
	return func(e *Executor) { e.resolver = r }
}

// WithCatalogProvider installs the per-agent permission source.
func WithCatalogProvider(p CatalogProvider) Option {
	return func(e *Executor) { e.provider = p }
}

// WithRetryPolicy overrides the RetryPolicy used for Retryable kinds.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(e *Executor) { e.retryPolicy = p }
}

// WithStorage installs the Storage collaborator StoreData delegates to.
func WithStorage(s storage.Storage) Option {
	return func(e *Executor) { e.storage = s }
}

// WithConfig overrides the resource-cap/rate-limit/cache/retry
// configuration. Callers installing their own RateLimiter/Cache/RetryPolicy
// should still pass a matching Config so the caps it also governs (max
// operations, max duration, max DataModel bytes) stay consistent.
func WithConfig(cfg config.Config) Option {
	return func(e *Executor) { e.cfg = cfg }
}

// WithLogger installs a component-scoped Logger.
func WithLogger(l flowlog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithTelemetry installs a Telemetry sink for spans/metrics.
func WithTelemetry(t flowtelemetry.Telemetry) Option {
	return func(e *Executor) { e.telemetry = t }
}
