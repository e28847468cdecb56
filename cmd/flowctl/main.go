// Command flowctl runs a JSON Lines workflow file through the engine and
// prints the resulting Validation or Execution response as JSON, grounded
// in the teacher's minimal cmd/example/main.go (plain main, no CLI
// framework — the teacher's own tooling doesn't reach for one, so flowctl
// doesn't either).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/agentforge/flowengine/audit"
	"github.com/agentforge/flowengine/config"
	"github.com/agentforge/flowengine/credential"
	"github.com/agentforge/flowengine/executor"
	"github.com/agentforge/flowengine/flowlog"
	"github.com/agentforge/flowengine/ratelimit"
	"github.com/agentforge/flowengine/resultcache"
	"github.com/agentforge/flowengine/retry"
	"github.com/agentforge/flowengine/storage"
)

func main() {
	agentID := flag.String("agent", "local-agent", "agent ID the workflow runs as")
	configPath := flag.String("config", "", "optional YAML config file overriding engine defaults")
	debug := flag.Bool("debug", false, "emit debug-level log lines")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: flowctl [flags] <workflow.jsonl>")
		os.Exit(2)
	}

	workflowBytes, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("reading workflow file: %v", err)
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.LoadYAMLFile(cfg, *configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
	}
	cfg = config.ApplyEnv(cfg)

	logger := flowlog.NewJSONLogger(os.Stderr, *debug)
	auditLog := audit.NewInMemory(10000)

	eng := executor.New(
		executor.WithConfig(cfg),
		executor.WithLogger(logger),
		executor.WithAuditLog(auditLog),
		executor.WithCache(resultcache.New(cfg.Cache.MaxSize, seconds(cfg.Cache.DefaultTTLSec), cfg.Cache.PerKindTTL())),
		executor.WithRateLimiter(ratelimit.NewInMemory(asRatelimitLimits(cfg.RateLimits), perAgentLimits(cfg.RateLimits.PerAgent))),
		executor.WithRetryPolicy(retry.New(asRetryConfig(cfg.Retry))),
		executor.WithStorage(storage.NewDefault(os.TempDir())),
		executor.WithCredentialResolver(envCredentialResolver{}),
	)

	outcome, err := eng.Run(context.Background(), *agentID, workflowBytes)
	if err != nil {
		log.Fatalf("running workflow: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if outcome.Validation != nil {
		if encErr := enc.Encode(outcome.Validation); encErr != nil {
			log.Fatalf("encoding validation result: %v", encErr)
		}
		os.Exit(1)
	}
	if encErr := enc.Encode(outcome.Response); encErr != nil {
		log.Fatalf("encoding response: %v", encErr)
	}
	if outcome.Response.Status != executor.StatusSuccess {
		os.Exit(1)
	}
}

// envCredentialResolver resolves a credential ID to the value of
// FLOWENGINE_CRED_<ID> (uppercased, each non-alphanumeric character
// replaced by an underscore), formatted as a bearer token. It exists so flowctl is usable
// standalone without a real secret store; production embedders supply their
// own credential.Resolver via executor.WithCredentialResolver.
type envCredentialResolver struct{}

func (envCredentialResolver) Resolve(_ context.Context, id string) (string, credential.Type, error) {
	key := "FLOWENGINE_CRED_" + envSafe(id)
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", "", fmt.Errorf("no value for credential %q (expected env var %s)", id, key)
	}
	return value, credential.TypeBearerToken, nil
}

func envSafe(id string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(id) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
func millis(n int) time.Duration  { return time.Duration(n) * time.Millisecond }

func asRatelimitLimits(r config.RateLimits) ratelimit.Limits {
	return ratelimit.Limits{
		RequestsPerMinute: r.RequestsPerMinute,
		RequestsPerHour:   r.RequestsPerHour,
		RequestsPerDay:    r.RequestsPerDay,
		ApiCallsPerMinute: r.ApiCallsPerMinute,
		ApiCallsPerHour:   r.ApiCallsPerHour,
	}
}

func perAgentLimits(in map[string]config.RateLimits) map[string]ratelimit.Limits {
	if in == nil {
		return nil
	}
	out := make(map[string]ratelimit.Limits, len(in))
	for k, v := range in {
		out[k] = asRatelimitLimits(v)
	}
	return out
}

func asRetryConfig(r config.Retry) retry.Config {
	return retry.Config{
		MaxRetries:   r.MaxRetries,
		InitialDelay: millis(r.InitialDelayMs),
		MaxDelay:     millis(r.MaxDelayMs),
		BackoffBase:  r.BackoffBase,
		Jitter:       r.Jitter,
	}
}
