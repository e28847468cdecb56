// Package config implements the engine's configuration surface (spec.md
// §6): rateLimits, retry, cache, and limits, loadable from built-in
// defaults, an optional YAML file, and FLOWENGINE_-prefixed environment
// variable overrides, grounded in the teacher's layered-config
// convention (core/config.go's DefaultConfig + env override pattern).
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentforge/flowengine/catalog"
)

// RateLimits mirrors spec.md §6's `rateLimits` group.
type RateLimits struct {
	RequestsPerMinute int                    `yaml:"requestsPerMinute"`
	RequestsPerHour   int                    `yaml:"requestsPerHour"`
	RequestsPerDay    int                    `yaml:"requestsPerDay"`
	ApiCallsPerMinute int                    `yaml:"apiCallsPerMinute"`
	ApiCallsPerHour   int                    `yaml:"apiCallsPerHour"`
	PerAgent          map[string]RateLimits  `yaml:"perAgent,omitempty"`
}

// Retry mirrors spec.md §6's `retry` group.
type Retry struct {
	MaxRetries    int     `yaml:"maxRetries"`
	InitialDelayMs int    `yaml:"initialDelayMs"`
	MaxDelayMs    int     `yaml:"maxDelayMs"`
	BackoffBase   float64 `yaml:"backoffBase"`
	Jitter        bool    `yaml:"jitter"`
}

// Cache mirrors spec.md §6's `cache` group.
type Cache struct {
	Enabled       bool             `yaml:"enabled"`
	DefaultTTLSec int              `yaml:"defaultTtlSec"`
	MaxSize       int              `yaml:"maxSize"`
	PerKindTTLSec map[string]int   `yaml:"perKindTtlSec,omitempty"`
}

// Limits mirrors spec.md §6's `limits` group, plus MaxStringFieldBytes and
// MaxArrayLength. Those two load from YAML but the executor does not read
// them: the response's data is the full DataModel snapshot.
type Limits struct {
	MaxOperationsPerWorkflow int `yaml:"maxOperationsPerWorkflow"`
	MaxWorkflowDurationMs    int `yaml:"maxWorkflowDurationMs"`
	MaxDataModelBytes        int `yaml:"maxDataModelBytes"`
	MaxStringFieldBytes      int `yaml:"maxStringFieldBytes"`
	MaxArrayLength           int `yaml:"maxArrayLength"`
}

// Config is the full configuration surface.
type Config struct {
	RateLimits RateLimits `yaml:"rateLimits"`
	Retry      Retry      `yaml:"retry"`
	Cache      Cache      `yaml:"cache"`
	Limits     Limits     `yaml:"limits"`
}

// Default returns the built-in defaults (spec.md §5's documented
// defaults: 100 operations, 30s budget, 8MB DataModel, etc).
func Default() Config {
	return Config{
		RateLimits: RateLimits{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			RequestsPerDay:    10000,
			ApiCallsPerMinute: 30,
			ApiCallsPerHour:   500,
		},
		Retry: Retry{
			MaxRetries:     3,
			InitialDelayMs: 200,
			MaxDelayMs:     10000,
			BackoffBase:    2.0,
			Jitter:         true,
		},
		Cache: Cache{
			Enabled:       true,
			DefaultTTLSec: 300,
			MaxSize:       1000,
		},
		Limits: Limits{
			MaxOperationsPerWorkflow: 100,
			MaxWorkflowDurationMs:    30000,
			MaxDataModelBytes:        8 * 1024 * 1024,
			MaxStringFieldBytes:      1024,
			MaxArrayLength:           50,
		},
	}
}

// LoadYAML merges a YAML document over base, returning a new Config.
// Absent fields keep base's values since yaml.Unmarshal only overwrites
// keys present in data.
func LoadYAML(base Config, data []byte) (Config, error) {
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadYAMLFile reads path and merges it over base. A missing file is not
// an error; the caller gets base back unchanged, matching the teacher's
// convention of configuration being optional.
func LoadYAMLFile(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return Config{}, err
	}
	return LoadYAML(base, data)
}

// ApplyEnv overrides cfg's scalar fields from FLOWENGINE_-prefixed
// environment variables. Env vars apply last, since cfg already reflects
// file + defaults, so a set variable overrides both the YAML file and the
// default.
func ApplyEnv(cfg Config) Config {
	cfg.RateLimits.RequestsPerMinute = envInt("FLOWENGINE_RATE_REQUESTS_PER_MINUTE", cfg.RateLimits.RequestsPerMinute)
	cfg.RateLimits.RequestsPerHour = envInt("FLOWENGINE_RATE_REQUESTS_PER_HOUR", cfg.RateLimits.RequestsPerHour)
	cfg.RateLimits.RequestsPerDay = envInt("FLOWENGINE_RATE_REQUESTS_PER_DAY", cfg.RateLimits.RequestsPerDay)
	cfg.RateLimits.ApiCallsPerMinute = envInt("FLOWENGINE_RATE_API_CALLS_PER_MINUTE", cfg.RateLimits.ApiCallsPerMinute)
	cfg.RateLimits.ApiCallsPerHour = envInt("FLOWENGINE_RATE_API_CALLS_PER_HOUR", cfg.RateLimits.ApiCallsPerHour)

	cfg.Retry.MaxRetries = envInt("FLOWENGINE_RETRY_MAX_RETRIES", cfg.Retry.MaxRetries)
	cfg.Retry.InitialDelayMs = envInt("FLOWENGINE_RETRY_INITIAL_DELAY_MS", cfg.Retry.InitialDelayMs)
	cfg.Retry.MaxDelayMs = envInt("FLOWENGINE_RETRY_MAX_DELAY_MS", cfg.Retry.MaxDelayMs)
	cfg.Retry.Jitter = envBool("FLOWENGINE_RETRY_JITTER", cfg.Retry.Jitter)

	cfg.Cache.Enabled = envBool("FLOWENGINE_CACHE_ENABLED", cfg.Cache.Enabled)
	cfg.Cache.DefaultTTLSec = envInt("FLOWENGINE_CACHE_DEFAULT_TTL_SEC", cfg.Cache.DefaultTTLSec)
	cfg.Cache.MaxSize = envInt("FLOWENGINE_CACHE_MAX_SIZE", cfg.Cache.MaxSize)

	cfg.Limits.MaxOperationsPerWorkflow = envInt("FLOWENGINE_LIMITS_MAX_OPERATIONS", cfg.Limits.MaxOperationsPerWorkflow)
	cfg.Limits.MaxWorkflowDurationMs = envInt("FLOWENGINE_LIMITS_MAX_DURATION_MS", cfg.Limits.MaxWorkflowDurationMs)
	cfg.Limits.MaxDataModelBytes = envInt("FLOWENGINE_LIMITS_MAX_DATAMODEL_BYTES", cfg.Limits.MaxDataModelBytes)

	return cfg
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

// PerKindTTL converts Cache.PerKindTTLSec into the catalog.Kind-keyed
// duration map resultcache.New expects.
func (c Cache) PerKindTTL() map[catalog.Kind]time.Duration {
	out := make(map[catalog.Kind]time.Duration, len(c.PerKindTTLSec))
	for k, v := range c.PerKindTTLSec {
		out[catalog.Kind(k)] = time.Duration(v) * time.Second
	}
	return out
}
