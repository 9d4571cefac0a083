// Package config provides the unified configuration for searchsync.
// A single Config structure covers every collaborator and pipeline
// setting, organized into logical sections:
//
//   - Postgres: source database connection and pooling
//   - Elasticsearch: index endpoint and credentials
//   - Checkpoint: watermark persistence backend
//   - Pipeline: page size, poll interval, stage timeouts, retry limits
//   - Backoff: retry and idle delay policy
//   - Observability: logging, metrics, tracing
//
// Configuration is loaded from a YAML file with environment variable
// overrides; see Load.
package config

import (
	"fmt"
	"time"
)

// Config is the complete searchsync configuration.
type Config struct {
	Postgres      PostgresConfig      `mapstructure:"postgres" yaml:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch" yaml:"elasticsearch"`
	Checkpoint    CheckpointConfig    `mapstructure:"checkpoint" yaml:"checkpoint"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline" yaml:"pipeline"`
	Backoff       BackoffConfig       `mapstructure:"backoff" yaml:"backoff"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// PostgresConfig configures the read-only source database connection.
type PostgresConfig struct {
	// DSN is a pgx connection string or URL.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
	// MaxConns bounds the connection pool.
	MaxConns int32 `mapstructure:"max_conns" yaml:"max_conns"`
	// MinConns keeps a floor of warm connections.
	MinConns int32 `mapstructure:"min_conns" yaml:"min_conns"`
	// ConnLifetime recycles connections older than this.
	ConnLifetime time.Duration `mapstructure:"conn_lifetime" yaml:"conn_lifetime"`
	// HealthCheckPeriod drives the pool's liveness probes.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period" yaml:"health_check_period"`
}

// ElasticsearchConfig configures the search index endpoint.
type ElasticsearchConfig struct {
	// Addresses lists the cluster nodes.
	Addresses []string `mapstructure:"addresses" yaml:"addresses"`
	Username  string   `mapstructure:"username" yaml:"username"`
	Password  string   `mapstructure:"password" yaml:"password"`
	// Index is the target index name for movie documents.
	Index string `mapstructure:"index" yaml:"index"`
	// SkipTLSVerify disables certificate verification (insecure).
	SkipTLSVerify bool `mapstructure:"skip_tls_verify" yaml:"skip_tls_verify"`
}

// CheckpointConfig selects and configures the watermark store.
type CheckpointConfig struct {
	// Backend is "redis" or "file".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// RedisAddr is the host:port of the Redis backend.
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
	// RedisPassword authenticates the Redis backend, if set.
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	// RedisDB selects the Redis logical database.
	RedisDB int `mapstructure:"redis_db" yaml:"redis_db"`
	// FilePath is the JSON state file used by the file backend.
	FilePath string `mapstructure:"file_path" yaml:"file_path"`
	// Namespace prefixes checkpoint keys, isolating deployments that
	// share a Redis instance.
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// PipelineConfig controls batching, polling, and retry limits.
type PipelineConfig struct {
	// PageSize caps rows fetched per extraction cycle.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
	// PollInterval is the delay between cycles when data was found.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// StageTimeout bounds each extract/load stage call.
	StageTimeout time.Duration `mapstructure:"stage_timeout" yaml:"stage_timeout"`
	// ExtractAttempts limits extraction retries before the entity's
	// cycle halts for a full backoff.
	ExtractAttempts int `mapstructure:"extract_attempts" yaml:"extract_attempts"`
	// BulkRetryAttempts bounds bulk sends per cycle, counting the first
	// attempt. Minimum 1; 1 means no in-cycle retries.
	BulkRetryAttempts int `mapstructure:"bulk_retry_attempts" yaml:"bulk_retry_attempts"`
}

// BackoffConfig parameterizes the exponential delay policy used after
// errors and empty batches.
type BackoffConfig struct {
	Initial    time.Duration `mapstructure:"initial" yaml:"initial"`
	Multiplier float64       `mapstructure:"multiplier" yaml:"multiplier"`
	Max        time.Duration `mapstructure:"max" yaml:"max"`
	Jitter     bool          `mapstructure:"jitter" yaml:"jitter"`
}

// ObservabilityConfig controls logging, metrics, and tracing output.
type ObservabilityConfig struct {
	// LogLevel sets verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// LogDevelopment switches to console encoding with colors.
	LogDevelopment bool `mapstructure:"log_development" yaml:"log_development"`
	// MetricsAddr serves Prometheus metrics when non-empty (e.g. ":9102").
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	// EnableTracing turns on OpenTelemetry span export.
	EnableTracing bool `mapstructure:"enable_tracing" yaml:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0).
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
}

// Default returns a Config with production-ready defaults. Collaborator
// endpoints still have to be supplied by file or environment.
func Default() *Config {
	return &Config{
		Postgres: PostgresConfig{
			MaxConns:          10,
			MinConns:          2,
			ConnLifetime:      time.Hour,
			HealthCheckPeriod: 30 * time.Second,
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: []string{"http://localhost:9200"},
			Index:     "movies",
		},
		Checkpoint: CheckpointConfig{
			Backend:   "file",
			FilePath:  "state.json",
			Namespace: "searchsync",
		},
		Pipeline: PipelineConfig{
			PageSize:          1000,
			PollInterval:      time.Second,
			StageTimeout:      30 * time.Second,
			ExtractAttempts:   3,
			BulkRetryAttempts: 3,
		},
		Backoff: BackoffConfig{
			Initial:    500 * time.Millisecond,
			Multiplier: 2.0,
			Max:        30 * time.Second,
			Jitter:     true,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			MetricsAddr:       ":9102",
			EnableTracing:     false,
			TracingSampleRate: 0.1,
		},
	}
}

// Validate checks required fields and value ranges. Call after loading
// to catch mistakes before any collaborator is dialed.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch.addresses is required")
	}
	if c.Elasticsearch.Index == "" {
		return fmt.Errorf("elasticsearch.index is required")
	}
	switch c.Checkpoint.Backend {
	case "redis":
		if c.Checkpoint.RedisAddr == "" {
			return fmt.Errorf("checkpoint.redis_addr is required for the redis backend")
		}
	case "file":
		if c.Checkpoint.FilePath == "" {
			return fmt.Errorf("checkpoint.file_path is required for the file backend")
		}
	default:
		return fmt.Errorf("checkpoint.backend must be redis or file, got %q", c.Checkpoint.Backend)
	}
	if c.Pipeline.PageSize <= 0 {
		return fmt.Errorf("pipeline.page_size must be positive")
	}
	if c.Pipeline.PollInterval <= 0 {
		return fmt.Errorf("pipeline.poll_interval must be positive")
	}
	if c.Pipeline.StageTimeout <= 0 {
		return fmt.Errorf("pipeline.stage_timeout must be positive")
	}
	if c.Pipeline.ExtractAttempts <= 0 {
		return fmt.Errorf("pipeline.extract_attempts must be positive")
	}
	if c.Pipeline.BulkRetryAttempts < 1 {
		return fmt.Errorf("pipeline.bulk_retry_attempts must be at least 1")
	}
	if c.Backoff.Initial <= 0 || c.Backoff.Max < c.Backoff.Initial {
		return fmt.Errorf("backoff delays must satisfy 0 < initial <= max")
	}
	if c.Backoff.Multiplier < 1.0 {
		return fmt.Errorf("backoff.multiplier must be >= 1.0")
	}
	return nil
}
