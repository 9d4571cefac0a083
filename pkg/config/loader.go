package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/searchsync/pkg/syncerrors"
)

// Load reads configuration from the given YAML file (optional) layered
// over Default, with environment variable overrides. Variables use the
// SEARCHSYNC_ prefix and underscores for section separators, e.g.
// SEARCHSYNC_POSTGRES_DSN or SEARCHSYNC_ELASTICSEARCH_INDEX.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a registered default, even an empty one, or
	// environment-only overrides are invisible to Unmarshal.
	defaults := Default()
	v.SetDefault("postgres.dsn", defaults.Postgres.DSN)
	v.SetDefault("postgres.max_conns", defaults.Postgres.MaxConns)
	v.SetDefault("postgres.min_conns", defaults.Postgres.MinConns)
	v.SetDefault("postgres.conn_lifetime", defaults.Postgres.ConnLifetime)
	v.SetDefault("postgres.health_check_period", defaults.Postgres.HealthCheckPeriod)
	v.SetDefault("elasticsearch.addresses", defaults.Elasticsearch.Addresses)
	v.SetDefault("elasticsearch.username", defaults.Elasticsearch.Username)
	v.SetDefault("elasticsearch.password", defaults.Elasticsearch.Password)
	v.SetDefault("elasticsearch.index", defaults.Elasticsearch.Index)
	v.SetDefault("elasticsearch.skip_tls_verify", defaults.Elasticsearch.SkipTLSVerify)
	v.SetDefault("checkpoint.backend", defaults.Checkpoint.Backend)
	v.SetDefault("checkpoint.redis_addr", defaults.Checkpoint.RedisAddr)
	v.SetDefault("checkpoint.redis_password", defaults.Checkpoint.RedisPassword)
	v.SetDefault("checkpoint.redis_db", defaults.Checkpoint.RedisDB)
	v.SetDefault("checkpoint.file_path", defaults.Checkpoint.FilePath)
	v.SetDefault("checkpoint.namespace", defaults.Checkpoint.Namespace)
	v.SetDefault("pipeline.page_size", defaults.Pipeline.PageSize)
	v.SetDefault("pipeline.poll_interval", defaults.Pipeline.PollInterval)
	v.SetDefault("pipeline.stage_timeout", defaults.Pipeline.StageTimeout)
	v.SetDefault("pipeline.extract_attempts", defaults.Pipeline.ExtractAttempts)
	v.SetDefault("pipeline.bulk_retry_attempts", defaults.Pipeline.BulkRetryAttempts)
	v.SetDefault("backoff.initial", defaults.Backoff.Initial)
	v.SetDefault("backoff.multiplier", defaults.Backoff.Multiplier)
	v.SetDefault("backoff.max", defaults.Backoff.Max)
	v.SetDefault("backoff.jitter", defaults.Backoff.Jitter)
	v.SetDefault("observability.log_level", defaults.Observability.LogLevel)
	v.SetDefault("observability.log_development", defaults.Observability.LogDevelopment)
	v.SetDefault("observability.metrics_addr", defaults.Observability.MetricsAddr)
	v.SetDefault("observability.enable_tracing", defaults.Observability.EnableTracing)
	v.SetDefault("observability.tracing_sample_rate", defaults.Observability.TracingSampleRate)

	v.SetEnvPrefix("searchsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "invalid configuration")
	}

	return cfg, nil
}
