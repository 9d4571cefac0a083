// Command searchsync replicates movie data from PostgreSQL into an
// Elasticsearch index, continuously and resumable from a durable
// watermark.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/searchsync/internal/checkpoint"
	"github.com/ajitpratap0/searchsync/internal/extract"
	"github.com/ajitpratap0/searchsync/internal/load"
	"github.com/ajitpratap0/searchsync/internal/pipeline"
	"github.com/ajitpratap0/searchsync/pkg/backoff"
	"github.com/ajitpratap0/searchsync/pkg/config"
	"github.com/ajitpratap0/searchsync/pkg/logger"
	"github.com/ajitpratap0/searchsync/pkg/metrics"
	"github.com/ajitpratap0/searchsync/pkg/models"
	"github.com/ajitpratap0/searchsync/pkg/observability"
)

// Set via ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "searchsync",
		Short: "Incremental PostgreSQL to Elasticsearch replicator",
		Long: `searchsync keeps a full-text movie index synchronized with a
relational source. It polls for changed rows past a committed
watermark, denormalizes them into self-contained documents, and
bulk-loads them, so searches stay current without full reindexing.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file")

	rootCmd.AddCommand(newRunCmd(), newResetCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the replication pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline()
		},
	}
}

func newResetCmd() *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset committed watermarks, forcing a full resync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd.Context(), entity)
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "reset a single entity (film_work, person, genre); default all")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("searchsync %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	}
}

func loadConfig() (*config.Config, error) {
	// A local .env is a development convenience; absence is fine.
	_ = godotenv.Load()
	return config.Load(cfgFile)
}

func runPipeline() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Development: cfg.Observability.LogDevelopment,
		Encoding:    "json",
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	tracingCfg := observability.DefaultTracingConfig()
	tracingCfg.ServiceVersion = version
	tracingCfg.Enabled = cfg.Observability.EnableTracing
	tracingCfg.SamplingRate = cfg.Observability.TracingSampleRate
	if err := observability.Initialize(tracingCfg); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting searchsync",
		zap.String("version", version),
		zap.String("checkpoint_backend", cfg.Checkpoint.Backend),
		zap.String("index", cfg.Elasticsearch.Index))

	store, err := checkpoint.New(cfg.Checkpoint)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	defer closeQuietly(store)

	extractor, err := extract.NewExtractor(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}
	defer extractor.Close()

	policy := backoff.Policy{
		Initial:    cfg.Backoff.Initial,
		Multiplier: cfg.Backoff.Multiplier,
		Max:        cfg.Backoff.Max,
		Jitter:     cfg.Backoff.Jitter,
	}

	loader, err := load.NewLoader(cfg.Elasticsearch, cfg.Pipeline.BulkRetryAttempts, policy)
	if err != nil {
		return fmt.Errorf("failed to create loader: %w", err)
	}

	// Fail fast when a collaborator is unreachable at startup.
	for name, ping := range map[string]func(context.Context) error{
		"postgres":      extractor.Ping,
		"elasticsearch": loader.Ping,
		"checkpoint":    store.Ping,
	} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s is unreachable: %w", name, err)
		}
	}

	if err := loader.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to ensure index: %w", err)
	}

	coordinator := pipeline.New(store, extractor, loader, cfg.Pipeline, policy)

	g, ctx := errgroup.WithContext(ctx)
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, addr)
		})
	}
	g.Go(func() error {
		return coordinator.Run(ctx)
	})

	err = g.Wait()
	if shutdownErr := observability.Shutdown(context.Background()); shutdownErr != nil {
		logger.Warn("tracing shutdown failed", zap.Error(shutdownErr))
	}
	if err != nil {
		logger.Error("pipeline terminated", zap.Error(err))
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

func runReset(ctx context.Context, entity string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := checkpoint.New(cfg.Checkpoint)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	defer closeQuietly(store)

	targets := models.AllEntities()
	if entity != "" {
		targets = []models.EntityType{models.EntityType(entity)}
	}

	for _, target := range targets {
		if err := store.Reset(ctx, target); err != nil {
			return fmt.Errorf("failed to reset watermark for %s: %w", target, err)
		}
		fmt.Printf("reset watermark for %s\n", target)
	}
	return nil
}

func closeQuietly(v any) {
	if closer, ok := v.(io.Closer); ok {
		_ = closer.Close()
	}
}
