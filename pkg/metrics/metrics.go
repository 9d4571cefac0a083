// Package metrics provides Prometheus metrics for the searchsync
// pipeline: extraction volume, document outcomes, cycle timing, and
// watermark progress. All metrics are registered automatically and
// safe for concurrent use.
//
//	metrics.RowsExtracted.WithLabelValues("film_work").Add(float64(len(batch.Sources)))
//	metrics.DocumentsIndexed.WithLabelValues("person").Add(float64(ok))
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RowsExtracted counts changed source rows fetched per entity type.
	RowsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_rows_extracted_total",
			Help: "Total changed source rows extracted",
		},
		[]string{"entity"},
	)

	// DocumentsIndexed counts documents confirmed by the index.
	DocumentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_documents_indexed_total",
			Help: "Total documents successfully indexed",
		},
		[]string{"entity"},
	)

	// DocumentsFailed counts documents the index rejected after all
	// in-cycle retries.
	DocumentsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_documents_failed_total",
			Help: "Total documents rejected by the index after retries",
		},
		[]string{"entity"},
	)

	// RowsSkipped counts malformed rows dropped by the transformer.
	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_rows_skipped_total",
			Help: "Total malformed rows skipped during transformation",
		},
		[]string{"entity"},
	)

	// CycleDuration observes full extract-transform-load cycle time.
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchsync_cycle_duration_seconds",
			Help:    "Duration of one full pipeline cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"entity"},
	)

	// CycleErrors counts cycles that ended in the error state.
	CycleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_cycle_errors_total",
			Help: "Total pipeline cycles that failed",
		},
		[]string{"entity", "stage"},
	)

	// CheckpointCommits counts durable watermark advances.
	CheckpointCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_checkpoint_commits_total",
			Help: "Total committed watermark advances",
		},
		[]string{"entity"},
	)

	// WatermarkAge reports how far the committed watermark trails
	// wall-clock time, in seconds.
	WatermarkAge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "searchsync_watermark_age_seconds",
			Help: "Age of the committed watermark relative to now",
		},
		[]string{"entity"},
	)
)

// ObserveWatermark updates the watermark age gauge for an entity.
func ObserveWatermark(entity string, updatedAt time.Time) {
	if updatedAt.IsZero() {
		return
	}
	WatermarkAge.WithLabelValues(entity).Set(time.Since(updatedAt).Seconds())
}

// Serve exposes the metrics endpoint on addr until ctx is cancelled.
// It returns the server's terminal error, or nil on graceful shutdown.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
