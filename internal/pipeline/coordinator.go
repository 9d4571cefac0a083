// Package pipeline drives the extract-transform-load cycle for each
// replicated entity type: one state machine per entity, a shared
// checkpoint store, and a commit rule that never advances the watermark
// past unsynchronized work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/searchsync/internal/checkpoint"
	"github.com/ajitpratap0/searchsync/internal/transform"
	"github.com/ajitpratap0/searchsync/pkg/backoff"
	"github.com/ajitpratap0/searchsync/pkg/config"
	"github.com/ajitpratap0/searchsync/pkg/logger"
	"github.com/ajitpratap0/searchsync/pkg/metrics"
	"github.com/ajitpratap0/searchsync/pkg/models"
	"github.com/ajitpratap0/searchsync/pkg/observability"
	"github.com/ajitpratap0/searchsync/pkg/syncerrors"
)

// State is the coordinator's per-entity cycle phase.
type State string

const (
	StateIdle         State = "idle"
	StateExtracting   State = "extracting"
	StateTransforming State = "transforming"
	StateLoading      State = "loading"
	StateCommitting   State = "committing"
	StateError        State = "error"
)

// Extractor fetches changed rows for one entity past a watermark.
type Extractor interface {
	Fetch(ctx context.Context, entity models.EntityType, since models.Watermark, limit int) (models.Batch, error)
}

// Loader bulk-writes documents and reports per-document outcomes.
type Loader interface {
	Load(ctx context.Context, docs []models.MovieDocument) (models.LoadResult, error)
}

// Coordinator runs one replication loop per entity type. Entities share
// the collaborators but fail independently: an error in one entity's
// cycle backs off that entity only.
type Coordinator struct {
	store     checkpoint.Store
	extractor Extractor
	loader    Loader
	cfg       config.PipelineConfig
	retry     backoff.Policy
	idle      backoff.Policy

	mu     sync.RWMutex
	states map[models.EntityType]State
}

// New builds a coordinator. retry governs error backoff and in-cycle
// extraction retries; the idle policy is derived from it with the poll
// interval as its base, so quiet entities poll progressively slower up
// to the same ceiling.
func New(store checkpoint.Store, extractor Extractor, loader Loader, cfg config.PipelineConfig, retry backoff.Policy) *Coordinator {
	states := make(map[models.EntityType]State, len(models.AllEntities()))
	for _, entity := range models.AllEntities() {
		states[entity] = StateIdle
	}
	return &Coordinator{
		store:     store,
		extractor: extractor,
		loader:    loader,
		cfg:       cfg,
		retry:     retry,
		idle: backoff.Policy{
			Initial:    cfg.PollInterval,
			Multiplier: retry.Multiplier,
			Max:        retry.Max,
			Jitter:     retry.Jitter,
		},
		states: states,
	}
}

// State reports the current cycle phase of an entity.
func (c *Coordinator) State(entity models.EntityType) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[entity]
}

func (c *Coordinator) setState(entity models.EntityType, s State) {
	c.mu.Lock()
	c.states[entity] = s
	c.mu.Unlock()
}

// Run replicates all entity types until ctx is cancelled. Cancellation
// is honored between stages and returns nil; any other terminal error
// from an entity loop cancels the siblings and is returned.
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, entity := range models.AllEntities() {
		g.Go(func() error {
			return c.runEntity(ctx, entity)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Coordinator) runEntity(ctx context.Context, entity models.EntityType) error {
	ctx = context.WithValue(ctx, logger.EntityKey, string(entity))
	log := logger.WithContext(ctx)
	log.Info("starting replication loop")

	idleStreak, errStreak := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		progressed, err := c.runCycle(ctx, entity)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			c.setState(entity, StateError)
			errStreak++
			idleStreak = 0
			log.Error("cycle failed",
				zap.Int("consecutive_errors", errStreak),
				zap.Duration("backoff", c.retry.Delay(errStreak-1)),
				zap.Error(err))
			if err := c.retry.Sleep(ctx, errStreak-1); err != nil {
				return err
			}
		case !progressed:
			errStreak = 0
			if err := c.idle.Sleep(ctx, idleStreak); err != nil {
				return err
			}
			idleStreak++
		default:
			errStreak, idleStreak = 0, 0
		}
	}
}

// runCycle executes one full cycle for an entity. It reports progressed
// = false for an empty batch, which is the quiescent state rather than
// an error. A partial load commits the contiguous prefix first and then
// returns an error so the entity backs off before re-extracting the
// remainder.
func (c *Coordinator) runCycle(ctx context.Context, entity models.EntityType) (bool, error) {
	ctx = context.WithValue(ctx, logger.CycleIDKey, newCycleID(entity))
	log := logger.WithContext(ctx)

	tracer := observability.GetTracer()
	ctx, span := tracer.Start(ctx, "pipeline.cycle",
		trace.WithAttributes(attribute.String("entity", string(entity))))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues(string(entity)).Observe(time.Since(start).Seconds())
	}()

	since, _, err := c.store.Get(ctx, entity)
	if err != nil {
		return false, c.stageError(entity, "checkpoint", err)
	}

	c.setState(entity, StateExtracting)
	batch, err := c.extract(ctx, entity, since)
	if err != nil {
		return false, c.stageError(entity, "extract", err)
	}
	if batch.Empty() {
		c.setState(entity, StateIdle)
		return false, nil
	}
	metrics.RowsExtracted.WithLabelValues(string(entity)).Add(float64(len(batch.Sources)))

	c.setState(entity, StateTransforming)
	res := c.transformStage(ctx, entity, batch)
	metrics.RowsSkipped.WithLabelValues(string(entity)).Add(float64(len(res.Skipped)))

	c.setState(entity, StateLoading)
	loaded, err := c.load(ctx, entity, res.Documents)
	if err != nil {
		return false, c.stageError(entity, "load", err)
	}
	metrics.DocumentsIndexed.WithLabelValues(string(entity)).Add(float64(len(loaded.Succeeded)))
	metrics.DocumentsFailed.WithLabelValues(string(entity)).Add(float64(len(loaded.Failed)))

	c.setState(entity, StateCommitting)
	next := commitWatermark(since, batch, res, loaded)
	if next.Compare(since) > 0 {
		if err := c.commit(ctx, entity, next); err != nil {
			return false, c.stageError(entity, "commit", err)
		}
		metrics.CheckpointCommits.WithLabelValues(string(entity)).Inc()
		metrics.ObserveWatermark(string(entity), next.UpdatedAt)
	}

	log.Info("cycle complete",
		zap.Int("source_rows", len(batch.Sources)),
		zap.Int("documents_indexed", len(loaded.Succeeded)),
		zap.Int("documents_failed", len(loaded.Failed)),
		zap.Int("rows_skipped", len(res.Skipped)),
		zap.Stringer("watermark", next))

	if len(loaded.Failed) > 0 {
		// The committed prefix is safe; everything past it will be
		// re-extracted next cycle.
		return true, c.stageError(entity, "load",
			syncerrors.Newf(syncerrors.ErrorTypePartialLoad,
				"%d of %d documents failed to index", len(loaded.Failed), len(res.Documents)))
	}

	c.setState(entity, StateIdle)
	return true, nil
}

func (c *Coordinator) extract(ctx context.Context, entity models.EntityType, since models.Watermark) (models.Batch, error) {
	ctx, span := observability.GetTracer().Start(ctx, "pipeline.extract")
	defer span.End()

	var batch models.Batch
	err := backoff.Retry(ctx, c.retry, c.cfg.ExtractAttempts, syncerrors.IsRetryable, func() error {
		stageCtx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
		defer cancel()

		var fetchErr error
		batch, fetchErr = c.extractor.Fetch(stageCtx, entity, since, c.cfg.PageSize)
		return c.deadlineToTimeout(ctx, stageCtx, fetchErr, "extraction")
	})
	return batch, err
}

func (c *Coordinator) transformStage(ctx context.Context, entity models.EntityType, batch models.Batch) transform.Result {
	ctx, span := observability.GetTracer().Start(ctx, "pipeline.transform")
	defer span.End()
	return transform.Transform(ctx, batch.Movies)
}

func (c *Coordinator) load(ctx context.Context, entity models.EntityType, docs []models.MovieDocument) (models.LoadResult, error) {
	ctx, span := observability.GetTracer().Start(ctx, "pipeline.load")
	defer span.End()

	stageCtx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()

	result, err := c.loader.Load(stageCtx, docs)
	return result, c.deadlineToTimeout(ctx, stageCtx, err, "bulk load")
}

func (c *Coordinator) commit(ctx context.Context, entity models.EntityType, wm models.Watermark) error {
	ctx, span := observability.GetTracer().Start(ctx, "pipeline.commit")
	defer span.End()

	stageCtx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()

	return c.deadlineToTimeout(ctx, stageCtx, c.store.Set(stageCtx, entity, wm), "checkpoint commit")
}

// deadlineToTimeout distinguishes a blown stage budget from outer
// cancellation: only the former becomes a timeout error.
func (c *Coordinator) deadlineToTimeout(outer, stage context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(stage.Err(), context.DeadlineExceeded) && outer.Err() == nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeTimeout, op+" exceeded stage timeout")
	}
	return err
}

func (c *Coordinator) stageError(entity models.EntityType, stage string, err error) error {
	metrics.CycleErrors.WithLabelValues(string(entity), stage).Inc()
	return err
}

// commitWatermark returns the highest safe watermark: the cursor of the
// last source row in the contiguous prefix whose affected movies all
// resolved. A movie resolves by being indexed, by being skipped as
// malformed, or by no longer existing in the source (nothing left to
// write). The first row with an unresolved movie freezes the watermark
// so the remainder is re-extracted.
func commitWatermark(current models.Watermark, batch models.Batch, res transform.Result, loaded models.LoadResult) models.Watermark {
	hydrated := make(map[string]struct{}, len(batch.Movies))
	for _, row := range batch.Movies {
		if id, ok := row["id"].(string); ok {
			hydrated[id] = struct{}{}
		}
	}

	resolved := func(id string) bool {
		if _, ok := loaded.Succeeded[id]; ok {
			return true
		}
		if _, ok := res.Skipped[id]; ok {
			return true
		}
		// Absent from the hydrated set means the movie vanished from the
		// source between queries; nothing remains to write for it.
		_, ok := hydrated[id]
		return !ok
	}

	next := current
	for _, src := range batch.Sources {
		for _, id := range src.MovieIDs {
			if !resolved(id) {
				return next
			}
		}
		// Monotonic: a cursor at or below the committed watermark never
		// pulls it back.
		if src.Cursor.Compare(next) > 0 {
			next = src.Cursor
		}
	}
	return next
}

func newCycleID(entity models.EntityType) string {
	return fmt.Sprintf("%s-%d", entity, time.Now().UnixNano())
}
