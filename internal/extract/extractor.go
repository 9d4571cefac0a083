// Package extract reads changed rows out of PostgreSQL using a
// composite (modified, id) cursor and hydrates the movie documents
// they affect.
package extract

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/searchsync/pkg/config"
	"github.com/ajitpratap0/searchsync/pkg/logger"
	"github.com/ajitpratap0/searchsync/pkg/models"
	"github.com/ajitpratap0/searchsync/pkg/syncerrors"
)

// Extractor fetches batches of changed source rows and the full
// denormalized movie rows they touch. Safe for concurrent use; each
// entity cycle runs its own queries against the shared pool.
type Extractor struct {
	pool *pgxpool.Pool
}

// NewExtractor builds a connection pool from cfg. The pool is lazy;
// use Ping to verify reachability at startup.
func NewExtractor(ctx context.Context, cfg config.PostgresConfig) (*Extractor, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "invalid postgres DSN")
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.ConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "failed to create postgres pool")
	}

	return &Extractor{pool: pool}, nil
}

// Ping verifies the database is reachable.
func (e *Extractor) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "postgres ping failed")
	}
	return nil
}

// Close releases the connection pool.
func (e *Extractor) Close() {
	e.pool.Close()
}

// Fetch returns up to limit source rows of the given entity changed
// strictly after the since cursor, ordered by (modified, id), together
// with the hydrated movie rows they affect. An empty batch means the
// entity is fully caught up to since.
func (e *Extractor) Fetch(ctx context.Context, entity models.EntityType, since models.Watermark, limit int) (models.Batch, error) {
	query, err := sourceQuery(entity)
	if err != nil {
		return models.Batch{}, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "bad entity")
	}

	sources, err := e.fetchSources(ctx, query, since, limit)
	if err != nil {
		return models.Batch{}, err
	}
	if len(sources) == 0 {
		return models.Batch{}, nil
	}

	movieIDs := collectMovieIDs(sources)
	movies, err := e.hydrate(ctx, movieIDs)
	if err != nil {
		return models.Batch{}, err
	}

	logger.WithContext(ctx).Debug("fetched change batch",
		zap.String("entity", string(entity)),
		zap.Int("source_rows", len(sources)),
		zap.Int("movies", len(movies)))

	return models.Batch{Sources: sources, Movies: movies}, nil
}

func (e *Extractor) fetchSources(ctx context.Context, query string, since models.Watermark, limit int) ([]models.SourceRow, error) {
	rows, err := e.pool.Query(ctx, query, since.UpdatedAt, since.ID, limit)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeExtraction, "change query failed")
	}
	defer rows.Close()

	var sources []models.SourceRow
	for rows.Next() {
		var (
			id       string
			modified time.Time
			movieIDs []string
		)
		if err := rows.Scan(&id, &modified, &movieIDs); err != nil {
			return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeExtraction, "failed to scan change row")
		}
		sources = append(sources, models.SourceRow{
			Cursor:   models.Watermark{UpdatedAt: modified, ID: id},
			MovieIDs: movieIDs,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeExtraction, "change query iteration failed")
	}
	return sources, nil
}

func (e *Extractor) hydrate(ctx context.Context, movieIDs []string) ([]models.Row, error) {
	rows, err := e.pool.Query(ctx, hydrateQuery, movieIDs)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeExtraction, "hydration query failed")
	}
	defer rows.Close()

	var movies []models.Row
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeExtraction, "failed to scan movie row")
		}
		movies = append(movies, rowToRecord(fields, values))
	}
	if err := rows.Err(); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeExtraction, "hydration iteration failed")
	}
	return movies, nil
}

// rowToRecord converts one row's decoded values into a loosely typed
// map keyed by column name. Downstream validation lives in the
// transformer, not here.
func rowToRecord(fields []pgconn.FieldDescription, values []any) models.Row {
	record := make(models.Row, len(fields))
	for i, fd := range fields {
		if i < len(values) {
			record[fd.Name] = values[i]
		}
	}
	return record
}

func collectMovieIDs(sources []models.SourceRow) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, src := range sources {
		for _, id := range src.MovieIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
