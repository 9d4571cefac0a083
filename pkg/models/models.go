// Package models defines the data types shared across the searchsync
// pipeline: watermarks, raw row batches, index documents, and bulk load
// results.
package models

import (
	"fmt"
	"time"
)

// EntityType names a replicated relational aggregate. Each entity type
// tracks its own watermark and runs its own extract-transform-load cycle.
type EntityType string

const (
	// EntityMovies is the film_work table itself.
	EntityMovies EntityType = "film_work"
	// EntityPersons covers person rows joined to movies via person_film_work.
	EntityPersons EntityType = "person"
	// EntityGenres covers genre rows joined to movies via genre_film_work.
	EntityGenres EntityType = "genre"
)

// AllEntities lists every replicated entity type in a stable order.
func AllEntities() []EntityType {
	return []EntityType{EntityMovies, EntityPersons, EntityGenres}
}

// Watermark is a composite change cursor over (modification timestamp,
// primary key). The primary-key component breaks ties between rows that
// share a modification timestamp, so a committed watermark never skips
// an unseen row with the same timestamp.
type Watermark struct {
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"id"`
}

// Compare returns -1, 0, or 1 ordering w against other by
// (UpdatedAt, ID).
func (w Watermark) Compare(other Watermark) int {
	if w.UpdatedAt.Before(other.UpdatedAt) {
		return -1
	}
	if w.UpdatedAt.After(other.UpdatedAt) {
		return 1
	}
	switch {
	case w.ID < other.ID:
		return -1
	case w.ID > other.ID:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether w is the beginning-of-time watermark. A zero
// watermark selects every row on the first run.
func (w Watermark) IsZero() bool {
	return w.UpdatedAt.IsZero() && w.ID == ""
}

func (w Watermark) String() string {
	if w.IsZero() {
		return "watermark(initial)"
	}
	return fmt.Sprintf("watermark(%s, %s)", w.UpdatedAt.Format(time.RFC3339Nano), w.ID)
}

// Row is a loosely typed relational row keyed by column name, as scanned
// from the source database. The transformer validates and shapes it.
type Row map[string]any

// SourceRow records one changed row of the watched entity table together
// with the movie IDs it affects. For film_work the affected set is the
// row itself; for person and genre it is every movie reachable through
// the junction table.
type SourceRow struct {
	Cursor   Watermark
	MovieIDs []string
}

// Batch is one extraction cycle's output: the ordered changed source
// rows and the hydrated movie rows they map to. Sources are ordered
// ascending by cursor; Movies carry the full denormalized join needed
// to build self-contained documents.
type Batch struct {
	Sources []SourceRow
	Movies  []Row
}

// Empty reports whether the batch selected no changed rows. This is the
// normal quiescent state, not an error.
func (b Batch) Empty() bool {
	return len(b.Sources) == 0
}

// MaxCursor returns the highest source cursor in the batch.
func (b Batch) MaxCursor() Watermark {
	if len(b.Sources) == 0 {
		return Watermark{}
	}
	return b.Sources[len(b.Sources)-1].Cursor
}

// PersonRef is a person reference embedded in a movie document.
type PersonRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MovieDocument is the denormalized search representation of a movie,
// keyed by the film_work primary key. Exactly one document exists per
// movie regardless of how many child rows the source batch contained.
type MovieDocument struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	IMDBRating   float64     `json:"imdb_rating"`
	Genres       []string    `json:"genres"`
	Director     string      `json:"director"`
	ActorsNames  []string    `json:"actors_names"`
	WritersNames []string    `json:"writers_names"`
	Actors       []PersonRef `json:"actors"`
	Writers      []PersonRef `json:"writers"`
}

// LoadResult separates per-document bulk outcomes. Partial failure is
// expected, not exceptional: the index may reject individual documents
// while accepting the rest of the batch.
type LoadResult struct {
	Succeeded map[string]struct{}
	Failed    map[string]string
}

// NewLoadResult returns an empty result with both maps allocated.
func NewLoadResult() LoadResult {
	return LoadResult{
		Succeeded: make(map[string]struct{}),
		Failed:    make(map[string]string),
	}
}

// Merge folds other into r, with successes clearing earlier failures.
// Used when retried subsets eventually load.
func (r LoadResult) Merge(other LoadResult) {
	for id := range other.Succeeded {
		r.Succeeded[id] = struct{}{}
		delete(r.Failed, id)
	}
	for id, reason := range other.Failed {
		if _, ok := r.Succeeded[id]; !ok {
			r.Failed[id] = reason
		}
	}
}
