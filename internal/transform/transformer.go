// Package transform shapes raw relational rows into self-contained
// movie documents. It is pure: no I/O, no retries, and a malformed row
// never fails the batch around it.
package transform

import (
	"context"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/searchsync/pkg/logger"
	"github.com/ajitpratap0/searchsync/pkg/models"
)

// Role codes as stored in person_film_work. Older dumps of the schema
// carry single-letter codes, newer ones full words; both are accepted.
const (
	roleActor    = "actor"
	roleWriter   = "writer"
	roleDirector = "director"
)

// Result is one batch's transformation outcome. Skipped maps the movie
// ID of each malformed row to the reason it was rejected; skipped rows
// are terminal for this batch and do not block the watermark.
type Result struct {
	Documents []models.MovieDocument
	Skipped   map[string]string
}

// Transform converts hydrated movie rows into index documents,
// deduplicating by primary key so each movie yields exactly one
// document no matter how many source changes referenced it.
func Transform(ctx context.Context, rows []models.Row) Result {
	res := Result{Skipped: make(map[string]string)}

	byID := make(map[string]models.MovieDocument, len(rows))
	for i, row := range rows {
		doc, err := buildDocument(row)
		if err != nil {
			id := rowID(row)
			res.Skipped[id] = err.Error()
			logger.WithContext(ctx).Warn("skipping malformed row",
				zap.String("movie_id", id),
				zap.Int("row_index", i),
				zap.Error(err))
			continue
		}
		byID[doc.ID] = doc
	}

	res.Documents = make([]models.MovieDocument, 0, len(byID))
	for _, doc := range byID {
		res.Documents = append(res.Documents, doc)
	}
	sort.Slice(res.Documents, func(i, j int) bool {
		return res.Documents[i].ID < res.Documents[j].ID
	})
	return res
}

func buildDocument(row models.Row) (models.MovieDocument, error) {
	id, err := requiredString(row, "id")
	if err != nil {
		return models.MovieDocument{}, err
	}
	title, err := requiredString(row, "title")
	if err != nil {
		return models.MovieDocument{}, err
	}

	doc := models.MovieDocument{
		ID:           id,
		Title:        title,
		Description:  optionalString(row, "description"),
		IMDBRating:   optionalFloat(row, "rating"),
		Genres:       []string{},
		ActorsNames:  []string{},
		WritersNames: []string{},
		Actors:       []models.PersonRef{},
		Writers:      []models.PersonRef{},
	}

	genres, err := stringSlice(row["genres"])
	if err != nil {
		return models.MovieDocument{}, fmt.Errorf("genres: %w", err)
	}
	doc.Genres = genres

	persons, err := personRoles(row["persons"])
	if err != nil {
		return models.MovieDocument{}, fmt.Errorf("persons: %w", err)
	}

	var directors []string
	for _, p := range persons {
		switch p.role {
		case roleActor:
			doc.Actors = append(doc.Actors, p.ref)
			doc.ActorsNames = append(doc.ActorsNames, p.ref.Name)
		case roleWriter:
			doc.Writers = append(doc.Writers, p.ref)
			doc.WritersNames = append(doc.WritersNames, p.ref.Name)
		case roleDirector:
			directors = append(directors, p.ref.Name)
		default:
			return models.MovieDocument{}, fmt.Errorf("unknown person role %q", p.role)
		}
	}
	doc.Director = joinNames(directors)

	return doc, nil
}

type rolePerson struct {
	ref  models.PersonRef
	role string
}

// personRoles accepts the persons column either already decoded into
// []any or as raw JSON bytes, depending on how the driver surfaced the
// jsonb value.
func personRoles(value any) ([]rolePerson, error) {
	var entries []map[string]any

	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		if err := json.Unmarshal(v, &entries); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
	case string:
		if err := json.Unmarshal([]byte(v), &entries); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
	case []any:
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("person entry is %T, want object", item)
			}
			entries = append(entries, m)
		}
	default:
		return nil, fmt.Errorf("unexpected type %T", value)
	}

	persons := make([]rolePerson, 0, len(entries))
	for _, entry := range entries {
		id, _ := entry["id"].(string)
		name, _ := entry["name"].(string)
		role, _ := entry["role"].(string)
		if id == "" || name == "" {
			return nil, fmt.Errorf("person entry missing id or name")
		}
		persons = append(persons, rolePerson{
			ref:  models.PersonRef{ID: id, Name: name},
			role: normalizeRole(role),
		})
	}
	return persons, nil
}

func normalizeRole(role string) string {
	switch role {
	case "a":
		return roleActor
	case "w":
		return roleWriter
	case "d":
		return roleDirector
	default:
		return role
	}
}

func requiredString(row models.Row, key string) (string, error) {
	value, ok := row[key]
	if !ok || value == nil {
		return "", fmt.Errorf("missing required field %q", key)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, want string", key, value)
	}
	if s == "" {
		return "", fmt.Errorf("field %q is empty", key)
	}
	return s, nil
}

func optionalString(row models.Row, key string) string {
	s, _ := row[key].(string)
	return s
}

func optionalFloat(row models.Row, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	default:
		return 0
	}
}

func stringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element is %T, want string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", value)
	}
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}

// rowID best-effort extracts the primary key for logging and skip
// accounting on rows that failed validation.
func rowID(row models.Row) string {
	id, _ := row["id"].(string)
	return id
}
