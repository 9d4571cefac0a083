package extract

import (
	"fmt"

	"github.com/ajitpratap0/searchsync/pkg/models"
)

// entityTable describes how changes to one watched table map to movie
// documents. The schema is fixed and known; queries are assembled from
// these declarations, never from user input.
type entityTable struct {
	// table is the watched table inside the content schema.
	table string
	// junction joins the watched table to film_work; empty for
	// film_work itself.
	junction string
}

var entityTables = map[models.EntityType]entityTable{
	models.EntityMovies:  {table: "film_work"},
	models.EntityPersons: {table: "person", junction: "person_film_work"},
	models.EntityGenres:  {table: "genre", junction: "genre_film_work"},
}

// sourceQuery returns the change-detection query for an entity. Rows
// strictly greater than the composite cursor (modified, id) are
// selected in that order, one output row per changed source row with
// the complete set of affected movie IDs aggregated. Aggregating before
// LIMIT keeps every selected source row's movie set whole, so the
// commit rule can trust SourceRow boundaries.
func sourceQuery(entity models.EntityType) (string, error) {
	et, ok := entityTables[entity]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", entity)
	}

	if et.junction == "" {
		return fmt.Sprintf(`
			SELECT t.id::text, t.modified, ARRAY[t.id::text]
			FROM content.%s t
			WHERE (t.modified, t.id::text) > ($1, $2)
			ORDER BY t.modified, t.id::text
			LIMIT $3`, et.table), nil
	}

	return fmt.Sprintf(`
		SELECT t.id::text, t.modified, array_agg(DISTINCT jt.film_work_id::text)
		FROM content.%s t
		JOIN content.%s jt ON jt.%s_id = t.id
		WHERE (t.modified, t.id::text) > ($1, $2)
		GROUP BY t.id, t.modified
		ORDER BY t.modified, t.id::text
		LIMIT $3`, et.table, et.junction, et.table), nil
}

// hydrateQuery joins a set of movie IDs to their full denormalized
// representation: every related person with role, plus genre names.
// One output row per movie; the transformer handles splitting persons
// by role and validating shapes.
const hydrateQuery = `
	SELECT
		fw.id::text AS id,
		fw.title AS title,
		fw.description AS description,
		fw.rating AS rating,
		fw.type AS type,
		fw.modified AS modified,
		COALESCE(
			jsonb_agg(
				DISTINCT jsonb_build_object(
					'id', p.id::text,
					'name', p.full_name,
					'role', pfw.role
				)
			) FILTER (WHERE p.id IS NOT NULL),
			'[]'
		) AS persons,
		COALESCE(array_agg(DISTINCT g.name) FILTER (WHERE g.id IS NOT NULL), '{}') AS genres
	FROM content.film_work fw
	LEFT JOIN content.person_film_work pfw ON pfw.film_work_id = fw.id
	LEFT JOIN content.person p ON p.id = pfw.person_id
	LEFT JOIN content.genre_film_work gfw ON gfw.film_work_id = fw.id
	LEFT JOIN content.genre g ON g.id = gfw.genre_id
	WHERE fw.id::text = ANY($1)
	GROUP BY fw.id, fw.title, fw.description, fw.rating, fw.type, fw.modified`
