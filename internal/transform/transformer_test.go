package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/searchsync/pkg/models"
)

func validRow() models.Row {
	return models.Row{
		"id":          "movie-1",
		"title":       "The Departure",
		"description": "A long goodbye.",
		"rating":      float64(7.8),
		"genres":      []any{"Drama", "Thriller"},
		"persons": []any{
			map[string]any{"id": "p1", "name": "Ada Byron", "role": "actor"},
			map[string]any{"id": "p2", "name": "Grace Hopper", "role": "writer"},
			map[string]any{"id": "p3", "name": "Alan Kay", "role": "director"},
		},
	}
}

func TestTransformFullRow(t *testing.T) {
	res := Transform(context.Background(), []models.Row{validRow()})

	require.Len(t, res.Documents, 1)
	require.Empty(t, res.Skipped)

	doc := res.Documents[0]
	assert.Equal(t, "movie-1", doc.ID)
	assert.Equal(t, "The Departure", doc.Title)
	assert.Equal(t, "A long goodbye.", doc.Description)
	assert.InDelta(t, 7.8, doc.IMDBRating, 0.001)
	assert.Equal(t, []string{"Drama", "Thriller"}, doc.Genres)
	assert.Equal(t, "Alan Kay", doc.Director)
	assert.Equal(t, []string{"Ada Byron"}, doc.ActorsNames)
	assert.Equal(t, []string{"Grace Hopper"}, doc.WritersNames)
	assert.Equal(t, []models.PersonRef{{ID: "p1", Name: "Ada Byron"}}, doc.Actors)
	assert.Equal(t, []models.PersonRef{{ID: "p2", Name: "Grace Hopper"}}, doc.Writers)
}

func TestTransformMinimalRow(t *testing.T) {
	row := models.Row{"id": "movie-2", "title": "Untitled"}

	res := Transform(context.Background(), []models.Row{row})

	require.Len(t, res.Documents, 1)
	doc := res.Documents[0]
	assert.Equal(t, "", doc.Description)
	assert.Zero(t, doc.IMDBRating)
	assert.Empty(t, doc.Genres)
	assert.Equal(t, "", doc.Director)
	assert.NotNil(t, doc.Actors)
	assert.NotNil(t, doc.Writers)
}

func TestTransformSkipsMalformedRows(t *testing.T) {
	rows := []models.Row{
		validRow(),
		{"id": "movie-3"},               // no title
		{"title": "Orphaned"},           // no id
		{"id": "movie-4", "title": 7.0}, // wrong type
	}

	res := Transform(context.Background(), rows)

	require.Len(t, res.Documents, 1)
	assert.Equal(t, "movie-1", res.Documents[0].ID)

	require.Len(t, res.Skipped, 3)
	assert.Contains(t, res.Skipped["movie-3"], "title")
	assert.Contains(t, res.Skipped[""], "id")
	assert.Contains(t, res.Skipped["movie-4"], "title")
}

func TestTransformDeduplicatesByID(t *testing.T) {
	a := validRow()
	b := validRow()
	b["title"] = "The Departure (Director's Cut)"

	res := Transform(context.Background(), []models.Row{a, b})

	require.Len(t, res.Documents, 1)
	assert.Equal(t, "The Departure (Director's Cut)", res.Documents[0].Title)
}

func TestTransformOrdersDocumentsByID(t *testing.T) {
	b := models.Row{"id": "b", "title": "B"}
	a := models.Row{"id": "a", "title": "A"}

	res := Transform(context.Background(), []models.Row{b, a})

	require.Len(t, res.Documents, 2)
	assert.Equal(t, "a", res.Documents[0].ID)
	assert.Equal(t, "b", res.Documents[1].ID)
}

func TestPersonRolesFromRawJSON(t *testing.T) {
	raw := []byte(`[{"id":"p1","name":"Ada Byron","role":"a"}]`)

	persons, err := personRoles(raw)
	require.NoError(t, err)
	require.Len(t, persons, 1)
	assert.Equal(t, roleActor, persons[0].role)
	assert.Equal(t, "Ada Byron", persons[0].ref.Name)
}

func TestPersonRolesRejectsUnknownShape(t *testing.T) {
	_, err := personRoles([]any{"not-an-object"})
	require.Error(t, err)

	_, err = personRoles(42)
	require.Error(t, err)
}

func TestNormalizeRoleShortCodes(t *testing.T) {
	assert.Equal(t, roleActor, normalizeRole("a"))
	assert.Equal(t, roleWriter, normalizeRole("w"))
	assert.Equal(t, roleDirector, normalizeRole("d"))
	assert.Equal(t, roleDirector, normalizeRole("director"))
}

func TestTransformUnknownRoleSkipsRow(t *testing.T) {
	row := validRow()
	row["persons"] = []any{
		map[string]any{"id": "p1", "name": "Ada Byron", "role": "producer"},
	}

	res := Transform(context.Background(), []models.Row{row})

	assert.Empty(t, res.Documents)
	assert.Contains(t, res.Skipped["movie-1"], "role")
}
