package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/searchsync/pkg/config"
	"github.com/ajitpratap0/searchsync/pkg/models"
	"github.com/ajitpratap0/searchsync/pkg/syncerrors"
)

func testWatermark() models.Watermark {
	return models.Watermark{
		UpdatedAt: time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC),
		ID:        "3fa85f64-5717-4562-b3fc-2c963f66afa6",
	}
}

func TestNewSelectsBackend(t *testing.T) {
	store, err := New(config.CheckpointConfig{Backend: "file", FilePath: filepath.Join(t.TempDir(), "state.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	store, err = New(config.CheckpointConfig{Backend: "redis", RedisAddr: "localhost:6379"})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)

	_, err = New(config.CheckpointConfig{Backend: "zookeeper"})
	require.Error(t, err)
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeConfig))
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path)

	_, ok, err := store.Get(ctx, models.EntityMovies)
	require.NoError(t, err)
	assert.False(t, ok, "fresh store has no watermark")

	wm := testWatermark()
	require.NoError(t, store.Set(ctx, models.EntityMovies, wm))

	got, ok, err := store.Get(ctx, models.EntityMovies)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.UpdatedAt.Equal(wm.UpdatedAt))
	assert.Equal(t, wm.ID, got.ID)
}

func TestFileStoreIsolatesEntities(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	require.NoError(t, store.Set(ctx, models.EntityMovies, testWatermark()))

	_, ok, err := store.Get(ctx, models.EntityPersons)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, NewFileStore(path).Set(ctx, models.EntityGenres, testWatermark()))

	reopened := NewFileStore(path)
	got, ok, err := reopened.Get(ctx, models.EntityGenres)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testWatermark().ID, got.ID)
}

func TestFileStoreReset(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	require.NoError(t, store.Set(ctx, models.EntityMovies, testWatermark()))
	require.NoError(t, store.Reset(ctx, models.EntityMovies))

	_, ok, err := store.Get(ctx, models.EntityMovies)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewFileStore(path)
	_, _, err := store.Get(ctx, models.EntityMovies)
	require.Error(t, err)
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeCheckpoint))
}

func TestFileStoreEmptyFileIsFreshState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, ok, err := NewFileStore(path).Get(ctx, models.EntityMovies)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStorePing(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, NewFileStore(filepath.Join(t.TempDir(), "state.json")).Ping(ctx))

	missing := NewFileStore(filepath.Join(t.TempDir(), "nope", "state.json"))
	assert.Error(t, missing.Ping(ctx))
}

func TestMemoryStoreFailSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.FailSet = syncerrors.New(syncerrors.ErrorTypeCheckpoint, "injected")

	err := store.Set(ctx, models.EntityMovies, testWatermark())
	require.Error(t, err)

	_, ok, err := store.Get(ctx, models.EntityMovies)
	require.NoError(t, err)
	assert.False(t, ok, "a failed Set must not leave state behind")
}

func TestRedisStoreKeying(t *testing.T) {
	store := NewRedisStore(config.CheckpointConfig{
		Backend:   "redis",
		RedisAddr: "localhost:6379",
		Namespace: "staging",
	})
	defer store.Close()

	assert.Equal(t, "staging:watermark:film_work", store.key(models.EntityMovies))
	assert.Equal(t, "staging:watermark:person", store.key(models.EntityPersons))
}
