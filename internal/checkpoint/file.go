package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/searchsync/pkg/models"
	"github.com/ajitpratap0/searchsync/pkg/syncerrors"
)

// FileStore keeps watermarks in a local JSON file, one entry per
// entity type. Writes go through a temp file and rename so a crash
// mid-write never corrupts the committed state.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a file-backed store at path. The file is
// created on first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) load() (map[models.EntityType]models.Watermark, error) {
	state := make(map[models.EntityType]models.Watermark)

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "failed to read state file").
			WithDetail("path", s.path)
	}

	if len(raw) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeCheckpoint, "corrupt state file").
			WithDetail("path", s.path)
	}
	return state, nil
}

func (s *FileStore) save(state map[models.EntityType]models.Watermark) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeCheckpoint, "failed to encode state")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "failed to create temp state file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "failed to write state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "failed to sync state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "failed to close state file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "failed to replace state file")
	}
	return nil
}

// Get returns the committed watermark for entity, if any.
func (s *FileStore) Get(ctx context.Context, entity models.EntityType) (models.Watermark, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return models.Watermark{}, false, err
	}

	wm, ok := state[entity]
	return wm, ok, nil
}

// Set durably records the watermark for entity.
func (s *FileStore) Set(ctx context.Context, entity models.EntityType, wm models.Watermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	state[entity] = wm
	return s.save(state)
}

// Reset removes the entity's watermark.
func (s *FileStore) Reset(ctx context.Context, entity models.EntityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	delete(state, entity)
	return s.save(state)
}

// Ping verifies the state file's directory is writable.
func (s *FileStore) Ping(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "state directory unreachable").
			WithDetail("dir", dir)
	}
	if !info.IsDir() {
		return syncerrors.Newf(syncerrors.ErrorTypeUnavailable, "state path parent %q is not a directory", dir)
	}
	return nil
}
