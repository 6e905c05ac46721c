package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"contractWatch/internal/model"
)

const lockRetryDelay = 10 * time.Millisecond

// FileTargetStore keeps the target collection in a single JSON document.
// Updates hold an exclusive lock on path + ".lock", so stores in other
// processes sharing the file serialise with this one.
type FileTargetStore struct {
	path string
	mu   sync.Mutex
}

func NewFileTargetStore(path string) *FileTargetStore {
	return &FileTargetStore{path: path}
}

// LoadTargets reads the collection. A missing or empty file is an empty collection.
func (s *FileTargetStore) LoadTargets(_ context.Context) (model.TargetSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// UpdateTargets runs a load-modify-save cycle under the store lock and the
// file lock.
func (s *FileTargetStore) UpdateTargets(ctx context.Context, fn func(model.TargetSet) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(ctx, s.path+".lock")
	if err != nil {
		return err
	}
	defer unlock()

	targets, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(targets); err != nil {
		return err
	}
	return writeJSONAtomic(s.path, targets)
}

func (s *FileTargetStore) load() (model.TargetSet, error) {
	targets := make(model.TargetSet)
	ok, err := readJSON(s.path, &targets)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	if !ok || targets == nil {
		return make(model.TargetSet), nil
	}
	normalized, err := targets.Normalize()
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	return normalized, nil
}

func lockFile(ctx context.Context, path string) (func(), error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	lock := flock.New(path)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: not acquired", path)
	}
	return func() { _ = lock.Unlock() }, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	return nil
}

// FileSnapshotStore keeps recent-event summaries as a JSON list.
type FileSnapshotStore struct {
	path string
	mu   sync.Mutex
}

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

func (s *FileSnapshotStore) LoadRecentEvents(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []string
	if _, err := readJSON(s.path, &entries); err != nil {
		return nil, fmt.Errorf("load recent events: %w", err)
	}
	return entries, nil
}

func (s *FileSnapshotStore) SaveRecentEvents(_ context.Context, entries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entries == nil {
		entries = []string{}
	}
	return writeJSONAtomic(s.path, entries)
}

func readJSON(path string, out any) (bool, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if stat.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	if stat.Size() == 0 {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// writeJSONAtomic writes through a uniquely named temp file in the target
// directory and renames it over path.
func writeJSONAtomic(path string, value any) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create tmp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close tmp: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
