package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/avetisov/mediascribe/internal/common"
	"github.com/avetisov/mediascribe/internal/job"
	"github.com/google/uuid"
)

// FileStore keeps all records in memory under a single mutex and rewrites
// the whole backing file after every committed mutation. The rewrite goes
// through a temp file plus rename so a crash mid-flush never corrupts the
// previously committed snapshot. Write amplification is accepted for the
// sake of simplicity; store operations are sub-millisecond next to the
// work they track.
type FileStore struct {
	mu   sync.Mutex
	path string
	jobs map[uuid.UUID]*job.Job
}

// NewFileStore loads existing state from path. A missing or unreadable
// file yields an empty store: corrupted persisted state degrades history,
// it must not take the service down.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		jobs: make(map[uuid.UUID]*job.Job),
	}
	s.load()
	return s, nil
}

func (s *FileStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to read job store file, starting empty", "path", s.path, "error", err)
		}
		return
	}

	jobs := make(map[uuid.UUID]*job.Job)
	if err := json.Unmarshal(data, &jobs); err != nil {
		slog.Error("corrupt job store file, starting empty", "path", s.path, "error", err)
		return
	}

	s.jobs = jobs
	slog.Info("loaded jobs from persistent storage", "path", s.path, "count", len(jobs))
}

// persistLocked flushes the full store. Must be called with s.mu held.
// Flush failures are logged, not returned: the in-memory state stays
// authoritative for this process and only durability degrades.
func (s *FileStore) persistLocked() {
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		slog.Error("failed to marshal job store", "error", err)
		return
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".jobstore-*.tmp")
	if err != nil {
		slog.Error("failed to create temp store file", "dir", dir, "error", err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		slog.Error("failed to write temp store file", "path", tmpName, "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		slog.Error("failed to close temp store file", "path", tmpName, "error", err)
		return
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		slog.Error("failed to replace store file", "path", s.path, "error", err)
	}
}

func (s *FileStore) Create(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID]; ok {
		return fmt.Errorf("create job %s: %w", j.ID, common.ErrDuplicateID)
	}
	s.jobs[j.ID] = j.Clone()
	s.persistLocked()
	return nil
}

func (s *FileStore) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (s *FileStore) Update(ctx context.Context, id uuid.UUID, mutate Mutator) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}

	next := j.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = id // the id is not mutable
	s.jobs[id] = next
	s.persistLocked()
	return next.Clone(), nil
}

func (s *FileStore) ListIncomplete(ctx context.Context) (map[uuid.UUID]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[uuid.UUID]*job.Job)
	for id, j := range s.jobs {
		if !j.Status.Terminal() {
			out[id] = j.Clone()
		}
	}
	return out, nil
}

func (s *FileStore) Close() error {
	return nil
}
