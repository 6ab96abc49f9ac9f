package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/avetisov/mediascribe/internal/common"
	"github.com/avetisov/mediascribe/internal/job"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "jobs.json"))
	require.NoError(t, err)
	return s
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:     uuid.New(),
		Status: job.StatusPending,
		Params: &job.Params{
			Source:   job.Source{Type: job.SourceURL, URL: "https://example.com/v"},
			Language: "en",
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestFileStore_CreateGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := newTestJob()
	require.NoError(t, s.Create(ctx, j))

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, j.ID, got.ID)
	require.Equal(t, job.StatusPending, got.Status)
	require.NotNil(t, got.Params)
	require.Equal(t, "https://example.com/v", got.Params.Source.URL)
}

func TestFileStore_CreateDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := newTestJob()
	require.NoError(t, s.Create(ctx, j))

	err := s.Create(ctx, j)
	require.ErrorIs(t, err, common.ErrDuplicateID)
}

func TestFileStore_GetUnknownID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestFileStore_UpdateResultRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := newTestJob()
	require.NoError(t, s.Create(ctx, j))

	want := &job.Result{Text: "hello", TextPath: "/out/v.txt"}
	_, err := s.Update(ctx, j.ID, func(j *job.Job) error {
		j.Status = job.StatusComplete
		j.Result = want
		j.Progress = 100
		return nil
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusComplete, got.Status)
	require.Equal(t, want, got.Result)
	require.Equal(t, 100, got.Progress)
}

func TestFileStore_UpdateMutatorErrorLeavesRecordUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := newTestJob()
	require.NoError(t, s.Create(ctx, j))

	sentinel := errors.New("claim rejected")
	_, err := s.Update(ctx, j.ID, func(j *job.Job) error {
		j.Status = job.StatusFailed
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusPending, got.Status)
}

func TestFileStore_UpdateUnknownID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Update(context.Background(), uuid.New(), func(j *job.Job) error {
		return nil
	})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestFileStore_ListIncomplete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pending := newTestJob()
	downloading := newTestJob()
	done := newTestJob()
	failed := newTestJob()
	require.NoError(t, s.Create(ctx, pending))
	require.NoError(t, s.Create(ctx, downloading))
	require.NoError(t, s.Create(ctx, done))
	require.NoError(t, s.Create(ctx, failed))

	_, err := s.Update(ctx, downloading.ID, func(j *job.Job) error {
		j.Status = job.StatusDownloading
		return nil
	})
	require.NoError(t, err)
	_, err = s.Update(ctx, done.ID, func(j *job.Job) error {
		j.Status = job.StatusComplete
		return nil
	})
	require.NoError(t, err)
	_, err = s.Update(ctx, failed.ID, func(j *job.Job) error {
		j.Status = job.StatusFailed
		return nil
	})
	require.NoError(t, err)

	got, err := s.ListIncomplete(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Contains(t, got, pending.ID)
	require.Contains(t, got, downloading.ID)
}

func TestFileStore_ReloadAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	ctx := context.Background()

	s, err := NewFileStore(path)
	require.NoError(t, err)

	j := newTestJob()
	require.NoError(t, s.Create(ctx, j))
	_, err = s.Update(ctx, j.ID, func(j *job.Job) error {
		j.Status = job.StatusDownloading
		j.Progress = 30
		return nil
	})
	require.NoError(t, err)

	// simulate a process restart
	reloaded, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := reloaded.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusDownloading, got.Status)
	require.Equal(t, 30, got.Progress)

	incomplete, err := reloaded.ListIncomplete(ctx)
	require.NoError(t, err)
	require.Contains(t, incomplete, j.ID)
}

func TestFileStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := s.ListIncomplete(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFileStore_ConcurrentUpdatesAreNotLost(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := newTestJob()
	require.NoError(t, s.Create(ctx, j))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, j.ID, func(j *job.Job) error {
				j.Progress++
				return nil
			})
			if err != nil {
				t.Errorf("Update error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, n, got.Progress)
}

func TestFileStore_GetReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := newTestJob()
	require.NoError(t, s.Create(ctx, j))

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	got.Status = job.StatusFailed
	got.Params.Language = "zz"

	again, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusPending, again.Status)
	require.Equal(t, "en", again.Params.Language)
}
