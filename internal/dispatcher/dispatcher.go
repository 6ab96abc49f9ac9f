package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avetisov/mediascribe/internal/job"
	"github.com/avetisov/mediascribe/internal/store"
	"github.com/avetisov/mediascribe/internal/worker"
	"github.com/google/uuid"
)

const (
	// progress floor once an execution has actually started
	startProgress = 10
	// milestone at which the informational status flips to transcribing
	transcribeProgress = 50
)

// errNoRun aborts a store mutator without committing anything; used for
// check-and-set claims that lose.
var errNoRun = errors.New("execution claim rejected")

// Dispatcher turns submissions into background executions and funnels
// every state change through the job store. One goroutine per job, no
// shared mutable state outside the store.
type Dispatcher struct {
	store store.Store
	work  worker.Func

	// spawn launches a background execution; replaced in tests.
	spawn func(func())
	// sem bounds concurrent executions when non-nil.
	sem chan struct{}

	// active tracks executions owned by this process. A persisted status
	// alone cannot tell a live execution from one orphaned by a crash.
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

type Options struct {
	// MaxActiveJobs caps concurrently running executions. Zero means
	// unbounded, which matches the original single-host behavior.
	MaxActiveJobs int
}

func New(st store.Store, work worker.Func, opts Options) *Dispatcher {
	d := &Dispatcher{
		store:  st,
		work:   work,
		spawn:  func(f func()) { go f() },
		active: make(map[uuid.UUID]struct{}),
	}
	if opts.MaxActiveJobs > 0 {
		d.sem = make(chan struct{}, opts.MaxActiveJobs)
	}
	return d
}

// Submit creates the job record and starts its background execution,
// returning the new id without waiting for any of the work.
func (d *Dispatcher) Submit(ctx context.Context, params job.Params) (uuid.UUID, error) {
	id := uuid.New()
	p := params
	j := &job.Job{
		ID:        id,
		Status:    job.StatusPending,
		Progress:  0,
		Params:    &p,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.Create(ctx, j); err != nil {
		return uuid.Nil, fmt.Errorf("submit: %w", err)
	}

	slog.Info("job submitted", "id", id, "source", params.Source.Type)
	d.markActive(id)
	d.spawn(func() { d.run(id) })
	return id, nil
}

// markActive records an execution claim for this process. It reports
// false when another live execution already owns the job.
func (d *Dispatcher) markActive(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.active[id]; ok {
		return false
	}
	d.active[id] = struct{}{}
	return true
}

func (d *Dispatcher) clearActive(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, id)
}

func (d *Dispatcher) isActive(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[id]
	return ok
}

// run executes one job from start to terminal state. Every failure mode,
// including panics inside the work function, ends as a failed record and
// never escapes to the host process.
func (d *Dispatcher) run(id uuid.UUID) {
	defer d.clearActive(id)

	if d.sem != nil {
		d.sem <- struct{}{}
		defer func() { <-d.sem }()
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("job execution panicked", "id", id, "panic", r)
			d.finalize(id, nil, fmt.Errorf("execution panic: %v", r))
		}
	}()

	ctx := context.Background()
	j, err := d.store.Update(ctx, id, func(j *job.Job) error {
		if j.Status.Terminal() {
			return errNoRun
		}
		j.Status = job.StatusDownloading
		if j.Progress < startProgress {
			j.Progress = startProgress
		}
		j.Checkpoint()
		return nil
	})
	if errors.Is(err, errNoRun) {
		slog.Warn("skipping execution for finished job", "id", id)
		return
	}
	if err != nil {
		slog.Error("failed to mark job started", "id", id, "error", err)
		return
	}
	if j.Params == nil {
		d.finalize(id, nil, errors.New("job has no parameters"))
		return
	}
	params := *j.Params

	result, err := d.work(ctx, params, func(pct int) {
		d.reportProgress(id, pct)
	})
	d.finalize(id, result, err)
}

// reportProgress stores the latest reported value verbatim; out-of-order
// reports are last-write-wins. Crossing the transcription milestone flips
// the informational status.
func (d *Dispatcher) reportProgress(id uuid.UUID, pct int) {
	_, err := d.store.Update(context.Background(), id, func(j *job.Job) error {
		if j.Status.Terminal() {
			return errNoRun
		}
		j.Progress = pct
		if pct >= transcribeProgress && j.Status == job.StatusDownloading {
			j.Status = job.StatusTranscribing
		}
		j.Checkpoint()
		return nil
	})
	if err != nil && !errors.Is(err, errNoRun) {
		slog.Warn("failed to record job progress", "id", id, "progress", pct, "error", err)
	}
}

func (d *Dispatcher) finalize(id uuid.UUID, result *job.Result, workErr error) {
	_, err := d.store.Update(context.Background(), id, func(j *job.Job) error {
		if j.Status.Terminal() {
			return errNoRun
		}
		if workErr != nil {
			j.Status = job.StatusFailed
			j.Result = &job.Result{Error: workErr.Error()}
		} else {
			j.Status = job.StatusComplete
			j.Result = result
			j.Progress = 100
		}
		j.Checkpoint()
		return nil
	})
	if err != nil && !errors.Is(err, errNoRun) {
		slog.Error("failed to finalize job", "id", id, "error", err)
		return
	}

	if workErr != nil {
		slog.Error("job failed", "id", id, "error", workErr)
	} else {
		slog.Info("job done", "id", id)
	}
}
