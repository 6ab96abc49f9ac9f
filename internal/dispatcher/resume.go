package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avetisov/mediascribe/internal/common"
	"github.com/avetisov/mediascribe/internal/job"
	"github.com/google/uuid"
)

// Outcome classifies what a resume attempt did, so callers can tell
// "nothing to do" apart from "cannot be done".
type Outcome string

const (
	OutcomeResumed         Outcome = "resumed"
	OutcomeAlreadyFinished Outcome = "already_finished"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeCannotResume    Outcome = "cannot_resume"
)

// Resume re-dispatches a non-terminal job from its persisted parameters.
// The transition to resuming is a check-and-set inside the store's locked
// update, and the spawn itself is gated on the in-process active set, so
// concurrent callers cannot start competing executions. A resuming record
// whose execution died with a previous process is claimed again: only a
// live execution in this process short-circuits.
func (d *Dispatcher) Resume(ctx context.Context, id uuid.UUID) (Outcome, error) {
	var (
		outcome Outcome
		claimed bool
	)
	_, err := d.store.Update(ctx, id, func(j *job.Job) error {
		if j.Status.Terminal() {
			outcome = OutcomeAlreadyFinished
			return errNoRun
		}
		if d.isActive(id) {
			// an execution in this process already owns the job
			outcome = OutcomeResumed
			return errNoRun
		}
		if j.Params == nil {
			j.Status = job.StatusFailed
			j.Result = &job.Result{Error: "cannot resume: job has no persisted parameters (created before durable resume support)"}
			j.Checkpoint()
			outcome = OutcomeCannotResume
			return nil
		}
		if !j.Resumable() {
			j.Status = job.StatusFailed
			j.Result = &job.Result{Error: "cannot resume: upload-based jobs have no durable source to re-fetch"}
			j.Checkpoint()
			outcome = OutcomeCannotResume
			return nil
		}
		now := time.Now().UTC()
		j.Status = job.StatusResuming
		j.ResumedAt = &now
		j.Checkpoint()
		outcome = OutcomeResumed
		claimed = true
		return nil
	})
	if err != nil {
		if common.IsNotFound(err) {
			return OutcomeNotFound, nil
		}
		if errors.Is(err, errNoRun) {
			return outcome, nil
		}
		return "", fmt.Errorf("resume %s: %w", id, err)
	}

	// the active set is the final arbiter: of all callers whose claim
	// committed, exactly one spawns
	if claimed && d.markActive(id) {
		slog.Info("job resume claimed", "id", id)
		d.spawn(func() { d.run(id) })
	}
	return outcome, nil
}

// ListIncomplete returns the ids of every job in a non-terminal state.
func (d *Dispatcher) ListIncomplete(ctx context.Context) ([]uuid.UUID, error) {
	jobs, err := d.store.ListIncomplete(ctx)
	if err != nil {
		return nil, fmt.Errorf("list incomplete: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	return ids, nil
}

// LogIncomplete is the startup recovery scan: it enumerates jobs left
// non-terminal by a previous process and logs them. They stay parked for
// on-demand resume rather than being restarted automatically.
func (d *Dispatcher) LogIncomplete(ctx context.Context) {
	jobs, err := d.store.ListIncomplete(ctx)
	if err != nil {
		slog.Error("failed to scan for incomplete jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		slog.Info("no incomplete jobs found")
		return
	}
	slog.Info("found incomplete jobs", "count", len(jobs))
	for id, j := range jobs {
		slog.Info("incomplete job",
			"id", id,
			"status", j.Status,
			"progress", j.Progress,
			"resumable", j.Resumable())
	}
}
