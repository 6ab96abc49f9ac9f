package dispatcher

import (
	"context"

	"github.com/avetisov/mediascribe/internal/common"
	"github.com/avetisov/mediascribe/internal/job"
	"github.com/google/uuid"
)

const StatusNotFound = "not_found"

// Snapshot is the stable external view of a job. It never exposes the
// stored record itself.
type Snapshot struct {
	Status   string      `json:"status"`
	Progress *int        `json:"progress,omitempty"`
	Result   *job.Result `json:"result,omitempty"`
}

// Status projects the current record into a snapshot. It is a pure read:
// unknown ids yield a not_found snapshot, in-flight jobs expose status
// plus progress, terminal jobs expose the result.
func (d *Dispatcher) Status(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	j, err := d.store.Get(ctx, id)
	if err != nil {
		if common.IsNotFound(err) {
			return &Snapshot{Status: StatusNotFound}, nil
		}
		return nil, err
	}

	snap := &Snapshot{Status: string(j.Status)}
	switch j.Status {
	case job.StatusComplete:
		progress := 100
		snap.Progress = &progress
		snap.Result = j.Result
	case job.StatusFailed:
		snap.Result = j.Result
	default:
		progress := j.Progress
		snap.Progress = &progress
	}
	return snap, nil
}
