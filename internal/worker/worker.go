package worker

import (
	"context"

	"github.com/avetisov/mediascribe/internal/job"
)

// ProgressFunc reports completion percentage back to the dispatcher.
type ProgressFunc func(percent int)

// Func executes one job to completion. A nil error with a result means
// success; an error means the job failed and the error text becomes the
// failure description.
type Func func(ctx context.Context, p job.Params, progress ProgressFunc) (*job.Result, error)
