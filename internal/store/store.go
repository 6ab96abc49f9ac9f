package store

import (
	"context"

	"github.com/avetisov/mediascribe/internal/job"
	"github.com/google/uuid"
)

// Mutator is applied to a record inside the store's critical section.
// Returning an error aborts the update: nothing is written and the error
// is returned to the caller unchanged. This is the only sanctioned way to
// read-modify-write a record; it cannot lose updates under concurrency.
type Mutator func(*job.Job) error

// Store is the single source of truth for job records. Implementations
// must be safe for concurrent use and must persist every committed
// mutation before returning.
type Store interface {
	// Create inserts a new record. Returns common.ErrDuplicateID if the
	// id is already present.
	Create(ctx context.Context, j *job.Job) error

	// Get returns a copy of the record or common.ErrJobNotFound.
	Get(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// Update applies mutate atomically and returns a copy of the updated
	// record, or common.ErrJobNotFound.
	Update(ctx context.Context, id uuid.UUID, mutate Mutator) (*job.Job, error)

	// ListIncomplete returns all records whose status is non-terminal.
	ListIncomplete(ctx context.Context) (map[uuid.UUID]*job.Job, error)

	Close() error
}
