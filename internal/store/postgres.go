package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avetisov/mediascribe/internal/common"
	"github.com/avetisov/mediascribe/internal/job"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const pgSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id              UUID PRIMARY KEY,
	status          TEXT NOT NULL,
	progress        INT NOT NULL DEFAULT 0,
	params          JSONB,
	result          JSONB,
	created_at      TIMESTAMPTZ NOT NULL,
	last_checkpoint TIMESTAMPTZ,
	resumed_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status);
`

// PostgresStore keeps one row per job record. Atomic read-modify-write is
// a transaction with SELECT ... FOR UPDATE, which serializes concurrent
// mutators of the same job exactly like the file backend's mutex does.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure jobs table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *PostgresStore) Create(ctx context.Context, j *job.Job) error {
	params, err := marshalJSON(j.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	result, err := marshalJSON(j.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		INSERT INTO jobs (id, status, progress, params, result, created_at, last_checkpoint, resumed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.pool.Exec(ctx, query,
		j.ID, string(j.Status), j.Progress, params, result,
		j.CreatedAt, j.LastCheckpoint, j.ResumedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("create job %s: %w", j.ID, common.ErrDuplicateID)
		}
		return fmt.Errorf("create job %s: %w", j.ID, err)
	}
	return nil
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j      job.Job
		status string
		params []byte
		result []byte
	)
	err := row.Scan(&j.ID, &status, &j.Progress, &params, &result,
		&j.CreatedAt, &j.LastCheckpoint, &j.ResumedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrJobNotFound
		}
		return nil, err
	}
	j.Status = job.Status(status)
	if len(params) > 0 {
		j.Params = &job.Params{}
		if err := json.Unmarshal(params, j.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if len(result) > 0 {
		j.Result = &job.Result{}
		if err := json.Unmarshal(result, j.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &j, nil
}

const selectJob = `
	SELECT id, status, progress, params, result, created_at, last_checkpoint, resumed_at
	FROM jobs WHERE id = $1
`

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, selectJob, id))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, mutate Mutator) (*job.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	j, err := scanJob(tx.QueryRow(ctx, selectJob+" FOR UPDATE", id))
	if err != nil {
		return nil, err
	}
	if err := mutate(j); err != nil {
		return nil, err
	}
	j.ID = id // the id is not mutable

	params, err := marshalJSON(j.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	result, err := marshalJSON(j.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $2, progress = $3, params = $4, result = $5, last_checkpoint = $6, resumed_at = $7
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query,
		j.ID, string(j.Status), j.Progress, params, result,
		j.LastCheckpoint, j.ResumedAt); err != nil {
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update %s: %w", id, err)
	}
	return j, nil
}

func (s *PostgresStore) ListIncomplete(ctx context.Context) (map[uuid.UUID]*job.Job, error) {
	query := `
		SELECT id, status, progress, params, result, created_at, last_checkpoint, resumed_at
		FROM jobs WHERE status NOT IN ($1, $2)
	`
	rows, err := s.pool.Query(ctx, query, string(job.StatusComplete), string(job.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("list incomplete: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]*job.Job)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list incomplete: %w", err)
		}
		out[j.ID] = j
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list incomplete: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
