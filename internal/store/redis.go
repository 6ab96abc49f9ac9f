package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avetisov/mediascribe/internal/common"
	"github.com/avetisov/mediascribe/internal/job"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "mediascribe:job:"
	redisMaxRetries = 16
)

// RedisStore persists each record as a JSON value under its own key.
// Atomic read-modify-write uses WATCH/MULTI optimistic locking, so two
// concurrent Update calls on the same job never lose a write.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func redisKey(id uuid.UUID) string {
	return redisKeyPrefix + id.String()
}

func (s *RedisStore) Create(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", j.ID, err)
	}
	ok, err := s.client.SetNX(ctx, redisKey(j.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", j.ID, err)
	}
	if !ok {
		return fmt.Errorf("create job %s: %w", j.ID, common.ErrDuplicateID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	data, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if err == redis.Nil {
		return nil, common.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &j, nil
}

func (s *RedisStore) Update(ctx context.Context, id uuid.UUID, mutate Mutator) (*job.Job, error) {
	key := redisKey(id)
	var updated *job.Job

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return common.ErrJobNotFound
		}
		if err != nil {
			return err
		}

		var j job.Job
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("decode job %s: %w", id, err)
		}
		if err := mutate(&j); err != nil {
			return err
		}
		j.ID = id // the id is not mutable

		out, err := json.Marshal(&j)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			updated = &j
		}
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue // key changed under us, retry
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update job %s: too many concurrent modifications", id)
}

func (s *RedisStore) ListIncomplete(ctx context.Context) (map[uuid.UUID]*job.Job, error) {
	out := make(map[uuid.UUID]*job.Job)

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list incomplete: %w", err)
		}
		var j job.Job
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Val(), err)
		}
		if !j.Status.Terminal() {
			out[j.ID] = &j
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list incomplete: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
