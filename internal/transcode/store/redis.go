// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/hlsgate/internal/transcode/model"
)

const redisJobPrefix = "job:"

// RedisStore is a Redis-backed JobStore for multi-instance deployments.
// CreateIfAbsent and Update use WATCH-guarded transactions: concurrent
// writers race, exactly one wins, losers retry and observe the winner.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func OpenRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func redisKey(mediaID int64, profile model.Profile) string {
	return redisJobPrefix + model.Key(mediaID, profile)
}

func (s *RedisStore) Get(ctx context.Context, mediaID int64, profile model.Profile) (*model.Job, error) {
	buf, err := s.client.Get(ctx, redisKey(mediaID, profile)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var out model.Job
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, fmt.Errorf("%w: corrupt record: %v", ErrUnavailable, err)
	}
	return &out, nil
}

func (s *RedisStore) CreateIfAbsent(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	key := redisKey(job.MediaID, job.Profile)
	var (
		out     model.Job
		created bool
	)
	txnFn := func(tx *redis.Tx) error {
		created = false
		attempt := 1

		buf, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var cur model.Job
			if err := json.Unmarshal(buf, &cur); err != nil {
				return fmt.Errorf("corrupt record: %w", err)
			}
			if cur.State != model.StateFailed {
				out = cur
				return nil
			}
			attempt = cur.Attempt + 1
		case errors.Is(err, redis.Nil):
		default:
			return err
		}

		out = *job
		out.Attempt = attempt
		rec, err := json.Marshal(&out)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, rec, 0)
			return nil
		})
		if err != nil {
			return err
		}
		created = true
		return nil
	}

	for {
		err := s.client.Watch(ctx, txnFn, key)
		if err == nil {
			cpy := out
			return &cpy, created, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (s *RedisStore) Update(ctx context.Context, mediaID int64, profile model.Profile, fn func(*model.Job) error) (*model.Job, error) {
	key := redisKey(mediaID, profile)
	var (
		out   model.Job
		fnErr error
	)
	txnFn := func(tx *redis.Tx) error {
		fnErr = nil
		buf, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(buf, &out); err != nil {
			return fmt.Errorf("corrupt record: %w", err)
		}
		if err := fn(&out); err != nil {
			fnErr = err
			return err
		}
		rec, err := json.Marshal(&out)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, rec, 0)
			return nil
		})
		return err
	}

	for {
		err := s.client.Watch(ctx, txnFn, key)
		switch {
		case err == nil:
			return &out, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound):
			return nil, ErrNotFound
		case fnErr != nil:
			return nil, fnErr
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
}

func (s *RedisStore) Scan(ctx context.Context, fn func(*model.Job) error) error {
	iter := s.client.Scan(ctx, 0, redisJobPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		buf, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		var rec model.Job
		if err := json.Unmarshal(buf, &rec); err != nil {
			continue
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

var _ JobStore = (*RedisStore)(nil)
