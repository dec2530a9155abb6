// SPDX-License-Identifier: MIT

// Package store is the system-of-record for transcode jobs.
//
// Design intent:
//   - CreateIfAbsent is the single atomic primitive: exactly one concurrent
//     caller observes created=true for a given (media id, profile) key. This
//     is a compare-and-swap on job existence, not a lock held for the job's
//     lifetime.
//   - All other reads are snapshots; mutation goes through Update.
//   - Terminal states never regress (enforced by model.Job.Transition).
package store

import (
	"context"
	"errors"

	"github.com/ManuGH/hlsgate/internal/transcode/model"
)

var (
	// ErrUnavailable wraps backend failures (StoreUnavailable in the API).
	ErrUnavailable = errors.New("job store unavailable")
	// ErrNotFound is returned by Update when no job exists for the key.
	ErrNotFound = errors.New("job not found")
)

// JobStore persists one job record per (media id, profile) key.
type JobStore interface {
	// Get returns the current job for the key, or (nil, nil) when absent.
	// Callers must check for nil before use.
	Get(ctx context.Context, mediaID int64, profile model.Profile) (*model.Job, error)

	// CreateIfAbsent installs job for its key if no live record exists.
	// Exactly one concurrent caller wins. A terminal FAILED record is
	// replaced by the new instance (retry is a new job) and counts as
	// created; QUEUED/RUNNING/READY records are returned unchanged with
	// created=false. The stored job's Attempt is set by the store.
	CreateIfAbsent(ctx context.Context, job *model.Job) (*model.Job, bool, error)

	// Update applies fn to a copy of the stored record and writes it back
	// atomically. Returns ErrNotFound when the key has no record.
	Update(ctx context.Context, mediaID int64, profile model.Profile, fn func(*model.Job) error) (*model.Job, error)

	// Scan iterates over all job records. Used by the watchdog sweep.
	Scan(ctx context.Context, fn func(*model.Job) error) error

	Close() error
}

// List collects all jobs from a store (admin/listing convenience).
func List(ctx context.Context, s JobStore) ([]*model.Job, error) {
	var out []*model.Job
	err := s.Scan(ctx, func(j *model.Job) error {
		out = append(out, j)
		return nil
	})
	return out, err
}
