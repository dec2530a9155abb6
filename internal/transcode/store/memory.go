// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sync"

	"github.com/ManuGH/hlsgate/internal/transcode/model"
)

// MemoryStore is an in-memory JobStore intended for tests and local iteration.
// Not durable; not suitable for production.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*model.Job)}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Get(ctx context.Context, mediaID int64, profile model.Profile) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.jobs[model.Key(mediaID, profile)]
	if !ok {
		return nil, nil
	}
	cpy := *rec
	return &cpy, nil
}

func (m *MemoryStore) CreateIfAbsent(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	key := job.Key()
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.jobs[key]; ok && cur.State != model.StateFailed {
		cpy := *cur
		return &cpy, false, nil
	}

	cpy := *job
	cpy.Attempt = 1
	if old, ok := m.jobs[key]; ok {
		cpy.Attempt = old.Attempt + 1
	}
	m.jobs[key] = &cpy

	out := cpy
	return &out, true, nil
}

func (m *MemoryStore) Update(ctx context.Context, mediaID int64, profile model.Profile, fn func(*model.Job) error) (*model.Job, error) {
	key := model.Key(mediaID, profile)
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	cpy := *rec
	if err := fn(&cpy); err != nil {
		return nil, err
	}
	m.jobs[key] = &cpy

	out := cpy
	return &out, nil
}

func (m *MemoryStore) Scan(ctx context.Context, fn func(*model.Job) error) error {
	// Snapshot under lock, iterate without it: slow callbacks must not
	// block concurrent readers.
	m.mu.RLock()
	snapshot := make([]*model.Job, 0, len(m.jobs))
	for _, rec := range m.jobs {
		cpy := *rec
		snapshot = append(snapshot, &cpy)
	}
	m.mu.RUnlock()

	for _, rec := range snapshot {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

var _ JobStore = (*MemoryStore)(nil)
