// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/hlsgate/internal/transcode/model"
)

var jobPrefix = []byte("job:")

// BadgerStore is the durable default JobStore. Job records are JSON values
// under "job:<mediaID>/<profile>". Badger's serializable transactions give
// CreateIfAbsent its single-winner guarantee.
type BadgerStore struct {
	db *badger.DB
}

func OpenBadgerStore(path string) (*BadgerStore, error) {
	if path == "" {
		return nil, errors.New("badger store path required")
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func jobKey(mediaID int64, profile model.Profile) []byte {
	return append(append([]byte{}, jobPrefix...), model.Key(mediaID, profile)...)
}

func (s *BadgerStore) Get(ctx context.Context, mediaID int64, profile model.Profile) (*model.Job, error) {
	var out model.Job
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(jobKey(mediaID, profile))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil // not found, no error
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &out, nil
}

func (s *BadgerStore) CreateIfAbsent(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	key := jobKey(job.MediaID, job.Profile)
	var (
		out     model.Job
		created bool
	)
	txnFn := func(txn *badger.Txn) error {
		created = false
		attempt := 1
		item, err := txn.Get(key)
		switch {
		case err == nil:
			var cur model.Job
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &cur)
			}); err != nil {
				return err
			}
			if cur.State != model.StateFailed {
				out = cur
				return nil
			}
			attempt = cur.Attempt + 1
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}

		out = *job
		out.Attempt = attempt
		buf, err := json.Marshal(&out)
		if err != nil {
			return err
		}
		if err := txn.Set(key, buf); err != nil {
			return err
		}
		created = true
		return nil
	}

	// Retry on transaction conflicts: one concurrent caller wins, the
	// loser re-reads and observes the winner's record.
	for {
		err := s.db.Update(txnFn)
		if err == nil {
			cpy := out
			return &cpy, created, nil
		}
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (s *BadgerStore) Update(ctx context.Context, mediaID int64, profile model.Profile, fn func(*model.Job) error) (*model.Job, error) {
	key := jobKey(mediaID, profile)
	var out model.Job
	for {
		var fnErr error
		err := s.db.Update(func(txn *badger.Txn) error {
			fnErr = nil
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &out)
			}); err != nil {
				return err
			}
			if err := fn(&out); err != nil {
				fnErr = err
				return err
			}
			buf, err := json.Marshal(&out)
			if err != nil {
				return err
			}
			return txn.Set(key, buf)
		})
		switch {
		case err == nil:
			return &out, nil
		case errors.Is(err, badger.ErrConflict):
			continue
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil, ErrNotFound
		case fnErr != nil:
			// Callback rejections (e.g. invalid transitions) surface as-is.
			return nil, fnErr
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
}

func (s *BadgerStore) Scan(ctx context.Context, fn func(*model.Job) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(jobPrefix); it.ValidForPrefix(jobPrefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var rec model.Job
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			if err := fn(&rec); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ JobStore = (*BadgerStore)(nil)
