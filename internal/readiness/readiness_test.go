// SPDX-License-Identifier: MIT

package readiness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsgate/internal/transcode/model"
	"github.com/ManuGH/hlsgate/internal/transcode/store"
)

type fakeProbe struct {
	calls atomic.Int64
}

func (f *fakeProbe) ArtifactPath(ref string) (string, error) {
	f.calls.Add(1)
	return "/srv/hls/" + ref, nil
}

func seed(t *testing.T, st store.JobStore, state model.State, mutate func(*model.Job)) {
	t.Helper()
	ctx := context.Background()
	job := &model.Job{
		JobID:         "job-1",
		MediaID:       1,
		Profile:       model.ProfileHLS,
		State:         model.StateQueued,
		CreatedAtUnix: time.Now().Unix(),
	}
	if _, _, err := st.CreateIfAbsent(ctx, job); err != nil {
		t.Fatal(err)
	}
	if state == model.StateQueued {
		return
	}
	if _, err := st.Update(ctx, 1, model.ProfileHLS, func(j *model.Job) error {
		if err := j.Transition(model.StateRunning); err != nil {
			return err
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if state == model.StateRunning {
		return
	}
	if _, err := st.Update(ctx, 1, model.ProfileHLS, func(j *model.Job) error {
		if err := j.Transition(state); err != nil {
			return err
		}
		if mutate != nil {
			mutate(j)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func TestCheckStatuses(t *testing.T) {
	okStat := func(string) error { return nil }

	t.Run("not started", func(t *testing.T) {
		svc := NewService(store.NewMemoryStore(), &fakeProbe{}, okStat, zerolog.Nop())
		res, err := svc.Check(context.Background(), 1, model.ProfileHLS)
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != StatusNotStarted {
			t.Errorf("got %s", res.Status)
		}
	})

	t.Run("queued is in progress", func(t *testing.T) {
		st := store.NewMemoryStore()
		seed(t, st, model.StateQueued, nil)
		svc := NewService(st, &fakeProbe{}, okStat, zerolog.Nop())
		res, _ := svc.Check(context.Background(), 1, model.ProfileHLS)
		if res.Status != StatusInProgress {
			t.Errorf("got %s", res.Status)
		}
	})

	t.Run("running is in progress", func(t *testing.T) {
		st := store.NewMemoryStore()
		seed(t, st, model.StateRunning, nil)
		svc := NewService(st, &fakeProbe{}, okStat, zerolog.Nop())
		res, _ := svc.Check(context.Background(), 1, model.ProfileHLS)
		if res.Status != StatusInProgress {
			t.Errorf("got %s", res.Status)
		}
	})

	t.Run("ready carries output ref", func(t *testing.T) {
		st := store.NewMemoryStore()
		seed(t, st, model.StateReady, func(j *model.Job) {
			j.OutputRef = "1-x/hls/playlist.m3u8"
		})
		svc := NewService(st, &fakeProbe{}, okStat, zerolog.Nop())
		res, _ := svc.Check(context.Background(), 1, model.ProfileHLS)
		if res.Status != StatusReady || res.OutputRef != "1-x/hls/playlist.m3u8" {
			t.Errorf("got %+v", res)
		}
	})

	t.Run("failed carries reason", func(t *testing.T) {
		st := store.NewMemoryStore()
		seed(t, st, model.StateFailed, func(j *model.Job) {
			j.Reason = model.ReasonWorkerLost
			j.Error = "worker stopped reporting progress"
		})
		svc := NewService(st, &fakeProbe{}, okStat, zerolog.Nop())
		res, _ := svc.Check(context.Background(), 1, model.ProfileHLS)
		if res.Status != StatusFailed || res.Reason != model.ReasonWorkerLost {
			t.Errorf("got %+v", res)
		}
	})
}

func TestCheckReadySurvivesMissingArtifact(t *testing.T) {
	// The record is the source of truth: a READY job with a vanished
	// artifact still reports ready instead of flapping back.
	st := store.NewMemoryStore()
	seed(t, st, model.StateReady, func(j *model.Job) {
		j.OutputRef = "1-x/hls/playlist.m3u8"
	})
	svc := NewService(st, &fakeProbe{}, func(string) error {
		return errors.New("stat: no such file")
	}, zerolog.Nop())

	res, err := svc.Check(context.Background(), 1, model.ProfileHLS)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusReady {
		t.Errorf("missing artifact demoted status to %s", res.Status)
	}
}

func TestCheckSurfacesStoreFailure(t *testing.T) {
	svc := NewService(&failingStore{}, &fakeProbe{}, nil, zerolog.Nop())
	_, err := svc.Check(context.Background(), 1, model.ProfileHLS)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

type failingStore struct{}

func (f *failingStore) Get(ctx context.Context, mediaID int64, profile model.Profile) (*model.Job, error) {
	return nil, store.ErrUnavailable
}
func (f *failingStore) CreateIfAbsent(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	return nil, false, store.ErrUnavailable
}
func (f *failingStore) Update(ctx context.Context, mediaID int64, profile model.Profile, fn func(*model.Job) error) (*model.Job, error) {
	return nil, store.ErrUnavailable
}
func (f *failingStore) Scan(ctx context.Context, fn func(*model.Job) error) error {
	return store.ErrUnavailable
}
func (f *failingStore) Close() error { return nil }
