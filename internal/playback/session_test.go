// SPDX-License-Identifier: MIT

package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsgate/internal/readiness"
	"github.com/ManuGH/hlsgate/internal/transcode/model"
)

type fakeBackend struct {
	mu       sync.Mutex
	results  []*readiness.Result // consumed in order; last one repeats
	checkErr error
	trigErr  error

	checks   atomic.Int64
	triggers atomic.Int64
}

func (f *fakeBackend) CheckReadiness(ctx context.Context, mediaID int64) (*readiness.Result, error) {
	f.checks.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	if len(f.results) == 0 {
		return &readiness.Result{Status: readiness.StatusNotStarted}, nil
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return res, nil
}

func (f *fakeBackend) Trigger(ctx context.Context, mediaID int64) error {
	f.triggers.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trigErr
}

func fastOptions() Options {
	return Options{
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  time.Second,
		Logger:       zerolog.Nop(),
	}
}

func waitDone(t *testing.T, s *Session) Result {
	t.Helper()
	select {
	case <-s.Done():
		return s.Result()
	case <-time.After(5 * time.Second):
		t.Fatalf("session never finished, state %s", s.State())
		return Result{}
	}
}

func TestSessionAlreadyReady(t *testing.T) {
	backend := &fakeBackend{results: []*readiness.Result{
		{Status: readiness.StatusReady, OutputRef: "1-x/hls/playlist.m3u8"},
	}}
	s := NewSession(backend, 1, fastOptions())
	s.Start(context.Background())

	res := waitDone(t, s)
	if s.State() != StateReady || res.OutputRef != "1-x/hls/playlist.m3u8" {
		t.Fatalf("state=%s result=%+v", s.State(), res)
	}
	if backend.triggers.Load() != 0 {
		t.Error("ready media was triggered")
	}
}

func TestSessionTriggersAndPolls(t *testing.T) {
	backend := &fakeBackend{results: []*readiness.Result{
		{Status: readiness.StatusNotStarted},
		{Status: readiness.StatusInProgress},
		{Status: readiness.StatusInProgress},
		{Status: readiness.StatusReady, OutputRef: "1-x/hls/playlist.m3u8"},
	}}
	s := NewSession(backend, 1, fastOptions())
	s.Start(context.Background())

	res := waitDone(t, s)
	if s.State() != StateReady {
		t.Fatalf("state=%s err=%v", s.State(), res.Err)
	}
	if backend.triggers.Load() != 1 {
		t.Errorf("expected exactly one trigger, got %d", backend.triggers.Load())
	}
	if backend.checks.Load() < 4 {
		t.Errorf("expected at least 4 checks, got %d", backend.checks.Load())
	}
}

func TestSessionSkipsTriggerWhenInProgress(t *testing.T) {
	backend := &fakeBackend{results: []*readiness.Result{
		{Status: readiness.StatusInProgress},
		{Status: readiness.StatusReady, OutputRef: "r"},
	}}
	s := NewSession(backend, 1, fastOptions())
	s.Start(context.Background())
	waitDone(t, s)

	if backend.triggers.Load() != 0 {
		t.Error("in-progress media was re-triggered")
	}
}

func TestSessionRetriggersFailed(t *testing.T) {
	backend := &fakeBackend{results: []*readiness.Result{
		{Status: readiness.StatusFailed, Reason: model.ReasonWorkerError},
		{Status: readiness.StatusReady, OutputRef: "r"},
	}}
	s := NewSession(backend, 1, fastOptions())
	s.Start(context.Background())
	res := waitDone(t, s)

	if s.State() != StateReady {
		t.Fatalf("state=%s err=%v", s.State(), res.Err)
	}
	if backend.triggers.Load() != 1 {
		t.Errorf("failed job should be re-triggered once, got %d", backend.triggers.Load())
	}
}

func TestSessionGivesUpOnFailureWhilePolling(t *testing.T) {
	backend := &fakeBackend{results: []*readiness.Result{
		{Status: readiness.StatusNotStarted},
		{Status: readiness.StatusInProgress},
		{Status: readiness.StatusFailed, Reason: model.ReasonWorkerLost, Error: "worker stopped reporting progress"},
	}}
	s := NewSession(backend, 1, fastOptions())
	s.Start(context.Background())
	res := waitDone(t, s)

	if s.State() != StateGaveUp {
		t.Fatalf("state=%s", s.State())
	}
	if res.Reason != model.ReasonWorkerLost {
		t.Errorf("reason=%s", res.Reason)
	}
	if res.FallbackURL == "" {
		t.Error("gave-up result has no fallback URL")
	}
}

func TestSessionTimesOut(t *testing.T) {
	backend := &fakeBackend{results: []*readiness.Result{
		{Status: readiness.StatusInProgress},
	}}
	opts := fastOptions()
	opts.PollTimeout = 30 * time.Millisecond
	s := NewSession(backend, 1, opts)
	s.Start(context.Background())
	res := waitDone(t, s)

	if s.State() != StateGaveUp {
		t.Fatalf("state=%s", s.State())
	}
	if !errors.Is(res.Err, ErrTranscodeTimeout) {
		t.Errorf("err=%v", res.Err)
	}
	if res.Reason != model.ReasonTranscodeTimeout {
		t.Errorf("reason=%s", res.Reason)
	}
}

func TestSessionCancellationStopsPolling(t *testing.T) {
	backend := &fakeBackend{results: []*readiness.Result{
		{Status: readiness.StatusInProgress},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(backend, 1, fastOptions())
	s.Start(ctx)

	// Let it reach polling, then cancel.
	deadline := time.Now().Add(time.Second)
	for s.State() != StatePolling && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	waitDone(t, s)

	checksAtCancel := backend.checks.Load()
	time.Sleep(50 * time.Millisecond)
	if got := backend.checks.Load(); got != checksAtCancel {
		t.Errorf("checks continued after cancel: %d -> %d", checksAtCancel, got)
	}
	if s.State() != StateGaveUp {
		t.Errorf("state=%s", s.State())
	}
}

func TestSessionCloseIsSynchronous(t *testing.T) {
	backend := &fakeBackend{results: []*readiness.Result{
		{Status: readiness.StatusInProgress},
	}}
	s := NewSession(backend, 1, fastOptions())
	s.Start(context.Background())

	s.Close()
	select {
	case <-s.Done():
	default:
		t.Error("Close returned before the loop exited")
	}
	// Idempotent.
	s.Close()
}

func TestSessionCloseWithoutStart(t *testing.T) {
	s := NewSession(&fakeBackend{}, 1, fastOptions())
	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close hung for a never-started session")
	}
}

func TestSessionTransientCheckErrorsKeepPolling(t *testing.T) {
	backend := &fakeBackend{results: []*readiness.Result{
		{Status: readiness.StatusInProgress},
	}}
	s := NewSession(backend, 1, fastOptions())
	s.Start(context.Background())

	// Inject an error mid-poll, then heal the backend.
	time.Sleep(15 * time.Millisecond)
	backend.mu.Lock()
	backend.checkErr = errors.New("store hiccup")
	backend.mu.Unlock()
	time.Sleep(15 * time.Millisecond)
	backend.mu.Lock()
	backend.checkErr = nil
	backend.results = []*readiness.Result{{Status: readiness.StatusReady, OutputRef: "r"}}
	backend.mu.Unlock()

	res := waitDone(t, s)
	if s.State() != StateReady {
		t.Fatalf("state=%s err=%v", s.State(), res.Err)
	}
}
