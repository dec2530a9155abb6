// SPDX-License-Identifier: MIT

// Package playback implements the client-side readiness session: check,
// trigger if needed, poll until playable or until the session gives up.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsgate/internal/readiness"
	"github.com/ManuGH/hlsgate/internal/transcode/model"
)

// Backend is the daemon surface the session talks to.
type Backend interface {
	CheckReadiness(ctx context.Context, mediaID int64) (*readiness.Result, error)
	Trigger(ctx context.Context, mediaID int64) error
}

// State of the session machine.
type State string

const (
	StateIdle       State = "idle"
	StateChecking   State = "checking"
	StateTriggering State = "triggering"
	StatePolling    State = "polling"
	StateReady      State = "ready"
	StateGaveUp     State = "gave_up"
)

// ErrTranscodeTimeout ends a session that polled past its ceiling.
var ErrTranscodeTimeout = errors.New("transcode did not become ready in time")

// Options tunes the polling loop.
type Options struct {
	// PollInterval between readiness checks. Default 5s.
	PollInterval time.Duration
	// PollTimeout is the total ceiling before the session gives up.
	// Default 10m.
	PollTimeout time.Duration
	Logger      zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 10 * time.Minute
	}
	return o
}

// Result is the session outcome, valid once Done() is closed.
type Result struct {
	// OutputRef points at the playlist when the session ended Ready.
	OutputRef string
	// Err is set when the session gave up.
	Err error
	// Reason classifies the failure when known.
	Reason model.Reason
	// FallbackURL suggests the progressive low-bitrate stream when the
	// session gave up.
	FallbackURL string
}

// Session drives one media item from "maybe not transcoded" to playable.
// All transitions happen on a single goroutine; Close is synchronous.
type Session struct {
	backend Backend
	mediaID int64
	opts    Options
	log     zerolog.Logger

	mu    sync.Mutex
	state State

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	result    Result
}

func NewSession(backend Backend, mediaID int64, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		backend: backend,
		mediaID: mediaID,
		opts:    opts,
		log:     opts.Logger.With().Int64("media_id", mediaID).Logger(),
		state:   StateIdle,
		done:    make(chan struct{}),
	}
}

// Start launches the session loop. Subsequent calls are no-ops.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		go s.run(runCtx)
	})
}

// State returns the current machine state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session reached Ready or GaveUp.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result is valid once Done() is closed.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Close cancels the session and waits for the loop to exit. Safe to call
// multiple times and after completion.
func (s *Session) Close() {
	s.Start(context.Background()) // ensure done can close for never-started sessions
	s.cancel()
	<-s.done
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.log.Debug().Str("state", string(st)).Msg("session state")
}

func (s *Session) finishReady(outputRef string) {
	s.mu.Lock()
	s.state = StateReady
	s.result = Result{OutputRef: outputRef}
	s.mu.Unlock()
	s.log.Info().Str("output_ref", outputRef).Msg("session ready")
	close(s.done)
}

func (s *Session) finishGaveUp(err error, reason model.Reason) {
	s.mu.Lock()
	s.state = StateGaveUp
	s.result = Result{
		Err:         err,
		Reason:      reason,
		FallbackURL: fmt.Sprintf("/api/media/%d/stream?quality=low", s.mediaID),
	}
	s.mu.Unlock()
	s.log.Warn().Err(err).Str("reason", string(reason)).Msg("session gave up")
	close(s.done)
}

func (s *Session) run(ctx context.Context) {
	defer s.cancel()

	s.setState(StateChecking)
	res, err := s.backend.CheckReadiness(ctx, s.mediaID)
	if ctx.Err() != nil {
		s.finishGaveUp(ctx.Err(), model.ReasonNone)
		return
	}
	if err != nil {
		s.finishGaveUp(err, model.ReasonStoreUnavailable)
		return
	}

	switch res.Status {
	case readiness.StatusReady:
		s.finishReady(res.OutputRef)
		return
	case readiness.StatusInProgress:
		// A transcode is already running; just poll.
	default:
		// Not started, or failed (a trigger replaces a failed job).
		s.setState(StateTriggering)
		if err := s.backend.Trigger(ctx, s.mediaID); err != nil {
			if ctx.Err() != nil {
				s.finishGaveUp(ctx.Err(), model.ReasonNone)
				return
			}
			s.finishGaveUp(err, model.ReasonNone)
			return
		}
	}

	s.setState(StatePolling)
	deadline := time.Now().Add(s.opts.PollTimeout)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		// Cancellation is honored before scheduling the next check.
		select {
		case <-ctx.Done():
			s.finishGaveUp(ctx.Err(), model.ReasonNone)
			return
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			s.finishGaveUp(ErrTranscodeTimeout, model.ReasonTranscodeTimeout)
			return
		}

		res, err := s.backend.CheckReadiness(ctx, s.mediaID)

		// And again before acting on the check's result.
		if ctx.Err() != nil {
			s.finishGaveUp(ctx.Err(), model.ReasonNone)
			return
		}
		if err != nil {
			// Transient backend trouble does not end the session; the
			// ceiling bounds how long we keep trying.
			s.log.Warn().Err(err).Msg("readiness check failed, will retry")
			continue
		}

		switch res.Status {
		case readiness.StatusReady:
			s.finishReady(res.OutputRef)
			return
		case readiness.StatusFailed:
			reason := res.Reason
			if reason == model.ReasonNone {
				reason = model.ReasonWorkerError
			}
			s.finishGaveUp(fmt.Errorf("transcode failed: %s", res.Error), reason)
			return
		}
	}
}
