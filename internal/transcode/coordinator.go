// SPDX-License-Identifier: MIT

// Package transcode coordinates on-demand transcode jobs: single-flight
// triggering, a bounded worker pool and a heartbeat watchdog.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/hlsgate/internal/catalog"
	"github.com/ManuGH/hlsgate/internal/transcode/model"
	"github.com/ManuGH/hlsgate/internal/transcode/store"
	"github.com/ManuGH/hlsgate/internal/worker"
)

// Runner produces the artifact for one job. *worker.Worker is the production
// implementation.
type Runner interface {
	Run(ctx context.Context, job *model.Job, media *catalog.MediaRef, onProgress func(worker.Progress)) (string, error)
}

// Config tunes the coordinator's pool and pacing.
type Config struct {
	// MaxConcurrent bounds the number of simultaneous ffmpeg processes.
	MaxConcurrent int
	// StartRate / StartBurst pace job starts to avoid CPU spikes when many
	// triggers arrive at once.
	StartRate  float64
	StartBurst int
	// HeartbeatEvery throttles heartbeat writes during a run.
	HeartbeatEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.StartRate <= 0 {
		c.StartRate = 1
	}
	if c.StartBurst <= 0 {
		c.StartBurst = c.MaxConcurrent
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 15 * time.Second
	}
	return c
}

// Coordinator owns the transcode lifecycle. Trigger is idempotent per
// (media, profile): the job store's atomic create decides the single winner,
// everyone else observes the existing job.
type Coordinator struct {
	store   store.JobStore
	cat     catalog.Catalog
	runner  Runner
	log     zerolog.Logger
	cfg     Config
	slots   chan struct{}
	limiter *rate.Limiter

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewCoordinator(st store.JobStore, cat catalog.Catalog, runner Runner, cfg Config, logger zerolog.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:   st,
		cat:     cat,
		runner:  runner,
		log:     logger,
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		limiter: rate.NewLimiter(rate.Limit(cfg.StartRate), cfg.StartBurst),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Trigger ensures a job exists for (mediaID, profile) and starts it if this
// call created it. Returns the job record and whether a new instance was
// created. Concurrent triggers race on the store; exactly one creates.
//
// A FAILED job is replaced by a fresh instance, so a re-trigger after
// failure retries. QUEUED, RUNNING and READY jobs are returned as-is.
func (c *Coordinator) Trigger(ctx context.Context, mediaID int64, profile model.Profile) (*model.Job, bool, error) {
	if !profile.Valid() {
		return nil, false, fmt.Errorf("invalid profile %q", profile)
	}

	media, err := c.cat.Lookup(ctx, mediaID)
	if err != nil {
		return nil, false, err
	}

	job := &model.Job{
		JobID:         uuid.NewString(),
		MediaID:       mediaID,
		Profile:       profile,
		State:         model.StateQueued,
		CreatedAtUnix: time.Now().Unix(),
	}
	rec, created, err := c.store.CreateIfAbsent(ctx, job)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return rec, false, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return rec, true, nil
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.execute(rec, media)
	return rec, true, nil
}

// execute drives one job from QUEUED to a terminal state.
func (c *Coordinator) execute(job *model.Job, media *catalog.MediaRef) {
	defer c.wg.Done()

	logger := c.log.With().
		Str("job_id", job.JobID).
		Int64("media_id", job.MediaID).
		Str("profile", string(job.Profile)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("transcode job panicked")
			c.finish(job, "", fmt.Errorf("panic: %v", r))
		}
	}()

	// Acquire a pool slot, then pace the start.
	select {
	case c.slots <- struct{}{}:
	case <-c.baseCtx.Done():
		return
	}
	defer func() { <-c.slots }()

	if err := c.limiter.Wait(c.baseCtx); err != nil {
		return
	}

	now := time.Now().Unix()
	rec, err := c.updateWithRetry(c.baseCtx, job.MediaID, job.Profile, func(j *model.Job) error {
		if err := j.Transition(model.StateRunning); err != nil {
			return err
		}
		j.StartedAtUnix = now
		j.HeartbeatUnix = now
		return nil
	})
	if err != nil {
		// Lost the job (e.g. the watchdog reaped it while queued).
		logger.Warn().Err(err).Msg("could not start job, abandoning")
		return
	}
	jobsStarted.WithLabelValues(string(job.Profile)).Inc()
	jobsActive.Inc()
	defer jobsActive.Dec()

	start := time.Now()
	var lastBeat time.Time
	outputRef, runErr := c.runner.Run(c.baseCtx, rec, media, func(worker.Progress) {
		if time.Since(lastBeat) < c.cfg.HeartbeatEvery {
			return
		}
		lastBeat = time.Now()
		c.heartbeat(job.MediaID, job.Profile)
	})
	jobDuration.WithLabelValues(string(job.Profile)).Observe(time.Since(start).Seconds())

	c.finish(job, outputRef, runErr)
}

// finish records the terminal state for a job.
func (c *Coordinator) finish(job *model.Job, outputRef string, runErr error) {
	reason := model.ReasonNone
	switch {
	case runErr == nil:
	case errors.Is(runErr, worker.ErrSourceMissing):
		reason = model.ReasonNotFound
	case errors.Is(runErr, context.Canceled):
		// Shutdown mid-run. The process is gone, the artifact is not
		// promoted; the record says so.
		reason = model.ReasonWorkerLost
	default:
		reason = model.ReasonWorkerError
	}

	// Terminal writes outlive shutdown: a canceled run must still be
	// recorded or the job looks RUNNING forever.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rec, err := c.updateWithRetry(ctx, job.MediaID, job.Profile, func(j *model.Job) error {
		j.FinishedAtUnix = time.Now().Unix()
		if runErr == nil {
			if err := j.Transition(model.StateReady); err != nil {
				return err
			}
			j.OutputRef = outputRef
			return nil
		}
		if err := j.Transition(model.StateFailed); err != nil {
			return err
		}
		j.Reason = reason
		j.Error = runErr.Error()
		return nil
	})
	if err != nil {
		c.log.Error().Err(err).
			Str("job_id", job.JobID).
			Msg("failed to record terminal state")
		return
	}
	jobsCompleted.WithLabelValues(string(job.Profile), string(rec.State), string(rec.Reason)).Inc()

	evt := c.log.Info()
	if runErr != nil {
		evt = c.log.Error().Err(runErr)
	}
	evt.Str("job_id", job.JobID).
		Int64("media_id", job.MediaID).
		Str("profile", string(job.Profile)).
		Str("state", string(rec.State)).
		Msg("transcode job finished")
}

func (c *Coordinator) heartbeat(mediaID int64, profile model.Profile) {
	_, err := c.store.Update(c.baseCtx, mediaID, profile, func(j *model.Job) error {
		if j.State != model.StateRunning {
			return fmt.Errorf("heartbeat on %s job", j.State)
		}
		j.HeartbeatUnix = time.Now().Unix()
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Int64("media_id", mediaID).Msg("heartbeat update failed")
	}
}

// updateWithRetry retries transient store failures with bounded backoff.
// Callback rejections (invalid transitions) are not retried.
func (c *Coordinator) updateWithRetry(ctx context.Context, mediaID int64, profile model.Profile, fn func(*model.Job) error) (*model.Job, error) {
	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		rec, err := c.store.Update(ctx, mediaID, profile, fn)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return nil, err
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

// Close cancels running jobs and waits for their goroutines to drain.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}
