// SPDX-License-Identifier: MIT

package transcode

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsgate/internal/transcode/model"
	"github.com/ManuGH/hlsgate/internal/transcode/store"
)

// WatchdogConfig tunes the stale-job sweep.
type WatchdogConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// HeartbeatTimeout fails a RUNNING job whose last heartbeat is older
	// than this. Also bounds how long a QUEUED job may wait for a slot;
	// a queued record older than this belongs to a dead process.
	HeartbeatTimeout time.Duration
}

func (c WatchdogConfig) withDefaults() WatchdogConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 2 * time.Minute
	}
	return c
}

// Watchdog fails jobs whose worker stopped reporting. Without it a crashed
// or OOM-killed worker leaves a RUNNING record behind and every later
// trigger would wait on it forever.
type Watchdog struct {
	store store.JobStore
	cfg   WatchdogConfig
	log   zerolog.Logger
}

func NewWatchdog(st store.JobStore, cfg WatchdogConfig, logger zerolog.Logger) *Watchdog {
	return &Watchdog{store: st, cfg: cfg.withDefaults(), log: logger}
}

// Run sweeps until ctx is canceled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep scans for stale jobs and fails them with reason worker_lost.
func (w *Watchdog) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.cfg.HeartbeatTimeout).Unix()

	var stale []*model.Job
	err := w.store.Scan(ctx, func(j *model.Job) error {
		switch j.State {
		case model.StateRunning:
			if j.HeartbeatUnix < cutoff {
				stale = append(stale, j)
			}
		case model.StateQueued:
			if j.CreatedAtUnix < cutoff {
				stale = append(stale, j)
			}
		}
		return nil
	})
	if err != nil {
		w.log.Warn().Err(err).Msg("watchdog scan failed")
		return
	}

	for _, j := range stale {
		rec, err := w.store.Update(ctx, j.MediaID, j.Profile, func(cur *model.Job) error {
			// Re-check under the transaction: the worker may have
			// finished or beaten between scan and update.
			switch cur.State {
			case model.StateRunning:
				if cur.HeartbeatUnix >= cutoff {
					return errJobAlive
				}
			case model.StateQueued:
				if cur.CreatedAtUnix >= cutoff {
					return errJobAlive
				}
			default:
				return errJobAlive
			}
			if err := cur.Transition(model.StateFailed); err != nil {
				return err
			}
			cur.Reason = model.ReasonWorkerLost
			cur.Error = "worker stopped reporting progress"
			cur.FinishedAtUnix = time.Now().Unix()
			return nil
		})
		if err != nil {
			if !errors.Is(err, errJobAlive) {
				w.log.Warn().Err(err).
					Str("job_id", j.JobID).
					Msg("watchdog could not fail stale job")
			}
			continue
		}
		watchdogReaped.Inc()
		w.log.Warn().
			Str("job_id", rec.JobID).
			Int64("media_id", rec.MediaID).
			Str("profile", string(rec.Profile)).
			Msg("stale job failed by watchdog")
	}
}

// errJobAlive aborts a watchdog update when the job turned out to be fine.
var errJobAlive = errors.New("job is alive")
