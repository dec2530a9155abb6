// SPDX-License-Identifier: MIT

// Package readiness answers "can this media be played right now" from the
// job store, without triggering any work.
package readiness

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/hlsgate/internal/transcode/model"
	"github.com/ManuGH/hlsgate/internal/transcode/store"
)

// Status is the externally visible readiness of a (media, profile) pair.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Result carries the status plus the fields that accompany it: the artifact
// reference for ready, the failure classification for failed.
type Result struct {
	Status    Status       `json:"status"`
	OutputRef string       `json:"outputRef,omitempty"`
	Reason    model.Reason `json:"reason,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// ArtifactProbe resolves an output reference to an absolute path.
// *worker.Worker's ArtifactPath satisfies it.
type ArtifactProbe interface {
	ArtifactPath(outputRef string) (string, error)
}

// Service derives readiness from job records. Check is read-only and safe to
// call at any poll frequency.
type Service struct {
	store store.JobStore
	probe ArtifactProbe
	stat  func(path string) error
	sf    singleflight.Group
	log   zerolog.Logger
}

func NewService(st store.JobStore, probe ArtifactProbe, stat func(string) error, logger zerolog.Logger) *Service {
	return &Service{store: st, probe: probe, stat: stat, log: logger}
}

// Check reports readiness for (mediaID, profile).
//
// Readiness is monotone: once a job is READY it stays READY. A missing
// artifact under a READY job is logged as an inconsistency but does not
// demote the status; the record is the source of truth and serving will
// surface the missing file on its own.
func (s *Service) Check(ctx context.Context, mediaID int64, profile model.Profile) (*Result, error) {
	res, err := s.check(ctx, mediaID, profile)
	if err != nil {
		checksTotal.WithLabelValues(string(profile), "error").Inc()
		return nil, err
	}
	checksTotal.WithLabelValues(string(profile), string(res.Status)).Inc()
	return res, nil
}

func (s *Service) check(ctx context.Context, mediaID int64, profile model.Profile) (*Result, error) {
	rec, err := s.store.Get(ctx, mediaID, profile)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &Result{Status: StatusNotStarted}, nil
	}

	switch rec.State {
	case model.StateQueued, model.StateRunning:
		return &Result{Status: StatusInProgress}, nil
	case model.StateReady:
		s.probeArtifact(rec)
		return &Result{Status: StatusReady, OutputRef: rec.OutputRef}, nil
	case model.StateFailed:
		return &Result{Status: StatusFailed, Reason: rec.Reason, Error: rec.Error}, nil
	default:
		s.log.Error().
			Str("job_id", rec.JobID).
			Str("state", string(rec.State)).
			Msg("job in unknown state")
		return &Result{Status: StatusInProgress}, nil
	}
}

// probeArtifact stats the artifact behind a READY record. Deduplicated per
// output ref so a thundering herd of pollers costs one stat.
func (s *Service) probeArtifact(rec *model.Job) {
	if s.probe == nil || s.stat == nil || rec.OutputRef == "" {
		return
	}
	_, _, _ = s.sf.Do(rec.OutputRef, func() (interface{}, error) {
		path, err := s.probe.ArtifactPath(rec.OutputRef)
		if err == nil {
			err = s.stat(path)
		}
		if err != nil {
			s.log.Warn().Err(err).
				Str("job_id", rec.JobID).
				Str("output_ref", rec.OutputRef).
				Msg("ready job has unreadable artifact")
		}
		return nil, nil
	})
}
