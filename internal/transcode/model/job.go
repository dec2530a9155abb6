// SPDX-License-Identifier: MIT

// Package model defines the transcode job records shared by the store,
// the coordinator and the API layer.
package model

import (
	"fmt"
	"strconv"
)

// Profile names an output variant of a transcode. Jobs are keyed by
// (media id, profile) so otherwise-identical work is distinguished.
type Profile string

const (
	// ProfileHLS is the adaptive-streaming output (playlist + ts segments).
	ProfileHLS Profile = "hls"
	// ProfileLow is the low-bitrate progressive output.
	ProfileLow Profile = "low"
)

// Valid reports whether p is a known profile.
func (p Profile) Valid() bool {
	return p == ProfileHLS || p == ProfileLow
}

// State is the job lifecycle. Ready and Failed are terminal: a retry after
// Failed is a new job instance, never a resurrection of the old one.
type State string

const (
	StateQueued  State = "QUEUED"
	StateRunning State = "RUNNING"
	StateReady   State = "READY"
	StateFailed  State = "FAILED"
)

// IsTerminal returns true if the state is a final state.
func (s State) IsTerminal() bool {
	return s == StateReady || s == StateFailed
}

// Reason is a compact, typed failure signal.
// Keep these stable: metrics + client UX depend on them.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonWorkerError      Reason = "worker_error"
	ReasonWorkerLost       Reason = "worker_lost"
	ReasonStoreUnavailable Reason = "store_unavailable"
	ReasonTranscodeTimeout Reason = "transcode_timeout"
	ReasonNotFound         Reason = "not_found"
)

// Job is the store's source of truth for one transcode attempt.
type Job struct {
	JobID   string  `json:"jobId"`
	MediaID int64   `json:"mediaId"`
	Profile Profile `json:"profile"`
	State   State   `json:"state"`

	Reason Reason `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`

	// OutputRef points at the playlist (hls) or the output file (low) once Ready.
	OutputRef string `json:"outputRef,omitempty"`

	// Attempt counts job instances for this key, starting at 1.
	Attempt int `json:"attempt"`

	CreatedAtUnix  int64 `json:"createdAtUnix"`
	StartedAtUnix  int64 `json:"startedAtUnix,omitempty"`
	FinishedAtUnix int64 `json:"finishedAtUnix,omitempty"`
	HeartbeatUnix  int64 `json:"heartbeatUnix,omitempty"`
}

// Key returns the store key for the job's (media id, profile) pair.
func (j *Job) Key() string {
	return Key(j.MediaID, j.Profile)
}

// Key builds the canonical store key for a (media id, profile) pair.
func Key(mediaID int64, profile Profile) string {
	return strconv.FormatInt(mediaID, 10) + "/" + string(profile)
}

// Transition moves the job to a new state, enforcing the lifecycle graph
// QUEUED -> RUNNING -> {READY, FAILED}. QUEUED may fail directly (startup
// errors, watchdog). Terminal states never change.
func (j *Job) Transition(to State) error {
	if j.State.IsTerminal() {
		return fmt.Errorf("invalid transition: %s is terminal (job %s)", j.State, j.JobID)
	}
	switch {
	case j.State == StateQueued && to == StateRunning:
	case j.State == StateQueued && to == StateFailed:
	case j.State == StateRunning && to == StateReady:
	case j.State == StateRunning && to == StateFailed:
	default:
		return fmt.Errorf("invalid transition: %s -> %s (job %s)", j.State, to, j.JobID)
	}
	j.State = to
	return nil
}
