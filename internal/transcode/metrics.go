// SPDX-License-Identifier: MIT

package transcode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsgate_transcode_jobs_started_total",
		Help: "Transcode jobs that entered the RUNNING state.",
	}, []string{"profile"})

	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsgate_transcode_jobs_completed_total",
		Help: "Transcode jobs that reached a terminal state.",
	}, []string{"profile", "state", "reason"})

	jobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hlsgate_transcode_jobs_active",
		Help: "Transcode jobs currently holding a worker slot.",
	})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlsgate_transcode_job_duration_seconds",
		Help:    "Wall-clock duration of finished transcode jobs.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"profile"})

	watchdogReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlsgate_transcode_watchdog_reaped_total",
		Help: "Running jobs failed by the watchdog after heartbeat loss.",
	})
)
