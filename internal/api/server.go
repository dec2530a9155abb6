// SPDX-License-Identifier: MIT

// Package api exposes the daemon's HTTP surface: readiness queries, trigger,
// artifact serving and the catalog read API.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsgate/internal/api/middleware"
	"github.com/ManuGH/hlsgate/internal/catalog"
	"github.com/ManuGH/hlsgate/internal/config"
	"github.com/ManuGH/hlsgate/internal/readiness"
	"github.com/ManuGH/hlsgate/internal/transcode/model"
)

// Trigger starts (or deduplicates) a transcode job.
type Trigger interface {
	Trigger(ctx context.Context, mediaID int64, profile model.Profile) (*model.Job, bool, error)
}

// Checker answers readiness queries.
type Checker interface {
	Check(ctx context.Context, mediaID int64, profile model.Profile) (*readiness.Result, error)
}

// Artifacts resolves output references to confined absolute paths.
type Artifacts interface {
	ArtifactPath(outputRef string) (string, error)
}

// Options wires the server's collaborators.
type Options struct {
	Catalog   catalog.Catalog
	Trigger   Trigger
	Checker   Checker
	Artifacts Artifacts
	MediaRoot string
	Logger    zerolog.Logger
}

// Server is the HTTP surface of the daemon.
type Server struct {
	cat       catalog.Catalog
	trigger   Trigger
	checker   Checker
	artifacts Artifacts
	mediaRoot string
	log       zerolog.Logger
}

func NewServer(opts Options) *Server {
	return &Server{
		cat:       opts.Catalog,
		trigger:   opts.Trigger,
		checker:   opts.Checker,
		artifacts: opts.Artifacts,
		mediaRoot: opts.MediaRoot,
		log:       opts.Logger,
	}
}

// Router builds the chi router with the canonical middleware stack.
func (s *Server) Router(cfg *config.Config) http.Handler {
	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = "hlsgate-api"
	}
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        cfg.HTTP.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        tracing,
		EnableLogging:         true,
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireToken(cfg.APIToken))

		r.Get("/media", s.handleListMedia)
		r.Route("/media/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetMedia)
			r.Get("/stream", s.handleStream)

			r.Route("/hls", func(r chi.Router) {
				r.With(middleware.TriggerRateLimit(cfg.HTTP.TriggerRPM)).
					Post("/", s.handleTrigger)
				r.Get("/status", s.handleStatus)
				r.Head("/status", s.handleStatusHead)
				r.Get("/playlist.m3u8", s.handlePlaylist)
				r.Get("/{segment}", s.handleSegment)
			})
		})
	})

	return r
}
