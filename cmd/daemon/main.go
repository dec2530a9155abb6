// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/hlsgate/internal/api"
	"github.com/ManuGH/hlsgate/internal/catalog"
	"github.com/ManuGH/hlsgate/internal/config"
	hlog "github.com/ManuGH/hlsgate/internal/log"
	"github.com/ManuGH/hlsgate/internal/readiness"
	"github.com/ManuGH/hlsgate/internal/telemetry"
	"github.com/ManuGH/hlsgate/internal/transcode"
	"github.com/ManuGH/hlsgate/internal/transcode/store"
	"github.com/ManuGH/hlsgate/internal/version"
	"github.com/ManuGH/hlsgate/internal/worker"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheckCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	hlog.Configure(hlog.Config{Level: "info", Service: "hlsgate"})
	logger := hlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit via --config, otherwise auto-load
	// ${HLSGATE_DATA_DIR}/config.yaml when it exists.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(os.Getenv("HLSGATE_DATA_DIR"))
		if dataDir == "" {
			dataDir = config.Default().DataDir
		}
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectivePath = autoPath
		}
	}

	cfg, err := config.Load(effectivePath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	hlog.Configure(hlog.Config{Level: cfg.Log.Level, Service: cfg.Log.Service})

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.Listen).
		Str("store", cfg.Store.Backend).
		Str("media_root", cfg.Media.Root).
		Str("hls_root", cfg.EffectiveHLSRoot()).
		Msg("starting hlsgate")
	if cfg.APIToken == "" {
		logger.Warn().
			Str("security", "weak").
			Msg("API token NOT configured (auth disabled); set HLSGATE_API_TOKEN")
	}

	if err := os.MkdirAll(cfg.EffectiveHLSRoot(), 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create artifact root")
	}

	if err := run(ctx, &cfg, effectivePath, logger); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon failed")
	}
	logger.Info().Msg("server exiting")
}

func run(ctx context.Context, cfg *config.Config, cfgPath string, logger zerolog.Logger) error {
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	st, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer func() { _ = st.Close() }()

	cat, err := catalog.OpenSQLite(cfg.Media.CatalogDSN)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = cat.Close() }()

	wrk := worker.New(worker.Options{
		FFmpegPath: cfg.Transcode.FFmpegPath,
		MediaRoot:  cfg.Media.Root,
		HLSRoot:    cfg.EffectiveHLSRoot(),
		Exec: &worker.DefaultExecutor{
			Logger: hlog.WithComponent("ffmpeg"),
			Watch: worker.WatchConfig{
				StartupGrace: cfg.Transcode.StartupGrace,
				StallTimeout: cfg.Transcode.StallTimeout,
			},
		},
		Logger: hlog.WithComponent("worker"),
	})

	coord := transcode.NewCoordinator(st, cat, wrk, transcode.Config{
		MaxConcurrent: cfg.Transcode.MaxConcurrent,
		StartRate:     cfg.Transcode.StartRate,
		StartBurst:    cfg.Transcode.StartBurst,
	}, hlog.WithComponent("coordinator"))
	defer coord.Close()

	watchdog := transcode.NewWatchdog(st, transcode.WatchdogConfig{
		Interval:         cfg.Transcode.WatchdogInterval,
		HeartbeatTimeout: cfg.Transcode.HeartbeatTimeout,
	}, hlog.WithComponent("watchdog"))

	checker := readiness.NewService(st, wrk, func(path string) error {
		_, err := os.Stat(path)
		return err
	}, hlog.WithComponent("readiness"))

	srv := api.NewServer(api.Options{
		Catalog:   cat,
		Trigger:   coord,
		Checker:   checker,
		Artifacts: wrk,
		MediaRoot: cfg.Media.Root,
		Logger:    hlog.WithComponent("api"),
	})

	holder := config.NewHolder(cfgPath, *cfg)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup must not fail without it.
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
	}

	// SIGHUP triggers a manual reload.
	g.Go(func() error {
		hupChan := make(chan os.Signal, 1)
		signal.Notify(hupChan, syscall.SIGHUP)
		defer signal.Stop(hupChan)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hupChan:
				logger.Info().Str("event", "config.reload_signal").Msg("received SIGHUP, reloading config")
				if err := holder.Reload(context.Background()); err != nil {
					logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("config reload failed")
				}
			}
		}
	})

	g.Go(func() error {
		if err := watchdog.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.Listen).Msg("http server listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Str("event", "shutdown").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
