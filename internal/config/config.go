// SPDX-License-Identifier: MIT

// Package config loads and validates the daemon configuration.
// Precedence: defaults, then an optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the full daemon configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	DataDir  string `yaml:"dataDir"`
	APIToken string `yaml:"apiToken"`

	// MaxConns caps concurrent TCP connections on the listener. 0 disables the cap.
	MaxConns int `yaml:"maxConns"`

	Media     Media     `yaml:"media"`
	Store     Store     `yaml:"store"`
	Transcode Transcode `yaml:"transcode"`
	Playback  Playback  `yaml:"playback"`
	HTTP      HTTP      `yaml:"http"`
	Log       Log       `yaml:"log"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Media locates the source library and the derived artifact cache.
type Media struct {
	// Root is the directory holding original uploads (owned by the library app).
	Root string `yaml:"root"`
	// HLSRoot is where transcode output trees are written and served from.
	HLSRoot string `yaml:"hlsRoot"`
	// CatalogDSN is the SQLite file of the external media catalog (read-only).
	CatalogDSN string `yaml:"catalogDSN"`
}

// Store selects the job store backend.
type Store struct {
	Backend       string `yaml:"backend"` // "badger", "redis" or "memory"
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
}

// Transcode tunes the coordinator and worker supervision.
type Transcode struct {
	FFmpegPath       string        `yaml:"ffmpegPath"`
	MaxConcurrent    int           `yaml:"maxConcurrent"`
	StartRate        float64       `yaml:"startRate"`  // job starts per second
	StartBurst       int           `yaml:"startBurst"` // limiter burst
	WatchdogInterval time.Duration `yaml:"watchdogInterval"`
	HeartbeatTimeout time.Duration `yaml:"heartbeatTimeout"`
	StallTimeout     time.Duration `yaml:"stallTimeout"`
	StartupGrace     time.Duration `yaml:"startupGrace"`
}

// Playback carries the client-side poll policy handed to playback sessions.
type Playback struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	PollTimeout  time.Duration `yaml:"pollTimeout"`
}

// HTTP tunes per-route protection.
type HTTP struct {
	TriggerRPM     int      `yaml:"triggerRPM"` // per-IP trigger requests per minute
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Log configures the global logger.
type Log struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Telemetry configures OTLP trace export.
type Telemetry struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // "grpc" or "http"
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:  ":8080",
		DataDir: "/var/lib/hlsgate",
		Media: Media{
			Root:       "/data/media",
			HLSRoot:    "", // derived from DataDir when empty
			CatalogDSN: "/data/media/catalog.db",
		},
		Store: Store{
			Backend:   "badger",
			RedisAddr: "localhost:6379",
		},
		Transcode: Transcode{
			FFmpegPath:       "ffmpeg",
			MaxConcurrent:    2,
			StartRate:        1,
			StartBurst:       4,
			WatchdogInterval: 30 * time.Second,
			HeartbeatTimeout: 2 * time.Minute,
			StallTimeout:     5 * time.Minute,
			StartupGrace:     30 * time.Second,
		},
		Playback: Playback{
			PollInterval: 5 * time.Second,
			PollTimeout:  10 * time.Minute,
		},
		HTTP: HTTP{
			TriggerRPM: 60,
		},
		Log: Log{
			Level:   "info",
			Service: "hlsgate",
		},
		Telemetry: Telemetry{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 0.1,
		},
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address required"))
	}
	if c.Media.Root == "" {
		errs = append(errs, errors.New("media root required"))
	}
	switch c.Store.Backend {
	case "badger", "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("redis backend requires store.redisAddr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Transcode.MaxConcurrent < 1 {
		errs = append(errs, errors.New("transcode.maxConcurrent must be >= 1"))
	}
	if c.Transcode.StartRate <= 0 {
		errs = append(errs, errors.New("transcode.startRate must be > 0"))
	}
	if c.Transcode.WatchdogInterval <= 0 || c.Transcode.HeartbeatTimeout <= 0 {
		errs = append(errs, errors.New("transcode watchdog intervals must be > 0"))
	}
	if c.Playback.PollInterval <= 0 || c.Playback.PollTimeout <= c.Playback.PollInterval {
		errs = append(errs, errors.New("playback poll timeout must exceed poll interval"))
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "grpc", "http":
		default:
			errs = append(errs, fmt.Errorf("unsupported telemetry exporter %q", c.Telemetry.Exporter))
		}
	}
	return errors.Join(errs...)
}

// EffectiveHLSRoot resolves the artifact root, falling back under DataDir.
func (c *Config) EffectiveHLSRoot() string {
	if c.Media.HLSRoot != "" {
		return c.Media.HLSRoot
	}
	return c.DataDir + "/hls"
}
