// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration: defaults, merged with the YAML file
// at path (if non-empty), merged with environment overrides, then validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays HLSGATE_* environment variables onto cfg.
// Unset variables leave the current value untouched.
func applyEnv(cfg *Config) {
	envStr("HLSGATE_LISTEN", &cfg.Listen)
	envStr("HLSGATE_DATA_DIR", &cfg.DataDir)
	envStr("HLSGATE_API_TOKEN", &cfg.APIToken)
	envInt("HLSGATE_MAX_CONNS", &cfg.MaxConns)

	envStr("HLSGATE_MEDIA_ROOT", &cfg.Media.Root)
	envStr("HLSGATE_HLS_ROOT", &cfg.Media.HLSRoot)
	envStr("HLSGATE_CATALOG_DSN", &cfg.Media.CatalogDSN)

	envStr("HLSGATE_STORE_BACKEND", &cfg.Store.Backend)
	envStr("HLSGATE_REDIS_ADDR", &cfg.Store.RedisAddr)
	envStr("HLSGATE_REDIS_PASSWORD", &cfg.Store.RedisPassword)
	envInt("HLSGATE_REDIS_DB", &cfg.Store.RedisDB)

	envStr("HLSGATE_FFMPEG", &cfg.Transcode.FFmpegPath)
	envInt("HLSGATE_MAX_CONCURRENT", &cfg.Transcode.MaxConcurrent)
	envFloat("HLSGATE_START_RATE", &cfg.Transcode.StartRate)
	envInt("HLSGATE_START_BURST", &cfg.Transcode.StartBurst)
	envDur("HLSGATE_WATCHDOG_INTERVAL", &cfg.Transcode.WatchdogInterval)
	envDur("HLSGATE_HEARTBEAT_TIMEOUT", &cfg.Transcode.HeartbeatTimeout)

	envDur("HLSGATE_POLL_INTERVAL", &cfg.Playback.PollInterval)
	envDur("HLSGATE_POLL_TIMEOUT", &cfg.Playback.PollTimeout)

	envInt("HLSGATE_TRIGGER_RPM", &cfg.HTTP.TriggerRPM)
	if v, ok := os.LookupEnv("HLSGATE_ALLOWED_ORIGINS"); ok {
		cfg.HTTP.AllowedOrigins = strings.Split(v, ",")
	}

	envStr("HLSGATE_LOG_LEVEL", &cfg.Log.Level)
	envStr("HLSGATE_LOG_SERVICE", &cfg.Log.Service)

	envBool("HLSGATE_OTEL_ENABLED", &cfg.Telemetry.Enabled)
	envStr("HLSGATE_OTEL_EXPORTER", &cfg.Telemetry.Exporter)
	envStr("HLSGATE_OTEL_ENDPOINT", &cfg.Telemetry.Endpoint)
	envFloat("HLSGATE_OTEL_SAMPLING", &cfg.Telemetry.SamplingRate)
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDur(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}
