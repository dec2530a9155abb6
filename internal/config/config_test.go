// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hlsgate.yaml")
	body := `
listen: ":9090"
media:
  root: /srv/media
transcode:
  maxConcurrent: 4
playback:
  pollInterval: 2s
  pollTimeout: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv("HLSGATE_MAX_CONCURRENT", "8")
	t.Setenv("HLSGATE_POLL_INTERVAL", "3s")
	t.Setenv("HLSGATE_REDIS_PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)

	// File overrides defaults.
	require.Equal(t, ":9090", cfg.Listen)
	require.Equal(t, "/srv/media", cfg.Media.Root)
	// Env overrides file.
	require.Equal(t, 8, cfg.Transcode.MaxConcurrent)
	require.Equal(t, 3*time.Second, cfg.Playback.PollInterval)
	require.Equal(t, "hunter2", cfg.Store.RedisPassword)
	// Untouched values keep defaults.
	require.Equal(t, "badger", cfg.Store.Backend)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: etcd\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEffectiveHLSRoot(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/hlsgate"
	require.Equal(t, "/var/lib/hlsgate/hls", cfg.EffectiveHLSRoot())

	cfg.Media.HLSRoot = "/cache/hls"
	require.Equal(t, "/cache/hls", cfg.EffectiveHLSRoot())
}

func TestHolderReloadPinsRestartOnlyFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hlsgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	holder := NewHolder(path, cfg)

	ch := make(chan *Config, 1)
	holder.RegisterListener(ch)

	// Attempted listen change must be ignored; tunables must flow through.
	require.NoError(t, os.WriteFile(path, []byte("listen: \":1\"\ntranscode:\n  maxConcurrent: 6\n"), 0o644))
	require.NoError(t, holder.Reload(context.Background()))

	snap := holder.Current()
	require.Equal(t, ":9090", snap.Listen)
	require.Equal(t, 6, snap.Transcode.MaxConcurrent)

	select {
	case got := <-ch:
		require.Equal(t, 6, got.Transcode.MaxConcurrent)
	default:
		t.Fatal("listener was not notified")
	}
}
