// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ManuGH/hlsgate/internal/log"
)

// Holder owns the live configuration snapshot and supports hot reload.
// Only runtime-safe tunables should be consumed through Current() by
// subsystems; listen address, store backend and data dir changes require a
// restart and are ignored on reload.
type Holder struct {
	path string

	mu        sync.Mutex
	snap      atomic.Pointer[Config]
	listeners []chan<- *Config
}

// NewHolder wraps an already-loaded configuration. path may be empty when no
// config file is in use; reload then becomes a no-op.
func NewHolder(path string, cfg Config) *Holder {
	h := &Holder{path: path}
	h.snap.Store(&cfg)
	return h
}

// Current returns the active snapshot. The returned value must not be mutated.
func (h *Holder) Current() *Config {
	return h.snap.Load()
}

// RegisterListener subscribes ch to snapshot swaps. Sends are non-blocking;
// a slow listener misses intermediate snapshots but always sees the latest
// on its next receive.
func (h *Holder) RegisterListener(ch chan<- *Config) {
	h.mu.Lock()
	h.listeners = append(h.listeners, ch)
	h.mu.Unlock()
}

// Reload re-reads the config file and swaps the snapshot on success.
func (h *Holder) Reload(ctx context.Context) error {
	if h.path == "" {
		return nil
	}
	cfg, err := Load(h.path)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	// Restart-only fields are pinned to the running values.
	cur := h.Current()
	cfg.Listen = cur.Listen
	cfg.DataDir = cur.DataDir
	cfg.Store = cur.Store

	h.snap.Store(&cfg)

	h.mu.Lock()
	listeners := make([]chan<- *Config, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- &cfg:
		default:
		}
	}

	logger := log.WithComponent("config")
	logger.Info().
		Str("event", "config.reloaded").
		Str("path", h.path).
		Msg("configuration reloaded")
	return nil
}

// StartWatcher watches the config file directory and reloads on writes.
// Best-effort: watcher failures are logged, never fatal.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files, which drops a direct watch.
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	logger := log.WithComponent("config")
	go func() {
		defer func() { _ = watcher.Close() }()

		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(h.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				// Debounce bursts of write events from editors.
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, func() {
					if err := h.Reload(ctx); err != nil {
						logger.Warn().Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed, keeping previous snapshot")
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Str("event", "config.watch_error").Msg("config watcher error")
			}
		}
	}()
	return nil
}
