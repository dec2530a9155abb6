// SPDX-License-Identifier: MIT

package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsgate/internal/procgroup"
)

// Progress is a snapshot of ffmpeg's -progress output.
type Progress struct {
	Frame     int
	OutTimeUs int64
	TotalSize int64
	Speed     string
}

func (p Progress) hasAdvanced(prev Progress) bool {
	return p.OutTimeUs > prev.OutTimeUs || p.TotalSize > prev.TotalSize || p.Frame > prev.Frame
}

// Exec runs a transcode command under supervision. The progress callback
// fires on every parsed progress flush; the worker uses it to refresh the
// job heartbeat so the watchdog can tell a live run from a dead one.
type Exec interface {
	Run(ctx context.Context, name string, args []string, onProgress func(Progress)) error
}

// WatchConfig tunes the stall supervision of DefaultExecutor.
type WatchConfig struct {
	// StartupGrace suppresses stall checks while ffmpeg probes the input.
	StartupGrace time.Duration
	// StallTimeout kills the process when no progress arrived for this long.
	StallTimeout time.Duration
	// Tick is the supervision interval.
	Tick time.Duration
}

func (c WatchConfig) withDefaults() WatchConfig {
	if c.StartupGrace <= 0 {
		c.StartupGrace = 30 * time.Second
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 5 * time.Minute
	}
	if c.Tick <= 0 {
		c.Tick = 5 * time.Second
	}
	return c
}

// DefaultExecutor runs ffmpeg with progress supervision and stall detection.
type DefaultExecutor struct {
	Logger zerolog.Logger
	Watch  WatchConfig
}

func (e *DefaultExecutor) Run(ctx context.Context, name string, args []string, onProgress func(Progress)) error {
	fullArgs := append([]string{"-nostdin", "-hide_banner", "-loglevel", "error", "-progress", "pipe:1"}, args...)
	cmd := exec.Command(name, fullArgs...)
	// Group leader so a stalled ffmpeg takes its forked helpers with it.
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	progressCh := make(chan Progress, 100)
	go func() {
		defer close(progressCh)
		parseProgress(stdout, progressCh)
	}()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	watchErr := e.watch(ctx, done, progressCh, cmd, onProgress)
	if watchErr != nil {
		stderr := strings.TrimSpace(stderrBuf.String())
		if stderr != "" {
			return fmt.Errorf("%w: %s", watchErr, lastLine(stderr))
		}
	}
	return watchErr
}

const killGrace = 5 * time.Second

func (e *DefaultExecutor) watch(
	ctx context.Context,
	done <-chan error,
	progressCh <-chan Progress,
	cmd *exec.Cmd,
	onProgress func(Progress),
) error {
	cfg := e.Watch.withDefaults()
	start := time.Now()
	lastProgressAt := start
	var last Progress

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return err

		case <-ctx.Done():
			_ = procgroup.Terminate(cmd, done, killGrace)
			return ctx.Err()

		case p, ok := <-progressCh:
			if !ok {
				continue
			}
			if p.hasAdvanced(last) {
				last = p
				lastProgressAt = time.Now()
			}
			if onProgress != nil {
				onProgress(p)
			}

		case <-ticker.C:
			if time.Since(start) < cfg.StartupGrace {
				continue
			}
			if time.Since(lastProgressAt) > cfg.StallTimeout {
				e.Logger.Error().
					Dur("since_progress", time.Since(lastProgressAt)).
					Int64("last_out_time_us", last.OutTimeUs).
					Str("last_speed", last.Speed).
					Msg("ffmpeg stalled, killing process group")
				_ = procgroup.Terminate(cmd, done, killGrace)
				return fmt.Errorf("ffmpeg stalled after %s without progress", cfg.StallTimeout)
			}
		}
	}
}

// parseProgress reads key=value lines from ffmpeg's -progress stream.
// The "progress" key terminates each block and flushes a snapshot.
func parseProgress(r io.Reader, ch chan<- Progress) {
	scanner := bufio.NewScanner(r)
	var current Progress

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)

		switch key {
		case "frame":
			if v, err := strconv.Atoi(val); err == nil {
				current.Frame = v
			}
		case "out_time_us":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.OutTimeUs = v
			}
		case "total_size":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.TotalSize = v
			}
		case "speed":
			current.Speed = val
		case "progress":
			ch <- current
		}
	}
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(strings.TrimRight(s, "\n"), '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
