// SPDX-License-Identifier: MIT

// Command playprobe drives a playback session against a running daemon:
// it checks readiness, triggers the transcode when needed and polls until
// the stream is ready or the session gives up. Exit code 0 means playable.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	hlog "github.com/ManuGH/hlsgate/internal/log"
	"github.com/ManuGH/hlsgate/internal/playback"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "daemon base URL")
	token := flag.String("token", os.Getenv("HLSGATE_API_TOKEN"), "API token")
	mediaID := flag.Int64("media", 0, "media id to probe")
	pollInterval := flag.Duration("poll-interval", 5*time.Second, "readiness poll interval")
	pollTimeout := flag.Duration("poll-timeout", 10*time.Minute, "give up after this long")
	flag.Parse()

	if *mediaID <= 0 {
		fmt.Fprintln(os.Stderr, "playprobe: --media is required")
		os.Exit(2)
	}

	hlog.Configure(hlog.Config{Level: "info", Service: "playprobe"})
	logger := hlog.WithComponent("playprobe")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := playback.NewHTTPBackend(*baseURL, *token)
	session := playback.NewSession(backend, *mediaID, playback.Options{
		PollInterval: *pollInterval,
		PollTimeout:  *pollTimeout,
		Logger:       logger,
	})
	session.Start(ctx)
	defer session.Close()

	<-session.Done()
	res := session.Result()

	switch session.State() {
	case playback.StateReady:
		fmt.Printf("ready: %s/api/media/%d/hls/playlist.m3u8\n", *baseURL, *mediaID)
	case playback.StateGaveUp:
		if res.FallbackURL != "" {
			fmt.Printf("gave up (%s): fallback %s\n", res.Reason, res.FallbackURL)
		} else {
			fmt.Printf("gave up (%s)\n", res.Reason)
		}
		os.Exit(1)
	default:
		fmt.Printf("session ended in state %s\n", session.State())
		os.Exit(1)
	}
}
