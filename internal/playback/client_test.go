// SPDX-License-Identifier: MIT

package playback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ManuGH/hlsgate/internal/catalog"
	"github.com/ManuGH/hlsgate/internal/readiness"
	"github.com/ManuGH/hlsgate/internal/transcode/store"
)

func TestHTTPBackendCheckReadiness(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/media/1/hls/status":
			_ = json.NewEncoder(w).Encode(readiness.Result{
				Status:    readiness.StatusReady,
				OutputRef: "1-x/hls/playlist.m3u8",
			})
		case "/api/media/2/hls/status":
			w.WriteHeader(http.StatusNotFound)
		case "/api/media/3/hls/status":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "secret-token")
	ctx := context.Background()

	res, err := b.CheckReadiness(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != readiness.StatusReady || res.OutputRef == "" {
		t.Errorf("unexpected result: %+v", res)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("missing bearer token, got %q", gotAuth)
	}

	if _, err := b.CheckReadiness(ctx, 2); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("404 not mapped to ErrNotFound: %v", err)
	}
	if _, err := b.CheckReadiness(ctx, 3); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("503 not mapped to ErrUnavailable: %v", err)
	}
}

func TestHTTPBackendTrigger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch r.URL.Path {
		case "/api/media/1/hls":
			w.WriteHeader(http.StatusAccepted)
		case "/api/media/2/hls":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "")
	ctx := context.Background()

	if err := b.Trigger(ctx, 1); err != nil {
		t.Errorf("202 should be success: %v", err)
	}
	if err := b.Trigger(ctx, 2); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("404 not mapped: %v", err)
	}
	if err := b.Trigger(ctx, 3); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("503 not mapped: %v", err)
	}
}
