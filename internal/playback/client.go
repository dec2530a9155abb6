// SPDX-License-Identifier: MIT

package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/hlsgate/internal/catalog"
	"github.com/ManuGH/hlsgate/internal/readiness"
	"github.com/ManuGH/hlsgate/internal/transcode/store"
)

// HTTPBackend speaks the daemon's readiness API.
type HTTPBackend struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPBackend(baseURL, token string) *HTTPBackend {
	return &HTTPBackend{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
			// Propagates trace context so daemon-side spans link up with
			// the session's polling requests.
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (b *HTTPBackend) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if b.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.Token)
	}
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

// CheckReadiness queries GET /api/media/{id}/hls/status.
func (b *HTTPBackend) CheckReadiness(ctx context.Context, mediaID int64) (*readiness.Result, error) {
	resp, err := b.do(ctx, http.MethodGet, fmt.Sprintf("/api/media/%d/hls/status", mediaID))
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		var out readiness.Result
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode status response: %w", err)
		}
		return &out, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("media %d: %w", mediaID, catalog.ErrNotFound)
	case http.StatusServiceUnavailable:
		return nil, fmt.Errorf("status check: %w", store.ErrUnavailable)
	default:
		return nil, fmt.Errorf("status check: unexpected status %d", resp.StatusCode)
	}
}

// Trigger posts POST /api/media/{id}/hls. 202 means queued, running or
// already ready; all of them leave the session in its polling path.
func (b *HTTPBackend) Trigger(ctx context.Context, mediaID int64) error {
	resp, err := b.do(ctx, http.MethodPost, fmt.Sprintf("/api/media/%d/hls", mediaID))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("media %d: %w", mediaID, catalog.ErrNotFound)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("trigger: %w", store.ErrUnavailable)
	default:
		return fmt.Errorf("trigger: unexpected status %d", resp.StatusCode)
	}
}

var _ Backend = (*HTTPBackend)(nil)
