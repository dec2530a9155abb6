// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ManuGH/hlsgate/internal/config"
)

// New builds the JobStore selected by cfg. The badger backend lives under
// <dataDir>/jobs.
func New(ctx context.Context, cfg *config.Config) (JobStore, error) {
	switch cfg.Store.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "badger":
		return OpenBadgerStore(filepath.Join(cfg.DataDir, "jobs"))
	case "redis":
		return OpenRedisStore(ctx, RedisConfig{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
