// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/BaNburger/paperscraper-sub002/internal/checkpoint"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// openCheckpoints selects the checkpoint backend. The sqlite catalog
// satisfies the interface itself; redis wraps a fresh client.
func openCheckpoints(cfg types.CheckpointConfig, st *store.Store, purpose string) (checkpoint.Store, func(), error) {
	switch cfg.Backend {
	case types.CheckpointSQLite:
		return st, func() {}, nil
	case types.CheckpointRedis:
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("checkpoint backend redis requires redis_addr")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return checkpoint.NewRedis(client, purpose, cfg.TTL), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
