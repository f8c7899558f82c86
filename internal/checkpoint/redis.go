// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// RedisStore keeps checkpoints in Redis with an advisory TTL. Expiry is
// safe: a run that finds no checkpoint restarts from the beginning and
// the ledger deduplicates the replayed pages.
type RedisStore struct {
	client  *redis.Client
	purpose string
	ttl     time.Duration
}

// NewRedis builds a checkpoint store on an existing client. A zero ttl
// disables expiry.
func NewRedis(client *redis.Client, purpose string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, purpose: purpose, ttl: ttl}
}

func (r *RedisStore) GetCheckpoint(ctx context.Context, source, scopeKey string) (types.Cursor, error) {
	raw, err := r.client.Get(ctx, Key(r.purpose, source, scopeKey)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading redis checkpoint %s/%s: %w", source, scopeKey, err)
	}
	var cursor types.Cursor
	if err := json.Unmarshal([]byte(raw), &cursor); err != nil {
		return nil, fmt.Errorf("decoding redis checkpoint %s/%s: %w", source, scopeKey, err)
	}
	return cursor, nil
}

func (r *RedisStore) UpsertCheckpoint(ctx context.Context, source, scopeKey string, cursor types.Cursor) error {
	raw, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("encoding redis checkpoint %s/%s: %w", source, scopeKey, err)
	}
	if err := r.client.Set(ctx, Key(r.purpose, source, scopeKey), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("storing redis checkpoint %s/%s: %w", source, scopeKey, err)
	}
	return nil
}
