// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bulk runs large scoring and embedding jobs against external
// providers. A weighted semaphore bounds outstanding provider calls,
// work commits in chunks with a checkpoint write after each chunk, and
// large jobs split into fixed-size shards that checkpoint independently.
package bulk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/BaNburger/paperscraper-sub002/internal/checkpoint"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// RetryBaseDelay is the first backoff interval for failed provider
// calls. Package-level var so tests run without real delays.
var RetryBaseDelay = time.Second

// callWithRetry invokes fn up to attempts times with exponential
// backoff. The context cancels the wait between attempts.
func callWithRetry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	delay := RetryBaseDelay
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return err
}

// Shards splits ids into fixed-size slices. A size of zero or less
// yields a single shard.
func Shards(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 || size >= len(ids) {
		return [][]string{ids}
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// limiter bounds concurrent provider calls across an entire job, not
// just within one chunk.
type limiter struct {
	sem *semaphore.Weighted
}

func newLimiter(n int) *limiter {
	if n < 1 {
		n = 1
	}
	return &limiter{sem: semaphore.NewWeighted(int64(n))}
}

// run executes work(i) for i in [0, n) under the concurrency bound and
// returns the per-unit errors, nil for units that succeeded.
func (l *limiter) run(ctx context.Context, n int, work func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer l.sem.Release(1)
			errs[i] = work(ctx, i)
		}(i)
	}
	wg.Wait()
	return errs
}

// shardScopeKey identifies one shard's checkpoint. The scope is hashed
// so arbitrary scope strings stay key-safe; the shard index keeps
// sibling shards independent.
func shardScopeKey(scope string, shard int) string {
	sum := sha256.Sum256([]byte(scope))
	return hex.EncodeToString(sum[:8]) + "#" + strconv.Itoa(shard)
}

// resumeAfter returns how many leading units of ids a prior run already
// committed. The checkpoint stores the id of the last unit in the last
// fully-committed chunk, not a position: the backlog is recomputed on
// every run and successfully committed work drops out of it, so a
// positional cursor would skip unprocessed units. When the stored id is
// absent from ids the committed work is already excluded and processing
// starts at zero.
func resumeAfter(ctx context.Context, cps checkpoint.Store, purpose, scopeKey string, ids []string) (int, error) {
	cursor, err := cps.GetCheckpoint(ctx, purpose, scopeKey)
	if err != nil {
		return 0, fmt.Errorf("loading %s checkpoint: %w", purpose, err)
	}
	last := cursor["last_id"]
	if last == "" {
		return 0, nil
	}
	for i, id := range ids {
		if id == last {
			return i + 1, nil
		}
	}
	return 0, nil
}

// commitProgress records the id of the last unit in a fully-committed
// chunk. An empty id clears the marker.
func commitProgress(ctx context.Context, cps checkpoint.Store, purpose, scopeKey, lastID string) error {
	return cps.UpsertCheckpoint(ctx, purpose, scopeKey, types.Cursor{"last_id": lastID})
}
