// Package cancel implements the out-of-process cancellation registry: a
// keyed flag store with TTL, visible to any worker regardless of which
// process is executing a job's stages.
package cancel

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the recommended flag lifetime before it expires unconsumed.
const DefaultTTL = time.Hour

func key(taskID string) string {
	return fmt.Sprintf("cancel:%s", taskID)
}

// Registry is the primary, out-of-process cancellation channel. Every stage
// callback consults it at suspension points; it must keep working even if
// the relational DB connection a job holds is unavailable.
type Registry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRegistry builds a Registry backed by an existing Redis client. ttl <= 0
// falls back to DefaultTTL.
func NewRegistry(client *redis.Client, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{client: client, ttl: ttl}
}

// Set raises the cancel flag for taskID with the registry's TTL.
func (r *Registry) Set(ctx context.Context, taskID string) error {
	if err := r.client.Set(ctx, key(taskID), "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("set cancel flag for %s: %w", taskID, err)
	}
	return nil
}

// Get reports whether the cancel flag for taskID is currently set. A missing
// key (not yet set, or expired) is reported as false with no error.
func (r *Registry) Get(ctx context.Context, taskID string) (bool, error) {
	_, err := r.client.Get(ctx, key(taskID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get cancel flag for %s: %w", taskID, err)
	}
	return true, nil
}

// Clear removes the cancel flag for taskID, if present.
func (r *Registry) Clear(ctx context.Context, taskID string) error {
	if err := r.client.Del(ctx, key(taskID)).Err(); err != nil {
		return fmt.Errorf("clear cancel flag for %s: %w", taskID, err)
	}
	return nil
}

// ErrCancelled is the sentinel stage code raises when it observes the flag
// set at a suspension point. The runner distinguishes it from a general
// exception and never retries it.
type ErrCancelled struct {
	TaskID string
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("task %s cancelled", e.TaskID)
}

// CheckContext derives a context that is cancelled as soon as the registry
// observes the flag set for taskID, polling at the given interval. The
// returned CancelFunc cancels the derived context, which also stops the
// poller goroutine; it must be called to release it. This is the in-process secondary signal
// layered under the Redis-backed primary one, per the pipeline's cancel
// semantics.
func CheckContext(ctx context.Context, r *Registry, taskID string, pollInterval time.Duration) (context.Context, context.CancelFunc) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	cctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-cctx.Done():
				return
			case <-ticker.C:
				set, err := r.Get(cctx, taskID)
				if err == nil && set {
					cancel()
					return
				}
			}
		}
	}()
	return cctx, cancel
}
