// Package queue implements the cross-process job queue: a Redis list that
// cmd/repoforge-api pushes task ids onto and cmd/repoforge-worker
// block-pops from, with an in-flight processing list giving late-
// acknowledgement semantics so a worker that dies mid-task doesn't lose it
// silently.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Dequeue when blockTimeout elapses with nothing to
// pop; callers should treat it as "poll again", not a failure.
var ErrEmpty = errors.New("queue: empty")

// Queue wraps a Redis client with the two list keys BRPOPLPUSH moves
// between: listKey holds pending task ids, processingKey holds ids a
// worker has popped but not yet acknowledged.
type Queue struct {
	client        *redis.Client
	listKey       string
	processingKey string
	blockTimeout  time.Duration
}

// New builds a Queue backed by an existing Redis client. blockTimeout <= 0
// falls back to 5 seconds.
func New(client *redis.Client, listKey, processingKey string, blockTimeout time.Duration) *Queue {
	if blockTimeout <= 0 {
		blockTimeout = 5 * time.Second
	}
	return &Queue{client: client, listKey: listKey, processingKey: processingKey, blockTimeout: blockTimeout}
}

// Enqueue pushes taskID onto the pending list. Called by the API process
// on job submission.
func (q *Queue) Enqueue(ctx context.Context, taskID string) error {
	if err := q.client.LPush(ctx, q.listKey, taskID).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskID, err)
	}
	return nil
}

// Dequeue blocks up to the queue's configured timeout for a task id,
// atomically moving it from the pending list to the processing list so a
// crash between Dequeue and Ack doesn't lose the task. Returns ErrEmpty if
// the timeout elapses with nothing available.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	taskID, err := q.client.BRPopLPush(ctx, q.listKey, q.processingKey, q.blockTimeout).Result()
	if err == redis.Nil {
		return "", ErrEmpty
	}
	if err != nil {
		return "", fmt.Errorf("dequeue: %w", err)
	}
	return taskID, nil
}

// Ack removes taskID from the processing list once its pipeline run has
// finished, successfully or not. A task the worker never acks stays
// visible in the processing list for Recover to reclaim after a crash.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	if err := q.client.LRem(ctx, q.processingKey, 1, taskID).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", taskID, err)
	}
	return nil
}

// Recover moves every task id still sitting in the processing list back
// onto the pending list, for a worker to call once at boot: anything left
// there belongs to a prior process generation that died before acking.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		taskID, err := q.client.RPopLPush(ctx, q.processingKey, q.listKey).Result()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover: %w", err)
		}
		moved++
	}
}
