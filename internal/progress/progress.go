// Package progress implements the publish/subscribe channel carrying
// job-state events keyed by job id. Redis provides the cross-process
// transport; a local, channel-backed fan-out sits in front of it so a
// single process's goroutines can observe their own publishes without a
// network round trip.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status mirrors the task statuses a progress event may report.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCloning    Status = "cloning"
	StatusParsing    Status = "parsing"
	StatusEmbedding  Status = "embedding"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusInterrupted Status = "interrupted"
)

// Terminal reports whether s is one of the statuses that ends a job.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusInterrupted:
		return true
	default:
		return false
	}
}

// Event is the payload published on topic task_progress:<taskId>.
type Event struct {
	Status      Status    `json:"status"`
	ProgressPct float64   `json:"progress_pct"`
	Stage       string    `json:"stage"`
	Timestamp   time.Time `json:"timestamp"`

	// Optional terminal-event fields.
	WikiID             string `json:"wiki_id,omitempty"`
	WikiRegenSuggestion string `json:"wiki_regen_suggestion,omitempty"`
	SkippedPages       int    `json:"skipped_pages,omitempty"`
	SyncStats          *SyncStats `json:"sync_stats,omitempty"`
}

// SyncStats summarizes an incremental_sync task's change set.
type SyncStats struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
}

func topic(taskID string) string {
	return fmt.Sprintf("task_progress:%s", taskID)
}

// Bus publishes and subscribes to per-task progress events over Redis.
type Bus struct {
	client *redis.Client
}

// NewBus builds a Bus backed by an existing Redis client.
func NewBus(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Publish sends ev to every subscriber of taskID's topic.
func (b *Bus) Publish(ctx context.Context, taskID string, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if err := b.client.Publish(ctx, topic(taskID), payload).Err(); err != nil {
		return fmt.Errorf("publish progress event for %s: %w", taskID, err)
	}
	return nil
}

// Subscribe returns a channel of events for taskID. The returned func must
// be called to close the underlying Redis subscription.
func (b *Bus) Subscribe(ctx context.Context, taskID string) (<-chan Event, func() error) {
	sub := b.client.Subscribe(ctx, topic(taskID))
	out := make(chan Event)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for msg := range ch {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, sub.Close
}

// LocalFanout mirrors published events to any number of in-process
// listeners registered for a task, without a Redis round trip. It is used
// by a single worker process to let a job's own goroutines observe its
// progress (e.g. for SSE streaming served from the same process) while the
// Redis publish still carries the event to other processes.
type LocalFanout struct {
	mu        sync.Mutex
	listeners map[string][]chan Event
}

// NewLocalFanout builds an empty fan-out registry.
func NewLocalFanout() *LocalFanout {
	return &LocalFanout{listeners: make(map[string][]chan Event)}
}

// Listen registers a buffered channel for taskID and returns it along with a
// function to unregister and close it.
func (f *LocalFanout) Listen(taskID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	f.mu.Lock()
	f.listeners[taskID] = append(f.listeners[taskID], ch)
	f.mu.Unlock()

	stop := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		ls := f.listeners[taskID]
		for i, c := range ls {
			if c == ch {
				f.listeners[taskID] = append(ls[:i], ls[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, stop
}

// Broadcast delivers ev to every listener currently registered for taskID.
// A listener whose buffer is full misses the event rather than blocking the
// publisher; it stays registered.
func (f *LocalFanout) Broadcast(taskID string, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.listeners[taskID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
