// Package runner implements the durable task envelope that executes one
// job's pipeline stages in a background goroutine, retrying transient
// stage failures and bowing out — never retrying — on cancellation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ferg-cod3s/conexus/internal/cancel"
	"github.com/ferg-cod3s/conexus/internal/jobs"
	"github.com/ferg-cod3s/conexus/internal/pipeline"
	"github.com/ferg-cod3s/conexus/internal/progress"
)

// RetryDelays is the backoff schedule between stage retries: 30s after the
// first failure, 60s after the second. A third failure exhausts retries and
// the task is marked failed.
var RetryDelays = []time.Duration{30 * time.Second, 60 * time.Second}

// Runner owns the set of in-flight task goroutines for one worker process.
type Runner struct {
	jobsStore *jobs.Store
	cancelReg *cancel.Registry
	bus       *progress.Bus
	fanout    *progress.LocalFanout
	deps      pipeline.Deps
	runnerID  string

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup

	// OnDone, if set, is called once a submitted task's goroutine reaches a
	// terminal state (completed, failed, or cancelled). The job queue uses
	// this to ack a task only after its pipeline run actually finishes,
	// rather than as soon as Submit returns.
	OnDone func(taskID string)
}

// New builds a Runner. runnerID identifies this process generation, stamped
// onto every task it picks up so a later restart can recognize and
// interrupt orphaned tasks left by a crashed prior generation.
func New(jobsStore *jobs.Store, cancelReg *cancel.Registry, bus *progress.Bus, fanout *progress.LocalFanout, deps pipeline.Deps, runnerID string) *Runner {
	return &Runner{
		jobsStore: jobsStore,
		cancelReg: cancelReg,
		bus:       bus,
		fanout:    fanout,
		deps:      deps,
		runnerID:  runnerID,
		running:   make(map[string]context.CancelFunc),
	}
}

// Boot performs the worker-startup ghost-job sweep: any task left
// non-terminal by a prior process generation is moved to interrupted
// rather than silently resumed, since its in-memory state (open file
// handles, partial clone) is gone.
func (r *Runner) Boot(ctx context.Context) (int, error) {
	return r.jobsStore.MarkInterruptedIfNonTerminal(ctx)
}

// Submit launches task's pipeline run in a background goroutine, applying
// the retry policy around transient stage failures. It returns immediately;
// callers observe completion through the progress bus or by polling
// jobs.Store.Get.
func (r *Runner) Submit(task jobs.Task, repo jobs.Repository) error {
	r.mu.Lock()
	if _, exists := r.running[task.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("task %s is already running in this process", task.ID)
	}
	runCtx, cancelRun := context.WithCancel(context.Background())
	r.running[task.ID] = cancelRun
	r.mu.Unlock()

	if err := r.jobsStore.SetExternalRunnerID(runCtx, task.ID, r.runnerID); err != nil {
		r.mu.Lock()
		delete(r.running, task.ID)
		r.mu.Unlock()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.running, task.ID)
			r.mu.Unlock()
			if r.OnDone != nil {
				r.OnDone(task.ID)
			}
		}()

		cctx, stopPoll := cancel.CheckContext(runCtx, r.cancelReg, task.ID, 2*time.Second)
		defer stopPoll()

		r.runWithRetry(cctx, task, repo)
	}()

	return nil
}

func (r *Runner) runWithRetry(ctx context.Context, task jobs.Task, repo jobs.Repository) {
	var lastErr error
	for attempt := 0; attempt <= len(RetryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(RetryDelays[attempt-1]):
			case <-ctx.Done():
				r.finishCancelled(task)
				return
			}
			if err := r.jobsStore.SetStage(ctx, task.ID, jobs.TaskPending, 0, "retrying after stage failure"); err != nil {
				if errors.Is(err, jobs.ErrCancelled) {
					r.finishCancelled(task)
					return
				}
			}
		}

		err := pipeline.Run(ctx, r.deps, task, repo)
		if err == nil {
			return
		}

		var cancelledErr *cancel.ErrCancelled
		if errors.As(err, &cancelledErr) || errors.Is(err, jobs.ErrCancelled) {
			r.finishCancelled(task)
			return
		}

		lastErr = err
	}

	_ = r.jobsStore.Fail(ctx, task.ID, currentFailedStage(ctx, r.jobsStore, task.ID), lastErr.Error())
	publish(ctx, r.bus, r.fanout, task.ID, progress.Event{Status: progress.StatusFailed, ProgressPct: 0})
}

func (r *Runner) finishCancelled(task jobs.Task) {
	ctx := context.Background()
	_ = r.jobsStore.Cancel(ctx, task.ID)
	_ = r.cancelReg.Clear(ctx, task.ID)
	publish(ctx, r.bus, r.fanout, task.ID, progress.Event{Status: progress.StatusCancelled, ProgressPct: 0})
}

func currentFailedStage(ctx context.Context, store *jobs.Store, taskID string) jobs.StageTag {
	t, ok, err := store.Get(ctx, taskID)
	if err != nil || !ok {
		return jobs.StageClone
	}
	switch t.Status {
	case jobs.TaskParsing:
		return jobs.StageParse
	case jobs.TaskEmbedding:
		return jobs.StageEmbed
	case jobs.TaskGenerating:
		return jobs.StageGenerate
	default:
		return jobs.StageClone
	}
}

func publish(ctx context.Context, bus *progress.Bus, fanout *progress.LocalFanout, taskID string, ev progress.Event) {
	if fanout != nil {
		fanout.Broadcast(taskID, ev)
	}
	if bus != nil {
		_ = bus.Publish(ctx, taskID, ev)
	}
}

// Shutdown cancels every in-flight task goroutine and waits up to timeout
// for them to unwind, mirroring the background-indexer's bounded Stop.
func (r *Runner) Shutdown(timeout time.Duration) error {
	r.mu.Lock()
	for _, cancelFn := range r.running {
		cancelFn()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for %d task(s) to stop", len(r.running))
	}
}
