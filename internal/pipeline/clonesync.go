package pipeline

import (
	"context"
	"fmt"

	"github.com/ferg-cod3s/conexus/internal/cancel"
	"github.com/ferg-cod3s/conexus/internal/filestate"
	"github.com/ferg-cod3s/conexus/internal/gitsync"
	"github.com/ferg-cod3s/conexus/internal/jobs"
	"github.com/ferg-cod3s/conexus/internal/progress"
	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

// CloneSyncProgressFloor and CloneSyncProgressCeiling bound the progress
// percentage this stage reports, leaving room for Parse/Embed/Generate.
const (
	CloneSyncProgressFloor    = 0.0
	CloneSyncProgressCeiling  = 20.0
)

// CloneSyncResult is what the stage hands to Parse: the resolved commit and,
// for an incremental sync, the change set driving which paths Parse must
// revisit.
type CloneSyncResult struct {
	CommitHash string
	Changes    []gitsync.Change // nil for a full clone
}

// RunCloneSync executes the Clone/Sync stage for one task: a full shallow
// clone for full_process, or a fetch+diff+fast-forward for
// incremental_sync. It reports progress through bus/fanout and checks reg
// for an out-of-process cancel flag before and after the blocking Git call,
// since that call itself cannot be interrupted mid-flight.
func RunCloneSync(ctx context.Context, store *jobs.Store, reg *cancel.Registry, bus *progress.Bus, fanout *progress.LocalFanout,
	task jobs.Task, repo jobs.Repository, token string) (CloneSyncResult, error) {

	if cancelled, err := reg.Get(ctx, task.ID); err == nil && cancelled {
		return CloneSyncResult{}, &cancel.ErrCancelled{TaskID: task.ID}
	}

	if err := store.SetStage(ctx, task.ID, jobs.TaskCloning, CloneSyncProgressFloor, "cloning repository"); err != nil {
		return CloneSyncResult{}, err
	}
	publish(ctx, bus, fanout, task.ID, progress.Event{Status: progress.StatusCloning, ProgressPct: CloneSyncProgressFloor, Stage: "clone_sync"})

	var result CloneSyncResult

	switch task.Type {
	case jobs.TaskFullProcess, jobs.TaskParseOnly:
		commitHash, err := gitsync.Clone(ctx, repo.URL, repo.DefaultBranch, token, repo.ClonePath)
		if err != nil {
			return CloneSyncResult{}, fmt.Errorf("clone %s: %w", repo.ID, err)
		}
		result.CommitHash = commitHash

	case jobs.TaskIncrementalSync:
		changes, commitHash, err := gitsync.Sync(ctx, repo.ClonePath, repo.DefaultBranch, token)
		if err != nil {
			return CloneSyncResult{}, fmt.Errorf("sync %s: %w", repo.ID, err)
		}
		result.CommitHash = commitHash
		result.Changes = changes

	default:
		return CloneSyncResult{}, fmt.Errorf("clone/sync stage does not apply to task type %s", task.Type)
	}

	if cancelled, err := reg.Get(ctx, task.ID); err == nil && cancelled {
		return CloneSyncResult{}, &cancel.ErrCancelled{TaskID: task.ID}
	}

	if err := store.SetRepoStatus(ctx, repo.ID, jobs.RepoReady, repo.ClonePath, true); err != nil {
		return CloneSyncResult{}, err
	}
	publish(ctx, bus, fanout, task.ID, progress.Event{Status: progress.StatusCloning, ProgressPct: CloneSyncProgressCeiling, Stage: "clone_sync"})

	return result, nil
}

// ApplyDeletions retires every D or M path in changes: it deletes the
// FileState row (dropping the ledger entry so a later re-add starts clean)
// and removes every chunk id that row had recorded from the vector store.
// Added paths need no action here — Parse/Embed populate their FileState
// row and vector chunks for the first time. Returns the set of D and M
// paths touched, for the caller to union into the wiki's changed-paths list
// (a Deleted path never reappears in Parse's output, since the file is gone
// from disk, so this is the only place it surfaces).
func ApplyDeletions(ctx context.Context, fsStore *filestate.Store, vectors vectorstore.VectorStore, repoID string, changes []gitsync.Change) ([]string, error) {
	touched := make([]string, 0, len(changes))
	for _, ch := range changes {
		if ch.Kind != gitsync.Deleted && ch.Kind != gitsync.Modified {
			continue
		}
		chunkIDs, err := fsStore.Delete(ctx, repoID, ch.Path)
		if err != nil {
			return touched, fmt.Errorf("delete file state %s: %w", ch.Path, err)
		}
		for _, id := range chunkIDs {
			if err := vectors.Delete(ctx, id); err != nil {
				return touched, fmt.Errorf("delete chunk %s for %s: %w", id, ch.Path, err)
			}
		}
		touched = append(touched, ch.Path)
	}
	return touched, nil
}

// publish fans a progress event out to both the Redis bus and the
// in-process listeners, swallowing a Redis publish error (progress is
// best-effort) rather than failing the pipeline over a transport hiccup.
func publish(ctx context.Context, bus *progress.Bus, fanout *progress.LocalFanout, taskID string, ev progress.Event) {
	if fanout != nil {
		fanout.Broadcast(taskID, ev)
	}
	if bus != nil {
		_ = bus.Publish(ctx, taskID, ev)
	}
}
