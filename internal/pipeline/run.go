package pipeline

import (
	"context"
	"fmt"

	"github.com/ferg-cod3s/conexus/internal/cancel"
	"github.com/ferg-cod3s/conexus/internal/chunker"
	"github.com/ferg-cod3s/conexus/internal/embedding"
	"github.com/ferg-cod3s/conexus/internal/filestate"
	"github.com/ferg-cod3s/conexus/internal/jobs"
	"github.com/ferg-cod3s/conexus/internal/progress"
	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

// ParseProgressFloor and ParseProgressCeiling bound the Parse stage's
// reported progress, between Clone/Sync's 20% and Embed's start at 50%.
const (
	ParseProgressFloor   = 20.0
	ParseProgressCeiling = 50.0
)

// EmbedProgressFloor and EmbedProgressCeiling bound the Embed stage's
// reported progress, between Parse's 50% and Generate's start at 75%.
const (
	EmbedProgressFloor   = 50.0
	EmbedProgressCeiling = 75.0
)

// Deps bundles every capability a full pipeline run needs, so Run's
// signature stays stable as stages evolve.
type Deps struct {
	Jobs      *jobs.Store
	FileState *filestate.Store
	Cancel    *cancel.Registry
	Bus       *progress.Bus
	Fanout    *progress.LocalFanout
	Chunker   *chunker.Chunker
	Embedder  embedding.Embedder
	Vectors   vectorstore.VectorStore
	Semaphore Semaphore
	Wiki      WikiGenerator
	GitToken  string
}

// Run executes task end to end: Clone/Sync, Parse, Embed, and (for
// full_process and incremental_sync) Generate. parse_only tasks stop after
// Parse with no Embed or Generate. Each stage checks the cancel registry at
// its suspension points and, on observing the flag, returns a
// *cancel.ErrCancelled that the caller (the job runner) must translate into
// a Cancel on the task rather than a Fail.
func Run(ctx context.Context, d Deps, task jobs.Task, repo jobs.Repository) error {
	cs, err := RunCloneSync(ctx, d.Jobs, d.Cancel, d.Bus, d.Fanout, task, repo, d.GitToken)
	if err != nil {
		return err
	}

	deletedOrModified, err := ApplyDeletions(ctx, d.FileState, d.Vectors, repo.ID, cs.Changes)
	if err != nil {
		return fmt.Errorf("apply deletions %s: %w", repo.ID, err)
	}

	if err := d.Jobs.SetStage(ctx, task.ID, jobs.TaskParsing, ParseProgressFloor, "parsing files"); err != nil {
		return err
	}
	publish(ctx, d.Bus, d.Fanout, task.ID, progress.Event{Status: progress.StatusParsing, ProgressPct: ParseProgressFloor, Stage: "parse"})

	fullRebuild := task.Type == jobs.TaskFullProcess
	parseResult, err := Parse(ctx, d.Chunker, d.FileState, repo.ID, repo.ClonePath, fullRebuild, nil)
	if err != nil {
		return fmt.Errorf("parse %s: %w", repo.ID, err)
	}
	if fullRebuild && len(parseResult.Chunks) == 0 {
		return fmt.Errorf("parse %s: full rebuild produced zero chunks", repo.ID)
	}

	if cancelled, cerr := d.Cancel.Get(ctx, task.ID); cerr == nil && cancelled {
		return &cancel.ErrCancelled{TaskID: task.ID}
	}
	publish(ctx, d.Bus, d.Fanout, task.ID, progress.Event{Status: progress.StatusParsing, ProgressPct: ParseProgressCeiling, Stage: "parse"})

	if task.Type == jobs.TaskParseOnly {
		return d.Jobs.Complete(ctx, task.ID)
	}

	if err := d.Jobs.SetStage(ctx, task.ID, jobs.TaskEmbedding, EmbedProgressFloor, "embedding chunks"); err != nil {
		return err
	}
	publish(ctx, d.Bus, d.Fanout, task.ID, progress.Event{Status: progress.StatusEmbedding, ProgressPct: EmbedProgressFloor, Stage: "embed"})

	if err := Embed(ctx, d.Embedder, d.Vectors, d.FileState, d.Semaphore, repo.ID, cs.CommitHash, parseResult.Chunks, parseResult.PathHashes); err != nil {
		return fmt.Errorf("embed %s: %w", repo.ID, err)
	}

	if cancelled, cerr := d.Cancel.Get(ctx, task.ID); cerr == nil && cancelled {
		return &cancel.ErrCancelled{TaskID: task.ID}
	}
	publish(ctx, d.Bus, d.Fanout, task.ID, progress.Event{Status: progress.StatusEmbedding, ProgressPct: EmbedProgressCeiling, Stage: "embed"})

	changedSet := make(map[string]struct{}, len(parseResult.PathHashes)+len(deletedOrModified))
	for p := range parseResult.PathHashes {
		changedSet[p] = struct{}{}
	}
	for _, p := range deletedOrModified {
		changedSet[p] = struct{}{}
	}
	changedPaths := make([]string, 0, len(changedSet))
	for p := range changedSet {
		changedPaths = append(changedPaths, p)
	}
	incremental := task.Type == jobs.TaskIncrementalSync
	wikiID, err := RunGenerate(ctx, d.Jobs, d.Bus, d.Fanout, d.Wiki, task, repo.ID, cs.CommitHash, incremental, changedPaths)
	if err != nil {
		return fmt.Errorf("generate %s: %w", repo.ID, err)
	}

	if err := d.Jobs.Complete(ctx, task.ID); err != nil {
		return err
	}
	publish(ctx, d.Bus, d.Fanout, task.ID, progress.Event{Status: progress.StatusCompleted, ProgressPct: 100, Stage: "generate", WikiID: wikiID})
	return nil
}
