package pipeline

import (
	"context"

	"github.com/ferg-cod3s/conexus/internal/jobs"
	"github.com/ferg-cod3s/conexus/internal/progress"
)

// GenerateProgressFloor and GenerateProgressCeiling are the Generate stage's
// progress window, leaving the tail of the range for wiki assembly.
const (
	GenerateProgressFloor   = 75.0
	GenerateProgressCeiling = 95.0
)

// WikiGenerator is the capability the Generate stage delegates to. Its
// concrete implementation builds the hierarchical wiki from a repo's
// chunks; this stage only owns the task bookkeeping around that call.
type WikiGenerator interface {
	Generate(ctx context.Context, repoID, commitHash string, incremental bool, changedPaths []string) (wikiID string, err error)
}

// RunGenerate advances task through the Generate stage, delegating the
// actual wiki build to gen, and reports the 75-95% progress window around
// it.
func RunGenerate(ctx context.Context, store *jobs.Store, bus *progress.Bus, fanout *progress.LocalFanout,
	gen WikiGenerator, task jobs.Task, repoID, commitHash string, incremental bool, changedPaths []string) (string, error) {

	if err := store.SetStage(ctx, task.ID, jobs.TaskGenerating, GenerateProgressFloor, "generating wiki"); err != nil {
		return "", err
	}
	publish(ctx, bus, fanout, task.ID, progress.Event{Status: progress.StatusGenerating, ProgressPct: GenerateProgressFloor, Stage: "generate"})

	wikiID, err := gen.Generate(ctx, repoID, commitHash, incremental, changedPaths)
	if err != nil {
		return "", err
	}

	publish(ctx, bus, fanout, task.ID, progress.Event{Status: progress.StatusGenerating, ProgressPct: GenerateProgressCeiling, Stage: "generate", WikiID: wikiID})
	return wikiID, nil
}
