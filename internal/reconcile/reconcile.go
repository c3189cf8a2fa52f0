// Package reconcile finds orphaned state left behind when a clone
// directory or a FileState ledger outlives the Repository row it belongs
// to — or the reverse, a ready Repository row whose on-disk clone has
// vanished underneath it. Vector-store collections are not scanned.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ferg-cod3s/conexus/internal/filestate"
	"github.com/ferg-cod3s/conexus/internal/jobs"
)

// OrphanKind classifies one finding in a Report.
type OrphanKind string

const (
	// OrphanClonePath is a directory under the clones root with no
	// matching Repository row.
	OrphanClonePath OrphanKind = "orphan_clone_path"
	// OrphanFileState is a FileState ledger row whose repo id no longer
	// has a Repository row.
	OrphanFileState OrphanKind = "orphan_file_state"
	// MissingClonePath is a ready Repository row whose clone_path does
	// not exist on disk.
	MissingClonePath OrphanKind = "missing_clone_path"
)

// Finding is one piece of orphaned or inconsistent state.
type Finding struct {
	Kind   OrphanKind
	RepoID string
	Path   string
}

// Report summarizes one reconciliation pass.
type Report struct {
	Findings       []Finding
	ReposScanned   int
	ClonePathsSeen int
	FileStatesSeen int
}

// Reconciler compares the clones root and the FileState ledger against the
// live Repository set.
type Reconciler struct {
	jobsStore  *jobs.Store
	fileState  *filestate.Store
	clonesRoot string
}

// New builds a Reconciler.
func New(jobsStore *jobs.Store, fileState *filestate.Store, clonesRoot string) *Reconciler {
	return &Reconciler{jobsStore: jobsStore, fileState: fileState, clonesRoot: clonesRoot}
}

// Report scans for orphaned and inconsistent state without changing
// anything. Callers decide whether and how to act on each Finding — this
// reconciler never deletes on its own initiative.
func (r *Reconciler) Report(ctx context.Context) (Report, error) {
	repos, err := r.jobsStore.ListRepositories(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list repositories: %w", err)
	}
	report := Report{ReposScanned: len(repos)}

	liveRepos := make(map[string]jobs.Repository, len(repos))
	for _, repo := range repos {
		liveRepos[repo.ID] = repo

		if repo.Status == jobs.RepoReady && repo.ClonePath != "" {
			if _, err := os.Stat(repo.ClonePath); os.IsNotExist(err) {
				report.Findings = append(report.Findings, Finding{
					Kind: MissingClonePath, RepoID: repo.ID, Path: repo.ClonePath,
				})
			}
		}
	}

	if r.clonesRoot != "" {
		entries, err := os.ReadDir(r.clonesRoot)
		if err != nil && !os.IsNotExist(err) {
			return report, fmt.Errorf("read clones root %s: %w", r.clonesRoot, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			report.ClonePathsSeen++
			if _, ok := liveRepos[entry.Name()]; !ok {
				report.Findings = append(report.Findings, Finding{
					Kind: OrphanClonePath, RepoID: entry.Name(), Path: filepath.Join(r.clonesRoot, entry.Name()),
				})
			}
		}
	}

	ledgerRepoIDs, err := r.fileState.DistinctRepoIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("list ledger repo ids: %w", err)
	}
	for _, id := range ledgerRepoIDs {
		states, err := r.fileState.ListByRepo(ctx, id)
		if err != nil {
			return report, fmt.Errorf("list file states for %s: %w", id, err)
		}
		report.FileStatesSeen += len(states)

		if _, ok := liveRepos[id]; !ok {
			report.Findings = append(report.Findings, Finding{Kind: OrphanFileState, RepoID: id})
		}
	}

	return report, nil
}

// DeleteOrphan removes one Finding's on-disk or ledger state. For
// OrphanClonePath it refuses to delete if a Repository row with that id
// exists by the time of deletion, since Report and DeleteOrphan run as two
// separate passes and the row may have been recreated in between.
func (r *Reconciler) DeleteOrphan(ctx context.Context, f Finding) error {
	switch f.Kind {
	case OrphanClonePath:
		if _, ok, err := r.jobsStore.GetRepository(ctx, f.RepoID); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("refusing to delete clone path for %s: repository row still exists", f.RepoID)
		}
		return os.RemoveAll(f.Path)
	case OrphanFileState:
		_, err := r.fileState.DeleteByRepo(ctx, f.RepoID)
		return err
	default:
		return fmt.Errorf("unsupported finding kind for deletion: %s", f.Kind)
	}
}
