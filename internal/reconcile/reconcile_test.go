package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ferg-cod3s/conexus/internal/filestate"
	"github.com/ferg-cod3s/conexus/internal/jobs"
)

func newTestReconciler(t *testing.T) (*Reconciler, *jobs.Store, *filestate.Store, string) {
	t.Helper()
	jobsStore, err := jobs.NewStore(":memory:")
	if err != nil {
		t.Fatalf("jobs.NewStore: %v", err)
	}
	t.Cleanup(func() { jobsStore.Close() })

	fsStore, err := filestate.NewStore(":memory:")
	if err != nil {
		t.Fatalf("filestate.NewStore: %v", err)
	}
	t.Cleanup(func() { fsStore.Close() })

	root := t.TempDir()
	return New(jobsStore, fsStore, root), jobsStore, fsStore, root
}

func TestReconciler_FindsOrphanClonePath(t *testing.T) {
	r, _, _, root := newTestReconciler(t)
	ctx := context.Background()

	if err := os.Mkdir(filepath.Join(root, "ghost-repo"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	report, err := r.Report(ctx)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !containsKind(report.Findings, OrphanClonePath) {
		t.Errorf("expected an orphan_clone_path finding, got %+v", report.Findings)
	}
}

func TestReconciler_NoFindingsForLiveRepo(t *testing.T) {
	r, jobsStore, _, root := newTestReconciler(t)
	ctx := context.Background()

	clonePath := filepath.Join(root, "repo1")
	if err := os.Mkdir(clonePath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := jobsStore.CreateRepository(ctx, "repo1", "https://example.com/r.git", "r"); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	if err := jobsStore.SetRepoStatus(ctx, "repo1", jobs.RepoReady, clonePath, true); err != nil {
		t.Fatalf("SetRepoStatus: %v", err)
	}

	report, err := r.Report(ctx)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(report.Findings) != 0 {
		t.Errorf("expected no findings for a live, present repo, got %+v", report.Findings)
	}
}

func TestReconciler_FindsMissingClonePath(t *testing.T) {
	r, jobsStore, _, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := jobsStore.CreateRepository(ctx, "repo1", "https://example.com/r.git", "r"); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	if err := jobsStore.SetRepoStatus(ctx, "repo1", jobs.RepoReady, "/nonexistent/path", true); err != nil {
		t.Fatalf("SetRepoStatus: %v", err)
	}

	report, err := r.Report(ctx)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !containsKind(report.Findings, MissingClonePath) {
		t.Errorf("expected a missing_clone_path finding, got %+v", report.Findings)
	}
}

func TestReconciler_FindsOrphanFileState(t *testing.T) {
	r, _, fsStore, _ := newTestReconciler(t)
	ctx := context.Background()

	if err := fsStore.Upsert(ctx, filestate.FileState{
		RepoID: "deleted-repo", Path: "main.go", LastProcessedCommit: "abc", ContentHash: "h",
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	report, err := r.Report(ctx)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !containsKind(report.Findings, OrphanFileState) {
		t.Errorf("expected an orphan_file_state finding, got %+v", report.Findings)
	}
	if report.FileStatesSeen != 1 {
		t.Errorf("FileStatesSeen = %d, want 1", report.FileStatesSeen)
	}
}

func TestReconciler_DeleteOrphan_RefusesIfRepositoryStillExists(t *testing.T) {
	r, jobsStore, _, root := newTestReconciler(t)
	ctx := context.Background()

	if _, err := jobsStore.CreateRepository(ctx, "repo1", "https://example.com/r.git", "r"); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	path := filepath.Join(root, "repo1")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	err := r.DeleteOrphan(ctx, Finding{Kind: OrphanClonePath, RepoID: "repo1", Path: path})
	if err == nil {
		t.Fatal("expected DeleteOrphan to refuse deleting a clone path whose repository row still exists")
	}
}

func TestReconciler_DeleteOrphan_RemovesClonePath(t *testing.T) {
	r, _, _, root := newTestReconciler(t)
	ctx := context.Background()

	path := filepath.Join(root, "ghost-repo")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := r.DeleteOrphan(ctx, Finding{Kind: OrphanClonePath, RepoID: "ghost-repo", Path: path}); err != nil {
		t.Fatalf("DeleteOrphan: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected clone path to be removed")
	}
}

func containsKind(findings []Finding, kind OrphanKind) bool {
	for _, f := range findings {
		if f.Kind == kind {
			return true
		}
	}
	return false
}
