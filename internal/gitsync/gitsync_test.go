package gitsync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func commitAll(t *testing.T, repo *git.Repository, msg string) *object.Commit {
	t.Helper()
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if err := wt.AddGlob("."); err != nil {
		t.Fatalf("add: %v", err)
	}
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	c, err := repo.CommitObject(hash)
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}
	return c
}

func TestDiffNameStatus_ClassifiesAddedModifiedDeleted(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	writeFile(t, dir, "a.go", "package a\n")
	writeFile(t, dir, "b.go", "package b\n")
	first := commitAll(t, repo, "initial")

	writeFile(t, dir, "a.go", "package a\n// changed\n")
	if err := os.Remove(filepath.Join(dir, "b.go")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	writeFile(t, dir, "c.go", "package c\n")
	second := commitAll(t, repo, "second")

	changes, err := diffNameStatus(t.Context(), first, second)
	if err != nil {
		t.Fatalf("diffNameStatus: %v", err)
	}

	byPath := make(map[string]ChangeKind)
	for _, c := range changes {
		byPath[c.Path] = c.Kind
	}

	if byPath["a.go"] != Modified {
		t.Errorf("a.go = %v, want Modified", byPath["a.go"])
	}
	if byPath["b.go"] != Deleted {
		t.Errorf("b.go = %v, want Deleted", byPath["b.go"])
	}
	if byPath["c.go"] != Added {
		t.Errorf("c.go = %v, want Added", byPath["c.go"])
	}
}

func TestIsAncestor_SameCommitIsAncestorOfItself(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	writeFile(t, dir, "a.go", "package a\n")
	c := commitAll(t, repo, "initial")

	if !isAncestor(c, c) {
		t.Fatal("expected a commit to be its own ancestor")
	}
}

func TestIsAncestor_LinearHistory(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	writeFile(t, dir, "a.go", "package a\n")
	first := commitAll(t, repo, "initial")
	writeFile(t, dir, "a.go", "package a\n// v2\n")
	second := commitAll(t, repo, "second")

	if !isAncestor(first, second) {
		t.Fatal("expected first to be an ancestor of second")
	}
	if isAncestor(second, first) {
		t.Fatal("did not expect second to be an ancestor of first")
	}
}
