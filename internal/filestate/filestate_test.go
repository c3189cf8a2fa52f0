package filestate

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fs := FileState{
		RepoID:              "repo-1",
		Path:                "main.go",
		LastProcessedCommit: "abc123",
		ContentHash:         "hash1",
		ChunkIDs:            []string{"chunk-1", "chunk-2"},
	}
	if err := s.Upsert(ctx, fs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, ok, err := s.Get(ctx, "repo-1", "main.go")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected row to exist")
	}
	if got.ContentHash != "hash1" || len(got.ChunkIDs) != 2 || got.ChunkCount != 2 {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestGet_Missing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Get(ctx, "repo-1", "missing.go")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected no row")
	}
}

func TestUpsert_IdempotentReplace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fs := FileState{RepoID: "repo-1", Path: "a.go", ContentHash: "h1", ChunkIDs: []string{"c1"}}
	if err := s.Upsert(ctx, fs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	fs.ContentHash = "h2"
	fs.ChunkIDs = []string{"c2", "c3"}
	if err := s.Upsert(ctx, fs); err != nil {
		t.Fatalf("Upsert (replace): %v", err)
	}

	got, ok, err := s.Get(ctx, "repo-1", "a.go")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.ContentHash != "h2" || len(got.ChunkIDs) != 2 {
		t.Fatalf("expected replaced row, got %+v", got)
	}
}

func TestDelete_ReturnsChunkIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fs := FileState{RepoID: "repo-1", Path: "a.go", ContentHash: "h1", ChunkIDs: []string{"c1", "c2"}}
	if err := s.Upsert(ctx, fs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ids, err := s.Delete(ctx, "repo-1", "a.go")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 chunk ids, got %v", ids)
	}

	_, ok, err := s.Get(ctx, "repo-1", "a.go")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected row to be gone after delete")
	}
}

func TestDelete_MissingRowIsNotError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ids, err := s.Delete(ctx, "repo-1", "nope.go")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ids != nil {
		t.Fatalf("expected nil chunk ids, got %v", ids)
	}
}

func TestListByRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, p := range []string{"a.go", "b.go"} {
		if err := s.Upsert(ctx, FileState{RepoID: "repo-1", Path: p, ContentHash: "h", ChunkIDs: []string{"c"}}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if err := s.Upsert(ctx, FileState{RepoID: "repo-2", Path: "z.go", ContentHash: "h", ChunkIDs: nil}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.ListByRepo(ctx, "repo-1")
	if err != nil {
		t.Fatalf("ListByRepo: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
}

func TestDeleteByRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Upsert(ctx, FileState{RepoID: "repo-1", Path: "a.go", ContentHash: "h", ChunkIDs: []string{"c1"}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, FileState{RepoID: "repo-1", Path: "b.go", ContentHash: "h", ChunkIDs: []string{"c2", "c3"}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ids, err := s.DeleteByRepo(ctx, "repo-1")
	if err != nil {
		t.Fatalf("DeleteByRepo: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 chunk ids, got %v", ids)
	}

	remaining, err := s.ListByRepo(ctx, "repo-1")
	if err != nil {
		t.Fatalf("ListByRepo: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no rows remaining, got %d", len(remaining))
	}
}
