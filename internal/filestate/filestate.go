// Package filestate implements the per-repo, per-path processing ledger
// that enforces exactly-once file-level idempotency across retries. A row
// is only ever written after the embed stage's vector-store upsert
// succeeds, never on parse alone — see Store.Upsert.
package filestate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// FileState is the ledger row for one (repoID, path) pair. The invariant it
// encodes: if a row exists with ContentHash == H, every id in ChunkIDs is
// present in the vector store and was derived from content hash H.
type FileState struct {
	RepoID           string
	Path             string
	LastProcessedCommit string
	ContentHash      string
	ChunkIDs         []string
	ChunkCount       int
	UpdatedAt        time.Time
}

// Store persists FileState rows in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) the SQLite database at path and
// ensures its schema exists. path may be ":memory:".
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open filestate database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init filestate schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS file_states (
		repo_id TEXT NOT NULL,
		path TEXT NOT NULL,
		last_processed_commit TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		chunk_ids TEXT NOT NULL, -- JSON array
		chunk_count INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (repo_id, path)
	);
	CREATE INDEX IF NOT EXISTS idx_file_states_repo ON file_states(repo_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the FileState for (repoID, path), or ok=false if no row exists.
func (s *Store) Get(ctx context.Context, repoID, path string) (FileState, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT last_processed_commit, content_hash, chunk_ids, chunk_count, updated_at
		FROM file_states WHERE repo_id = ? AND path = ?`, repoID, path)

	var fs FileState
	var chunkIDsJSON string
	var updatedAtUnix int64
	err := row.Scan(&fs.LastProcessedCommit, &fs.ContentHash, &chunkIDsJSON, &fs.ChunkCount, &updatedAtUnix)
	if err == sql.ErrNoRows {
		return FileState{}, false, nil
	}
	if err != nil {
		return FileState{}, false, fmt.Errorf("get file state %s/%s: %w", repoID, path, err)
	}
	if err := json.Unmarshal([]byte(chunkIDsJSON), &fs.ChunkIDs); err != nil {
		return FileState{}, false, fmt.Errorf("decode chunk ids for %s/%s: %w", repoID, path, err)
	}
	fs.RepoID = repoID
	fs.Path = path
	fs.UpdatedAt = time.Unix(updatedAtUnix, 0).UTC()
	return fs, true, nil
}

// ListByRepo returns every FileState row owned by repoID.
func (s *Store) ListByRepo(ctx context.Context, repoID string) ([]FileState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, last_processed_commit, content_hash, chunk_ids, chunk_count, updated_at
		FROM file_states WHERE repo_id = ?`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list file states for %s: %w", repoID, err)
	}
	defer rows.Close()

	var out []FileState
	for rows.Next() {
		var fs FileState
		var chunkIDsJSON string
		var updatedAtUnix int64
		if err := rows.Scan(&fs.Path, &fs.LastProcessedCommit, &fs.ContentHash, &chunkIDsJSON, &fs.ChunkCount, &updatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan file state row: %w", err)
		}
		if err := json.Unmarshal([]byte(chunkIDsJSON), &fs.ChunkIDs); err != nil {
			return nil, fmt.Errorf("decode chunk ids for %s/%s: %w", repoID, fs.Path, err)
		}
		fs.RepoID = repoID
		fs.UpdatedAt = time.Unix(updatedAtUnix, 0).UTC()
		out = append(out, fs)
	}
	return out, rows.Err()
}

// DistinctRepoIDs returns every repo id with at least one ledger row,
// used by the orphan reconciler to find FileState rows whose Repository
// has since been deleted.
func (s *Store) DistinctRepoIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT repo_id FROM file_states`)
	if err != nil {
		return nil, fmt.Errorf("list distinct repo ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan repo id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Upsert writes or replaces the ledger row for (repoID, path). Callers must
// only invoke this after the corresponding chunk ids have been durably
// upserted into the vector store — writing it earlier would let a crash
// leave FileState claiming chunks that were never stored.
func (s *Store) Upsert(ctx context.Context, fs FileState) error {
	chunkIDsJSON, err := json.Marshal(fs.ChunkIDs)
	if err != nil {
		return fmt.Errorf("encode chunk ids for %s/%s: %w", fs.RepoID, fs.Path, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO file_states (repo_id, path, last_processed_commit, content_hash, chunk_ids, chunk_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, path) DO UPDATE SET
			last_processed_commit = excluded.last_processed_commit,
			content_hash = excluded.content_hash,
			chunk_ids = excluded.chunk_ids,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at`,
		fs.RepoID, fs.Path, fs.LastProcessedCommit, fs.ContentHash, string(chunkIDsJSON), len(fs.ChunkIDs), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert file state %s/%s: %w", fs.RepoID, fs.Path, err)
	}
	return nil
}

// Delete removes the ledger row for (repoID, path), if present, and returns
// the chunk ids it was tracking so the caller can remove them from the
// vector store. Deleting a non-existent row is not an error.
func (s *Store) Delete(ctx context.Context, repoID, path string) ([]string, error) {
	fs, ok, err := s.Get(ctx, repoID, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_states WHERE repo_id = ? AND path = ?`, repoID, path); err != nil {
		return nil, fmt.Errorf("delete file state %s/%s: %w", repoID, path, err)
	}
	return fs.ChunkIDs, nil
}

// DeleteByRepo removes every ledger row for repoID, used by cascading repo
// delete. Returns the union of chunk ids that were tracked.
func (s *Store) DeleteByRepo(ctx context.Context, repoID string) ([]string, error) {
	states, err := s.ListByRepo(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_states WHERE repo_id = ?`, repoID); err != nil {
		return nil, fmt.Errorf("delete file states for %s: %w", repoID, err)
	}
	var ids []string
	for _, st := range states {
		ids = append(ids, st.ChunkIDs...)
	}
	return ids, nil
}
