// Package jobs implements the persistent Repository and Task records and
// the Job State Machine's typed status transitions, stage tracking, and
// ghost-job protection described for the execution substrate.
package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// RepoStatus is a Repository's lifecycle status.
type RepoStatus string

const (
	RepoPending     RepoStatus = "pending"
	RepoCloning     RepoStatus = "cloning"
	RepoReady       RepoStatus = "ready"
	RepoError       RepoStatus = "error"
	RepoSyncing     RepoStatus = "syncing"
	RepoInterrupted RepoStatus = "interrupted"
)

// TaskType distinguishes the four submission shapes a job can take.
type TaskType string

const (
	TaskFullProcess     TaskType = "full_process"
	TaskIncrementalSync TaskType = "incremental_sync"
	TaskWikiRegenerate  TaskType = "wiki_regenerate"
	TaskParseOnly       TaskType = "parse_only"
)

// TaskStatus is a Task's status, advancing forward along stage order until
// a terminal state.
type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskCloning     TaskStatus = "cloning"
	TaskParsing     TaskStatus = "parsing"
	TaskEmbedding   TaskStatus = "embedding"
	TaskGenerating  TaskStatus = "generating"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
	TaskCancelled   TaskStatus = "cancelled"
	TaskInterrupted TaskStatus = "interrupted"
)

// Terminal reports whether s ends a task's lifecycle.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskInterrupted:
		return true
	default:
		return false
	}
}

// StageTag machine-identifies one of the four pipeline stages, used to
// stamp a task's FailedStage.
type StageTag string

const (
	StageClone    StageTag = "clone_sync"
	StageParse    StageTag = "parse"
	StageEmbed    StageTag = "embed"
	StageGenerate StageTag = "generate"
)

// Repository is the logical subject of a job: one Git repo and its derived
// artifacts' lifecycle.
type Repository struct {
	ID               string
	URL              string
	DisplayName      string
	HostingPlatform  string
	DefaultBranch    string
	ClonePath        string
	Status           RepoStatus
	LastSyncedAt     *time.Time
}

// Task is one unit of work against a Repository.
type Task struct {
	ID               string
	RepoID           string
	Type             TaskType
	Status           TaskStatus
	ProgressPct      float64
	StageLabel       string
	FailedStage      StageTag
	ExternalRunnerID string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ErrCancelled is returned by SetStage when the task is already cancelled
// or interrupted, signalling the caller to unwind the pipeline rather than
// treat it as a normal error.
var ErrCancelled = fmt.Errorf("task already terminal (cancelled or interrupted)")

// ErrConflict indicates a repo already has a non-terminal task.
type ErrConflict struct {
	ExistingTaskID string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("repo already has a non-terminal task: %s", e.ExistingTaskID)
}

// Store persists Repository and Task rows and implements the state
// machine's transition contracts.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) the SQLite database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open jobs database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init jobs schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS repositories (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		hosting_platform TEXT NOT NULL DEFAULT '',
		default_branch TEXT NOT NULL DEFAULT '',
		clone_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		last_synced_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		repo_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		progress_pct REAL NOT NULL DEFAULT 0,
		stage_label TEXT NOT NULL DEFAULT '',
		failed_stage TEXT NOT NULL DEFAULT '',
		external_runner_id TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_repo ON tasks(repo_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRepository inserts a new Repository in RepoPending status.
func (s *Store) CreateRepository(ctx context.Context, id, url, displayName string) (Repository, error) {
	repo := Repository{ID: id, URL: url, DisplayName: displayName, Status: RepoPending}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (id, url, display_name, status)
		VALUES (?, ?, ?, ?)`, repo.ID, repo.URL, repo.DisplayName, repo.Status)
	if err != nil {
		return Repository{}, fmt.Errorf("create repository %s: %w", url, err)
	}
	return repo, nil
}

// GetRepository reads a Repository by id.
func (s *Store) GetRepository(ctx context.Context, id string) (Repository, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, display_name, hosting_platform, default_branch, clone_path, status, last_synced_at
		FROM repositories WHERE id = ?`, id)
	var repo Repository
	var lastSynced sql.NullInt64
	err := row.Scan(&repo.ID, &repo.URL, &repo.DisplayName, &repo.HostingPlatform, &repo.DefaultBranch, &repo.ClonePath, &repo.Status, &lastSynced)
	if err == sql.ErrNoRows {
		return Repository{}, false, nil
	}
	if err != nil {
		return Repository{}, false, fmt.Errorf("get repository %s: %w", id, err)
	}
	if lastSynced.Valid {
		t := time.Unix(lastSynced.Int64, 0).UTC()
		repo.LastSyncedAt = &t
	}
	return repo, true, nil
}

// ListRepositories returns every Repository row, used by the orphan
// reconciler to establish the live set against which clone paths and
// FileState ledger rows are checked.
func (s *Store) ListRepositories(ctx context.Context) ([]Repository, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, display_name, hosting_platform, default_branch, clone_path, status, last_synced_at
		FROM repositories`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var out []Repository
	for rows.Next() {
		var repo Repository
		var lastSynced sql.NullInt64
		if err := rows.Scan(&repo.ID, &repo.URL, &repo.DisplayName, &repo.HostingPlatform, &repo.DefaultBranch, &repo.ClonePath, &repo.Status, &lastSynced); err != nil {
			return nil, fmt.Errorf("scan repository row: %w", err)
		}
		if lastSynced.Valid {
			t := time.Unix(lastSynced.Int64, 0).UTC()
			repo.LastSyncedAt = &t
		}
		out = append(out, repo)
	}
	return out, rows.Err()
}

// SetRepoStatus updates a Repository's lifecycle status, optionally its
// clone path and last-synced timestamp.
func (s *Store) SetRepoStatus(ctx context.Context, repoID string, status RepoStatus, clonePath string, syncedNow bool) error {
	if clonePath != "" {
		var synced interface{}
		if syncedNow {
			synced = time.Now().Unix()
		}
		_, err := s.db.ExecContext(ctx, `
			UPDATE repositories SET status = ?, clone_path = ?, last_synced_at = COALESCE(?, last_synced_at)
			WHERE id = ?`, status, clonePath, synced, repoID)
		if err != nil {
			return fmt.Errorf("set repo status %s: %w", repoID, err)
		}
		return nil
	}
	var synced interface{}
	if syncedNow {
		synced = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE repositories SET status = ?, last_synced_at = COALESCE(?, last_synced_at) WHERE id = ?`,
		status, synced, repoID)
	if err != nil {
		return fmt.Errorf("set repo status %s: %w", repoID, err)
	}
	return nil
}

// DeleteRepository removes the Repository row only. The repo's tasks, file
// states, vector collection and clone directory are left in place.
func (s *Store) DeleteRepository(ctx context.Context, repoID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, repoID); err != nil {
		return fmt.Errorf("delete repository %s: %w", repoID, err)
	}
	return nil
}

// activeNonTerminalTask returns the id of repoID's current non-terminal
// task, if any.
func (s *Store) activeNonTerminalTask(ctx context.Context, repoID string) (string, bool, error) {
	terminal := []TaskStatus{TaskCompleted, TaskFailed, TaskCancelled, TaskInterrupted}
	row := s.db.QueryRowContext(ctx, `
		SELECT id FROM tasks WHERE repo_id = ? AND status NOT IN (?, ?, ?, ?) LIMIT 1`,
		repoID, terminal[0], terminal[1], terminal[2], terminal[3])
	var id string
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("check active task for %s: %w", repoID, err)
	}
	return id, true, nil
}

// Create inserts a new Task in TaskPending status, enforcing the
// at-most-one-active-task-per-repo invariant.
func (s *Store) Create(ctx context.Context, id, repoID string, taskType TaskType) (Task, error) {
	if existing, ok, err := s.activeNonTerminalTask(ctx, repoID); err != nil {
		return Task{}, err
	} else if ok {
		return Task{}, &ErrConflict{ExistingTaskID: existing}
	}

	now := time.Now().UTC()
	task := Task{ID: id, RepoID: repoID, Type: taskType, Status: TaskPending, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, repo_id, type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`, task.ID, task.RepoID, task.Type, task.Status, now.Unix(), now.Unix())
	if err != nil {
		return Task{}, fmt.Errorf("create task for %s: %w", repoID, err)
	}
	return task, nil
}

// Get reads a Task by id.
func (s *Store) Get(ctx context.Context, taskID string) (Task, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo_id, type, status, progress_pct, stage_label, failed_stage, external_runner_id, error_message, created_at, updated_at
		FROM tasks WHERE id = ?`, taskID)
	var t Task
	var createdAt, updatedAt int64
	err := row.Scan(&t.ID, &t.RepoID, &t.Type, &t.Status, &t.ProgressPct, &t.StageLabel, &t.FailedStage, &t.ExternalRunnerID, &t.ErrorMessage, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, fmt.Errorf("get task %s: %w", taskID, err)
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return t, true, nil
}

// SetStage advances taskID to status with a progress percentage and human
// label. It commits immediately so observers reading via a separate
// connection see the update, and refuses to advance — returning
// ErrCancelled — if the task is already cancelled or interrupted.
func (s *Store) SetStage(ctx context.Context, taskID string, status TaskStatus, pct float64, label string) error {
	current, ok, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("set stage: task %s not found", taskID)
	}
	if current.Status == TaskCancelled || current.Status == TaskInterrupted {
		return ErrCancelled
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, progress_pct = ?, stage_label = ?, updated_at = ? WHERE id = ?`,
		status, pct, label, time.Now().Unix(), taskID)
	if err != nil {
		return fmt.Errorf("set stage for %s: %w", taskID, err)
	}
	return nil
}

// Fail marks taskID failed at the given stage with a (scrubbed) message.
func (s *Store) Fail(ctx context.Context, taskID string, stage StageTag, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, failed_stage = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		TaskFailed, stage, message, time.Now().Unix(), taskID)
	if err != nil {
		return fmt.Errorf("fail task %s: %w", taskID, err)
	}
	return nil
}

// Complete marks taskID completed at 100%.
func (s *Store) Complete(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, progress_pct = 100, updated_at = ? WHERE id = ?`,
		TaskCompleted, time.Now().Unix(), taskID)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	return nil
}

// Cancel marks taskID cancelled, never failed, regardless of current stage.
func (s *Store) Cancel(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		TaskCancelled, time.Now().Unix(), taskID)
	if err != nil {
		return fmt.Errorf("cancel task %s: %w", taskID, err)
	}
	return nil
}

// SetExternalRunnerID records the runner/process generation owning taskID.
// MarkInterruptedIfNonTerminal does not read it: it interrupts every
// non-terminal task whatever its runner id.
func (s *Store) SetExternalRunnerID(ctx context.Context, taskID, runnerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET external_runner_id = ?, updated_at = ? WHERE id = ?`,
		runnerID, time.Now().Unix(), taskID)
	if err != nil {
		return fmt.Errorf("set external runner id for %s: %w", taskID, err)
	}
	return nil
}

// MarkInterruptedIfNonTerminal scans for non-terminal tasks and moves them
// (and their repos, unless already ready or error) to interrupted. Invoked
// once at worker startup so no task row whose external_runner_id refers to
// a prior worker generation is ever auto-resumed.
func (s *Store) MarkInterruptedIfNonTerminal(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id FROM tasks WHERE status NOT IN (?, ?, ?, ?)`,
		TaskCompleted, TaskFailed, TaskCancelled, TaskInterrupted)
	if err != nil {
		return 0, fmt.Errorf("scan non-terminal tasks: %w", err)
	}
	type pair struct{ taskID, repoID string }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.taskID, &p.repoID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan non-terminal task row: %w", err)
		}
		pairs = append(pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().Unix()
	for _, p := range pairs {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`, TaskInterrupted, now, p.taskID); err != nil {
			return 0, fmt.Errorf("interrupt task %s: %w", p.taskID, err)
		}
		if _, err := s.db.ExecContext(ctx, `
			UPDATE repositories SET status = ? WHERE id = ? AND status NOT IN (?, ?)`,
			RepoInterrupted, p.repoID, RepoReady, RepoError); err != nil {
			return 0, fmt.Errorf("interrupt repo %s: %w", p.repoID, err)
		}
	}
	return len(pairs), nil
}
