// Package wiki generates and persists the hierarchical Wiki/WikiSection/
// WikiPage document produced from a repo's parsed chunks, in both full and
// incremental modes.
package wiki

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

func encodeJSONStrings(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	b, err := json.Marshal(ss)
	return string(b), err
}

func decodeJSONStrings(s string, out *[]string) error {
	return json.Unmarshal([]byte(s), out)
}

// Importance tags a page's prominence in navigation.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// PageType marks a well-known auto-generated page so the generator can find
// it again without matching on title text.
type PageType string

const (
	PageTypeNone       PageType = ""
	PageTypeOverview   PageType = "overview"
	PageTypeNavigation PageType = "navigation"
)

// WikiPage is one leaf of the document tree.
type WikiPage struct {
	ID            string
	SectionID     string
	Title         string
	Importance    Importance
	Body          string
	RelevantFiles []string
	Summary       string
	Type          PageType
	OrderIndex    int
}

// WikiSection groups ordered pages under a title.
type WikiSection struct {
	ID         string
	WikiID     string
	Title      string
	OrderIndex int
	Pages      []WikiPage
}

// Wiki is the root of one repo's generated document. QuickStartOrderIndex
// is reserved for the system-generated quick-start section; the LLM outline
// step never produces a section at that index.
const QuickStartOrderIndex = 0

type Wiki struct {
	ID         string
	RepoID     string
	Title      string
	CommitHash string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Sections   []WikiSection
}

// Store persists the Wiki tree in SQLite, using the teacher's hand-written
// SQL style (no ORM).
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) the SQLite database at path and
// ensures its schema exists. path may be ":memory:".
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open wiki database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init wiki schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS wikis (
		id TEXT PRIMARY KEY,
		repo_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		commit_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS wiki_sections (
		id TEXT PRIMARY KEY,
		wiki_id TEXT NOT NULL REFERENCES wikis(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		order_index INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_wiki_sections_wiki ON wiki_sections(wiki_id);
	CREATE TABLE IF NOT EXISTS wiki_pages (
		id TEXT PRIMARY KEY,
		section_id TEXT NOT NULL REFERENCES wiki_sections(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		importance TEXT NOT NULL,
		body TEXT NOT NULL,
		relevant_files TEXT NOT NULL, -- JSON array
		summary TEXT NOT NULL,
		page_type TEXT NOT NULL,
		order_index INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_wiki_pages_section ON wiki_pages(section_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetByRepo returns the Wiki for repoID, or ok=false if none exists yet.
func (s *Store) GetByRepo(ctx context.Context, repoID string) (Wiki, bool, error) {
	var w Wiki
	var createdAt, updatedAt int64
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo_id, title, commit_hash, created_at, updated_at
		FROM wikis WHERE repo_id = ?`, repoID)
	if err := row.Scan(&w.ID, &w.RepoID, &w.Title, &w.CommitHash, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Wiki{}, false, nil
		}
		return Wiki{}, false, fmt.Errorf("get wiki for %s: %w", repoID, err)
	}
	w.CreatedAt = time.Unix(createdAt, 0).UTC()
	w.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	sections, err := s.loadSections(ctx, w.ID)
	if err != nil {
		return Wiki{}, false, err
	}
	w.Sections = sections
	return w, true, nil
}

func (s *Store) loadSections(ctx context.Context, wikiID string) ([]WikiSection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, order_index FROM wiki_sections
		WHERE wiki_id = ? ORDER BY order_index`, wikiID)
	if err != nil {
		return nil, fmt.Errorf("list sections for %s: %w", wikiID, err)
	}
	defer rows.Close()

	var sections []WikiSection
	for rows.Next() {
		sec := WikiSection{WikiID: wikiID}
		if err := rows.Scan(&sec.ID, &sec.Title, &sec.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan section row: %w", err)
		}
		pages, err := s.loadPages(ctx, sec.ID)
		if err != nil {
			return nil, err
		}
		sec.Pages = pages
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func (s *Store) loadPages(ctx context.Context, sectionID string) ([]WikiPage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, importance, body, relevant_files, summary, page_type, order_index
		FROM wiki_pages WHERE section_id = ? ORDER BY order_index`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("list pages for %s: %w", sectionID, err)
	}
	defer rows.Close()

	var pages []WikiPage
	for rows.Next() {
		p := WikiPage{SectionID: sectionID}
		var relevantFilesJSON string
		var importance, pageType string
		if err := rows.Scan(&p.ID, &p.Title, &importance, &p.Body, &relevantFilesJSON, &p.Summary, &pageType, &p.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		p.Importance = Importance(importance)
		p.Type = PageType(pageType)
		if err := decodeJSONStrings(relevantFilesJSON, &p.RelevantFiles); err != nil {
			return nil, fmt.Errorf("decode relevant files for page %s: %w", p.ID, err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// Replace performs the spec's cascading delete-then-insert: a repo has at
// most one Wiki, so a full regeneration replaces it wholesale rather than
// diffing section by section.
func (s *Store) Replace(ctx context.Context, w Wiki) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace wiki tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM wikis WHERE repo_id = ?`, w.RepoID); err != nil {
		return fmt.Errorf("delete existing wiki for %s: %w", w.RepoID, err)
	}

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wikis (id, repo_id, title, commit_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.RepoID, w.Title, w.CommitHash, now, now); err != nil {
		return fmt.Errorf("insert wiki %s: %w", w.ID, err)
	}

	for _, sec := range w.Sections {
		if err := insertSection(ctx, tx, w.ID, sec); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertSection(ctx context.Context, tx *sql.Tx, wikiID string, sec WikiSection) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wiki_sections (id, wiki_id, title, order_index)
		VALUES (?, ?, ?, ?)`,
		sec.ID, wikiID, sec.Title, sec.OrderIndex); err != nil {
		return fmt.Errorf("insert section %s: %w", sec.ID, err)
	}
	for _, p := range sec.Pages {
		if err := insertPage(ctx, tx, sec.ID, p); err != nil {
			return err
		}
	}
	return nil
}

func insertPage(ctx context.Context, tx *sql.Tx, sectionID string, p WikiPage) error {
	relevantFilesJSON, err := encodeJSONStrings(p.RelevantFiles)
	if err != nil {
		return fmt.Errorf("encode relevant files for page %s: %w", p.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wiki_pages (id, section_id, title, importance, body, relevant_files, summary, page_type, order_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, sectionID, p.Title, string(p.Importance), p.Body, relevantFilesJSON, p.Summary, string(p.Type), p.OrderIndex); err != nil {
		return fmt.Errorf("insert page %s: %w", p.ID, err)
	}
	return nil
}

// ReplacePage overwrites one existing page's mutable fields in place,
// without touching its section or ordering — used by incremental
// regeneration, which only rewrites dirty pages.
func (s *Store) ReplacePage(ctx context.Context, p WikiPage) error {
	relevantFilesJSON, err := encodeJSONStrings(p.RelevantFiles)
	if err != nil {
		return fmt.Errorf("encode relevant files for page %s: %w", p.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE wiki_pages SET title = ?, importance = ?, body = ?, relevant_files = ?, summary = ?
		WHERE id = ?`,
		p.Title, string(p.Importance), p.Body, relevantFilesJSON, p.Summary, p.ID)
	if err != nil {
		return fmt.Errorf("replace page %s: %w", p.ID, err)
	}
	return nil
}

// RenameSection applies an LLM-suggested title change to an existing
// section, used when incremental regeneration finds a section ≥80% dirty.
func (s *Store) RenameSection(ctx context.Context, sectionID, newTitle string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE wiki_sections SET title = ? WHERE id = ?`, newTitle, sectionID)
	if err != nil {
		return fmt.Errorf("rename section %s: %w", sectionID, err)
	}
	return nil
}

// UpdateWikiCommitHash stamps the Wiki's commit hash after an incremental
// regeneration completes, without touching section/page rows.
func (s *Store) UpdateWikiCommitHash(ctx context.Context, wikiID, commitHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wikis SET commit_hash = ?, updated_at = ? WHERE id = ?`,
		commitHash, time.Now().Unix(), wikiID)
	if err != nil {
		return fmt.Errorf("update wiki commit hash %s: %w", wikiID, err)
	}
	return nil
}
