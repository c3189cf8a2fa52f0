package wiki

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

// readmeHeadLines bounds how much of a README is fed into the outline
// prompt; the model needs context, not the whole file.
const readmeHeadLines = 60

// repoSummarizer is the narrow slice of vectorstore.VectorStore the wiki
// generator needs for building a repo overview.
type repoSummarizer interface {
	RepoFileSummaries(ctx context.Context, repoID string) ([]vectorstore.FileSummary, error)
}

// RepoSummary is the input handed to the outline request: everything the
// model needs to propose a sensible section/page structure without being
// handed the full corpus.
type RepoSummary struct {
	TopFiles      []vectorstore.FileSummary // sorted by ChunkCount descending
	DirectoryTree []string
	LanguageHisto map[string]int
	ReadmeHead    string
}

// BuildRepoSummary aggregates the vector store's per-file summaries, a
// directory listing rooted at clonePath, and the repo's README head (if
// any) into the structure the outline prompt is built from.
func BuildRepoSummary(ctx context.Context, store repoSummarizer, repoID, clonePath string) (RepoSummary, error) {
	files, err := store.RepoFileSummaries(ctx, repoID)
	if err != nil {
		return RepoSummary{}, fmt.Errorf("build repo summary: %w", err)
	}

	sorted := make([]vectorstore.FileSummary, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkCount > sorted[j].ChunkCount })

	histo := make(map[string]int)
	for _, f := range files {
		if f.Language != "" {
			histo[f.Language]++
		}
	}

	tree := directoryTree(clonePath)
	readme := readReadmeHead(clonePath)

	const topFileLimit = 25
	if len(sorted) > topFileLimit {
		sorted = sorted[:topFileLimit]
	}

	return RepoSummary{
		TopFiles:      sorted,
		DirectoryTree: tree,
		LanguageHisto: histo,
		ReadmeHead:    readme,
	}, nil
}

// directoryTree walks clonePath (best-effort; an unreadable or absent root
// yields an empty tree rather than an error, since the outline can still
// proceed on file summaries alone) and returns relative paths of every
// directory, skipping .git.
func directoryTree(clonePath string) []string {
	if clonePath == "" {
		return nil
	}
	var tree []string
	_ = filepath.WalkDir(clonePath, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(clonePath, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if rel == ".git" || strings.HasPrefix(rel, ".git"+string(filepath.Separator)) {
			return filepath.SkipDir
		}
		tree = append(tree, rel)
		return nil
	})
	sort.Strings(tree)
	return tree
}

var readmeNames = []string{"README.md", "README.rst", "README.txt", "README"}

func readReadmeHead(clonePath string) string {
	if clonePath == "" {
		return ""
	}
	for _, name := range readmeNames {
		content, err := os.ReadFile(filepath.Join(clonePath, name))
		if err != nil {
			continue
		}
		lines := strings.Split(string(content), "\n")
		if len(lines) > readmeHeadLines {
			lines = lines[:readmeHeadLines]
		}
		return strings.Join(lines, "\n")
	}
	return ""
}
