// Package pipeline implements the four ordered stages run by a job:
// Clone/Sync, Parse, Embed, Generate.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ferg-cod3s/conexus/internal/chunker"
	"github.com/ferg-cod3s/conexus/internal/filestate"
	"github.com/ferg-cod3s/conexus/internal/indexer"
)

// maxCodeFileSize and maxDocFileSize are the Parse stage's per-file caps.
const (
	maxCodeFileSize = 1 << 20         // 1 MiB
	maxDocFileSize  = 100 * (1 << 10) // 100 KiB
)

var denylistDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
	".venv":        true,
	"__pycache__":  true,
}

var lockfileNames = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":     true,
	"go.sum":            true,
	"cargo.lock":        true,
}

// ParseResult is the Parse stage's output: the full chunk list and the
// map of changed paths to their content hash, for the subset that changed
// in this run.
type ParseResult struct {
	Chunks       []chunker.Chunk
	PathHashes   map[string]string
	FilesWalked  int
	FilesSkipped int
}

// Parse walks clonePath, filters by denylist/size/kind, and dispatches each
// included file to the Chunker unless a FileState row already records the
// same content hash and fullRebuild is false (idempotency hit).
//
// For full_process, a zero-chunk result is a hard failure; for
// incremental_sync it is acceptable (may indicate only deletions) — callers
// enforce that distinction, not Parse itself.
func Parse(ctx context.Context, c *chunker.Chunker, fs_ *filestate.Store, repoID, clonePath string, fullRebuild bool, onFile func(path string)) (ParseResult, error) {
	result := ParseResult{PathHashes: make(map[string]string)}

	walker := indexer.NewFileWalker(maxCodeFileSize)
	err := walker.Walk(ctx, clonePath, denylistNames(), func(path string, info fs.FileInfo) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, err := filepath.Rel(clonePath, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		relPath = filepath.ToSlash(relPath)

		if !included(relPath, info) {
			result.FilesSkipped++
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", relPath, err)
		}

		hash := contentHash(content)
		if !fullRebuild {
			if existing, ok, err := fs_.Get(ctx, repoID, relPath); err == nil && ok && existing.ContentHash == hash {
				result.FilesWalked++
				return nil // idempotency hit
			}
		}

		chunks, err := c.Chunk(ctx, repoID, relPath, string(content))
		if err != nil {
			return fmt.Errorf("chunk %s: %w", relPath, err)
		}
		result.Chunks = append(result.Chunks, chunks...)
		result.PathHashes[relPath] = hash
		result.FilesWalked++
		if onFile != nil {
			onFile(relPath)
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("walk %s: %w", clonePath, err)
	}
	return result, nil
}

func denylistNames() []string {
	names := make([]string, 0, len(denylistDirs))
	for d := range denylistDirs {
		names = append(names, d+"/")
	}
	return names
}

func included(relPath string, info fs.FileInfo) bool {
	base := strings.ToLower(filepath.Base(relPath))
	if lockfileNames[base] {
		return false
	}
	for dir := range denylistDirs {
		if strings.HasPrefix(relPath, dir+"/") || strings.Contains(relPath, "/"+dir+"/") {
			return false
		}
	}

	switch fileKind(relPath) {
	case kindSource:
		return info.Size() <= maxCodeFileSize
	case kindDocOrConfig:
		return info.Size() <= maxDocFileSize
	default:
		return false
	}
}

type kindTag int

const (
	kindSource kindTag = iota
	kindDocOrConfig
	kindUnrecognized
)

var docExts = map[string]bool{".md": true, ".rst": true, ".txt": true}

var namedConfigFiles = map[string]bool{
	"package.json":        true,
	"pyproject.toml":      true,
	"docker-compose.yml":  true,
	"docker-compose.yaml": true,
	"dockerfile":          true,
	".env.example":        true,
}

var recognizedCodeExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".java": true, ".cpp": true, ".cc": true, ".cxx": true, ".c": true, ".rs": true,
	".rb": true, ".php": true, ".cs": true, ".scala": true, ".kt": true, ".swift": true,
}

func fileKind(relPath string) kindTag {
	base := strings.ToLower(filepath.Base(relPath))
	if namedConfigFiles[base] {
		return kindDocOrConfig
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	if docExts[ext] {
		return kindDocOrConfig
	}
	if recognizedCodeExts[ext] {
		return kindSource
	}
	return kindUnrecognized
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
