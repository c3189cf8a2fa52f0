// Package chunker converts parsed semantic units into size-bounded chunks
// with sliding-window overlap, as consumed by the Embed stage. It adapts
// the teacher's indexer.CodeChunker for source files and adds its own
// document-section and configuration-file extraction so every recognized
// file kind from the Parse stage's whitelist produces chunks.
package chunker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ferg-cod3s/conexus/internal/indexer"
)

// Chunk is the immutable semantic unit stored in the vector index, per the
// data model: it carries enough location and symbol metadata to support
// retrieval, hierarchical relationships (ParentID), and call-graph hints
// (CalledSymbols) without being mirrored in the relational store.
type Chunk struct {
	ID             string
	RepoID         string
	FilePath       string
	NodeType       string // "function", "class", "module", "document_section", "constant", "<type>_part", ...
	SymbolName     string
	StartLine      int
	EndLine        int
	Content        string
	Language       string
	ParentID       string
	CalledSymbols  []string
	Docstring      string
	Metadata       map[string]interface{}
}

// TokenBudget approximates the spec's ~6000 token cap via length/4.
const TokenBudget = 6000

// WindowOverlapLines is the sliding-window overlap used when re-segmenting
// an oversized chunk.
const WindowOverlapLines = 20

// ModuleChunkCapBytes bounds the single fallback "module" chunk emitted for
// files with no extractable structure.
const ModuleChunkCapBytes = 8 * 1024

// Chunker converts file content into Chunks for a given repo and path.
type Chunker struct {
	code *indexer.CodeChunker
}

// New builds a Chunker. maxChunkSize/overlapSize tune the underlying
// code-chunker's character budget before token-budget re-segmentation.
func New(maxChunkSize, overlapSize int) *Chunker {
	return &Chunker{code: indexer.NewCodeChunker(maxChunkSize, overlapSize)}
}

// Chunk dispatches content to the appropriate extractor based on file kind,
// then re-segments any chunk exceeding TokenBudget with a sliding window.
func (c *Chunker) Chunk(ctx context.Context, repoID, filePath, content string) ([]Chunk, error) {
	var chunks []Chunk
	var err error

	switch fileKind(filePath) {
	case kindDoc:
		chunks = chunkDocument(filePath, content)
	case kindConfig:
		chunks = chunkConfig(filePath, content)
	default:
		chunks, err = c.chunkCode(ctx, filePath, content)
		if err != nil {
			return nil, err
		}
	}

	if len(chunks) == 0 {
		chunks = []Chunk{moduleChunk(filePath, content)}
	}

	out := make([]Chunk, 0, len(chunks))
	for _, ch := range chunks {
		ch.RepoID = repoID
		out = append(out, resegment(ch)...)
	}
	for i := range out {
		out[i].ID = chunkID(repoID, out[i].FilePath, out[i].NodeType, out[i].SymbolName, out[i].StartLine)
	}
	return out, nil
}

func (c *Chunker) chunkCode(ctx context.Context, filePath, content string) ([]Chunk, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if !c.code.Supports(ext) {
		return nil, nil
	}
	legacy, err := c.code.Chunk(ctx, content, filePath)
	if err != nil {
		return nil, fmt.Errorf("chunk code %s: %w", filePath, err)
	}
	out := make([]Chunk, 0, len(legacy))
	for _, lc := range legacy {
		out = append(out, Chunk{
			FilePath:      filePath,
			NodeType:      string(lc.Type),
			SymbolName:    lc.Metadata["function_name"] + lc.Metadata["class_name"],
			StartLine:     lc.StartLine,
			EndLine:       lc.EndLine,
			Content:       lc.Content,
			Language:      lc.Language,
			CalledSymbols: extractCalledSymbols(lc.Content, lc.Language),
		})
	}
	return out, nil
}

func moduleChunk(filePath, content string) Chunk {
	if len(content) > ModuleChunkCapBytes {
		content = content[:ModuleChunkCapBytes]
	}
	return Chunk{
		FilePath:  filePath,
		NodeType:  "module",
		Content:   content,
		StartLine: 1,
		EndLine:   strings.Count(content, "\n") + 1,
		Language:  languageFromExt(filePath),
	}
}

// resegment splits a chunk whose content exceeds TokenBudget into
// overlapping "<type>_part" fragments using a sliding window measured in
// lines, so the overlap region is reproduced verbatim in both halves.
func resegment(ch Chunk) []Chunk {
	if len(ch.Content) <= TokenBudget*4 {
		return []Chunk{ch}
	}

	lines := strings.Split(ch.Content, "\n")
	maxLines := (TokenBudget * 4) / averageLineLen(lines)
	if maxLines < 1 {
		maxLines = 1
	}

	var parts []Chunk
	start := 0
	for start < len(lines) {
		end := start + maxLines
		if end > len(lines) {
			end = len(lines)
		}
		part := ch
		part.NodeType = ch.NodeType + "_part"
		part.ParentID = ch.ID
		part.Content = strings.Join(lines[start:end], "\n")
		part.StartLine = ch.StartLine + start
		part.EndLine = ch.StartLine + end - 1
		parts = append(parts, part)
		if end == len(lines) {
			break
		}
		start = end - WindowOverlapLines
		if start < 0 {
			start = 0
		}
	}
	return parts
}

func averageLineLen(lines []string) int {
	if len(lines) == 0 {
		return 1
	}
	total := 0
	for _, l := range lines {
		total += len(l) + 1
	}
	avg := total / len(lines)
	if avg < 1 {
		avg = 1
	}
	return avg
}

func chunkID(repoID, path, nodeType, symbol string, startLine int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d", repoID, path, nodeType, symbol, startLine)))
	return hex.EncodeToString(h[:])[:32]
}

// extractCalledSymbols is a lightweight, per-language regex pass over a
// chunk's body, grounded on the teacher's function-body scanning: it folds
// call-graph extraction into the Chunk's CalledSymbols field rather than
// a separate call-graph service.
func extractCalledSymbols(content, language string) []string {
	return callPattern(language).findCalls(content)
}
