package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ferg-cod3s/conexus/internal/chunker"
	"github.com/ferg-cod3s/conexus/internal/embedding"
	"github.com/ferg-cod3s/conexus/internal/filestate"
	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

// EmbedBatchSize is the default number of chunks sent per provider call,
// within the spec's empirical 10-50 range.
const EmbedBatchSize = 25

// EmbedRetryAttempts, EmbedRetryInitialDelay, EmbedRetryMaxDelay bound the
// backoff applied to a single batch call.
const (
	EmbedRetryAttempts     = 3
	EmbedRetryInitialDelay = 2 * time.Second
	EmbedRetryMaxDelay     = 30 * time.Second
)

// Semaphore bounds the number of in-flight embedding/LLM calls per process.
type Semaphore chan struct{}

// NewSemaphore builds a Semaphore with the given capacity.
func NewSemaphore(capacity int) Semaphore {
	if capacity <= 0 {
		capacity = 10
	}
	return make(Semaphore, capacity)
}

func (s Semaphore) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Semaphore) release() { <-s }

// embedInput builds the string embedded for a chunk: language, type, name,
// file path, docstring (if any), and code body concatenated.
func embedInput(c chunker.Chunk) string {
	s := fmt.Sprintf("%s %s %s %s", c.Language, c.NodeType, c.SymbolName, c.FilePath)
	if c.Docstring != "" {
		s += "\n" + c.Docstring
	}
	return s + "\n" + c.Content
}

// Embed embeds chunks in provider-sized batches guarded by sem, retrying
// each batch with exponential backoff for rate-limit/connection errors.
// On success of the *entire* chunk list it upserts into the vector store
// keyed on chunk id, then writes one FileState row per path in pathHashes.
// FileState is never written before the vector-store upsert succeeds.
func Embed(ctx context.Context, embedder embedding.Embedder, store vectorstore.VectorStore, fsStore *filestate.Store, sem Semaphore,
	repoID, commitHash string, chunks []chunker.Chunk, pathHashes map[string]string) error {

	docs := make([]vectorstore.Document, 0, len(chunks))
	chunkIDsByPath := make(map[string][]string)

	for i := 0; i < len(chunks); i += EmbedBatchSize {
		end := i + EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		if err := sem.acquire(ctx); err != nil {
			return fmt.Errorf("acquire embed semaphore: %w", err)
		}
		vectors, err := embedBatchWithRetry(ctx, embedder, batch)
		sem.release()
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}

		for j, c := range batch {
			docs = append(docs, vectorstore.Document{
				ID:      c.ID,
				Content: c.Content,
				Vector:  vectors[j],
				Metadata: map[string]interface{}{
					"repo_id":     repoID,
					"file_path":   c.FilePath,
					"language":    c.Language,
					"node_type":   c.NodeType,
					"symbol_name": c.SymbolName,
					"start_line":  c.StartLine,
					"end_line":    c.EndLine,
					"parent_id":   c.ParentID,
				},
			})
			chunkIDsByPath[c.FilePath] = append(chunkIDsByPath[c.FilePath], c.ID)
		}
	}

	if len(docs) > 0 {
		if err := store.UpsertBatch(ctx, docs); err != nil {
			return fmt.Errorf("upsert %d chunks: %w", len(docs), err)
		}
	}

	// Ordering is crucial: FileState is only written after the vector-store
	// upsert above has succeeded for the whole chunk list.
	paths := make([]string, 0, len(pathHashes))
	for p := range pathHashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := fsStore.Upsert(ctx, filestate.FileState{
			RepoID:              repoID,
			Path:                path,
			LastProcessedCommit: commitHash,
			ContentHash:         pathHashes[path],
			ChunkIDs:            chunkIDsByPath[path],
		}); err != nil {
			return fmt.Errorf("write file state for %s: %w", path, err)
		}
	}
	return nil
}

func embedBatchWithRetry(ctx context.Context, embedder embedding.Embedder, batch []chunker.Chunk) ([]embedding.Vector, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = embedInput(c)
	}

	op := func() ([]embedding.Vector, error) {
		embeddings, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		vectors := make([]embedding.Vector, len(embeddings))
		for i, e := range embeddings {
			vectors[i] = e.Vector
		}
		return vectors, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = EmbedRetryInitialDelay
	bo.MaxInterval = EmbedRetryMaxDelay

	return backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(EmbedRetryAttempts))
}
