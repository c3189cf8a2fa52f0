// Command repoforge-worker dequeues tasks from the Redis job queue and
// drives them through the ingestion pipeline: Clone/Sync, Parse, Embed,
// and Generate.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ferg-cod3s/conexus/internal/cancel"
	"github.com/ferg-cod3s/conexus/internal/chunker"
	"github.com/ferg-cod3s/conexus/internal/config"
	"github.com/ferg-cod3s/conexus/internal/embedding"
	"github.com/ferg-cod3s/conexus/internal/filestate"
	"github.com/ferg-cod3s/conexus/internal/jobs"
	"github.com/ferg-cod3s/conexus/internal/llm"
	"github.com/ferg-cod3s/conexus/internal/observability"
	"github.com/ferg-cod3s/conexus/internal/pipeline"
	"github.com/ferg-cod3s/conexus/internal/progress"
	"github.com/ferg-cod3s/conexus/internal/queue"
	"github.com/ferg-cod3s/conexus/internal/runner"
	"github.com/ferg-cod3s/conexus/internal/vectorstore/sqlite"
	"github.com/ferg-cod3s/conexus/internal/wiki"
)

const Version = "0.1.0"

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Output:        os.Stderr,
		AddSource:     true,
		SentryEnabled: cfg.Observability.Sentry.Enabled,
	})

	runnerID := fmt.Sprintf("worker-%s", uuid.NewString())
	logger.Info("repoforge-worker starting", "version", Version, "runner_id", runnerID)

	if cfg.Observability.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Observability.Sentry.DSN,
			Environment:      cfg.Observability.Sentry.Environment,
			Release:          cfg.Observability.Sentry.Release,
			TracesSampleRate: cfg.Observability.Sentry.SampleRate,
		}); err != nil {
			logger.Error("failed to initialize Sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	var metrics *observability.MetricsCollector
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetricsCollector("repoforge_worker")
	}
	errorHandler := observability.NewErrorHandler(logger, metrics, cfg.Observability.Sentry.Enabled)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to reach Redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}

	jobsStore, err := jobs.NewStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open jobs store", "error", err)
		os.Exit(1)
	}
	defer jobsStore.Close()

	fileState, err := filestate.NewStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open file state store", "error", err)
		os.Exit(1)
	}

	vectors, err := sqlite.NewStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open vector store", "error", err)
		os.Exit(1)
	}
	defer vectors.Close()

	wikiStore, err := wiki.NewStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open wiki store", "error", err)
		os.Exit(1)
	}

	if err := embedding.Register(&embedding.AnthropicProvider{}); err != nil {
		logger.Warn("anthropic embedding provider already registered", "error", err)
	}
	embedProvider, err := embedding.Get(cfg.Embedding.Provider)
	if err != nil {
		logger.Error("unknown embedding provider", "provider", cfg.Embedding.Provider, "error", err)
		os.Exit(1)
	}
	embedConfig := map[string]interface{}{
		"api_key":    cfg.Embedding.Config["api_key"],
		"model":      cfg.Embedding.Model,
		"dimensions": cfg.Embedding.Dimensions,
	}
	embedder, err := embedProvider.Create(embedConfig)
	if err != nil {
		logger.Error("failed to create embedder", "provider", cfg.Embedding.Provider, "error", err)
		os.Exit(1)
	}

	var llmClient llm.Client
	switch cfg.LLM.Provider {
	case "anthropic":
		llmClient = llm.NewAnthropicClient(cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		llmClient = llm.NewMockClient()
	}

	wikiGen := &wiki.Generator{
		LLM:     llmClient,
		Model:   cfg.LLM.Model,
		Vectors: vectors,
		Store:   wikiStore,
		Jobs:    jobsStore,
	}

	cancelReg := cancel.NewRegistry(redisClient, 0)
	bus := progress.NewBus(redisClient)
	fanout := progress.NewLocalFanout()

	deps := pipeline.Deps{
		Jobs:      jobsStore,
		FileState: fileState,
		Cancel:    cancelReg,
		Bus:       bus,
		Fanout:    fanout,
		Chunker:   chunker.New(cfg.Indexer.ChunkSize, cfg.Indexer.ChunkOverlap),
		Embedder:  embedder,
		Vectors:   vectors,
		Semaphore: make(pipeline.Semaphore, 4),
		Wiki:      wikiGen,
		GitToken:  os.Getenv("REPOFORGE_GIT_TOKEN"),
	}

	q := queue.New(redisClient, cfg.Queue.ListKey, cfg.Queue.ProcessingKey, cfg.Queue.BlockTimeout)

	r := runner.New(jobsStore, cancelReg, bus, fanout, deps, runnerID)
	r.OnDone = func(taskID string) {
		if err := q.Ack(context.Background(), taskID); err != nil {
			logger.Error("failed to ack completed task", "task_id", taskID, "error", err)
		}
	}
	interrupted, err := r.Boot(ctx)
	if err != nil {
		logger.Error("ghost-job sweep failed", "error", err)
		os.Exit(1)
	}
	if interrupted > 0 {
		logger.Info("marked orphaned tasks interrupted", "count", interrupted)
	}

	if recovered, err := q.Recover(ctx); err != nil {
		logger.Error("queue recovery failed", "error", err)
	} else if recovered > 0 {
		logger.Info("recovered in-flight tasks from a prior worker generation", "count", recovered)
	}

	shutdownCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	logger.Info("repoforge-worker ready", "list_key", cfg.Queue.ListKey, "block_timeout", cfg.Queue.BlockTimeout)

	for {
		select {
		case <-shutdownCtx.Done():
			logger.Info("shutting down, waiting for in-flight tasks")
			if err := r.Shutdown(30 * time.Second); err != nil {
				logger.Warn("shutdown timed out with tasks still running", "error", err)
			}
			logger.Info("repoforge-worker stopped")
			return
		default:
		}

		taskID, err := q.Dequeue(shutdownCtx)
		if err != nil {
			if err == queue.ErrEmpty || shutdownCtx.Err() != nil {
				continue
			}
			errorHandler.HandleError(shutdownCtx, err, observability.ErrorContext{Method: "queue.Dequeue"})
			time.Sleep(time.Second)
			continue
		}

		task, ok, err := jobsStore.Get(shutdownCtx, taskID)
		if err != nil || !ok {
			logger.Warn("dequeued task id has no matching row, dropping", "task_id", taskID, "error", err)
			_ = q.Ack(shutdownCtx, taskID)
			continue
		}
		repo, ok, err := jobsStore.GetRepository(shutdownCtx, task.RepoID)
		if err != nil || !ok {
			logger.Warn("dequeued task's repository is missing, dropping", "task_id", taskID, "repo_id", task.RepoID, "error", err)
			_ = q.Ack(shutdownCtx, taskID)
			continue
		}

		if err := r.Submit(task, repo); err != nil {
			// Already running in this process (shouldn't happen for a
			// freshly dequeued task) or the runner rejected it outright;
			// ack now since OnDone will never fire for it.
			logger.Warn("submit failed, acking to avoid a poison message", "task_id", taskID, "error", err)
			if ackErr := q.Ack(shutdownCtx, taskID); ackErr != nil {
				logger.Error("failed to ack rejected task", "task_id", taskID, "error", ackErr)
			}
		}
	}
}
