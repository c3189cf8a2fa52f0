// Command repoforge-api is the thin HTTP+SSE surface in front of the
// ingestion pipeline: it accepts submissions, reports status, streams
// progress, publishes cancel flags, and serves a read-only MCP query
// endpoint over the same vector store the worker populates.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ferg-cod3s/conexus/internal/cancel"
	"github.com/ferg-cod3s/conexus/internal/config"
	"github.com/ferg-cod3s/conexus/internal/embedding"
	"github.com/ferg-cod3s/conexus/internal/filestate"
	"github.com/ferg-cod3s/conexus/internal/indexer"
	"github.com/ferg-cod3s/conexus/internal/jobs"
	"github.com/ferg-cod3s/conexus/internal/mcp"
	"github.com/ferg-cod3s/conexus/internal/middleware"
	"github.com/ferg-cod3s/conexus/internal/observability"
	"github.com/ferg-cod3s/conexus/internal/progress"
	"github.com/ferg-cod3s/conexus/internal/protocol"
	"github.com/ferg-cod3s/conexus/internal/queue"
	"github.com/ferg-cod3s/conexus/internal/reconcile"
	"github.com/ferg-cod3s/conexus/internal/security/auth"
	"github.com/ferg-cod3s/conexus/internal/security/ratelimit"
	"github.com/ferg-cod3s/conexus/internal/tls"
	"github.com/ferg-cod3s/conexus/internal/vectorstore/sqlite"
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
		Output:        os.Stdout,
		AddSource:     true,
		SentryEnabled: cfg.Observability.Sentry.Enabled,
	})
	logger.Info("repoforge-api starting", "version", Version, "host", cfg.Server.Host, "port", cfg.Server.Port)

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
		metrics = observability.NewMetricsCollector("repoforge_api")
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

	if err := embedding.Register(&embedding.AnthropicProvider{}); err != nil {
		logger.Warn("anthropic embedding provider already registered", "error", err)
	}
	embedProvider, err := embedding.Get(cfg.Embedding.Provider)
	if err != nil {
		logger.Error("unknown embedding provider", "provider", cfg.Embedding.Provider, "error", err)
		os.Exit(1)
	}
	embedder, err := embedProvider.Create(map[string]interface{}{
		"api_key":    cfg.Embedding.Config["api_key"],
		"model":      cfg.Embedding.Model,
		"dimensions": cfg.Embedding.Dimensions,
	})
	if err != nil {
		logger.Error("failed to create embedder", "provider", cfg.Embedding.Provider, "error", err)
		os.Exit(1)
	}

	idx := indexer.NewIndexController("./data/indexer_state.json")
	mcpServer := mcp.NewServer(os.Stdin, os.Stdout, vectors, embedder, idx, errorHandler, metrics)

	cancelReg := cancel.NewRegistry(redisClient, 0)
	bus := progress.NewBus(redisClient)
	q := queue.New(redisClient, cfg.Queue.ListKey, cfg.Queue.ProcessingKey, cfg.Queue.BlockTimeout)
	reconciler := reconcile.New(jobsStore, fileState, cfg.Clone.RootPath)

	srv := &apiServer{
		cfg:        cfg,
		jobs:       jobsStore,
		cancel:     cancelReg,
		bus:        bus,
		queue:      q,
		reconciler: reconciler,
		mcp:        mcpServer,
		logger:     logger,
		metrics:    metrics,
		errHandler: errorHandler,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})
	mux.HandleFunc("/system/health", srv.handleSystemHealth)
	mux.HandleFunc("/api/repos", srv.handleSubmit)
	mux.HandleFunc("/api/tasks/", srv.handleTaskRoutes)
	mux.HandleFunc("/mcp", srv.handleMCP)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":"repoforge-api","version":"%s"}`, Version)
	})

	var tlsManager *tls.Manager
	if cfg.TLS.Enabled {
		tlsManager, err = tls.NewManager(&cfg.TLS, logger)
		if err != nil {
			logger.Error("failed to initialize TLS manager", "error", err)
			os.Exit(1)
		}
		if err := tlsManager.ValidateCertificates(); err != nil {
			logger.Error("certificate validation failed", "error", err)
			os.Exit(1)
		}
	}

	var authMiddleware *middleware.AuthMiddleware
	if cfg.Auth.Enabled {
		jwtManager, err := auth.NewJWTManager(cfg.Auth.PrivateKey, cfg.Auth.PublicKey, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenExpiry)
		if err != nil {
			logger.Error("failed to initialize JWT manager", "error", err)
			os.Exit(1)
		}
		authMiddleware = middleware.NewAuthMiddleware(jwtManager)
		logger.Info("JWT authentication enabled", "issuer", cfg.Auth.Issuer, "audience", cfg.Auth.Audience)
	}

	var rateLimitMiddleware *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rateLimiter, err := ratelimit.NewRateLimiter(ratelimit.Config{
			Enabled: cfg.RateLimit.Enabled,
			Algorithm: func() ratelimit.Algorithm {
				if cfg.RateLimit.Algorithm == "token_bucket" {
					return ratelimit.TokenBucket
				}
				return ratelimit.SlidingWindow
			}(),
			Redis: ratelimit.RedisConfig{
				Enabled:   cfg.RateLimit.Redis.Enabled,
				Addr:      cfg.RateLimit.Redis.Addr,
				Password:  cfg.RateLimit.Redis.Password,
				DB:        cfg.RateLimit.Redis.DB,
				KeyPrefix: cfg.RateLimit.Redis.KeyPrefix,
			},
			Default:         ratelimit.LimitConfig{Requests: cfg.RateLimit.Default.Requests, Window: cfg.RateLimit.Default.Window},
			Health:          ratelimit.LimitConfig{Requests: cfg.RateLimit.Health.Requests, Window: cfg.RateLimit.Health.Window},
			Webhook:         ratelimit.LimitConfig{Requests: cfg.RateLimit.Webhook.Requests, Window: cfg.RateLimit.Webhook.Window},
			Auth:            ratelimit.LimitConfig{Requests: cfg.RateLimit.Auth.Requests, Window: cfg.RateLimit.Auth.Window},
			BurstMultiplier: cfg.RateLimit.BurstMultiplier,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		})
		if err != nil {
			logger.Error("failed to initialize rate limiter", "error", err)
			os.Exit(1)
		}
		rateLimitMiddleware = middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
			RateLimiter:      rateLimiter,
			MetricsCollector: metrics,
			SkipPaths:        cfg.RateLimit.SkipPaths,
			SkipIPs:          cfg.RateLimit.SkipIPs,
			TrustedProxies:   cfg.RateLimit.TrustedProxies,
		}, logger)
	}

	securityMiddleware := middleware.NewSecurityMiddleware(middleware.SecurityConfig{
		CSP:                 middleware.CSPConfig(cfg.Security.CSP),
		HSTS:                middleware.HSTSConfig(cfg.Security.HSTS),
		XFrameOptions:       cfg.Security.XFrameOptions,
		XContentTypeOptions: cfg.Security.XContentTypeOptions,
		ReferrerPolicy:      cfg.Security.ReferrerPolicy,
		PermissionsPolicy:   cfg.Security.PermissionsPolicy,
	}, logger)

	corsMiddleware := middleware.NewCORSMiddleware(middleware.CORSConfig{
		Enabled:          cfg.CORS.Enabled,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}, logger)

	// Apply middleware in the same order the MCP server does: rate
	// limiting first, then CORS, then security headers, then auth.
	var handler http.Handler = mux
	if rateLimitMiddleware != nil {
		handler = rateLimitMiddleware.Middleware(handler)
	}
	handler = corsMiddleware.Middleware(handler)
	handler = securityMiddleware.Middleware(handler)
	if authMiddleware != nil {
		handler = authMiddleware.Middleware(handler)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived
		IdleTimeout:  120 * time.Second,
	}
	if tlsManager != nil {
		server.TLSConfig = tlsManager.GetTLSConfig()
	}

	go func() {
		logger.Info("server starting", "addr", addr)
		var err error
		if tlsManager != nil {
			if cfg.TLS.AutoCert {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			}
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
}

// apiServer holds the shared dependencies HTTP handlers close over.
type apiServer struct {
	cfg        *config.Config
	jobs       *jobs.Store
	cancel     *cancel.Registry
	bus        *progress.Bus
	queue      *queue.Queue
	reconciler *reconcile.Reconciler
	mcp        *mcp.Server
	logger     *observability.Logger
	metrics    *observability.MetricsCollector
	errHandler *observability.ErrorHandler
}

type submitRequest struct {
	URL         string `json:"url"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

type submitResponse struct {
	RepositoryID string `json:"repository_id"`
	TaskID       string `json:"task_id"`
}

// handleSubmit creates a Repository and Task row for a new ingestion
// request and enqueues the task id for a worker to pick up.
func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	taskType := jobs.TaskType(req.Type)
	switch taskType {
	case jobs.TaskFullProcess, jobs.TaskIncrementalSync, jobs.TaskWikiRegenerate, jobs.TaskParseOnly:
	case "":
		taskType = jobs.TaskFullProcess
	default:
		http.Error(w, fmt.Sprintf("unknown task type: %s", req.Type), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	repoID := uuid.NewString()
	if _, err := s.jobs.CreateRepository(ctx, repoID, req.URL, req.DisplayName); err != nil {
		s.errHandler.HandleError(ctx, err, observability.ErrorContext{Method: "CreateRepository"})
		http.Error(w, "failed to create repository", http.StatusInternalServerError)
		return
	}

	taskID := uuid.NewString()
	if _, err := s.jobs.Create(ctx, taskID, repoID, taskType); err != nil {
		if conflict, ok := err.(*jobs.ErrConflict); ok {
			http.Error(w, conflict.Error(), http.StatusConflict)
			return
		}
		s.errHandler.HandleError(ctx, err, observability.ErrorContext{Method: "CreateTask"})
		http.Error(w, "failed to create task", http.StatusInternalServerError)
		return
	}

	if err := s.queue.Enqueue(ctx, taskID); err != nil {
		s.errHandler.HandleError(ctx, err, observability.ErrorContext{Method: "Enqueue"})
		http.Error(w, "failed to enqueue task", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(submitResponse{RepositoryID: repoID, TaskID: taskID})
}

// handleTaskRoutes dispatches /api/tasks/{id}, /api/tasks/{id}/events, and
// /api/tasks/{id}/cancel by trailing path segment.
func (s *apiServer) handleTaskRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path[len("/api/tasks/"):]
	taskID := path
	action := ""
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			taskID = path[:i]
			action = path[i+1:]
			break
		}
	}
	if taskID == "" {
		http.Error(w, "task id required", http.StatusBadRequest)
		return
	}

	switch action {
	case "":
		s.handleTaskStatus(w, r, taskID)
	case "events":
		s.handleTaskEvents(w, r, taskID)
	case "cancel":
		s.handleTaskCancel(w, r, taskID)
	default:
		http.NotFound(w, r)
	}
}

func (s *apiServer) handleTaskStatus(w http.ResponseWriter, r *http.Request, taskID string) {
	task, ok, err := s.jobs.Get(r.Context(), taskID)
	if err != nil {
		http.Error(w, "failed to read task", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

// handleTaskEvents streams progress events over SSE, subscribing to the
// Redis-backed bus since the task may be executing on any worker process.
func (s *apiServer) handleTaskEvents(w http.ResponseWriter, r *http.Request, taskID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	events, stop := s.bus.Subscribe(ctx, taskID)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			if ev.Status.Terminal() {
				return
			}
		}
	}
}

func (s *apiServer) handleTaskCancel(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.cancel.Set(r.Context(), taskID); err != nil {
		http.Error(w, "failed to set cancel flag", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *apiServer) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.reconciler.Report(r.Context())
	if err != nil {
		s.errHandler.HandleError(r.Context(), err, observability.ErrorContext{Method: "reconcile.Report"})
		http.Error(w, "failed to build health report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// handleMCP serves the read-only MCP query surface as JSON-RPC over HTTP,
// mirroring the teacher's stdio dispatch through the same Handle method.
func (s *apiServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONRPCError(w, nil, protocol.ParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != protocol.JSONRPCVersion || req.Method == "" {
		s.sendJSONRPCError(w, req.ID, protocol.InvalidRequest, "invalid request")
		return
	}

	result, err := s.mcp.Handle(req.Method, req.Params)
	if err != nil {
		if protoErr, ok := err.(*protocol.Error); ok {
			s.sendJSONRPCError(w, req.ID, protoErr.Code, protoErr.Message)
			return
		}
		s.sendJSONRPCError(w, req.ID, protocol.InternalError, err.Error())
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		s.sendJSONRPCError(w, req.ID, protocol.InternalError, "failed to marshal result")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.Response{JSONRPC: protocol.JSONRPCVersion, Result: resultJSON, ID: req.ID})
}

func (s *apiServer) sendJSONRPCError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.Response{
		JSONRPC: protocol.JSONRPCVersion,
		Error:   &protocol.Error{Code: code, Message: message},
		ID:      id,
	})
}
