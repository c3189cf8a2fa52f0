package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ferg-cod3s/conexus/internal/embedding"
	"github.com/ferg-cod3s/conexus/internal/indexer"
	"github.com/ferg-cod3s/conexus/internal/observability"
	"github.com/ferg-cod3s/conexus/internal/protocol"
	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

// Server implements the MCP protocol server. It is a read-only query
// surface over the same SQLite-backed vector store and indexer the
// ingestion pipeline writes to — it never mutates a repository itself.
type Server struct {
	vectorStore  vectorstore.VectorStore
	embedder     embedding.Embedder
	jsonrpcSrv   *protocol.Server
	indexer      indexer.IndexController
	errorHandler *observability.ErrorHandler
	metrics      *observability.MetricsCollector
	searchCache  *SearchCache
}

// NewServer creates a new MCP server. idx, errorHandler, and metrics may be
// nil; when nil, their associated behavior (index control, structured error
// logging, cache metrics) is skipped rather than attempted.
func NewServer(
	reader io.Reader,
	writer io.Writer,
	vectorStore vectorstore.VectorStore,
	embedder embedding.Embedder,
	idx indexer.IndexController,
	errorHandler *observability.ErrorHandler,
	metrics *observability.MetricsCollector,
) *Server {
	s := &Server{
		vectorStore:  vectorStore,
		embedder:     embedder,
		indexer:      idx,
		errorHandler: errorHandler,
		metrics:      metrics,
		searchCache:  NewSearchCache(500, 5*time.Minute),
	}

	// Create JSON-RPC server with this server as handler
	s.jsonrpcSrv = protocol.NewServer(reader, writer, s)

	return s
}

// Handle implements protocol.Handler interface
func (s *Server) Handle(method string, params json.RawMessage) (interface{}, error) {
	ctx := context.Background()
	
	switch method {
	case "tools/list":
		return s.handleToolsList(ctx)
	case "tools/call":
		return s.handleToolsCall(ctx, params)
	case "resources/list":
		return s.handleResourcesList(ctx, params)
	case "resources/read":
		return s.handleResourcesRead(ctx, params)
	default:
		return nil, &protocol.Error{
			Code:    protocol.MethodNotFound,
			Message: fmt.Sprintf("method not found: %s", method),
		}
	}
}

// Serve starts the MCP server
func (s *Server) Serve() error {
	return s.jsonrpcSrv.Serve()
}

// Close releases resources
func (s *Server) Close() error {
	if s.vectorStore != nil {
		return s.vectorStore.Close()
	}
	return nil
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(ctx context.Context) (interface{}, error) {
	return map[string]interface{}{
		"tools": GetToolDefinitions(),
	}, nil
}

// ToolCallRequest represents a tool call request
type ToolCallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall executes a tool call
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req ToolCallRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &protocol.Error{
			Code:    protocol.InvalidParams,
			Message: fmt.Sprintf("invalid parameters: %v", err),
		}
	}
	
	switch req.Name {
	case ToolContextSearch:
		return s.handleContextSearch(ctx, req.Arguments)
	case ToolContextGetRelatedInfo:
		return s.handleGetRelatedInfo(ctx, req.Arguments)
	case ToolContextIndexControl:
		return s.handleIndexControl(ctx, req.Arguments)
	case ToolContextExplain:
		return s.handleContextExplain(ctx, req.Arguments)
	case ToolContextGrep:
		return s.handleContextGrep(ctx, req.Arguments)
	default:
		return nil, &protocol.Error{
			Code:    protocol.MethodNotFound,
			Message: fmt.Sprintf("unknown tool: %s", req.Name),
		}
	}
}

// ResourcesListRequest represents a resources/list request
type ResourcesListRequest struct {
	URI string `json:"uri,omitempty"`
}

// handleResourcesList returns available resources
func (s *Server) handleResourcesList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req ResourcesListRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &protocol.Error{
				Code:    protocol.InvalidParams,
				Message: fmt.Sprintf("invalid parameters: %v", err),
			}
		}
	}
	
	// For now, return placeholder - will be implemented when indexer provides file listing
	return map[string]interface{}{
		"resources": []ResourceDefinition{
			{
				URI:         fmt.Sprintf("%s://%s/", ResourceScheme, ResourceFiles),
				Name:        "Indexed Files",
				Description: "Browse indexed project files",
				MimeType:    "application/x-directory",
			},
		},
	}, nil
}

// ResourcesReadRequest represents a resources/read request
type ResourcesReadRequest struct {
	URI string `json:"uri"`
}

// handleResourcesRead returns resource content
func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req ResourcesReadRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &protocol.Error{
			Code:    protocol.InvalidParams,
			Message: fmt.Sprintf("invalid parameters: %v", err),
		}
	}
	
	// For now, return placeholder - will be implemented when indexer provides file content
	return map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"uri":      req.URI,
				"mimeType": "text/plain",
				"text":     "Resource content not yet implemented",
			},
		},
	}, nil
}
