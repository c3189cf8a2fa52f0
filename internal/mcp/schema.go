// Package mcp implements the Model Context Protocol server for Conexus.
package mcp

import "encoding/json"

// Tool names exposed by the MCP server
const (
	ToolContextSearch         = "context.search"
	ToolContextGetRelatedInfo = "context.get_related_info"
	ToolContextIndexControl   = "context.index_control"
	ToolContextExplain        = "context.explain"
	ToolContextGrep           = "context.grep"
)

// Resource URI scheme
const (
	ResourceScheme = "engine"
	ResourceFiles  = "files"
)

// SearchRequest represents the input for context.search tool
type SearchRequest struct {
	Query       string         `json:"query"`
	WorkContext *WorkContext   `json:"work_context,omitempty"`
	TopK        int            `json:"top_k,omitempty"`
	Offset      int            `json:"offset,omitempty"` // For pagination
	Filters     *SearchFilters `json:"filters,omitempty"`
}

// WorkContext provides information about the user's current working context
type WorkContext struct {
	ActiveFile    string   `json:"active_file,omitempty"`
	GitBranch     string   `json:"git_branch,omitempty"`
	OpenTicketIDs []string `json:"open_ticket_ids,omitempty"`
}

// SearchFilters defines filtering options for search
type SearchFilters struct {
	SourceTypes []string            `json:"source_types,omitempty"`
	DateRange   *DateRange          `json:"date_range,omitempty"`
	WorkContext *WorkContextFilters `json:"work_context,omitempty"`
}

// WorkContextFilters defines filters based on work context
type WorkContextFilters struct {
	ActiveFile      string   `json:"active_file,omitempty"`
	GitBranch       string   `json:"git_branch,omitempty"`
	OpenTicketIDs   []string `json:"open_ticket_ids,omitempty"`
	CurrentStoryID  string   `json:"current_story_id,omitempty"`
	BoostActive     bool     `json:"boost_active,omitempty"` // Boost results related to active file/tickets
}

// DateRange specifies a time range filter
type DateRange struct {
	From string `json:"from,omitempty"` // ISO 8601 date-time
	To   string `json:"to,omitempty"`   // ISO 8601 date-time
}

// SearchResponse represents the output of context.search tool
type SearchResponse struct {
	Results    []SearchResultItem `json:"results"`
	TotalCount int                `json:"total_count"`
	QueryTime  float64            `json:"query_time_ms"`
	Offset     int                `json:"offset,omitempty"`
	Limit      int                `json:"limit,omitempty"`
	HasMore    bool               `json:"has_more,omitempty"`
}

// SearchResultItem represents a single search result
type SearchResultItem struct {
	ID         string                 `json:"id"`
	Content    string                 `json:"content"`
	Score      float32                `json:"score"`
	SourceType string                 `json:"source_type"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// GetRelatedInfoRequest represents the input for context.get_related_info tool
type GetRelatedInfoRequest struct {
	FilePath string `json:"file_path,omitempty"`
	TicketID string `json:"ticket_id,omitempty"`
}

// RelatedItem represents a single related item with relevance score
type RelatedItem struct {
	ID         string                 `json:"id"`
	Content    string                 `json:"content"`
	Score      float32                `json:"score"`
	SourceType string                 `json:"source_type"`
	FilePath   string                 `json:"file_path,omitempty"`
	StartLine  int                    `json:"start_line,omitempty"`
	EndLine    int                    `json:"end_line,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// GetRelatedInfoResponse represents the output of context.get_related_info tool
type GetRelatedInfoResponse struct {
	Summary       string              `json:"summary"`
	RelatedItems  []RelatedItem       `json:"related_items"`
	RelatedPRs    []string            `json:"related_prs,omitempty"`
	RelatedIssues []string            `json:"related_issues,omitempty"`
	Discussions   []DiscussionSummary `json:"discussions,omitempty"`
}

// DiscussionSummary provides a summary of a Slack discussion
type DiscussionSummary struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"`
	Summary   string `json:"summary"`
}

// IndexControlRequest represents the input for context.index_control tool.
// It only supports the "status" action: this tool reports on indexing that
// the task-submission path already triggered, it does not trigger indexing
// itself.
type IndexControlRequest struct {
	Action string `json:"action"` // "status"
}

// IndexControlResponse represents the output of context.index_control tool
type IndexControlResponse struct {
	Status      string                 `json:"status"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	IndexStatus *IndexStatus           `json:"index_status,omitempty"`
}

// IndexStatus represents the current status of indexing operations
type IndexStatus struct {
	IsIndexing     bool          `json:"is_indexing"`
	Phase          string        `json:"phase"`
	Progress       float64       `json:"progress"`
	FilesProcessed int           `json:"files_processed"`
	TotalFiles     int           `json:"total_files"`
	ChunksCreated  int           `json:"chunks_created"`
	StartTime      string        `json:"start_time,omitempty"`
	EstimatedEnd   string        `json:"estimated_end,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	Metrics        *IndexMetrics `json:"metrics,omitempty"`
}

// IndexMetrics provides statistics about indexing operations
type IndexMetrics struct {
	TotalFiles      int     `json:"total_files"`
	IndexedFiles    int     `json:"indexed_files"`
	SkippedFiles    int     `json:"skipped_files"`
	TotalChunks     int     `json:"total_chunks"`
	Duration        float64 `json:"duration_seconds"`
	BytesProcessed  int64   `json:"bytes_processed"`
	StateSize       int64   `json:"state_size_bytes"`
	IncrementalSave float64 `json:"incremental_save_seconds"`
}

// ExplainRequest represents the input for context.explain tool
type ExplainRequest struct {
	Target  string `json:"target"`            // Symbol, file path, or concept to explain
	Context string `json:"context,omitempty"` // Free-form hint about why the caller is asking
	Depth   string `json:"depth,omitempty"`   // "brief", "detailed" (default), "comprehensive"
}

// CodeExample is a snippet surfaced to back up an explanation
type CodeExample struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Language    string `json:"language,omitempty"`
}

// ExplainResponse represents the output of context.explain tool
type ExplainResponse struct {
	Explanation string                 `json:"explanation"`
	Examples    []CodeExample          `json:"examples,omitempty"`
	Related     []RelatedItem          `json:"related,omitempty"`
	Complexity  string                 `json:"complexity"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// GrepRequest represents the input for context.grep tool
type GrepRequest struct {
	Pattern         string `json:"pattern"`
	Path            string `json:"path,omitempty"`    // defaults to "."
	Include         string `json:"include,omitempty"` // glob, e.g. "*.go"
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
	Context         int    `json:"context,omitempty"` // lines of context around a match, default 3
}

// GrepResult is a single pattern match with surrounding context
type GrepResult struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
	Match   string `json:"match"`
}

// GrepResponse represents the output of context.grep tool
type GrepResponse struct {
	Results    []GrepResult `json:"results"`
	TotalCount int          `json:"total_count"`
	SearchTime float64      `json:"search_time_ms"`
}

// ToolDefinition represents an MCP tool definition
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ResourceDefinition represents an MCP resource
type ResourceDefinition struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// GetToolDefinitions returns all tool definitions for the MCP server
func GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolContextSearch,
			Description: "Performs a comprehensive search using the user's query and current working context to find the most relevant code, discussions, and documents.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {
						"type": "string",
						"description": "The user's natural language query."
					},
					"work_context": {
						"type": "object",
						"properties": {
							"active_file": {"type": "string"},
							"git_branch": {"type": "string"},
							"open_ticket_ids": {"type": "array", "items": {"type": "string"}}
						}
					},
					"top_k": {
						"type": "integer",
						"default": 20,
						"maximum": 100
					},
					"offset": {
						"type": "integer",
						"default": 0,
						"minimum": 0
					},
					"filters": {
						"type": "object",
						"properties": {
							"source_types": {
								"type": "array",
								"items": {"type": "string", "enum": ["file", "slack", "github", "jira"]}
							},
							"date_range": {
								"type": "object",
								"properties": {
									"from": {"type": "string", "format": "date-time"},
									"to": {"type": "string", "format": "date-time"}
								}
							},
							"work_context": {
								"type": "object",
								"properties": {
									"active_file": {"type": "string"},
									"git_branch": {"type": "string"},
									"open_ticket_ids": {"type": "array", "items": {"type": "string"}},
									"boost_active": {"type": "boolean", "default": true}
								}
							}
						}
					}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        ToolContextGetRelatedInfo,
			Description: "Finds information directly related to the user's active file or ticket. Use this when the user asks a vague question like 'what's the history of this file?'",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"file_path": {
						"type": "string",
						"description": "Path to the file to get related info for"
					},
					"ticket_id": {
						"type": "string",
						"description": "Ticket ID to get related info for"
					}
				}
			}`),
		},
		{
			Name:        ToolContextIndexControl,
			Description: "Reports on the state of the background index. Read-only: it does not start, stop, or trigger indexing — submit a task through the repository API for that.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"action": {
						"type": "string",
						"enum": ["status"]
					}
				},
				"required": ["action"]
			}`),
		},
		{
			Name:        ToolContextExplain,
			Description: "Explains a symbol, file, or concept using indexed code and documentation as grounding.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"target": {
						"type": "string",
						"description": "Symbol, file path, or concept to explain"
					},
					"context": {
						"type": "string",
						"description": "Why the caller is asking, to tailor the explanation"
					},
					"depth": {
						"type": "string",
						"enum": ["brief", "detailed", "comprehensive"],
						"default": "detailed"
					}
				},
				"required": ["target"]
			}`),
		},
		{
			Name:        ToolContextGrep,
			Description: "Searches files on disk under the given path for a literal text pattern (regex metacharacters are matched literally), with surrounding context.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"pattern": {"type": "string"},
					"path": {"type": "string", "default": "."},
					"include": {"type": "string", "description": "glob filter, e.g. *.go"},
					"case_insensitive": {"type": "boolean", "default": false},
					"context": {"type": "integer", "default": 3}
				},
				"required": ["pattern"]
			}`),
		},
	}
}
