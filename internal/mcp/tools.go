package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/filedex/filedex/pkg/types"
)

// MCP error codes.
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeAlreadyRunning = -32001 // A build is already in progress
	ErrorCodeInvalidRoot    = -32002 // Root directory is missing or unreadable
	ErrorCodeNothingToRun   = -32003 // No resumable build exists
	ErrorCodeEmptyQuery     = -32004 // Query parameter is empty
)

// handleStartBuild handles the start_build tool invocation.
func (s *Server) handleStartBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	root := getStringDefault(args, "root", s.cfg.Catalog.RootDir)
	if root == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "no root directory given and none configured", map[string]interface{}{
			"param": "root",
		})
	}
	if !filepath.IsAbs(root) {
		return nil, newMCPError(ErrorCodeInvalidParams, "root must be an absolute path", map[string]interface{}{
			"param": "root",
			"value": root,
		})
	}

	job, err := s.builder.Start(ctx, root)
	switch {
	case errors.Is(err, types.ErrAlreadyRunning):
		return nil, newMCPError(ErrorCodeAlreadyRunning, "a build is already running", nil)
	case errors.Is(err, types.ErrInvalidRoot):
		return nil, newMCPError(ErrorCodeInvalidRoot, "root directory is not accessible", map[string]interface{}{
			"root":  root,
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "failed to start build", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"job_id":      job.ID,
		"state":       job.State,
		"root":        job.RootPath,
		"total_files": job.TotalFiles,
	})), nil
}

// handleResumeBuild handles the resume_build tool invocation.
func (s *Server) handleResumeBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job, err := s.builder.Resume(ctx)
	switch {
	case errors.Is(err, types.ErrNotFound):
		return nil, newMCPError(ErrorCodeNothingToRun, "no paused or interrupted build to resume", nil)
	case errors.Is(err, types.ErrAlreadyRunning):
		return nil, newMCPError(ErrorCodeAlreadyRunning, "a build is already running", nil)
	case errors.Is(err, types.ErrInvalidRoot):
		return nil, newMCPError(ErrorCodeInvalidRoot, "the original root directory is no longer accessible", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "failed to resume build", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"job_id":       job.ID,
		"state":        job.State,
		"root":         job.RootPath,
		"total_files":  job.TotalFiles,
		"current_path": job.CurrentPath,
	})), nil
}

// handleGetProgress handles the get_progress tool invocation. It always
// answers from the latest snapshot without blocking the pipeline.
func (s *Server) handleGetProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.builder.Progress(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read progress", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"state":          p.State,
		"processedCount": p.ProcessedCount,
		"skippedCount":   p.SkippedCount,
		"errorCount":     p.ErrorCount,
		"totalFiles":     p.TotalFiles,
		"currentPath":    p.CurrentPath,
		"percent":        p.Percent,
		"isComplete":     p.IsComplete,
		"errorDetail":    p.ErrorDetail,
	})), nil
}

// handleSearchFiles handles the search_files tool invocation.
func (s *Server) handleSearchFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param": "query",
		})
	}

	resp, err := s.searcher.Search(ctx, query)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	files := make([]interface{}, 0, len(resp.Files))
	for _, f := range resp.Files {
		files = append(files, map[string]interface{}{
			"path":        f.Path,
			"name":        f.Name,
			"description": f.Description,
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"message": resp.Message,
		"files":   files,
	})), nil
}

// handleOpenFile handles the open_file tool invocation: a pass-through to
// the host OS default-open mechanism.
func (s *Server) handleOpenFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param": "path",
		})
	}
	if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "path must be absolute", map[string]interface{}{
			"param": "path",
			"value": path,
		})
	}
	if _, err := os.Stat(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "file does not exist", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}

	if err := openWithDefaultApp(path); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to open file", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"opened": true,
		"path":   path,
	})), nil
}

// handleCatalogStats handles the catalog_stats tool invocation.
func (s *Server) handleCatalogStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read catalog stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"total_entries":    stats.TotalEntries,
		"total_size_bytes": stats.TotalSizeBytes,
		"by_kind":          stats.ByKind,
		"by_status":        stats.ByStatus,
	})), nil
}

// Helper functions

// arguments extracts the tool argument map, tolerating a missing one.
func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// newMCPError creates a properly formatted MCP error.
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error.
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

func getStringDefault(args map[string]interface{}, key, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}
