package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// startBuildTool returns the tool definition for start_build.
func startBuildTool() mcp.Tool {
	return mcp.Tool{
		Name:        "start_build",
		Description: "Start a background catalog build over a directory tree",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"root": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the directory to catalog (defaults to the configured root)",
				},
			},
		},
	}
}

// resumeBuildTool returns the tool definition for resume_build.
func resumeBuildTool() mcp.Tool {
	return mcp.Tool{
		Name:        "resume_build",
		Description: "Resume a paused or interrupted catalog build from its checkpoint",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getProgressTool returns the tool definition for get_progress.
func getProgressTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_progress",
		Description: "Get the current build state, counters, and completion percentage",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// searchFilesTool returns the tool definition for search_files.
func searchFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_files",
		Description: "Search the catalog with a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language description of the files to find",
				},
			},
			Required: []string{"query"},
		},
	}
}

// openFileTool returns the tool definition for open_file.
func openFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "open_file",
		Description: "Open a cataloged file with the host's default application",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the file to open",
				},
			},
			Required: []string{"path"},
		},
	}
}

// catalogStatsTool returns the tool definition for catalog_stats.
func catalogStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "catalog_stats",
		Description: "Summarize the catalog: entry counts by kind and status, total size",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
