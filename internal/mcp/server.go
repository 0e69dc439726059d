// Package mcp exposes the catalog build pipeline and search engine as MCP
// tools over stdio, so any MCP-capable client can drive builds and query
// the catalog.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/filedex/filedex/internal/builder"
	"github.com/filedex/filedex/internal/catalog"
	"github.com/filedex/filedex/internal/config"
	"github.com/filedex/filedex/internal/describer"
	"github.com/filedex/filedex/internal/extractor"
	"github.com/filedex/filedex/internal/searcher"
)

const (
	// ServerName is the MCP server name.
	ServerName = "filedex"
	// ServerVersion is the current server version.
	ServerVersion = "1.0.0"
	// DatabaseFile is the catalog database name inside the data directory.
	DatabaseFile = "filedex.db"
)

// Server wraps the MCP server with application dependencies.
type Server struct {
	mcp         *server.MCPServer
	cfg         *config.Config
	store       catalog.Store
	builder     *builder.Builder
	searcher    *searcher.Searcher
	ai          describer.Describer
	logger      *log.Logger
	watchCancel context.CancelFunc
}

// NewServer wires storage, the AI provider, the build orchestrator, and
// the search engine behind an MCP tool surface.
func NewServer(cfg *config.Config) (*Server, error) {
	dataDir := cfg.Catalog.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := catalog.NewSQLiteStore(filepath.Join(dataDir, DatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	ai, err := describer.New(cfg.Provider)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize AI provider: %w", err)
	}

	// Stdout carries the MCP protocol; all logging goes to stderr.
	logger := log.New(os.Stderr, "[filedex] ", log.LstdFlags)

	b := builder.New(store, extractor.NewRegistry(), ai, builder.Options{
		MaxFileSize: int64(cfg.Scan.MaxFileSizeMB) * 1024 * 1024,
		ExcludeDir:  dataDir,
		Logger:      logger,
	})

	srch := searcher.New(store, ai, searcher.Options{
		SemanticWeight: cfg.Search.SemanticWeight,
		Limit:          cfg.Search.Limit,
		Logger:         logger,
	})

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		cfg:      cfg,
		store:    store,
		builder:  b,
		searcher: srch,
		ai:       ai,
		logger:   logger,
	}
	s.registerTools()

	// Watch mode: rebuild incrementally whenever the cataloged tree changes.
	if cfg.Scan.Watch && cfg.Catalog.RootDir != "" {
		watchCtx, cancel := context.WithCancel(context.Background())
		s.watchCancel = cancel
		go func() {
			logger.Printf("watch mode enabled over %s", cfg.Catalog.RootDir)
			err := b.WatchAndRebuild(watchCtx, cfg.Catalog.RootDir, 0)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("watch mode stopped: %v", err)
			}
		}()
	}

	return s, nil
}

// Serve runs the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()
	return server.ServeStdio(s.mcp)
}

// Close releases server resources. The active build, if any, is asked to
// pause so its checkpoint is durable before the store closes.
func (s *Server) Close() {
	if s.watchCancel != nil {
		s.watchCancel()
	}
	s.builder.Pause()
	s.builder.Wait()
	_ = s.ai.Close()
	_ = s.store.Close()
}

// registerTools registers all MCP tools.
func (s *Server) registerTools() {
	s.mcp.AddTool(startBuildTool(), s.handleStartBuild)
	s.mcp.AddTool(resumeBuildTool(), s.handleResumeBuild)
	s.mcp.AddTool(getProgressTool(), s.handleGetProgress)
	s.mcp.AddTool(searchFilesTool(), s.handleSearchFiles)
	s.mcp.AddTool(openFileTool(), s.handleOpenFile)
	s.mcp.AddTool(catalogStatsTool(), s.handleCatalogStats)
}
