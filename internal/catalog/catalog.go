// Package catalog persists the file catalog and build checkpoint in SQLite.
// It is the single source of truth for both build progress and search:
// entries and the job record live in one database so progress and data can
// never diverge.
package catalog

import (
	"context"

	"github.com/filedex/filedex/pkg/types"
)

// Store is the persistence contract used by the build orchestrator and the
// search engine. Implementations must provide atomic per-entry replace
// semantics: a crash mid-write leaves the prior entry (or none) intact.
type Store interface {
	// UpsertEntry inserts or replaces the entry keyed by path. Failures are
	// wrapped in types.ErrStoreWrite.
	UpsertEntry(ctx context.Context, entry *types.CatalogEntry) error
	GetEntry(ctx context.Context, path string) (*types.CatalogEntry, error)
	ListEntries(ctx context.Context) ([]*types.CatalogEntry, error)
	DeleteEntry(ctx context.Context, path string) error

	// SearchText returns processed entries lexically matching the query
	// terms, scored by normalized BM25.
	SearchText(ctx context.Context, query string, limit int) ([]LexicalResult, error)

	// ListEmbeddings returns path/vector pairs for processed entries that
	// have a stored embedding.
	ListEmbeddings(ctx context.Context) ([]EmbeddingRow, error)

	// SaveJob persists the singleton build job/checkpoint record.
	SaveJob(ctx context.Context, job *types.BuildJob) error
	// LoadJob returns the persisted job, or types.ErrNotFound.
	LoadJob(ctx context.Context) (*types.BuildJob, error)

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// LexicalResult is one full-text match.
type LexicalResult struct {
	Path    string
	Score   float64 // Normalized to (0, 1], higher is better
	Snippet string
}

// EmbeddingRow pairs an entry path with its stored vector.
type EmbeddingRow struct {
	Path   string
	Vector []float32
}

// Stats summarizes the catalog contents.
type Stats struct {
	TotalEntries   int
	TotalSizeBytes int64
	ByKind         map[string]int
	ByStatus       map[string]int
}
