package types

import "time"

// FileKind classifies a file for extractor selection.
type FileKind string

const (
	KindText        FileKind = "text"
	KindDocument    FileKind = "document"
	KindSpreadsheet FileKind = "spreadsheet"
	KindImage       FileKind = "image"
	KindAudio       FileKind = "audio"
	KindVideo       FileKind = "video"
	KindCode        FileKind = "code"
	KindArchive     FileKind = "archive"
	KindOther       FileKind = "other"
)

// EntryStatus describes the processing state of a catalog entry.
type EntryStatus string

const (
	StatusPending            EntryStatus = "pending"
	StatusProcessed          EntryStatus = "processed"
	StatusSkippedUnsupported EntryStatus = "skipped-unsupported"
	StatusError              EntryStatus = "error"
)

// CatalogEntry is the persisted record for a single cataloged file.
// Exactly one entry exists per distinct path; re-scans update in place.
type CatalogEntry struct {
	ID            int64
	Path          string // Absolute path, unique key
	Name          string // Base name, denormalized for display and FTS
	SizeBytes     int64
	ModTime       time.Time
	Kind          FileKind
	MimeType      string
	Fingerprint   string // Content hash; unchanged fingerprint means no reprocessing
	ExtractedText string // Normalized excerpt, may be empty for binary kinds
	Metadata      map[string]any
	Description   string    // AI-generated summary used for lexical matching and display
	Embedding     []float32 // Present only when the active provider supports embeddings
	Status        EntryStatus
	ErrorDetail   string // Set iff Status == StatusError
	ProcessedAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Searchable reports whether the entry may contribute to search ranking.
func (e *CatalogEntry) Searchable() bool {
	return e.Status == StatusProcessed
}

// SearchResult is a single ranked hit returned by the search engine.
type SearchResult struct {
	Entry    *CatalogEntry
	Score    float64 // Combined lexical + semantic relevance
	Lexical  float64
	Semantic float64
	Snippet  string // Human-readable context drawn from description or matched text
}

// SearchResponse is the external shape of a search answer.
type SearchResponse struct {
	Message string         `json:"message"`
	Files   []SearchFile   `json:"files"`
	Results []SearchResult `json:"-"`
}

// SearchFile is the display projection of a matched entry.
type SearchFile struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
