// Package describer turns extracted file content into natural-language
// descriptions and embedding vectors via an AI provider. Two providers are
// supported: a local Ollama-compatible endpoint and a cloud
// OpenAI-compatible API.
package describer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/filedex/filedex/pkg/types"
)

// Provider names.
const (
	ProviderLocal = "local"
	ProviderCloud = "cloud"
)

// maxContentPreview bounds how much extracted text goes into the prompt.
const maxContentPreview = 2000

// Request carries everything known about a file that can inform its
// description.
type Request struct {
	Path     string
	Kind     types.FileKind
	Content  string
	Metadata map[string]any
}

// Description is the AI output for one file.
type Description struct {
	Summary   string
	Embedding []float32
}

// Describer generates descriptions and embeddings.
type Describer interface {
	// Describe produces a short searchable summary of the file and, when
	// the provider supports it, an embedding of that summary.
	Describe(ctx context.Context, req Request) (*Description, error)

	// EmbedQuery embeds free search text in the same vector space as the
	// stored descriptions.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// SupportsEmbeddings reports whether EmbedQuery and Description
	// embeddings are available.
	SupportsEmbeddings() bool

	// Provider returns the provider name.
	Provider() string

	// Close releases held resources.
	Close() error
}

// Cache memoizes descriptions by content hash so rebuilding an unchanged
// corpus costs no provider calls.
type Cache struct {
	cache *lru.Cache[string, *Description]
}

// NewCache creates a description cache with LRU eviction.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 2048
	}
	cache, err := lru.New[string, *Description](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Description](2048)
	}
	return &Cache{cache: cache}
}

// Get returns a deep copy so caller mutations never reach the cache.
func (c *Cache) Get(hash string) (*Description, bool) {
	d, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	vec := make([]float32, len(d.Embedding))
	copy(vec, d.Embedding)
	return &Description{Summary: d.Summary, Embedding: vec}, true
}

// Set stores a description.
func (c *Cache) Set(hash string, d *Description) {
	c.cache.Add(hash, d)
}

// Size returns the current cache length.
func (c *Cache) Size() int {
	return c.cache.Len()
}

// RequestHash keys the cache on everything that shapes the prompt.
func RequestHash(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Path))
	h.Write([]byte(req.Kind))
	h.Write([]byte(req.Content))
	h.Write([]byte(metadataLines(req.Metadata)))
	return hex.EncodeToString(h.Sum(nil))
}

// buildPrompt assembles the description prompt: filename first, then known
// metadata, then a bounded content preview.
func buildPrompt(req Request) string {
	name := req.Path
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	b.WriteString("Describe this file in 1-2 sentences for search purposes:\n")
	fmt.Fprintf(&b, "Filename: %s\n", name)
	if req.Kind != "" {
		fmt.Fprintf(&b, "Type: %s\n", req.Kind)
	}
	if lines := metadataLines(req.Metadata); lines != "" {
		b.WriteString(lines)
	}
	if req.Content != "" {
		preview := req.Content
		if len(preview) > maxContentPreview {
			preview = preview[:maxContentPreview] + "..."
		}
		fmt.Fprintf(&b, "Content preview: %s\n", preview)
	}
	b.WriteString("\nProvide a concise description focusing on what this file contains and what someone might search for to find it:")
	return b.String()
}

// metadataLines renders metadata deterministically, sorted by key.
func metadataLines(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, meta[k])
	}
	return b.String()
}

// fallbackSummary is used when the provider returns empty output.
func fallbackSummary(path string) string {
	name := path
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return "File: " + name
}
