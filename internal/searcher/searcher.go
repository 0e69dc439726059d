// Package searcher answers natural-language queries over the catalog by
// combining a lexical full-text score with embedding cosine similarity.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/filedex/filedex/internal/catalog"
	"github.com/filedex/filedex/internal/describer"
	"github.com/filedex/filedex/pkg/types"
)

// candidateMultiplier widens the lexical candidate pool beyond the result
// limit so semantic re-ranking has room to promote entries.
const candidateMultiplier = 5

// Stopwords stripped during query tokenization. A query reduced to nothing
// yields an empty result, not an error.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "our": {}, "show": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "what": {},
	"where": {}, "which": {}, "with": {},
}

// Options tunes result ranking.
type Options struct {
	// SemanticWeight is the share of the final score from embedding
	// similarity; the lexical score gets the complement.
	SemanticWeight float64
	Limit          int
	Logger         *log.Logger
}

// Searcher ranks catalog entries against free-text queries.
type Searcher struct {
	store catalog.Store
	ai    describer.Describer
	opts  Options
}

// New creates a Searcher.
func New(store catalog.Store, ai describer.Describer, opts Options) *Searcher {
	if opts.SemanticWeight <= 0 || opts.SemanticWeight > 1 {
		opts.SemanticWeight = 0.7
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[search] ", log.LstdFlags)
	}
	return &Searcher{store: store, ai: ai, opts: opts}
}

// Search returns the ranked top matches for queryText. Semantic scoring
// degrades to lexical-only when the provider cannot embed the query; only
// store failures surface as errors.
func (s *Searcher) Search(ctx context.Context, queryText string) (*types.SearchResponse, error) {
	terms := Tokenize(queryText)
	if len(terms) == 0 {
		return &types.SearchResponse{
			Message: "Tell me what you're looking for and I'll search your files.",
			Files:   []types.SearchFile{},
		}, nil
	}
	query := strings.Join(terms, " ")

	lexical, err := s.store.SearchText(ctx, query, s.opts.Limit*candidateMultiplier)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	scores := make(map[string]*types.SearchResult)
	for _, lr := range lexical {
		scores[lr.Path] = &types.SearchResult{Lexical: lr.Score, Snippet: lr.Snippet}
	}

	semanticUsed := s.addSemanticScores(ctx, queryText, scores)

	results := make([]*types.SearchResult, 0, len(scores))
	for path, r := range scores {
		entry, err := s.store.GetEntry(ctx, path)
		if errors.Is(err, types.ErrNotFound) {
			// Deleted between candidate selection and assembly.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load result %s: %w", path, err)
		}
		if !entry.Searchable() {
			continue
		}
		r.Entry = entry
		if semanticUsed {
			r.Score = s.opts.SemanticWeight*r.Semantic + (1-s.opts.SemanticWeight)*r.Lexical
		} else {
			r.Score = r.Lexical
		}
		if r.Snippet == "" {
			r.Snippet = entry.Description
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.ProcessedAt.After(results[j].Entry.ProcessedAt)
	})
	if len(results) > s.opts.Limit {
		results = results[:s.opts.Limit]
	}

	return s.respond(queryText, results), nil
}

// addSemanticScores embeds the query and scores every stored vector,
// merging into the candidate map. Returns false when semantic scoring is
// unavailable, leaving ranking lexical-only.
func (s *Searcher) addSemanticScores(ctx context.Context, queryText string, scores map[string]*types.SearchResult) bool {
	if s.ai == nil || !s.ai.SupportsEmbeddings() {
		return false
	}

	queryVec, err := s.ai.EmbedQuery(ctx, queryText)
	if err != nil {
		s.opts.Logger.Printf("query embedding failed, falling back to lexical ranking: %v", err)
		return false
	}

	rows, err := s.store.ListEmbeddings(ctx)
	if err != nil {
		s.opts.Logger.Printf("loading embeddings failed, falling back to lexical ranking: %v", err)
		return false
	}
	if len(rows) == 0 {
		return false
	}

	for _, row := range rows {
		sim := catalog.CosineSimilarity(queryVec, row.Vector)
		if sim <= 0 {
			continue
		}
		if r, ok := scores[row.Path]; ok {
			r.Semantic = sim
		} else {
			scores[row.Path] = &types.SearchResult{Semantic: sim}
		}
	}
	return true
}

func (s *Searcher) respond(queryText string, results []*types.SearchResult) *types.SearchResponse {
	resp := &types.SearchResponse{Files: []types.SearchFile{}}
	for _, r := range results {
		resp.Results = append(resp.Results, *r)
		resp.Files = append(resp.Files, types.SearchFile{
			Path:        r.Entry.Path,
			Name:        r.Entry.Name,
			Description: r.Entry.Description,
		})
	}

	switch len(results) {
	case 0:
		resp.Message = fmt.Sprintf("I couldn't find any files matching %q.", queryText)
	case 1:
		resp.Message = fmt.Sprintf("I found 1 file matching %q.", queryText)
	default:
		resp.Message = fmt.Sprintf("I found %d files matching %q, most relevant first.", len(results), queryText)
	}
	return resp
}

// Tokenize lowercases the query, splits on non-word runes, and strips
// stopwords.
func Tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, skip := stopwords[f]; skip {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
