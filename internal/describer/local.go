package describer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/filedex/filedex/pkg/types"
)

// LocalProvider talks to an Ollama-compatible server over HTTP.
type LocalProvider struct {
	endpoint       string
	model          string
	embeddingModel string
	httpClient     *http.Client
	retry          RetryConfig
	cache          *Cache
}

// NewLocalProvider creates a provider for a local Ollama endpoint.
func NewLocalProvider(endpoint, model, embeddingModel string, timeout time.Duration, maxRetries int, cache *Cache) *LocalProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LocalProvider{
		endpoint:       strings.TrimRight(endpoint, "/"),
		model:          model,
		embeddingModel: embeddingModel,
		httpClient:     &http.Client{Timeout: timeout},
		retry:          DefaultRetryConfig(maxRetries),
		cache:          cache,
	}
}

func (p *LocalProvider) Describe(ctx context.Context, req Request) (*Description, error) {
	hash := RequestHash(req)
	if p.cache != nil {
		if d, ok := p.cache.Get(hash); ok {
			return d, nil
		}
	}

	summary, err := retryWithBackoff(ctx, p.retry, func() (string, error) {
		return p.generate(ctx, buildPrompt(req))
	})
	if err != nil {
		return nil, err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = fallbackSummary(req.Path)
	}

	d := &Description{Summary: summary}
	if p.embeddingModel != "" {
		vec, err := p.EmbedQuery(ctx, summary)
		if err != nil {
			// The summary is still usable without a vector, but an
			// unreachable server means the whole provider is down.
			if !retryable(err) {
				return nil, err
			}
		} else {
			d.Embedding = vec
		}
	}

	if p.cache != nil {
		p.cache.Set(hash, d)
	}
	return d, nil
}

func (p *LocalProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if !p.SupportsEmbeddings() {
		return nil, fmt.Errorf("no embedding model configured")
	}
	return retryWithBackoff(ctx, p.retry, func() ([]float32, error) {
		return p.embed(ctx, text)
	})
}

func (p *LocalProvider) SupportsEmbeddings() bool {
	return p.embeddingModel != ""
}

func (p *LocalProvider) Provider() string {
	return ProviderLocal
}

func (p *LocalProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// generate calls Ollama's non-streaming completion endpoint.
func (p *LocalProvider) generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model":  p.model,
		"prompt": prompt,
		"stream": false,
	}
	var out struct {
		Response string `json:"response"`
	}
	if err := p.post(ctx, "/api/generate", body, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

func (p *LocalProvider) embed(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model":  p.embeddingModel,
		"prompt": text,
	}
	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := p.post(ctx, "/api/embeddings", body, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from %s", p.embeddingModel)
	}
	return out.Embedding, nil
}

func (p *LocalProvider) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Connection refused or DNS failure means the local model server
		// is not running.
		return fmt.Errorf("%w: %s: %v", types.ErrProviderUnavailable, p.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d: %s", types.ErrProviderUnavailable, resp.StatusCode, raw)
		}
		return fmt.Errorf("ollama error %d: %s", resp.StatusCode, raw)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
