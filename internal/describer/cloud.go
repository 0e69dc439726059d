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

	"golang.org/x/time/rate"

	"github.com/filedex/filedex/pkg/types"
)

// Cloud defaults, OpenAI-compatible.
const (
	DefaultCloudEndpoint       = "https://api.openai.com"
	DefaultCloudModel          = "gpt-4o-mini"
	DefaultCloudEmbeddingModel = "text-embedding-3-small"

	cloudMaxTokens   = 500
	cloudTemperature = 0.3

	// Client-side throttle so a large build does not trip server limits.
	cloudRequestsPerSecond = 2
	cloudBurst             = 4
)

// CloudProvider talks to an OpenAI-compatible HTTP API.
type CloudProvider struct {
	endpoint       string
	apiKey         string
	model          string
	embeddingModel string
	httpClient     *http.Client
	limiter        *rate.Limiter
	retry          RetryConfig
	cache          *Cache
}

// NewCloudProvider creates a cloud provider. The API key is required.
func NewCloudProvider(endpoint, apiKey, model, embeddingModel string, timeout time.Duration, maxRetries int, cache *Cache) (*CloudProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key is required for the cloud provider", types.ErrAuthFailed)
	}
	if endpoint == "" {
		endpoint = DefaultCloudEndpoint
	}
	if model == "" {
		model = DefaultCloudModel
	}
	if embeddingModel == "" {
		embeddingModel = DefaultCloudEmbeddingModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CloudProvider{
		endpoint:       strings.TrimRight(endpoint, "/"),
		apiKey:         apiKey,
		model:          model,
		embeddingModel: embeddingModel,
		httpClient:     &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(rate.Limit(cloudRequestsPerSecond), cloudBurst),
		retry:          DefaultRetryConfig(maxRetries),
		cache:          cache,
	}, nil
}

func (p *CloudProvider) Describe(ctx context.Context, req Request) (*Description, error) {
	hash := RequestHash(req)
	if p.cache != nil {
		if d, ok := p.cache.Get(hash); ok {
			return d, nil
		}
	}

	summary, err := retryWithBackoff(ctx, p.retry, func() (string, error) {
		return p.chat(ctx, buildPrompt(req))
	})
	if err != nil {
		return nil, err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = fallbackSummary(req.Path)
	}

	vec, err := p.EmbedQuery(ctx, summary)
	if err != nil {
		if !retryable(err) {
			return nil, err
		}
		vec = nil
	}

	d := &Description{Summary: summary, Embedding: vec}
	if p.cache != nil {
		p.cache.Set(hash, d)
	}
	return d, nil
}

func (p *CloudProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return retryWithBackoff(ctx, p.retry, func() ([]float32, error) {
		return p.embed(ctx, text)
	})
}

func (p *CloudProvider) SupportsEmbeddings() bool {
	return true
}

func (p *CloudProvider) Provider() string {
	return ProviderCloud
}

func (p *CloudProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *CloudProvider) chat(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  cloudMaxTokens,
		"temperature": cloudTemperature,
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := p.post(ctx, "/v1/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return out.Choices[0].Message.Content, nil
}

func (p *CloudProvider) embed(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model": p.embeddingModel,
		"input": []string{text},
	}
	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := p.post(ctx, "/v1/embeddings", body, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return out.Data[0].Embedding, nil
}

func (p *CloudProvider) post(ctx context.Context, path string, body, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrProviderUnavailable, p.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status 429", types.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", types.ErrAuthFailed, resp.StatusCode, raw)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", types.ErrProviderUnavailable, resp.StatusCode)
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api error %d: %s", resp.StatusCode, raw)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
