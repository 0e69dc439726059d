package describer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filedex/filedex/pkg/types"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

// quickenRetry keeps the provider's attempt budget but drops the delays so
// retry tests run fast.
func quickenRetry(cfg RetryConfig) RetryConfig {
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestDefaultRetryConfig_AttemptBudget(t *testing.T) {
	assert.Equal(t, 4, DefaultRetryConfig(3).MaxAttempts, "retries come on top of the initial attempt")
	assert.Equal(t, 1, DefaultRetryConfig(0).MaxAttempts, "zero retries still makes the first call")
	assert.Equal(t, 4, DefaultRetryConfig(-1).MaxAttempts)
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(Request{
		Path:    "/home/u/docs/recipe.txt",
		Kind:    types.KindText,
		Content: "chocolate cake ingredients",
		Metadata: map[string]any{
			"line_count": 12,
		},
	})

	assert.Contains(t, prompt, "Filename: recipe.txt")
	assert.Contains(t, prompt, "Type: text")
	assert.Contains(t, prompt, "line_count: 12")
	assert.Contains(t, prompt, "Content preview: chocolate cake ingredients")
	assert.NotContains(t, prompt, "/home/u/docs", "prompt carries the basename only")
}

func TestBuildPrompt_TruncatesContent(t *testing.T) {
	prompt := buildPrompt(Request{
		Path:    "/big.txt",
		Content: strings.Repeat("x", maxContentPreview*2),
	})
	assert.Less(t, len(prompt), maxContentPreview+500)
	assert.Contains(t, prompt, "...")
}

func TestRequestHash_SensitiveToContent(t *testing.T) {
	base := Request{Path: "/a.txt", Kind: types.KindText, Content: "one"}
	changed := base
	changed.Content = "two"

	assert.Equal(t, RequestHash(base), RequestHash(base))
	assert.NotEqual(t, RequestHash(base), RequestHash(changed))
}

func newOllamaServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		switch r.URL.Path {
		case "/api/generate":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"response": "A chocolate cake recipe with ingredients.",
			})
		case "/api/embeddings":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"embedding": []float32{0.1, 0.2, 0.3},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestLocalProvider_Describe(t *testing.T) {
	var calls int32
	srv := newOllamaServer(t, &calls)
	defer srv.Close()

	p := NewLocalProvider(srv.URL, "llama3.2", "nomic-embed-text", 0, 1, NewCache(10))
	d, err := p.Describe(context.Background(), Request{Path: "/recipe.txt", Content: "cake"})
	require.NoError(t, err)
	assert.Equal(t, "A chocolate cake recipe with ingredients.", d.Summary)
	assert.Len(t, d.Embedding, 3)
}

func TestLocalProvider_CacheAvoidsRepeatCalls(t *testing.T) {
	var calls int32
	srv := newOllamaServer(t, &calls)
	defer srv.Close()

	p := NewLocalProvider(srv.URL, "llama3.2", "nomic-embed-text", 0, 1, NewCache(10))
	req := Request{Path: "/recipe.txt", Content: "cake"}

	_, err := p.Describe(context.Background(), req)
	require.NoError(t, err)
	first := atomic.LoadInt32(&calls)

	_, err = p.Describe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, atomic.LoadInt32(&calls), "second describe served from cache")
}

func TestLocalProvider_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	p := NewLocalProvider(srv.URL, "llama3.2", "", 0, 3, nil)
	p.retry = fastRetry()

	_, err := p.Describe(context.Background(), Request{Path: "/a.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
}

func TestLocalProvider_NoEmbeddingModel(t *testing.T) {
	var calls int32
	srv := newOllamaServer(t, &calls)
	defer srv.Close()

	p := NewLocalProvider(srv.URL, "llama3.2", "", 0, 1, nil)
	assert.False(t, p.SupportsEmbeddings())

	d, err := p.Describe(context.Background(), Request{Path: "/a.txt"})
	require.NoError(t, err)
	assert.NotEmpty(t, d.Summary)
	assert.Nil(t, d.Embedding)
}

func TestLocalProvider_EmptyResponseFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "  "})
	}))
	defer srv.Close()

	p := NewLocalProvider(srv.URL, "llama3.2", "", 0, 1, nil)
	d, err := p.Describe(context.Background(), Request{Path: "/home/u/report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "File: report.pdf", d.Summary)
}

func newCloudServer(t *testing.T, rateLimitFirst int32) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= rateLimitFirst {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		switch r.URL.Path {
		case "/v1/chat/completions":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"content": "Tax paperwork for 2023."}},
				},
			})
		case "/v1/embeddings":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"embedding": []float32{1, 0}}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	return srv, &calls
}

func TestCloudProvider_RequiresKey(t *testing.T) {
	_, err := NewCloudProvider("", "", "", "", 0, 1, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAuthFailed)
}

func TestCloudProvider_Describe(t *testing.T) {
	srv, _ := newCloudServer(t, 0)
	defer srv.Close()

	p, err := NewCloudProvider(srv.URL, "sk-test", "", "", 0, 1, nil)
	require.NoError(t, err)

	d, err := p.Describe(context.Background(), Request{Path: "/taxes.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "Tax paperwork for 2023.", d.Summary)
	assert.Len(t, d.Embedding, 2)
}

func TestCloudProvider_RetriesRateLimit(t *testing.T) {
	// First two calls return 429, then success.
	srv, calls := newCloudServer(t, 2)
	defer srv.Close()

	p, err := NewCloudProvider(srv.URL, "sk-test", "", "", 0, 3, nil)
	require.NoError(t, err)
	p.retry = fastRetry()

	d, err := p.Describe(context.Background(), Request{Path: "/taxes.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "Tax paperwork for 2023.", d.Summary)
	assert.GreaterOrEqual(t, atomic.LoadInt32(calls), int32(3))
}

func TestCloudProvider_RecoversAfterThreeRateLimits(t *testing.T) {
	// Three straight 429s, then success. With max_retries=3 the fourth
	// attempt lands, so the file still ends up described.
	srv, calls := newCloudServer(t, 3)
	defer srv.Close()

	p, err := NewCloudProvider(srv.URL, "sk-test", "", "", 0, 3, nil)
	require.NoError(t, err)
	p.retry = quickenRetry(p.retry)

	d, err := p.Describe(context.Background(), Request{Path: "/taxes.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "Tax paperwork for 2023.", d.Summary)
	assert.Equal(t, int32(5), atomic.LoadInt32(calls),
		"three limited chat attempts, one that lands, then the embedding call")
}

func TestCloudProvider_RateLimitExhausted(t *testing.T) {
	srv, _ := newCloudServer(t, 100)
	defer srv.Close()

	p, err := NewCloudProvider(srv.URL, "sk-test", "", "", 0, 2, nil)
	require.NoError(t, err)
	p.retry = fastRetry()

	_, err = p.Describe(context.Background(), Request{Path: "/taxes.pdf"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRateLimited)
}

func TestCloudProvider_AuthFailureNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewCloudProvider(srv.URL, "sk-bad", "", "", 0, 3, nil)
	require.NoError(t, err)
	p.retry = fastRetry()

	_, err = p.Describe(context.Background(), Request{Path: "/a.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAuthFailed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "auth failures are terminal")
}

func TestRetryWithBackoff_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retryWithBackoff(ctx, fastRetry(), func() (int, error) {
		return 0, assert.AnError
	})
	assert.ErrorIs(t, err, context.Canceled)
}
