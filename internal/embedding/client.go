package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Embedder produces unit-norm vectors for text. The engine treats a nil
// Embedder, or one reporting !Available(), as "no semantic capability" and
// degrades to lexical-only retrieval.
type Embedder interface {
	// Embed returns the normalised vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds several texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Available reports whether the backend answered the startup probe.
	Available() bool
}

// maxEmbedChars caps the text sent to the backend to bound request size.
const maxEmbedChars = 8000

// queryCacheSize bounds the LRU of recently embedded texts. Search queries
// repeat often; record contents rarely do, but a stale hit is harmless since
// embeddings are deterministic per model.
const queryCacheSize = 512

// ClientConfig holds settings for the Ollama-compatible embedding client.
type ClientConfig struct {
	// BaseURL of the embedding server (default http://localhost:11434).
	BaseURL string
	// Model name passed to the backend (default nomic-embed-text).
	Model string
	// Timeout per HTTP request (default 10s).
	Timeout time.Duration
	// RequestsPerSecond rate-limits calls to the backend (default 20).
	RequestsPerSecond float64
	// Breaker tunes the circuit breaker; zero value means defaults.
	Breaker BreakerConfig
}

// Client talks to an Ollama-compatible /api/embed endpoint. All calls pass
// through a rate limiter and a circuit breaker; results are normalised to
// unit L2 norm and memoised in a small LRU.
type Client struct {
	baseURL   string
	model     string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
	limiter   *rate.Limiter
	cache     *lru.Cache[string, []float32]
	available bool
	log       *slog.Logger
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewClient builds a client and probes the backend once. The probe failing
// does not error: the client is returned with Available() == false so the
// caller can run lexical-only.
func NewClient(cfg ClientConfig, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Breaker == (BreakerConfig{}) {
		cfg.Breaker = DefaultBreakerConfig()
	}
	if log == nil {
		log = slog.Default()
	}

	cache, _ := lru.New[string, []float32](queryCacheSize)
	c := &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker(cfg.Breaker),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)),
		cache:   cache,
		log:     log.With("component", "embedding"),
	}

	c.available = c.probe()
	if !c.available {
		c.log.Warn("embedding backend unreachable, semantic search disabled",
			"base_url", c.baseURL)
	}
	return c
}

// Available reports the result of the startup probe.
func (c *Client) Available() bool { return c.available }

// Embed returns the normalised embedding for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = truncate(text)
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}

	vecs, err := c.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("embedding: backend returned no vectors")
	}
	c.cache.Add(text, vecs[0])
	return vecs[0], nil
}

// EmbedBatch embeds several texts in a single request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	in := make([]string, len(texts))
	for i, t := range texts {
		in[i] = truncate(t)
	}

	vecs, err := c.call(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d vectors, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}

// call performs one rate-limited, breaker-protected request.
func (c *Client) call(ctx context.Context, input []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, input)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	vecs := result.([][]float32)
	for i := range vecs {
		vecs[i] = Normalize(vecs[i])
	}
	return vecs, nil
}

func (c *Client) post(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("embedding: backend returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	return parsed.Embeddings, nil
}

// probe checks the backend with a short timeout, outside the breaker so a
// cold start does not pre-trip it.
func (c *Client) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func truncate(text string) string {
	if len(text) <= maxEmbedChars {
		return text
	}
	return text[:maxEmbedChars]
}
