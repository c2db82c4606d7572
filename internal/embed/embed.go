// Package embed turns chunk content into vectors through an HTTP embedding
// service. Both OpenAI-compatible and Ollama endpoints are supported.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is 0 until the first vector has been produced.
	Dimension() int
}

// API selects the request and response shape.
type API string

const (
	APIOpenAI API = "openai" // POST {base}/embeddings {"model","input"}
	APIOllama API = "ollama" // POST {base}/api/embeddings {"model","prompt"}
)

// Config configures an HTTPClient.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	API     API
	Timeout time.Duration
	// RequestsPerSecond caps outbound calls; 0 disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// HTTPClient calls an embedding endpoint.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	stats      *Stats

	mu        sync.Mutex
	dimension int
}

func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.API == "" {
		cfg.API = APIOpenAI
		if strings.Contains(cfg.BaseURL, ":11434") {
			cfg.API = APIOllama
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		stats:      NewStats(time.Hour),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// Stats returns the latency tracker for outbound calls.
func (c *HTTPClient) Stats() *Stats { return c.stats }

// Model returns the configured model name.
func (c *HTTPClient) Model() string { return c.cfg.Model }

func (c *HTTPClient) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embedResponse accepts both the OpenAI {"data":[{"embedding"}]} and the
// Ollama {"embedding"} shapes.
type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Embedding []float64 `json:"embedding"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed returns the vector for a single text.
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, in order. OpenAI endpoints get a
// single request; Ollama gets one request per text.
func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.cfg.API == APIOllama {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			v, err := c.call(ctx, ollamaRequest{Model: c.cfg.Model, Prompt: t}, 1)
			if err != nil {
				return nil, fmt.Errorf("embed batch [%d]: %w", i, err)
			}
			out[i] = v[0]
		}
		return out, nil
	}
	return c.call(ctx, openAIRequest{Model: c.cfg.Model, Input: texts}, len(texts))
}

func (c *HTTPClient) endpoint() string {
	if c.cfg.API == APIOllama {
		return c.cfg.BaseURL + "/api/embeddings"
	}
	return c.cfg.BaseURL + "/embeddings"
}

func (c *HTTPClient) call(ctx context.Context, payload any, want int) ([][]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embed api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	c.stats.Record(time.Since(start).Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp embedResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("embed error: %s", apiResp.Error.Message)
	}

	var raw [][]float64
	switch {
	case len(apiResp.Data) > 0:
		raw = make([][]float64, len(apiResp.Data))
		for i, d := range apiResp.Data {
			idx := d.Index
			if idx < 0 || idx >= len(raw) || raw[idx] != nil {
				idx = i
			}
			raw[idx] = d.Embedding
		}
	case len(apiResp.Embedding) > 0:
		raw = [][]float64{apiResp.Embedding}
	}
	if len(raw) != want {
		return nil, fmt.Errorf("embed api returned %d vectors for %d inputs", len(raw), want)
	}

	out := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) == 0 {
			return nil, ErrEmptyVector
		}
		out[i] = toFloat32(v)
	}
	if err := c.setDimension(len(out[0])); err != nil {
		return nil, err
	}
	return out, nil
}

// ErrEmptyVector is returned when the service answers without a vector.
var ErrEmptyVector = errors.New("empty embedding returned")

func (c *HTTPClient) setDimension(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = n
		return nil
	}
	if c.dimension != n {
		return fmt.Errorf("embedding dimension changed from %d to %d", c.dimension, n)
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// Close releases resources.
func (c *HTTPClient) Close() {
	c.httpClient.CloseIdleConnections()
}
