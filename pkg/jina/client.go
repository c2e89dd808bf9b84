// Package jina provides clients for the Jina AI Reader and Embeddings APIs.
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/resilience"
)

const (
	defaultReaderURL = "https://r.jina.ai"
	defaultEmbedURL  = "https://api.jina.ai/v1/embeddings"
	defaultModel     = "jina-embeddings-v3"
	maxResponseBytes = 10 << 20
)

// Embedding tasks understood by jina-embeddings-v3.
const (
	TaskQuery   = "retrieval.query"
	TaskPassage = "retrieval.passage"
)

// Client defines the Jina operations used by the curator.
type Client interface {
	// Read fetches a URL through Jina Reader and returns markdown content.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, inputs []string, task string) ([][]float32, error)
}

// ReadResponse is the parsed Reader response.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds fetched page content.
type ReadData struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Content string    `json:"content"`
	Usage   ReadUsage `json:"usage"`
}

// ReadUsage tracks token consumption.
type ReadUsage struct {
	Tokens int `json:"tokens"`
}

type embedRequest struct {
	Model      string   `json:"model"`
	Task       string   `json:"task,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
	Truncate   bool     `json:"truncate"`
	Input      []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the Reader base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.readerURL = url }
}

// WithEmbedURL sets the Embeddings endpoint.
func WithEmbedURL(url string) Option {
	return func(c *httpClient) { c.embedURL = url }
}

// WithModel sets the embedding model.
func WithModel(model string) Option {
	return func(c *httpClient) { c.model = model }
}

// WithDimensions truncates embeddings to n dimensions (Matryoshka).
func WithDimensions(n int) Option {
	return func(c *httpClient) { c.dimensions = n }
}

// WithRateLimit caps request rate across both endpoints.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) { c.retry = p }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey     string
	readerURL  string
	embedURL   string
	model      string
	dimensions int
	limiter    *rate.Limiter
	retry      resilience.Policy
	http       *http.Client
}

// NewClient creates a Jina client. The default limiter allows ~80 requests
// per minute.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		readerURL: defaultReaderURL,
		embedURL:  defaultEmbedURL,
		model:     defaultModel,
		limiter:   rate.NewLimiter(rate.Every(750*time.Millisecond), 4),
		retry:     resilience.DefaultPolicy(),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends a request built by newReq, retrying transient failures. Only a
// 200 body is returned; other statuses become errors.
func (c *httpClient) do(ctx context.Context, op string, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	p := c.retry
	if p.OnRetry == nil {
		p.OnRetry = resilience.LogRetry("jina", op)
	}
	return resilience.DoVal(ctx, p, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "jina: rate limiter")
		}
		req, err := newReq(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "jina: create %s request", op)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "jina: %s request", op)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "jina: read response body"), 0)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.StatusError("jina "+op, resp.StatusCode, body)
		}
		return body, nil
	})
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	body, err := c.do(ctx, "read", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.readerURL, targetURL), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Return-Format", "markdown")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var result ReadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal read response")
	}
	return &result, nil
}

func (c *httpClient) Embed(ctx context.Context, inputs []string, task string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(embedRequest{
		Model:      c.model,
		Task:       task,
		Dimensions: c.dimensions,
		Truncate:   true,
		Input:      inputs,
	})
	if err != nil {
		return nil, eris.Wrap(err, "jina: marshal embed request")
	}

	body, err := c.do(ctx, "embed", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.embedURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal embed response")
	}

	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(inputs) {
			return nil, eris.Errorf("jina: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, eris.Errorf("jina: missing embedding for input %d", i)
		}
	}
	return out, nil
}
