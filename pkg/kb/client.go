// Package kb is a thin client for the external knowledge-base retrieval
// service. The orchestrator never calls it directly; it backs the
// knowledge_base_search tool resolved by the telephony gateway.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTopK       = 3
	defaultSearchType = "text"
)

// Result is one retrieved passage from the service's text index.
type Result struct {
	ID        string         `json:"result_id"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Source    map[string]any `json:"source"`
	Score     float64        `json:"score"`
	Highlight string         `json:"highlight,omitempty"`
}

// Client queries one knowledge base on the retrieval service.
type Client struct {
	baseURL    string
	kbID       string
	apiKey     string
	searchType string
	http       *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIKey sets the X-API-Key header sent on search requests.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithSearchType overrides the search mode ("text", "image", or "hybrid").
// Defaults to "text"; callers here never carry image queries.
func WithSearchType(st string) Option {
	return func(c *Client) { c.searchType = st }
}

// NewClient creates a client for the knowledge base kbID on the service at
// baseURL.
func NewClient(baseURL, kbID string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("kb: base URL is required")
	}
	if kbID == "" {
		return nil, fmt.Errorf("kb: knowledge base ID is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		kbID:       kbID,
		searchType: defaultSearchType,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type searchRequest struct {
	KBID       string `json:"kb_id"`
	Query      string `json:"query"`
	TopK       int    `json:"top_k"`
	SearchType string `json:"search_type"`
}

// searchResponse mirrors the service's response envelope. Image and product
// result lists exist on the wire but are never requested by a text search.
type searchResponse struct {
	Results struct {
		TotalFound  int      `json:"total_found"`
		Returned    int      `json:"returned"`
		SearchType  string   `json:"search_type"`
		TextResults []Result `json:"text_results"`
	} `json:"results"`
	Metrics struct {
		QueryTokens      int    `json:"query_tokens"`
		EmbeddingModel   string `json:"embedding_model"`
		ProcessingTimeMs int    `json:"processing_time_ms"`
		ChunksSearched   int    `json:"chunks_searched"`
	} `json:"metrics"`
	Cost float64 `json:"cost"`
}

// Search returns up to topK passages relevant to query. topK <= 0 uses the
// client default.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	body, err := json.Marshal(searchRequest{
		KBID:       c.kbID,
		Query:      query,
		TopK:       topK,
		SearchType: c.searchType,
	})
	if err != nil {
		return nil, fmt.Errorf("kb: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kb: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kb: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("kb: search returned %d: %s", resp.StatusCode, snippet)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("kb: decode response: %w", err)
	}
	return out.Results.TextResults, nil
}

// Health probes the service's unauthenticated health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("kb: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kb: health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kb: health returned %d", resp.StatusCode)
	}
	return nil
}
