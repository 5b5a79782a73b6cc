// Package vector is the client for the vector-context store. The store is a
// non-critical enrichment dependency: every call goes through the circuit
// breaker and degrades to an empty result.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ContextItem is one retrieved context document.
type ContextItem struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ContextStore retrieves similar historical context for a query.
type ContextStore interface {
	RetrieveContext(ctx context.Context, query string, k int) ([]ContextItem, error)
}

// Config holds vector store connection configuration.
type Config struct {
	URL string `yaml:"url"`
	// Timeout is the hard per-call bound. Probes against a degraded store
	// must not stall the cycle.
	Timeout time.Duration `yaml:"timeout"`
}

// Client implements ContextStore over HTTP.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a vector store client with a hard per-call timeout.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		endpoint: cfg.URL,
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// RetrieveContext returns up to k context items for the query.
func (c *Client) RetrieveContext(ctx context.Context, query string, k int) ([]ContextItem, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody, err := json.Marshal(map[string]any{"query": query, "k": k})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/search", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vector store returned %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Items []ContextItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Items, nil
}
