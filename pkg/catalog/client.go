// Package catalog is the boundary client for the external
// vector-similarity search service. Ranking and indexing live on the
// other side of this interface; only the request/response contract is
// modeled here.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Problem is one search hit from the catalog.
type Problem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Statement string  `json:"statement"`
	Score     float64 `json:"score"`
}

// Component is a stored LEIA component fetched by id.
type Component struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client talks to the catalog service over HTTP. A caller credential,
// when present, scopes searches to the caller's private resources.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a catalog client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  cfg.Logger,
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Problems []Problem `json:"problems"`
}

// SearchProblems runs a similarity search for existing problems.
func (c *Client) SearchProblems(ctx context.Context, query string, limit int, userToken string) ([]Problem, error) {
	body, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/search/problems", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userToken != "" {
		req.Header.Set("Authorization", "Bearer "+userToken)
	}

	var result searchResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return result.Problems, nil
}

// GetComponent fetches a prior persona, problem, or behaviour by id.
func (c *Client) GetComponent(ctx context.Context, kind, id, userToken string) (*Component, error) {
	url := fmt.Sprintf("%s/api/components/%s/%s", c.baseURL, kind, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build component request: %w", err)
	}
	if userToken != "" {
		req.Header.Set("Authorization", "Bearer "+userToken)
	}

	var component Component
	if err := c.do(req, &component); err != nil {
		return nil, err
	}
	return &component, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("catalog: %s not found", req.URL.Path)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return nil
}
