// Package search implements a client for the Tavily web search API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/estatebot/internal/version"
)

const (
	DefaultBaseURL    = "https://api.tavily.com"
	DefaultMaxResults = 5
)

// ErrNoAPIKey is returned when the client has no API key configured.
var ErrNoAPIKey = errors.New("tavily API key is not configured")

// Result is a single search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Options tunes a search request.
type Options struct {
	MaxResults  int    // default: 5
	SearchDepth string // basic or advanced, default: basic
}

// StatusError is returned when Tavily answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tavily: unexpected status %d: %s", e.StatusCode, bytes.TrimSpace(e.Body))
}

// Client talks to the Tavily API.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client with default settings.
func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.APIKey != ""
}

type searchRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Search runs a web search and returns the results in ranking order.
func (c *Client) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if !c.Enabled() {
		return nil, ErrNoAPIKey
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.SearchDepth == "" {
		opts.SearchDepth = "basic"
	}

	body, err := json.Marshal(searchRequest{
		Query:       query,
		MaxResults:  opts.MaxResults,
		SearchDepth: opts.SearchDepth,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode search request")
	}

	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build search request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("User-Agent", version.UserAgent())

	httpc := c.HTTPClient
	if httpc == nil {
		httpc = http.DefaultClient
	}
	res, err := httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "search request failed")
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read search response")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{StatusCode: res.StatusCode, Body: b}
	}

	var resp searchResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to decode search response")
	}
	return resp.Results, nil
}

// Contents returns the content of the first n results.
func Contents(results []Result, n int) []string {
	n = max(0, min(n, len(results)))
	out := make([]string, 0, n)
	for _, r := range results[:n] {
		out = append(out, r.Content)
	}
	return out
}
