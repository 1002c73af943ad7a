// Package websearch queries a Tavily-compatible search API to ground
// article outlines in current sources.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

const (
	DefaultBaseURL    = "https://api.tavily.com"
	defaultMaxResults = 5
	defaultTimeout    = 15 * time.Second
)

type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(apiKey, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With("component", "websearch"),
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Search returns up to maxResults hits for query (5 when maxResults <= 0).
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if !c.Configured() {
		return nil, havenerr.NotConfigured("web search API key")
	}
	if strings.TrimSpace(query) == "" {
		return nil, havenerr.Invalid("search query is empty")
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	body, err := json.Marshal(searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("web search: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: web search: %v", havenerr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading web search response: %v", havenerr.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: web search status %d: %s", havenerr.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: web search: %v", havenerr.ErrParse, err)
	}
	if len(parsed.Results) > maxResults {
		parsed.Results = parsed.Results[:maxResults]
	}

	c.logger.DebugContext(ctx, "web search completed",
		"results", len(parsed.Results),
		"duration", time.Since(start))
	return parsed.Results, nil
}

// FormatSources renders results as a numbered source list for a prompt.
func FormatSources(results []Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n", i+1, r.Title, r.URL, strings.TrimSpace(r.Content))
	}
	return strings.TrimRight(b.String(), "\n")
}
