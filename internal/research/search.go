// Package research provides the web research tools available to the builder's
// research sub-agent: web search and page content extraction. Failures are
// reported as tool-result strings rather than errors, so the model can read
// them and adjust instead of aborting the whole turn.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultSearchEndpoint = "https://api.tavily.com/search"

// Client performs web searches and page fetches for the research agent.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates a research client. An empty endpoint selects the default
// search backend.
func NewClient(endpoint, apiKey string, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search runs a web search and returns the top results formatted as a single
// tool-result string. Errors are folded into the string.
func (c *Client) Search(ctx context.Context, query string, maxResults int) string {
	if c.apiKey == "" {
		return "Search unavailable: no search API key configured."
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	payload, _ := json.Marshal(map[string]any{
		"api_key":     c.apiKey,
		"query":       query,
		"max_results": maxResults,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Sprintf("Search failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("search request failed", zap.String("query", query), zap.Error(err))
		return fmt.Sprintf("Search failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Search failed: backend returned status %d", resp.StatusCode)
	}

	var body struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Sprintf("Search failed: %v", err)
	}
	if len(body.Results) == 0 {
		return "No results found for: " + query
	}

	var b strings.Builder
	for i, r := range body.Results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n%s\n%s", i+1, r.Title, r.URL, r.Content)
	}
	return b.String()
}
