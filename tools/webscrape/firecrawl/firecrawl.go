package firecrawl

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

const defaultBaseURL = "https://api.firecrawl.dev"

// Client talks to the Firecrawl v1 REST API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func New(apiKey, baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Metadata is the subset of Firecrawl page metadata the pipeline uses.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	OGImage     string `json:"ogImage"`
	SourceURL   string `json:"sourceURL"`
}

// Document is a scraped page payload.
type Document struct {
	Markdown string   `json:"markdown"`
	Metadata Metadata `json:"metadata"`
}

// Search runs a web search and returns the raw response body. The data shape
// varies between API versions, so parsing is left to the caller.
func (c *Client) Search(ctx context.Context, query string, limit int) (json.RawMessage, error) {
	body := map[string]interface{}{
		"query": query,
		"limit": limit,
		"scrapeOptions": map[string]interface{}{
			"formats": []string{"markdown"},
		},
	}
	return c.post(ctx, "/v1/search", body)
}

// Scrape fetches one URL as markdown.
func (c *Client) Scrape(ctx context.Context, url string) (Document, error) {
	raw, err := c.post(ctx, "/v1/scrape", map[string]interface{}{
		"url":     url,
		"formats": []string{"markdown"},
	})
	if err != nil {
		return Document{}, err
	}
	var resp struct {
		Success bool     `json:"success"`
		Data    Document `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Document{}, fmt.Errorf("decode scrape response: %w", err)
	}
	if !resp.Success {
		return Document{}, fmt.Errorf("scrape %s: provider reported failure", url)
	}
	return resp.Data, nil
}

// Map lists site links, optionally filtered by a search term.
func (c *Client) Map(ctx context.Context, url, search string, limit int) ([]string, error) {
	body := map[string]interface{}{"url": url, "limit": limit}
	if strings.TrimSpace(search) != "" {
		body["search"] = search
	}
	raw, err := c.post(ctx, "/v1/map", body)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Links []string `json:"links"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode map response: %w", err)
	}
	return resp.Links, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firecrawl %s: %w", path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("firecrawl %s: read body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("firecrawl %s: status %d: %s", path, resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
