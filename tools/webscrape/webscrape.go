package webscrape

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/halo-research/halo/config"
	"github.com/halo-research/halo/tools/webscrape/firecrawl"
	"github.com/halo-research/halo/tools/webscrape/local"
)

// ErrSearchUnavailable is returned by providers that cannot serve search or
// map requests (the local chromedp provider).
var ErrSearchUnavailable = errors.New("web search requires a Firecrawl API key")

// ScrapeResult is a scraped page reduced to markdown plus page metadata.
type ScrapeResult struct {
	Markdown string
	Metadata ScrapeMetadata
}

// ScrapeMetadata carries the page fields the pipeline cares about.
type ScrapeMetadata struct {
	Title       string
	Description string
	OGImage     string
	SourceURL   string
}

// Client is the search/scrape provider surface. Search returns the raw
// provider payload because response shapes drift between provider versions;
// callers parse defensively.
type Client interface {
	Search(ctx context.Context, query string, limit int) (json.RawMessage, error)
	Scrape(ctx context.Context, url string) (ScrapeResult, error)
	Map(ctx context.Context, url, search string, limit int) ([]string, error)
}

// New picks the provider: Firecrawl when an API key is configured, otherwise
// a local headless-browser scraper that cannot search.
func New(cfg config.FirecrawlConfig) Client {
	if cfg.APIKey != "" {
		return firecrawlClient{fc: firecrawl.New(cfg.APIKey, cfg.BaseURL, cfg.Timeout)}
	}
	return localClient{fetch: local.Fetch{Timeout: cfg.Timeout}}
}

type firecrawlClient struct {
	fc *firecrawl.Client
}

func (c firecrawlClient) Search(ctx context.Context, query string, limit int) (json.RawMessage, error) {
	return c.fc.Search(ctx, query, limit)
}

func (c firecrawlClient) Scrape(ctx context.Context, url string) (ScrapeResult, error) {
	res, err := c.fc.Scrape(ctx, url)
	if err != nil {
		return ScrapeResult{}, err
	}
	return ScrapeResult{
		Markdown: res.Markdown,
		Metadata: ScrapeMetadata{
			Title:       res.Metadata.Title,
			Description: res.Metadata.Description,
			OGImage:     res.Metadata.OGImage,
			SourceURL:   res.Metadata.SourceURL,
		},
	}, nil
}

func (c firecrawlClient) Map(ctx context.Context, url, search string, limit int) ([]string, error) {
	return c.fc.Map(ctx, url, search, limit)
}

type localClient struct {
	fetch local.Fetch
}

func (c localClient) Search(ctx context.Context, query string, limit int) (json.RawMessage, error) {
	return nil, ErrSearchUnavailable
}

func (c localClient) Scrape(ctx context.Context, url string) (ScrapeResult, error) {
	res, err := c.fetch.Exec(ctx, url)
	if err != nil {
		return ScrapeResult{}, err
	}
	return ScrapeResult{
		Markdown: res.Text,
		Metadata: ScrapeMetadata{
			Title:     res.Title,
			OGImage:   res.TopImage,
			SourceURL: url,
		},
	}, nil
}

func (c localClient) Map(ctx context.Context, url, search string, limit int) ([]string, error) {
	return nil, ErrSearchUnavailable
}
