package agent

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/halo-research/halo/internal/store"
	"github.com/halo-research/halo/tools/webscrape"
)

// monitorSources sweeps the source catalog for fresh findings. Standard depth
// samples one random source per category; deep depth visits the whole catalog
// with a politeness delay between requests. Findings are capped globally and
// inserted without edges. Per-source failures never abort the sweep.
func (o *Orchestrator) monitorSources(ctx context.Context, st *State) Partial {
	deep := st.Depth == "deep"
	targets := o.pickSources(deep)
	budget := o.cfg.MonitorFindingsCap

	var findings []store.Document
	var logs []LogEntry
	for _, src := range targets {
		if len(findings) >= budget {
			break
		}
		logs = append(logs, LogEntry{Message: fmt.Sprintf("Scanning %s (%s)...", src.Name, src.Category)})
		found, err := o.scanSource(ctx, st.ProjectID, src, deep, budget-len(findings))
		if err != nil {
			logs = append(logs, LogEntry{Message: fmt.Sprintf("Source %s failed: %v", src.Name, err)})
			continue
		}
		findings = append(findings, found...)
		if deep {
			o.pause(ctx)
		}
	}

	if len(findings) == 0 {
		logs = append(logs, LogEntry{Message: "No new findings from monitored sources."})
		return Partial{Logs: logs}
	}
	if err := o.store.UpsertDocuments(ctx, findings); err != nil {
		return Partial{Err: fmt.Errorf("persist findings: %w", err), Logs: logs}
	}
	o.tele.AddDocuments("monitor", len(findings))
	logs = append(logs, LogEntry{Message: fmt.Sprintf("Captured %d findings from %d sources.", len(findings), len(targets))})
	return Partial{Logs: logs}
}

// pickSources selects the sweep targets for the requested depth.
func (o *Orchestrator) pickSources(deep bool) []Source {
	if deep {
		return o.sources
	}
	byCategory := make(map[Category][]Source)
	var order []Category
	for _, src := range o.sources {
		if _, ok := byCategory[src.Category]; !ok {
			order = append(order, src.Category)
		}
		byCategory[src.Category] = append(byCategory[src.Category], src)
	}
	out := make([]Source, 0, len(order))
	for _, cat := range order {
		group := byCategory[cat]
		out = append(out, group[rand.Intn(len(group))])
	}
	return out
}

// scanSource fetches findings from one source. Github sources are a single
// scrape; everything else maps the site for matching links and scrapes the
// top ones.
func (o *Orchestrator) scanSource(ctx context.Context, projectID string, src Source, deep bool, budget int) ([]store.Document, error) {
	if src.Category == CategoryGithub {
		res, err := o.search.Scrape(ctx, src.URL)
		if err != nil {
			return nil, err
		}
		return []store.Document{o.findingDocument(projectID, src, src.URL, res)}, nil
	}

	mapLimit, scrapeLimit := 2, 1
	if deep {
		mapLimit, scrapeLimit = 5, 3
	}
	links, err := o.search.Map(ctx, src.URL, src.Focus, mapLimit)
	if err != nil {
		return nil, err
	}
	var docs []store.Document
	for _, link := range links {
		if len(docs) >= scrapeLimit || len(docs) >= budget {
			break
		}
		// Map returns the landing page too; only article-depth links count.
		if len(link) <= len(src.URL)+5 {
			continue
		}
		res, err := o.search.Scrape(ctx, link)
		if err != nil {
			continue
		}
		docs = append(docs, o.findingDocument(projectID, src, link, res))
		if deep {
			o.pause(ctx)
		}
	}
	return docs, nil
}

func (o *Orchestrator) findingDocument(projectID string, src Source, url string, res webscrape.ScrapeResult) store.Document {
	sourceType := store.SourceBlog
	if src.Category == CategoryGithub {
		sourceType = store.SourceGithub
	}
	title := res.Metadata.Title
	if title == "" {
		title = src.Name
	}
	meta := map[string]interface{}{
		"category":    string(src.Category),
		"source_name": src.Name,
		"institution": src.Institution,
		"region":      src.Region,
	}
	if res.Metadata.OGImage != "" {
		meta["og_image"] = res.Metadata.OGImage
	}
	return store.Document{
		ID:               uuid.NewString(),
		ProjectID:        projectID,
		URL:              url,
		Title:            title,
		Content:          clip(res.Markdown, 2000),
		SourceType:       sourceType,
		MathDensityScore: MathDensity(res.Markdown),
		Metadata:         meta,
	}
}
