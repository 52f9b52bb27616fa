package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/halo-research/halo/internal/store"
)

// retrieveSeed searches the web once for the project query and turns the
// hits into seed documents, deduplicated by normalized URL.
func (o *Orchestrator) retrieveSeed(ctx context.Context, st *State) Partial {
	raw, err := o.search.Search(ctx, st.Query, o.cfg.SeedLimit)
	if err != nil {
		return Partial{Err: fmt.Errorf("web search: %w", err)}
	}
	hits := parseSearchResults(raw)
	if len(hits) == 0 {
		return Partial{Logs: []LogEntry{{Message: "No search results found via web search."}}}
	}

	seen := seenURLs(st.SeedPapers)
	seeds := st.SeedPapers
	var titles []string
	for _, h := range hits {
		if h.URL == "" {
			continue
		}
		key := normalizeURL(h.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		title := h.Title
		if title == "" {
			title = "Untitled Source"
		}
		content := h.Markdown
		if content == "" {
			content = h.Description
		}
		seeds = append(seeds, store.Document{
			ID:               uuid.NewString(),
			ProjectID:        st.ProjectID,
			URL:              h.URL,
			Title:            title,
			Content:          clip(content, 2000),
			SourceType:       store.SourceWebSearch,
			MathDensityScore: 0.1,
			Metadata:         map[string]interface{}{},
		})
		titles = append(titles, title)
	}

	return Partial{
		SeedPapers: seeds,
		Logs: []LogEntry{{
			Message:  fmt.Sprintf("Found %d new papers via web search", len(titles)),
			Metadata: map[string]interface{}{"sources": titles},
		}},
	}
}
