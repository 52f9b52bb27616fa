package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/halo-research/halo/internal/store"
)

const expandEdgeWeight = 0.8

// expandGraph searches outward from the top seeds and links the results back
// with semantic citations. Documents are persisted before citations so edges
// never reference rows that failed to land.
func (o *Orchestrator) expandGraph(ctx context.Context, st *State) Partial {
	if len(st.SeedPapers) == 0 {
		return Partial{Logs: []LogEntry{{Message: "No seed documents to expand."}}}
	}
	seeds := st.SeedPapers
	if len(seeds) > o.cfg.ExpandSeedCap {
		seeds = seeds[:o.cfg.ExpandSeedCap]
	}

	var newDocs []store.Document
	var edges []store.Citation
	var logs []LogEntry
	for _, seed := range seeds {
		raw, err := o.search.Search(ctx, expansionQuery(seed), o.cfg.ExpandResultCap)
		if err != nil {
			logs = append(logs, LogEntry{Message: fmt.Sprintf("Expansion search failed for %q: %v", seed.Title, err)})
			continue
		}
		hits := parseSearchResults(raw)
		if len(hits) > o.cfg.ExpandResultCap {
			hits = hits[:o.cfg.ExpandResultCap]
		}
		for _, h := range hits {
			if h.URL == "" || normalizeURL(h.URL) == normalizeURL(seed.URL) {
				continue
			}
			title := h.Title
			if title == "" {
				title = "Untitled Source"
			}
			doc := store.Document{
				ID:               uuid.NewString(),
				ProjectID:        st.ProjectID,
				URL:              h.URL,
				Title:            title,
				Content:          clip(h.Markdown, 2000),
				SourceType:       store.SourceWebSearch,
				MathDensityScore: 0.1,
				Metadata:         map[string]interface{}{"expanded_from": seed.ID},
			}
			newDocs = append(newDocs, doc)
			edges = append(edges, store.Citation{
				ProjectID:    st.ProjectID,
				SourceDocID:  seed.ID,
				TargetDocID:  doc.ID,
				CitationType: "semantic",
				Weight:       expandEdgeWeight,
			})
		}
		o.pause(ctx)
	}

	if len(newDocs) == 0 {
		logs = append(logs, LogEntry{Message: "No expansion results."})
		return Partial{Logs: logs}
	}
	if err := o.store.UpsertDocuments(ctx, newDocs); err != nil {
		// Citations reference these rows; with the documents gone they
		// must not be written either.
		return Partial{Err: fmt.Errorf("persist expansion documents: %w", err), Logs: logs}
	}
	if err := o.store.UpsertCitations(ctx, edges); err != nil {
		return Partial{Err: fmt.Errorf("persist citations: %w", err), Logs: logs}
	}
	o.tele.AddDocuments("expand_graph", len(newDocs))
	logs = append(logs, LogEntry{Message: fmt.Sprintf("Expanded graph with %d documents and %d citations.", len(newDocs), len(edges))})
	return Partial{Logs: logs}
}

// expansionQuery derives the outward search query from a seed, phrased by
// where the seed came from.
func expansionQuery(seed store.Document) string {
	switch seed.SourceType {
	case store.SourceGithub:
		return fmt.Sprintf("papers building on %q", seed.Title)
	case store.SourceBlog:
		return fmt.Sprintf("research citing %q", seed.Title)
	default:
		return fmt.Sprintf("analysis of %q", seed.Title)
	}
}
