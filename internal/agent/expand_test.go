package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/halo-research/halo/internal/store"
)

func seedDoc(id, url, title, sourceType string) store.Document {
	return store.Document{
		ID:         id,
		ProjectID:  "proj-1",
		URL:        url,
		Title:      title,
		SourceType: sourceType,
	}
}

func TestExpandGraphLinksResultsToSeeds(t *testing.T) {
	ms := newMemStore()
	hits := `[
        {"url":"https://citing.example.com/a","title":"Citing A"},
        {"url":"https://citing.example.com/b","title":"Citing B"}
    ]`
	search := &scriptedSearch{searchQueue: []json.RawMessage{json.RawMessage(hits)}}
	o := newTestOrchestrator(ms, search, &fakeLLM{})

	st := &State{
		ProjectID:  "proj-1",
		SeedPapers: []store.Document{seedDoc("seed-1", "https://seed.example.com/p", "Seed Paper", store.SourceWebSearch)},
	}
	part := o.expandGraph(context.Background(), st)
	if part.Err != nil {
		t.Fatalf("expandGraph: %v", part.Err)
	}
	if len(ms.docs) != 2 {
		t.Fatalf("expected 2 expansion documents, got %d", len(ms.docs))
	}
	if len(ms.edges) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(ms.edges))
	}
	for _, e := range ms.edges {
		if e.SourceDocID != "seed-1" {
			t.Fatalf("citation source = %q, want seed-1", e.SourceDocID)
		}
		if e.CitationType != "semantic" || e.Weight != expandEdgeWeight {
			t.Fatalf("unexpected citation: %+v", e)
		}
		if _, ok := ms.docs[e.TargetDocID]; !ok {
			t.Fatalf("citation target %q has no document", e.TargetDocID)
		}
	}
	for _, d := range ms.docs {
		if d.Metadata["expanded_from"] != "seed-1" {
			t.Fatalf("missing expanded_from marker: %+v", d.Metadata)
		}
	}
}

func TestExpandGraphSkipsSeedURL(t *testing.T) {
	ms := newMemStore()
	hits := `[
        {"url":"https://Seed.example.com/p/","title":"Same Seed"},
        {"url":"","title":"No URL"}
    ]`
	search := &scriptedSearch{searchQueue: []json.RawMessage{json.RawMessage(hits)}}
	o := newTestOrchestrator(ms, search, &fakeLLM{})

	st := &State{
		ProjectID:  "proj-1",
		SeedPapers: []store.Document{seedDoc("seed-1", "https://seed.example.com/p", "Seed Paper", store.SourceWebSearch)},
	}
	part := o.expandGraph(context.Background(), st)
	if part.Err != nil {
		t.Fatalf("expandGraph: %v", part.Err)
	}
	if len(ms.docs) != 0 || len(ms.edges) != 0 {
		t.Fatalf("self-referential hits should be dropped, got %d docs %d edges", len(ms.docs), len(ms.edges))
	}
	var noResults bool
	for _, l := range part.Logs {
		if l.Message == "No expansion results." {
			noResults = true
		}
	}
	if !noResults {
		t.Fatalf("expected no-results log, got %+v", part.Logs)
	}
}

func TestExpandGraphSkipsCitationsWhenDocumentsFail(t *testing.T) {
	ms := newMemStore()
	ms.failDocUpsert = true
	hits := `[{"url":"https://citing.example.com/a","title":"Citing A"}]`
	search := &scriptedSearch{searchQueue: []json.RawMessage{json.RawMessage(hits)}}
	o := newTestOrchestrator(ms, search, &fakeLLM{})

	st := &State{
		ProjectID:  "proj-1",
		SeedPapers: []store.Document{seedDoc("seed-1", "https://seed.example.com/p", "Seed Paper", store.SourceWebSearch)},
	}
	part := o.expandGraph(context.Background(), st)
	if part.Err == nil {
		t.Fatal("expected error when documents fail to persist")
	}
	if len(ms.edges) != 0 {
		t.Fatalf("citations must not land without their documents, got %d", len(ms.edges))
	}
}

func TestExpandGraphRespectsSeedCap(t *testing.T) {
	ms := newMemStore()
	search := &scriptedSearch{}
	o := newTestOrchestrator(ms, search, &fakeLLM{})

	st := &State{ProjectID: "proj-1"}
	for i := 0; i < 5; i++ {
		st.SeedPapers = append(st.SeedPapers, seedDoc(
			"seed-"+string(rune('a'+i)),
			"https://seed.example.com/"+string(rune('a'+i)),
			"Seed",
			store.SourceWebSearch,
		))
	}
	o.expandGraph(context.Background(), st)
	if got := len(search.searchQueries); got != o.cfg.ExpandSeedCap {
		t.Fatalf("expected %d expansion searches, got %d", o.cfg.ExpandSeedCap, got)
	}
}

func TestExpansionQueryPhrasing(t *testing.T) {
	t.Parallel()
	cases := []struct {
		sourceType string
		want       string
	}{
		{store.SourceGithub, "papers building on"},
		{store.SourceBlog, "research citing"},
		{store.SourceWebSearch, "analysis of"},
	}
	for _, tc := range cases {
		q := expansionQuery(store.Document{Title: "T", SourceType: tc.sourceType})
		if !strings.Contains(q, tc.want) {
			t.Fatalf("%s query = %q, want substring %q", tc.sourceType, q, tc.want)
		}
	}
}
