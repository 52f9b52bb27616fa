package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/halo-research/halo/config"
	"github.com/halo-research/halo/internal/store"
	"github.com/halo-research/halo/tools/webscrape"
)

// memStore is an in-memory agent.Store for pipeline tests.
type memStore struct {
	mu       sync.Mutex
	projects map[string]store.Project
	docs     map[string]store.Document
	edges    []store.Citation
	logs     []store.AgentLog
	chunks   []store.DocumentChunk
	reports  []store.ValidationReport

	failDocUpsert bool
}

func newMemStore() *memStore {
	return &memStore{
		projects: map[string]store.Project{},
		docs:     map[string]store.Document{},
	}
}

func (m *memStore) GetProject(ctx context.Context, id string) (store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return store.Project{}, store.ErrProjectNotFound
	}
	return p, nil
}

func (m *memStore) UpsertDocuments(ctx context.Context, docs []store.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDocUpsert {
		return errors.New("document upsert rejected")
	}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return nil
}

func (m *memStore) UpsertCitations(ctx context.Context, edges []store.Citation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, edges...)
	return nil
}

func (m *memStore) UpdateDocumentMetadata(ctx context.Context, id string, metadata map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("document %s not found", id)
	}
	d.Metadata = metadata
	m.docs[id] = d
	return nil
}

func (m *memStore) InsertDocumentChunks(ctx context.Context, chunks []store.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memStore) InsertValidationReport(ctx context.Context, projectID, status, summaryMarkdown string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, store.ValidationReport{ProjectID: projectID, Status: status, SummaryMarkdown: summaryMarkdown})
	return nil
}

func (m *memStore) InsertAgentLog(ctx context.Context, projectID, step, message string, metadata map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, store.AgentLog{ProjectID: projectID, Step: step, Message: message, Metadata: metadata})
	return nil
}

func (m *memStore) logsForStep(step string) []store.AgentLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.AgentLog
	for _, l := range m.logs {
		if l.Step == step {
			out = append(out, l)
		}
	}
	return out
}

// scriptedSearch is a webscrape.Client whose responses are queued up front.
type scriptedSearch struct {
	mu            sync.Mutex
	searchQueue   []json.RawMessage
	searchErr     error
	searchQueries []string
	mapLinks      map[string][]string
	mapCalls      []string
	scrapeResult  webscrape.ScrapeResult
	scrapeErr     error
	scrapeCalls   []string
}

func (s *scriptedSearch) Search(ctx context.Context, query string, limit int) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchQueries = append(s.searchQueries, query)
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(s.searchQueue) == 0 {
		return json.RawMessage(`[]`), nil
	}
	next := s.searchQueue[0]
	s.searchQueue = s.searchQueue[1:]
	return next, nil
}

func (s *scriptedSearch) Scrape(ctx context.Context, url string) (webscrape.ScrapeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrapeCalls = append(s.scrapeCalls, url)
	if s.scrapeErr != nil {
		return webscrape.ScrapeResult{}, s.scrapeErr
	}
	return s.scrapeResult, nil
}

func (s *scriptedSearch) Map(ctx context.Context, url, search string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapCalls = append(s.mapCalls, url)
	return s.mapLinks[url], nil
}

// fakeLLM returns canned completions.
type fakeLLM struct {
	chat     string
	chatJSON string
	vision   string
	embed    []float32
	err      error
}

func (f *fakeLLM) Chat(ctx context.Context, model, system, user string) (string, error) {
	return f.chat, f.err
}

func (f *fakeLLM) ChatJSON(ctx context.Context, model, system, user string) (string, error) {
	return f.chatJSON, f.err
}

func (f *fakeLLM) Vision(ctx context.Context, model, prompt, imageURL string) (string, error) {
	return f.vision, f.err
}

func (f *fakeLLM) Embed(ctx context.Context, model, input string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.embed, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Agent: config.AgentConfig{
			SeedLimit:          3,
			ExpandSeedCap:      2,
			ExpandResultCap:    3,
			MonitorFindingsCap: 40,
			TagBatchSize:       10,
			VisionSeedCap:      3,
		},
		Providers: config.ProvidersConfig{
			LLM: config.LLMConfig{
				Routing: config.LLMRoutingConfig{
					Synthesis: "synth-model",
					Tagging:   "tag-model",
					Vision:    "vision-model",
					Embedding: "embed-model",
				},
			},
		},
	}
}

func newTestOrchestrator(st Store, search webscrape.Client, provider *fakeLLM) *Orchestrator {
	o := New(testConfig(), st, search, provider, nil, log.New(discard{}, "", 0))
	o.sources = nil // monitor scans nothing unless a test installs a catalog
	return o
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func seedProject(ms *memStore, depth string) store.Project {
	p := store.Project{
		ID:       "proj-1",
		Owner:    "user-1",
		Name:     "Ergodic theory survey",
		RawSpec:  "recent advances in ergodic theory",
		Settings: json.RawMessage(fmt.Sprintf(`{"depth":%q}`, depth)),
	}
	ms.projects[p.ID] = p
	return p
}

func TestRunFullPipeline(t *testing.T) {
	ms := newMemStore()
	seedProject(ms, "standard")

	hits := `[
        {"url":"https://a.example.com/p1","title":"Paper One","markdown":"body one body one body one body one body one body one"},
        {"url":"https://b.example.com/p2","title":"Paper Two","markdown":"body two body two body two body two body two body two"},
        {"url":"https://c.example.com/p3","title":"Paper Three","markdown":"body three body three body three body three body three"}
    ]`
	search := &scriptedSearch{searchQueue: []json.RawMessage{json.RawMessage(hits)}}
	provider := &fakeLLM{
		chat:     "# Report",
		chatJSON: `{"Paper One":"dynamics","Paper Two":"dynamics","Paper Three":"analysis"}`,
		embed:    []float32{0.1, 0.2},
	}
	o := newTestOrchestrator(ms, search, provider)

	if err := o.Run(context.Background(), "proj-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ms.docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(ms.docs))
	}
	ids := map[string]struct{}{}
	for id, d := range ms.docs {
		ids[id] = struct{}{}
		if d.SourceType != store.SourceWebSearch {
			t.Fatalf("unexpected source type %q", d.SourceType)
		}
	}
	if len(ids) != 3 {
		t.Fatalf("expected unique document ids")
	}

	saveLogs := ms.logsForStep("save_docs")
	if len(saveLogs) != 3 {
		t.Fatalf("expected 3 save_docs log rows, got %d", len(saveLogs))
	}

	var foundRetrieve bool
	for _, l := range ms.logsForStep("retrieve_seed") {
		if strings.Contains(l.Message, "Found 3 new papers via web search") {
			foundRetrieve = true
		}
	}
	if !foundRetrieve {
		t.Fatalf("missing retrieve_seed result log; logs: %+v", ms.logs)
	}

	if len(ms.chunks) == 0 {
		t.Fatal("expected embedded chunks")
	}
	if len(ms.reports) != 1 || ms.reports[0].Status != "completed" {
		t.Fatalf("expected one completed report, got %+v", ms.reports)
	}
	if got := ms.logsForStep("complete"); len(got) != 1 {
		t.Fatalf("expected one complete log, got %d", len(got))
	}
}

func TestRunSearchFailureIsNotFatal(t *testing.T) {
	ms := newMemStore()
	seedProject(ms, "standard")
	search := &scriptedSearch{searchErr: errors.New("provider quota exhausted")}
	o := newTestOrchestrator(ms, search, &fakeLLM{})

	if err := o.Run(context.Background(), "proj-1"); err != nil {
		t.Fatalf("Run should tolerate search failures, got %v", err)
	}
	if len(ms.docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(ms.docs))
	}

	var errLogged bool
	for _, l := range ms.logsForStep("error") {
		if strings.Contains(l.Message, "retrieve_seed failed") && strings.Contains(l.Message, "provider quota exhausted") {
			errLogged = true
		}
	}
	if !errLogged {
		t.Fatalf("expected retrieve_seed error log; logs: %+v", ms.logs)
	}

	// Seed-dependent stages short-circuit with "nothing to do" entries.
	var idleEmbed bool
	for _, l := range ms.logsForStep("embed") {
		if l.Message == "nothing to embed" {
			idleEmbed = true
		}
	}
	if !idleEmbed {
		t.Fatal("expected embed to log nothing to embed")
	}
	if got := ms.logsForStep("save_docs"); len(got) != 1 || got[0].Message != "No seed documents to save." {
		t.Fatalf("unexpected save_docs logs: %+v", got)
	}
	if got := ms.logsForStep("complete"); len(got) != 1 {
		t.Fatal("pipeline should still complete")
	}
}

func TestRunUnknownProjectIsFatal(t *testing.T) {
	ms := newMemStore()
	o := newTestOrchestrator(ms, &scriptedSearch{}, &fakeLLM{})
	err := o.Run(context.Background(), "missing")
	if !errors.Is(err, store.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
	if len(ms.logs) != 0 {
		t.Fatalf("no logs expected for unknown project, got %+v", ms.logs)
	}
}

func TestRetrieveSeedDedupsByNormalizedURL(t *testing.T) {
	ms := newMemStore()
	hits := `[
        {"url":"https://Example.com/paper/","title":"Paper"},
        {"url":"https://example.com/paper","title":"Paper Again"},
        {"url":"","title":"No URL"}
    ]`
	search := &scriptedSearch{searchQueue: []json.RawMessage{json.RawMessage(hits)}}
	o := newTestOrchestrator(ms, search, &fakeLLM{})

	st := &State{ProjectID: "proj-1", Query: "q"}
	part := o.retrieveSeed(context.Background(), st)
	if part.Err != nil {
		t.Fatalf("retrieveSeed: %v", part.Err)
	}
	if len(part.SeedPapers) != 1 {
		t.Fatalf("expected 1 deduped seed, got %d", len(part.SeedPapers))
	}
	if !strings.Contains(part.Logs[0].Message, "Found 1 new papers") {
		t.Fatalf("unexpected log: %+v", part.Logs)
	}
}
