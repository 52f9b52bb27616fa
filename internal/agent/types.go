package agent

import (
	"context"

	"github.com/halo-research/halo/internal/store"
)

// Store is the slice of the authoritative store the pipeline writes through.
type Store interface {
	GetProject(ctx context.Context, id string) (store.Project, error)
	UpsertDocuments(ctx context.Context, docs []store.Document) error
	UpsertCitations(ctx context.Context, edges []store.Citation) error
	UpdateDocumentMetadata(ctx context.Context, id string, metadata map[string]interface{}) error
	InsertDocumentChunks(ctx context.Context, chunks []store.DocumentChunk) error
	InsertValidationReport(ctx context.Context, projectID, status, summaryMarkdown string) error
	InsertAgentLog(ctx context.Context, projectID, step, message string, metadata map[string]interface{}) error
}

// State is the working memory threaded through a pipeline run.
type State struct {
	ProjectID  string
	Query      string
	Depth      string
	SeedPapers []store.Document
}

// LogEntry is a progress record a stage wants persisted. An empty Step
// defaults to the stage name.
type LogEntry struct {
	Step     string
	Message  string
	Metadata map[string]interface{}
}

// Partial is a stage's contribution to the run. Err marks an internal stage
// failure; it is recorded as an "error" log entry and never propagated to the
// orchestrator's caller.
type Partial struct {
	SeedPapers []store.Document // nil leaves the seed set unchanged
	Logs       []LogEntry
	Err        error
}

type stageFunc func(ctx context.Context, st *State) Partial
