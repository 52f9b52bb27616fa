package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/halo-research/halo/config"
	"github.com/halo-research/halo/internal/store"
	"github.com/halo-research/halo/internal/telemetry"
	"github.com/halo-research/halo/provider/llm"
	"github.com/halo-research/halo/tools/webscrape"
)

// Orchestrator drives the research pipeline for one project at a time.
// Stages run strictly in order; a stage failure is recorded as an "error"
// agent log and the run continues. The only fatal condition is a missing
// project.
type Orchestrator struct {
	cfg     config.AgentConfig
	routing config.LLMRoutingConfig
	store   Store
	search  webscrape.Client
	llm     llm.Provider
	sources []Source
	tele    *telemetry.Telemetry
	logger  *log.Logger
}

func New(cfg *config.Config, st Store, search webscrape.Client, provider llm.Provider, tele *telemetry.Telemetry, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	return &Orchestrator{
		cfg:     cfg.Agent,
		routing: cfg.Providers.LLM.Routing,
		store:   st,
		search:  search,
		llm:     provider,
		sources: GlobalSources,
		tele:    tele,
		logger:  logger,
	}
}

// Run executes the full pipeline for a project. The returned error is non-nil
// only when the project cannot be loaded; everything else is best effort.
func (o *Orchestrator) Run(ctx context.Context, projectID string) error {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", projectID, err)
	}

	st := &State{ProjectID: project.ID, Query: project.RawSpec, Depth: project.Depth()}
	if strings.TrimSpace(st.Query) == "" {
		st.Query = project.Name
	}
	o.log(ctx, st.ProjectID, "init", "Initialized agent for query: "+st.Query, nil)

	o.runStage(ctx, st, "retrieve_seed", o.retrieveSeed)
	o.persistSeeds(ctx, st)
	o.runStage(ctx, st, "embed", o.embedDocuments)
	o.runStage(ctx, st, "monitor", o.monitorSources)
	o.runStage(ctx, st, "math_ocr", o.extractMath)
	o.runStage(ctx, st, "expand_graph", o.expandGraph)
	o.runStage(ctx, st, "auto_tag", o.autoTag)
	o.runStage(ctx, st, "synthesize", o.synthesizeReport)

	o.log(ctx, st.ProjectID, "complete", "Workflow cycle completed.", nil)
	return nil
}

// RunMonitor executes only the monitor stage. The cron endpoint and the
// scheduler sweep with this.
func (o *Orchestrator) RunMonitor(ctx context.Context, project store.Project) error {
	st := &State{ProjectID: project.ID, Query: project.RawSpec, Depth: project.Depth()}
	o.runStage(ctx, st, "monitor", o.monitorSources)
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, st *State, name string, fn stageFunc) {
	o.log(ctx, st.ProjectID, name, fmt.Sprintf("Starting %s...", name), nil)
	start := time.Now()
	part := fn(ctx, st)
	if part.SeedPapers != nil {
		st.SeedPapers = part.SeedPapers
	}
	for _, entry := range part.Logs {
		step := entry.Step
		if step == "" {
			step = name
		}
		o.log(ctx, st.ProjectID, step, entry.Message, entry.Metadata)
	}
	if part.Err != nil {
		o.log(ctx, st.ProjectID, "error", fmt.Sprintf("%s failed: %v", name, part.Err), nil)
	}
	o.tele.ObserveStage(name, time.Since(start), part.Err == nil)
}

// persistSeeds writes the seed batch and one log row per saved document. It
// runs between retrieve_seed and embed without a stage banner.
func (o *Orchestrator) persistSeeds(ctx context.Context, st *State) {
	if len(st.SeedPapers) == 0 {
		o.log(ctx, st.ProjectID, "save_docs", "No seed documents to save.", nil)
		return
	}
	if err := o.store.UpsertDocuments(ctx, st.SeedPapers); err != nil {
		o.log(ctx, st.ProjectID, "error", fmt.Sprintf("save_docs failed: %v", err), nil)
		return
	}
	o.tele.AddDocuments("save_docs", len(st.SeedPapers))
	for _, d := range st.SeedPapers {
		o.log(ctx, st.ProjectID, "save_docs", fmt.Sprintf("Saved seed document %q.", d.Title),
			map[string]interface{}{"document_id": d.ID})
	}
}

// log persists a progress entry. Logging never interrupts the pipeline.
func (o *Orchestrator) log(ctx context.Context, projectID, step, message string, metadata map[string]interface{}) {
	if err := o.store.InsertAgentLog(ctx, projectID, step, message, metadata); err != nil {
		o.logger.Printf("agent log write failed (%s/%s): %v", projectID, step, err)
	}
	o.logger.Printf("[%s] %s", step, message)
}

// pause sleeps the politeness delay between provider requests.
func (o *Orchestrator) pause(ctx context.Context) {
	if o.cfg.PolitenessDelay <= 0 {
		return
	}
	t := time.NewTimer(o.cfg.PolitenessDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
