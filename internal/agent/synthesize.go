package agent

import (
	"context"
	"fmt"
	"strings"
)

const synthesisSystemPrompt = "You are a research analyst. Write a concise markdown report " +
	"synthesizing the documents below: key themes, notable results, open questions, " +
	"and a short reading order. Cite documents by title."

// synthesizeReport condenses the seed set into a markdown report stored as a
// validation report.
func (o *Orchestrator) synthesizeReport(ctx context.Context, st *State) Partial {
	if len(st.SeedPapers) == 0 {
		return Partial{Logs: []LogEntry{{Message: "No documents to synthesize."}}}
	}

	var b strings.Builder
	for _, doc := range st.SeedPapers {
		fmt.Fprintf(&b, "## %s\n%s\n\n%s\n\n", doc.Title, doc.URL, clip(doc.Content, 1000))
	}
	report, err := o.llm.Chat(ctx, o.routing.Synthesis, synthesisSystemPrompt, b.String())
	if err != nil {
		return Partial{Err: fmt.Errorf("synthesis completion: %w", err)}
	}
	if err := o.store.InsertValidationReport(ctx, st.ProjectID, "completed", report); err != nil {
		return Partial{Err: fmt.Errorf("store report: %w", err)}
	}
	return Partial{Logs: []LogEntry{{Message: "Generated final research report."}}}
}
