package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const tagSystemPrompt = "You are an ontology curator for a research graph. " +
	"Given a list of document titles, assign each a single topical tag. " +
	`Respond with a JSON object mapping each title verbatim to its tag.`

// autoTag asks the LLM for one topical tag per seed title and patches the
// matching documents' metadata. Titles the model leaves out stay untouched.
func (o *Orchestrator) autoTag(ctx context.Context, st *State) Partial {
	if len(st.SeedPapers) == 0 {
		return Partial{Logs: []LogEntry{{Message: "No documents to tag."}}}
	}
	docs := st.SeedPapers
	if len(docs) > o.cfg.TagBatchSize {
		docs = docs[:o.cfg.TagBatchSize]
	}

	titles := make([]string, 0, len(docs))
	for _, d := range docs {
		titles = append(titles, d.Title)
	}
	out, err := o.llm.ChatJSON(ctx, o.routing.Tagging, tagSystemPrompt, strings.Join(titles, "\n"))
	if err != nil {
		return Partial{Err: fmt.Errorf("tagging completion: %w", err)}
	}
	var tags map[string]string
	if err := json.Unmarshal([]byte(out), &tags); err != nil {
		return Partial{Err: fmt.Errorf("parse tag response: %w", err)}
	}

	tagged := 0
	var logs []LogEntry
	for _, doc := range docs {
		tag, ok := tags[doc.Title]
		if !ok || strings.TrimSpace(tag) == "" {
			continue
		}
		meta := cloneMeta(doc.Metadata)
		meta["tags"] = []string{tag}
		if err := o.store.UpdateDocumentMetadata(ctx, doc.ID, meta); err != nil {
			logs = append(logs, LogEntry{Message: fmt.Sprintf("Tagging %q failed: %v", doc.Title, err)})
			continue
		}
		tagged++
	}
	logs = append(logs, LogEntry{Message: fmt.Sprintf("Ontology tags applied to %d documents.", tagged)})
	return Partial{Logs: logs}
}
