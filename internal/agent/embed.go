package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/halo-research/halo/internal/store"
)

const embedChunkSize = 1000

// Chunks shorter than this carry no signal worth a provider call.
const embedMinChunkLen = 50

// embedDocuments chunks seed content and stores one embedding per chunk.
// A provider failure skips the rest of that document only.
func (o *Orchestrator) embedDocuments(ctx context.Context, st *State) Partial {
	if len(st.SeedPapers) == 0 {
		return Partial{Logs: []LogEntry{{Message: "nothing to embed"}}}
	}

	var chunks []store.DocumentChunk
	var logs []LogEntry
	for _, doc := range st.SeedPapers {
		idx := 0
		for _, piece := range splitChunks(doc.Content, embedChunkSize) {
			if len(strings.TrimSpace(piece)) < embedMinChunkLen {
				continue
			}
			vec, err := o.llm.Embed(ctx, o.routing.Embedding, piece)
			if err != nil {
				logs = append(logs, LogEntry{Message: fmt.Sprintf("Embedding failed for %q: %v", doc.Title, err)})
				break
			}
			chunks = append(chunks, store.DocumentChunk{
				ID:           uuid.NewString(),
				DocumentID:   doc.ID,
				ChunkIndex:   idx,
				Content:      piece,
				Embedding:    toFloat64(vec),
				TokenCount:   len(piece) / 4,
				ContainsMath: containsMath(piece),
			})
			idx++
		}
	}

	if len(chunks) == 0 {
		logs = append(logs, LogEntry{Message: "nothing to embed"})
		return Partial{Logs: logs}
	}
	if err := o.store.InsertDocumentChunks(ctx, chunks); err != nil {
		return Partial{Err: fmt.Errorf("store chunks: %w", err), Logs: logs}
	}
	logs = append(logs, LogEntry{Message: fmt.Sprintf("Embedded %d chunks via %s.", len(chunks), o.routing.Embedding)})
	return Partial{Logs: logs}
}
