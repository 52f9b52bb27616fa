package agent

import (
	"context"
	"fmt"
)

const visionPrompt = "Transcribe every mathematical expression in this image as LaTeX. " +
	"Return only the LaTeX, one expression per line."

// extractMath runs vision OCR over seed documents that carry an image
// reference, storing the transcription in document metadata.
func (o *Orchestrator) extractMath(ctx context.Context, st *State) Partial {
	if len(st.SeedPapers) == 0 {
		return Partial{Logs: []LogEntry{{Message: "No seed documents for Vision processing."}}}
	}

	var logs []LogEntry
	withImages := 0
	for _, doc := range st.SeedPapers {
		if withImages >= o.cfg.VisionSeedCap {
			break
		}
		img := imageURL(doc.Metadata)
		if img == "" {
			continue
		}
		withImages++

		latex, err := o.llm.Vision(ctx, o.routing.Vision, visionPrompt, img)
		if err != nil {
			logs = append(logs, LogEntry{Message: fmt.Sprintf("Vision failed for %q: %v", doc.Title, err)})
			continue
		}
		meta := cloneMeta(doc.Metadata)
		meta["latex_extraction"] = latex
		if err := o.store.UpdateDocumentMetadata(ctx, doc.ID, meta); err != nil {
			logs = append(logs, LogEntry{Message: fmt.Sprintf("Storing extraction for %q failed: %v", doc.Title, err)})
			continue
		}
		logs = append(logs, LogEntry{Message: "Vision processed: " + doc.Title})
	}

	if withImages == 0 {
		logs = append(logs, LogEntry{Message: "No images found for Vision processing."})
	}
	return Partial{Logs: logs}
}
