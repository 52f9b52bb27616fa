package graph

import (
	"context"
	"fmt"

	"github.com/halo-research/halo/internal/store"
)

// Caps keep snapshots renderable in a browser.
const (
	MaxNodes = 1000
	MaxEdges = 2000
)

const defaultNodeColor = "#6366f1"

// sourceColors maps document source types to node colors.
var sourceColors = map[string]string{
	store.SourceWebSearch: "#6366f1",
	store.SourceBlog:      "#10b981",
	store.SourceGithub:    "#f97316",
	store.SourceManual:    "#eab308",
}

// SnapshotStore is the read surface the builder needs.
type SnapshotStore interface {
	ListDocuments(ctx context.Context, projectID string, limit int) ([]store.Document, error)
	ListCitations(ctx context.Context, projectID string, limit int) ([]store.Citation, error)
}

// Node is a renderable document.
type Node struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	URL        string  `json:"url"`
	SourceType string  `json:"source_type"`
	Radius     float64 `json:"radius"`
	Color      string  `json:"color"`
}

// Edge is a renderable citation between two present nodes.
type Edge struct {
	ID           string  `json:"id"`
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	CitationType string  `json:"citation_type"`
	Weight       float64 `json:"weight"`
}

// Snapshot is a bounded, render-ready view of a project graph.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Builder assembles snapshots from the store.
type Builder struct {
	Store SnapshotStore
}

// Snapshot builds the read model: at most MaxNodes documents and MaxEdges
// citations, with edges referencing absent endpoints filtered out.
func (b *Builder) Snapshot(ctx context.Context, projectID string) (Snapshot, error) {
	docs, err := b.Store.ListDocuments(ctx, projectID, MaxNodes)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list documents: %w", err)
	}
	cits, err := b.Store.ListCitations(ctx, projectID, MaxEdges)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list citations: %w", err)
	}

	nodes := make([]Node, 0, len(docs))
	present := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		present[d.ID] = struct{}{}
		color, ok := sourceColors[d.SourceType]
		if !ok {
			color = defaultNodeColor
		}
		nodes = append(nodes, Node{
			ID:         d.ID,
			Label:      d.Title,
			URL:        d.URL,
			SourceType: d.SourceType,
			Radius:     10 + 5*d.MathDensityScore,
			Color:      color,
		})
	}

	edges := make([]Edge, 0, len(cits))
	for _, c := range cits {
		if _, ok := present[c.SourceDocID]; !ok {
			continue
		}
		if _, ok := present[c.TargetDocID]; !ok {
			continue
		}
		edges = append(edges, Edge{
			ID:           c.SourceDocID + "_" + c.TargetDocID,
			Source:       c.SourceDocID,
			Target:       c.TargetDocID,
			CitationType: c.CitationType,
			Weight:       c.Weight,
		})
	}
	return Snapshot{Nodes: nodes, Edges: edges}, nil
}
