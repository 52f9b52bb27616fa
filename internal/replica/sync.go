package replica

import (
	"context"
	"fmt"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/halo-research/halo/internal/store"
)

// Pull advances the replica by one batch per collection: documents first,
// then citations. Each checkpoint is the created_at of the newest applied
// row, so replays are idempotent and checkpoints only move forward.
func (s *Session) Pull(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = 20
	}
	applied := 0

	docs, err := s.remote.ListDocumentsCreatedAfter(ctx, s.projectID, s.docCheckpoint, batch)
	if err != nil {
		return applied, fmt.Errorf("pull documents: %w", err)
	}
	for _, d := range docs {
		if err := s.applyDocument(ctx, d); err != nil {
			return applied, err
		}
		applied++
	}
	if len(docs) > 0 {
		s.docCheckpoint = docs[len(docs)-1].CreatedAt
	}

	cits, err := s.remote.ListCitationsCreatedAfter(ctx, s.projectID, s.citCheckpoint, batch)
	if err != nil {
		return applied, fmt.Errorf("pull citations: %w", err)
	}
	for _, c := range cits {
		if err := s.applyCitation(ctx, c); err != nil {
			return applied, err
		}
		applied++
	}
	if len(cits) > 0 {
		s.citCheckpoint = cits[len(cits)-1].CreatedAt
	}

	s.tele.ObservePull(applied)
	return applied, nil
}

func (s *Session) applyDocument(ctx context.Context, d store.Document) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO documents
            (id, project_id, url, title, content, source_type, math_density_score, created_at)
        VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.ProjectID, d.URL, d.Title, d.Content, d.SourceType, d.MathDensityScore,
		d.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("apply document %s: %w", d.ID, err)
	}
	return s.index.Index(d.ID, map[string]interface{}{
		"title":   d.Title,
		"content": d.Content,
	})
}

func (s *Session) applyCitation(ctx context.Context, c store.Citation) error {
	id := c.SourceDocID + "_" + c.TargetDocID
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO citations
            (id, source_doc_id, target_doc_id, citation_type, weight, created_at)
        VALUES (?,?,?,?,?,?)`,
		id, c.SourceDocID, c.TargetDocID, c.CitationType, c.Weight,
		c.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("apply citation %s: %w", id, err)
	}
	return nil
}

// Checkpoints reports the replication watermarks, for diagnostics and tests.
func (s *Session) Checkpoints() (docs, citations time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docCheckpoint, s.citCheckpoint
}

// Documents lists the locally replicated documents, oldest first.
func (s *Session) Documents(ctx context.Context) ([]store.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, project_id, url, title, content, source_type, math_density_score, created_at
        FROM documents ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Document
	for rows.Next() {
		var d store.Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.URL, &d.Title, &d.Content, &d.SourceType, &d.MathDensityScore, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Citations lists the locally replicated citation edges, oldest first.
func (s *Session) Citations(ctx context.Context) ([]store.Citation, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT source_doc_id, target_doc_id, citation_type, weight, created_at
        FROM citations ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Citation
	for rows.Next() {
		var c store.Citation
		var createdAt string
		if err := rows.Scan(&c.SourceDocID, &c.TargetDocID, &c.CitationType, &c.Weight, &createdAt); err != nil {
			return nil, err
		}
		c.ProjectID = s.projectID
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Search queries the local full-text index and returns matching document ids,
// best first.
func (s *Session) Search(term string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(term))
	req.Size = limit
	res, err := s.index.Search(req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}
