package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Store wraps the authoritative Postgres database. All pipeline writes and
// replica pulls go through it.
type Store struct {
	DB *sql.DB
}

// ErrProjectNotFound is the only pipeline-fatal store error.
var ErrProjectNotFound = errors.New("project not found")

// Source types recorded on documents.
const (
	SourceWebSearch = "web_search"
	SourceBlog      = "blog"
	SourceGithub    = "github"
	SourceManual    = "manual"
)

// Project is a research project owned by a user.
type Project struct {
	ID        string
	Owner     string
	Name      string
	RawSpec   string
	Settings  json.RawMessage
	CreatedAt time.Time
}

// Depth returns the monitoring depth from project settings, defaulting to
// "standard" when unset or unparseable.
func (p Project) Depth() string {
	var s struct {
		Depth string `json:"depth"`
	}
	if len(p.Settings) > 0 {
		_ = json.Unmarshal(p.Settings, &s)
	}
	if s.Depth == "deep" {
		return "deep"
	}
	return "standard"
}

// Document is a research artifact (paper, blog post, repo) in a project graph.
type Document struct {
	ID               string
	ProjectID        string
	URL              string
	Title            string
	Content          string
	SourceType       string
	MathDensityScore float64
	Metadata         map[string]interface{}
	CreatedAt        time.Time
}

// Citation is a weighted directed edge between two documents.
type Citation struct {
	ProjectID    string
	SourceDocID  string
	TargetDocID  string
	CitationType string
	Weight       float64
	CreatedAt    time.Time
}

// AgentLog is a single pipeline progress entry.
type AgentLog struct {
	ID        int64
	ProjectID string
	Step      string
	Message   string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// ValidationReport is a synthesized research report for a project.
type ValidationReport struct {
	ID              string
	ProjectID       string
	Status          string
	SummaryMarkdown string
	CreatedAt       time.Time
}

// DocumentChunk is an embedded slice of a document's content.
type DocumentChunk struct {
	ID           string
	DocumentID   string
	ChunkIndex   int
	Content      string
	Embedding    []float64
	TokenCount   int
	ContainsMath bool
	CreatedAt    time.Time
}

func New(db *sql.DB) *Store { return &Store{DB: db} }

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Project operations
func (s *Store) CreateProject(ctx context.Context, owner, name, rawSpec string, settings json.RawMessage) (Project, error) {
	if strings.TrimSpace(name) == "" {
		return Project{}, fmt.Errorf("project name required")
	}
	if len(settings) == 0 {
		settings = json.RawMessage(`{}`)
	}
	p := Project{Owner: owner, Name: name, RawSpec: rawSpec, Settings: settings}
	err := s.DB.QueryRowContext(ctx, `
        INSERT INTO projects (owner_id, name, raw_spec, settings)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`,
		owner, name, rawSpec, []byte(settings)).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (Project, error) {
	var p Project
	var settings []byte
	var rawSpec sql.NullString
	err := s.DB.QueryRowContext(ctx, `
        SELECT id, owner_id, name, raw_spec, settings, created_at
        FROM projects WHERE id=$1`, id).
		Scan(&p.ID, &p.Owner, &p.Name, &rawSpec, &settings, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrProjectNotFound
	}
	if err != nil {
		return Project{}, err
	}
	p.RawSpec = rawSpec.String
	p.Settings = json.RawMessage(settings)
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context, owner string) ([]Project, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT id, owner_id, name, raw_spec, settings, created_at
        FROM projects WHERE owner_id=$1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

// ListRecentProjects returns the most recently created projects across all
// owners, newest first. The cron monitor sweep targets these.
func (s *Store) ListRecentProjects(ctx context.Context, limit int) ([]Project, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.DB.QueryContext(ctx, `
        SELECT id, owner_id, name, raw_spec, settings, created_at
        FROM projects ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

func scanProjects(rows *sql.Rows) ([]Project, error) {
	var out []Project
	for rows.Next() {
		var p Project
		var settings []byte
		var rawSpec sql.NullString
		if err := rows.Scan(&p.ID, &p.Owner, &p.Name, &rawSpec, &settings, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.RawSpec = rawSpec.String
		p.Settings = json.RawMessage(settings)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeleteProject(ctx context.Context, id, owner string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=$1 AND owner_id=$2`, id, owner)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// Document operations

// UpsertDocuments inserts or refreshes a batch of documents in one
// transaction. Conflicting ids update mutable fields in place.
func (s *Store) UpsertDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, d := range docs {
		meta, err := marshalMeta(d.Metadata)
		if err != nil {
			return fmt.Errorf("document %s metadata: %w", d.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
            INSERT INTO documents (id, project_id, url, title, content, source_type, math_density_score, metadata)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
            ON CONFLICT (id) DO UPDATE SET
                title=EXCLUDED.title,
                content=EXCLUDED.content,
                math_density_score=EXCLUDED.math_density_score,
                metadata=EXCLUDED.metadata`,
			d.ID, d.ProjectID, d.URL, d.Title, d.Content, d.SourceType, d.MathDensityScore, meta)
		if err != nil {
			return fmt.Errorf("upsert document %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetDocument(ctx context.Context, id string) (Document, bool, error) {
	var d Document
	var meta []byte
	err := s.DB.QueryRowContext(ctx, `
        SELECT id, project_id, url, title, content, source_type, math_density_score, metadata, created_at
        FROM documents WHERE id=$1`, id).
		Scan(&d.ID, &d.ProjectID, &d.URL, &d.Title, &d.Content, &d.SourceType, &d.MathDensityScore, &meta, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &d.Metadata)
	}
	return d, true, nil
}

func (s *Store) ListDocuments(ctx context.Context, projectID string, limit int) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT id, project_id, url, title, content, source_type, math_density_score, metadata, created_at
        FROM documents WHERE project_id=$1 ORDER BY created_at ASC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListDocumentsCreatedAfter returns documents strictly newer than the
// checkpoint, ascending, capped at limit. Replica pulls page with this.
func (s *Store) ListDocumentsCreatedAfter(ctx context.Context, projectID string, after time.Time, limit int) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT id, project_id, url, title, content, source_type, math_density_score, metadata, created_at
        FROM documents WHERE project_id=$1 AND created_at > $2
        ORDER BY created_at ASC LIMIT $3`, projectID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var out []Document
	for rows.Next() {
		var d Document
		var meta []byte
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.URL, &d.Title, &d.Content, &d.SourceType, &d.MathDensityScore, &meta, &d.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &d.Metadata)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDocumentMetadata replaces the metadata document for one document.
func (s *Store) UpdateDocumentMetadata(ctx context.Context, id string, metadata map[string]interface{}) error {
	meta, err := marshalMeta(metadata)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `UPDATE documents SET metadata=$2 WHERE id=$1`, id, meta)
	return err
}

// UpdateDocumentContent refreshes title, content and math density after a
// successful scrape (manual ingest path).
func (s *Store) UpdateDocumentContent(ctx context.Context, id, title, content string, mathDensity float64) error {
	_, err := s.DB.ExecContext(ctx, `
        UPDATE documents SET title=$2, content=$3, math_density_score=$4 WHERE id=$1`,
		id, title, content, mathDensity)
	return err
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	return err
}

// Citation operations

// UpsertCitations inserts edges, ignoring duplicates on (source, target).
func (s *Store) UpsertCitations(ctx context.Context, edges []Citation) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, e := range edges {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO citations (project_id, source_doc_id, target_doc_id, citation_type, weight)
            VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (source_doc_id, target_doc_id) DO NOTHING`,
			e.ProjectID, e.SourceDocID, e.TargetDocID, e.CitationType, e.Weight)
		if err != nil {
			return fmt.Errorf("upsert citation %s->%s: %w", e.SourceDocID, e.TargetDocID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListCitations(ctx context.Context, projectID string, limit int) ([]Citation, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT project_id, source_doc_id, target_doc_id, citation_type, weight, created_at
        FROM citations WHERE project_id=$1 ORDER BY created_at ASC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCitations(rows)
}

// ListCitationsCreatedAfter is the citation analogue of
// ListDocumentsCreatedAfter.
func (s *Store) ListCitationsCreatedAfter(ctx context.Context, projectID string, after time.Time, limit int) ([]Citation, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT project_id, source_doc_id, target_doc_id, citation_type, weight, created_at
        FROM citations WHERE project_id=$1 AND created_at > $2
        ORDER BY created_at ASC LIMIT $3`, projectID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCitations(rows)
}

func scanCitations(rows *sql.Rows) ([]Citation, error) {
	var out []Citation
	for rows.Next() {
		var c Citation
		if err := rows.Scan(&c.ProjectID, &c.SourceDocID, &c.TargetDocID, &c.CitationType, &c.Weight, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Agent log operations
func (s *Store) InsertAgentLog(ctx context.Context, projectID, step, message string, metadata map[string]interface{}) error {
	meta, err := marshalMeta(metadata)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
        INSERT INTO agent_logs (project_id, step, message, metadata)
        VALUES ($1,$2,$3,$4)`, projectID, step, message, meta)
	return err
}

func (s *Store) ListAgentLogs(ctx context.Context, projectID string, limit int) ([]AgentLog, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT id, project_id, step, message, metadata, created_at
        FROM agent_logs WHERE project_id=$1 ORDER BY created_at DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AgentLog
	for rows.Next() {
		var l AgentLog
		var meta []byte
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Step, &l.Message, &meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &l.Metadata)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LatestAgentLogTime reports when a step last ran for a project. The
// scheduler uses it for schedule due checks.
func (s *Store) LatestAgentLogTime(ctx context.Context, projectID, step string) (*time.Time, error) {
	var t sql.NullTime
	err := s.DB.QueryRowContext(ctx, `
        SELECT MAX(created_at) FROM agent_logs WHERE project_id=$1 AND step=$2`,
		projectID, step).Scan(&t)
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

// Validation report operations
func (s *Store) InsertValidationReport(ctx context.Context, projectID, status, summaryMarkdown string) error {
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO validation_reports (project_id, status, summary_markdown)
        VALUES ($1,$2,$3)`, projectID, status, summaryMarkdown)
	return err
}

func (s *Store) LatestValidationReport(ctx context.Context, projectID string) (ValidationReport, bool, error) {
	var r ValidationReport
	err := s.DB.QueryRowContext(ctx, `
        SELECT id, project_id, status, summary_markdown, created_at
        FROM validation_reports WHERE project_id=$1
        ORDER BY created_at DESC LIMIT 1`, projectID).
		Scan(&r.ID, &r.ProjectID, &r.Status, &r.SummaryMarkdown, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ValidationReport{}, false, nil
	}
	if err != nil {
		return ValidationReport{}, false, err
	}
	return r, true, nil
}

// Document chunk operations
func (s *Store) InsertDocumentChunks(ctx context.Context, chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, c := range chunks {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO document_chunks (id, document_id, chunk_index, content, embedding, token_count, contains_math)
            VALUES ($1,$2,$3,$4,$5,$6,$7)
            ON CONFLICT (id) DO NOTHING`,
			c.ID, c.DocumentID, c.ChunkIndex, c.Content, pq.Array(c.Embedding), c.TokenCount, c.ContainsMath)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func marshalMeta(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(m)
}
