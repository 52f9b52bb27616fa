package server

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/halo-research/halo/config"
	"github.com/halo-research/halo/internal/agent"
	"github.com/halo-research/halo/internal/store"
	"github.com/halo-research/halo/provider/llm"
	"github.com/halo-research/halo/tools/webscrape"
)

const (
	ingestChunkCap   = 20
	ingestMinChunk   = 50
	ingestContentCap = 20000
)

// IngestHandler adds a single URL to a project by hand: scrape, chunk, embed.
type IngestHandler struct {
	Store   *store.Store
	Scraper webscrape.Client
	LLM     llm.Provider
	Routing config.LLMRoutingConfig
}

func (h *IngestHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.ingest)
}

func (h *IngestHandler) ingest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.URL == "" || req.ProjectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url and project_id required")
	}
	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = store.SourceManual
	}
	ctx := c.Request().Context()

	// The document row lands first so the graph shows it immediately; a
	// failed scrape removes it again.
	doc := store.Document{
		ID:         uuid.NewString(),
		ProjectID:  req.ProjectID,
		URL:        req.URL,
		Title:      "Processing...",
		SourceType: sourceType,
		Metadata:   map[string]interface{}{"ingested": true},
	}
	if err := h.Store.UpsertDocuments(ctx, []store.Document{doc}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	res, err := h.Scraper.Scrape(ctx, req.URL)
	if err != nil {
		_ = h.Store.DeleteDocument(ctx, doc.ID)
		return echo.NewHTTPError(http.StatusBadGateway, "scrape failed: "+err.Error())
	}
	content := res.Markdown
	if len(content) > ingestContentCap {
		// Back up to a rune boundary so the cap never splits a character.
		cut := ingestContentCap
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	title := res.Metadata.Title
	if title == "" {
		title = req.URL
	}
	density := agent.MathDensity(content)
	if err := h.Store.UpdateDocumentContent(ctx, doc.ID, title, content, density); err != nil {
		_ = h.Store.DeleteDocument(ctx, doc.ID)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	chunks := h.embedParagraphs(c, doc.ID, content)
	if len(chunks) > 0 {
		if err := h.Store.InsertDocumentChunks(ctx, chunks); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	doc.Title = title
	doc.Content = content
	doc.MathDensityScore = density
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"document": doc,
		"chunks":   len(chunks),
	})
}

// embedParagraphs splits on blank lines and embeds up to the chunk cap.
// Embedding failures degrade to an un-indexed document rather than failing
// the ingest.
func (h *IngestHandler) embedParagraphs(c echo.Context, docID, content string) []store.DocumentChunk {
	ctx := c.Request().Context()
	var chunks []store.DocumentChunk
	idx := 0
	for _, para := range strings.Split(content, "\n\n") {
		if len(chunks) >= ingestChunkCap {
			break
		}
		para = strings.TrimSpace(para)
		if len(para) < ingestMinChunk {
			continue
		}
		vec, err := h.LLM.Embed(ctx, h.Routing.Embedding, para)
		if err != nil {
			break
		}
		emb := make([]float64, len(vec))
		for i, v := range vec {
			emb[i] = float64(v)
		}
		chunks = append(chunks, store.DocumentChunk{
			ID:           uuid.NewString(),
			DocumentID:   docID,
			ChunkIndex:   idx,
			Content:      para,
			Embedding:    emb,
			TokenCount:   len(para) / 4,
			ContainsMath: strings.Contains(para, "$") || strings.Contains(para, `\begin`),
		})
		idx++
	}
	return chunks
}
