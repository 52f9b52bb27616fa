package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/halo-research/halo/config"
	"github.com/halo-research/halo/internal/replica"
	"github.com/halo-research/halo/internal/store"
	"github.com/halo-research/halo/internal/telemetry"
)

// ReplicaHandler exposes the local replica session: open, local reads,
// local search, close. One session exists at a time; re-opening the same
// project returns the live session, another project gets 409 until close.
type ReplicaHandler struct {
	Store *store.Store
	Cfg   config.ReplicaConfig
	Tele  *telemetry.Telemetry
	Feed  *store.Listener

	mu   sync.Mutex
	sess *replica.Session
}

func (h *ReplicaHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("/open", h.open)
	g.POST("/close", h.close)
	g.GET("/documents", h.documents)
	g.GET("/citations", h.citations)
	g.GET("/search", h.search)
}

func (h *ReplicaHandler) open(c echo.Context) error {
	var req struct {
		ProjectID string `json:"project_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ProjectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project_id required")
	}
	logger := log.New(log.Writer(), "[SYNC] ", log.LstdFlags)
	sess, err := replica.Open(c.Request().Context(), h.Cfg, h.Store, req.ProjectID, h.Tele, logger)
	if err != nil {
		if errors.Is(err, replica.ErrProjectMismatch) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.mu.Lock()
	fresh := h.sess != sess
	h.sess = sess
	h.mu.Unlock()
	if fresh && h.Feed != nil {
		go sess.ConsumeFeed(h.Feed.Events())
	}
	// Seed the replica before answering so the first local read isn't empty.
	if _, err := sess.Pull(c.Request().Context()); err != nil {
		logger.Printf("initial pull: %v", err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"project_id": sess.ProjectID(),
		"path":       sess.Path(),
	})
}

func (h *ReplicaHandler) close(c echo.Context) error {
	h.mu.Lock()
	sess := h.sess
	h.sess = nil
	h.mu.Unlock()
	if sess == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no open replica session")
	}
	if err := sess.Close(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *ReplicaHandler) session() (*replica.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no open replica session")
	}
	return h.sess, nil
}

func (h *ReplicaHandler) documents(c echo.Context) error {
	sess, err := h.session()
	if err != nil {
		return err
	}
	docs, err := sess.Documents(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *ReplicaHandler) citations(c echo.Context) error {
	sess, err := h.session()
	if err != nil {
		return err
	}
	cits, err := sess.Citations(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if cits == nil {
		cits = []store.Citation{}
	}
	return c.JSON(http.StatusOK, cits)
}

func (h *ReplicaHandler) search(c echo.Context) error {
	sess, err := h.session()
	if err != nil {
		return err
	}
	term := c.QueryParam("q")
	if term == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	limit := 10
	if v := c.QueryParam("limit"); v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 {
			limit = n
		}
	}
	ids, err := sess.Search(term, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ids": ids})
}
