package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/halo-research/halo/internal/graph"
	"github.com/halo-research/halo/internal/store"
)

// AgentRunner is the pipeline surface the HTTP layer triggers.
type AgentRunner interface {
	Run(ctx context.Context, projectID string) error
	RunMonitor(ctx context.Context, project store.Project) error
}

type ProjectsHandler struct {
	Store *store.Store
	Orch  AgentRunner
	Graph *graph.Builder
}

func (h *ProjectsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
	g.GET("/:id/graph", h.graph)
	g.GET("/:id/logs", h.logs)
	g.GET("/:id/report", h.report)
}

// RegisterRun mounts the pipeline trigger under /agent.
func (h *ProjectsHandler) RegisterRun(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("/run", h.run)
}

func (h *ProjectsHandler) create(c echo.Context) error {
	var req ProjectCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	owner := c.Get("user_id").(string)
	p, err := h.Store.CreateProject(c.Request().Context(), owner, req.Name, req.RawSpec, req.Settings)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *ProjectsHandler) list(c echo.Context) error {
	owner := c.Get("user_id").(string)
	projects, err := h.Store.ListProjects(c.Request().Context(), owner)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if projects == nil {
		projects = []store.Project{}
	}
	return c.JSON(http.StatusOK, projects)
}

func (h *ProjectsHandler) get(c echo.Context) error {
	p, err := h.loadOwned(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *ProjectsHandler) delete(c echo.Context) error {
	owner := c.Get("user_id").(string)
	err := h.Store.DeleteProject(c.Request().Context(), c.Param("id"), owner)
	if errors.Is(err, store.ErrProjectNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ProjectsHandler) graph(c echo.Context) error {
	if _, err := h.loadOwned(c); err != nil {
		return err
	}
	snap, err := h.Graph.Snapshot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *ProjectsHandler) logs(c echo.Context) error {
	if _, err := h.loadOwned(c); err != nil {
		return err
	}
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	logs, err := h.Store.ListAgentLogs(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if logs == nil {
		logs = []store.AgentLog{}
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *ProjectsHandler) report(c echo.Context) error {
	if _, err := h.loadOwned(c); err != nil {
		return err
	}
	rep, ok, err := h.Store.LatestValidationReport(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no report yet")
	}
	return c.JSON(http.StatusOK, rep)
}

// run triggers the full pipeline and waits for it to finish. Stage failures
// are visible in the agent logs, not here; only a missing project fails the
// request.
func (h *ProjectsHandler) run(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ProjectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project_id required")
	}
	owner := c.Get("user_id").(string)
	p, err := h.Store.GetProject(c.Request().Context(), req.ProjectID)
	if errors.Is(err, store.ErrProjectNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if p.Owner != owner {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	if err := h.Orch.Run(c.Request().Context(), p.ID); err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "project not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "Workflow cycle completed."})
}

func (h *ProjectsHandler) loadOwned(c echo.Context) (store.Project, error) {
	owner := c.Get("user_id").(string)
	p, err := h.Store.GetProject(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrProjectNotFound) {
		return store.Project{}, echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	if err != nil {
		return store.Project{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if p.Owner != owner {
		return store.Project{}, echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	return p, nil
}
