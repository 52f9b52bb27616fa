package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/halo-research/halo/internal/store"
)

// Serverless cron callers get ~60s of wall clock; stay under it.
const cronBudget = 55 * time.Second

// CronHandler serves the external scheduler hook: monitor-only sweeps over
// the most recent projects, gated by a static bearer secret.
type CronHandler struct {
	Store    *store.Store
	Orch     AgentRunner
	Secret   string
	Projects int
}

func (h *CronHandler) Register(g *echo.Group) {
	g.GET("/monitor", h.monitor)
}

func (h *CronHandler) monitor(c echo.Context) error {
	if h.Secret != "" {
		if c.Request().Header.Get("Authorization") != "Bearer "+h.Secret {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
	}
	limit := h.Projects
	if limit <= 0 {
		limit = 1
	}
	projects, err := h.Store.ListRecentProjects(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(projects) == 0 {
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "projects": 0})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), cronBudget)
	defer cancel()
	swept := 0
	for _, p := range projects {
		if ctx.Err() != nil {
			break
		}
		if err := h.Orch.RunMonitor(ctx, p); err != nil {
			continue
		}
		swept++
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "projects": swept})
}
