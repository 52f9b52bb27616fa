package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/halo-research/halo/config"
	"github.com/halo-research/halo/internal/agent"
	"github.com/halo-research/halo/internal/graph"
	"github.com/halo-research/halo/internal/store"
	"github.com/halo-research/halo/internal/telemetry"
	"github.com/halo-research/halo/provider/llm"
	"github.com/halo-research/halo/tools/webscrape"
)

// Run wires the service and blocks serving HTTP.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	dsn := cfg.Databases.Postgres.DSN()
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		baseLogger.Printf("auto-migrate skipped: %v", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	var tele *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		tele = telemetry.New(prometheus.DefaultRegisterer)
	}

	scraper := webscrape.New(cfg.Providers.Firecrawl)
	llmClient, err := llm.New(cfg.Providers.LLM)
	if err != nil {
		return err
	}
	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch := agent.New(cfg, st, scraper, llmClient, tele, orchLogger)

	feed, err := store.NewListener(dsn, log.New(log.Writer(), "[FEED] ", log.LstdFlags))
	if err != nil {
		// Replicas fall back to interval pulls without the feed.
		baseLogger.Printf("change feed unavailable: %v", err)
		feed = nil
	}

	secret := cfg.General.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	ph := &ProjectsHandler{Store: st, Orch: orch, Graph: &graph.Builder{Store: st}}
	ph.Register(api.Group("/projects"), auth.Secret)
	ph.RegisterRun(api.Group("/agent"), auth.Secret)

	ih := &IngestHandler{Store: st, Scraper: scraper, LLM: llmClient, Routing: cfg.Providers.LLM.Routing}
	ih.Register(api.Group("/ingest"), auth.Secret)

	rh := &ReplicaHandler{Store: st, Cfg: cfg.Replica, Tele: tele, Feed: feed}
	rh.Register(api.Group("/replica"), auth.Secret)

	ch := &CronHandler{Store: st, Orch: orch, Secret: cfg.General.CronSecret}
	ch.Register(api.Group("/cron"))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Databases.Redis.Addr(),
		Password: cfg.Databases.Redis.Password,
		DB:       cfg.Databases.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
	}
	sched := &Scheduler{
		Store:           st,
		Rdb:             rdb,
		Orch:            orch,
		DefaultSchedule: cfg.Agent.MonitorSchedule,
		Stop:            make(chan struct{}),
	}
	sched.Start()

	addr := cfg.General.Listen
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
