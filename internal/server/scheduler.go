package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/halo-research/halo/internal/store"
)

const schedulerProjectCap = 20

// Scheduler sweeps recent projects on an hourly tick and runs the monitor
// stage for the ones whose schedule is due. A redis SetNX lock keeps multiple
// instances from sweeping the same project.
type Scheduler struct {
	Store           *store.Store
	Rdb             *redis.Client
	Orch            AgentRunner
	DefaultSchedule string
	Stop            chan struct{}
	Logger          *log.Logger
}

func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	projects, err := s.Store.ListRecentProjects(ctx, schedulerProjectCap)
	if err != nil {
		s.Logger.Printf("list projects: %v", err)
		return
	}
	for _, p := range projects {
		last, _ := s.Store.LatestAgentLogTime(ctx, p.ID, "monitor")
		if !isDue(projectSchedule(p, s.DefaultSchedule), last) {
			continue
		}
		if s.Rdb != nil {
			lockKey := "halo:sched:lock:" + p.ID
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if !ok {
				continue
			}
		}
		go func(project store.Project) {
			// jitter to avoid stampedes
			time.Sleep(time.Duration(250+int64(time.Now().UnixNano()%250)) * time.Millisecond)
			runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := s.Orch.RunMonitor(runCtx, project); err != nil {
				s.Logger.Printf("monitor sweep for %s: %v", project.ID, err)
			}
		}(p)
	}
}

// projectSchedule reads the per-project monitor schedule from settings,
// falling back to the configured default.
func projectSchedule(p store.Project, fallback string) string {
	var s struct {
		MonitorSchedule string `json:"monitor_schedule"`
	}
	if len(p.Settings) > 0 {
		_ = json.Unmarshal(p.Settings, &s)
	}
	if s.MonitorSchedule != "" {
		return s.MonitorSchedule
	}
	if fallback != "" {
		return fallback
	}
	return "@hourly"
}

// isDue determines whether a schedule should fire now given the last sweep
// time. Supports @daily, @hourly, and standard cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Invalid spec degrades to @daily.
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		return !expr.Next(*last).After(now)
	}
}
