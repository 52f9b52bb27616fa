package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/halo-research/halo/internal/store"
)

func TestProjectSchedule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		settings string
		fallback string
		want     string
	}{
		{"from settings", `{"monitor_schedule":"@daily"}`, "@hourly", "@daily"},
		{"fallback", `{}`, "0 */6 * * *", "0 */6 * * *"},
		{"hardcoded default", ``, "", "@hourly"},
		{"unparseable settings", `not json`, "", "@hourly"},
	}
	for _, tc := range cases {
		p := store.Project{Settings: json.RawMessage(tc.settings)}
		if got := projectSchedule(p, tc.fallback); got != tc.want {
			t.Fatalf("%s: projectSchedule = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsDueHourly(t *testing.T) {
	t.Parallel()
	if !isDue("@hourly", nil) {
		t.Fatal("never-swept project is always due")
	}
	recent := time.Now().Add(-10 * time.Minute)
	if isDue("@hourly", &recent) {
		t.Fatal("swept 10 minutes ago, not due")
	}
	stale := time.Now().Add(-2 * time.Hour)
	if !isDue("@hourly", &stale) {
		t.Fatal("swept 2 hours ago, due")
	}
}

func TestIsDueDaily(t *testing.T) {
	t.Parallel()
	if !isDue("@daily", nil) {
		t.Fatal("never-swept project is always due")
	}
	recent := time.Now().Add(-2 * time.Hour)
	if isDue("@daily", &recent) {
		t.Fatal("swept 2 hours ago, not due daily")
	}
	stale := time.Now().Add(-25 * time.Hour)
	if !isDue("@daily", &stale) {
		t.Fatal("swept 25 hours ago, due")
	}
}

func TestIsDueCronExpression(t *testing.T) {
	t.Parallel()
	// Fires every minute; anything older than a minute is due.
	stale := time.Now().Add(-5 * time.Minute)
	if !isDue("* * * * *", &stale) {
		t.Fatal("every-minute schedule with a stale sweep is due")
	}
	future := time.Now()
	if isDue("0 0 1 1 *", &future) {
		t.Fatal("yearly schedule swept just now is not due")
	}
}

func TestIsDueInvalidSpecDegradesToDaily(t *testing.T) {
	t.Parallel()
	if !isDue("not a cron spec", nil) {
		t.Fatal("never-swept project is always due")
	}
	recent := time.Now().Add(-2 * time.Hour)
	if isDue("not a cron spec", &recent) {
		t.Fatal("invalid spec behaves like @daily")
	}
	stale := time.Now().Add(-25 * time.Hour)
	if !isDue("not a cron spec", &stale) {
		t.Fatal("invalid spec behaves like @daily")
	}
}
