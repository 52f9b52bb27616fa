package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/halo-research/halo/internal/store"
)

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.New(db), mock
}

type fakeRunner struct {
	runs     []string
	monitors []string
	runErr   error
}

func (f *fakeRunner) Run(ctx context.Context, projectID string) error {
	f.runs = append(f.runs, projectID)
	return f.runErr
}

func (f *fakeRunner) RunMonitor(ctx context.Context, project store.Project) error {
	f.monitors = append(f.monitors, project.ID)
	return f.runErr
}

func authedContext(t *testing.T, e *echo.Echo, method, target, body, userID string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", userID)
	return c, rec
}

func projectRows(id, owner string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "name", "raw_spec", "settings", "created_at"}).
		AddRow(id, owner, "Project", "spec", []byte(`{}`), time.Now())
}

func TestRunHandlerTriggersPipeline(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM projects WHERE id=$1`)).
		WithArgs("p1").
		WillReturnRows(projectRows("p1", "u1"))

	runner := &fakeRunner{}
	h := &ProjectsHandler{Store: st, Orch: runner}
	c, rec := authedContext(t, echo.New(), http.MethodPost, "/api/agent/run", `{"project_id":"p1"}`, "u1")

	if err := h.run(c); err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["success"] != true || resp["message"] != "Workflow cycle completed." {
		t.Fatalf("unexpected response: %v", resp)
	}
	if len(runner.runs) != 1 || runner.runs[0] != "p1" {
		t.Fatalf("pipeline runs: %v", runner.runs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRunHandlerUnknownProject(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM projects WHERE id=$1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "raw_spec", "settings", "created_at"}))

	runner := &fakeRunner{}
	h := &ProjectsHandler{Store: st, Orch: runner}
	c, _ := authedContext(t, echo.New(), http.MethodPost, "/api/agent/run", `{"project_id":"missing"}`, "u1")

	err := h.run(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	if len(runner.runs) != 0 {
		t.Fatalf("pipeline must not run for a missing project")
	}
}

func TestRunHandlerHidesForeignProjects(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM projects WHERE id=$1`)).
		WithArgs("p1").
		WillReturnRows(projectRows("p1", "someone-else"))

	runner := &fakeRunner{}
	h := &ProjectsHandler{Store: st, Orch: runner}
	c, _ := authedContext(t, echo.New(), http.MethodPost, "/api/agent/run", `{"project_id":"p1"}`, "u1")

	err := h.run(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("foreign projects must 404, got %v", err)
	}
	if len(runner.runs) != 0 {
		t.Fatal("pipeline must not run for a foreign project")
	}
}

func TestRunHandlerRequiresProjectID(t *testing.T) {
	st, _ := newMockStore(t)
	h := &ProjectsHandler{Store: st, Orch: &fakeRunner{}}
	c, _ := authedContext(t, echo.New(), http.MethodPost, "/api/agent/run", `{}`, "u1")

	err := h.run(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestDeleteHandlerNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM projects`)).
		WithArgs("p1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	h := &ProjectsHandler{Store: st}
	c, _ := authedContext(t, echo.New(), http.MethodDelete, "/api/projects/p1", "", "u1")
	c.SetParamNames("id")
	c.SetParamValues("p1")

	err := h.delete(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestReportHandlerNoReportYet(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM projects WHERE id=$1`)).
		WithArgs("p1").
		WillReturnRows(projectRows("p1", "u1"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM validation_reports`)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "status", "summary_markdown", "created_at"}))

	h := &ProjectsHandler{Store: st}
	c, _ := authedContext(t, echo.New(), http.MethodGet, "/api/projects/p1/report", "", "u1")
	c.SetParamNames("id")
	c.SetParamValues("p1")

	err := h.report(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first synthesis, got %v", err)
	}
}
