package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/gridmesh/internal/config"
	"github.com/danmuck/gridmesh/internal/jobstore"
	"github.com/danmuck/gridmesh/internal/observability"
	"github.com/danmuck/gridmesh/internal/testutil/testlog"
)

func adminService(t *testing.T) *Service {
	t.Helper()
	cfg := config.DaemonConfig{
		Name:              "gridmeshd-test",
		ListenAddr:        "127.0.0.1:0",
		AdminAddr:         "127.0.0.1:0",
		AuthToken:         "secret",
		Workers:           1,
		JobTimeoutSeconds: 30,
		DBPath:            filepath.Join(t.TempDir(), "jobs.db"),
		SecurityMode:      "development",
	}
	svc := NewService(cfg)
	if err := svc.boot(); err != nil {
		t.Fatalf("boot: %v", err)
	}
	t.Cleanup(func() { svc.store.Close() })
	return svc
}

func adminGet(t *testing.T, svc *Service, path string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	svc.adminRouter().ServeHTTP(rr, req)
	return rr.Code, rr.Body.Bytes()
}

func TestAdminHealthAndReady(t *testing.T) {
	testlog.Start(t)
	svc := adminService(t)

	code, body := adminGet(t, svc, "/health")
	if code != http.StatusOK {
		t.Fatalf("health status %d: %s", code, body)
	}
	var health map[string]any
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("parse health: %v", err)
	}
	if health["status"] != "ok" || health["component"] != "gridmeshd-test" {
		t.Fatalf("unexpected health body: %v", health)
	}

	code, body = adminGet(t, svc, "/ready")
	if code != http.StatusOK {
		t.Fatalf("ready status %d: %s", code, body)
	}
	var ready map[string]any
	if err := json.Unmarshal(body, &ready); err != nil {
		t.Fatalf("parse ready: %v", err)
	}
	if ready["ready"] != true {
		t.Fatalf("unexpected ready body: %v", ready)
	}
}

func TestAdminListsJobs(t *testing.T) {
	testlog.Start(t)
	svc := adminService(t)
	ctx := context.Background()

	first, second := uuid.New(), uuid.New()
	if _, err := svc.store.Create(ctx, first, "first", []byte(`{}`)); err != nil {
		t.Fatalf("create first: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.store.Create(ctx, second, "second", []byte(`{}`)); err != nil {
		t.Fatalf("create second: %v", err)
	}

	code, body := adminGet(t, svc, "/jobs")
	if code != http.StatusOK {
		t.Fatalf("jobs status %d: %s", code, body)
	}
	var listing struct {
		Jobs   []jobstore.Job   `json:"jobs"`
		Counts map[string]int64 `json:"counts"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("parse jobs: %v", err)
	}
	if len(listing.Jobs) != 2 || listing.Jobs[0].ID != second {
		t.Fatalf("expected newest first, got %+v", listing.Jobs)
	}
	if listing.Counts[jobstore.StatusPending] != 2 {
		t.Fatalf("unexpected counts: %v", listing.Counts)
	}

	code, _ = adminGet(t, svc, "/jobs?limit=1")
	if code != http.StatusOK {
		t.Fatalf("limited jobs status %d", code)
	}
	code, _ = adminGet(t, svc, "/jobs?limit=zero")
	if code != http.StatusBadRequest {
		t.Fatalf("expected bad request for limit, got %d", code)
	}
}

func TestAdminJobByID(t *testing.T) {
	testlog.Start(t)
	svc := adminService(t)
	id := uuid.New()
	if _, err := svc.store.Create(context.Background(), id, "mesh", []byte(`{"name":"mesh"}`)); err != nil {
		t.Fatalf("create: %v", err)
	}

	code, body := adminGet(t, svc, "/jobs/"+id.String())
	if code != http.StatusOK {
		t.Fatalf("job status %d: %s", code, body)
	}
	var job jobstore.Job
	if err := json.Unmarshal(body, &job); err != nil {
		t.Fatalf("parse job: %v", err)
	}
	if job.ID != id || job.Name != "mesh" {
		t.Fatalf("unexpected job: %+v", job)
	}

	code, _ = adminGet(t, svc, "/jobs/"+uuid.NewString())
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", code)
	}
	code, _ = adminGet(t, svc, "/jobs/not-a-uuid")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", code)
	}
}

func TestAdminMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	svc := adminService(t)
	observability.RecordSolverJob("ok", 10*time.Millisecond)

	code, body := adminGet(t, svc, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status %d", code)
	}
	if !strings.Contains(string(body), "gridmesh_solver_jobs_total") {
		t.Fatalf("metrics body missing solver counters")
	}
}
