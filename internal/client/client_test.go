package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/gridmesh/internal/config"
	"github.com/danmuck/gridmesh/internal/jobstore"
	"github.com/danmuck/gridmesh/internal/server"
	"github.com/danmuck/gridmesh/internal/simulation"
	"github.com/danmuck/gridmesh/internal/testutil/testlog"
	"github.com/danmuck/gridmesh/internal/wire/session"
)

func startDaemon(t *testing.T, jobTimeoutSeconds int64) string {
	t.Helper()
	cfg := config.DaemonConfig{
		Name:              "gridmeshd-test",
		ListenAddr:        "127.0.0.1:0",
		AdminAddr:         "127.0.0.1:0",
		AuthToken:         "secret",
		Workers:           1,
		JobTimeoutSeconds: jobTimeoutSeconds,
		DBPath:            filepath.Join(t.TempDir(), "jobs.db"),
		SecurityMode:      "development",
	}
	svc := server.NewService(cfg)
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return ln.Addr().String()
}

func connect(t *testing.T, addr, token string) *Session {
	t.Helper()
	cli, err := New(Config{Address: addr, ClientName: "client-test", Token: token, MaxConnectAttempts: 3})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, err := cli.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func townStudyJSON(t *testing.T, quietMillis int64) []byte {
	t.Helper()
	study := simulation.Study{
		Name:        "town",
		QuietMillis: quietMillis,
		Nodes: []simulation.NodeSpec{
			{
				Name:         "town",
				Consumptions: []simulation.ConsumptionSpec{{Name: "demand", Cost: 1000, Quantity: 10}},
				Productions:  []simulation.ProductionSpec{{Name: "diesel", Cost: 12, Quantity: 20}},
			},
		},
	}
	payload, err := config.EncodeStudyJSON(study)
	if err != nil {
		t.Fatalf("encode study: %v", err)
	}
	return payload
}

func TestSubmitAndWaitResult(t *testing.T) {
	testlog.Start(t)
	addr := startDaemon(t, 30)
	sess := connect(t, addr, "secret")

	if sess.Server() != "gridmeshd-test" {
		t.Fatalf("unexpected server name %q", sess.Server())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	jobID, err := sess.Submit(ctx, "town", townStudyJSON(t, 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := uuid.Parse(jobID); err != nil {
		t.Fatalf("job id not a uuid: %q", jobID)
	}

	report, err := sess.WaitResult(ctx, jobID)
	if err != nil {
		t.Fatalf("wait result: %v", err)
	}
	if report.JobID != jobID {
		t.Fatalf("result for wrong job: %q", report.JobID)
	}
	if report.TotalCost != 120 {
		t.Fatalf("expected total cost 120, got %d", report.TotalCost)
	}

	var result simulation.Result
	if err := json.Unmarshal(report.Result, &result); err != nil {
		t.Fatalf("decode result payload: %v", err)
	}
	town := result.Nodes["town"]
	if town.Cost != 120 {
		t.Fatalf("town cost = %d, want 120", town.Cost)
	}
	if len(town.Consumptions) != 1 || town.Consumptions[0].Served != 10 {
		t.Fatalf("unexpected consumption totals: %+v", town.Consumptions)
	}

	status, err := sess.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != jobstore.StatusDone {
		t.Fatalf("status = %q, want %q", status.Status, jobstore.StatusDone)
	}
	if status.SubmittedMS == 0 || status.FinishedMS == 0 {
		t.Fatalf("missing timestamps: %+v", status)
	}
}

func TestConnectRejectsBadToken(t *testing.T) {
	testlog.Start(t)
	addr := startDaemon(t, 30)

	cli, err := New(Config{Address: addr, ClientName: "client-test", Token: "wrong"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Connect(ctx); !errors.Is(err, ErrHandshakeRejected) {
		t.Fatalf("expected handshake rejection, got %v", err)
	}
}

func TestConnectGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cli, err := New(Config{Address: addr, ClientName: "client-test", MaxConnectAttempts: 2})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Connect(ctx); err == nil {
		t.Fatal("expected dial failure")
	}
}

func TestStatusForUnknownJob(t *testing.T) {
	testlog.Start(t)
	addr := startDaemon(t, 30)
	sess := connect(t, addr, "secret")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := sess.Status(ctx, uuid.NewString())
	var wireErr session.WireError
	if !errors.As(err, &wireErr) || wireErr.Code != session.CodeUnknownJob {
		t.Fatalf("expected unknown-job error, got %v", err)
	}
}

func TestWaitResultSurfacesJobFailure(t *testing.T) {
	testlog.Start(t)
	addr := startDaemon(t, 1)
	sess := connect(t, addr, "secret")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// The quiet window outlasts the one second job timeout, so the run is
	// killed before it settles.
	jobID, err := sess.Submit(ctx, "stuck", townStudyJSON(t, 5000))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = sess.WaitResult(ctx, jobID)
	var wireErr session.WireError
	if !errors.As(err, &wireErr) || wireErr.Code != session.CodeJobFailed {
		t.Fatalf("expected job-failed error, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{ClientName: "x"}); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected address error, got %v", err)
	}
	if _, err := New(Config{Address: "127.0.0.1:7600"}); !errors.Is(err, ErrClientNameRequired) {
		t.Fatalf("expected client name error, got %v", err)
	}
}
