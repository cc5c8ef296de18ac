package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/danmuck/gridmesh/internal/client"
	"github.com/danmuck/gridmesh/internal/config"
	"github.com/danmuck/gridmesh/internal/observability"
	"github.com/danmuck/gridmesh/internal/wire/session"
)

type options struct {
	mode    string
	addr    string
	token   string
	study   string
	name    string
	job     string
	timeout int64
	wait    bool
}

func main() {
	opts := parseFlags()
	observability.InitLogger("gridmeshctl")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(opts.timeout)*time.Second)
	defer cancel()

	sess, err := connect(ctx, opts)
	if err != nil {
		fatalf("%v", err)
	}
	defer sess.Close()

	switch opts.mode {
	case "submit":
		err = runSubmit(ctx, sess, opts)
	case "status":
		err = runStatus(ctx, sess, opts)
	case "result":
		err = runResult(ctx, sess, opts)
	case "wait":
		err = runWait(ctx, sess, opts)
	default:
		fatalf("unknown mode %q (supported: submit, status, result, wait)", opts.mode)
	}
	if err != nil {
		fatalf("%v", err)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.mode, "mode", "submit", "mode: submit | status | result | wait")
	flag.StringVar(&opts.addr, "addr", envOr("GRIDMESH_ADDR", "127.0.0.1:7600"), "solver daemon address")
	flag.StringVar(&opts.token, "token", envOr("GRIDMESH_TOKEN", ""), "solver auth token")
	flag.StringVar(&opts.study, "study", "", "study file to submit (submit mode)")
	flag.StringVar(&opts.name, "name", "", "job name (defaults to the study name)")
	flag.StringVar(&opts.job, "job", "", "job id (status, result, and wait modes)")
	flag.Int64Var(&opts.timeout, "timeout", 300, "overall timeout in seconds")
	flag.BoolVar(&opts.wait, "wait", false, "wait for the result after submitting")
	flag.Parse()
	return opts
}

func connect(ctx context.Context, opts options) (*client.Session, error) {
	cli, err := client.New(client.Config{
		Address:            opts.addr,
		ClientName:         "gridmeshctl",
		Token:              opts.token,
		MaxConnectAttempts: 3,
	})
	if err != nil {
		return nil, err
	}
	return cli.Connect(ctx)
}

func runSubmit(ctx context.Context, sess *client.Session, opts options) error {
	if opts.study == "" {
		return fmt.Errorf("submit mode requires -study")
	}
	study, err := config.LoadStudy(opts.study)
	if err != nil {
		return err
	}
	payload, err := config.EncodeStudyJSON(study)
	if err != nil {
		return err
	}
	name := opts.name
	if name == "" {
		name = study.Name
	}

	jobID, err := sess.Submit(ctx, name, payload)
	if err != nil {
		return err
	}
	if !opts.wait {
		fmt.Println(jobID)
		return nil
	}

	report, err := sess.WaitResult(ctx, jobID)
	if err != nil {
		return err
	}
	return printResult(report)
}

func runStatus(ctx context.Context, sess *client.Session, opts options) error {
	if opts.job == "" {
		return fmt.Errorf("status mode requires -job")
	}
	report, err := sess.Status(ctx, opts.job)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("job %s status=%s", report.JobID, report.Status)
	if report.Detail != "" {
		line += fmt.Sprintf(" detail=%q", report.Detail)
	}
	if report.FinishedMS > 0 {
		line += fmt.Sprintf(" elapsed_ms=%d", report.FinishedMS-report.SubmittedMS)
	}
	fmt.Println(line)
	return nil
}

func runResult(ctx context.Context, sess *client.Session, opts options) error {
	if opts.job == "" {
		return fmt.Errorf("result mode requires -job")
	}
	report, err := sess.Result(ctx, opts.job)
	if err != nil {
		return err
	}
	return printResult(report)
}

func runWait(ctx context.Context, sess *client.Session, opts options) error {
	if opts.job == "" {
		return fmt.Errorf("wait mode requires -job")
	}
	report, err := sess.WaitResult(ctx, opts.job)
	if err != nil {
		return err
	}
	return printResult(report)
}

func printResult(report session.ResultReport) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, report.Result, "", "  "); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "gridmeshctl: "+format+"\n", args...)
	os.Exit(1)
}
