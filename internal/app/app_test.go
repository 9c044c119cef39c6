package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

type countingJob struct {
	calls int
	args  map[string]string
	err   error
}

func (j *countingJob) Run(ctx context.Context, args map[string]string) error {
	j.calls++
	j.args = args
	return j.err
}

func TestDispatchRunsRegisteredJob(t *testing.T) {
	job := &countingJob{}
	d := &jobDispatcher{
		jobs:   map[string]jobRunner{"fetch_news": job},
		logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	}

	d.Dispatch(context.Background(), "fetch_news", map[string]string{"feed_source_id": "fs-1"})

	if job.calls != 1 {
		t.Fatalf("calls = %d, want 1", job.calls)
	}
	if job.args["feed_source_id"] != "fs-1" {
		t.Errorf("args = %v", job.args)
	}
}

func TestDispatchLogsUnknownJob(t *testing.T) {
	var buf bytes.Buffer
	d := &jobDispatcher{
		jobs:   map[string]jobRunner{},
		logger: slog.New(slog.NewJSONHandler(&buf, nil)),
	}

	d.Dispatch(context.Background(), "nonexistent", nil)

	if !strings.Contains(buf.String(), "nonexistent") {
		t.Errorf("log = %q, should mention the unknown job", buf.String())
	}
}

func TestDispatchLogsJobFailure(t *testing.T) {
	var buf bytes.Buffer
	job := &countingJob{err: fmt.Errorf("フィードの取得に失敗しました")}
	d := &jobDispatcher{
		jobs:   map[string]jobRunner{"fetch_news": job},
		logger: slog.New(slog.NewJSONHandler(&buf, nil)),
	}

	d.Dispatch(context.Background(), "fetch_news", nil)

	if job.calls != 1 {
		t.Fatalf("calls = %d, want 1", job.calls)
	}
	if !strings.Contains(buf.String(), "fetch_news") {
		t.Errorf("log = %q, should mention the failed job", buf.String())
	}
}
