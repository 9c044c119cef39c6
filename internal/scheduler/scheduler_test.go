package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestTimerSchedulerFires(t *testing.T) {
	done := make(chan map[string]string, 1)
	s := NewTimerScheduler(func(ctx context.Context, name string, args map[string]string) {
		if name != "fetch_news" {
			t.Errorf("name = %q, want fetch_news", name)
		}
		done <- args
	}, discardLogger())
	defer s.Stop()

	s.Schedule("fetch_news", time.Millisecond, map[string]string{"feed_source_id": "f1"})

	select {
	case args := <-done:
		if args["feed_source_id"] != "f1" {
			t.Errorf("args = %v", args)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduled job did not fire")
	}
}

func TestTimerSchedulerStopCancelsPending(t *testing.T) {
	var mu sync.Mutex
	fired := false
	s := NewTimerScheduler(func(ctx context.Context, name string, args map[string]string) {
		mu.Lock()
		fired = true
		mu.Unlock()
	}, discardLogger())

	s.Schedule("fetch_news", 50*time.Millisecond, nil)
	s.Stop()

	// 停止後のScheduleは無視される
	s.Schedule("fetch_news", time.Millisecond, nil)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Error("job fired after Stop")
	}
}
