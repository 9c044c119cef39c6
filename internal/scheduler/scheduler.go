// Package scheduler はジョブの遅延実行スケジューリングを提供する。
// ジョブは処理完了時に自分自身の次回実行をここに登録する。
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler はジョブの遅延実行を登録するインターフェース。
// ジョブの自己再スケジュールはこのインターフェース経由で行い、
// テストでは登録内容を検証できる。
type Scheduler interface {
	// Schedule はdelay経過後にジョブを実行するよう登録する。
	// argsはジョブ固有の引数（例: 対象フィードのID）。
	Schedule(name string, delay time.Duration, args map[string]string)
}

// RunFunc は登録されたジョブを実行する関数。
type RunFunc func(ctx context.Context, name string, args map[string]string)

// TimerScheduler はインプロセスのタイマーによるSchedulerの実装。
// プロセス終了でスケジュールは失われるため、各ジョブは起動時にも
// 一度実行されることを前提とする。
type TimerScheduler struct {
	run    RunFunc
	logger *slog.Logger

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

var _ Scheduler = (*TimerScheduler)(nil)

// NewTimerScheduler はTimerSchedulerの新しいインスタンスを生成する。
func NewTimerScheduler(run RunFunc, logger *slog.Logger) *TimerScheduler {
	return &TimerScheduler{
		run:    run,
		logger: logger,
		timers: make(map[*time.Timer]struct{}),
	}
}

// Schedule はdelay経過後にジョブを実行するタイマーを登録する。
// Stop済みの場合は何もしない。
func (s *TimerScheduler) Schedule(name string, delay time.Duration, args map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.logger.Info("ジョブをスケジュールしました",
		slog.String("job", name),
		slog.Duration("delay", delay),
	)

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, timer)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		s.run(context.Background(), name, args)
	})
	s.timers[timer] = struct{}{}
}

// Stop は未発火のタイマーをすべて停止する。以後のScheduleは無視される。
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for timer := range s.timers {
		timer.Stop()
	}
	s.timers = nil
}
