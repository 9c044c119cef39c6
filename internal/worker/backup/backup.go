// Package backup はデータベースの日次バックアップジョブを提供する。
// pg_dumpでダンプを作成し、オブジェクトストレージへ日付名で保存する。
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hitoshi/snowpulse/internal/metrics"
	"github.com/hitoshi/snowpulse/internal/scheduler"
)

// JobName はスケジューラに登録するジョブ名。
const JobName = "backup_database"

// backupContentType はダンプファイルのContent-Type。
const backupContentType = "application/octet-stream"

// CommandRunner は外部コマンド実行のインターフェース。テストでの差し替え用。
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// execRunner はos/execによるCommandRunnerの実装。
type execRunner struct{}

// Run はコマンドを実行する。出力は破棄し、終了コードのみ見る。
func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Run()
}

// Uploader はバックアップファイルの保存先。
type Uploader interface {
	Enabled() bool
	UploadFile(ctx context.Context, key, filePath, contentType string) (string, error)
}

// Config はバックアップジョブの動作設定。
type Config struct {
	// Enabled が偽の場合、ジョブは何もせず再スケジュールのみ行う。
	Enabled bool
	// DatabaseURL はpg_dumpに渡す接続文字列。
	DatabaseURL string
	// Interval は次回実行までの遅延。
	Interval time.Duration
}

// Job はデータベース全体をpg_dumpでダンプし、オブジェクトストレージへ
// backups/{日付}.dumpのキーで保存する。ローカルのダンプファイルは
// アップロード後に削除する。読み取り専用の処理のため、取り込み済み
// データを変更・削除することはない。
type Job struct {
	runner    CommandRunner
	uploader  Uploader
	sched     scheduler.Scheduler
	collector metrics.MetricsCollector
	logger    *slog.Logger
	cfg       Config
	tmpDir    string
}

// New はJobの新しいインスタンスを生成する。
func New(
	uploader Uploader,
	sched scheduler.Scheduler,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Job {
	return &Job{
		runner:    execRunner{},
		uploader:  uploader,
		sched:     sched,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
		tmpDir:    os.TempDir(),
	}
}

// NewWithRunner は実行器とテンポラリディレクトリを指定して生成する。テスト用。
func NewWithRunner(
	runner CommandRunner,
	tmpDir string,
	uploader Uploader,
	sched scheduler.Scheduler,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Job {
	return &Job{
		runner:    runner,
		uploader:  uploader,
		sched:     sched,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
		tmpDir:    tmpDir,
	}
}

// Run はジョブを1回実行する。完了後は結果に関わらず次回実行をスケジュールする。
func (j *Job) Run(ctx context.Context, args map[string]string) error {
	start := time.Now()
	defer j.sched.Schedule(JobName, j.cfg.Interval, nil)

	if !j.cfg.Enabled {
		j.logger.Info("バックアップは無効化されているためスキップします")
		return nil
	}
	if !j.uploader.Enabled() {
		j.logger.Warn("オブジェクトストレージが未設定のためバックアップをスキップします")
		return nil
	}

	fileName := fmt.Sprintf("snowpulse_%s.dump", time.Now().Format("2006-01-02"))
	localPath := filepath.Join(j.tmpDir, fileName)
	defer os.Remove(localPath)

	if err := j.runner.Run(ctx, "pg_dump",
		"--format=custom", "--file="+localPath, j.cfg.DatabaseURL,
	); err != nil {
		j.logger.Error("pg_dumpの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("データベースダンプの作成に失敗しました: %w", err)
	}

	key := "backups/" + fileName
	url, err := j.uploader.UploadFile(ctx, key, localPath, backupContentType)
	if err != nil {
		j.logger.Error("バックアップのアップロードに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("バックアップのアップロードに失敗しました: %w", err)
	}
	j.collector.RecordExternalCall("objstore")

	duration := time.Since(start)
	j.collector.RecordJobDuration(JobName, duration)
	j.logger.Info("バックアップが完了しました",
		slog.String("key", key),
		slog.String("url", url),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
