// Package fetchapps はServiceNow Storeのリスティング同期ジョブを提供する。
package fetchapps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/snowpulse/internal/markdown"
	"github.com/hitoshi/snowpulse/internal/metrics"
	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/scheduler"
	"github.com/hitoshi/snowpulse/internal/store"
)

// JobName はスケジューラに登録するジョブ名。
const JobName = "fetch_apps"

// Config はStore同期ジョブの動作設定。
type Config struct {
	// DetailDelay はアプリ詳細取得の間隔。Storeのレート制限を避ける。
	DetailDelay time.Duration
	// Interval は次回実行までの遅延。
	Interval time.Duration
}

// Job はStoreの全リスティングを取得し、アプリごとの詳細を
// 保存・更新する。purchase_trendには実行日のスナップショットを追記する。
type Job struct {
	apps      repository.StoreAppRepository
	client    *store.Client
	converter *markdown.Converter
	sched     scheduler.Scheduler
	collector metrics.MetricsCollector
	logger    *slog.Logger
	cfg       Config
}

// New はJobの新しいインスタンスを生成する。
func New(
	apps repository.StoreAppRepository,
	client *store.Client,
	converter *markdown.Converter,
	sched scheduler.Scheduler,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Job {
	return &Job{
		apps:      apps,
		client:    client,
		converter: converter,
		sched:     sched,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run はジョブを1回実行する。argsのapp_id（source_app_id）が指定されて
// いる場合はそのアプリのみ更新し、再スケジュールしない。
func (j *Job) Run(ctx context.Context, args map[string]string) error {
	if appID := args["app_id"]; appID != "" {
		return j.runSingle(ctx, appID)
	}
	return j.runAll(ctx)
}

// runSingle は特定アプリ1件のみを更新する。
func (j *Job) runSingle(ctx context.Context, sourceAppID string) error {
	j.logger.Info("Storeアプリを個別更新します",
		slog.String("source_app_id", sourceAppID),
	)

	session, err := j.client.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("Storeセッションの確立に失敗しました: %w", err)
	}

	j.collector.RecordExternalCall("store")
	detail, err := j.client.FetchDetail(ctx, session, sourceAppID, "", false)
	if err != nil {
		return fmt.Errorf("アプリ詳細の取得に失敗しました: %w", err)
	}

	if err := j.saveApp(ctx, detail); err != nil {
		return err
	}

	j.logger.Info("Storeアプリを更新しました",
		slog.String("source_app_id", sourceAppID),
		slog.String("title", detail.Title),
	)
	return nil
}

// runAll は全リスティングを同期する。完了後は結果に関わらず次回実行を
// スケジュールする。
func (j *Job) runAll(ctx context.Context) error {
	start := time.Now()
	defer j.sched.Schedule(JobName, j.cfg.Interval, nil)

	j.logger.Info("Storeリスティングの同期を開始します")

	session, err := j.client.OpenSession(ctx)
	if err != nil {
		j.logger.Error("Storeセッションの確立に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("Storeセッションの確立に失敗しました: %w", err)
	}

	j.collector.RecordExternalCall("store")
	listing, err := j.client.FetchListing(ctx, session)
	if err != nil {
		j.logger.Error("リスティングの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("リスティングの取得に失敗しました: %w", err)
	}

	j.logger.Info("リスティングを取得しました",
		slog.Int("app_count", len(listing)),
	)

	processed := 0
	errorCount := 0
	for i, entry := range listing {
		// Storeのレート制限を避けるため詳細取得の間隔を空ける
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(j.cfg.DetailDelay):
			}
		}

		j.collector.RecordExternalCall("store")
		detail, err := j.client.FetchDetail(ctx, session, entry.SourceAppID, entry.Version, entry.IsUpcomingIntegration)
		if err != nil {
			errorCount++
			j.logger.Warn("アプリ詳細の取得に失敗しました",
				slog.String("source_app_id", entry.SourceAppID),
				slog.String("title", entry.Title),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := j.saveApp(ctx, detail); err != nil {
			errorCount++
			j.logger.Warn("アプリの保存に失敗しました",
				slog.String("source_app_id", entry.SourceAppID),
				slog.String("error", err.Error()),
			)
			continue
		}

		processed++
		j.logger.Info("アプリを処理しました",
			slog.Int("index", i+1),
			slog.Int("total", len(listing)),
			slog.String("title", detail.Title),
		)
	}

	duration := time.Since(start)
	j.collector.RecordJobDuration(JobName, duration)
	j.logger.Info("Storeリスティングの同期が完了しました",
		slog.Int("processed", processed),
		slog.Int("errors", errorCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// saveApp はアプリ詳細を保存する。既存アプリはpurchase_trendに
// 当日分を追記して更新し、新規アプリは当日分のみで作成する。
func (j *Job) saveApp(ctx context.Context, detail *store.AppDetail) error {
	if detail.SourceAppID == "" {
		return fmt.Errorf("source_app_idがありません")
	}

	app := detail.ToModel(j.converter)
	now := time.Now()
	app.LastFetchedAt = &now

	today := now.Format("2006-01-02")
	point := model.TrendPoint{
		Count:   app.PurchaseCount,
		Price:   app.DisplayPrice,
		Version: app.Version,
	}

	existing, err := j.apps.FindBySourceAppID(ctx, app.SourceAppID)
	if err != nil {
		return fmt.Errorf("既存アプリの検索に失敗しました: %w", err)
	}

	if existing != nil {
		app.ID = existing.ID
		app.PurchaseTrend = store.AppendTrend(existing.PurchaseTrend, today, point)
		if err := j.apps.Update(ctx, app); err != nil {
			return fmt.Errorf("アプリの更新に失敗しました: %w", err)
		}
		return nil
	}

	app.PurchaseTrend = store.AppendTrend("", today, point)
	if err := j.apps.Create(ctx, app); err != nil {
		return fmt.Errorf("アプリの作成に失敗しました: %w", err)
	}
	return nil
}
