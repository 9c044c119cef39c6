// Package fetchnews はフィードソースのポーリングジョブを提供する。
package fetchnews

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/snowpulse/internal/feedparse"
	"github.com/hitoshi/snowpulse/internal/fetch"
	"github.com/hitoshi/snowpulse/internal/metrics"
	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/scheduler"
	"github.com/hitoshi/snowpulse/internal/security"
	"github.com/hitoshi/snowpulse/internal/worker/enrich"
)

// JobName はスケジューラに登録するジョブ名。
const JobName = "fetch_news"

// Config はフェッチジョブの動作設定。
type Config struct {
	// SkipWindow は直近フェッチ済みソースをスキップする時間幅。
	// 特定ソース指定の実行では適用されない。
	SkipWindow time.Duration
	// Interval は次回実行までの遅延。
	Interval time.Duration
	// Concurrency は同時にフェッチするソース数の上限。
	Concurrency int
}

// Job はアクティブな全フィードソースをポーリングし、
// 新規エントリをコンテンツとして保存する。
type Job struct {
	feeds     repository.FeedSourceRepository
	items     repository.ContentItemRepository
	fetcher   *fetch.Client
	parser    *feedparse.Parser
	guard     security.OutboundGuardService
	sched     scheduler.Scheduler
	collector metrics.MetricsCollector
	logger    *slog.Logger
	cfg       Config
}

// New はJobの新しいインスタンスを生成する。
func New(
	feeds repository.FeedSourceRepository,
	items repository.ContentItemRepository,
	fetcher *fetch.Client,
	parser *feedparse.Parser,
	guard security.OutboundGuardService,
	sched scheduler.Scheduler,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Job {
	return &Job{
		feeds:     feeds,
		items:     items,
		fetcher:   fetcher,
		parser:    parser,
		guard:     guard,
		sched:     sched,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run はジョブを1回実行する。argsのfeed_source_idが指定されている場合は
// そのソースのみを対象とし、スキップ窓は適用しない。
// 完了後は結果に関わらず次回実行をスケジュールする。
func (j *Job) Run(ctx context.Context, args map[string]string) error {
	start := time.Now()
	feedID := args["feed_source_id"]

	feeds, err := j.selectFeeds(ctx, feedID)
	if err != nil {
		j.reschedule(args)
		return err
	}
	if len(feeds) == 0 {
		j.logger.Info("ポーリング対象のフィードソースがありません")
		j.reschedule(args)
		return nil
	}

	j.logger.Info("フィードソースのポーリングを開始します",
		slog.Int("feed_count", len(feeds)),
	)

	var (
		mu           sync.Mutex
		totalCreated int
		totalFound   int
		errorCount   int
	)

	sem := make(chan struct{}, j.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, feed := range feeds {
		wg.Add(1)
		sem <- struct{}{}
		go func(feed *model.FeedSource) {
			defer wg.Done()
			defer func() { <-sem }()

			found, created, err := j.processFeed(ctx, feed)
			if err != nil {
				j.logger.Warn("フィードソースの処理に失敗しました",
					slog.String("feed_source_id", feed.ID),
					slog.String("title", feed.Title),
					slog.String("error", err.Error()),
				)
				j.collector.RecordFetchFailure(feed.ID, err.Error())
				if recErr := j.feeds.RecordFetchFailure(ctx, feed.ID, err.Error()); recErr != nil {
					j.logger.Error("フェッチ失敗の記録に失敗しました",
						slog.String("feed_source_id", feed.ID),
						slog.String("error", recErr.Error()),
					)
				}
				mu.Lock()
				errorCount++
				mu.Unlock()
				return
			}

			j.collector.RecordFetchSuccess(feed.ID)
			if recErr := j.feeds.RecordFetchSuccess(ctx, feed.ID, time.Now()); recErr != nil {
				j.logger.Error("フェッチ成功の記録に失敗しました",
					slog.String("feed_source_id", feed.ID),
					slog.String("error", recErr.Error()),
				)
			}

			j.logger.Info("フィードソースを処理しました",
				slog.String("feed_source_id", feed.ID),
				slog.String("title", feed.Title),
				slog.Int("found", found),
				slog.Int("created", created),
			)

			mu.Lock()
			totalFound += found
			totalCreated += created
			mu.Unlock()
		}(feed)
	}
	wg.Wait()

	duration := time.Since(start)
	j.collector.RecordItemsCreated(totalCreated)
	j.collector.RecordJobDuration(JobName, duration)

	j.logger.Info("フィードソースのポーリングが完了しました",
		slog.Int("feed_count", len(feeds)),
		slog.Int("found", totalFound),
		slog.Int("created", totalCreated),
		slog.Int("errors", errorCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	// 新規コンテンツがあればエンリッチジョブを即時投入する
	if totalCreated > 0 {
		j.sched.Schedule(enrich.JobName, 0, nil)
	}

	j.reschedule(args)
	return nil
}

// selectFeeds は処理対象のフィードソースを選択する。
func (j *Job) selectFeeds(ctx context.Context, feedID string) ([]*model.FeedSource, error) {
	if feedID != "" {
		feed, err := j.feeds.FindByID(ctx, feedID)
		if err != nil {
			return nil, fmt.Errorf("フィードソースの取得に失敗しました: %w", err)
		}
		if feed == nil {
			j.logger.Warn("指定されたフィードソースが見つかりません",
				slog.String("feed_source_id", feedID),
			)
			return nil, nil
		}
		return []*model.FeedSource{feed}, nil
	}

	cutoff := time.Now().Add(-j.cfg.SkipWindow)
	feeds, err := j.feeds.ListPollable(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("フィードソースの一覧取得に失敗しました: %w", err)
	}
	return feeds, nil
}

// processFeed はフィードソース1件をフェッチ・パースし、新規エントリを保存する。
// 発見したエントリ数と新規作成数を返す。
func (j *Job) processFeed(ctx context.Context, feed *model.FeedSource) (found, created int, err error) {
	if feed.Kind == model.FeedKindScrape {
		// スクレイプソースは未対応
		j.logger.Info("スクレイプソースはスキップします",
			slog.String("feed_source_id", feed.ID),
		)
		return 0, 0, nil
	}

	pollURL := feed.PollURL()
	if pollURL == "" {
		return 0, 0, fmt.Errorf("フェッチURLが設定されていません")
	}

	if err := j.guard.ValidateURL(pollURL); err != nil {
		return 0, 0, fmt.Errorf("URL検証に失敗しました: %w", err)
	}

	res, err := j.fetcher.Get(ctx, pollURL, map[string]string{
		"Accept": "application/rss+xml, application/atom+xml, application/xml, text/xml, */*",
	})
	if err != nil {
		return 0, 0, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	j.collector.RecordHTTPStatus(res.StatusCode)
	if !res.IsSuccess() {
		return 0, 0, fmt.Errorf("フィードの取得に失敗しました: HTTP %d", res.StatusCode)
	}

	parsed, err := j.parser.Parse(res.Body, feed.Kind)
	if err != nil {
		return 0, 0, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	for _, entry := range parsed.Entries {
		item := &model.ContentItem{
			FeedID:      feed.ID,
			Kind:        entry.Kind,
			State:       model.ItemStateNew,
			Active:      true,
			Title:       entry.Title,
			Body:        entry.Body,
			URL:         entry.URL,
			ImageURL:    entry.ImageURL,
			Duration:    entry.Duration,
			PublishedAt: entry.PublishedAt,
		}
		ok, err := j.items.CreateIfAbsent(ctx, item)
		if err != nil {
			j.logger.Warn("コンテンツの保存に失敗しました",
				slog.String("feed_source_id", feed.ID),
				slog.String("url", entry.URL),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			created++
		}
	}

	return len(parsed.Entries), created, nil
}

// reschedule は次回実行を登録する。
func (j *Job) reschedule(args map[string]string) {
	j.sched.Schedule(JobName, j.cfg.Interval, args)
}
