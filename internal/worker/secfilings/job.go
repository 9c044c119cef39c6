// Package secfilings はSEC EDGARからの提出書類取り込みジョブを提供する。
package secfilings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/snowpulse/internal/ai"
	"github.com/hitoshi/snowpulse/internal/edgar"
	"github.com/hitoshi/snowpulse/internal/markdown"
	"github.com/hitoshi/snowpulse/internal/metrics"
	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/scheduler"
)

// JobName はスケジューラに登録するジョブ名。
const JobName = "fetch_sec_filings"

// progressEvery は進捗ログを出す処理件数の間隔。
const progressEvery = 10

// Config はSEC取り込みジョブの動作設定。
type Config struct {
	// CIK は取得対象企業のSEC登録番号。
	CIK string
	// Interval は次回実行までの遅延。
	Interval time.Duration
}

// Job はEDGARの提出書類インデックスを走査し、対象種別の書類の
// 全文取得とAIサマリー生成を行う。サマリー済みの書類はスキップされる。
type Job struct {
	filings    repository.SecFilingRepository
	client     *edgar.Client
	summarizer *ai.Summarizer
	converter  *markdown.Converter
	sched      scheduler.Scheduler
	collector  metrics.MetricsCollector
	logger     *slog.Logger
	cfg        Config
}

// New はJobの新しいインスタンスを生成する。
func New(
	filings repository.SecFilingRepository,
	client *edgar.Client,
	summarizer *ai.Summarizer,
	converter *markdown.Converter,
	sched scheduler.Scheduler,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Job {
	return &Job{
		filings:    filings,
		client:     client,
		summarizer: summarizer,
		converter:  converter,
		sched:      sched,
		collector:  collector,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run はジョブを1回実行する。完了後は結果に関わらず次回実行を
// スケジュールする。
func (j *Job) Run(ctx context.Context, args map[string]string) error {
	start := time.Now()
	defer j.sched.Schedule(JobName, j.cfg.Interval, nil)

	j.logger.Info("SEC提出書類の取り込みを開始します",
		slog.String("cik", j.cfg.CIK),
		slog.Bool("summary_enabled", j.summarizer.Configured()),
	)

	j.collector.RecordExternalCall("edgar")
	filings, err := j.client.FetchFilings(ctx, j.cfg.CIK)
	if err != nil {
		j.logger.Error("提出書類インデックスの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("提出書類インデックスの取得に失敗しました: %w", err)
	}

	j.logger.Info("対象の提出書類を発見しました",
		slog.Int("filing_count", len(filings)),
	)

	created := 0
	updated := 0
	skipped := 0
	errorCount := 0

	for i, filing := range filings {
		result, err := j.processFiling(ctx, &filing)
		if err != nil {
			errorCount++
			j.logger.Error("提出書類の処理に失敗しました",
				slog.String("form", filing.Form),
				slog.String("filing_date", filing.FilingDate),
				slog.String("error", err.Error()),
			)
		} else {
			switch result {
			case resultCreated:
				created++
			case resultUpdated:
				updated++
			case resultSkipped:
				skipped++
			}
		}

		if (i+1)%progressEvery == 0 {
			j.logger.Info("SEC取り込みの進捗",
				slog.Int("processed", i+1),
				slog.Int("total", len(filings)),
			)
		}
	}

	duration := time.Since(start)
	j.collector.RecordJobDuration(JobName, duration)
	j.logger.Info("SEC提出書類の取り込みが完了しました",
		slog.Int("created", created),
		slog.Int("updated", updated),
		slog.Int("skipped", skipped),
		slog.Int("errors", errorCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

type processResult int

const (
	resultSkipped processResult = iota
	resultCreated
	resultUpdated
)

// processFiling は提出書類1件を取り込む。既にサマリー済みの場合は
// 取得もAI呼び出しも行わずスキップする。
func (j *Job) processFiling(ctx context.Context, filing *edgar.Filing) (processResult, error) {
	existing, err := j.filings.FindByURL(ctx, filing.HTMLLink)
	if err != nil {
		return resultSkipped, fmt.Errorf("既存書類の検索に失敗しました: %w", err)
	}
	if existing != nil && existing.Summary != "" {
		return resultSkipped, nil
	}

	j.collector.RecordExternalCall("edgar")
	document, err := j.client.FetchFilingDocument(ctx, filing, j.cfg.CIK)
	if err != nil {
		return resultSkipped, fmt.Errorf("書類本文の取得に失敗しました: %w", err)
	}
	if document == "" {
		return resultSkipped, nil
	}

	content := j.converter.Convert(document)

	summary := ""
	if j.summarizer.Configured() {
		j.collector.RecordExternalCall("summarizer")
		summary, err = j.summarizer.Summarize(ctx, content)
		if err != nil {
			return resultSkipped, fmt.Errorf("サマリー生成に失敗しました: %w", err)
		}
	}

	filingDate, err := time.Parse("2006-01-02", filing.FilingDate)
	if err != nil {
		return resultSkipped, fmt.Errorf("提出日のパースに失敗しました: %w", err)
	}

	if existing != nil {
		existing.Date = filingDate
		existing.Content = content
		existing.Summary = summary
		if err := j.filings.Update(ctx, existing); err != nil {
			return resultSkipped, fmt.Errorf("書類の更新に失敗しました: %w", err)
		}
		j.logger.Info("提出書類を更新しました",
			slog.String("form", filing.Form),
			slog.String("filing_date", filing.FilingDate),
		)
		return resultUpdated, nil
	}

	record := &model.SecFiling{
		FilingType: filing.FilingType(),
		Date:       filingDate,
		URL:        filing.HTMLLink,
		Content:    content,
		Summary:    summary,
	}
	if err := j.filings.Create(ctx, record); err != nil {
		return resultSkipped, fmt.Errorf("書類の作成に失敗しました: %w", err)
	}
	j.logger.Info("提出書類を作成しました",
		slog.String("form", filing.Form),
		slog.String("filing_date", filing.FilingDate),
	)
	return resultCreated, nil
}
