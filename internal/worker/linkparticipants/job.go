// Package linkparticipants は参加者と企業の紐付けジョブを提供する。
package linkparticipants

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/snowpulse/internal/metrics"
	"github.com/hitoshi/snowpulse/internal/participant"
	"github.com/hitoshi/snowpulse/internal/repository"
)

// JobName はスケジューラに登録するジョブ名。
const JobName = "link_participants"

// progressEvery は進捗ログを出す処理件数の間隔。
const progressEvery = 500

// Job は所属企業ヒントを持つ未リンクの参加者を企業レコードに紐付ける。
// 完全一致 → 前方一致 → 逆前方一致の順でマッチングする。
type Job struct {
	participants repository.ParticipantRepository
	companies    repository.CompanyRepository
	collector    metrics.MetricsCollector
	logger       *slog.Logger
}

// New はJobの新しいインスタンスを生成する。
func New(
	participants repository.ParticipantRepository,
	companies repository.CompanyRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Job {
	return &Job{
		participants: participants,
		companies:    companies,
		collector:    collector,
		logger:       logger,
	}
}

// Run はジョブを1回実行する。
func (j *Job) Run(ctx context.Context, args map[string]string) error {
	start := time.Now()

	companies, err := j.companies.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("企業一覧の取得に失敗しました: %w", err)
	}
	j.logger.Info("参加者リンクを開始します",
		slog.Int("company_count", len(companies)),
	)

	unlinked, err := j.participants.ListUnlinkedWithCompanyHint(ctx)
	if err != nil {
		return fmt.Errorf("未リンク参加者の取得に失敗しました: %w", err)
	}
	j.logger.Info("リンク対象の参加者を取得しました",
		slog.Int("participant_count", len(unlinked)),
	)

	linked := 0
	unmatched := 0
	unmatchedNames := map[string]int{}

	for i, p := range unlinked {
		hint := strings.TrimSpace(p.CompanyName)
		if hint == "" {
			continue
		}

		match := participant.MatchCompany(companies, hint)
		if match == nil {
			unmatched++
			unmatchedNames[hint]++
		} else {
			if err := j.participants.LinkCompany(ctx, p.ID, match.ID); err != nil {
				j.logger.Warn("参加者の企業リンクに失敗しました",
					slog.String("participant_id", p.ID),
					slog.String("company_id", match.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			linked++
		}

		if (i+1)%progressEvery == 0 {
			j.logger.Info("参加者リンクの進捗",
				slog.Int("processed", i+1),
				slog.Int("total", len(unlinked)),
				slog.Int("linked", linked),
				slog.Int("unmatched", unmatched),
			)
		}
	}

	if len(unmatchedNames) > 0 {
		j.logger.Info("マッチしなかった企業名の上位",
			slog.String("names", topUnmatched(unmatchedNames, 10)),
		)
	}

	duration := time.Since(start)
	j.collector.RecordJobDuration(JobName, duration)
	j.logger.Info("参加者リンクが完了しました",
		slog.Int("linked", linked),
		slog.Int("unmatched", unmatched),
		slog.Int("total", len(unlinked)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// topUnmatched は未マッチ企業名の出現回数上位をJSONで返す。
func topUnmatched(counts map[string]int, limit int) string {
	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, k int) bool {
		if entries[i].count != entries[k].count {
			return entries[i].count > entries[k].count
		}
		return entries[i].name < entries[k].name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	top := make(map[string]int, len(entries))
	for _, e := range entries {
		top[e.name] = e.count
	}
	data, err := json.Marshal(top)
	if err != nil {
		return ""
	}
	return string(data)
}
