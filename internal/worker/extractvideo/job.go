// Package extractvideo は動画トランスクリプトからの参加者抽出ジョブを提供する。
package extractvideo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/snowpulse/internal/ai"
	"github.com/hitoshi/snowpulse/internal/metrics"
	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/participant"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/transcript"
)

// JobName はスケジューラに登録するジョブ名。
const JobName = "extract_video_participants"

// Job は動画の字幕からAIで登壇者名を抽出し、参加者レコードを
// アップサートする。session_idが指定された場合はセッションにも紐付ける。
type Job struct {
	participants repository.ParticipantRepository
	resolver     *participant.Resolver
	transcripts  *transcript.Fetcher
	extractor    *ai.Extractor
	collector    metrics.MetricsCollector
	logger       *slog.Logger
}

// New はJobの新しいインスタンスを生成する。
func New(
	participants repository.ParticipantRepository,
	resolver *participant.Resolver,
	transcripts *transcript.Fetcher,
	extractor *ai.Extractor,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Job {
	return &Job{
		participants: participants,
		resolver:     resolver,
		transcripts:  transcripts,
		extractor:    extractor,
		collector:    collector,
		logger:       logger,
	}
}

// Run はジョブを1回実行する。argsのvideo_urlは必須、session_idは任意。
func (j *Job) Run(ctx context.Context, args map[string]string) error {
	start := time.Now()
	videoURL := args["video_url"]
	sessionID := args["session_id"]

	if videoURL == "" {
		return fmt.Errorf("video_urlが指定されていません")
	}
	if !j.extractor.Configured() {
		return fmt.Errorf("参加者抽出のAPIキーが未設定です")
	}

	j.logger.Info("動画参加者の抽出を開始します",
		slog.String("video_url", videoURL),
	)

	text, err := j.transcripts.Fetch(ctx, videoURL)
	if err != nil {
		j.logger.Error("トランスクリプトの取得に失敗しました",
			slog.String("video_url", videoURL),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("トランスクリプトの取得に失敗しました: %w", err)
	}

	j.logger.Info("トランスクリプトを取得しました",
		slog.Int("length", len(text)),
	)

	j.collector.RecordExternalCall("extractor")
	extracted, err := j.extractor.ExtractParticipants(ctx, text)
	if err != nil {
		return fmt.Errorf("参加者の抽出に失敗しました: %w", err)
	}

	j.logger.Info("参加者を抽出しました",
		slog.Int("participant_count", len(extracted)),
	)

	upserted := 0
	for _, e := range extracted {
		if err := j.upsertParticipant(ctx, e, sessionID); err != nil {
			j.logger.Warn("参加者の保存に失敗しました",
				slog.String("name", e.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		upserted++
	}

	duration := time.Since(start)
	j.collector.RecordJobDuration(JobName, duration)
	j.logger.Info("動画参加者の抽出が完了しました",
		slog.Int("found", len(extracted)),
		slog.Int("upserted", upserted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// upsertParticipant は抽出結果1人分を保存する。新規作成時は全項目を
// 設定し、既存レコードには値のある項目のみ上書きする。
func (j *Job) upsertParticipant(ctx context.Context, e ai.ExtractedParticipant, sessionID string) error {
	p, created, err := j.resolver.FindOrCreate(ctx, e.Name, func(p *model.Participant) {
		p.Title = e.Title
		p.CompanyName = e.Company
	})
	if err != nil {
		return err
	}

	if !created {
		changed := false
		if e.Title != "" && e.Title != p.Title {
			p.Title = e.Title
			changed = true
		}
		if e.Company != "" && e.Company != p.CompanyName {
			p.CompanyName = e.Company
			changed = true
		}
		if changed {
			if err := j.participants.Update(ctx, p); err != nil {
				return fmt.Errorf("参加者の更新に失敗しました: %w", err)
			}
		}
	}

	j.logger.Info("参加者をアップサートしました",
		slog.String("name", p.Name),
		slog.Bool("created", created),
	)

	if sessionID != "" {
		if err := j.participants.LinkSession(ctx, sessionID, p.ID); err != nil {
			return fmt.Errorf("セッションへの紐付けに失敗しました: %w", err)
		}
	}

	return nil
}
