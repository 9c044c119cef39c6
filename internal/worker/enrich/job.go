package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/snowpulse/internal/fetch"
	"github.com/hitoshi/snowpulse/internal/metrics"
	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/objstore"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/scheduler"
	"github.com/hitoshi/snowpulse/internal/security"
)

// minMentionLength はこれ未満の参加者名をメンション走査から除外する。
const minMentionLength = 3

// imagePatterns は記事ページからサムネイル画像を探すメタタグのパターン。
// og:imageとtwitter:imageの両方を、属性順の両パターンで試す。
var imagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<meta[^>]*property=["']og:image["'][^>]*content=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)<meta[^>]*content=["']([^"']+)["'][^>]*property=["']og:image["']`),
	regexp.MustCompile(`(?i)<meta[^>]*name=["']twitter:image["'][^>]*content=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)<meta[^>]*content=["']([^"']+)["'][^>]*name=["']twitter:image["']`),
}

// Config はエンリッチジョブの動作設定。
type Config struct {
	// BatchSize は1回の実行で処理する上限。
	BatchSize int
	// FollowUpDelay は残件がある場合の追加バッチの遅延。
	FollowUpDelay time.Duration
}

// Job は未エンリッチのコンテンツに対して画像取得・保存と
// 参加者メンションの関連付けを行い、状態をenrichedに進める。
// 処理中にエラーが発生したコンテンツはerror状態になる。
type Job struct {
	items        repository.ContentItemRepository
	participants repository.ParticipantRepository
	fetcher      *fetch.Client
	guard        security.OutboundGuardService
	uploader     *objstore.Uploader
	sched        scheduler.Scheduler
	collector    metrics.MetricsCollector
	logger       *slog.Logger
	cfg          Config
}

// New はJobの新しいインスタンスを生成する。uploaderはnil可（保存無効）。
func New(
	items repository.ContentItemRepository,
	participants repository.ParticipantRepository,
	fetcher *fetch.Client,
	guard security.OutboundGuardService,
	uploader *objstore.Uploader,
	sched scheduler.Scheduler,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Job {
	return &Job{
		items:        items,
		participants: participants,
		fetcher:      fetcher,
		guard:        guard,
		uploader:     uploader,
		sched:        sched,
		collector:    collector,
		logger:       logger,
		cfg:          cfg,
	}
}

// Run はジョブを1回実行する。argsのitem_idが指定されている場合は
// そのコンテンツのみを処理する。バッチ処理後に未処理が残っている場合は
// 追加バッチをスケジュールする。
func (j *Job) Run(ctx context.Context, args map[string]string) error {
	start := time.Now()
	itemID := args["item_id"]

	j.logger.Info("エンリッチジョブを開始します",
		slog.Bool("storage_enabled", j.uploader.Enabled()),
	)

	items, err := j.selectItems(ctx, itemID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		j.logger.Info("エンリッチ対象のコンテンツがありません")
		return nil
	}

	// メンション走査用の参加者は1回だけロードする
	named, err := j.participants.ListNamed(ctx)
	if err != nil {
		j.logger.Error("参加者一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		named = nil
	}

	processed := 0
	errorCount := 0
	for _, item := range items {
		if err := j.enrichItem(ctx, item, named); err != nil {
			errorCount++
			j.logger.Warn("コンテンツのエンリッチに失敗しました",
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()),
			)
			j.collector.RecordEnrichment("error")
			if updateErr := j.items.UpdateState(ctx, item.ID, model.ItemStateError); updateErr != nil {
				j.logger.Error("コンテンツ状態の更新に失敗しました",
					slog.String("item_id", item.ID),
					slog.String("error", updateErr.Error()),
				)
			}
			continue
		}
		processed++
		j.collector.RecordEnrichment("enriched")
	}

	duration := time.Since(start)
	j.collector.RecordJobDuration(JobName, duration)
	j.logger.Info("エンリッチジョブが完了しました",
		slog.Int("processed", processed),
		slog.Int("errors", errorCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	// 残件があれば追加バッチを登録する
	if itemID == "" {
		remaining, err := j.items.CountByState(ctx, model.ItemStateNew)
		if err != nil {
			j.logger.Error("残件数の取得に失敗しました",
				slog.String("error", err.Error()),
			)
			return nil
		}
		if remaining > 0 {
			j.logger.Info("未処理のコンテンツが残っています",
				slog.Int("remaining", remaining),
			)
			j.sched.Schedule(JobName, j.cfg.FollowUpDelay, nil)
		}
	}

	return nil
}

// selectItems は処理対象のコンテンツを選択する。
func (j *Job) selectItems(ctx context.Context, itemID string) ([]*model.ContentItem, error) {
	if itemID != "" {
		item, err := j.items.FindByID(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
		}
		if item == nil {
			j.logger.Warn("指定されたコンテンツが見つかりません",
				slog.String("item_id", itemID),
			)
			return nil, nil
		}
		return []*model.ContentItem{item}, nil
	}

	items, err := j.items.ListByState(ctx, model.ItemStateNew, j.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの一覧取得に失敗しました: %w", err)
	}
	return items, nil
}

// enrichItem はコンテンツ1件をエンリッチし、状態をenrichedに進める。
func (j *Job) enrichItem(ctx context.Context, item *model.ContentItem, named []*model.Participant) error {
	if item.URL == "" {
		return fmt.Errorf("コンテンツにURLがありません")
	}

	if item.Body != "" {
		j.linkMentions(ctx, item, named)
	}

	if item.ImageURL == "" {
		j.discoverImage(ctx, item)
	} else if j.uploader.Enabled() && !j.uploader.Owns(item.ImageURL) {
		// 画像はあるがまだストレージに保存されていない
		if stored, err := j.storeImage(ctx, item.ID, item.ImageURL); err == nil {
			if updateErr := j.items.UpdateImageURL(ctx, item.ID, stored); updateErr != nil {
				return fmt.Errorf("画像URLの更新に失敗しました: %w", updateErr)
			}
		} else {
			j.logger.Info("画像の保存に失敗しました",
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := j.items.UpdateState(ctx, item.ID, model.ItemStateEnriched); err != nil {
		return fmt.Errorf("コンテンツ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// linkMentions は本文中に名前が現れる参加者をコンテンツに関連付ける。
func (j *Job) linkMentions(ctx context.Context, item *model.ContentItem, named []*model.Participant) {
	body := strings.ToLower(item.Body)
	for _, p := range named {
		if len(p.Name) < minMentionLength {
			continue
		}
		if !strings.Contains(body, strings.ToLower(p.Name)) {
			continue
		}
		if err := j.items.LinkParticipant(ctx, item.ID, p.ID); err != nil {
			j.logger.Warn("参加者の関連付けに失敗しました",
				slog.String("item_id", item.ID),
				slog.String("participant_id", p.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// discoverImage は記事ページのメタタグからサムネイル画像を探して保存する。
// 画像が見つからない場合は何もしない（エラーにしない）。
func (j *Job) discoverImage(ctx context.Context, item *model.ContentItem) {
	if err := j.guard.ValidateURL(item.URL); err != nil {
		j.logger.Info("記事URLの検証に失敗しました",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	res, err := j.fetcher.Get(ctx, item.URL, nil)
	if err != nil || !res.IsSuccess() {
		return
	}
	j.collector.RecordHTTPStatus(res.StatusCode)

	imageURL := findImageURL(string(res.Body))
	if imageURL == "" {
		return
	}

	finalURL := imageURL
	if j.uploader.Enabled() {
		if stored, err := j.storeImage(ctx, item.ID, imageURL); err == nil {
			finalURL = stored
		}
	}

	if err := j.items.UpdateImageURL(ctx, item.ID, finalURL); err != nil {
		j.logger.Warn("画像URLの更新に失敗しました",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)
	}
}

// storeImage は画像をダウンロードしてオブジェクトストレージに保存する。
func (j *Job) storeImage(ctx context.Context, itemID, imageURL string) (string, error) {
	if err := j.guard.ValidateURL(imageURL); err != nil {
		return "", fmt.Errorf("画像URLの検証に失敗しました: %w", err)
	}
	res, err := j.fetcher.Get(ctx, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("画像のダウンロードに失敗しました: %w", err)
	}
	if !res.IsSuccess() {
		return "", fmt.Errorf("画像のダウンロードに失敗しました: HTTP %d", res.StatusCode)
	}
	return j.uploader.Upload(ctx, "news-items", itemID, imageURL, res.Body)
}

// findImageURL はHTMLのメタタグからサムネイル画像URLを探す。
func findImageURL(html string) string {
	for _, pattern := range imagePatterns {
		if m := pattern.FindStringSubmatch(html); m != nil && m[1] != "" {
			return m[1]
		}
	}
	return ""
}
