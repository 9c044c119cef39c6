// Package enrichpartners はパートナー企業サイトの解析・エンリッチジョブを提供する。
package enrichpartners

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/snowpulse/internal/fetch"
	"github.com/hitoshi/snowpulse/internal/metrics"
	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/scheduler"
	"github.com/hitoshi/snowpulse/internal/security"
	"github.com/hitoshi/snowpulse/internal/sitemap"
)

// JobName はスケジューラに登録するジョブ名。
const JobName = "enrich_partners"

// feedSuffixes はRSSフィードの探索で試す慣例的なパス末尾。
var feedSuffixes = []string{"/feed", "/rss", "/feed.xml", "/rss.xml"}

// feedProbePaths は探索するフィードパスの一覧を返す。
// サイトマップからブログセクションのパスが分かっている場合は
// そちらを先に試し、ルート直下のパスにフォールバックする。
func feedProbePaths(blogPath string) []string {
	var paths []string
	if blogPath != "" {
		for _, s := range feedSuffixes {
			paths = append(paths, blogPath+s)
		}
	}
	return append(paths, feedSuffixes...)
}

// logoPatterns は企業トップページからロゴ画像を探すメタタグのパターン。
var logoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<meta[^>]*(?:property|name)=["']og:image["'][^>]*content=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)<meta[^>]*content=["']([^"']+)["'][^>]*(?:property|name)=["']og:image["']`),
	regexp.MustCompile(`(?i)<meta[^>]*(?:property|name)=["']twitter:image["'][^>]*content=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)<meta[^>]*content=["']([^"']+)["'][^>]*(?:property|name)=["']twitter:image["']`),
}

// Config はパートナーエンリッチジョブの動作設定。
type Config struct {
	// BatchSize は1バッチで解析する企業数（並行実行の上限でもある）。
	BatchSize int
	// BatchPause はバッチ間の待機時間。訪問先サイトへの配慮。
	BatchPause time.Duration
	// Interval は次回実行までの遅延。
	Interval time.Duration
}

// Job はアクティブなパートナー企業のサイトを解析し、ロゴ・RSSフィード・
// ServiceNow関連ページ・製品/サービスキーワードで企業レコードを充実させる。
// バッチごとに解析を並行実行し、更新は1トランザクションでまとめて適用する。
type Job struct {
	companies repository.CompanyRepository
	fetcher   *fetch.Client
	guard     security.OutboundGuardService
	analyzer  *sitemap.Analyzer
	sched     scheduler.Scheduler
	collector metrics.MetricsCollector
	logger    *slog.Logger
	cfg       Config
}

// New はJobの新しいインスタンスを生成する。
func New(
	companies repository.CompanyRepository,
	fetcher *fetch.Client,
	guard security.OutboundGuardService,
	analyzer *sitemap.Analyzer,
	sched scheduler.Scheduler,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Job {
	return &Job{
		companies: companies,
		fetcher:   fetcher,
		guard:     guard,
		analyzer:  analyzer,
		sched:     sched,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
	}
}

// analysisResult は企業1社分の解析結果。
type analysisResult struct {
	update        *repository.EnrichmentUpdate
	hasSitemap    bool
	hasServicenow bool
	hasFeed       bool
	err           error
}

// Run はジョブを1回実行する。完了後は結果に関わらず次回実行を
// スケジュールする。
func (j *Job) Run(ctx context.Context, args map[string]string) error {
	start := time.Now()
	defer j.sched.Schedule(JobName, j.cfg.Interval, nil)

	partners, err := j.companies.ListActivePartners(ctx)
	if err != nil {
		j.logger.Error("パートナー企業の一覧取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("パートナー企業の一覧取得に失敗しました: %w", err)
	}

	j.logger.Info("パートナーエンリッチを開始します",
		slog.Int("partner_count", len(partners)),
	)

	processed := 0
	withSitemap := 0
	withServicenow := 0
	discoveredFeeds := 0
	errorCount := 0

	for batchStart := 0; batchStart < len(partners); batchStart += j.cfg.BatchSize {
		batchEnd := batchStart + j.cfg.BatchSize
		if batchEnd > len(partners) {
			batchEnd = len(partners)
		}
		batch := partners[batchStart:batchEnd]

		// バッチ内は並行で解析する
		results := make([]analysisResult, len(batch))
		var wg sync.WaitGroup
		for i, company := range batch {
			wg.Add(1)
			go func(i int, company *model.Company) {
				defer wg.Done()
				results[i] = j.analyzePartner(ctx, company)
			}(i, company)
		}
		wg.Wait()

		// 更新は1トランザクションでまとめて適用する
		var updates []*repository.EnrichmentUpdate
		for _, r := range results {
			processed++
			switch {
			case r.err != nil:
				errorCount++
			case r.hasSitemap:
				withSitemap++
				if r.hasServicenow {
					withServicenow++
				}
				if r.hasFeed {
					discoveredFeeds++
				}
			}
			if r.update != nil {
				updates = append(updates, r.update)
			}
		}
		if len(updates) > 0 {
			if err := j.companies.ApplyEnrichment(ctx, updates); err != nil {
				j.logger.Error("エンリッチ結果の適用に失敗しました",
					slog.Int("update_count", len(updates)),
					slog.String("error", err.Error()),
				)
				errorCount += len(updates)
			}
		}

		j.logger.Info("パートナーエンリッチの進捗",
			slog.Int("processed", processed),
			slog.Int("total", len(partners)),
		)

		// 訪問先サイトへの配慮としてバッチ間に間隔を空ける
		if batchEnd < len(partners) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(j.cfg.BatchPause):
			}
		}
	}

	duration := time.Since(start)
	j.collector.RecordJobDuration(JobName, duration)
	j.logger.Info("パートナーエンリッチが完了しました",
		slog.Int("processed", processed),
		slog.Int("with_sitemap", withSitemap),
		slog.Int("with_servicenow_content", withServicenow),
		slog.Int("discovered_feeds", discoveredFeeds),
		slog.Int("errors", errorCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// analyzePartner は企業1社のサイトを解析する。
// sitemap.xmlが取得できないサイトは更新なしで戻る（エラーにしない）。
func (j *Job) analyzePartner(ctx context.Context, company *model.Company) analysisResult {
	if company.Website == "" {
		return analysisResult{}
	}

	baseURL, err := normalizeBaseURL(company.Website)
	if err != nil {
		return analysisResult{err: err}
	}
	if err := j.guard.ValidateURL(baseURL); err != nil {
		return analysisResult{err: err}
	}

	res, err := j.fetcher.Get(ctx, baseURL+"/sitemap.xml", nil)
	if err != nil || !res.IsSuccess() {
		return analysisResult{}
	}

	analysis, err := j.analyzer.Analyze(res.Body)
	if err != nil {
		return analysisResult{}
	}

	now := time.Now()
	update := &repository.EnrichmentUpdate{
		CompanyID:        company.ID,
		HasSitemap:       true,
		LastSitemapCheck: now,
	}
	result := analysisResult{update: update, hasSitemap: true}

	// トップページは1回だけ取得し、ロゴとフィードリンクの両方に使う
	var homepage []byte
	if res, err := j.fetcher.Get(ctx, baseURL, nil); err == nil && res.IsSuccess() {
		homepage = res.Body
	}

	if logo := findLogo(homepage, baseURL); logo != "" {
		update.ImageURL = logo
	}

	if feedURL := j.discoverFeed(ctx, homepage, baseURL, blogBasePath(analysis.BlogPages)); feedURL != "" {
		update.RSSFeedURL = feedURL
		result.hasFeed = true
	}

	if len(analysis.ServicenowPages) > 0 {
		result.hasServicenow = true
		// 最短のURLをランディングページとして採用する
		update.ServicenowPageURL = shortest(analysis.ServicenowPages)
		update.Products = analysis.Products
		update.Services = analysis.Services
	}

	return result
}

// findLogo は企業トップページのメタタグからロゴ画像を探す。
// 見つからない場合はGoogleのfaviconサービスにフォールバックする。
func findLogo(homepage []byte, baseURL string) string {
	html := string(homepage)
	for _, pattern := range logoPatterns {
		if m := pattern.FindStringSubmatch(html); m != nil && m[1] != "" {
			return resolveURL(m[1], baseURL)
		}
	}
	return faviconURL(baseURL)
}

// discoverFeed はトップページの<link rel="alternate">宣言を優先して
// フィードURLを探し、見つからない場合は慣例的なパスの探索に
// フォールバックする。
func (j *Job) discoverFeed(ctx context.Context, homepage []byte, baseURL, blogPath string) string {
	if links := parseFeedLinks(homepage, baseURL); len(links) > 0 {
		return links[0]
	}
	return j.probeFeed(ctx, baseURL, blogPath)
}

// probeFeed は慣例的なパスを順にHEADで確認し、最初に見つかった
// フィードURLを返す。XML系のContent-Typeのみフィードとみなす。
func (j *Job) probeFeed(ctx context.Context, baseURL, blogPath string) string {
	for _, p := range feedProbePaths(blogPath) {
		feedURL := baseURL + p
		res, err := j.fetcher.Head(ctx, feedURL)
		if err != nil || res.StatusCode != 200 {
			continue
		}
		contentType := strings.ToLower(res.Header.Get("Content-Type"))
		if strings.Contains(contentType, "xml") ||
			strings.Contains(contentType, "rss") ||
			strings.Contains(contentType, "atom") {
			return feedURL
		}
	}
	return ""
}

// blogBasePath は最初のブログURLからブログセクションのパスを導出する
// （"/blog/first-post" -> "/blog"）。ブログURLが無い場合は空文字列を返す。
func blogBasePath(blogURLs []string) string {
	if len(blogURLs) == 0 {
		return ""
	}
	u, err := url.Parse(blogURLs[0])
	if err != nil {
		return ""
	}
	dir := path.Dir(strings.TrimSuffix(u.Path, "/"))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// normalizeBaseURL はwebsite項目をscheme://hostの形に正規化する。
func normalizeBaseURL(website string) (string, error) {
	raw := website
	if !strings.HasPrefix(strings.ToLower(raw), "http") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("websiteのパースに失敗しました: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("websiteにホストがありません: %s", website)
	}
	return u.Scheme + "://" + u.Host, nil
}

// resolveURL は相対URLをベースURL基準の絶対URLに変換する。
func resolveURL(rawURL, baseURL string) string {
	if strings.HasPrefix(rawURL, "http") {
		return rawURL
	}
	if strings.HasPrefix(rawURL, "/") {
		return baseURL + rawURL
	}
	return baseURL + "/" + rawURL
}

// faviconURL はGoogleのfaviconサービスのURLを返す。
func faviconURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=256", u.Host)
}

// shortest は最も短い文字列を返す。
func shortest(urls []string) string {
	best := urls[0]
	for _, u := range urls[1:] {
		if len(u) < len(best) {
			best = u
		}
	}
	return best
}
