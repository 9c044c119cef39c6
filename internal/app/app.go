// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/snowpulse/internal/ai"
	"github.com/hitoshi/snowpulse/internal/config"
	"github.com/hitoshi/snowpulse/internal/database"
	"github.com/hitoshi/snowpulse/internal/edgar"
	"github.com/hitoshi/snowpulse/internal/feedparse"
	"github.com/hitoshi/snowpulse/internal/fetch"
	"github.com/hitoshi/snowpulse/internal/handler"
	"github.com/hitoshi/snowpulse/internal/logger"
	"github.com/hitoshi/snowpulse/internal/markdown"
	"github.com/hitoshi/snowpulse/internal/metrics"
	"github.com/hitoshi/snowpulse/internal/objstore"
	"github.com/hitoshi/snowpulse/internal/participant"
	"github.com/hitoshi/snowpulse/internal/partnerportal"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/scheduler"
	"github.com/hitoshi/snowpulse/internal/security"
	"github.com/hitoshi/snowpulse/internal/sitemap"
	"github.com/hitoshi/snowpulse/internal/store"
	"github.com/hitoshi/snowpulse/internal/transcript"
	"github.com/hitoshi/snowpulse/internal/worker/backup"
	"github.com/hitoshi/snowpulse/internal/worker/enrich"
	"github.com/hitoshi/snowpulse/internal/worker/enrichpartners"
	"github.com/hitoshi/snowpulse/internal/worker/extractvideo"
	"github.com/hitoshi/snowpulse/internal/worker/fetchapps"
	"github.com/hitoshi/snowpulse/internal/worker/fetchnews"
	"github.com/hitoshi/snowpulse/internal/worker/fetchpartners"
	"github.com/hitoshi/snowpulse/internal/worker/linkparticipants"
	"github.com/hitoshi/snowpulse/internal/worker/secfilings"
)

// jobRunner は全ジョブが満たす実行インターフェース。
type jobRunner interface {
	Run(ctx context.Context, args map[string]string) error
}

// periodicJobs は起動時に即時スケジュールする定期ジョブ。
// enrich_itemsはfetch_newsが、残りはトリガーAPIが起動する。
var periodicJobs = []string{
	fetchnews.JobName,
	fetchapps.JobName,
	fetchpartners.JobName,
	secfilings.JobName,
	enrichpartners.JobName,
	backup.JobName,
}

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandRunJob:
		return runJob(cfg, args[1:])
	default:
		return runServe(cfg)
	}
}

// jobDispatcher はスケジューラからのジョブ実行要求を各ジョブに振り分ける。
// jobsはスケジューラ構築後に設定されるため、構築順の循環を避けられる。
type jobDispatcher struct {
	jobs   map[string]jobRunner
	logger *slog.Logger
}

// Dispatch は名前でジョブを引いて実行する。scheduler.RunFuncを満たす。
func (d *jobDispatcher) Dispatch(ctx context.Context, name string, args map[string]string) {
	job, ok := d.jobs[name]
	if !ok {
		d.logger.Error("未登録のジョブが要求されました", slog.String("job", name))
		return
	}

	if err := job.Run(ctx, args); err != nil {
		d.logger.Error("ジョブの実行に失敗しました",
			slog.String("job", name),
			slog.String("error", err.Error()),
		)
	}
}

// buildJobs は全ジョブとその依存関係を構築する。
func buildJobs(cfg *config.Config, db *sql.DB, sched scheduler.Scheduler, collector metrics.MetricsCollector, log *slog.Logger) (map[string]jobRunner, error) {
	// リポジトリ
	feedRepo := repository.NewPostgresFeedSourceRepo(db)
	itemRepo := repository.NewPostgresContentItemRepo(db)
	participantRepo := repository.NewPostgresParticipantRepo(db)
	companyRepo := repository.NewPostgresCompanyRepo(db)
	appRepo := repository.NewPostgresStoreAppRepo(db)
	filingRepo := repository.NewPostgresSecFilingRepo(db)

	// 外部アクセス共通
	guard := security.NewOutboundGuard()
	fetcher := fetch.New(guard.NewSafeClient(cfg.FetchTimeout), cfg.UserAgent, cfg.FetchMaxSize)
	converter := markdown.NewConverter()
	parser := feedparse.New(converter)

	// プロトコルクライアント
	storeClient := store.NewClient(fetcher)
	portalClient := partnerportal.NewClient(fetcher)
	edgarClient := edgar.NewClient(fetcher, cfg.SecContactEmail, rate.Every(cfg.SecRequestDelay))

	// AI
	openaiClient := ai.NewChatClient(ai.OpenAIEndpoint, cfg.OpenAIAPIKey)
	geminiClient := ai.NewChatClient(ai.GeminiEndpoint, cfg.GeminiAPIKey)
	summarizer := ai.NewSummarizer(openaiClient, geminiClient, cfg.OpenAIModel, cfg.GeminiModel, cfg.SummaryBudget)
	extractor := ai.NewExtractor(openaiClient, cfg.ExtractModel, cfg.ExtractBudget)

	// オブジェクトストレージ（未設定の場合はnilで無効化される）
	uploader, err := objstore.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3AssetBucket)
	if err != nil {
		return nil, fmt.Errorf("オブジェクトストレージの初期化に失敗しました: %w", err)
	}

	resolver := participant.NewResolver(participantRepo)
	transcripts := transcript.NewFetcher()

	jobs := map[string]jobRunner{
		fetchnews.JobName: fetchnews.New(feedRepo, itemRepo, fetcher, parser, guard, sched, collector, log, fetchnews.Config{
			SkipWindow:  cfg.SkipIfFetchedWithin,
			Interval:    cfg.FetchNewsInterval,
			Concurrency: cfg.FetchNewsConcurrency,
		}),
		enrich.JobName: enrich.New(itemRepo, participantRepo, fetcher, guard, uploader, sched, collector, log, enrich.Config{
			BatchSize:     cfg.EnrichBatchSize,
			FollowUpDelay: cfg.EnrichFollowUpDelay,
		}),
		fetchapps.JobName: fetchapps.New(appRepo, storeClient, converter, sched, collector, log, fetchapps.Config{
			DetailDelay: cfg.StoreDetailDelay,
			Interval:    cfg.StoreInterval,
		}),
		fetchpartners.JobName: fetchpartners.New(companyRepo, portalClient, sched, collector, log, fetchpartners.Config{
			Interval: cfg.PartnerSyncInterval,
		}),
		secfilings.JobName: secfilings.New(filingRepo, edgarClient, summarizer, converter, sched, collector, log, secfilings.Config{
			CIK:      cfg.SecCIK,
			Interval: cfg.SecInterval,
		}),
		enrichpartners.JobName: enrichpartners.New(companyRepo, fetcher, guard, sitemap.NewAnalyzer(), sched, collector, log, enrichpartners.Config{
			BatchSize:  cfg.PartnerBatchSize,
			BatchPause: cfg.PartnerBatchPause,
			Interval:   cfg.PartnerEnrichInterval,
		}),
		linkparticipants.JobName: linkparticipants.New(participantRepo, companyRepo, collector, log),
		extractvideo.JobName:     extractvideo.New(participantRepo, resolver, transcripts, extractor, collector, log),
		backup.JobName: backup.New(uploader, sched, collector, log, backup.Config{
			Enabled:     cfg.BackupEnabled,
			DatabaseURL: cfg.DatabaseURL,
			Interval:    cfg.BackupInterval,
		}),
	}

	return jobs, nil
}

// runServe は運用APIサーバーとジョブスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// スケジューラとジョブ（dispatcherを介して相互参照を解決する）
	dispatcher := &jobDispatcher{logger: slog.Default()}
	sched := scheduler.NewTimerScheduler(dispatcher.Dispatch, slog.Default())

	jobs, err := buildJobs(cfg, db, sched, collector, slog.Default())
	if err != nil {
		return err
	}
	dispatcher.jobs = jobs

	jobNames := make([]string, 0, len(jobs))
	for name := range jobs {
		jobNames = append(jobNames, name)
	}

	router := handler.NewRouter(&handler.RouterDeps{
		DB:           db,
		Scheduler:    sched,
		JobNames:     jobNames,
		Participants: repository.NewPostgresParticipantRepo(db),
		Metrics:      metrics.Handler(registry),
		Logger:       slog.Default(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("ops server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// 定期ジョブの初回実行を登録する。以後は各ジョブが自己再スケジュールする
	for _, name := range periodicJobs {
		sched.Schedule(name, 0, nil)
	}

	<-stop
	slog.Info("shutting down...")

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("stopped gracefully")
	return nil
}

// noopScheduler は再スケジュール要求を破棄するScheduler。
// run-jobモードの一回きりの実行で使用する。
type noopScheduler struct{}

func (noopScheduler) Schedule(name string, delay time.Duration, args map[string]string) {}

// runJob は単一ジョブを1回だけ実行して終了する。
// argsの先頭はジョブ名、以降はkey=value形式のジョブ引数。
//
//	snowpulse run-job extract_video_participants video_url=https://... session_id=...
func runJob(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("ジョブ名が指定されていません")
	}
	name := args[0]

	jobArgs := map[string]string{}
	for _, kv := range args[1:] {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			return fmt.Errorf("ジョブ引数はkey=value形式で指定してください: %s", kv)
		}
		jobArgs[key] = value
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())
	jobs, err := buildJobs(cfg, db, noopScheduler{}, collector, slog.Default())
	if err != nil {
		return err
	}

	job, ok := jobs[name]
	if !ok {
		return fmt.Errorf("未登録のジョブです: %s", name)
	}

	// Ctrl-Cで実行中のジョブを中断できるようにする
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return job.Run(ctx, jobArgs)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations")

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
