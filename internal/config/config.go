// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// ジョブは必要な設定値をここから受け取り、処理中に環境変数を直接参照しない。
type Config struct {
	// Database
	DatabaseURL string

	// HTTP Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64
	UserAgent    string

	// News fetch job
	FetchNewsInterval    time.Duration // 次回実行までの遅延（デフォルト1時間）
	SkipIfFetchedWithin  time.Duration // 直近フェッチ済みフィードのスキップ窓
	FetchNewsConcurrency int

	// Enrichment job
	EnrichBatchSize     int           // 1回の実行で処理する上限
	EnrichFollowUpDelay time.Duration // 残件がある場合の追加バッチ遅延

	// Partner jobs
	PartnerBatchSize      int
	PartnerBatchPause     time.Duration
	PartnerSyncInterval   time.Duration
	PartnerEnrichInterval time.Duration

	// Store job
	StoreInterval    time.Duration
	StoreDetailDelay time.Duration // アプリ詳細取得の間隔（レート制限回避）

	// SEC job
	SecInterval     time.Duration
	SecRequestDelay time.Duration // SECのアクセスポリシーに基づく最低間隔
	SecContactEmail string        // SECが要求する連絡先入りUser-Agentに使用
	SecCIK          string

	// AI
	OpenAIAPIKey  string
	GeminiAPIKey  string
	OpenAIModel   string
	GeminiModel   string
	ExtractModel  string
	SummaryBudget int // サマリー生成に渡す最大文字数
	ExtractBudget int // 抽出に渡すトランスクリプトの最大文字数

	// Backup job
	BackupEnabled  bool // 真の場合のみ日次バックアップを実行する
	BackupInterval time.Duration

	// Object storage (S3互換)
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3AssetBucket string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 10*1024*1024)
	cfg.UserAgent = getEnvString("FETCH_USER_AGENT", "Mozilla/5.0 (compatible; SnowpulseBot/1.0)")

	cfg.FetchNewsInterval = getEnvDuration("FETCH_NEWS_INTERVAL", time.Hour)
	cfg.SkipIfFetchedWithin = getEnvDuration("SKIP_IF_FETCHED_WITHIN", 30*time.Minute)
	cfg.FetchNewsConcurrency = getEnvInt("FETCH_NEWS_CONCURRENCY", 5)

	cfg.EnrichBatchSize = getEnvInt("ENRICH_BATCH_SIZE", 50)
	cfg.EnrichFollowUpDelay = getEnvDuration("ENRICH_FOLLOW_UP_DELAY", 10*time.Second)

	cfg.PartnerBatchSize = getEnvInt("PARTNER_BATCH_SIZE", 50)
	cfg.PartnerBatchPause = getEnvDuration("PARTNER_BATCH_PAUSE", 200*time.Millisecond)
	cfg.PartnerSyncInterval = getEnvDuration("PARTNER_SYNC_INTERVAL", 24*time.Hour)
	cfg.PartnerEnrichInterval = getEnvDuration("PARTNER_ENRICH_INTERVAL", 24*time.Hour)

	cfg.StoreInterval = getEnvDuration("STORE_INTERVAL", 24*time.Hour)
	cfg.StoreDetailDelay = getEnvDuration("STORE_DETAIL_DELAY", time.Second)

	cfg.SecInterval = getEnvDuration("SEC_INTERVAL", 24*time.Hour)
	cfg.SecRequestDelay = getEnvDuration("SEC_REQUEST_DELAY", 200*time.Millisecond)
	cfg.SecContactEmail = getEnvString("SEC_CONTACT_EMAIL", "contact@example.com")
	cfg.SecCIK = getEnvString("SEC_CIK", "0001373715")

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o")
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.0-flash")
	cfg.ExtractModel = getEnvString("EXTRACT_MODEL", "gpt-4o-mini")
	cfg.SummaryBudget = getEnvInt("SUMMARY_BUDGET", 50000)
	cfg.ExtractBudget = getEnvInt("EXTRACT_BUDGET", 20000)

	cfg.BackupEnabled = os.Getenv("ENABLE_BACKUP") == "true"
	cfg.BackupInterval = getEnvDuration("BACKUP_INTERVAL", 24*time.Hour)

	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3AccessKey = os.Getenv("S3_ACCESS_KEY_ID")
	cfg.S3SecretKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	cfg.S3AssetBucket = os.Getenv("S3_ASSET_BUCKET")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

// StorageEnabled はオブジェクトストレージへの保存が設定済みかを返す。
// 未設定の場合、エンリッチジョブは画像URLをそのまま保持する。
func (c *Config) StorageEnabled() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3AssetBucket != ""
}

// SummaryConfigured はAIサマリー生成が利用可能かを返す。
// プライマリ（OpenAI）とフォールバック（Gemini）のどちらかが設定されていればよい。
func (c *Config) SummaryConfigured() bool {
	return c.OpenAIAPIKey != "" || c.GeminiAPIKey != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
