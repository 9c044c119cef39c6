// Package model はドメインモデルを定義する。
package model

import "time"

// FeedKind はフィードソースの種別を表す。
type FeedKind string

const (
	// FeedKindRSS はRSS/Atomフィード。
	FeedKindRSS FeedKind = "rss"
	// FeedKindScrape はスクレイピング対象のフィード。
	FeedKindScrape FeedKind = "scrape"
	// FeedKindYouTubeSearch はYouTube検索クエリの擬似フィード。
	FeedKindYouTubeSearch FeedKind = "youtube-search"
)

// FeedStatus はフィードソースのライフサイクル状態を表す。
type FeedStatus string

const (
	// FeedStatusActive はポーリング対象の状態。
	FeedStatusActive FeedStatus = "active"
	// FeedStatusDead はポーリング対象外の状態。
	FeedStatusDead FeedStatus = "dead"
)

// FeedSource はコンテンツのポーリング元を表す。
// 非アクティブまたはdead状態のソースはフェッチジョブの対象にならない。
type FeedSource struct {
	ID                  string
	Title               string
	URL                 string
	FetchURL            string // 指定時はURLより優先してフェッチに使用する
	Kind                FeedKind
	Active              bool
	Status              FeedStatus
	DefaultAuthor       string
	ImageURL            string
	LastSuccessfulFetch *time.Time
	ErrorCount          int
	LastError           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PollURL はフェッチに使用するURLを返す。fetch_urlが設定されていればそちらを優先する。
func (f *FeedSource) PollURL() string {
	if f.FetchURL != "" {
		return f.FetchURL
	}
	return f.URL
}
