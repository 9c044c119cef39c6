package model

import "time"

// ItemKind はコンテンツの種別を表す。
type ItemKind string

const (
	// ItemKindArticle は記事。
	ItemKindArticle ItemKind = "article"
	// ItemKindVideo は動画。
	ItemKindVideo ItemKind = "video"
	// ItemKindPodcast はポッドキャスト。
	ItemKindPodcast ItemKind = "podcast"
)

// ItemState はコンテンツのエンリッチ状態を表す。
// 遷移は new → enriched（成功）または new → error（処理中の例外）のみ。
type ItemState string

const (
	// ItemStateNew は未エンリッチの状態。
	ItemStateNew ItemState = "new"
	// ItemStateEnriched はエンリッチ完了の状態。
	ItemStateEnriched ItemState = "enriched"
	// ItemStateError はエンリッチ中にエラーが発生した状態。
	ItemStateError ItemState = "error"
)

// ContentItem は取り込んだニュースコンテンツ1件を表す。
// URLがグローバルに一意なキーで、既存URLへの再作成はno-opになる。
type ContentItem struct {
	ID          string
	FeedID      string
	Kind        ItemKind
	State       ItemState
	Active      bool
	Title       string
	Body        string // Markdown変換済み本文
	URL         string
	ImageURL    string
	Duration    string
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ParsedEntry はフィードパーサーが返す未保存のエントリを表す。
type ParsedEntry struct {
	Title       string
	URL         string
	Body        string // Markdown変換済み
	ImageURL    string
	Kind        ItemKind
	Duration    string
	PublishedAt *time.Time
}
