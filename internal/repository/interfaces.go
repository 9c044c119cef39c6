// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/snowpulse/internal/model"
)

// FeedSourceRepository はフィードソースの永続化インターフェース。
type FeedSourceRepository interface {
	// FindByID は指定IDのフィードソースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.FeedSource, error)

	// Create はフィードソースを作成する。
	Create(ctx context.Context, feed *model.FeedSource) error

	// ListPollable はポーリング対象のフィードソースを取得する。
	// active = true かつ status != 'dead' が対象。
	// cutoffがゼロ値でない場合、last_successful_fetchがcutoff以降のソースは除外する。
	ListPollable(ctx context.Context, cutoff time.Time) ([]*model.FeedSource, error)

	// RecordFetchSuccess はフェッチ成功を記録する。
	// last_successful_fetchを更新し、error_countとlast_errorをリセットする。
	RecordFetchSuccess(ctx context.Context, id string, at time.Time) error

	// RecordFetchFailure はフェッチ失敗を記録する。
	// error_countをインクリメントし、last_errorにメッセージを保存する。
	RecordFetchFailure(ctx context.Context, id string, message string) error
}

// ContentItemRepository はコンテンツの永続化インターフェース。
type ContentItemRepository interface {
	// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ContentItem, error)

	// FindByURL はURLでコンテンツを検索する。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, url string) (*model.ContentItem, error)

	// CreateIfAbsent はURLが未登録の場合のみコンテンツを作成する。
	// 既存URLの場合は何もせずfalseを返す（衝突時の上書きはしない）。
	CreateIfAbsent(ctx context.Context, item *model.ContentItem) (bool, error)

	// ListByState は指定状態のコンテンツをcreated_at降順で最大limit件取得する。
	ListByState(ctx context.Context, state model.ItemState, limit int) ([]*model.ContentItem, error)

	// CountByState は指定状態のコンテンツ数を返す。
	CountByState(ctx context.Context, state model.ItemState) (int, error)

	// UpdateState はコンテンツの状態を更新する。
	UpdateState(ctx context.Context, id string, state model.ItemState) error

	// UpdateImageURL はコンテンツの画像URLを更新する。
	UpdateImageURL(ctx context.Context, id string, imageURL string) error

	// LinkParticipant はコンテンツと参加者の関連を冪等に作成する。
	// 既存の関連がある場合は何もしない。
	LinkParticipant(ctx context.Context, itemID, participantID string) error
}

// ParticipantRepository は参加者の永続化インターフェース。
type ParticipantRepository interface {
	// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Participant, error)

	// FindByNameExact は大文字小文字を無視した完全一致で参加者を検索する。
	FindByNameExact(ctx context.Context, name string) (*model.Participant, error)

	// FindByNormalizedName は正規化済み名（小文字）との一致で参加者を検索する。
	FindByNormalizedName(ctx context.Context, normalized string) (*model.Participant, error)

	// FindByAlias はalias配列に指定名（大文字小文字無視）を含む参加者を検索する。
	FindByAlias(ctx context.Context, name string) (*model.Participant, error)

	// Create は参加者を作成する。名前の一意制約違反はIsUniqueViolationで判定できる。
	Create(ctx context.Context, p *model.Participant) error

	// Update は参加者のスカラー項目とaliasを上書き更新する。
	Update(ctx context.Context, p *model.Participant) error

	// ListNamed は名前を持つ全参加者を返す。メンション抽出と重複検出に使用する。
	ListNamed(ctx context.Context) ([]*model.Participant, error)

	// ListUnlinkedWithCompanyHint はcompany_id未設定かつcompany_nameを持つ参加者を返す。
	ListUnlinkedWithCompanyHint(ctx context.Context) ([]*model.Participant, error)

	// LinkCompany は参加者を企業に紐付ける。
	LinkCompany(ctx context.Context, participantID, companyID string) error

	// LinkSession は参加者とセッションの関連を冪等に作成する。
	LinkSession(ctx context.Context, sessionID, participantID string) error

	// ApplyMerge はマージを単一トランザクションで適用する。
	// どこかのステップが失敗した場合は全体がロールバックされる。
	ApplyMerge(ctx context.Context, m *MergeApplication) error
}

// MergeApplication はマージトランザクションに渡す確定済みの変更内容。
// ターゲットのフィールド値は呼び出し側（resolver）で選択済みとする。
type MergeApplication struct {
	TargetID string
	SourceID string

	// SourceNameChosen はソース側の名前をターゲットに引き継ぐ場合にtrue。
	// 一意制約の衝突を避けるため、先にソースの名前をNULLにしてから書き込む。
	SourceNameChosen bool

	// Target はフィールド選択適用後のターゲット（alias合成済み）。
	Target *model.Participant
}

// CompanyRepository は企業の永続化インターフェース。
type CompanyRepository interface {
	// FindByID は指定IDの企業を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Company, error)

	// FindByNameExact は大文字小文字を無視した完全一致で企業を検索する。
	FindByNameExact(ctx context.Context, name string) (*model.Company, error)

	// ListAll は全企業の軽量ビューを返す。参加者リンクのマッチングに使用する。
	ListAll(ctx context.Context) ([]*model.Company, error)

	// ListByWebsiteDomain はwebsiteに指定ドメインを含む企業を返す。
	ListByWebsiteDomain(ctx context.Context, domain string) ([]*model.Company, error)

	// ListActivePartners はアクティブなパートナー企業を返す。
	ListActivePartners(ctx context.Context) ([]*model.Company, error)

	// Create は企業を作成する。
	Create(ctx context.Context, c *model.Company) error

	// UpdatePartnerSync はパートナーポータル同期の更新を適用する。
	// ティア項目は常に上書き、所在地とwebsiteは空の場合のみ設定する。
	UpdatePartnerSync(ctx context.Context, id string, u *PartnerSyncUpdate) error

	// ApplyEnrichment はパートナーエンリッチの更新を1トランザクションでまとめて適用する。
	ApplyEnrichment(ctx context.Context, updates []*EnrichmentUpdate) error
}

// PartnerSyncUpdate はパートナー同期1社分の更新内容。
// ポインタがnilの項目は変更しない。
type PartnerSyncUpdate struct {
	// ティア項目（常に上書き）
	BuildLevel           string
	ConsultingLevel      string
	ResellerLevel        string
	ServiceProviderLevel string
	PartnerLevel         string

	// 空の場合のみ設定する項目
	Website string
	City    string
	State   string
	Country string

	ServicenowURL          string
	LastFetchedAt          time.Time
	LastFoundInPartnerList time.Time
}

// EnrichmentUpdate はパートナーエンリッチ1社分の更新内容。
// 空文字列・nilの項目は変更しない。
type EnrichmentUpdate struct {
	CompanyID         string
	ImageURL          string
	RSSFeedURL        string
	ServicenowPageURL string
	Products          []string
	Services          []string
	HasSitemap        bool
	LastSitemapCheck  time.Time
}

// StoreAppRepository はStoreアプリの永続化インターフェース。
type StoreAppRepository interface {
	// FindBySourceAppID はsource_app_idでアプリを検索する。見つからない場合はnilを返す。
	FindBySourceAppID(ctx context.Context, sourceAppID string) (*model.StoreApp, error)

	// Create はアプリを作成する。
	Create(ctx context.Context, app *model.StoreApp) error

	// Update は既存アプリを上書き更新する。
	Update(ctx context.Context, app *model.StoreApp) error
}

// SecFilingRepository はSEC提出書類の永続化インターフェース。
type SecFilingRepository interface {
	// FindByURL は提出書類URLで検索する。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, url string) (*model.SecFiling, error)

	// Create は提出書類を作成する。
	Create(ctx context.Context, f *model.SecFiling) error

	// Update は既存の提出書類を更新する。
	Update(ctx context.Context, f *model.SecFiling) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
