package model

import "time"

// StoreApp はServiceNow Storeのアプリリスティングを表す。
// source_app_idが一意キー。purchase_trendはISO日付キーの追記専用マップで、
// 過去分は削除しない。
type StoreApp struct {
	ID          string
	SourceAppID string
	ListingID   string
	Title       string
	Tagline     string

	CompanyName  string
	CompanyLogo  string
	Logo         string
	FeaturedIcon string

	// Markdown変換済みの説明文
	StoreDescription   string
	BusinessChallenge  string
	KeyFeatures        string
	SystemRequirements string

	AppType      string
	AppSubType   string
	Version      string
	LandingPage  string
	DisplayPrice string // 価格種別から導出した表示文字列

	TableCount    int
	PurchaseCount int
	ReviewCount   int

	AllowForExistingCustomers bool
	AllowForNonCustomers      bool
	AllowOnCustomerSubprod    bool
	AllowOnDeveloperInstance  bool
	AllowOnServicenowInstance bool
	AllowTrial                bool
	AllowWithoutLicense       bool

	// JSONサブドキュメント（テキストとして保存）
	SupportingMedia string
	VersionsData    string
	SupportLinks    string
	SupportContacts string
	PurchaseTrend   string // {"2026-08-28": {"count": N, "price": "...", "version": "..."}}

	PublishedAt   *time.Time
	LastFetchedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TrendPoint はpurchase_trendマップの1日分の値を表す。
type TrendPoint struct {
	Count   int    `json:"count"`
	Price   string `json:"price"`
	Version string `json:"version"`
}
