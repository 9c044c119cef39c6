package model

import "time"

// Company は企業レコードを表す。nameが一意キー。
// パートナーティア項目はパートナーポータルを正として毎回上書きされ、
// 所在地項目は空の場合のみ埋められる（上書きされない）。
type Company struct {
	ID         string
	Name       string
	Active     bool
	IsPartner  bool
	IsCustomer bool

	Website  string
	ImageURL string
	City     string
	State    string
	Country  string

	// パートナーティア（ポータル同期で常に上書き）
	BuildLevel           string
	ConsultingLevel      string
	ResellerLevel        string
	ServiceProviderLevel string
	PartnerLevel         string

	// クロールで発見したコンテンツ
	ServicenowURL     string
	ServicenowPageURL string
	RSSFeedURL        string
	Products          []string
	Services          []string

	HasSitemap             bool
	LastFetchedAt          *time.Time
	LastSitemapCheck       *time.Time
	LastFoundInPartnerList *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PartnerRecord はパートナーポータルから取得した1社分のデータを表す。
type PartnerRecord struct {
	Name                 string
	Website              string
	City                 string
	State                string
	Country              string
	BuildLevel           string
	ConsultingLevel      string
	ResellerLevel        string
	ServiceProviderLevel string
	PartnerLevel         string
	ServicenowURL        string
}
