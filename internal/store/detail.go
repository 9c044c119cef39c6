package store

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/snowpulse/internal/markdown"
	"github.com/hitoshi/snowpulse/internal/model"
)

// Flag はbool/文字列/数値のいずれで返ってくるか不定なフラグ項目。
// ストアAPIは同じ項目を"true"やtrueで返すことがある。
type Flag bool

// UnmarshalJSON はbool、文字列、数値をレニエントに受け付ける。
func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// Count は数値または数値文字列で返ってくるカウント項目。
type Count int

// UnmarshalJSON は数値と数値文字列をレニエントに受け付ける。
// パースできない値は0として扱う。
func (c *Count) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		*c = 0
		return nil
	}
	*c = Count(n)
	return nil
}

// Text は文字列または数値で返ってくるテキスト項目。
type Text string

// UnmarshalJSON は文字列と数値をレニエントに受け付ける。
func (t *Text) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if s == "null" {
		*t = ""
		return nil
	}
	*t = Text(strings.Trim(s, `"`))
	return nil
}

// AppDetail はGetByIdが返すアプリ詳細のペイロード。
// フィールド名はストアAPIの生のキー名に対応する。
type AppDetail struct {
	SourceAppID string `json:"source_app_id"`
	ListingID   string `json:"listing_id"`
	Title       string `json:"title"`
	Tagline     string `json:"tagline"`

	CompanyName  string `json:"company_name"`
	CompanyLogo  string `json:"companyLogo"`
	Logo         string `json:"logo"`
	FeaturedIcon string `json:"featured_icon"`

	StoreDescription   string `json:"store_description"`
	BusinessChallenge  string `json:"business_challenge"`
	KeyFeatures        string `json:"key_features"`
	SystemRequirements string `json:"system_requirements"`

	AppType    string `json:"application_type_label"`
	AppSubType string `json:"application_sub_type_label"`
	Version    string `json:"version"`
	LandingURL string `json:"landing_url"`

	TableCount    Count `json:"apprepo_custom_table_count"`
	PurchaseCount Count `json:"purchaseCount"`
	ReviewCount   Count `json:"total_reviews"`

	AllowForExistingCustomers Flag `json:"allow_for_existing_customer"`
	AllowForNonCustomers      Flag `json:"allow_for_noncustomers"`
	AllowOnCustomerSubprod    Flag `json:"allow_on_customer_subprod"`
	AllowOnDeveloperInstance  Flag `json:"allow_on_developer_instance"`
	AllowOnServicenowInstance Flag `json:"allow_on_sn_instance"`
	AllowTrial                Flag `json:"allow_trial"`
	AllowWithoutLicense       Flag `json:"allow_without_license"`

	HideBuy         Flag   `json:"hide_buy"`
	PriceType       string `json:"price_type"`
	Price           Text   `json:"price"`
	CustomPriceType string `json:"custom_price_type"`

	SupportingMedia json.RawMessage `json:"supporting_media"`
	VersionsData    json.RawMessage `json:"versionsData"`
	SupportLinks    json.RawMessage `json:"support_link"`
	SupportContacts json.RawMessage `json:"support_contact"`
}

// DisplayPrice はアプリの価格種別から表示用の価格文字列を導出する。
// 生のprice_typeは保存せず、この導出結果のみを保持する。
func (d *AppDetail) DisplayPrice() string {
	tableCount := int(d.TableCount)

	switch {
	case bool(d.HideBuy):
		return "Request Price"
	case d.LandingURL != "":
		return "Learn More"
	case d.PriceType == "free" && tableCount == 0:
		return "Free"
	case d.PriceType == "free" && tableCount > 0 && d.AppSubType != "Integration":
		return "Free-ish (consumes " + strconv.Itoa(tableCount) + " tables)"
	case d.PriceType == "free" && tableCount > 0 && d.AppSubType == "Integration":
		return "Free (integration tables[" + strconv.Itoa(tableCount) + "] not counted)"
	case d.PriceType == "paid_per_month":
		return "$" + string(d.Price) + " per month"
	case d.PriceType == "custom" && d.CustomPriceType != "":
		return "$" + string(d.Price) + "/mo " + d.CustomPriceType
	default:
		return "Unknown"
	}
}

// PublishedAt はversionsDataの先頭エントリからpublish_dateを取得する。
// 取得・パースできない場合はnilを返す。
func (d *AppDetail) PublishedAt() *time.Time {
	if d.VersionsData == nil {
		return nil
	}
	var versions []struct {
		PublishDate string `json:"publish_date"`
	}
	if err := json.Unmarshal(d.VersionsData, &versions); err != nil {
		return nil
	}
	if len(versions) == 0 || versions[0].PublishDate == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, versions[0].PublishDate); err == nil {
			return &t
		}
	}
	return nil
}

// LogoURL はロゴのURLを返す。featured_iconは相対パスのため
// ストアのベースURLを前置し、無ければlogoをそのまま使用する。
func (d *AppDetail) LogoURL() string {
	if d.FeaturedIcon != "" {
		return DefaultAssetBaseURL + strings.TrimPrefix(d.FeaturedIcon, "/")
	}
	return d.Logo
}

// ToModel はアプリ詳細を保存用のStoreAppに変換する。
// HTML項目はMarkdownに変換される。purchase_trendと各タイムスタンプは
// 呼び出し側のジョブが設定する。
func (d *AppDetail) ToModel(conv *markdown.Converter) *model.StoreApp {
	return &model.StoreApp{
		SourceAppID:  d.SourceAppID,
		ListingID:    d.ListingID,
		Title:        d.Title,
		Tagline:      d.Tagline,
		CompanyName:  d.CompanyName,
		CompanyLogo:  d.CompanyLogo,
		Logo:         d.LogoURL(),
		FeaturedIcon: d.FeaturedIcon,

		StoreDescription:   conv.Convert(d.StoreDescription),
		BusinessChallenge:  conv.Convert(d.BusinessChallenge),
		KeyFeatures:        conv.Convert(d.KeyFeatures),
		SystemRequirements: conv.Convert(d.SystemRequirements),

		AppType:      d.AppType,
		AppSubType:   d.AppSubType,
		Version:      d.Version,
		LandingPage:  d.LandingURL,
		DisplayPrice: d.DisplayPrice(),

		TableCount:    int(d.TableCount),
		PurchaseCount: int(d.PurchaseCount),
		ReviewCount:   int(d.ReviewCount),

		AllowForExistingCustomers: bool(d.AllowForExistingCustomers),
		AllowForNonCustomers:      bool(d.AllowForNonCustomers),
		AllowOnCustomerSubprod:    bool(d.AllowOnCustomerSubprod),
		AllowOnDeveloperInstance:  bool(d.AllowOnDeveloperInstance),
		AllowOnServicenowInstance: bool(d.AllowOnServicenowInstance),
		AllowTrial:                bool(d.AllowTrial),
		AllowWithoutLicense:       bool(d.AllowWithoutLicense),

		SupportingMedia: rawText(d.SupportingMedia),
		VersionsData:    rawText(d.VersionsData),
		SupportLinks:    rawText(d.SupportLinks),
		SupportContacts: rawText(d.SupportContacts),

		PublishedAt: d.PublishedAt(),
	}
}

// AppendTrend はpurchase_trendマップに指定日のポイントを追記したJSONを返す。
// 既存マップのパースに失敗した場合は空マップから開始する（過去分は復元不能）。
// 同じ日付のキーは上書きされるが、過去の日付は削除されない。
func AppendTrend(existing string, day string, point model.TrendPoint) string {
	trend := map[string]model.TrendPoint{}
	if existing != "" {
		// レニエントに扱う
		json.Unmarshal([]byte(existing), &trend)
	}
	trend[day] = point

	data, err := json.Marshal(trend)
	if err != nil {
		return existing
	}
	return string(data)
}

// rawText はJSONサブドキュメントをテキストとして返す。nullや未設定は空文字列。
func rawText(raw json.RawMessage) string {
	s := string(bytes.TrimSpace(raw))
	if s == "" || s == "null" {
		return ""
	}
	return s
}
