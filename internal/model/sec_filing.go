package model

import "time"

// FilingType はSEC提出書類の種別ラベルを表す。
// 取り込み対象は10-K/10-Q/8-Kのホワイトリストに限定される。
type FilingType string

const (
	// FilingTypeAnnual は年次報告書（10-K）。
	FilingTypeAnnual FilingType = "Annual Report"
	// FilingTypeQuarterly は四半期報告書（10-Q）。
	FilingTypeQuarterly FilingType = "Quarterly Report"
	// FilingTypeMajorEvent は臨時報告書（8-K）。
	FilingTypeMajorEvent FilingType = "Major Event Report"
)

// SecFiling はSEC提出書類1件を表す。urlが冪等性のための一意キー。
// summaryが非空のレコードは再処理されない。
type SecFiling struct {
	ID         string
	FilingType FilingType
	Date       time.Time
	URL        string
	Content    string // Markdown変換済み全文
	Summary    string // AI生成サマリー
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
