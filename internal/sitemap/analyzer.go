// Package sitemap はパートナー企業サイトのsitemap.xml解析を提供する。
package sitemap

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// maxServicenowPages / maxBlogPages は各バケットの収集上限。
// 巨大なサイトマップでも先頭付近の代表的なURLだけを見れば十分なため。
const (
	maxServicenowPages = 10
	maxBlogPages       = 5
)

// Analysis はsitemap.xml1本分の解析結果を表す。
// サイトマップインデックス（入れ子のサイトマップ一覧）の場合は
// IsIndexのみ立ち、URLの分類は行わない。
type Analysis struct {
	IsIndex bool

	// ServiceNowに言及するページURL（最初の1件をservicenow_page_urlとして採用する）
	ServicenowPages []string

	// ブログ・ニュース系セクション配下のページURL（フィード探索の起点）
	BlogPages []string

	// ServiceNow関連ページから導出した製品・サービスのキーワード
	Products []string
	Services []string
}

// urlset は通常のサイトマップのXML構造。
type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// sitemapindex はサイトマップインデックスのXML構造。
type sitemapindex struct {
	XMLName xml.Name `xml:"sitemapindex"`
}

// vendorPattern はServiceNowへの言及を判定するパターン。
var vendorPattern = regexp.MustCompile(`(?i)servicenow|snow|service-now`)

// blogPattern はブログ・ニュース系セクションの判定パターン。
var blogPattern = regexp.MustCompile(`(?i)/(blog|insights|resources|news)/`)

// productPatterns はServiceNow関連ページのうち製品ページの判定パターン。
var productPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/products?/`),
	regexp.MustCompile(`(?i)/apps?/`),
	regexp.MustCompile(`(?i)/solutions?/`),
	regexp.MustCompile(`(?i)/integrations?/`),
	regexp.MustCompile(`(?i)store\.servicenow\.com`),
}

// servicePattern はサービス提供ページの判定パターン。マッチした語を
// そのままサービスキーワードとして採用する。
var servicePattern = regexp.MustCompile(`(?i)consulting|implementation|advisory|professional-services|training|support`)

// stopwords はスラグのキーワード化で除外する単語。
var stopwords = map[string]bool{
	"the": true, "and": true, "of": true, "for": true, "a": true, "an": true,
	"to": true, "in": true, "with": true, "our": true, "your": true, "on": true,
	"how": true, "what": true, "why": true, "is": true, "page": true,
	"index": true, "html": true, "php": true, "asp": true, "default": true,
	"home": true,
}

// Analyzer はsitemap.xmlを解析し、企業ページをカテゴリに分類する。
type Analyzer struct{}

// NewAnalyzer はAnalyzerの新しいインスタンスを生成する。
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze はsitemap.xmlのバイト列を解析する。
// URL全体に対する正規表現で分類する:
//   - servicenow / snow / service-now を含むURL → ServicenowPages（最大10件）
//   - /blog /insights /resources /news 配下のURL → BlogPages（最大5件）
//
// さらにServicenowPagesのうち製品系パス（/products /apps /solutions
// /integrations、store.servicenow.com）のスラグをキーワード化してProductsに、
// サービス系の語（consulting、implementationなど）をServicesに集める。
//
// サイトマップインデックスの場合、入れ子のサイトマップは辿らない。
func (a *Analyzer) Analyze(data []byte) (*Analysis, error) {
	var idx sitemapindex
	if err := xml.Unmarshal(data, &idx); err == nil {
		return &Analysis{IsIndex: true}, nil
	}

	var set urlset
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("sitemap.xmlのパースに失敗しました: %w", err)
	}

	analysis := &Analysis{}
	for _, entry := range set.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		if len(analysis.ServicenowPages) < maxServicenowPages && vendorPattern.MatchString(loc) {
			analysis.ServicenowPages = append(analysis.ServicenowPages, loc)
		}
		if len(analysis.BlogPages) < maxBlogPages && blogPattern.MatchString(loc) {
			analysis.BlogPages = append(analysis.BlogPages, loc)
		}
	}

	seenProducts := map[string]bool{}
	seenServices := map[string]bool{}
	for _, page := range analysis.ServicenowPages {
		u, err := url.Parse(page)
		if err != nil {
			continue
		}

		if matchesProduct(page) {
			if kw := slugKeyword(u.Path); kw != "" && !seenProducts[kw] {
				seenProducts[kw] = true
				analysis.Products = append(analysis.Products, kw)
			}
		}

		if m := servicePattern.FindString(page); m != "" {
			kw := strings.ToLower(m)
			if !seenServices[kw] {
				seenServices[kw] = true
				analysis.Services = append(analysis.Services, kw)
			}
		}
	}

	return analysis, nil
}

// matchesProduct は製品系パターンのいずれかにマッチするかを返す。
func matchesProduct(loc string) bool {
	for _, p := range productPatterns {
		if p.MatchString(loc) {
			return true
		}
	}
	return false
}

// slugKeyword はURLパスの末尾スラグをキーワードに変換する。
// 拡張子を除去し、ハイフン・アンダースコアを空白に変換し、
// ストップワードを除いた単語を連結する。
// "/products/" のようなカテゴリトップのURLや3文字未満のスラグは
// 空文字列を返す。
func slugKeyword(urlPath string) string {
	slug := path.Base(strings.TrimSuffix(urlPath, "/"))
	if slug == "." || slug == "/" {
		return ""
	}
	if ext := path.Ext(slug); ext != "" {
		slug = strings.TrimSuffix(slug, ext)
	}

	// カテゴリトップ自体はキーワードにしない
	lower := strings.ToLower(slug)
	if lower == "products" || lower == "product" || lower == "services" || lower == "service" ||
		lower == "solutions" || lower == "apps" || lower == "integrations" {
		return ""
	}
	if len(slug) <= 2 {
		return ""
	}

	slug = strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	var words []string
	for _, w := range strings.Fields(slug) {
		if stopwords[strings.ToLower(w)] {
			continue
		}
		words = append(words, capitalize(w))
	}
	return strings.Join(words, " ")
}

// capitalize は単語の先頭をASCII範囲で大文字にする。
func capitalize(w string) string {
	if w == "" {
		return w
	}
	if w[0] >= 'a' && w[0] <= 'z' {
		return string(w[0]-'a'+'A') + w[1:]
	}
	return w
}
