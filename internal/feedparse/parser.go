// Package feedparse はRSS/Atomフィードのパースとエントリ変換を提供する。
package feedparse

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/snowpulse/internal/markdown"
	"github.com/hitoshi/snowpulse/internal/model"
)

// ParsedFeed はパース済みフィード1本分の結果を表す。
type ParsedFeed struct {
	Title   string
	Entries []model.ParsedEntry
}

// Parser はフィードのXMLをパースし、保存可能なエントリに変換する。
// 本文はMarkdownに変換され、変換に失敗した場合はタグ除去テキストに
// フォールバックする。URLを持たないエントリと相対URLのエントリは破棄される。
type Parser struct {
	converter *markdown.Converter
}

// New はParserの新しいインスタンスを生成する。
func New(converter *markdown.Converter) *Parser {
	return &Parser{converter: converter}
}

// Parse はフィードのXMLをパースしてエントリ一覧を返す。
// feedKindはコンテンツ種別の推定に使用される。
func (p *Parser) Parse(data []byte, feedKind model.FeedKind) (*ParsedFeed, error) {
	parser := gofeed.NewParser()
	parsed, err := parser.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	result := &ParsedFeed{Title: parsed.Title}

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		entry, ok := p.convertItem(item, feedKind)
		if !ok {
			continue
		}
		result.Entries = append(result.Entries, entry)
	}

	return result, nil
}

// convertItem はgofeedの記事をmodel.ParsedEntryに変換する。
// URLが欠落または相対URLの場合はfalseを返して破棄される。
func (p *Parser) convertItem(item *gofeed.Item, feedKind model.FeedKind) (model.ParsedEntry, bool) {
	link := item.Link
	// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
	if link == "" && isAbsoluteURL(item.GUID) {
		link = item.GUID
	}
	if !isAbsoluteURL(link) {
		return model.ParsedEntry{}, false
	}

	entry := model.ParsedEntry{
		Title: strings.TrimSpace(item.Title),
		URL:   link,
	}

	// 本文: Contentが空の場合はDescriptionを使用
	rawBody := item.Content
	if rawBody == "" {
		rawBody = item.Description
	}
	entry.Body = p.converter.Convert(rawBody)

	// 公開日時
	if item.PublishedParsed != nil {
		t := *item.PublishedParsed
		entry.PublishedAt = &t
	} else if item.UpdatedParsed != nil {
		t := *item.UpdatedParsed
		entry.PublishedAt = &t
	}

	// ポッドキャスト項目（iTunes拡張）
	if item.ITunesExt != nil {
		entry.Duration = item.ITunesExt.Duration
	}

	entry.Kind = inferKind(link, feedKind, entry.Duration)
	entry.ImageURL = extractImage(item, rawBody)

	return entry, true
}

// inferKind はコンテンツ種別を推定する。
// YouTube系のURLまたはyoutube-searchフィードは動画、
// iTunes拡張のdurationを持つエントリはポッドキャスト、それ以外は記事。
func inferKind(link string, feedKind model.FeedKind, duration string) model.ItemKind {
	if feedKind == model.FeedKindYouTubeSearch || isYoutubeURL(link) {
		return model.ItemKindVideo
	}
	if duration != "" {
		return model.ItemKindPodcast
	}
	return model.ItemKindArticle
}

// isYoutubeURL はURLがYouTubeのものかを判定する。
func isYoutubeURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") || host == "youtu.be"
}

// extractImage はエントリから画像URLを抽出する。
// 優先順位: item.Image → 画像type付きenclosure → media拡張 → 本文中の最初のimgタグ。
// 見つからない場合は空文字列を返す（エンリッチジョブが後で補完する）。
func extractImage(item *gofeed.Item, rawBody string) string {
	if item.Image != nil && isAbsoluteURL(item.Image.URL) {
		return item.Image.URL
	}

	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") && isAbsoluteURL(enc.URL) {
			return enc.URL
		}
	}

	if u := mediaExtensionURL(item); u != "" {
		return u
	}

	if item.ITunesExt != nil && isAbsoluteURL(item.ITunesExt.Image) {
		return item.ITunesExt.Image
	}

	return firstImageInHTML(rawBody)
}

// mediaExtensionURL はMedia RSS拡張（media:content / media:thumbnail）から
// 画像URLを取得する。
func mediaExtensionURL(item *gofeed.Item) string {
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}
	for _, key := range []string{"thumbnail", "content"} {
		for _, ext := range media[key] {
			if u := ext.Attrs["url"]; isAbsoluteURL(u) {
				return u
			}
		}
	}
	return ""
}

// firstImageInHTML は本文HTML中の最初のimgタグのsrcを返す。
func firstImageInHTML(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	if !isAbsoluteURL(src) {
		return ""
	}
	return src
}

// isAbsoluteURL はhttp/httpsの絶対URLかを判定する。
func isAbsoluteURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
