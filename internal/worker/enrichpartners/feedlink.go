package enrichpartners

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedLinkTypes はフィードリンクとして認識するtype属性の値。
var feedLinkTypes = map[string]struct{}{
	"application/rss+xml":  {},
	"application/atom+xml": {},
}

// parseFeedLinks はHTMLのheadタグからRSS/Atomフィードリンクを検出する。
// rel="alternate"かつフィード系type属性の<link>要素のみ対象とし、
// 相対URLはbaseURLを基準に絶対URLへ解決する。
func parseFeedLinks(htmlBody []byte, baseURL string) []string {
	baseU, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var feeds []string
	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return feeds

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}
			if tagName == "body" {
				// bodyに入ったらheadの解析を終了
				return feeds
			}
			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			var rel, linkType, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
				if !more {
					break
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}
			if _, ok := feedLinkTypes[linkType]; !ok {
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			feeds = append(feeds, baseU.ResolveReference(ref).String())

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return feeds
			}
		}
	}
}
