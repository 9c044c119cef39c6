// Package markdown はHTMLからMarkdownへの変換を提供する。
package markdown

import (
	"html"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/microcosm-cc/bluemonday"
)

// Converter はHTML本文をMarkdownに変換する。
// 変換に失敗したHTMLはタグ除去テキストにフォールバックするため、
// Convertは常に何らかのプレーンな結果を返す。
// 内部のポリシーはスレッドセーフで、全ジョブで1インスタンスを共有できる。
type Converter struct {
	conv  *md.Converter
	strip *bluemonday.Policy
}

// NewConverter はConverterの新しいインスタンスを生成する。
func NewConverter() *Converter {
	return &Converter{
		conv:  md.NewConverter("", true, nil),
		strip: bluemonday.StrictPolicy(),
	}
}

// Convert はHTMLをMarkdownに変換する。
// 変換に失敗した場合はタグ除去テキストを返す。空入力には空文字列を返す。
func (c *Converter) Convert(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	converted, err := c.conv.ConvertString(rawHTML)
	if err != nil {
		return c.StripTags(rawHTML)
	}
	return strings.TrimSpace(converted)
}

// StripTags はHTMLから全てのタグを除去し、プレーンテキストを返す。
// HTMLエンティティはデコードされ、連続する空白行は1行にまとめられる。
func (c *Converter) StripTags(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}

	stripped := c.strip.Sanitize(rawHTML)
	stripped = html.UnescapeString(stripped)

	lines := strings.Split(stripped, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, trimmed)
		blank = false
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
