// Package participant は人物名の正規化・バリアント解決・マージを提供する。
package participant

import (
	"regexp"
	"strings"
	"unicode"
)

// camelBoundaryPattern はキャメルケース境界の検出パターン（JaceNow -> Jace Now）。
var camelBoundaryPattern = regexp.MustCompile(`([a-z])([A-Z])`)

// suffixPattern は名前末尾の敬称・肩書きの除去パターン。
var suffixPattern = regexp.MustCompile(`(?i),\s*(Jr|Sr|II|III|IV|V|PhD|MBA|CEO|CTO|VP|SVP|Director|Manager)\.?$`)

// multiSpacePattern は連続スペースの圧縮パターン。
var multiSpacePattern = regexp.MustCompile(` +`)

// NormalizeName は表記ゆれ比較用の正規化名を返す。
// キャメルケースをスペース区切りに展開し、末尾の敬称を除去し、
// スペースを圧縮して小文字に揃える。空の入力には空文字列を返す。
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = camelBoundaryPattern.ReplaceAllString(name, "$1 $2")
	name = suffixPattern.ReplaceAllString(name, "")
	name = multiSpacePattern.ReplaceAllString(name, " ")

	return strings.ToLower(strings.TrimSpace(name))
}

// TitleCase は小文字の正規化名を表示用に変換する（jace benson -> Jace Benson）。
func TitleCase(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
