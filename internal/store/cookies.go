package store

import (
	"regexp"
	"strings"
)

// sessionCookieNames はストアフロントが発行するセッションクッキー名。
// 長い名前を先に並べ、glide_userがglide_user_sessionを誤って
// 分断しないようにしている。
var sessionCookieNames = []string{
	"BIGipServerpool",
	"JSESSIONID",
	"glide_user_session",
	"glide_user_route",
	"glide_node_id_for_js",
	"glide_user",
}

// cookieBoundary は結合済みSet-Cookie文字列のクッキー境界。
// Expires属性の値（"Wed, 21 Oct 2026 07:28:00 GMT"）自体がカンマを含むため、
// 単純なカンマ分割では壊れる。既知のクッキー名が続くカンマのみを境界とする。
var cookieBoundary = regexp.MustCompile(`,\s*(?i:(` + strings.Join(sessionCookieNames, "|") + `))=`)

// SplitSetCookie は結合済みのSet-Cookie文字列をクッキー名境界で分割し、
// name=valueのマップを返す。値が空のクッキー（削除指示）は除外する。
func SplitSetCookie(raw string) map[string]string {
	cookies := map[string]string{}
	if raw == "" {
		return cookies
	}

	// 境界位置（クッキー名の開始位置）で区切る
	var segments []string
	prev := 0
	for _, m := range cookieBoundary.FindAllStringSubmatchIndex(raw, -1) {
		segments = append(segments, raw[prev:m[0]])
		prev = m[2] // 次のセグメントはクッキー名から始まる
	}
	segments = append(segments, raw[prev:])

	for _, seg := range segments {
		// 最初のセミコロンまでがname=value、以降は属性
		main := strings.TrimSpace(strings.SplitN(seg, ";", 2)[0])
		name, value, ok := strings.Cut(main, "=")
		if !ok || value == "" {
			continue
		}
		cookies[strings.TrimSpace(name)] = value
	}

	return cookies
}

// CookieHeader はクッキーマップをCookieヘッダ形式の文字列に変換する。
// 出力順はsessionCookieNamesの定義順に従う（安定化のため）。
func CookieHeader(cookies map[string]string) string {
	var parts []string
	for _, name := range sessionCookieNames {
		if v, ok := cookies[name]; ok {
			parts = append(parts, name+"="+v)
		}
	}
	// 既知リスト外のクッキーも末尾に付与する
	for name, v := range cookies {
		if !isSessionCookieName(name) {
			parts = append(parts, name+"="+v)
		}
	}
	return strings.Join(parts, "; ")
}

func isSessionCookieName(name string) bool {
	for _, n := range sessionCookieNames {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
