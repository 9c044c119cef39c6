package store

import (
	"strings"
	"testing"
)

func TestSplitSetCookie(t *testing.T) {
	// Expires属性はカンマを含むため、単純なカンマ分割では
	// "21 Oct 2026..."が別クッキーに化ける
	raw := "JSESSIONID=abc123; Path=/; HttpOnly, " +
		"glide_user_session=xyz789; Expires=Wed, 21 Oct 2026 07:28:00 GMT; Secure, " +
		"glide_user_route=glide.aaa; Max-Age=2147483647, " +
		"BIGipServerpool=255.1.2.3; path=/"

	cookies := SplitSetCookie(raw)

	want := map[string]string{
		"JSESSIONID":         "abc123",
		"glide_user_session": "xyz789",
		"glide_user_route":   "glide.aaa",
		"BIGipServerpool":    "255.1.2.3",
	}
	if len(cookies) != len(want) {
		t.Fatalf("len(cookies) = %d, want %d (%v)", len(cookies), len(want), cookies)
	}
	for name, value := range want {
		if cookies[name] != value {
			t.Errorf("cookies[%q] = %q, want %q", name, cookies[name], value)
		}
	}
}

func TestSplitSetCookieSkipsEmptyValues(t *testing.T) {
	raw := "glide_user=; Path=/; Max-Age=0, JSESSIONID=live; Path=/"
	cookies := SplitSetCookie(raw)

	if _, ok := cookies["glide_user"]; ok {
		t.Error("cleared cookie should be skipped")
	}
	if cookies["JSESSIONID"] != "live" {
		t.Errorf("cookies[JSESSIONID] = %q, want %q", cookies["JSESSIONID"], "live")
	}
}

func TestSplitSetCookieEmpty(t *testing.T) {
	if got := SplitSetCookie(""); len(got) != 0 {
		t.Errorf("SplitSetCookie(\"\") = %v, want empty", got)
	}
}

func TestCookieHeader(t *testing.T) {
	cookies := map[string]string{
		"glide_user_session": "s1",
		"JSESSIONID":         "j1",
	}
	header := CookieHeader(cookies)

	if !strings.Contains(header, "JSESSIONID=j1") || !strings.Contains(header, "glide_user_session=s1") {
		t.Errorf("CookieHeader() = %q, missing cookies", header)
	}
	// 定義順で安定している
	if strings.Index(header, "JSESSIONID") > strings.Index(header, "glide_user_session") {
		t.Errorf("CookieHeader() = %q, want JSESSIONID first", header)
	}
}
