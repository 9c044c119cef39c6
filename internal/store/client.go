// Package store はServiceNow StoreマーケットプレイスAPIのクライアントを提供する。
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hitoshi/snowpulse/internal/fetch"
)

const (
	// DefaultStorefrontURL は認証トークン取得用のストアフロントページ。
	DefaultStorefrontURL = "https://store.servicenow.com/sn_appstore_store.do"
	// DefaultAPIURL はアプリ一覧・詳細取得のAPIエンドポイント。
	DefaultAPIURL = "https://store.servicenow.com/appStore.do"
	// DefaultAssetBaseURL はfeatured_iconなど相対パスのアセットの基点。
	DefaultAssetBaseURL = "https://store.servicenow.com/"
)

// gckPattern はストアフロントページに埋め込まれた認証トークンの抽出パターン。
var gckPattern = regexp.MustCompile(`var g_ck = ['"]([^'"]+)['"]`)

// HTTPClient はHTTPアクセスのインターフェース。
type HTTPClient interface {
	Get(ctx context.Context, url string, headers map[string]string) (*fetch.Result, error)
	Post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) (*fetch.Result, error)
}

// Session はストアAPIの認証済みセッション。
// ストアフロントページから抽出したトークンとセッションクッキーを保持する。
type Session struct {
	Token  string
	Cookie string
}

// ListingEntry はGetLatestListingが返す一覧の1件分。
type ListingEntry struct {
	SourceAppID           string `json:"source_app_id"`
	Title                 string `json:"title"`
	Version               string `json:"version"`
	IsUpcomingIntegration bool   `json:"is_upcoming_integration"`
}

// Client はストアAPIのプロトコルクライアント。
// トークン+クッキーの2段階ハンドシェイクとsysparm_data形式のPOSTを担う。
type Client struct {
	http          HTTPClient
	storefrontURL string
	apiURL        string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient HTTPClient) *Client {
	return &Client{
		http:          httpClient,
		storefrontURL: DefaultStorefrontURL,
		apiURL:        DefaultAPIURL,
	}
}

// NewClientWithURLs はエンドポイントを指定してClientを生成する。テスト用。
func NewClientWithURLs(httpClient HTTPClient, storefrontURL, apiURL string) *Client {
	return &Client{
		http:          httpClient,
		storefrontURL: storefrontURL,
		apiURL:        apiURL,
	}
}

// OpenSession はストアフロントページを取得し、認証済みセッションを確立する。
// ページ内のscriptタグからg_ckトークンを抽出し、Set-Cookieヘッダから
// セッションクッキーを収集する。
func (c *Client) OpenSession(ctx context.Context) (*Session, error) {
	res, err := c.http.Get(ctx, c.storefrontURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ストアフロントページの取得に失敗しました: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("ストアフロントページがエラーを返しました: status=%d", res.StatusCode)
	}

	m := gckPattern.FindSubmatch(res.Body)
	if m == nil {
		return nil, fmt.Errorf("g_ckトークンが見つかりませんでした")
	}

	// 複数のSet-Cookieヘッダは結合してから名前境界で分割する
	raw := strings.Join(res.Header.Values("Set-Cookie"), ", ")
	cookies := SplitSetCookie(raw)

	return &Session{
		Token:  string(m[1]),
		Cookie: CookieHeader(cookies),
	}, nil
}

// FetchListing は全アプリの一覧を取得する。
func (c *Client) FetchListing(ctx context.Context, session *Session) ([]ListingEntry, error) {
	payload := map[string]any{
		"action": "store.Search.GetLatestListing",
		"searchParameters": map[string]any{
			"listingtype": []string{
				"allintegrations", "ancillary_app", "certified_apps", "content",
				"industry_solution", "oem", "utility", "template",
			},
			"q":       []string{""},
			"keyword": "",
		},
		"orderBy":            "recent",
		"env_profile_sys_id": "",
	}

	var entries []ListingEntry
	if err := c.postAction(ctx, session, payload, &entries); err != nil {
		return nil, fmt.Errorf("アプリ一覧の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// FetchDetail はアプリ1件の詳細を取得する。
func (c *Client) FetchDetail(ctx context.Context, session *Session, appID, version string, isUpcoming bool) (*AppDetail, error) {
	payload := map[string]any{
		"action":                "store.Application.GetById",
		"application_id":        appID,
		"version":               version,
		"isUpcomingIntegration": isUpcoming,
	}

	var detail AppDetail
	if err := c.postAction(ctx, session, payload, &detail); err != nil {
		return nil, fmt.Errorf("アプリ詳細の取得に失敗しました: app_id=%s: %w", appID, err)
	}
	if detail.SourceAppID == "" {
		return nil, fmt.Errorf("アプリ詳細にsource_app_idがありません: app_id=%s", appID)
	}
	return &detail, nil
}

// postAction はsysparm_data形式のPOSTを送信し、resultフィールドをデコードする。
// ペイロードはJSONにシリアライズした上でフォームエンコードされる。
func (c *Client) postAction(ctx context.Context, session *Session, payload map[string]any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ペイロードのシリアライズに失敗しました: %w", err)
	}

	form := url.Values{}
	form.Set("sysparm_data", string(data))

	headers := map[string]string{
		"X-Usertoken": session.Token,
		"Cookie":      session.Cookie,
		"Accept":      "application/json, text/plain, */*",
	}

	res, err := c.http.Post(ctx, c.apiURL, "application/x-www-form-urlencoded", []byte(form.Encode()), headers)
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		return fmt.Errorf("ストアAPIがエラーを返しました: status=%d", res.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(res.Body, &envelope); err != nil {
		return fmt.Errorf("レスポンスのパースに失敗しました: %w", err)
	}
	if envelope.Result == nil {
		return fmt.Errorf("レスポンスにresultフィールドがありません")
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("resultのデコードに失敗しました: %w", err)
	}
	return nil
}
