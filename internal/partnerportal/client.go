// Package partnerportal はServiceNowパートナーポータルAPIのクライアントを提供する。
package partnerportal

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/hitoshi/snowpulse/internal/fetch"
	"github.com/hitoshi/snowpulse/internal/model"
)

const (
	// DefaultPortalURL はトークン取得用のパートナー一覧ページ。
	DefaultPortalURL = "https://partnerportal.service-now.com/partnerhome?id=partnerlist"
	// DefaultXMLHTTPURL はパートナーデータ取得のXML-RPC風エンドポイント。
	DefaultXMLHTTPURL = "https://partnerportal.service-now.com/xmlhttp.do"
)

// tokenPattern はポータルページに埋め込まれた認証トークンの抽出パターン。
var tokenPattern = regexp.MustCompile(`window\.g_ck\s*=\s*'([^']+)'`)

// HTTPClient はHTTPアクセスのインターフェース。
type HTTPClient interface {
	Get(ctx context.Context, url string, headers map[string]string) (*fetch.Result, error)
	Post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) (*fetch.Result, error)
}

// Client はパートナーポータルのプロトコルクライアント。
// トークン+クッキーを取得し、xmlhttp.doへのPOSTでパートナー一覧を得る。
// レスポンスはXML属性にエスケープされたJSONが入る特殊な形式のため、
// XML属性抽出 → HTMLエンティティデコード → JSONパースの3段で復号する。
type Client struct {
	http       HTTPClient
	portalURL  string
	xmlhttpURL string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient HTTPClient) *Client {
	return &Client{
		http:       httpClient,
		portalURL:  DefaultPortalURL,
		xmlhttpURL: DefaultXMLHTTPURL,
	}
}

// NewClientWithURLs はエンドポイントを指定してClientを生成する。テスト用。
func NewClientWithURLs(httpClient HTTPClient, portalURL, xmlhttpURL string) *Client {
	return &Client{
		http:       httpClient,
		portalURL:  portalURL,
		xmlhttpURL: xmlhttpURL,
	}
}

// FetchPartners はパートナー一覧を取得する。
func (c *Client) FetchPartners(ctx context.Context) ([]model.PartnerRecord, error) {
	token, cookie, err := c.openSession(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("sysparm_processor", "displayPartnersAjaxUtils")
	form.Set("sysparm_name", "getPartners")

	headers := map[string]string{
		"X-UserToken": token,
		"Cookie":      cookie,
	}

	res, err := c.http.Post(ctx, c.xmlhttpURL, "application/x-www-form-urlencoded", []byte(form.Encode()), headers)
	if err != nil {
		return nil, fmt.Errorf("パートナー一覧の取得に失敗しました: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("パートナーポータルがエラーを返しました: status=%d", res.StatusCode)
	}

	return parsePartnerXML(res.Body)
}

// openSession はポータルページからトークンとクッキーを取得する。
func (c *Client) openSession(ctx context.Context) (token, cookie string, err error) {
	res, err := c.http.Get(ctx, c.portalURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("ポータルページの取得に失敗しました: %w", err)
	}
	if !res.IsSuccess() {
		return "", "", fmt.Errorf("ポータルページがエラーを返しました: status=%d", res.StatusCode)
	}

	m := tokenPattern.FindSubmatch(res.Body)
	if m == nil {
		return "", "", fmt.Errorf("認証トークンが見つかりませんでした")
	}

	// Set-Cookieヘッダはname=valueのみ抽出して連結する
	var parts []string
	for _, raw := range res.Header.Values("Set-Cookie") {
		main := strings.TrimSpace(strings.SplitN(raw, ";", 2)[0])
		if main != "" {
			parts = append(parts, main)
		}
	}

	return string(m[1]), strings.Join(parts, "; "), nil
}

// answerEnvelope はxmlhttp.doレスポンスのXML構造。
// パートナーデータはanswer属性にXMLエスケープ済みJSONとして格納される。
type answerEnvelope struct {
	XMLName xml.Name `xml:"xml"`
	Answer  string   `xml:"answer,attr"`
}

// rawPartner はデコード済みJSON内のパートナー1社分。
type rawPartner struct {
	Name              string `json:"name"`
	URL               string `json:"url"`
	City              string `json:"city"`
	State             string `json:"state"`
	Country           string `json:"country"`
	PartnerTiers      string `json:"partnerTiers"`
	PfURL             string `json:"pfUrl"`
	SegmentProgramMap string `json:"segmentProgramMap"`
}

// parsePartnerXML はXMLレスポンスをパートナー一覧に復号する。
func parsePartnerXML(data []byte) ([]model.PartnerRecord, error) {
	var envelope answerEnvelope
	if err := xml.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("XMLレスポンスのパースに失敗しました: %w", err)
	}
	if envelope.Answer == "" {
		return nil, fmt.Errorf("answer属性がありません")
	}

	// xml.Unmarshalは属性値のXMLエスケープを解除済みだが、
	// ポータルは二重にエスケープするためもう一段デコードする
	decoded := html.UnescapeString(envelope.Answer)

	var rawPartners []rawPartner
	if err := json.Unmarshal([]byte(decoded), &rawPartners); err != nil {
		return nil, fmt.Errorf("パートナーJSONのパースに失敗しました: %w", err)
	}

	records := make([]model.PartnerRecord, 0, len(rawPartners))
	for _, p := range rawPartners {
		programs := decodeSegmentProgramMap(p.SegmentProgramMap)
		records = append(records, model.PartnerRecord{
			Name:                 p.Name,
			Website:              p.URL,
			City:                 p.City,
			State:                p.State,
			Country:              p.Country,
			BuildLevel:           programs["Build"],
			ConsultingLevel:      programs["Consulting & Implementation"],
			ResellerLevel:        programs["Reseller"],
			ServiceProviderLevel: programs["Service Provider"],
			PartnerLevel:         strings.ReplaceAll(p.PartnerTiers, "<br>", ""),
			ServicenowURL:        p.PfURL,
		})
	}

	return records, nil
}

// decodeSegmentProgramMap はパートナーごとのプログラムマップをデコードする。
// この項目はJSON文字列としてさらに入れ子にエンコードされており、
// パース失敗時は空マップを返す（レニエントに扱う）。
func decodeSegmentProgramMap(raw string) map[string]string {
	if raw == "" {
		return map[string]string{}
	}
	var programs map[string]string
	if err := json.Unmarshal([]byte(raw), &programs); err != nil {
		return map[string]string{}
	}
	return programs
}

// ExtractDomain はwebsiteのURLから照合用のドメインを取り出す。
// スキーム無しのURLを補完し、先頭のwww.を除去して小文字化する。
// パースできない場合は空文字列を返す。
func ExtractDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(rawURL), "http") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
