// Package edgar はSEC EDGARの提出書類インデックスと全文取得のクライアントを提供する。
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hitoshi/snowpulse/internal/fetch"
	"github.com/hitoshi/snowpulse/internal/model"
)

const (
	// DefaultSubmissionsBaseURL は提出書類インデックスのベースURL。
	DefaultSubmissionsBaseURL = "https://data.sec.gov/submissions/"
	// DefaultArchivesBaseURL は提出書類本体のベースURL。
	DefaultArchivesBaseURL = "https://www.sec.gov/Archives/edgar/data/"
)

// formTypes は取り込み対象の提出書類種別のホワイトリスト。
var formTypes = map[string]model.FilingType{
	"10-K": model.FilingTypeAnnual,
	"10-Q": model.FilingTypeQuarterly,
	"8-K":  model.FilingTypeMajorEvent,
}

// Filing はインデックスから組み立てた提出書類1件分のメタデータ。
type Filing struct {
	AccessionNumber string
	FilingDate      string
	ReportDate      string
	Form            string
	PrimaryDocument string
	HTMLLink        string // 冪等性キーとして保存されるインデックスページのURL
	JSONLink        string // マニフェスト（index.json）のURL
}

// FilingType はホワイトリストに基づく種別ラベルを返す。
func (f *Filing) FilingType() model.FilingType {
	return formTypes[f.Form]
}

// HTTPClient はHTTPアクセスのインターフェース。
type HTTPClient interface {
	Get(ctx context.Context, url string, headers map[string]string) (*fetch.Result, error)
}

// Client はEDGARのプロトコルクライアント。
// SECのアクセスポリシーに従い、連絡先入りUser-Agentを送信し、
// 全リクエストをレートリミッタで毎秒最大5件程度に抑える。
type Client struct {
	http            HTTPClient
	limiter         *rate.Limiter
	contactEmail    string
	submissionsBase string
	archivesBase    string
}

// NewClient はClientの新しいインスタンスを生成する。
// requestIntervalはリクエスト間の最低間隔（SECの推奨は200ms程度）。
func NewClient(httpClient HTTPClient, contactEmail string, requestInterval rate.Limit) *Client {
	return &Client{
		http:            httpClient,
		limiter:         rate.NewLimiter(requestInterval, 1),
		contactEmail:    contactEmail,
		submissionsBase: DefaultSubmissionsBaseURL,
		archivesBase:    DefaultArchivesBaseURL,
	}
}

// NewClientWithURLs はエンドポイントを指定してClientを生成する。テスト用。
func NewClientWithURLs(httpClient HTTPClient, contactEmail string, requestInterval rate.Limit, submissionsBase, archivesBase string) *Client {
	c := NewClient(httpClient, contactEmail, requestInterval)
	c.submissionsBase = submissionsBase
	c.archivesBase = archivesBase
	return c
}

// filingColumns はEDGARの列指向インデックス。各配列は同じ長さで、
// i番目の要素が1件の提出書類に対応する。
type filingColumns struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// merge は別アーカイブの列を末尾に連結する。
func (c *filingColumns) merge(other *filingColumns) {
	c.AccessionNumber = append(c.AccessionNumber, other.AccessionNumber...)
	c.FilingDate = append(c.FilingDate, other.FilingDate...)
	c.ReportDate = append(c.ReportDate, other.ReportDate...)
	c.Form = append(c.Form, other.Form...)
	c.PrimaryDocument = append(c.PrimaryDocument, other.PrimaryDocument...)
}

// submissionsResponse はCIK{cik}.jsonのレスポンス構造。
type submissionsResponse struct {
	Filings struct {
		Recent filingColumns `json:"recent"`
		Files  []struct {
			Name string `json:"name"`
		} `json:"files"`
	} `json:"filings"`
}

// FetchFilings はCIKの全提出書類を取得し、ホワイトリスト種別のみ返す。
// 直近分に加えて、"files"に列挙された過去アーカイブも取得して
// 配列項目を連結する。
func (c *Client) FetchFilings(ctx context.Context, cik string) ([]Filing, error) {
	body, err := c.get(ctx, c.submissionsBase+"CIK"+cik+".json")
	if err != nil {
		return nil, fmt.Errorf("提出書類インデックスの取得に失敗しました: %w", err)
	}

	var submissions submissionsResponse
	if err := json.Unmarshal(body, &submissions); err != nil {
		return nil, fmt.Errorf("提出書類インデックスのパースに失敗しました: %w", err)
	}

	columns := submissions.Filings.Recent

	// 過去アーカイブの連結
	for _, file := range submissions.Filings.Files {
		archiveBody, err := c.get(ctx, c.submissionsBase+file.Name)
		if err != nil {
			// 1アーカイブの失敗で全体は止めない
			continue
		}
		var archive filingColumns
		if err := json.Unmarshal(archiveBody, &archive); err != nil {
			continue
		}
		columns.merge(&archive)
	}

	cikPadded := padCIK(cik)
	var filings []Filing
	for i, accession := range columns.AccessionNumber {
		if i >= len(columns.Form) {
			break
		}
		form := columns.Form[i]
		if _, ok := formTypes[form]; !ok {
			continue
		}

		noDashes := strings.ReplaceAll(accession, "-", "")
		filing := Filing{
			AccessionNumber: accession,
			Form:            form,
			HTMLLink:        c.archivesBase + cikPadded + "/" + accession + "-index.htm",
			JSONLink:        c.archivesBase + cikPadded + "/" + noDashes + "/index.json",
		}
		if i < len(columns.FilingDate) {
			filing.FilingDate = columns.FilingDate[i]
		}
		if i < len(columns.ReportDate) {
			filing.ReportDate = columns.ReportDate[i]
		}
		if i < len(columns.PrimaryDocument) {
			filing.PrimaryDocument = columns.PrimaryDocument[i]
		}
		filings = append(filings, filing)
	}

	return filings, nil
}

// manifestResponse はindex.jsonのレスポンス構造。
type manifestResponse struct {
	Directory struct {
		Item []struct {
			Name string `json:"name"`
		} `json:"item"`
	} `json:"directory"`
}

// FetchFilingDocument は提出書類の全文テキストを取得する。
// index.jsonから{accession_number}.txtを探し、最初の埋め込みドキュメント
// （</DOCUMENT>区切りの先頭）を切り出して返す。
// .txtファイルが見つからない場合は空文字列を返す。
func (c *Client) FetchFilingDocument(ctx context.Context, filing *Filing, cik string) (string, error) {
	body, err := c.get(ctx, filing.JSONLink)
	if err != nil {
		return "", fmt.Errorf("マニフェストの取得に失敗しました: %w", err)
	}

	var manifest manifestResponse
	if err := json.Unmarshal(body, &manifest); err != nil {
		return "", fmt.Errorf("マニフェストのパースに失敗しました: %w", err)
	}

	txtName := filing.AccessionNumber + ".txt"
	found := false
	for _, item := range manifest.Directory.Item {
		if item.Name == txtName {
			found = true
			break
		}
	}
	if !found {
		return "", nil
	}

	noDashes := strings.ReplaceAll(filing.AccessionNumber, "-", "")
	fileURL := c.archivesBase + padCIK(cik) + "/" + noDashes + "/" + txtName

	docBody, err := c.get(ctx, fileURL)
	if err != nil {
		return "", fmt.Errorf("提出書類本文の取得に失敗しました: %w", err)
	}

	return extractFirstDocument(string(docBody)), nil
}

// extractFirstDocument は提出書類テキストから最初の埋め込みドキュメントを切り出す。
// ヘッダ部分（SECURITIES AND EXCHANGE COMMISSIONまで）は除去する。
func extractFirstDocument(text string) string {
	document, _, _ := strings.Cut(text, "</DOCUMENT>")
	if idx := strings.LastIndex(document, "SECURITIES AND EXCHANGE COMMISSION"); idx >= 0 {
		document = document[idx+len("SECURITIES AND EXCHANGE COMMISSION"):]
	}
	return document
}

// get はレートリミッタで間隔を空けつつ、SEC要求のヘッダ付きでGETする。
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	headers := map[string]string{
		"User-Agent": "SnowpulseBot (" + c.contactEmail + ")",
		"Accept":     "application/json",
	}

	res, err := c.http.Get(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("EDGARがエラーを返しました: status=%d url=%s", res.StatusCode, url)
	}
	return res.Body, nil
}

// padCIK はCIKを10桁にゼロ埋めする。
func padCIK(cik string) string {
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}
