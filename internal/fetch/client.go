// Package fetch は外部サイトへのHTTPアクセスの共通クライアントを提供する。
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// Result はHTTPリクエスト1回分の結果を表す。
// BodyはMaxSizeで切り詰められた読み込み済みのレスポンスボディ。
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess はステータスコードが2xxかを返す。
func (r *Result) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client は取り込みジョブ共通のHTTPクライアント。
// User-Agentの付与とレスポンスサイズの上限を一元管理する。
type Client struct {
	http      *http.Client
	userAgent string
	maxSize   int64
}

// New はClientを生成する。
// httpClientにはsecurity.OutboundGuardServiceが生成したSSRF防止付き
// クライアントを渡すことを想定している。
func New(httpClient *http.Client, userAgent string, maxSize int64) *Client {
	return &Client{
		http:      httpClient,
		userAgent: userAgent,
		maxSize:   maxSize,
	}
}

// Get はGETリクエストを送信する。headersはnil可。
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Result, error) {
	return c.do(ctx, http.MethodGet, url, "", nil, headers)
}

// Post はPOSTリクエストを送信する。headersはnil可。
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) (*Result, error) {
	return c.do(ctx, http.MethodPost, url, contentType, body, headers)
}

// Head はHEADリクエストを送信する。ボディは読み込まない。
// RSSフィードの存在確認などステータスとヘッダのみ必要な場合に使用する。
func (c *Client) Head(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HEADリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}, nil
}

func (c *Client) do(ctx context.Context, method, url, contentType string, body []byte, headers map[string]string) (*Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("リクエストの送信に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み込みに失敗しました: %w", err)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
