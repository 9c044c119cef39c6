// Package ai はOpenAI互換のチャット補完APIクライアントと、
// それを利用するサマリー生成・参加者抽出を提供する。
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// OpenAIEndpoint はOpenAIのチャット補完エンドポイント。
	OpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	// GeminiEndpoint はGeminiのOpenAI互換エンドポイント。
	GeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"
)

// Message はチャット補完の1メッセージ。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient はOpenAI互換APIのクライアント。
// OpenAIとGemini（OpenAI互換モード）の両方で使用できる。
type ChatClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewChatClient はChatClientの新しいインスタンスを生成する。
func NewChatClient(endpoint, apiKey string) *ChatClient {
	return &ChatClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// NewChatClientWithHTTP はHTTPクライアントを指定して生成する。テスト用。
func NewChatClientWithHTTP(endpoint, apiKey string, httpClient *http.Client) *ChatClient {
	return &ChatClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     httpClient,
	}
}

// Configured はAPIキーが設定済みかを返す。
func (c *ChatClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Complete はチャット補完を実行し、先頭choiceのメッセージ本文を返す。
// temperatureが負の場合はリクエストに含めない（プロバイダのデフォルトを使用）。
func (c *ChatClient) Complete(ctx context.Context, model string, messages []Message, temperature float64) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("チャットクライアントが未設定です")
	}

	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if temperature >= 0 {
		payload["temperature"] = temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("リクエストのシリアライズに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("チャット補完の呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("チャットAPIがエラーを返しました: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("レスポンスのパースに失敗しました: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("レスポンスにchoicesがありません")
	}

	return decoded.Choices[0].Message.Content, nil
}

// Truncate はテキストを指定の文字数予算に切り詰める。
// 切り詰めが発生した場合は末尾にマーカーを付与する。
func Truncate(text string, budget int) string {
	if budget <= 0 || len(text) <= budget {
		return text
	}
	return text[:budget] + "...[truncated]"
}
