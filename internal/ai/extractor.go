package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// extractSystemPrompt は参加者抽出のシステムプロンプト。
const extractSystemPrompt = "You extract speaker names from transcripts. Return only valid JSON arrays."

// extractPromptTemplate は参加者抽出の指示文。
const extractPromptTemplate = `Extract all speaker/participant names from this video transcript.
This is from a ServiceNow Knowledge conference session.

Return ONLY a JSON array of objects with this format:
[{"name": "Full Name", "title": "Job Title or null", "company": "Company Name or null"}]

Rules:
- Only include REAL PERSON names (not product names, company names, or other terms)
- Names should be properly capitalized (e.g., "Bill McDermott" not "bill mcdermott")
- If you can identify their title or company from context, include it
- If unsure about title/company, use null
- Do not include generic terms like "speaker" or "host"
- Return empty array [] if no clear names found

Transcript:
`

// minNameLength はこれ未満の名前を誤検出として破棄する。
const minNameLength = 3

// ExtractedParticipant は抽出された参加者1人分。
// TitleとCompanyは特定できなかった場合に空文字列になる。
type ExtractedParticipant struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Company string `json:"company"`
}

// fencePattern はレスポンスを包むMarkdownコードフェンスの除去パターン。
var fencePattern = regexp.MustCompile("```(?:json)?\n?")

// Extractor はトランスクリプトからの参加者抽出を行う。
type Extractor struct {
	client *ChatClient
	model  string
	budget int
}

// NewExtractor はExtractorの新しいインスタンスを生成する。
// budgetは送信前に適用するトランスクリプトの最大文字数。
func NewExtractor(client *ChatClient, model string, budget int) *Extractor {
	return &Extractor{
		client: client,
		model:  model,
		budget: budget,
	}
}

// Configured は抽出が利用可能かを返す。
func (e *Extractor) Configured() bool {
	return e.client.Configured()
}

// ExtractParticipants はトランスクリプトから参加者名を抽出する。
// レスポンスは厳密なJSON配列を要求するが、コードフェンスで
// 包まれている場合は除去してからパースする。
// 短すぎる名前と"null"系のプレースホルダ値は除去される。
func (e *Extractor) ExtractParticipants(ctx context.Context, transcript string) ([]ExtractedParticipant, error) {
	truncated := Truncate(transcript, e.budget)
	messages := []Message{
		{Role: "system", Content: extractSystemPrompt},
		{Role: "user", Content: extractPromptTemplate + truncated},
	}

	content, err := e.client.Complete(ctx, e.model, messages, 0.1)
	if err != nil {
		return nil, err
	}

	return parseParticipants(content)
}

// parseParticipants はレスポンス本文をJSON配列としてパースする。
func parseParticipants(content string) ([]ExtractedParticipant, error) {
	jsonStr := content
	if strings.Contains(content, "```") {
		jsonStr = fencePattern.ReplaceAllString(content, "")
	}
	jsonStr = strings.TrimSpace(jsonStr)

	var raw []ExtractedParticipant
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("抽出結果のJSONパースに失敗しました: %w", err)
	}

	participants := make([]ExtractedParticipant, 0, len(raw))
	for _, p := range raw {
		p.Name = strings.TrimSpace(p.Name)
		if len(p.Name) < minNameLength {
			continue
		}
		p.Title = cleanField(p.Title)
		p.Company = cleanField(p.Company)
		participants = append(participants, p)
	}
	return participants, nil
}

// cleanField は"null"や"undefined"のプレースホルダ値を空文字列に正規化する。
func cleanField(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "null", "undefined":
		return ""
	}
	return v
}
