package ai

import (
	"context"
	"fmt"
)

// summarySystemPrompt はサマリー生成のシステムプロンプト。
const summarySystemPrompt = "You are a distiller of information."

// summaryUserPrompt はサマリー生成の指示文。本文を末尾に連結する。
const summaryUserPrompt = "You will take any text and pull out the most important details pertaining to acquisitions, mergers, and other notable items. You will return a one liner for each item.\n\n"

// Summarizer は長文テキストのAIサマリー生成を行う。
// プライマリプロバイダが未設定または失敗した場合はフォールバックに切り替える。
type Summarizer struct {
	primary       *ChatClient
	fallback      *ChatClient
	primaryModel  string
	fallbackModel string
	budget        int
}

// NewSummarizer はSummarizerの新しいインスタンスを生成する。
// fallbackはnil可。budgetは送信前に適用する最大文字数。
func NewSummarizer(primary, fallback *ChatClient, primaryModel, fallbackModel string, budget int) *Summarizer {
	return &Summarizer{
		primary:       primary,
		fallback:      fallback,
		primaryModel:  primaryModel,
		fallbackModel: fallbackModel,
		budget:        budget,
	}
}

// Configured はどちらかのプロバイダが利用可能かを返す。
func (s *Summarizer) Configured() bool {
	return s.primary.Configured() || s.fallback.Configured()
}

// Summarize はテキストのサマリーを生成する。
// テキストは文字数予算に切り詰めてから送信される。
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	truncated := Truncate(text, s.budget)
	messages := []Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: summaryUserPrompt + truncated},
	}

	if s.primary.Configured() {
		summary, err := s.primary.Complete(ctx, s.primaryModel, messages, -1)
		if err == nil {
			return summary, nil
		}
		// プライマリ失敗時はフォールバックを試す
		if s.fallback.Configured() {
			return s.fallback.Complete(ctx, s.fallbackModel, messages, -1)
		}
		return "", err
	}

	if s.fallback.Configured() {
		return s.fallback.Complete(ctx, s.fallbackModel, messages, -1)
	}

	return "", fmt.Errorf("サマリー生成のプロバイダが未設定です")
}
