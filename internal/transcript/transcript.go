// Package transcript は動画の字幕トラック取得とテキスト化を提供する。
package transcript

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// CommandRunner は外部コマンド実行のインターフェース。テストでの差し替え用。
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// execRunner はos/execによるCommandRunnerの実装。
type execRunner struct{}

// Run はコマンドを実行する。出力は破棄し、終了コードのみ見る。
func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Run()
}

// Fetcher はyt-dlpで字幕トラックを取得し、プレーンテキストに変換する。
// 自動生成字幕を優先し、無ければ手動字幕を試す。
type Fetcher struct {
	runner CommandRunner
	tmpDir string
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher() *Fetcher {
	return &Fetcher{
		runner: execRunner{},
		tmpDir: os.TempDir(),
	}
}

// NewFetcherWithRunner は実行器とテンポラリディレクトリを指定して生成する。テスト用。
func NewFetcherWithRunner(runner CommandRunner, tmpDir string) *Fetcher {
	return &Fetcher{
		runner: runner,
		tmpDir: tmpDir,
	}
}

// Fetch は動画URLの字幕を取得し、タイミング情報を除いたテキストを返す。
// 字幕が存在しない場合はエラーを返す。
func (f *Fetcher) Fetch(ctx context.Context, videoURL string) (string, error) {
	base := filepath.Join(f.tmpDir, "transcript_"+randomHex(8))
	defer f.cleanupTempFiles(base)

	// 自動生成字幕を先に試す
	subFile := f.download(ctx, videoURL, base, "--write-auto-sub")
	if subFile == "" {
		// 手動字幕にフォールバック
		subFile = f.download(ctx, videoURL, base, "--write-sub")
	}
	if subFile == "" {
		return "", fmt.Errorf("字幕トラックが見つかりませんでした: %s", videoURL)
	}

	content, err := os.ReadFile(subFile)
	if err != nil {
		return "", fmt.Errorf("字幕ファイルの読み込みに失敗しました: %w", err)
	}

	text := CleanSubtitles(string(content))
	if text == "" {
		return "", fmt.Errorf("字幕が空でした: %s", videoURL)
	}
	return text, nil
}

// download はyt-dlpで字幕のみをダウンロードし、生成されたファイルパスを返す。
// 生成されなかった場合は空文字列を返す。
func (f *Fetcher) download(ctx context.Context, videoURL, base, subFlag string) string {
	// コマンド失敗でも字幕ファイルが生成されている場合があるため、
	// エラーは無視してファイルの有無で判定する
	f.runner.Run(ctx, "yt-dlp",
		subFlag, "--sub-lang", "en", "--skip-download",
		"--output", base, videoURL,
	)

	for _, ext := range []string{".vtt", ".srt"} {
		matches, _ := filepath.Glob(base + "*" + ext)
		if len(matches) > 0 {
			return matches[0]
		}
	}
	return ""
}

// cleanupTempFiles はダウンロードで生成された一時ファイルを削除する。
func (f *Fetcher) cleanupTempFiles(base string) {
	matches, _ := filepath.Glob(base + "*")
	for _, m := range matches {
		os.Remove(m)
	}
}

// tagPattern は<c>などのポジショニングタグの除去パターン。
var tagPattern = regexp.MustCompile(`<[^>]+>`)

// timestampPattern はタイムスタンプ行の判定パターン。
var timestampPattern = regexp.MustCompile(`^\d{2}:\d{2}`)

// sequencePattern はSRTのシーケンス番号行の判定パターン。
var sequencePattern = regexp.MustCompile(`^\d+$`)

// CleanSubtitles はVTT/SRT形式の字幕からテキストのみを抽出する。
// ヘッダ、タイミング行、ポジショニングタグを除去し、
// 自動生成字幕に多い連続する同一行を1つにまとめる。
func CleanSubtitles(content string) string {
	var textLines []string

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "WEBVTT"):
			continue
		case sequencePattern.MatchString(line):
			continue
		case strings.Contains(line, "-->"):
			continue
		case timestampPattern.MatchString(line):
			continue
		case strings.HasPrefix(line, "NOTE"):
			continue
		case strings.HasPrefix(line, "Kind:"):
			continue
		case strings.HasPrefix(line, "Language:"):
			continue
		}

		line = strings.TrimSpace(tagPattern.ReplaceAllString(line, ""))
		if line != "" {
			textLines = append(textLines, line)
		}
	}

	// 連続する同一行の重複排除
	var deduped []string
	for _, line := range textLines {
		if len(deduped) > 0 && deduped[len(deduped)-1] == line {
			continue
		}
		deduped = append(deduped, line)
	}

	return strings.Join(deduped, " ")
}

// randomHex はnバイト分のランダムな16進文字列を返す。
func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
