// Package handler は運用APIのHTTPハンドラーを提供する。
// ジョブの手動トリガー、ヘルスチェック、メトリクスの公開のみを扱い、
// コンテンツの読み書きAPIは持たない。
package handler

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/snowpulse/internal/scheduler"
)

// maxArgsBody はジョブ引数ボディの最大サイズ。
const maxArgsBody = 4 * 1024

// JobHandler はジョブの手動トリガーAPIを提供する。
// 登録済みのジョブ名のみ受け付け、実行はスケジューラに委譲する。
type JobHandler struct {
	sched    scheduler.Scheduler
	jobNames map[string]struct{}
}

// NewJobHandler はJobHandlerの新しいインスタンスを生成する。
// jobNamesにはトリガーを許可するジョブ名を渡す。
func NewJobHandler(sched scheduler.Scheduler, jobNames []string) *JobHandler {
	names := make(map[string]struct{}, len(jobNames))
	for _, n := range jobNames {
		names[n] = struct{}{}
	}
	return &JobHandler{
		sched:    sched,
		jobNames: names,
	}
}

// ListJobs はGET /jobsに対応し、トリガー可能なジョブ名の一覧を返す。
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.jobNames))
	for n := range h.jobNames {
		names = append(names, n)
	}
	sort.Strings(names)

	writeJSON(w, http.StatusOK, map[string]any{"jobs": names})
}

// TriggerJob はPOST /jobs/{name}に対応し、指定ジョブを即時スケジュールする。
// リクエストボディはジョブ引数のJSONオブジェクト（省略可）。
// 例: {"video_url": "https://...", "session_id": "..."}
func (h *JobHandler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.jobNames[name]; !ok {
		writeError(w, http.StatusNotFound, "unknown_job", "指定されたジョブは存在しません: "+name)
		return
	}

	args, err := parseJobArgs(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_args", "ジョブ引数のパースに失敗しました: "+err.Error())
		return
	}

	h.sched.Schedule(name, 0, args)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job":       name,
		"scheduled": true,
	})
}

// parseJobArgs はリクエストボディからジョブ引数を読み取る。
// ボディが空の場合はnilを返す。
func parseJobArgs(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}

	var args map[string]string
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxArgsBody))
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	return args, nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError は統一フォーマットのエラーレスポンスを書き込む。
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
