package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger はDB疎通確認のインターフェース。*sql.DBがそのまま満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェックAPIを提供する。
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler はHealthHandlerの新しいインスタンスを生成する。
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health はGET /healthに対応する。DB疎通を確認してから200を返す。
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "db_unavailable", "データベースに接続できません")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
