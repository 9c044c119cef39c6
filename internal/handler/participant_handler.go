package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/snowpulse/internal/participant"
	"github.com/hitoshi/snowpulse/internal/repository"
)

// maxMergeBody はマージリクエストボディの最大サイズ。
const maxMergeBody = 4 * 1024

// ParticipantHandler は参加者の重複検出とマージの運用APIを提供する。
type ParticipantHandler struct {
	participants repository.ParticipantRepository
}

// NewParticipantHandler はParticipantHandlerの新しいインスタンスを生成する。
func NewParticipantHandler(participants repository.ParticipantRepository) *ParticipantHandler {
	return &ParticipantHandler{participants: participants}
}

// participantSummary は重複一覧レスポンスの参加者1人分。
type participantSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// ListDuplicates はGET /participants/duplicatesに対応し、正規化名が
// 一致する参加者グループをマージ候補として返す。
func (h *ParticipantHandler) ListDuplicates(w http.ResponseWriter, r *http.Request) {
	named, err := h.participants.ListNamed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", "参加者の取得に失敗しました: "+err.Error())
		return
	}

	groups := participant.FindDuplicateGroups(named)

	type groupResponse struct {
		NormalizedName string               `json:"normalized_name"`
		Participants   []participantSummary `json:"participants"`
	}
	response := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		members := make([]participantSummary, 0, len(g.Participants))
		for _, p := range g.Participants {
			members = append(members, participantSummary{
				ID:          p.ID,
				Name:        p.Name,
				Title:       p.Title,
				CompanyName: p.CompanyName,
			})
		}
		response = append(response, groupResponse{
			NormalizedName: g.NormalizedName,
			Participants:   members,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"groups": response})
}

// mergeRequest はPOST /participants/mergeのリクエストボディ。
// choicesはフィールド名から"source"へのマップで、指定されたフィールドは
// ソース側の値を採用する。
type mergeRequest struct {
	TargetID string            `json:"target_id"`
	SourceID string            `json:"source_id"`
	Choices  map[string]string `json:"choices"`
}

// Merge はPOST /participants/mergeに対応し、ソース参加者をターゲットに
// 統合する。関連行の付け替えと別名の合成は単一トランザクションで行われる。
func (h *ParticipantHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMergeBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "リクエストボディのパースに失敗しました: "+err.Error())
		return
	}
	if req.TargetID == "" || req.SourceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "target_idとsource_idは必須です")
		return
	}

	ctx := r.Context()
	target, err := h.participants.FindByID(ctx, req.TargetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", "ターゲット参加者の取得に失敗しました: "+err.Error())
		return
	}
	source, err := h.participants.FindByID(ctx, req.SourceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", "ソース参加者の取得に失敗しました: "+err.Error())
		return
	}
	if target == nil || source == nil {
		writeError(w, http.StatusNotFound, "participant_not_found", "指定された参加者が見つかりません")
		return
	}

	merge, err := participant.BuildMerge(target, source, req.Choices)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_merge", err.Error())
		return
	}

	if err := h.participants.ApplyMerge(ctx, merge); err != nil {
		writeError(w, http.StatusInternalServerError, "merge_failed", "マージの適用に失敗しました: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"merged_into": target.ID,
		"removed":     source.ID,
	})
}
