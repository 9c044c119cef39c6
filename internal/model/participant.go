package model

import "time"

// Participant は人物レコードを表す。nameが一意キー。
// 自動作成時の名前衝突はバリアントマッチで既存レコードに解決される。
type Participant struct {
	ID          string
	Name        string
	Title       string
	Bio         string
	ImageURL    string
	LinkedinURL string
	CompanyName string // フリーテキストの所属企業ヒント
	CompanyID   string // 正規Companyへのリンク（未リンク時は空）
	UserID      string
	Aliases     []string // マージで蓄積された別名表記の集合
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasAlias は指定の別名（完全一致）が登録済みかを返す。
func (p *Participant) HasAlias(name string) bool {
	for _, a := range p.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// SessionParticipant はナレッジセッションと参加者の関連を表す。
// (session_id, participant_id) が自然キー。
type SessionParticipant struct {
	ID            string
	SessionID     string
	ParticipantID string
	CreatedAt     time.Time
}

// ItemParticipant はコンテンツと参加者の関連を表す。
// (item_id, participant_id) が自然キー。
type ItemParticipant struct {
	ID            string
	ItemID        string
	ParticipantID string
	CreatedAt     time.Time
}
