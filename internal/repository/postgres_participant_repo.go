package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/snowpulse/internal/model"
)

// PostgresParticipantRepo はPostgreSQLを使用した参加者リポジトリ。
type PostgresParticipantRepo struct {
	db *sql.DB
}

// NewPostgresParticipantRepo はPostgresParticipantRepoを生成する。
func NewPostgresParticipantRepo(db *sql.DB) *PostgresParticipantRepo {
	return &PostgresParticipantRepo{db: db}
}

const participantColumns = `id, name, title, bio, image_url, linkedin_url,
	company_name, company_id, user_id, alias, created_at, updated_at`

// scanParticipant は1行分の参加者を読み取る。
func scanParticipant(row interface{ Scan(...any) error }) (*model.Participant, error) {
	p := &model.Participant{}
	var name, title, bio, imageURL, linkedinURL, companyName, companyID, userID sql.NullString
	var alias string

	err := row.Scan(
		&p.ID, &name, &title, &bio, &imageURL, &linkedinURL,
		&companyName, &companyID, &userID, &alias, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Name = nullStringValue(name)
	p.Title = nullStringValue(title)
	p.Bio = nullStringValue(bio)
	p.ImageURL = nullStringValue(imageURL)
	p.LinkedinURL = nullStringValue(linkedinURL)
	p.CompanyName = nullStringValue(companyName)
	p.CompanyID = nullStringValue(companyID)
	p.UserID = nullStringValue(userID)
	p.Aliases = decodeStrings(alias)

	return p, nil
}

// findOne は単一行クエリを実行して参加者を返す。sql.ErrNoRowsは(nil, nil)に変換する。
func (r *PostgresParticipantRepo) findOne(ctx context.Context, query string, args ...any) (*model.Participant, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
func (r *PostgresParticipantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	p, err := r.findOne(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByNameExact は大文字小文字を無視した完全一致で参加者を検索する。
func (r *PostgresParticipantRepo) FindByNameExact(ctx context.Context, name string) (*model.Participant, error) {
	p, err := r.findOne(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE name IS NOT NULL AND lower(name) = lower($1)
		 LIMIT 1`, name)
	if err != nil {
		return nil, fmt.Errorf("参加者の名前検索に失敗しました: %w", err)
	}
	return p, nil
}

// FindByNormalizedName は正規化済み名（小文字）との一致で参加者を検索する。
// 正規化は呼び出し側で行い、ここではlower(name)との照合のみ行う。
func (r *PostgresParticipantRepo) FindByNormalizedName(ctx context.Context, normalized string) (*model.Participant, error) {
	p, err := r.findOne(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE name IS NOT NULL AND lower(name) = $1
		 LIMIT 1`, normalized)
	if err != nil {
		return nil, fmt.Errorf("参加者の正規化名検索に失敗しました: %w", err)
	}
	return p, nil
}

// FindByAlias はalias配列に指定名（大文字小文字無視）を含む参加者を検索する。
func (r *PostgresParticipantRepo) FindByAlias(ctx context.Context, name string) (*model.Participant, error) {
	p, err := r.findOne(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE EXISTS (
		   SELECT 1 FROM json_array_elements_text(alias::json) AS a
		   WHERE lower(a) = lower($1)
		 )
		 LIMIT 1`, name)
	if err != nil {
		return nil, fmt.Errorf("参加者の別名検索に失敗しました: %w", err)
	}
	return p, nil
}

// Create は参加者を作成する。名前の一意制約違反はIsUniqueViolationで判定できる。
func (r *PostgresParticipantRepo) Create(ctx context.Context, p *model.Participant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (id, name, title, bio, image_url, linkedin_url,
		                           company_name, company_id, user_id, alias,
		                           created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, nullString(p.Name), nullString(p.Title), nullString(p.Bio),
		nullString(p.ImageURL), nullString(p.LinkedinURL),
		nullString(p.CompanyName), nullString(p.CompanyID), nullString(p.UserID),
		encodeStrings(p.Aliases), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("参加者の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は参加者のスカラー項目とaliasを上書き更新する。
func (r *PostgresParticipantRepo) Update(ctx context.Context, p *model.Participant) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE participants
		 SET name = $2, title = $3, bio = $4, image_url = $5, linkedin_url = $6,
		     company_name = $7, company_id = $8, user_id = $9, alias = $10,
		     updated_at = now()
		 WHERE id = $1`,
		p.ID, nullString(p.Name), nullString(p.Title), nullString(p.Bio),
		nullString(p.ImageURL), nullString(p.LinkedinURL),
		nullString(p.CompanyName), nullString(p.CompanyID), nullString(p.UserID),
		encodeStrings(p.Aliases),
	)
	if err != nil {
		return fmt.Errorf("参加者の更新に失敗しました: %w", err)
	}
	return nil
}

// queryList は複数行クエリを実行して参加者一覧を返す。
func (r *PostgresParticipantRepo) queryList(ctx context.Context, query string, args ...any) ([]*model.Participant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return participants, nil
}

// ListNamed は名前を持つ全参加者を返す。メンション抽出と重複検出に使用する。
func (r *PostgresParticipantRepo) ListNamed(ctx context.Context) ([]*model.Participant, error) {
	participants, err := r.queryList(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE name IS NOT NULL AND name != ''
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	return participants, nil
}

// ListUnlinkedWithCompanyHint はcompany_id未設定かつcompany_nameを持つ参加者を返す。
func (r *PostgresParticipantRepo) ListUnlinkedWithCompanyHint(ctx context.Context) ([]*model.Participant, error) {
	participants, err := r.queryList(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE company_id IS NULL AND company_name IS NOT NULL AND company_name != ''
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("未リンク参加者の取得に失敗しました: %w", err)
	}
	return participants, nil
}

// LinkCompany は参加者を企業に紐付ける。
func (r *PostgresParticipantRepo) LinkCompany(ctx context.Context, participantID, companyID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE participants SET company_id = $2, updated_at = now() WHERE id = $1`,
		participantID, companyID,
	)
	if err != nil {
		return fmt.Errorf("参加者の企業リンクに失敗しました: %w", err)
	}
	return nil
}

// LinkSession は参加者とセッションの関連を冪等に作成する。
func (r *PostgresParticipantRepo) LinkSession(ctx context.Context, sessionID, participantID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_participants (id, session_id, participant_id, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT ON CONSTRAINT session_participants_session_participant_key DO NOTHING`,
		uuid.New().String(), sessionID, participantID,
	)
	if err != nil {
		return fmt.Errorf("セッション関連の作成に失敗しました: %w", err)
	}
	return nil
}

// ApplyMerge はマージを単一トランザクションで適用する。
// 手順:
//  1. 名前を引き継ぐ場合、一意制約の衝突を避けるため先にソースの名前をNULLにする
//  2. ターゲットのスカラー項目とaliasを確定値で上書きする
//  3. item_participants / session_participants をターゲットに付け替える。
//     ターゲット側に同じ関連が既にある行は付け替えず削除する（自然キーの重複回避）
//  4. ソースを削除する
//
// どこかのステップが失敗した場合は全体がロールバックされる。
func (r *PostgresParticipantRepo) ApplyMerge(ctx context.Context, m *MergeApplication) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("マージトランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if m.SourceNameChosen {
		if _, err := tx.ExecContext(ctx,
			`UPDATE participants SET name = NULL WHERE id = $1`, m.SourceID); err != nil {
			return fmt.Errorf("ソース名のクリアに失敗しました: %w", err)
		}
	}

	t := m.Target
	if _, err := tx.ExecContext(ctx,
		`UPDATE participants
		 SET name = $2, title = $3, bio = $4, image_url = $5, linkedin_url = $6,
		     company_name = $7, company_id = $8, user_id = $9, alias = $10,
		     updated_at = now()
		 WHERE id = $1`,
		t.ID, nullString(t.Name), nullString(t.Title), nullString(t.Bio),
		nullString(t.ImageURL), nullString(t.LinkedinURL),
		nullString(t.CompanyName), nullString(t.CompanyID), nullString(t.UserID),
		encodeStrings(t.Aliases),
	); err != nil {
		return fmt.Errorf("ターゲットの更新に失敗しました: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE item_participants SET participant_id = $1
		 WHERE participant_id = $2
		   AND item_id NOT IN (
		     SELECT item_id FROM item_participants WHERE participant_id = $1
		   )`,
		m.TargetID, m.SourceID,
	); err != nil {
		return fmt.Errorf("コンテンツ関連の付け替えに失敗しました: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM item_participants WHERE participant_id = $1`, m.SourceID); err != nil {
		return fmt.Errorf("重複コンテンツ関連の削除に失敗しました: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE session_participants SET participant_id = $1
		 WHERE participant_id = $2
		   AND session_id NOT IN (
		     SELECT session_id FROM session_participants WHERE participant_id = $1
		   )`,
		m.TargetID, m.SourceID,
	); err != nil {
		return fmt.Errorf("セッション関連の付け替えに失敗しました: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_participants WHERE participant_id = $1`, m.SourceID); err != nil {
		return fmt.Errorf("重複セッション関連の削除に失敗しました: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM participants WHERE id = $1`, m.SourceID); err != nil {
		return fmt.Errorf("ソース参加者の削除に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("マージのコミットに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ParticipantRepository = (*PostgresParticipantRepo)(nil)
