package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/snowpulse/internal/model"
)

// PostgresContentItemRepo はPostgreSQLを使用したコンテンツリポジトリ。
type PostgresContentItemRepo struct {
	db *sql.DB
}

// NewPostgresContentItemRepo はPostgresContentItemRepoを生成する。
func NewPostgresContentItemRepo(db *sql.DB) *PostgresContentItemRepo {
	return &PostgresContentItemRepo{db: db}
}

const contentItemColumns = `id, feed_id, kind, state, active, title, body, url,
	image_url, duration, published_at, created_at, updated_at`

// scanContentItem は1行分のコンテンツを読み取る。
func scanContentItem(row interface{ Scan(...any) error }) (*model.ContentItem, error) {
	item := &model.ContentItem{}
	var feedID, title, body, imageURL, duration sql.NullString
	var publishedAt sql.NullTime

	err := row.Scan(
		&item.ID, &feedID, &item.Kind, &item.State, &item.Active,
		&title, &body, &item.URL, &imageURL, &duration, &publishedAt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.FeedID = nullStringValue(feedID)
	item.Title = nullStringValue(title)
	item.Body = nullStringValue(body)
	item.ImageURL = nullStringValue(imageURL)
	item.Duration = nullStringValue(duration)
	item.PublishedAt = nullTimeValue(publishedAt)

	return item, nil
}

// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
func (r *PostgresContentItemRepo) FindByID(ctx context.Context, id string) (*model.ContentItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+contentItemColumns+` FROM content_items WHERE id = $1`, id)

	item, err := scanContentItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	return item, nil
}

// FindByURL はURLでコンテンツを検索する。見つからない場合はnilを返す。
func (r *PostgresContentItemRepo) FindByURL(ctx context.Context, url string) (*model.ContentItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+contentItemColumns+` FROM content_items WHERE url = $1`, url)

	item, err := scanContentItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コンテンツのURL検索に失敗しました: %w", err)
	}
	return item, nil
}

// CreateIfAbsent はURLが未登録の場合のみコンテンツを作成する。
// 既存URLの場合は何もせずfalseを返す（衝突時の上書きはしない）。
func (r *PostgresContentItemRepo) CreateIfAbsent(ctx context.Context, item *model.ContentItem) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO content_items (id, feed_id, kind, state, active, title, body, url,
		                            image_url, duration, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT ON CONSTRAINT content_items_url_key DO NOTHING`,
		item.ID, nullString(item.FeedID), item.Kind, item.State, item.Active,
		nullString(item.Title), nullString(item.Body), item.URL,
		nullString(item.ImageURL), nullString(item.Duration),
		nullTime(item.PublishedAt), item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("コンテンツの作成に失敗しました: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("コンテンツ作成結果の確認に失敗しました: %w", err)
	}
	return n > 0, nil
}

// ListByState は指定状態のコンテンツをcreated_at降順で最大limit件取得する。
func (r *PostgresContentItemRepo) ListByState(ctx context.Context, state model.ItemState, limit int) ([]*model.ContentItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contentItemColumns+`
		 FROM content_items
		 WHERE state = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		state, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, fmt.Errorf("コンテンツ一覧の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の走査に失敗しました: %w", err)
	}

	return items, nil
}

// CountByState は指定状態のコンテンツ数を返す。
func (r *PostgresContentItemRepo) CountByState(ctx context.Context, state model.ItemState) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_items WHERE state = $1`, state,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("コンテンツ数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// UpdateState はコンテンツの状態を更新する。
func (r *PostgresContentItemRepo) UpdateState(ctx context.Context, id string, state model.ItemState) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE content_items SET state = $2, updated_at = now() WHERE id = $1`,
		id, state,
	)
	if err != nil {
		return fmt.Errorf("コンテンツ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateImageURL はコンテンツの画像URLを更新する。
func (r *PostgresContentItemRepo) UpdateImageURL(ctx context.Context, id string, imageURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE content_items SET image_url = $2, updated_at = now() WHERE id = $1`,
		id, nullString(imageURL),
	)
	if err != nil {
		return fmt.Errorf("コンテンツ画像URLの更新に失敗しました: %w", err)
	}
	return nil
}

// LinkParticipant はコンテンツと参加者の関連を冪等に作成する。
// 既存の関連がある場合は何もしない。
func (r *PostgresContentItemRepo) LinkParticipant(ctx context.Context, itemID, participantID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO item_participants (id, item_id, participant_id, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT ON CONSTRAINT item_participants_item_participant_key DO NOTHING`,
		uuid.New().String(), itemID, participantID,
	)
	if err != nil {
		return fmt.Errorf("参加者関連の作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ContentItemRepository = (*PostgresContentItemRepo)(nil)
