package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/snowpulse/internal/model"
)

// PostgresFeedSourceRepo はPostgreSQLを使用したフィードソースリポジトリ。
type PostgresFeedSourceRepo struct {
	db *sql.DB
}

// NewPostgresFeedSourceRepo はPostgresFeedSourceRepoを生成する。
func NewPostgresFeedSourceRepo(db *sql.DB) *PostgresFeedSourceRepo {
	return &PostgresFeedSourceRepo{db: db}
}

const feedSourceColumns = `id, title, url, fetch_url, kind, active, status, default_author,
	image_url, last_successful_fetch, error_count, last_error, created_at, updated_at`

// scanFeedSource は1行分のフィードソースを読み取る。
func scanFeedSource(row interface{ Scan(...any) error }) (*model.FeedSource, error) {
	feed := &model.FeedSource{}
	var fetchURL, defaultAuthor, imageURL, lastError sql.NullString
	var lastFetch sql.NullTime

	err := row.Scan(
		&feed.ID, &feed.Title, &feed.URL, &fetchURL, &feed.Kind, &feed.Active,
		&feed.Status, &defaultAuthor, &imageURL, &lastFetch,
		&feed.ErrorCount, &lastError, &feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	feed.FetchURL = nullStringValue(fetchURL)
	feed.DefaultAuthor = nullStringValue(defaultAuthor)
	feed.ImageURL = nullStringValue(imageURL)
	feed.LastError = nullStringValue(lastError)
	feed.LastSuccessfulFetch = nullTimeValue(lastFetch)

	return feed, nil
}

// FindByID は指定IDのフィードソースを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedSourceRepo) FindByID(ctx context.Context, id string) (*model.FeedSource, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+feedSourceColumns+` FROM feed_sources WHERE id = $1`, id)

	feed, err := scanFeedSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードソースの取得に失敗しました: %w", err)
	}
	return feed, nil
}

// Create はフィードソースを作成する。
func (r *PostgresFeedSourceRepo) Create(ctx context.Context, feed *model.FeedSource) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feed_sources (id, title, url, fetch_url, kind, active, status,
		                           default_author, image_url, last_successful_fetch,
		                           error_count, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		feed.ID, feed.Title, feed.URL, nullString(feed.FetchURL), feed.Kind,
		feed.Active, feed.Status, nullString(feed.DefaultAuthor),
		nullString(feed.ImageURL), nullTime(feed.LastSuccessfulFetch),
		feed.ErrorCount, nullString(feed.LastError), feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードソースの作成に失敗しました: %w", err)
	}
	return nil
}

// ListPollable はポーリング対象のフィードソースを取得する。
// active = true かつ status != 'dead' が対象。
// cutoffがゼロ値でない場合、last_successful_fetchがcutoff以降のソースは除外する。
func (r *PostgresFeedSourceRepo) ListPollable(ctx context.Context, cutoff time.Time) ([]*model.FeedSource, error) {
	query := `SELECT ` + feedSourceColumns + `
		 FROM feed_sources
		 WHERE active = TRUE AND status != 'dead'`
	args := []any{}

	if !cutoff.IsZero() {
		query += ` AND (last_successful_fetch IS NULL OR last_successful_fetch < $1)`
		args = append(args, cutoff)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ポーリング対象フィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.FeedSource
	for rows.Next() {
		feed, err := scanFeedSource(rows)
		if err != nil {
			return nil, fmt.Errorf("ポーリング対象フィードの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ポーリング対象フィードの走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// RecordFetchSuccess はフェッチ成功を記録する。
// last_successful_fetchを更新し、error_countとlast_errorをリセットする。
func (r *PostgresFeedSourceRepo) RecordFetchSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feed_sources
		 SET last_successful_fetch = $2, error_count = 0, last_error = NULL, updated_at = now()
		 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("フェッチ成功の記録に失敗しました: %w", err)
	}
	return nil
}

// RecordFetchFailure はフェッチ失敗を記録する。
// error_countをインクリメントし、last_errorにメッセージを保存する。
func (r *PostgresFeedSourceRepo) RecordFetchFailure(ctx context.Context, id string, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feed_sources
		 SET error_count = error_count + 1, last_error = $2, updated_at = now()
		 WHERE id = $1`,
		id, message,
	)
	if err != nil {
		return fmt.Errorf("フェッチ失敗の記録に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FeedSourceRepository = (*PostgresFeedSourceRepo)(nil)
