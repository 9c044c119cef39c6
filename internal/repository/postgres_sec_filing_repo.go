package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/snowpulse/internal/model"
)

// PostgresSecFilingRepo はPostgreSQLを使用したSEC提出書類リポジトリ。
type PostgresSecFilingRepo struct {
	db *sql.DB
}

// NewPostgresSecFilingRepo はPostgresSecFilingRepoを生成する。
func NewPostgresSecFilingRepo(db *sql.DB) *PostgresSecFilingRepo {
	return &PostgresSecFilingRepo{db: db}
}

// FindByURL は提出書類URLで検索する。見つからない場合はnilを返す。
func (r *PostgresSecFilingRepo) FindByURL(ctx context.Context, url string) (*model.SecFiling, error) {
	f := &model.SecFiling{}
	var content, summary sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, filing_type, date, url, content, summary, created_at, updated_at
		 FROM sec_filings WHERE url = $1`, url,
	).Scan(&f.ID, &f.FilingType, &f.Date, &f.URL, &content, &summary, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("提出書類の検索に失敗しました: %w", err)
	}

	f.Content = nullStringValue(content)
	f.Summary = nullStringValue(summary)
	return f, nil
}

// Create は提出書類を作成する。
func (r *PostgresSecFilingRepo) Create(ctx context.Context, f *model.SecFiling) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sec_filings (id, filing_type, date, url, content, summary,
		                          created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.FilingType, f.Date, f.URL, nullString(f.Content),
		nullString(f.Summary), f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("提出書類の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存の提出書類を更新する。
func (r *PostgresSecFilingRepo) Update(ctx context.Context, f *model.SecFiling) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sec_filings
		 SET filing_type = $2, date = $3, content = $4, summary = $5, updated_at = now()
		 WHERE id = $1`,
		f.ID, f.FilingType, f.Date, nullString(f.Content), nullString(f.Summary),
	)
	if err != nil {
		return fmt.Errorf("提出書類の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SecFilingRepository = (*PostgresSecFilingRepo)(nil)
