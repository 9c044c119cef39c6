package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/snowpulse/internal/model"
)

// PostgresCompanyRepo はPostgreSQLを使用した企業リポジトリ。
type PostgresCompanyRepo struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewPostgresCompanyRepo はPostgresCompanyRepoを生成する。
func NewPostgresCompanyRepo(db *sql.DB) *PostgresCompanyRepo {
	return &PostgresCompanyRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const companyColumns = `id, name, active, is_partner, is_customer, website, image_url,
	city, state, country, build_level, consulting_level, reseller_level,
	service_provider_level, partner_level, servicenow_url, servicenow_page_url,
	rss_feed_url, products, services, has_sitemap, last_fetched_at,
	last_sitemap_check, last_found_in_partner_list, created_at, updated_at`

// scanCompany は1行分の企業を読み取る。
func scanCompany(row interface{ Scan(...any) error }) (*model.Company, error) {
	c := &model.Company{}
	var website, imageURL, city, state, country sql.NullString
	var buildLevel, consultingLevel, resellerLevel, serviceProviderLevel, partnerLevel sql.NullString
	var servicenowURL, servicenowPageURL, rssFeedURL sql.NullString
	var products, services string
	var lastFetchedAt, lastSitemapCheck, lastFoundInPartnerList sql.NullTime

	err := row.Scan(
		&c.ID, &c.Name, &c.Active, &c.IsPartner, &c.IsCustomer,
		&website, &imageURL, &city, &state, &country,
		&buildLevel, &consultingLevel, &resellerLevel, &serviceProviderLevel, &partnerLevel,
		&servicenowURL, &servicenowPageURL, &rssFeedURL,
		&products, &services, &c.HasSitemap,
		&lastFetchedAt, &lastSitemapCheck, &lastFoundInPartnerList,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Website = nullStringValue(website)
	c.ImageURL = nullStringValue(imageURL)
	c.City = nullStringValue(city)
	c.State = nullStringValue(state)
	c.Country = nullStringValue(country)
	c.BuildLevel = nullStringValue(buildLevel)
	c.ConsultingLevel = nullStringValue(consultingLevel)
	c.ResellerLevel = nullStringValue(resellerLevel)
	c.ServiceProviderLevel = nullStringValue(serviceProviderLevel)
	c.PartnerLevel = nullStringValue(partnerLevel)
	c.ServicenowURL = nullStringValue(servicenowURL)
	c.ServicenowPageURL = nullStringValue(servicenowPageURL)
	c.RSSFeedURL = nullStringValue(rssFeedURL)
	c.Products = decodeStrings(products)
	c.Services = decodeStrings(services)
	c.LastFetchedAt = nullTimeValue(lastFetchedAt)
	c.LastSitemapCheck = nullTimeValue(lastSitemapCheck)
	c.LastFoundInPartnerList = nullTimeValue(lastFoundInPartnerList)

	return c, nil
}

// findOne は単一行クエリを実行して企業を返す。sql.ErrNoRowsは(nil, nil)に変換する。
func (r *PostgresCompanyRepo) findOne(ctx context.Context, query string, args ...any) (*model.Company, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindByID は指定IDの企業を取得する。見つからない場合はnilを返す。
func (r *PostgresCompanyRepo) FindByID(ctx context.Context, id string) (*model.Company, error) {
	c, err := r.findOne(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("企業の取得に失敗しました: %w", err)
	}
	return c, nil
}

// FindByNameExact は大文字小文字を無視した完全一致で企業を検索する。
func (r *PostgresCompanyRepo) FindByNameExact(ctx context.Context, name string) (*model.Company, error) {
	c, err := r.findOne(ctx,
		`SELECT `+companyColumns+` FROM companies
		 WHERE lower(name) = lower($1)
		 LIMIT 1`, name)
	if err != nil {
		return nil, fmt.Errorf("企業の名前検索に失敗しました: %w", err)
	}
	return c, nil
}

// queryList は複数行クエリを実行して企業一覧を返す。
func (r *PostgresCompanyRepo) queryList(ctx context.Context, query string, args ...any) ([]*model.Company, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []*model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return companies, nil
}

// ListAll は全企業の軽量ビューを返す。参加者リンクのマッチングに使用する。
func (r *PostgresCompanyRepo) ListAll(ctx context.Context) ([]*model.Company, error) {
	companies, err := r.queryList(ctx,
		`SELECT `+companyColumns+` FROM companies ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("企業一覧の取得に失敗しました: %w", err)
	}
	return companies, nil
}

// ListByWebsiteDomain はwebsiteに指定ドメインを含む企業を返す。
func (r *PostgresCompanyRepo) ListByWebsiteDomain(ctx context.Context, domain string) ([]*model.Company, error) {
	companies, err := r.queryList(ctx,
		`SELECT `+companyColumns+` FROM companies
		 WHERE website IS NOT NULL AND website ILIKE '%' || $1 || '%'
		 ORDER BY created_at ASC`, domain)
	if err != nil {
		return nil, fmt.Errorf("企業のドメイン検索に失敗しました: %w", err)
	}
	return companies, nil
}

// ListActivePartners はアクティブなパートナー企業を返す。
func (r *PostgresCompanyRepo) ListActivePartners(ctx context.Context) ([]*model.Company, error) {
	companies, err := r.queryList(ctx,
		`SELECT `+companyColumns+` FROM companies
		 WHERE active = TRUE AND is_partner = TRUE
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("パートナー企業一覧の取得に失敗しました: %w", err)
	}
	return companies, nil
}

// Create は企業を作成する。
func (r *PostgresCompanyRepo) Create(ctx context.Context, c *model.Company) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, active, is_partner, is_customer, website,
		                        image_url, city, state, country, build_level,
		                        consulting_level, reseller_level, service_provider_level,
		                        partner_level, servicenow_url, servicenow_page_url,
		                        rss_feed_url, products, services, has_sitemap,
		                        last_fetched_at, last_sitemap_check,
		                        last_found_in_partner_list, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		c.ID, c.Name, c.Active, c.IsPartner, c.IsCustomer, nullString(c.Website),
		nullString(c.ImageURL), nullString(c.City), nullString(c.State),
		nullString(c.Country), nullString(c.BuildLevel), nullString(c.ConsultingLevel),
		nullString(c.ResellerLevel), nullString(c.ServiceProviderLevel),
		nullString(c.PartnerLevel), nullString(c.ServicenowURL),
		nullString(c.ServicenowPageURL), nullString(c.RSSFeedURL),
		encodeStrings(c.Products), encodeStrings(c.Services), c.HasSitemap,
		nullTime(c.LastFetchedAt), nullTime(c.LastSitemapCheck),
		nullTime(c.LastFoundInPartnerList), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("企業の作成に失敗しました: %w", err)
	}
	return nil
}

// UpdatePartnerSync はパートナーポータル同期の更新を適用する。
// ティア項目はポータルを正として常に上書きする。所在地とwebsiteは
// 手入力データを壊さないよう、既存値が空の場合のみ設定する。
func (r *PostgresCompanyRepo) UpdatePartnerSync(ctx context.Context, id string, u *PartnerSyncUpdate) error {
	b := r.sb.Update("companies").
		Set("is_partner", true).
		Set("build_level", nullString(u.BuildLevel)).
		Set("consulting_level", nullString(u.ConsultingLevel)).
		Set("reseller_level", nullString(u.ResellerLevel)).
		Set("service_provider_level", nullString(u.ServiceProviderLevel)).
		Set("partner_level", nullString(u.PartnerLevel)).
		Set("last_fetched_at", u.LastFetchedAt).
		Set("last_found_in_partner_list", u.LastFoundInPartnerList).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id})

	if u.ServicenowURL != "" {
		b = b.Set("servicenow_url", u.ServicenowURL)
	}
	// 空の場合のみ埋める項目はCOALESCEで既存値を優先する
	if u.Website != "" {
		b = b.Set("website", sq.Expr("COALESCE(NULLIF(website, ''), ?)", u.Website))
	}
	if u.City != "" {
		b = b.Set("city", sq.Expr("COALESCE(NULLIF(city, ''), ?)", u.City))
	}
	if u.State != "" {
		b = b.Set("state", sq.Expr("COALESCE(NULLIF(state, ''), ?)", u.State))
	}
	if u.Country != "" {
		b = b.Set("country", sq.Expr("COALESCE(NULLIF(country, ''), ?)", u.Country))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("パートナー同期クエリの構築に失敗しました: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("パートナー同期の適用に失敗しました: %w", err)
	}
	return nil
}

// buildEnrichment は1社分のエンリッチ更新クエリを構築する。
func (r *PostgresCompanyRepo) buildEnrichment(u *EnrichmentUpdate) (string, []any, error) {
	b := r.sb.Update("companies").
		Set("has_sitemap", u.HasSitemap).
		Set("last_sitemap_check", u.LastSitemapCheck).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": u.CompanyID})

	if u.ImageURL != "" {
		b = b.Set("image_url", u.ImageURL)
	}
	if u.RSSFeedURL != "" {
		b = b.Set("rss_feed_url", u.RSSFeedURL)
	}
	if u.ServicenowPageURL != "" {
		b = b.Set("servicenow_page_url", u.ServicenowPageURL)
	}
	if u.Products != nil {
		b = b.Set("products", encodeStrings(u.Products))
	}
	if u.Services != nil {
		b = b.Set("services", encodeStrings(u.Services))
	}

	return b.ToSql()
}

// ApplyEnrichment はパートナーエンリッチの更新を1トランザクションでまとめて適用する。
func (r *PostgresCompanyRepo) ApplyEnrichment(ctx context.Context, updates []*EnrichmentUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("エンリッチトランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		query, args, err := r.buildEnrichment(u)
		if err != nil {
			return fmt.Errorf("エンリッチクエリの構築に失敗しました: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("エンリッチ更新の適用に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("エンリッチのコミットに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CompanyRepository = (*PostgresCompanyRepo)(nil)
