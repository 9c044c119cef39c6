package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/snowpulse/internal/model"
)

// PostgresStoreAppRepo はPostgreSQLを使用したStoreアプリリポジトリ。
type PostgresStoreAppRepo struct {
	db *sql.DB
}

// NewPostgresStoreAppRepo はPostgresStoreAppRepoを生成する。
func NewPostgresStoreAppRepo(db *sql.DB) *PostgresStoreAppRepo {
	return &PostgresStoreAppRepo{db: db}
}

const storeAppColumns = `id, source_app_id, listing_id, title, tagline, company_name,
	company_logo, logo, featured_icon, store_description, business_challenge,
	key_features, system_requirements, app_type, app_sub_type, version, landing_page,
	display_price, table_count, purchase_count, review_count,
	allow_for_existing_customers, allow_for_non_customers, allow_on_customer_subprod,
	allow_on_developer_instance, allow_on_servicenow_instance, allow_trial,
	allow_without_license, supporting_media, versions_data, support_links,
	support_contacts, purchase_trend, published_at, last_fetched_at, created_at, updated_at`

// scanStoreApp は1行分のStoreアプリを読み取る。
func scanStoreApp(row interface{ Scan(...any) error }) (*model.StoreApp, error) {
	app := &model.StoreApp{}
	var listingID, title, tagline, companyName, companyLogo, logo, featuredIcon sql.NullString
	var storeDescription, businessChallenge, keyFeatures, systemRequirements sql.NullString
	var appType, appSubType, version, landingPage, displayPrice sql.NullString
	var supportingMedia, versionsData, supportLinks, supportContacts sql.NullString
	var publishedAt, lastFetchedAt sql.NullTime

	err := row.Scan(
		&app.ID, &app.SourceAppID, &listingID, &title, &tagline, &companyName,
		&companyLogo, &logo, &featuredIcon, &storeDescription, &businessChallenge,
		&keyFeatures, &systemRequirements, &appType, &appSubType, &version,
		&landingPage, &displayPrice, &app.TableCount, &app.PurchaseCount,
		&app.ReviewCount, &app.AllowForExistingCustomers, &app.AllowForNonCustomers,
		&app.AllowOnCustomerSubprod, &app.AllowOnDeveloperInstance,
		&app.AllowOnServicenowInstance, &app.AllowTrial, &app.AllowWithoutLicense,
		&supportingMedia, &versionsData, &supportLinks, &supportContacts,
		&app.PurchaseTrend, &publishedAt, &lastFetchedAt,
		&app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	app.ListingID = nullStringValue(listingID)
	app.Title = nullStringValue(title)
	app.Tagline = nullStringValue(tagline)
	app.CompanyName = nullStringValue(companyName)
	app.CompanyLogo = nullStringValue(companyLogo)
	app.Logo = nullStringValue(logo)
	app.FeaturedIcon = nullStringValue(featuredIcon)
	app.StoreDescription = nullStringValue(storeDescription)
	app.BusinessChallenge = nullStringValue(businessChallenge)
	app.KeyFeatures = nullStringValue(keyFeatures)
	app.SystemRequirements = nullStringValue(systemRequirements)
	app.AppType = nullStringValue(appType)
	app.AppSubType = nullStringValue(appSubType)
	app.Version = nullStringValue(version)
	app.LandingPage = nullStringValue(landingPage)
	app.DisplayPrice = nullStringValue(displayPrice)
	app.SupportingMedia = nullStringValue(supportingMedia)
	app.VersionsData = nullStringValue(versionsData)
	app.SupportLinks = nullStringValue(supportLinks)
	app.SupportContacts = nullStringValue(supportContacts)
	app.PublishedAt = nullTimeValue(publishedAt)
	app.LastFetchedAt = nullTimeValue(lastFetchedAt)

	return app, nil
}

// FindBySourceAppID はsource_app_idでアプリを検索する。見つからない場合はnilを返す。
func (r *PostgresStoreAppRepo) FindBySourceAppID(ctx context.Context, sourceAppID string) (*model.StoreApp, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+storeAppColumns+` FROM store_apps WHERE source_app_id = $1`, sourceAppID)

	app, err := scanStoreApp(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Storeアプリの検索に失敗しました: %w", err)
	}
	return app, nil
}

// Create はアプリを作成する。
func (r *PostgresStoreAppRepo) Create(ctx context.Context, app *model.StoreApp) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO store_apps (id, source_app_id, listing_id, title, tagline,
		                         company_name, company_logo, logo, featured_icon,
		                         store_description, business_challenge, key_features,
		                         system_requirements, app_type, app_sub_type, version,
		                         landing_page, display_price, table_count,
		                         purchase_count, review_count,
		                         allow_for_existing_customers, allow_for_non_customers,
		                         allow_on_customer_subprod, allow_on_developer_instance,
		                         allow_on_servicenow_instance, allow_trial,
		                         allow_without_license, supporting_media, versions_data,
		                         support_links, support_contacts, purchase_trend,
		                         published_at, last_fetched_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
		         $29, $30, $31, $32, $33, $34, $35, $36, $37)`,
		app.ID, app.SourceAppID, nullString(app.ListingID), nullString(app.Title),
		nullString(app.Tagline), nullString(app.CompanyName),
		nullString(app.CompanyLogo), nullString(app.Logo),
		nullString(app.FeaturedIcon), nullString(app.StoreDescription),
		nullString(app.BusinessChallenge), nullString(app.KeyFeatures),
		nullString(app.SystemRequirements), nullString(app.AppType),
		nullString(app.AppSubType), nullString(app.Version),
		nullString(app.LandingPage), nullString(app.DisplayPrice),
		app.TableCount, app.PurchaseCount, app.ReviewCount,
		app.AllowForExistingCustomers, app.AllowForNonCustomers,
		app.AllowOnCustomerSubprod, app.AllowOnDeveloperInstance,
		app.AllowOnServicenowInstance, app.AllowTrial, app.AllowWithoutLicense,
		nullString(app.SupportingMedia), nullString(app.VersionsData),
		nullString(app.SupportLinks), nullString(app.SupportContacts),
		app.PurchaseTrend, nullTime(app.PublishedAt), nullTime(app.LastFetchedAt),
		app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Storeアプリの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存アプリを上書き更新する。
func (r *PostgresStoreAppRepo) Update(ctx context.Context, app *model.StoreApp) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE store_apps
		 SET listing_id = $2, title = $3, tagline = $4, company_name = $5,
		     company_logo = $6, logo = $7, featured_icon = $8, store_description = $9,
		     business_challenge = $10, key_features = $11, system_requirements = $12,
		     app_type = $13, app_sub_type = $14, version = $15, landing_page = $16,
		     display_price = $17, table_count = $18, purchase_count = $19,
		     review_count = $20, allow_for_existing_customers = $21,
		     allow_for_non_customers = $22, allow_on_customer_subprod = $23,
		     allow_on_developer_instance = $24, allow_on_servicenow_instance = $25,
		     allow_trial = $26, allow_without_license = $27, supporting_media = $28,
		     versions_data = $29, support_links = $30, support_contacts = $31,
		     purchase_trend = $32, published_at = $33, last_fetched_at = $34,
		     updated_at = now()
		 WHERE id = $1`,
		app.ID, nullString(app.ListingID), nullString(app.Title),
		nullString(app.Tagline), nullString(app.CompanyName),
		nullString(app.CompanyLogo), nullString(app.Logo),
		nullString(app.FeaturedIcon), nullString(app.StoreDescription),
		nullString(app.BusinessChallenge), nullString(app.KeyFeatures),
		nullString(app.SystemRequirements), nullString(app.AppType),
		nullString(app.AppSubType), nullString(app.Version),
		nullString(app.LandingPage), nullString(app.DisplayPrice),
		app.TableCount, app.PurchaseCount, app.ReviewCount,
		app.AllowForExistingCustomers, app.AllowForNonCustomers,
		app.AllowOnCustomerSubprod, app.AllowOnDeveloperInstance,
		app.AllowOnServicenowInstance, app.AllowTrial, app.AllowWithoutLicense,
		nullString(app.SupportingMedia), nullString(app.VersionsData),
		nullString(app.SupportLinks), nullString(app.SupportContacts),
		app.PurchaseTrend, nullTime(app.PublishedAt), nullTime(app.LastFetchedAt),
	)
	if err != nil {
		return fmt.Errorf("Storeアプリの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StoreAppRepository = (*PostgresStoreAppRepo)(nil)
