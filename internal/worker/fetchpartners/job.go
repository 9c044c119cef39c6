// Package fetchpartners はパートナーポータルからの企業同期ジョブを提供する。
package fetchpartners

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/snowpulse/internal/metrics"
	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/partnerportal"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/scheduler"
)

// JobName はスケジューラに登録するジョブ名。
const JobName = "fetch_partners"

// progressEvery は進捗ログを出す処理件数の間隔。
const progressEvery = 500

// Config はパートナー同期ジョブの動作設定。
type Config struct {
	// Interval は次回実行までの遅延。
	Interval time.Duration
}

// Job はパートナーポータルの全パートナーを取得し、企業レコードを
// 作成・更新する。ティア項目はポータルを正として毎回上書きし、
// 所在地とwebsiteは空の場合のみ埋める。
type Job struct {
	companies repository.CompanyRepository
	portal    *partnerportal.Client
	sched     scheduler.Scheduler
	collector metrics.MetricsCollector
	logger    *slog.Logger
	cfg       Config
}

// New はJobの新しいインスタンスを生成する。
func New(
	companies repository.CompanyRepository,
	portal *partnerportal.Client,
	sched scheduler.Scheduler,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Job {
	return &Job{
		companies: companies,
		portal:    portal,
		sched:     sched,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run はジョブを1回実行する。完了後は結果に関わらず次回実行を
// スケジュールする。
func (j *Job) Run(ctx context.Context, args map[string]string) error {
	start := time.Now()
	defer j.sched.Schedule(JobName, j.cfg.Interval, nil)

	j.logger.Info("パートナー同期を開始します")

	j.collector.RecordExternalCall("partner_portal")
	partners, err := j.portal.FetchPartners(ctx)
	if err != nil {
		j.logger.Error("パートナー一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("パートナー一覧の取得に失敗しました: %w", err)
	}
	if len(partners) == 0 {
		j.logger.Error("パートナーが1件も見つかりませんでした")
		return fmt.Errorf("パートナーが1件も見つかりませんでした")
	}

	j.logger.Info("パートナー一覧を取得しました",
		slog.Int("partner_count", len(partners)),
	)

	created := 0
	updated := 0
	errorCount := 0
	websiteMatches := 0

	for i, partner := range partners {
		wasCreated, byWebsite, err := j.processPartner(ctx, &partner)
		if err != nil {
			errorCount++
			// 大量の同種エラーでログを埋めない
			if errorCount <= 5 {
				j.logger.Warn("パートナーの処理に失敗しました",
					slog.String("name", partner.Name),
					slog.String("error", err.Error()),
				)
			}
		} else if wasCreated {
			created++
		} else {
			updated++
		}
		if byWebsite {
			websiteMatches++
		}

		if (i+1)%progressEvery == 0 {
			j.logger.Info("パートナー同期の進捗",
				slog.Int("processed", i+1),
				slog.Int("total", len(partners)),
			)
		}
	}

	duration := time.Since(start)
	j.collector.RecordJobDuration(JobName, duration)
	j.logger.Info("パートナー同期が完了しました",
		slog.Int("created", created),
		slog.Int("updated", updated),
		slog.Int("errors", errorCount),
		slog.Int("website_matches", websiteMatches),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// processPartner はパートナー1社を企業レコードに反映する。
// 戻り値は（新規作成されたか、website一致で見つかったか、エラー）。
func (j *Job) processPartner(ctx context.Context, partner *model.PartnerRecord) (bool, bool, error) {
	existing, byWebsite, err := j.findExisting(ctx, partner)
	if err != nil {
		return false, false, err
	}

	now := time.Now()

	if existing != nil {
		if byWebsite {
			j.logger.Info("website一致で既存企業に紐付けました",
				slog.String("partner_name", partner.Name),
				slog.String("company_name", existing.Name),
			)
		}
		update := &repository.PartnerSyncUpdate{
			BuildLevel:           partner.BuildLevel,
			ConsultingLevel:      partner.ConsultingLevel,
			ResellerLevel:        partner.ResellerLevel,
			ServiceProviderLevel: partner.ServiceProviderLevel,
			PartnerLevel:         partner.PartnerLevel,

			Website: partner.Website,
			City:    partner.City,
			State:   partner.State,
			Country: partner.Country,

			ServicenowURL:          partner.ServicenowURL,
			LastFetchedAt:          now,
			LastFoundInPartnerList: now,
		}
		if err := j.companies.UpdatePartnerSync(ctx, existing.ID, update); err != nil {
			return false, byWebsite, fmt.Errorf("企業の更新に失敗しました: %w", err)
		}
		return false, byWebsite, nil
	}

	company := &model.Company{
		Name:                   partner.Name,
		Active:                 true,
		IsPartner:              true,
		Website:                partner.Website,
		City:                   partner.City,
		State:                  partner.State,
		Country:                partner.Country,
		BuildLevel:             partner.BuildLevel,
		ConsultingLevel:        partner.ConsultingLevel,
		ResellerLevel:          partner.ResellerLevel,
		ServiceProviderLevel:   partner.ServiceProviderLevel,
		PartnerLevel:           partner.PartnerLevel,
		ServicenowURL:          partner.ServicenowURL,
		LastFetchedAt:          &now,
		LastFoundInPartnerList: &now,
	}
	if err := j.companies.Create(ctx, company); err != nil {
		return false, false, fmt.Errorf("企業の作成に失敗しました: %w", err)
	}
	return true, false, nil
}

// findExisting は名前の完全一致、次にwebsiteドメインの一致で既存企業を探す。
func (j *Job) findExisting(ctx context.Context, partner *model.PartnerRecord) (*model.Company, bool, error) {
	existing, err := j.companies.FindByNameExact(ctx, partner.Name)
	if err != nil {
		return nil, false, fmt.Errorf("企業の検索に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	domain := partnerportal.ExtractDomain(partner.Website)
	if domain == "" {
		return nil, false, nil
	}

	candidates, err := j.companies.ListByWebsiteDomain(ctx, domain)
	if err != nil {
		return nil, false, fmt.Errorf("企業のドメイン検索に失敗しました: %w", err)
	}
	for _, c := range candidates {
		if partnerportal.ExtractDomain(c.Website) == domain {
			return c, true, nil
		}
	}
	return nil, false, nil
}
