package participant

import (
	"context"
	"fmt"

	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/repository"
)

// Resolver は人物名のバリアント解決と重複のない作成を行う。
type Resolver struct {
	repo repository.ParticipantRepository
}

// NewResolver はResolverの新しいインスタンスを生成する。
func NewResolver(repo repository.ParticipantRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve は名前のバリアントを順に試して既存参加者を探す。
// 完全一致 → 正規化名一致 → 別名一致（生の名前） → 別名一致（正規化名）の順。
// 見つからない場合はnilを返す。
func (r *Resolver) Resolve(ctx context.Context, name string) (*model.Participant, error) {
	if name == "" {
		return nil, nil
	}
	normalized := NormalizeName(name)

	p, err := r.repo.FindByNameExact(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("参加者の完全一致検索に失敗しました: %w", err)
	}
	if p != nil {
		return p, nil
	}

	p, err = r.repo.FindByNormalizedName(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("参加者の正規化名検索に失敗しました: %w", err)
	}
	if p != nil {
		return p, nil
	}

	p, err = r.repo.FindByAlias(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("参加者の別名検索に失敗しました: %w", err)
	}
	if p != nil {
		return p, nil
	}

	p, err = r.repo.FindByAlias(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("参加者の正規化別名検索に失敗しました: %w", err)
	}
	return p, nil
}

// FindOrCreate はバリアント解決で既存参加者を探し、無ければ作成する。
// 作成時の名前は正規化してタイトルケースに整える。initがnilでない場合、
// 新規レコードに適用してから保存する。作成が一意制約に衝突した場合は
// 競合相手が作成したレコードを再解決して返す。
// 戻り値のboolは新規作成されたかどうかを示す。
func (r *Resolver) FindOrCreate(ctx context.Context, name string, init func(p *model.Participant)) (*model.Participant, bool, error) {
	existing, err := r.Resolve(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	createName := TitleCase(NormalizeName(name))
	if createName == "" {
		createName = name
	}

	p := &model.Participant{Name: createName}
	if init != nil {
		init(p)
	}

	if err := r.repo.Create(ctx, p); err != nil {
		if repository.IsUniqueViolation(err) {
			// 競合で先に作成されたレコードに解決し直す
			existing, rerr := r.Resolve(ctx, name)
			if rerr != nil {
				return nil, false, rerr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("参加者の作成に失敗しました: %w", err)
	}

	return p, true, nil
}
