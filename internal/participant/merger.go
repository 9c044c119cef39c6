package participant

import (
	"fmt"

	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/repository"
)

// ChoiceSource はマージでソース側の値を採用する選択値。
const ChoiceSource = "source"

// BuildMerge はフィールド選択を適用したマージ内容を構築する。
// choicesはフィールド名（name, title, bio, image_url, linkedin_url,
// company_name, company_id）からChoiceSourceへのマップで、指定が無い
// フィールドはターゲットの値を保持する。ソースの別名とマージ前の名前は
// ターゲットの別名集合に合成される。
func BuildMerge(target, source *model.Participant, choices map[string]string) (*repository.MergeApplication, error) {
	if target.ID == source.ID {
		return nil, fmt.Errorf("参加者を自分自身にマージすることはできません")
	}

	sourceName := source.Name
	merged := *target
	merged.Aliases = append([]string(nil), target.Aliases...)

	sourceNameChosen := false
	if choices["name"] == ChoiceSource && sourceName != "" && sourceName != target.Name {
		merged.Name = sourceName
		sourceNameChosen = true
	}

	scalars := []struct {
		field string
		dst   *string
		src   string
	}{
		{"title", &merged.Title, source.Title},
		{"bio", &merged.Bio, source.Bio},
		{"image_url", &merged.ImageURL, source.ImageURL},
		{"linkedin_url", &merged.LinkedinURL, source.LinkedinURL},
		{"company_name", &merged.CompanyName, source.CompanyName},
	}
	for _, s := range scalars {
		if choices[s.field] == ChoiceSource && s.src != "" {
			*s.dst = s.src
		}
	}

	if choices["company_id"] == ChoiceSource && source.CompanyID != "" {
		merged.CompanyID = source.CompanyID
	}

	// user_idはターゲット優先、未設定の場合のみソースから引き継ぐ
	if merged.UserID == "" && source.UserID != "" {
		merged.UserID = source.UserID
	}

	for _, a := range source.Aliases {
		if a != "" && !merged.HasAlias(a) {
			merged.Aliases = append(merged.Aliases, a)
		}
	}
	if sourceName != "" && !merged.HasAlias(sourceName) {
		merged.Aliases = append(merged.Aliases, sourceName)
	}

	return &repository.MergeApplication{
		TargetID:         target.ID,
		SourceID:         source.ID,
		SourceNameChosen: sourceNameChosen,
		Target:           &merged,
	}, nil
}
