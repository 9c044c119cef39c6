package participant

import (
	"sort"

	"github.com/hitoshi/snowpulse/internal/model"
)

// DuplicateGroup は正規化名が一致する参加者のグループ。
type DuplicateGroup struct {
	NormalizedName string
	Participants   []*model.Participant
}

// FindDuplicateGroups は正規化名でグループ化し、2人以上のグループを
// マージ候補として返す。グループ内は名前順、グループは正規化名順に並ぶ。
func FindDuplicateGroups(participants []*model.Participant) []DuplicateGroup {
	byNormalized := make(map[string][]*model.Participant)
	for _, p := range participants {
		normalized := NormalizeName(p.Name)
		if normalized == "" {
			continue
		}
		byNormalized[normalized] = append(byNormalized[normalized], p)
	}

	var groups []DuplicateGroup
	for normalized, members := range byNormalized {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			return members[i].Name < members[j].Name
		})
		groups = append(groups, DuplicateGroup{
			NormalizedName: normalized,
			Participants:   members,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].NormalizedName < groups[j].NormalizedName
	})
	return groups
}
