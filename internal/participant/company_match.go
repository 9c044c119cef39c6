package participant

import (
	"strings"

	"github.com/hitoshi/snowpulse/internal/model"
)

// MatchCompany は所属企業ヒントに対応する企業を探す。
// 1. 完全一致（大文字小文字無視）
// 2. 前方一致（ヒント"Deloitte"が企業"Deloitte Consulting LLP"に一致）
// 3. 逆前方一致（企業"IBM"がヒント"IBM Corporation"に一致）
// の順に試し、見つからない場合はnilを返す。
func MatchCompany(companies []*model.Company, hint string) *model.Company {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return nil
	}

	for _, c := range companies {
		if strings.ToLower(c.Name) == hint {
			return c
		}
	}

	for _, c := range companies {
		if strings.HasPrefix(strings.ToLower(c.Name), hint) {
			return c
		}
	}

	for _, c := range companies {
		if strings.HasPrefix(hint, strings.ToLower(c.Name)) {
			return c
		}
	}

	return nil
}
