package service

import (
	"math"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
)

// suggest ranks candidates by case-folded sequence similarity to value and
// keeps up to limit of those at or above cutoff.
func suggest(candidates []string, value string, cutoff float64, limit int) []domain.Suggestion {
	target := strings.Split(strings.ToLower(strings.TrimSpace(value)), "")

	type scored struct {
		name  string
		ratio float64
	}
	var matches []scored
	for _, candidate := range candidates {
		m := difflib.NewMatcher(strings.Split(strings.ToLower(candidate), ""), target)
		if m.QuickRatio() < cutoff {
			continue
		}
		if ratio := m.Ratio(); ratio >= cutoff {
			matches = append(matches, scored{name: candidate, ratio: ratio})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].ratio != matches[j].ratio {
			return matches[i].ratio > matches[j].ratio
		}
		return matches[i].name < matches[j].name
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]domain.Suggestion, 0, len(matches))
	for _, m := range matches {
		out = append(out, domain.Suggestion{Name: m.name, Ratio: int(math.Round(m.ratio * 100))})
	}
	return out
}
