package rules

import (
	"fmt"
	"sort"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// detectOverpricing flags purchases whose unit price exceeds the market
// reference mean by more than the configured percentage. Records without a
// positive reference mean carry no signal and are skipped.
func detectOverpricing(set *domain.RecordSet, th domain.Thresholds) (*domain.RuleResult, error) {
	if !set.Has(domain.FieldUnitPrice, domain.FieldPriceMean) {
		return nil, nil
	}

	ceiling := 1 + th.OverpricingPercentage/100

	var (
		affected []string
		items    []domain.OverpricedItem
		pctSum   float64
	)
	for _, r := range set.Records {
		if r.PriceMean <= 0 {
			continue
		}
		if r.UnitPrice > r.PriceMean*ceiling {
			affected = append(affected, r.ID)
			items = append(items, domain.OverpricedItem{
				Description: r.Description,
				UnitPrice:   r.UnitPrice,
				PriceMean:   r.PriceMean,
			})
			pctSum += (r.UnitPrice - r.PriceMean) / r.PriceMean * 100
		}
	}

	if len(affected) == 0 {
		return passedResult(domain.RuleOverpricing, "No overpricing detected"), nil
	}

	avgPct := pctSum / float64(len(affected))

	top := make([]domain.OverpricedItem, len(items))
	copy(top, items)
	sort.SliceStable(top, func(i, j int) bool { return top[i].UnitPrice > top[j].UnitPrice })
	if len(top) > 5 {
		top = top[:5]
	}

	return &domain.RuleResult{
		RuleType:        domain.RuleOverpricing,
		Passed:          false,
		Score:           clampScore(len(affected)/10 + int(avgPct/50)),
		Message:         fmt.Sprintf("Found %d items with prices %.1f%% above market average", len(affected), avgPct),
		AffectedRecords: affected,
		Evidence: map[string]any{
			"overpriced_count":    len(affected),
			"average_overpricing": avgPct,
			"threshold_used":      th.OverpricingPercentage,
			"most_overpriced":     top,
		},
	}, nil
}
