package rules

import (
	"fmt"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// detectSplitOrders flags same-supplier same-day groups of orders where at
// least two individual amounts sit below the procurement ceiling while the
// group's sum exceeds it, the shape left by a purchase split to dodge
// bidding rules.
func detectSplitOrders(set *domain.RecordSet, th domain.Thresholds) (*domain.RuleResult, error) {
	if !set.Has(domain.FieldSupplier, domain.FieldAmount, domain.FieldDate) {
		return nil, nil
	}

	ceiling := th.SplitOrderThreshold

	byDay := newMultimap()
	for i, r := range set.Records {
		byDay.add(r.Supplier+"|"+r.Date.Format("2006-01-02"), i)
	}

	var (
		suspicious []domain.SplitGroup
		affected   []string
	)
	for _, key := range byDay.keys() {
		idxs := byDay.get(key)
		if len(idxs) < 2 {
			continue
		}

		var total float64
		below := 0
		amounts := make([]float64, 0, len(idxs))
		ids := make([]string, 0, len(idxs))
		for _, i := range idxs {
			a := set.Records[i].Amount
			if a < ceiling {
				below++
			}
			total += a
			amounts = append(amounts, a)
			ids = append(ids, set.Records[i].ID)
		}
		if below < 2 || total <= ceiling {
			continue
		}

		first := set.Records[idxs[0]]
		suspicious = append(suspicious, domain.SplitGroup{
			Supplier:          first.Supplier,
			Date:              first.Date.Format("2006-01-02"),
			OrdersCount:       len(idxs),
			TotalAmount:       total,
			IndividualAmounts: amounts,
			RecordIDs:         ids,
		})
		affected = append(affected, ids...)
	}

	if len(suspicious) == 0 {
		return passedResult(domain.RuleSplitOrders, "No order splitting detected"), nil
	}

	return &domain.RuleResult{
		RuleType:        domain.RuleSplitOrders,
		Passed:          false,
		Score:           clampScore(len(suspicious) + len(affected)/5),
		Message:         fmt.Sprintf("Found %d potential order splitting cases involving %d records", len(suspicious), len(affected)),
		AffectedRecords: affected,
		Evidence: map[string]any{
			"suspicious_groups": suspicious,
			"threshold_used":    ceiling,
			"total_cases":       len(suspicious),
		},
	}, nil
}
