package rules

import (
	"fmt"
	"sort"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// top3ConcentrationCeiling is the combined spend share above which the three
// largest suppliers are reported even when no single one crosses the
// configured threshold.
const top3ConcentrationCeiling = 0.80

// detectSupplierConcentration flags batches where spending is dominated by one
// supplier or by the top three together. A batch with zero total spend carries
// no signal.
func detectSupplierConcentration(set *domain.RecordSet, th domain.Thresholds) (*domain.RuleResult, error) {
	if !set.Has(domain.FieldSupplier, domain.FieldAmount) {
		return nil, nil
	}

	bySupplier := newMultimap()
	for i, r := range set.Records {
		bySupplier.add(r.Supplier, i)
	}

	type supplierSpend struct {
		name   string
		amount float64
	}
	totals := make([]supplierSpend, 0, len(bySupplier.keys()))
	var totalSpending float64
	for _, s := range bySupplier.keys() {
		var sum float64
		for _, i := range bySupplier.get(s) {
			sum += set.Records[i].Amount
		}
		totals = append(totals, supplierSpend{s, sum})
		totalSpending += sum
	}

	if totalSpending == 0 {
		return nil, nil
	}

	// Highest spend first, name as tiebreaker for stable output.
	sort.SliceStable(totals, func(i, j int) bool {
		if totals[i].amount != totals[j].amount {
			return totals[i].amount > totals[j].amount
		}
		return totals[i].name < totals[j].name
	})

	topPct := totals[0].amount / totalSpending
	var top3 float64
	for i := 0; i < len(totals) && i < 3; i++ {
		top3 += totals[i].amount
	}
	top3Pct := top3 / totalSpending

	var concentrated []domain.ConcentratedSupplier
	seen := make(map[string]bool)
	if topPct > th.SupplierConcentrationThreshold {
		concentrated = append(concentrated, domain.ConcentratedSupplier{
			Supplier:   totals[0].name,
			Percentage: topPct * 100,
			Amount:     totals[0].amount,
		})
		seen[totals[0].name] = true
	}
	if top3Pct > top3ConcentrationCeiling {
		for i := 0; i < len(totals) && i < 3; i++ {
			if seen[totals[i].name] {
				continue
			}
			concentrated = append(concentrated, domain.ConcentratedSupplier{
				Supplier:   totals[i].name,
				Percentage: totals[i].amount / totalSpending * 100,
				Amount:     totals[i].amount,
			})
			seen[totals[i].name] = true
		}
	}

	if len(concentrated) == 0 {
		return passedResult(domain.RuleSupplierConcentration, "No excessive supplier concentration detected"), nil
	}

	var affected []string
	for _, r := range set.Records {
		if seen[r.Supplier] {
			affected = append(affected, r.ID)
		}
	}

	return &domain.RuleResult{
		RuleType:        domain.RuleSupplierConcentration,
		Passed:          false,
		Score:           clampScore(int(topPct*10) + len(concentrated)),
		Message:         fmt.Sprintf("High supplier concentration detected: top supplier has %.1f%% of total spending", topPct*100),
		AffectedRecords: affected,
		Evidence: map[string]any{
			"concentrated_suppliers":  concentrated,
			"top_supplier_percentage": topPct * 100,
			"top_3_percentage":        top3Pct * 100,
			"threshold_used":          th.SupplierConcentrationThreshold * 100,
			"total_spending":          totalSpending,
		},
	}, nil
}
