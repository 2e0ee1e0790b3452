package rules

import (
	"fmt"
	"math"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// detectPayrollAnomaly flags payments far outside their position group.
// Each payment is tested against the statistics of the other members of its
// group; including the payment itself in the mean and deviation caps the
// attainable z-score below 2 in small groups, so a lone outlier would never
// cross the cutoff.
func detectPayrollAnomaly(set *domain.RecordSet, th domain.Thresholds) (*domain.RuleResult, error) {
	if !set.Has(domain.FieldPosition, domain.FieldTotalPayment) {
		return nil, nil
	}

	byPosition := newMultimap()
	for i, r := range set.Records {
		byPosition.add(r.Position, i)
	}

	var (
		anomalies []domain.PayrollOutlier
		affected  []string
	)
	for _, pos := range byPosition.keys() {
		idxs := byPosition.get(pos)
		// Need at least 3 payments for the peer statistics to mean anything.
		if len(idxs) < 3 {
			continue
		}

		var sum, sumSq float64
		for _, i := range idxs {
			p := set.Records[i].TotalPayment
			sum += p
			sumSq += p * p
		}
		n := float64(len(idxs))

		for _, i := range idxs {
			r := set.Records[i]
			p := r.TotalPayment

			peerMean := (sum - p) / (n - 1)
			peerVar := (sumSq-p*p)/(n-1) - peerMean*peerMean
			if peerVar < 0 {
				peerVar = 0
			}
			peerStd := math.Sqrt(peerVar)
			if peerMean <= 0 || peerStd <= 0 {
				continue
			}

			dev := math.Abs(p - peerMean)
			if dev > 2*peerStd && dev/peerMean > th.PayrollVariationThreshold {
				anomalies = append(anomalies, domain.PayrollOutlier{
					EmployeeID:          r.EmployeeID,
					Name:                r.Name,
					Position:            pos,
					Payment:             p,
					PositionMean:        peerMean,
					DeviationPercentage: dev / peerMean * 100,
					RecordID:            r.ID,
				})
				affected = append(affected, r.ID)
			}
		}
	}

	if len(anomalies) == 0 {
		return passedResult(domain.RulePayrollAnomaly, "No payroll anomalies detected"), nil
	}

	return &domain.RuleResult{
		RuleType:        domain.RulePayrollAnomaly,
		Passed:          false,
		Score:           clampScore(len(anomalies)),
		Message:         fmt.Sprintf("Found %d payroll anomalies with significant deviations from position averages", len(anomalies)),
		AffectedRecords: affected,
		Evidence: map[string]any{
			"anomalies":       anomalies,
			"threshold_used":  th.PayrollVariationThreshold * 100,
			"total_employees": set.Len(),
		},
	}, nil
}
