package rules

import (
	"fmt"
	"time"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// detectRecurringEmergency flags suppliers that received more than one
// emergency purchase with the first and last falling inside the recurrence
// window. Emergency contracting skips competitive bidding, so a supplier
// collecting them repeatedly in a short span warrants review.
func detectRecurringEmergency(set *domain.RecordSet, th domain.Thresholds) (*domain.RuleResult, error) {
	if !set.Has(domain.FieldIsEmergency, domain.FieldSupplier, domain.FieldDate) {
		return nil, nil
	}

	var emergencyIdx []int
	for i, r := range set.Records {
		if r.IsEmergency {
			emergencyIdx = append(emergencyIdx, i)
		}
	}
	if len(emergencyIdx) == 0 {
		return nil, nil
	}

	bySupplier := newMultimap()
	for _, i := range emergencyIdx {
		bySupplier.add(set.Records[i].Supplier, i)
	}

	var (
		suspicious []domain.EmergencySupplier
		affected   []string
	)
	for _, s := range bySupplier.keys() {
		idxs := bySupplier.get(s)
		if len(idxs) < 2 {
			continue
		}

		first, last := set.Records[idxs[0]].Date, set.Records[idxs[0]].Date
		var total float64
		ids := make([]string, 0, len(idxs))
		for _, i := range idxs {
			r := set.Records[i]
			if r.Date.Before(first) {
				first = r.Date
			}
			if r.Date.After(last) {
				last = r.Date
			}
			total += r.Amount
			ids = append(ids, r.ID)
		}

		daysBetween := int(last.Sub(first) / (24 * time.Hour))
		if daysBetween > th.EmergencyRecurrenceDays {
			continue
		}

		suspicious = append(suspicious, domain.EmergencySupplier{
			Supplier:       s,
			EmergencyCount: len(idxs),
			DaysBetween:    daysBetween,
			TotalAmount:    total,
			RecordIDs:      ids,
		})
		affected = append(affected, ids...)
	}

	if len(suspicious) == 0 {
		return passedResult(domain.RuleRecurringEmergency, "No recurring emergency purchases detected"), nil
	}

	return &domain.RuleResult{
		RuleType:        domain.RuleRecurringEmergency,
		Passed:          false,
		Score:           clampScore(len(suspicious)*2 + len(affected)/5),
		Message:         fmt.Sprintf("Found %d suppliers with recurring emergency purchases within %d days", len(suspicious), th.EmergencyRecurrenceDays),
		AffectedRecords: affected,
		Evidence: map[string]any{
			"suspicious_suppliers":      suspicious,
			"days_threshold":            th.EmergencyRecurrenceDays,
			"total_emergency_purchases": len(emergencyIdx),
		},
	}, nil
}
