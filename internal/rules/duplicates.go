package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// duplicateKeyFields is the preferred duplicate key, in order. The detector
// uses whichever of these the batch carries and abstains when fewer than two
// are available, since a single-field match is not evidence of duplication.
var duplicateKeyFields = []domain.Field{domain.FieldSupplier, domain.FieldAmount, domain.FieldDate}

// detectDuplicatePayments flags groups of records identical on the available
// key fields.
func detectDuplicatePayments(set *domain.RecordSet, th domain.Thresholds) (*domain.RuleResult, error) {
	var available []domain.Field
	for _, f := range duplicateKeyFields {
		if set.Has(f) {
			available = append(available, f)
		}
	}
	if len(available) < 2 {
		return nil, nil
	}

	byKey := newMultimap()
	for i, r := range set.Records {
		parts := make([]string, 0, len(available))
		for _, f := range available {
			switch f {
			case domain.FieldSupplier:
				parts = append(parts, r.Supplier)
			case domain.FieldAmount:
				parts = append(parts, strconv.FormatFloat(r.Amount, 'f', -1, 64))
			case domain.FieldDate:
				parts = append(parts, r.Date.Format(time.RFC3339))
			}
		}
		byKey.add(strings.Join(parts, "\x1f"), i)
	}

	var (
		dupGroups []domain.DuplicateGroup
		affected  []string
	)
	for _, key := range byKey.keys() {
		idxs := byKey.get(key)
		if len(idxs) < 2 {
			continue
		}

		first := set.Records[idxs[0]]
		criteria := make(map[string]any, len(available))
		for _, f := range available {
			switch f {
			case domain.FieldSupplier:
				criteria["supplier"] = first.Supplier
			case domain.FieldAmount:
				criteria["amount"] = first.Amount
			case domain.FieldDate:
				criteria["date"] = first.Date.Format(time.RFC3339)
			}
		}

		var total float64
		ids := make([]string, 0, len(idxs))
		for _, i := range idxs {
			total += set.Records[i].Amount
			ids = append(ids, set.Records[i].ID)
		}

		dupGroups = append(dupGroups, domain.DuplicateGroup{
			Criteria:    criteria,
			Count:       len(idxs),
			RecordIDs:   ids,
			TotalAmount: total,
		})
		affected = append(affected, ids...)
	}

	if len(dupGroups) == 0 {
		return passedResult(domain.RuleDuplicatePayments, "No duplicate payments detected"), nil
	}

	criteriaUsed := make([]string, len(available))
	for i, f := range available {
		criteriaUsed[i] = string(f)
	}

	return &domain.RuleResult{
		RuleType:        domain.RuleDuplicatePayments,
		Passed:          false,
		Score:           clampScore(len(dupGroups)),
		Message:         fmt.Sprintf("Found %d sets of potential duplicate payments involving %d records", len(dupGroups), len(affected)),
		AffectedRecords: affected,
		Evidence: map[string]any{
			"duplicate_groups": dupGroups,
			"total_duplicates": len(affected),
			"criteria_used":    criteriaUsed,
		},
	}, nil
}
