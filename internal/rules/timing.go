package rules

import (
	"fmt"
	"time"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// detectUnusualTiming flags transactions stamped late at night (22:00-05:59)
// or on weekends. Municipal finance offices do not operate at those hours, so
// such timestamps point at backdating or automated insertion.
func detectUnusualTiming(set *domain.RecordSet, th domain.Thresholds) (*domain.RuleResult, error) {
	if !set.Has(domain.FieldDate) {
		return nil, nil
	}

	var (
		affected  []string
		lateNight int
		weekends  int
	)
	for _, r := range set.Records {
		h := r.Date.Hour()
		late := h <= 5 || h >= 22
		wd := r.Date.Weekday()
		weekend := wd == time.Saturday || wd == time.Sunday

		if late {
			lateNight++
		}
		if weekend {
			weekends++
		}
		if late || weekend {
			affected = append(affected, r.ID)
		}
	}

	if len(affected) == 0 {
		return passedResult(domain.RuleUnusualTiming, "No unusual timing detected"), nil
	}

	return &domain.RuleResult{
		RuleType:        domain.RuleUnusualTiming,
		Passed:          false,
		Score:           clampScore(len(affected) / 10),
		Message:         fmt.Sprintf("Found %d transactions at unusual times (late night, early morning, or weekends)", len(affected)),
		AffectedRecords: affected,
		Evidence: map[string]any{
			"unusual_count":      len(affected),
			"total_transactions": set.Len(),
			"unusual_percentage": float64(len(affected)) / float64(set.Len()) * 100,
			"time_breakdown": domain.TimingBreakdown{
				LateNight: lateNight,
				Weekends:  weekends,
			},
		},
	}, nil
}
