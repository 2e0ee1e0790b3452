package rules

import (
	"fmt"
	"time"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

const alertIDTimeFormat = "20060102_150405"

// Materializer converts failing rule results into workflow-trackable alerts.
type Materializer struct {
	now func() time.Time
}

// NewMaterializer creates a materializer using the wall clock.
func NewMaterializer() *Materializer {
	return &Materializer{now: time.Now}
}

// Materialize builds one alert per failing result, preserving input order.
// Passing results produce nothing. The mapping never drops or merges failing
// results, so the caller can rely on a 1:1 correspondence.
func (m *Materializer) Materialize(results []domain.RuleResult) []*domain.Alert {
	alerts := make([]*domain.Alert, 0, len(results))
	for _, res := range results {
		if res.Passed {
			continue
		}
		now := m.now()
		alerts = append(alerts, &domain.Alert{
			ID:              fmt.Sprintf("%s_%s", res.RuleType, now.Format(alertIDTimeFormat)),
			RuleType:        res.RuleType,
			Title:           "Anomaly Detected: " + res.RuleType.Title(),
			Description:     res.Message,
			RiskScore:       res.Score,
			AffectedRecords: res.AffectedRecords,
			CreatedAt:       now,
			IsInvestigated:  false,
		})
	}
	return alerts
}
