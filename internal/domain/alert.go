package domain

import "time"

// Alert is the persisted, workflow-trackable artifact derived 1:1 from a
// failing rule result. The engine creates alerts with IsInvestigated=false;
// the investigation fields are mutated by the audit workflow, never here.
type Alert struct {
	ID              string    `json:"id"`
	RuleType        RuleType  `json:"rule_type"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	RiskScore       int       `json:"risk_score"` // 1..10
	AffectedRecords []string  `json:"affected_records"`
	CreatedAt       time.Time `json:"created_at"`
	IsInvestigated  bool      `json:"is_investigated"`

	InvestigatedAt *time.Time `json:"investigated_at,omitempty"`
	Investigator   string     `json:"investigator,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// Critical reports whether the alert warrants immediate notification.
func (a *Alert) Critical() bool {
	return a.RiskScore >= CriticalRiskScore
}

// CriticalRiskScore is the risk score at or above which alerts are pushed to
// notification channels immediately instead of waiting for the digest.
const CriticalRiskScore = 8
