package rules

import (
	"testing"
	"time"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

func TestMaterializeAlerts(t *testing.T) {
	fixed := time.Date(2025, 3, 10, 14, 30, 45, 0, time.UTC)
	m := &Materializer{now: func() time.Time { return fixed }}

	results := []domain.RuleResult{
		{RuleType: domain.RuleSplitOrders, Passed: false, Score: 4,
			Message: "Found 1 potential order splitting cases involving 3 records",
			AffectedRecords: []string{"s1", "s2", "s3"}},
		{RuleType: domain.RuleOverpricing, Passed: true, Score: 0,
			Message: "No overpricing detected", AffectedRecords: []string{}},
		{RuleType: domain.RuleDuplicatePayments, Passed: false, Score: 1,
			Message: "Found 1 sets of potential duplicate payments involving 2 records",
			AffectedRecords: []string{"d1", "d2"}},
	}

	alerts := m.Materialize(results)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}

	first := alerts[0]
	if first.ID != "split_orders_20250310_143045" {
		t.Errorf("id = %s, want split_orders_20250310_143045", first.ID)
	}
	if first.Title != "Anomaly Detected: Split Orders" {
		t.Errorf("title = %s", first.Title)
	}
	if first.Description != results[0].Message {
		t.Errorf("description = %s", first.Description)
	}
	if first.RiskScore != 4 {
		t.Errorf("risk score = %d, want 4", first.RiskScore)
	}
	if first.IsInvestigated {
		t.Error("new alert must not be investigated")
	}
	if !first.CreatedAt.Equal(fixed) {
		t.Errorf("created_at = %v, want %v", first.CreatedAt, fixed)
	}

	if alerts[1].RuleType != domain.RuleDuplicatePayments {
		t.Errorf("alert order not preserved: %s", alerts[1].RuleType)
	}
}

func TestMaterializeEmpty(t *testing.T) {
	m := NewMaterializer()
	if alerts := m.Materialize(nil); len(alerts) != 0 {
		t.Errorf("expected no alerts, got %d", len(alerts))
	}
}

func TestAlertCritical(t *testing.T) {
	cases := []struct {
		score int
		want  bool
	}{
		{7, false},
		{8, true},
		{10, true},
	}
	for _, tc := range cases {
		a := domain.Alert{RiskScore: tc.score}
		if a.Critical() != tc.want {
			t.Errorf("Critical() with score %d = %v, want %v", tc.score, a.Critical(), tc.want)
		}
	}
}
