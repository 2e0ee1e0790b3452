package rules

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

// expenseBatch builds a despesas record set carrying the full field inventory.
func expenseBatch(records []domain.Record) *domain.RecordSet {
	return domain.NewRecordSet(domain.DatasetExpenses, records, domain.DefaultFields(domain.DatasetExpenses))
}

func payrollBatch(records []domain.Record) *domain.RecordSet {
	return domain.NewRecordSet(domain.DatasetPayroll, records, domain.DefaultFields(domain.DatasetPayroll))
}

func TestApplicableRules(t *testing.T) {
	cases := []struct {
		dataset domain.DatasetType
		want    []domain.RuleType
	}{
		{domain.DatasetExpenses, []domain.RuleType{
			domain.RuleOverpricing,
			domain.RuleSplitOrders,
			domain.RuleSupplierConcentration,
			domain.RuleRecurringEmergency,
			domain.RuleUnusualTiming,
			domain.RuleDuplicatePayments,
		}},
		{domain.DatasetContracts, []domain.RuleType{
			domain.RuleOverpricing,
			domain.RuleSupplierConcentration,
			domain.RuleRecurringEmergency,
			domain.RuleUnusualTiming,
		}},
		{domain.DatasetPayroll, []domain.RuleType{
			domain.RulePayrollAnomaly,
			domain.RuleDuplicatePayments,
		}},
	}

	for _, tc := range cases {
		got := ApplicableRules(tc.dataset)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.dataset, got, tc.want)
		}
	}
}

func TestEvaluateReturnsOnlyFailingResults(t *testing.T) {
	engine := NewEngine(testLogger())

	// One ordinary weekday purchase, fairly priced, lone supplier among many.
	records := []domain.Record{
		{ID: "r1", Date: day("2025-03-12 10:00"), Amount: 100, Supplier: "Alpha", UnitPrice: 10, PriceMean: 10, Quantity: 10},
		{ID: "r2", Date: day("2025-03-13 11:00"), Amount: 120, Supplier: "Beta", UnitPrice: 12, PriceMean: 12, Quantity: 10},
		{ID: "r3", Date: day("2025-03-14 09:30"), Amount: 130, Supplier: "Gamma", UnitPrice: 13, PriceMean: 13, Quantity: 10},
		{ID: "r4", Date: day("2025-03-17 14:00"), Amount: 110, Supplier: "Delta", UnitPrice: 11, PriceMean: 11, Quantity: 10},
	}

	results := engine.Evaluate(context.Background(), expenseBatch(records), domain.DefaultThresholds())
	for _, r := range results {
		if r.Passed {
			t.Errorf("Evaluate returned a passing result for %s", r.RuleType)
		}
	}
	if len(results) != 0 {
		t.Errorf("expected clean batch, got %d failing results: %+v", len(results), results)
	}
}

func TestEvaluateFailingResultInvariants(t *testing.T) {
	engine := NewEngine(testLogger())

	// Overpriced items, a split order group and duplicates in one batch.
	records := []domain.Record{
		{ID: "r1", Date: day("2025-03-10 10:00"), Amount: 5000, Supplier: "Acme", Description: "cement", UnitPrice: 200, PriceMean: 100, Quantity: 25},
		{ID: "r2", Date: day("2025-03-10 10:00"), Amount: 5000, Supplier: "Acme", Description: "cement", UnitPrice: 200, PriceMean: 100, Quantity: 25},
		{ID: "r3", Date: day("2025-03-11 10:00"), Amount: 90, Supplier: "Beta", UnitPrice: 9, PriceMean: 10, Quantity: 10},
	}

	results := engine.Evaluate(context.Background(), expenseBatch(records), domain.DefaultThresholds())
	if len(results) == 0 {
		t.Fatal("expected failing results")
	}
	for _, r := range results {
		if r.Passed {
			t.Errorf("%s: failing set contains passing result", r.RuleType)
		}
		if r.Score < 1 || r.Score > 10 {
			t.Errorf("%s: score %d outside 1..10", r.RuleType, r.Score)
		}
		if r.Message == "" {
			t.Errorf("%s: empty message", r.RuleType)
		}
		if len(r.AffectedRecords) == 0 {
			t.Errorf("%s: no affected records", r.RuleType)
		}
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	engine := NewEngine(testLogger(), WithMaxWorkers(2))

	records := []domain.Record{
		{ID: "r1", Date: day("2025-03-08 23:00"), Amount: 5000, Supplier: "Acme", UnitPrice: 200, PriceMean: 100, Quantity: 25},
		{ID: "r2", Date: day("2025-03-08 23:00"), Amount: 5000, Supplier: "Acme", UnitPrice: 200, PriceMean: 100, Quantity: 25},
		{ID: "r3", Date: day("2025-03-08 23:00"), Amount: 5000, Supplier: "Acme", UnitPrice: 200, PriceMean: 100, Quantity: 25},
	}
	batch := expenseBatch(records)
	th := domain.DefaultThresholds()

	first := engine.Evaluate(context.Background(), batch, th)
	for i := 0; i < 10; i++ {
		again := engine.Evaluate(context.Background(), batch, th)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}

func TestEvaluateDetectorIsolation(t *testing.T) {
	// A broken detector must not suppress the findings of the others.
	saved := registry
	defer func() { registry = saved }()

	registry = append([]registration{
		{domain.RuleType("boom"), appliesTo(domain.DatasetExpenses), func(*domain.RecordSet, domain.Thresholds) (*domain.RuleResult, error) {
			panic("boom")
		}},
		{domain.RuleType("broken"), appliesTo(domain.DatasetExpenses), func(*domain.RecordSet, domain.Thresholds) (*domain.RuleResult, error) {
			return nil, errors.New("broken detector")
		}},
	}, registry...)

	engine := NewEngine(testLogger())
	records := []domain.Record{
		{ID: "r1", Date: day("2025-03-10 10:00"), Amount: 100, Supplier: "Acme", UnitPrice: 200, PriceMean: 100, Quantity: 1},
	}

	results := engine.Evaluate(context.Background(), expenseBatch(records), domain.DefaultThresholds())

	found := false
	for _, r := range results {
		if r.RuleType == domain.RuleOverpricing {
			found = true
		}
		if r.RuleType == "boom" || r.RuleType == "broken" {
			t.Errorf("broken detector leaked a result: %+v", r)
		}
	}
	if !found {
		t.Error("overpricing finding suppressed by broken detectors")
	}
}

func TestEvaluateSkipsInapplicableRules(t *testing.T) {
	engine := NewEngine(testLogger())

	// Payroll batch shaped to trip payroll_anomaly; expense-only rules must
	// not run even though amounts and dates are present.
	records := []domain.Record{
		{ID: "p1", Date: day("2025-03-01 00:00"), Amount: 5000, EmployeeID: "e1", Name: "Ana", Position: "Analyst", TotalPayment: 5000},
		{ID: "p2", Date: day("2025-03-01 00:00"), Amount: 5100, EmployeeID: "e2", Name: "Bruno", Position: "Analyst", TotalPayment: 5100},
		{ID: "p3", Date: day("2025-03-01 00:00"), Amount: 4900, EmployeeID: "e3", Name: "Carla", Position: "Analyst", TotalPayment: 4900},
		{ID: "p4", Date: day("2025-03-01 00:00"), Amount: 5050, EmployeeID: "e4", Name: "Davi", Position: "Analyst", TotalPayment: 5050},
		{ID: "p5", Date: day("2025-03-01 00:00"), Amount: 20000, EmployeeID: "e5", Name: "Edu", Position: "Analyst", TotalPayment: 20000},
	}

	results := engine.Evaluate(context.Background(), payrollBatch(records), domain.DefaultThresholds())

	allowed := map[domain.RuleType]bool{
		domain.RulePayrollAnomaly:    true,
		domain.RuleDuplicatePayments: true,
	}
	for _, r := range results {
		if !allowed[r.RuleType] {
			t.Errorf("rule %s ran on a payroll batch", r.RuleType)
		}
	}
}
