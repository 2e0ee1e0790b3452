package rules

import (
	"testing"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

func TestOverpricingDetection(t *testing.T) {
	th := domain.DefaultThresholds()

	records := []domain.Record{
		{ID: "r1", Date: day("2025-03-10 10:00"), Amount: 1300, Supplier: "Acme", Description: "paper", UnitPrice: 130, PriceMean: 100, Quantity: 10},
		{ID: "r2", Date: day("2025-03-10 10:00"), Amount: 1250, Supplier: "Acme", Description: "ink", UnitPrice: 125, PriceMean: 100, Quantity: 10},
		{ID: "r3", Date: day("2025-03-10 10:00"), Amount: 1200, Supplier: "Acme", Description: "toner", UnitPrice: 120, PriceMean: 100, Quantity: 10},
		{ID: "r4", Date: day("2025-03-10 10:00"), Amount: 500, Supplier: "Acme", Description: "glue", UnitPrice: 50, PriceMean: 0, Quantity: 10},
	}

	res, err := detectOverpricing(expenseBatch(records), th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Passed {
		t.Fatal("expected failing result")
	}
	// r1 is 30% over. r2 sits exactly at the 25% threshold and r3 below it;
	// neither is flagged. r4 has no reference mean and carries no signal.
	if len(res.AffectedRecords) != 1 || res.AffectedRecords[0] != "r1" {
		t.Errorf("affected = %v, want [r1]", res.AffectedRecords)
	}
	if res.Score < 1 || res.Score > 10 {
		t.Errorf("score %d outside 1..10", res.Score)
	}
	if got := res.Evidence["overpriced_count"]; got != 1 {
		t.Errorf("overpriced_count = %v, want 1", got)
	}
}

func TestOverpricingRequiresPriceFields(t *testing.T) {
	records := []domain.Record{
		{ID: "r1", Date: day("2025-03-10 10:00"), Amount: 1300, Supplier: "Acme"},
	}
	set := domain.NewRecordSet(domain.DatasetExpenses, records,
		[]domain.Field{domain.FieldDate, domain.FieldAmount, domain.FieldSupplier})

	res, err := detectOverpricing(set, domain.DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Errorf("expected not-applicable, got %+v", res)
	}
}

func TestSplitOrderDetection(t *testing.T) {
	th := domain.DefaultThresholds() // ceiling 8000

	records := []domain.Record{
		// Three same-day orders under the ceiling summing above it.
		{ID: "s1", Date: day("2025-03-10 09:00"), Amount: 3000, Supplier: "Acme", UnitPrice: 30, PriceMean: 30, Quantity: 100},
		{ID: "s2", Date: day("2025-03-10 11:00"), Amount: 3000, Supplier: "Acme", UnitPrice: 30, PriceMean: 30, Quantity: 100},
		{ID: "s3", Date: day("2025-03-10 15:00"), Amount: 3000, Supplier: "Acme", UnitPrice: 30, PriceMean: 30, Quantity: 100},
		// Same supplier, different day. Not part of the group.
		{ID: "s4", Date: day("2025-03-11 09:00"), Amount: 3000, Supplier: "Acme", UnitPrice: 30, PriceMean: 30, Quantity: 100},
		// Single large order above the ceiling is a bidding matter, not a split.
		{ID: "s5", Date: day("2025-03-12 09:00"), Amount: 9000, Supplier: "Beta", UnitPrice: 90, PriceMean: 90, Quantity: 100},
	}

	res, err := detectSplitOrders(expenseBatch(records), th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Passed {
		t.Fatal("expected failing result")
	}
	want := []string{"s1", "s2", "s3"}
	if len(res.AffectedRecords) != len(want) {
		t.Fatalf("affected = %v, want %v", res.AffectedRecords, want)
	}
	for i, id := range want {
		if res.AffectedRecords[i] != id {
			t.Errorf("affected[%d] = %s, want %s", i, res.AffectedRecords[i], id)
		}
	}
	groups := res.Evidence["suspicious_groups"].([]domain.SplitGroup)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].TotalAmount != 9000 {
		t.Errorf("group total = %v, want 9000", groups[0].TotalAmount)
	}
}

func TestSplitOrderDetectionMixedGroup(t *testing.T) {
	th := domain.DefaultThresholds() // ceiling 8000

	// One order above the ceiling does not exonerate the group: two amounts
	// below it plus a group total above it is still a split.
	records := []domain.Record{
		{ID: "m1", Date: day("2025-03-10 09:00"), Amount: 9000, Supplier: "Acme"},
		{ID: "m2", Date: day("2025-03-10 11:00"), Amount: 3000, Supplier: "Acme"},
		{ID: "m3", Date: day("2025-03-10 15:00"), Amount: 3000, Supplier: "Acme"},
	}
	set := domain.NewRecordSet(domain.DatasetExpenses, records,
		[]domain.Field{domain.FieldDate, domain.FieldAmount, domain.FieldSupplier})

	res, err := detectSplitOrders(set, th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.Passed {
		t.Fatalf("expected failing result, got %+v", res)
	}
	if len(res.AffectedRecords) != 3 {
		t.Fatalf("affected = %v, want all three group records", res.AffectedRecords)
	}
	groups := res.Evidence["suspicious_groups"].([]domain.SplitGroup)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].OrdersCount != 3 {
		t.Errorf("orders count = %d, want 3", groups[0].OrdersCount)
	}
	if groups[0].TotalAmount != 15000 {
		t.Errorf("group total = %v, want 15000", groups[0].TotalAmount)
	}
	if len(groups[0].IndividualAmounts) != 3 {
		t.Errorf("individual amounts = %v, want all three", groups[0].IndividualAmounts)
	}

	// Only one amount below the ceiling: not a split, whatever the total.
	records = []domain.Record{
		{ID: "n1", Date: day("2025-03-10 09:00"), Amount: 9000, Supplier: "Acme"},
		{ID: "n2", Date: day("2025-03-10 11:00"), Amount: 3000, Supplier: "Acme"},
	}
	set = domain.NewRecordSet(domain.DatasetExpenses, records,
		[]domain.Field{domain.FieldDate, domain.FieldAmount, domain.FieldSupplier})

	res, err = detectSplitOrders(set, th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || !res.Passed {
		t.Fatalf("expected passing result, got %+v", res)
	}
}

func TestSupplierConcentrationDetection(t *testing.T) {
	th := domain.DefaultThresholds() // 0.70

	records := []domain.Record{
		{ID: "c1", Date: day("2025-03-10 10:00"), Amount: 8000, Supplier: "Dominant"},
		{ID: "c2", Date: day("2025-03-11 10:00"), Amount: 1000, Supplier: "Small A"},
		{ID: "c3", Date: day("2025-03-12 10:00"), Amount: 1000, Supplier: "Small B"},
	}
	set := domain.NewRecordSet(domain.DatasetExpenses, records,
		[]domain.Field{domain.FieldDate, domain.FieldAmount, domain.FieldSupplier})

	res, err := detectSupplierConcentration(set, th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Passed {
		t.Fatal("expected failing result")
	}
	if got := res.Evidence["top_supplier_percentage"].(float64); got != 80 {
		t.Errorf("top_supplier_percentage = %v, want 80", got)
	}
	suppliers := res.Evidence["concentrated_suppliers"].([]domain.ConcentratedSupplier)
	if suppliers[0].Supplier != "Dominant" {
		t.Errorf("top supplier = %s, want Dominant", suppliers[0].Supplier)
	}
	// Every record of a concentrated supplier is affected, in batch order.
	for _, id := range res.AffectedRecords {
		if id == "" {
			t.Error("empty affected record id")
		}
	}
}

func TestSupplierConcentrationZeroSpend(t *testing.T) {
	records := []domain.Record{
		{ID: "c1", Date: day("2025-03-10 10:00"), Amount: 0, Supplier: "Acme"},
	}
	set := domain.NewRecordSet(domain.DatasetExpenses, records,
		[]domain.Field{domain.FieldDate, domain.FieldAmount, domain.FieldSupplier})

	res, err := detectSupplierConcentration(set, domain.DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Errorf("expected not-applicable for zero spend, got %+v", res)
	}
}

func TestRecurringEmergencyDetection(t *testing.T) {
	th := domain.DefaultThresholds() // 30 days

	records := []domain.Record{
		{ID: "e1", Date: day("2025-03-01 10:00"), Amount: 1000, Supplier: "Rush Co", IsEmergency: true},
		{ID: "e2", Date: day("2025-03-11 10:00"), Amount: 1500, Supplier: "Rush Co", IsEmergency: true},
		// Two emergencies far apart are two genuine incidents.
		{ID: "e3", Date: day("2025-01-01 10:00"), Amount: 1000, Supplier: "Slow Co", IsEmergency: true},
		{ID: "e4", Date: day("2025-03-20 10:00"), Amount: 1000, Supplier: "Slow Co", IsEmergency: true},
		{ID: "e5", Date: day("2025-03-15 10:00"), Amount: 2000, Supplier: "Normal Co", IsEmergency: false},
	}
	set := domain.NewRecordSet(domain.DatasetExpenses, records,
		[]domain.Field{domain.FieldDate, domain.FieldAmount, domain.FieldSupplier, domain.FieldIsEmergency})

	res, err := detectRecurringEmergency(set, th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Passed {
		t.Fatal("expected failing result")
	}
	suppliers := res.Evidence["suspicious_suppliers"].([]domain.EmergencySupplier)
	if len(suppliers) != 1 || suppliers[0].Supplier != "Rush Co" {
		t.Fatalf("suspicious suppliers = %+v, want Rush Co only", suppliers)
	}
	if suppliers[0].DaysBetween != 10 {
		t.Errorf("days_between = %d, want 10", suppliers[0].DaysBetween)
	}
	if got := res.Evidence["total_emergency_purchases"]; got != 4 {
		t.Errorf("total_emergency_purchases = %v, want 4", got)
	}
}

func TestRecurringEmergencyNoEmergencies(t *testing.T) {
	records := []domain.Record{
		{ID: "e1", Date: day("2025-03-01 10:00"), Amount: 1000, Supplier: "Acme"},
	}
	set := domain.NewRecordSet(domain.DatasetExpenses, records,
		[]domain.Field{domain.FieldDate, domain.FieldAmount, domain.FieldSupplier, domain.FieldIsEmergency})

	res, err := detectRecurringEmergency(set, domain.DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Errorf("expected not-applicable with no emergency purchases, got %+v", res)
	}
}

func TestPayrollAnomalyDetection(t *testing.T) {
	th := domain.DefaultThresholds() // 0.30

	records := []domain.Record{
		{ID: "p1", Date: day("2025-03-01 00:00"), Amount: 5000, EmployeeID: "e1", Name: "Ana", Position: "Analyst", TotalPayment: 5000},
		{ID: "p2", Date: day("2025-03-01 00:00"), Amount: 5100, EmployeeID: "e2", Name: "Bruno", Position: "Analyst", TotalPayment: 5100},
		{ID: "p3", Date: day("2025-03-01 00:00"), Amount: 4900, EmployeeID: "e3", Name: "Carla", Position: "Analyst", TotalPayment: 4900},
		{ID: "p4", Date: day("2025-03-01 00:00"), Amount: 5050, EmployeeID: "e4", Name: "Davi", Position: "Analyst", TotalPayment: 5050},
		{ID: "p5", Date: day("2025-03-01 00:00"), Amount: 20000, EmployeeID: "e5", Name: "Edu", Position: "Analyst", TotalPayment: 20000},
		// Group of two is too small to judge.
		{ID: "p6", Date: day("2025-03-01 00:00"), Amount: 3000, EmployeeID: "e6", Name: "Fabio", Position: "Clerk", TotalPayment: 3000},
		{ID: "p7", Date: day("2025-03-01 00:00"), Amount: 9000, EmployeeID: "e7", Name: "Gina", Position: "Clerk", TotalPayment: 9000},
	}

	res, err := detectPayrollAnomaly(payrollBatch(records), th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Passed {
		t.Fatal("expected failing result")
	}
	if len(res.AffectedRecords) != 1 || res.AffectedRecords[0] != "p5" {
		t.Fatalf("affected = %v, want [p5]", res.AffectedRecords)
	}
	anomalies := res.Evidence["anomalies"].([]domain.PayrollOutlier)
	if anomalies[0].EmployeeID != "e5" {
		t.Errorf("outlier employee = %s, want e5", anomalies[0].EmployeeID)
	}
	if anomalies[0].DeviationPercentage <= th.PayrollVariationThreshold*100 {
		t.Errorf("deviation %.1f%% not above threshold", anomalies[0].DeviationPercentage)
	}
}

func TestPayrollAnomalyUniformPayments(t *testing.T) {
	records := []domain.Record{
		{ID: "p1", Date: day("2025-03-01 00:00"), Amount: 5000, EmployeeID: "e1", Name: "Ana", Position: "Analyst", TotalPayment: 5000},
		{ID: "p2", Date: day("2025-03-01 00:00"), Amount: 5000, EmployeeID: "e2", Name: "Bruno", Position: "Analyst", TotalPayment: 5000},
		{ID: "p3", Date: day("2025-03-01 00:00"), Amount: 5000, EmployeeID: "e3", Name: "Carla", Position: "Analyst", TotalPayment: 5000},
		{ID: "p4", Date: day("2025-03-01 00:00"), Amount: 5000, EmployeeID: "e4", Name: "Davi", Position: "Analyst", TotalPayment: 5000},
	}

	res, err := detectPayrollAnomaly(payrollBatch(records), domain.DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || !res.Passed {
		t.Errorf("uniform payments must pass, got %+v", res)
	}
}

func TestUnusualTimingDetection(t *testing.T) {
	th := domain.DefaultThresholds()

	records := []domain.Record{
		{ID: "t1", Date: day("2025-03-10 23:30"), Amount: 100, Supplier: "Acme"}, // Monday late night
		{ID: "t2", Date: day("2025-03-08 14:00"), Amount: 100, Supplier: "Acme"}, // Saturday afternoon
		{ID: "t3", Date: day("2025-03-11 10:00"), Amount: 100, Supplier: "Acme"}, // Tuesday morning
	}
	set := domain.NewRecordSet(domain.DatasetExpenses, records,
		[]domain.Field{domain.FieldDate, domain.FieldAmount, domain.FieldSupplier})

	res, err := detectUnusualTiming(set, th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Passed {
		t.Fatal("expected failing result")
	}
	if len(res.AffectedRecords) != 2 {
		t.Fatalf("affected = %v, want t1 and t2", res.AffectedRecords)
	}
	// Small counts still land inside the mandated score range.
	if res.Score != 1 {
		t.Errorf("score = %d, want 1", res.Score)
	}
	breakdown := res.Evidence["time_breakdown"].(domain.TimingBreakdown)
	if breakdown.LateNight != 1 || breakdown.Weekends != 1 {
		t.Errorf("breakdown = %+v, want 1 late night and 1 weekend", breakdown)
	}
}

func TestDuplicatePaymentsDetection(t *testing.T) {
	th := domain.DefaultThresholds()

	records := []domain.Record{
		{ID: "d1", Date: day("2025-03-10 10:00"), Amount: 1500, Supplier: "Acme"},
		{ID: "d2", Date: day("2025-03-10 10:00"), Amount: 1500, Supplier: "Acme"},
		{ID: "d3", Date: day("2025-03-10 10:00"), Amount: 1500, Supplier: "Beta"},
	}
	set := domain.NewRecordSet(domain.DatasetExpenses, records,
		[]domain.Field{domain.FieldDate, domain.FieldAmount, domain.FieldSupplier})

	res, err := detectDuplicatePayments(set, th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Passed {
		t.Fatal("expected failing result")
	}
	groups := res.Evidence["duplicate_groups"].([]domain.DuplicateGroup)
	if len(groups) != 1 {
		t.Fatalf("expected 1 duplicate group, got %d", len(groups))
	}
	if groups[0].Count != 2 || groups[0].TotalAmount != 3000 {
		t.Errorf("group = %+v, want count 2 total 3000", groups[0])
	}
}

func TestDuplicatePaymentsPayrollKey(t *testing.T) {
	// Payroll carries no supplier; the detector falls back to amount and date.
	records := []domain.Record{
		{ID: "p1", Date: day("2025-03-01 00:00"), Amount: 5000, EmployeeID: "e1", Name: "Ana", Position: "Analyst", TotalPayment: 5000},
		{ID: "p2", Date: day("2025-03-01 00:00"), Amount: 5000, EmployeeID: "e2", Name: "Bruno", Position: "Analyst", TotalPayment: 5000},
	}

	res, err := detectDuplicatePayments(payrollBatch(records), domain.DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.Passed {
		t.Fatalf("expected failing result, got %+v", res)
	}
	criteria := res.Evidence["criteria_used"].([]string)
	if len(criteria) != 2 || criteria[0] != "amount" || criteria[1] != "date" {
		t.Errorf("criteria_used = %v, want [amount date]", criteria)
	}
}

func TestDuplicatePaymentsTooFewKeyFields(t *testing.T) {
	records := []domain.Record{
		{ID: "d1", Date: day("2025-03-10 10:00"), Amount: 1500},
	}
	set := domain.NewRecordSet(domain.DatasetExpenses, records, []domain.Field{domain.FieldAmount})

	res, err := detectDuplicatePayments(set, domain.DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Errorf("expected not-applicable with one key field, got %+v", res)
	}
}
