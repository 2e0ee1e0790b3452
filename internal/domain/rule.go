package domain

import "strings"

// RuleType identifies one of the built-in anomaly detectors.
type RuleType string

const (
	RuleOverpricing           RuleType = "overpricing"
	RuleSplitOrders           RuleType = "split_orders"
	RuleSupplierConcentration RuleType = "supplier_concentration"
	RuleRecurringEmergency    RuleType = "recurring_emergency"
	RulePayrollAnomaly        RuleType = "payroll_anomaly"
	RuleUnusualTiming         RuleType = "unusual_timing"
	RuleDuplicatePayments     RuleType = "duplicate_payments"
)

// AllRuleTypes lists every detector in dispatch order.
var AllRuleTypes = []RuleType{
	RuleOverpricing,
	RuleSplitOrders,
	RuleSupplierConcentration,
	RuleRecurringEmergency,
	RulePayrollAnomaly,
	RuleUnusualTiming,
	RuleDuplicatePayments,
}

// Title returns the human-cased form of the rule type, e.g.
// "split_orders" -> "Split Orders".
func (t RuleType) Title() string {
	parts := strings.Split(string(t), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// RuleResult is the verdict of a single detector over one batch.
// Passed=true means no anomaly; a failing result always carries a score in
// 1..10, a non-empty message and at least one affected record.
type RuleResult struct {
	RuleType        RuleType       `json:"rule_type"`
	Passed          bool           `json:"passed"`
	Score           int            `json:"score"`
	Message         string         `json:"message"`
	AffectedRecords []string       `json:"affected_records"`
	Evidence        map[string]any `json:"evidence"`
}

// Evidence payload types. Detectors attach these under named evidence keys so
// that a finding can be audited without re-running the batch.

// OverpricedItem is one of the most overpriced purchases in a batch.
type OverpricedItem struct {
	Description string  `json:"description"`
	UnitPrice   float64 `json:"unit_price"`
	PriceMean   float64 `json:"price_mean"`
}

// SplitGroup is a same-supplier same-day group of orders whose individual
// amounts sit below the procurement ceiling while their sum exceeds it.
type SplitGroup struct {
	Supplier          string    `json:"supplier"`
	Date              string    `json:"date"`
	OrdersCount       int       `json:"orders_count"`
	TotalAmount       float64   `json:"total_amount"`
	IndividualAmounts []float64 `json:"individual_amounts"`
	RecordIDs         []string  `json:"record_ids"`
}

// ConcentratedSupplier is a supplier holding an outsized share of total spend.
type ConcentratedSupplier struct {
	Supplier   string  `json:"supplier"`
	Percentage float64 `json:"percentage"`
	Amount     float64 `json:"amount"`
}

// EmergencySupplier is a supplier with repeated emergency purchases inside a
// short window.
type EmergencySupplier struct {
	Supplier       string   `json:"supplier"`
	EmergencyCount int      `json:"emergency_count"`
	DaysBetween    int      `json:"days_between"`
	TotalAmount    float64  `json:"total_amount"`
	RecordIDs      []string `json:"record_ids"`
}

// PayrollOutlier is a payment far outside its position group.
type PayrollOutlier struct {
	EmployeeID          string  `json:"employee_id"`
	Name                string  `json:"name"`
	Position            string  `json:"position"`
	Payment             float64 `json:"payment"`
	PositionMean        float64 `json:"position_mean"`
	DeviationPercentage float64 `json:"deviation_percentage"`
	RecordID            string  `json:"record_id"`
}

// DuplicateGroup is a set of records identical on the duplicate key.
type DuplicateGroup struct {
	Criteria    map[string]any `json:"criteria"`
	Count       int            `json:"count"`
	RecordIDs   []string       `json:"record_ids"`
	TotalAmount float64        `json:"total_amount"`
}

// TimingBreakdown splits unusual-timing hits by category.
type TimingBreakdown struct {
	LateNight int `json:"late_night"`
	Weekends  int `json:"weekends"`
}
