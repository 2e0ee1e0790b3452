// Package domain defines the core interfaces and types for fiscalwatch.
package domain

import (
	"time"
)

// DatasetType identifies which municipal dataset a record batch belongs to.
type DatasetType string

const (
	// DatasetPayroll is the municipal payroll dataset ("folha").
	DatasetPayroll DatasetType = "folha"

	// DatasetExpenses is the expense/purchase dataset ("despesas").
	DatasetExpenses DatasetType = "despesas"

	// DatasetContracts is the contracts dataset ("contratos").
	DatasetContracts DatasetType = "contratos"
)

// Valid reports whether t is a known dataset type.
func (t DatasetType) Valid() bool {
	switch t {
	case DatasetPayroll, DatasetExpenses, DatasetContracts:
		return true
	}
	return false
}

// Field names a column of the normalized record table. Detectors declare the
// fields they need and abstain when a required field was absent from the batch.
type Field string

const (
	FieldDate         Field = "date"
	FieldAmount       Field = "amount"
	FieldSupplier     Field = "supplier"
	FieldDescription  Field = "description"
	FieldUnitPrice    Field = "unit_price"
	FieldPriceMean    Field = "price_mean"
	FieldQuantity     Field = "quantity"
	FieldIsEmergency  Field = "is_emergency"
	FieldEmployeeID   Field = "employee_id"
	FieldName         Field = "name"
	FieldPosition     Field = "position"
	FieldTotalPayment Field = "total_payment"
	FieldStartDate    Field = "start_date"
	FieldEndDate      Field = "end_date"
)

// Record is one normalized row of a municipal dataset. Records are immutable
// inputs to the engine; which fields carry meaning depends on the dataset type.
type Record struct {
	ID     string    `json:"id"`
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`

	// Expenses and contracts
	Supplier    string  `json:"supplier,omitempty"`
	Description string  `json:"description,omitempty"`
	UnitPrice   float64 `json:"unit_price,omitempty"`
	PriceMean   float64 `json:"price_mean,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	IsEmergency bool    `json:"is_emergency,omitempty"`

	// Payroll
	EmployeeID   string  `json:"employee_id,omitempty"`
	Name         string  `json:"name,omitempty"`
	Position     string  `json:"position,omitempty"`
	TotalPayment float64 `json:"total_payment,omitempty"`

	// Contracts
	StartDate time.Time `json:"start_date,omitempty"`
	EndDate   time.Time `json:"end_date,omitempty"`

	Department string `json:"department,omitempty"`
}

// RecordSet is one evaluation batch: records of a single dataset type plus the
// set of fields that were actually present in the source table. The engine
// never mutates a RecordSet.
type RecordSet struct {
	Type    DatasetType
	Records []Record

	fields map[Field]struct{}
}

// NewRecordSet builds a record set with an explicit field inventory. Ingestion
// passes the columns it observed; callers that already hold fully typed records
// can use DefaultFields for the dataset type.
func NewRecordSet(t DatasetType, records []Record, fields []Field) *RecordSet {
	fm := make(map[Field]struct{}, len(fields))
	for _, f := range fields {
		fm[f] = struct{}{}
	}
	return &RecordSet{Type: t, Records: records, fields: fm}
}

// Has reports whether a field was present in the source batch.
func (s *RecordSet) Has(fields ...Field) bool {
	for _, f := range fields {
		if _, ok := s.fields[f]; !ok {
			return false
		}
	}
	return true
}

// Fields returns a copy of the field inventory.
func (s *RecordSet) Fields() []Field {
	out := make([]Field, 0, len(s.fields))
	for _, f := range allFields {
		if _, ok := s.fields[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of records in the batch.
func (s *RecordSet) Len() int {
	return len(s.Records)
}

var allFields = []Field{
	FieldDate, FieldAmount, FieldSupplier, FieldDescription,
	FieldUnitPrice, FieldPriceMean, FieldQuantity, FieldIsEmergency,
	FieldEmployeeID, FieldName, FieldPosition, FieldTotalPayment,
	FieldStartDate, FieldEndDate,
}

// DefaultFields returns the field inventory a fully populated batch of the
// given dataset type carries.
func DefaultFields(t DatasetType) []Field {
	switch t {
	case DatasetPayroll:
		return []Field{FieldDate, FieldAmount, FieldEmployeeID, FieldName, FieldPosition, FieldTotalPayment}
	case DatasetExpenses:
		return []Field{FieldDate, FieldAmount, FieldSupplier, FieldDescription, FieldUnitPrice, FieldPriceMean, FieldQuantity, FieldIsEmergency}
	case DatasetContracts:
		return []Field{FieldDate, FieldAmount, FieldSupplier, FieldDescription, FieldIsEmergency, FieldStartDate, FieldEndDate}
	default:
		return nil
	}
}
