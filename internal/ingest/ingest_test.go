package ingest

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

func TestNormalizeCurrency(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"R$ 1.234,56", 1234.56},
		{"R$1.234.567,89", 1234567.89},
		{"1234.56", 1234.56},
		{"1500", 1500},
		{"57,90", 57.9},
		{"", 0},
		{"n/a", 0},
	}
	for _, tc := range cases {
		if got := NormalizeCurrency(tc.in); got != tc.want {
			t.Errorf("NormalizeCurrency(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDetectEmergency(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"Compra emergencial de medicamentos", true},
		{"Contratação URGENTE de serviços", true},
		{"Situação de calamidade pública", true},
		{"Aquisição de material de escritório", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := DetectEmergency(tc.in); got != tc.want {
			t.Errorf("DetectEmergency(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestStandardizePosition(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ANALISTA DE SISTEMAS", "Analista"},
		{"diretor administrativo", "Diretor"},
		{"motorista", "Motorista"},
		{"", "UNKNOWN"},
	}
	for _, tc := range cases {
		if got := StandardizePosition(tc.in); got != tc.want {
			t.Errorf("StandardizePosition(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseCSVExpenses(t *testing.T) {
	csvData := strings.Join([]string{
		"data,valor,fornecedor,descricao,quantidade,numero_processo",
		"2025-03-10,\"R$ 3.000,00\",Acme Ltda,Compra de combustivel,100,PROC-001",
		"2025-03-11,1500.50,Beta SA,Material de escritório,10,PROC-002 emergencial",
		"not-a-date,100,Gamma,who knows,1,PROC-003",
	}, "\n")

	batch, err := ParseCSV(strings.NewReader(csvData), domain.DatasetExpenses)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(batch.Records))
	}
	if batch.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", batch.Skipped)
	}

	r := batch.Records[0]
	if r.Amount != 3000 {
		t.Errorf("amount = %v, want 3000", r.Amount)
	}
	if r.Supplier != "Acme Ltda" {
		t.Errorf("supplier = %q", r.Supplier)
	}
	if batch.Records[1].IsEmergency != true {
		t.Error("emergency process number not detected")
	}

	want := map[domain.Field]bool{
		domain.FieldDate: true, domain.FieldAmount: true,
		domain.FieldSupplier: true, domain.FieldDescription: true,
		domain.FieldQuantity: true,
	}
	for _, f := range batch.Fields {
		if !want[f] {
			t.Errorf("unexpected field %s in inventory", f)
		}
		delete(want, f)
	}
	for f := range want {
		t.Errorf("field %s missing from inventory", f)
	}
}

func TestParseCSVStripsHeaderBOM(t *testing.T) {
	csvData := "\ufeffdata,valor,fornecedor\n" +
		"2025-03-10,1000,Acme Ltda\n"

	batch, err := ParseCSV(strings.NewReader(csvData), domain.DatasetExpenses)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(batch.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(batch.Records))
	}
	hasDate := false
	for _, f := range batch.Fields {
		if f == domain.FieldDate {
			hasDate = true
		}
	}
	if !hasDate {
		t.Errorf("date column not recognized behind a BOM, fields = %v", batch.Fields)
	}
	if batch.Records[0].Supplier != "Acme Ltda" {
		t.Errorf("supplier = %q", batch.Records[0].Supplier)
	}
}

func TestParseCSVRejectsUnknownDataset(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("a,b\n1,2\n"), domain.DatasetType("bogus"))
	if err == nil {
		t.Fatal("expected error for unknown dataset type")
	}
}

func TestProcessExpensesDerivesUnitPriceAndPriceMean(t *testing.T) {
	p := NewProcessor(slog.New(slog.NewTextHandler(io.Discard, nil)), newMemCache(), NewStaticPriceSource())

	raw := &RawBatch{
		Records: []domain.Record{
			{ID: "r1", Amount: 13000, Quantity: 100, Description: "Compra de combustivel", Supplier: "Acme"},
			{ID: "r2", Amount: 500, Quantity: 0, Description: "Serviço avulso", Supplier: "Beta"},
		},
		Fields: []domain.Field{domain.FieldDate, domain.FieldAmount, domain.FieldSupplier, domain.FieldDescription, domain.FieldQuantity},
	}

	set, err := p.Process(context.Background(), domain.DatasetExpenses, raw)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := set.Records[0].UnitPrice; got != 130 {
		t.Errorf("unit price = %v, want 130", got)
	}
	// Zero quantity leaves the unit price unset rather than dividing by zero.
	if got := set.Records[1].UnitPrice; got != 0 {
		t.Errorf("unit price = %v, want 0", got)
	}
	if got := set.Records[0].PriceMean; got != 100 {
		t.Errorf("price mean = %v, want 100 from reference table", got)
	}
	if !set.Has(domain.FieldUnitPrice, domain.FieldPriceMean, domain.FieldIsEmergency) {
		t.Errorf("derived fields missing from inventory: %v", set.Fields())
	}
}

func TestProcessPayrollStandardizesAndCopiesAmount(t *testing.T) {
	p := NewProcessor(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil)

	raw := &RawBatch{
		Records: []domain.Record{
			{ID: "p1", EmployeeID: "e1", Name: "Ana", Position: "ANALISTA JR", TotalPayment: 5000},
		},
		Fields: []domain.Field{domain.FieldDate, domain.FieldEmployeeID, domain.FieldName, domain.FieldPosition, domain.FieldTotalPayment},
	}

	set, err := p.Process(context.Background(), domain.DatasetPayroll, raw)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if set.Records[0].Position != "Analista" {
		t.Errorf("position = %q, want Analista", set.Records[0].Position)
	}
	if set.Records[0].Amount != 5000 {
		t.Errorf("amount = %v, want 5000", set.Records[0].Amount)
	}
	if !set.Has(domain.FieldAmount) {
		t.Error("amount field missing from inventory")
	}
}

// newMemCache is a minimal in-memory Cache for processor tests.
type memCache struct {
	stats map[string]*domain.PriceStats
}

func newMemCache() *memCache {
	return &memCache{stats: make(map[string]*domain.PriceStats)}
}

func (c *memCache) Get(context.Context, string) ([]byte, error) { return nil, nil }
func (c *memCache) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}
func (c *memCache) Delete(context.Context, string) error { return nil }

func (c *memCache) GetPriceStats(_ context.Context, code string) (*domain.PriceStats, error) {
	return c.stats[code], nil
}

func (c *memCache) SetPriceStats(_ context.Context, code string, stats *domain.PriceStats, _ time.Duration) error {
	c.stats[code] = stats
	return nil
}

func (c *memCache) IncrementCounter(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}
func (c *memCache) Ping(context.Context) error { return nil }
func (c *memCache) Close() error               { return nil }
