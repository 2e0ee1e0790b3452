package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// columnAliases maps the header spellings seen across municipal portals to
// canonical column names.
var columnAliases = map[string]string{
	"id":       "id",
	"registro": "id",

	"date":           "date",
	"data":           "date",
	"data_pagamento": "date",

	"amount": "amount",
	"valor":  "amount",

	"supplier":   "supplier",
	"fornecedor": "supplier",
	"credor":     "supplier",

	"description": "description",
	"descricao":   "description",
	"descrição":   "description",
	"objeto":      "description",

	"quantity":   "quantity",
	"quantidade": "quantity",

	"unit_price":     "unit_price",
	"valor_unitario": "unit_price",
	"valor_unitário": "unit_price",

	"price_mean": "price_mean",

	"is_emergency": "is_emergency",

	"process_number":  "process_number",
	"numero_processo": "process_number",

	"employee_id": "employee_id",
	"matricula":   "employee_id",
	"matrícula":   "employee_id",

	"name":     "name",
	"nome":     "name",
	"servidor": "name",

	"position": "position",
	"cargo":    "position",

	"total_payment":   "total_payment",
	"pagamento_total": "total_payment",
	"valor_total":     "total_payment",

	"start_date":      "start_date",
	"data_inicio":     "start_date",
	"data_início":     "start_date",
	"inicio_vigencia": "start_date",

	"end_date":     "end_date",
	"data_fim":     "end_date",
	"fim_vigencia": "end_date",

	"department": "department",
	"secretaria": "department",
	"orgao":      "department",
}

// RawBatch is a parsed but not yet enriched batch. Skipped counts rows the
// parser dropped because a mandatory value would not parse.
type RawBatch struct {
	Records []domain.Record
	Fields  []domain.Field
	Skipped int
}

// ParseCSV reads one municipal CSV export into records. Column names are
// matched case-insensitively against the known portal spellings; unknown
// columns are ignored. Rows whose date fails to parse are skipped, never
// fatal, so one bad row cannot block a batch.
func ParseCSV(r io.Reader, t domain.DatasetType) (*RawBatch, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("parse csv: %w: %q", ErrUnknownDataset, t)
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canonical, ok := columnAliases[h]; ok {
			cols[canonical] = i
		}
	}

	batch := &RawBatch{}
	rowNum := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv row %d: %w", rowNum+1, err)
		}
		rowNum++

		rec, ok := parseRow(row, cols, t, rowNum)
		if !ok {
			batch.Skipped++
			continue
		}
		batch.Records = append(batch.Records, rec)
	}

	batch.Fields = presentFields(cols)
	return batch, nil
}

func parseRow(row []string, cols map[string]int, t domain.DatasetType, rowNum int) (domain.Record, bool) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := domain.Record{}

	rec.ID = get("id")
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("%s-%d", t, rowNum)
	}

	if _, ok := cols["date"]; ok {
		d, err := ParseDate(get("date"))
		if err != nil {
			return domain.Record{}, false
		}
		rec.Date = d
	}

	rec.Amount = NormalizeCurrency(get("amount"))
	rec.Supplier = get("supplier")
	rec.Description = get("description")
	rec.UnitPrice = NormalizeCurrency(get("unit_price"))
	rec.PriceMean = NormalizeCurrency(get("price_mean"))
	rec.Department = get("department")

	if q := get("quantity"); q != "" {
		rec.Quantity, _ = strconv.ParseFloat(q, 64)
	}
	if e := get("is_emergency"); e != "" {
		rec.IsEmergency, _ = strconv.ParseBool(e)
	}

	rec.EmployeeID = get("employee_id")
	rec.Name = get("name")
	rec.Position = get("position")
	rec.TotalPayment = NormalizeCurrency(get("total_payment"))

	if s := get("start_date"); s != "" {
		if d, err := ParseDate(s); err == nil {
			rec.StartDate = d
		}
	}
	if s := get("end_date"); s != "" {
		if d, err := ParseDate(s); err == nil {
			rec.EndDate = d
		}
	}

	// Emergency flags also hide inside process numbers on the expense portal.
	if !rec.IsEmergency && DetectEmergency(get("process_number")) {
		rec.IsEmergency = true
	}

	return rec, true
}

func presentFields(cols map[string]int) []domain.Field {
	var out []domain.Field
	for _, f := range allKnownFields {
		if _, ok := cols[string(f)]; ok {
			out = append(out, f)
		}
	}
	return out
}
