package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// ErrUnknownDataset marks a batch labeled with a dataset type the pipeline
// does not know.
var ErrUnknownDataset = errors.New("unknown dataset type")

// PriceSource provides market reference-price statistics for a catalog code.
// Implementations query the government price panels; lookups are cached so a
// batch touching the same catalog code many times costs one fetch.
type PriceSource interface {
	Fetch(ctx context.Context, catalogCode string) (*domain.PriceStats, error)
}

// priceStatsTTL bounds how stale a cached reference price may grow.
const priceStatsTTL = 24 * time.Hour

// Processor normalizes and enriches raw batches into evaluation-ready
// record sets.
type Processor struct {
	log    *slog.Logger
	cache  domain.Cache
	source PriceSource
}

// NewProcessor creates a processor. cache and source may be nil, in which
// case price enrichment is skipped and only reference means already present
// in the data are used.
func NewProcessor(logger *slog.Logger, cache domain.Cache, source PriceSource) *Processor {
	return &Processor{log: logger, cache: cache, source: source}
}

// Process applies the dataset-specific transformations and returns the
// finished record set.
func (p *Processor) Process(ctx context.Context, t domain.DatasetType, raw *RawBatch) (*domain.RecordSet, error) {
	switch t {
	case domain.DatasetExpenses:
		return p.processExpenses(ctx, raw), nil
	case domain.DatasetPayroll:
		return p.processPayroll(raw), nil
	case domain.DatasetContracts:
		return p.processContracts(raw), nil
	default:
		return nil, fmt.Errorf("process batch: %w: %q", ErrUnknownDataset, t)
	}
}

func (p *Processor) processExpenses(ctx context.Context, raw *RawBatch) *domain.RecordSet {
	fields := fieldSet(raw.Fields)

	enriched := false
	for i := range raw.Records {
		r := &raw.Records[i]

		if r.UnitPrice == 0 && r.Quantity > 0 {
			r.UnitPrice = r.Amount / r.Quantity
			fields[domain.FieldUnitPrice] = true
		}
		if !r.IsEmergency && DetectEmergency(r.Description) {
			r.IsEmergency = true
		}
		fields[domain.FieldIsEmergency] = true

		if r.PriceMean == 0 {
			if stats := p.priceStats(ctx, MapCatalogCode(r.Description)); stats != nil {
				r.PriceMean = stats.Mean
				enriched = true
			}
		}
	}
	if enriched {
		fields[domain.FieldPriceMean] = true
	}

	return domain.NewRecordSet(domain.DatasetExpenses, raw.Records, fieldList(fields))
}

func (p *Processor) processPayroll(raw *RawBatch) *domain.RecordSet {
	fields := fieldSet(raw.Fields)

	for i := range raw.Records {
		r := &raw.Records[i]
		r.Position = StandardizePosition(r.Position)
		// Duplicate detection keys on amount; payroll rows carry the payment
		// total there.
		if r.Amount == 0 && r.TotalPayment != 0 {
			r.Amount = r.TotalPayment
			fields[domain.FieldAmount] = true
		}
	}

	return domain.NewRecordSet(domain.DatasetPayroll, raw.Records, fieldList(fields))
}

func (p *Processor) processContracts(raw *RawBatch) *domain.RecordSet {
	fields := fieldSet(raw.Fields)

	for i := range raw.Records {
		r := &raw.Records[i]
		if !r.IsEmergency && DetectEmergency(r.Description) {
			r.IsEmergency = true
		}
		fields[domain.FieldIsEmergency] = true
	}

	return domain.NewRecordSet(domain.DatasetContracts, raw.Records, fieldList(fields))
}

// priceStats resolves reference-price statistics for a catalog code, checking
// the cache before the source. Lookup failures degrade to no enrichment.
func (p *Processor) priceStats(ctx context.Context, catalogCode string) *domain.PriceStats {
	if catalogCode == CatalogUnknown || p.cache == nil {
		return nil
	}

	stats, err := p.cache.GetPriceStats(ctx, catalogCode)
	if err != nil {
		p.log.Warn("price stats cache lookup failed", "catalog_code", catalogCode, "error", err)
	}
	if stats != nil {
		return stats
	}

	if p.source == nil {
		return nil
	}
	stats, err = p.source.Fetch(ctx, catalogCode)
	if err != nil {
		p.log.Warn("price stats fetch failed", "catalog_code", catalogCode, "error", err)
		return nil
	}
	if stats == nil {
		return nil
	}

	if err := p.cache.SetPriceStats(ctx, catalogCode, stats, priceStatsTTL); err != nil {
		p.log.Warn("price stats cache store failed", "catalog_code", catalogCode, "error", err)
	}
	return stats
}

func fieldSet(fields []domain.Field) map[domain.Field]bool {
	m := make(map[domain.Field]bool, len(fields))
	for _, f := range fields {
		m[f] = true
	}
	return m
}

func fieldList(set map[domain.Field]bool) []domain.Field {
	var out []domain.Field
	for _, f := range allKnownFields {
		if set[f] {
			out = append(out, f)
		}
	}
	return out
}

var allKnownFields = []domain.Field{
	domain.FieldDate, domain.FieldAmount, domain.FieldSupplier,
	domain.FieldDescription, domain.FieldUnitPrice, domain.FieldPriceMean,
	domain.FieldQuantity, domain.FieldIsEmergency, domain.FieldEmployeeID,
	domain.FieldName, domain.FieldPosition, domain.FieldTotalPayment,
	domain.FieldStartDate, domain.FieldEndDate,
}

// StaticPriceSource serves reference prices from a fixed in-memory table.
// It stands in for the government price panel API in single-node deployments
// and tests.
type StaticPriceSource struct {
	stats map[string]domain.PriceStats
}

// NewStaticPriceSource creates a source preloaded with the known catalog
// codes.
func NewStaticPriceSource() *StaticPriceSource {
	now := time.Now()
	stats := make(map[string]domain.PriceStats, len(catalogMapping))
	for _, code := range catalogMapping {
		stats[code] = domain.PriceStats{
			CatalogCode: code,
			Mean:        100,
			SampleCount: 1,
			UpdatedAt:   now,
		}
	}
	return &StaticPriceSource{stats: stats}
}

// Fetch returns the stats for a catalog code, or nil when unknown.
func (s *StaticPriceSource) Fetch(_ context.Context, catalogCode string) (*domain.PriceStats, error) {
	st, ok := s.stats[catalogCode]
	if !ok {
		return nil, nil
	}
	return &st, nil
}
