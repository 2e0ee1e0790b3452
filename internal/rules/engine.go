// Package rules implements the anomaly detection engine for municipal
// financial datasets. Detectors are pure functions over an immutable record
// batch; the engine dispatches the applicable ones in parallel and collects
// only the failing verdicts.
package rules

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// Detector examines one batch and returns its verdict.
// A nil result with nil error means the detector does not apply to the batch
// (required fields absent or nothing to measure).
type Detector func(set *domain.RecordSet, th domain.Thresholds) (*domain.RuleResult, error)

type registration struct {
	ruleType domain.RuleType
	applies  map[domain.DatasetType]bool
	detect   Detector
}

func appliesTo(types ...domain.DatasetType) map[domain.DatasetType]bool {
	m := make(map[domain.DatasetType]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

// registry lists every built-in detector in dispatch order. Result order is
// registry order regardless of which goroutine finishes first.
var registry = []registration{
	{domain.RuleOverpricing, appliesTo(domain.DatasetExpenses, domain.DatasetContracts), detectOverpricing},
	{domain.RuleSplitOrders, appliesTo(domain.DatasetExpenses), detectSplitOrders},
	{domain.RuleSupplierConcentration, appliesTo(domain.DatasetExpenses, domain.DatasetContracts), detectSupplierConcentration},
	{domain.RuleRecurringEmergency, appliesTo(domain.DatasetExpenses, domain.DatasetContracts), detectRecurringEmergency},
	{domain.RulePayrollAnomaly, appliesTo(domain.DatasetPayroll), detectPayrollAnomaly},
	{domain.RuleUnusualTiming, appliesTo(domain.DatasetExpenses, domain.DatasetContracts), detectUnusualTiming},
	{domain.RuleDuplicatePayments, appliesTo(domain.DatasetExpenses, domain.DatasetPayroll), detectDuplicatePayments},
}

// ApplicableRules returns the rule types that run for a dataset type, in
// dispatch order.
func ApplicableRules(t domain.DatasetType) []domain.RuleType {
	var out []domain.RuleType
	for _, reg := range registry {
		if reg.applies[t] {
			out = append(out, reg.ruleType)
		}
	}
	return out
}

const defaultMaxWorkers = 4

// Engine evaluates record batches against the detector registry.
type Engine struct {
	log        *slog.Logger
	tracer     trace.Tracer
	maxWorkers int
}

// Option configures the engine.
type Option func(*Engine)

// WithMaxWorkers sets the number of detectors evaluated concurrently.
func WithMaxWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// NewEngine creates an evaluation engine.
func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		log:        logger,
		tracer:     otel.Tracer("fiscalwatch/rules"),
		maxWorkers: defaultMaxWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every applicable detector over the batch and returns the
// failing results in registry order. Detector errors and panics are logged
// and treated as if the detector produced no result; one broken detector
// never suppresses the findings of the others.
func (e *Engine) Evaluate(ctx context.Context, set *domain.RecordSet, th domain.Thresholds) []domain.RuleResult {
	_, span := e.tracer.Start(ctx, "rules.Evaluate", trace.WithAttributes(
		attribute.String("dataset.type", string(set.Type)),
		attribute.Int("dataset.records", set.Len()),
	))
	defer span.End()

	results := make([]*domain.RuleResult, len(registry))
	sem := make(chan struct{}, e.maxWorkers)
	var wg sync.WaitGroup

	for i, reg := range registry {
		if !reg.applies[set.Type] {
			continue
		}
		wg.Add(1)
		go func(i int, reg registration) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("detector panicked",
						"rule_type", reg.ruleType,
						"dataset_type", set.Type,
						"panic", r)
				}
			}()

			res, err := reg.detect(set, th)
			if err != nil {
				e.log.Error("detector failed",
					"rule_type", reg.ruleType,
					"dataset_type", set.Type,
					"error", err)
				return
			}
			results[i] = res
		}(i, reg)
	}
	wg.Wait()

	out := make([]domain.RuleResult, 0, len(registry))
	for _, r := range results {
		if r == nil {
			continue
		}
		if !r.Passed {
			out = append(out, *r)
		}
	}
	span.SetAttributes(attribute.Int("rules.failing", len(out)))
	return out
}

// passedResult is the clean verdict every detector returns when it applies
// but finds nothing.
func passedResult(rt domain.RuleType, msg string) *domain.RuleResult {
	return &domain.RuleResult{
		RuleType:        rt,
		Passed:          true,
		Score:           0,
		Message:         msg,
		AffectedRecords: []string{},
		Evidence:        map[string]any{},
	}
}
