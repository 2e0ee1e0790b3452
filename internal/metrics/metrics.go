// Package metrics exposes Prometheus instrumentation for the evaluation
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline metrics on a private registry so tests can
// create collectors without duplicate-registration panics.
type Collector struct {
	registry *prometheus.Registry

	batchesProcessed  *prometheus.CounterVec
	recordsIngested   *prometheus.CounterVec
	alertsCreated     *prometheus.CounterVec
	detectorErrors    *prometheus.CounterVec
	riskScores        prometheus.Histogram
	evaluationTime    prometheus.Histogram
	notificationsSent *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		batchesProcessed: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "fiscalwatch_batches_processed_total",
			Help: "Total number of evaluated record batches",
		}, []string{"dataset_type", "status"}),
		recordsIngested: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "fiscalwatch_records_ingested_total",
			Help: "Total number of ingested records",
		}, []string{"dataset_type"}),
		alertsCreated: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "fiscalwatch_alerts_created_total",
			Help: "Total number of alerts created",
		}, []string{"rule_type"}),
		detectorErrors: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "fiscalwatch_detector_errors_total",
			Help: "Total number of detector failures",
		}, []string{"rule_type"}),
		riskScores: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "fiscalwatch_alert_risk_score",
			Help:    "Distribution of alert risk scores",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),
		evaluationTime: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "fiscalwatch_evaluation_duration_seconds",
			Help:    "Time taken to evaluate a batch",
			Buckets: prometheus.DefBuckets,
		}),
		notificationsSent: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "fiscalwatch_notifications_sent_total",
			Help: "Total number of notifications sent",
		}, []string{"channel", "status"}),
	}
}

// RecordBatch records one completed batch evaluation.
func (c *Collector) RecordBatch(datasetType string, records int, duration time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	c.batchesProcessed.WithLabelValues(datasetType, status).Inc()
	c.recordsIngested.WithLabelValues(datasetType).Add(float64(records))
	c.evaluationTime.Observe(duration.Seconds())
}

// RecordAlert records one created alert.
func (c *Collector) RecordAlert(ruleType string, riskScore int) {
	c.alertsCreated.WithLabelValues(ruleType).Inc()
	c.riskScores.Observe(float64(riskScore))
}

// RecordDetectorError records one detector failure.
func (c *Collector) RecordDetectorError(ruleType string) {
	c.detectorErrors.WithLabelValues(ruleType).Inc()
}

// RecordNotification records one notification attempt.
func (c *Collector) RecordNotification(channel string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.notificationsSent.WithLabelValues(channel, status).Inc()
}

// Handler returns the scrape endpoint handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
