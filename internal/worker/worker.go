// Package worker consumes ingested batches from the event bus and runs them
// through the detection pipeline.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ivossos/fiscalwatch/internal/domain"
	"github.com/ivossos/fiscalwatch/internal/metrics"
	"github.com/ivossos/fiscalwatch/internal/notify"
	"github.com/ivossos/fiscalwatch/internal/rules"
)

// BatchMessage is the payload published on TopicBatchIngested.
type BatchMessage struct {
	DatasetID   string             `json:"dataset_id"`
	DatasetType domain.DatasetType `json:"dataset_type"`
	Records     []domain.Record    `json:"records"`
	Fields      []domain.Field     `json:"fields,omitempty"`
}

// Worker evaluates ingested batches asynchronously.
type Worker struct {
	log          *slog.Logger
	bus          domain.EventBus
	repo         domain.Repository
	engine       *rules.Engine
	materializer *rules.Materializer
	notifier     *notify.Manager
	collector    *metrics.Collector
	thresholds   domain.Thresholds

	subscription domain.Subscription
	ctx          context.Context
	cancel       context.CancelFunc
}

// New creates a worker. Notifier and collector may be nil.
func New(
	logger *slog.Logger,
	bus domain.EventBus,
	repo domain.Repository,
	engine *rules.Engine,
	materializer *rules.Materializer,
	notifier *notify.Manager,
	collector *metrics.Collector,
	thresholds domain.Thresholds,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		log:          logger,
		bus:          bus,
		repo:         repo,
		engine:       engine,
		materializer: materializer,
		notifier:     notifier,
		collector:    collector,
		thresholds:   thresholds,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start subscribes to the batch topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicBatchIngested, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicBatchIngested, err)
	}
	w.subscription = sub
	w.log.Info("worker started", "topic", domain.TopicBatchIngested)
	return nil
}

// Stop unsubscribes and stops processing.
func (w *Worker) Stop() error {
	w.cancel()
	if w.subscription != nil {
		if err := w.subscription.Unsubscribe(); err != nil {
			w.log.Error("failed to unsubscribe", "topic", w.subscription.Topic(), "error", err)
		}
		w.subscription = nil
	}
	w.log.Info("worker stopped")
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var batch BatchMessage
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		w.log.Error("failed to parse batch message", "message_id", msg.ID, "error", err)
		return err
	}
	if !batch.DatasetType.Valid() {
		w.log.Error("unknown dataset type in batch message",
			"message_id", msg.ID,
			"dataset_type", batch.DatasetType)
		return fmt.Errorf("unknown dataset type %q", batch.DatasetType)
	}

	_, err := w.ProcessBatch(ctx, &batch)
	return err
}

// ProcessBatch runs one batch through evaluation, persistence and
// notification. It returns the stored evaluation.
func (w *Worker) ProcessBatch(ctx context.Context, batch *BatchMessage) (*domain.Evaluation, error) {
	start := time.Now()

	fields := batch.Fields
	if len(fields) == 0 {
		fields = domain.DefaultFields(batch.DatasetType)
	}
	set := domain.NewRecordSet(batch.DatasetType, batch.Records, fields)

	results := w.engine.Evaluate(ctx, set, w.thresholds)
	alerts := w.materializer.Materialize(results)

	for _, alert := range alerts {
		if err := w.repo.SaveAlert(ctx, alert); err != nil {
			w.log.Error("failed to save alert", "alert_id", alert.ID, "error", err)
			continue
		}
		if w.collector != nil {
			w.collector.RecordAlert(string(alert.RuleType), alert.RiskScore)
		}
		w.publishAlert(ctx, alert)
		if w.notifier != nil {
			w.notifier.AlertCreated(ctx, alert)
		}
	}

	eval := &domain.Evaluation{
		ID:          uuid.NewString(),
		DatasetID:   batch.DatasetID,
		DatasetType: batch.DatasetType,
		RecordCount: len(batch.Records),
		RuleResults: results,
		AlertCount:  len(alerts),
		ProcessMs:   time.Since(start).Milliseconds(),
		CreatedAt:   start,
	}
	if err := w.repo.SaveEvaluation(ctx, eval); err != nil {
		w.log.Error("failed to save evaluation", "dataset_id", batch.DatasetID, "error", err)
		if w.collector != nil {
			w.collector.RecordBatch(string(batch.DatasetType), len(batch.Records), time.Since(start), true)
		}
		return nil, err
	}

	if w.collector != nil {
		w.collector.RecordBatch(string(batch.DatasetType), len(batch.Records), time.Since(start), false)
	}
	w.log.Info("batch evaluated",
		"dataset_id", batch.DatasetID,
		"dataset_type", batch.DatasetType,
		"records", len(batch.Records),
		"alerts", len(alerts),
		"duration_ms", eval.ProcessMs)

	return eval, nil
}

func (w *Worker) publishAlert(ctx context.Context, alert *domain.Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		w.log.Error("failed to marshal alert", "alert_id", alert.ID, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, domain.TopicAlertCreated, payload); err != nil {
		w.log.Error("failed to publish alert", "alert_id", alert.ID, "error", err)
	}
}
