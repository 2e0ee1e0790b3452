package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ivossos/fiscalwatch/internal/bus"
	"github.com/ivossos/fiscalwatch/internal/domain"
	"github.com/ivossos/fiscalwatch/internal/repository"
	"github.com/ivossos/fiscalwatch/internal/rules"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(t *testing.T) (*Worker, domain.Repository, *bus.ChannelBus) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	b := bus.NewChannelBus(16)
	t.Cleanup(func() { b.Close() })

	w := New(
		testLogger(),
		b,
		repo,
		rules.NewEngine(testLogger()),
		rules.NewMaterializer(),
		nil,
		nil,
		domain.DefaultThresholds(),
	)
	return w, repo, b
}

// overpricedBatch has every unit price 50% above its market mean, so the
// overpricing detector must fire.
func overpricedBatch(datasetID string) *BatchMessage {
	day := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	records := make([]domain.Record, 0, 3)
	for i := 0; i < 3; i++ {
		records = append(records, domain.Record{
			ID:        string(rune('a' + i)),
			Date:      day,
			Amount:    1500,
			Supplier:  "Fornecedor Alfa",
			UnitPrice: 150,
			PriceMean: 100,
			Quantity:  10,
		})
	}
	return &BatchMessage{
		DatasetID:   datasetID,
		DatasetType: domain.DatasetExpenses,
		Records:     records,
		Fields: []domain.Field{
			domain.FieldDate, domain.FieldAmount, domain.FieldSupplier,
			domain.FieldUnitPrice, domain.FieldPriceMean,
		},
	}
}

func TestProcessBatchPersistsAlertsAndEvaluation(t *testing.T) {
	w, repo, _ := newTestWorker(t)
	ctx := context.Background()

	eval, err := w.ProcessBatch(ctx, overpricedBatch("ds-1"))
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if eval.AlertCount == 0 {
		t.Fatal("expected at least one alert from overpriced batch")
	}
	if eval.RecordCount != 3 {
		t.Errorf("RecordCount = %d, want 3", eval.RecordCount)
	}

	stored, err := repo.GetEvaluation(ctx, eval.ID)
	if err != nil {
		t.Fatalf("evaluation not persisted: %v", err)
	}
	if stored.DatasetID != "ds-1" {
		t.Errorf("DatasetID = %q, want ds-1", stored.DatasetID)
	}

	alerts, err := repo.ListAlerts(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != eval.AlertCount {
		t.Errorf("stored %d alerts, evaluation says %d", len(alerts), eval.AlertCount)
	}
	for _, a := range alerts {
		if a.RiskScore < 1 || a.RiskScore > 10 {
			t.Errorf("alert %s has risk score %d outside 1..10", a.ID, a.RiskScore)
		}
	}
}

func TestProcessBatchPublishesAlertEvents(t *testing.T) {
	w, _, b := newTestWorker(t)
	ctx := context.Background()

	received := make(chan *domain.Message, 16)
	_, err := b.Subscribe(ctx, domain.TopicAlertCreated, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	eval, err := w.ProcessBatch(ctx, overpricedBatch("ds-2"))
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}

	select {
	case msg := <-received:
		var alert domain.Alert
		if err := json.Unmarshal(msg.Payload, &alert); err != nil {
			t.Fatalf("alert payload did not decode: %v", err)
		}
		if alert.RuleType != domain.RuleOverpricing {
			t.Errorf("published alert rule type = %s, want %s", alert.RuleType, domain.RuleOverpricing)
		}
	case <-time.After(2 * time.Second):
		if eval.AlertCount > 0 {
			t.Fatal("no alert event received within 2s")
		}
	}
}

func TestWorkerConsumesBatchTopic(t *testing.T) {
	w, repo, b := newTestWorker(t)
	ctx := context.Background()

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	payload, err := json.Marshal(overpricedBatch("ds-3"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := b.Publish(ctx, domain.TopicBatchIngested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		alerts, err := repo.ListAlerts(ctx, time.Now().Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(alerts) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("worker did not process published batch within 2s")
}

func TestHandleMessageRejectsUnknownDatasetType(t *testing.T) {
	w, _, _ := newTestWorker(t)

	payload, _ := json.Marshal(&BatchMessage{DatasetID: "ds-4", DatasetType: "licitacoes"})
	msg := &domain.Message{ID: "m1", Topic: domain.TopicBatchIngested, Payload: payload}
	if err := w.handleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error for unknown dataset type")
	}
}
