package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ivossos/fiscalwatch/internal/domain"
	"github.com/ivossos/fiscalwatch/internal/ingest"
	"github.com/ivossos/fiscalwatch/internal/repository"
	"github.com/ivossos/fiscalwatch/internal/rules"
	"github.com/ivossos/fiscalwatch/internal/worker"
)

// webhookDedupeWindow is how long a dataset ID blocks repeated webhook
// deliveries of the same payload.
const webhookDedupeWindow = 24 * time.Hour

const (
	defaultAlertWindowDays = 30
	maxListLimit           = 500
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	processor *ingest.Processor
	pipeline  *worker.Worker
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, processor *ingest.Processor, pipeline *worker.Worker, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		processor: processor,
		pipeline:  pipeline,
		version:   version,
	}
}

// EvaluateRequest is the request body for POST /api/v1/batches/evaluate.
type EvaluateRequest struct {
	DatasetID   string             `json:"dataset_id,omitempty"`
	DatasetType domain.DatasetType `json:"dataset_type"`
	Records     []domain.Record    `json:"records"`
	Fields      []domain.Field     `json:"fields,omitempty"`
}

// EvaluateResponse is the response for POST /api/v1/batches/evaluate.
type EvaluateResponse struct {
	EvaluationID string              `json:"evaluation_id"`
	DatasetID    string              `json:"dataset_id"`
	RecordCount  int                 `json:"record_count"`
	AlertCount   int                 `json:"alert_count"`
	RuleResults  []domain.RuleResult `json:"rule_results"`
	ProcessMs    int64               `json:"process_ms"`
	TraceID      string              `json:"trace_id,omitempty"`
}

// EvaluateBatch handles POST /api/v1/batches/evaluate. The batch is evaluated
// synchronously and alerts are persisted before the response is written.
func (h *Handler) EvaluateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if !req.DatasetType.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "dataset_type must be folha, despesas or contratos",
		})
		return
	}
	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "records must not be empty",
		})
		return
	}
	if req.DatasetID == "" {
		req.DatasetID = uuid.New().String()
	}

	eval, err := h.pipeline.ProcessBatch(ctx, &worker.BatchMessage{
		DatasetID:   req.DatasetID,
		DatasetType: req.DatasetType,
		Records:     req.Records,
		Fields:      req.Fields,
	})
	if err != nil {
		slog.Error("batch evaluation failed", "dataset_id", req.DatasetID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "batch evaluation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, EvaluateResponse{
		EvaluationID: eval.ID,
		DatasetID:    eval.DatasetID,
		RecordCount:  eval.RecordCount,
		AlertCount:   eval.AlertCount,
		RuleResults:  eval.RuleResults,
		ProcessMs:    eval.ProcessMs,
		TraceID:      GetTraceID(ctx),
	})
}

// WebhookIngest handles POST /api/v1/webhook/ingest. The body is a CSV export
// of one municipal dataset; the parsed batch is queued on the event bus for
// asynchronous evaluation.
func (h *Handler) WebhookIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	datasetType := domain.DatasetType(r.URL.Query().Get("dataset_type"))
	if !datasetType.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "dataset_type must be folha, despesas or contratos",
		})
		return
	}
	datasetID := r.URL.Query().Get("dataset_id")
	if datasetID == "" {
		datasetID = uuid.New().String()
	}

	// Repeated deliveries of the same dataset ID are acknowledged once.
	if h.cache != nil {
		count, err := h.cache.IncrementCounter(ctx, "webhook:"+datasetID, webhookDedupeWindow)
		if err != nil {
			slog.Error("webhook dedupe check failed", "dataset_id", datasetID, "error", err)
		} else if count > 1 {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":      "duplicate delivery",
				"dataset_id": datasetID,
			})
			return
		}
	}

	started := time.Now().UTC()
	h.upsertStatus(ctx, &domain.IngestionStatus{
		DatasetID: datasetID,
		Status:    domain.IngestionProcessing,
		StartedAt: started,
		FileSize:  r.ContentLength,
	})

	raw, err := ingest.ParseCSV(r.Body, datasetType)
	if err != nil {
		h.failIngestion(ctx, datasetID, started, r.ContentLength, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":      "failed to parse CSV: " + err.Error(),
			"dataset_id": datasetID,
		})
		return
	}

	set, err := h.processor.Process(ctx, datasetType, raw)
	if err != nil {
		h.failIngestion(ctx, datasetID, started, r.ContentLength, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":      err.Error(),
			"dataset_id": datasetID,
		})
		return
	}

	payload, err := json.Marshal(&worker.BatchMessage{
		DatasetID:   datasetID,
		DatasetType: datasetType,
		Records:     set.Records,
		Fields:      set.Fields(),
	})
	if err != nil {
		h.failIngestion(ctx, datasetID, started, r.ContentLength, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode batch",
		})
		return
	}
	if err := h.bus.Publish(ctx, domain.TopicBatchIngested, payload); err != nil {
		h.failIngestion(ctx, datasetID, started, r.ContentLength, err)
		slog.Error("failed to publish batch", "dataset_id", datasetID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue batch for evaluation",
		})
		return
	}

	completed := time.Now().UTC()
	h.upsertStatus(ctx, &domain.IngestionStatus{
		DatasetID:        datasetID,
		Status:           domain.IngestionCompleted,
		StartedAt:        started,
		CompletedAt:      &completed,
		RecordsProcessed: set.Len(),
		FileSize:         r.ContentLength,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"dataset_id":       datasetID,
		"dataset_type":     datasetType,
		"records_accepted": set.Len(),
		"records_skipped":  raw.Skipped,
		"applicable_rules": rules.ApplicableRules(datasetType),
	})
}

// GetIngestion handles GET /api/v1/ingestions/{datasetID}.
func (h *Handler) GetIngestion(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")

	status, err := h.repo.GetIngestionStatus(r.Context(), datasetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "ingestion not found",
			})
			return
		}
		slog.Error("failed to get ingestion status", "dataset_id", datasetID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get ingestion status",
		})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// ListAlerts handles GET /api/v1/alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultAlertWindowDays)
	limit := queryInt(r, "limit", 100)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	since := time.Now().AddDate(0, 0, -days)

	alerts, err := h.repo.ListAlerts(r.Context(), since, limit)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
		"days":   days,
	})
}

// GetAlert handles GET /api/v1/alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	alert, err := h.repo.GetAlert(r.Context(), alertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert not found",
			})
			return
		}
		slog.Error("failed to get alert", "alert_id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get alert",
		})
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// InvestigateRequest is the request body for POST /api/v1/alerts/{id}/investigate.
type InvestigateRequest struct {
	Investigator string `json:"investigator"`
	Notes        string `json:"notes,omitempty"`
}

// InvestigateAlert handles POST /api/v1/alerts/{id}/investigate.
func (h *Handler) InvestigateAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	var req InvestigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	err := h.repo.MarkInvestigated(r.Context(), alertID, req.Investigator, req.Notes)
	switch {
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "investigator is required",
		})
		return
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	case err != nil:
		slog.Error("failed to mark alert investigated", "alert_id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to mark alert investigated",
		})
		return
	}

	slog.Info("alert investigated", "alert_id", alertID, "investigator", req.Investigator)
	writeJSON(w, http.StatusOK, map[string]string{
		"alert_id": alertID,
		"status":   "investigated",
	})
}

// Dashboard handles GET /api/v1/metrics/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultAlertWindowDays)
	since := time.Now().AddDate(0, 0, -days)

	summary, err := h.repo.DashboardMetrics(r.Context(), since)
	if err != nil {
		slog.Error("failed to compute dashboard metrics", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute dashboard metrics",
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ListRules handles GET /api/v1/rules. With a dataset_type query parameter it
// returns only the rules that run for that dataset.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("dataset_type"); q != "" {
		t := domain.DatasetType(q)
		if !t.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "dataset_type must be folha, despesas or contratos",
			})
			return
		}
		applicable := rules.ApplicableRules(t)
		writeJSON(w, http.StatusOK, map[string]any{
			"rules": applicable,
			"count": len(applicable),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": domain.AllRuleTypes,
		"count": len(domain.AllRuleTypes),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) upsertStatus(ctx context.Context, status *domain.IngestionStatus) {
	if err := h.repo.UpsertIngestionStatus(ctx, status); err != nil {
		slog.Error("failed to record ingestion status",
			"dataset_id", status.DatasetID,
			"status", status.Status,
			"error", err)
	}
}

func (h *Handler) failIngestion(ctx context.Context, datasetID string, started time.Time, fileSize int64, cause error) {
	completed := time.Now().UTC()
	h.upsertStatus(ctx, &domain.IngestionStatus{
		DatasetID:    datasetID,
		Status:       domain.IngestionFailed,
		StartedAt:    started,
		CompletedAt:  &completed,
		ErrorMessage: cause.Error(),
		FileSize:     fileSize,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
