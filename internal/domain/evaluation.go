package domain

import "time"

// Evaluation records one engine pass over a batch: which detectors fired,
// how many alerts were materialized and how long the pass took.
type Evaluation struct {
	ID          string       `json:"id"`
	DatasetID   string       `json:"dataset_id"`
	DatasetType DatasetType  `json:"dataset_type"`
	RecordCount int          `json:"record_count"`
	RuleResults []RuleResult `json:"rule_results"`
	AlertCount  int          `json:"alert_count"`
	ProcessMs   int64        `json:"process_ms"`
	CreatedAt   time.Time    `json:"created_at"`
}

// IngestionStatus tracks one webhook-delivered dataset through the pipeline.
type IngestionStatus struct {
	DatasetID        string     `json:"dataset_id"`
	Status           string     `json:"status"` // "processing", "completed", "failed"
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	RecordsProcessed int        `json:"records_processed"`
	FileSize         int64      `json:"file_size"`
}

// Ingestion status values.
const (
	IngestionProcessing = "processing"
	IngestionCompleted  = "completed"
	IngestionFailed     = "failed"
)

// DashboardMetrics summarizes recent alert activity for the audit dashboard.
type DashboardMetrics struct {
	TotalAlerts        int     `json:"total_alerts"`
	CriticalAlerts     int     `json:"critical_alerts"`
	InvestigatedAlerts int     `json:"investigated_alerts"`
	InvestigationRate  float64 `json:"investigation_rate"` // percent
	WindowDays         int     `json:"window_days"`
}
