// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAlert stores an alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.ID == "" {
		return fmt.Errorf("%w: alert ID is required", ErrInvalidInput)
	}

	affected, _ := json.Marshal(alert.AffectedRecords)

	query := `
		INSERT INTO alerts (
			id, rule_type, title, description, risk_score,
			affected_records, created_at, is_investigated,
			investigated_at, investigator, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, string(alert.RuleType), alert.Title, alert.Description,
		alert.RiskScore, string(affected), alert.CreatedAt,
		boolToInt(alert.IsInvestigated), alert.InvestigatedAt,
		alert.Investigator, alert.Notes,
	)
	return err
}

// GetAlert retrieves an alert by ID.
func (r *SQLRepository) GetAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	query := `
		SELECT id, rule_type, title, description, risk_score,
			   affected_records, created_at, is_investigated,
			   investigated_at, investigator, notes
		FROM alerts
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), alertID)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: alert %s", ErrNotFound, alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// ListAlerts returns alerts created at or after since, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, since time.Time, limit int) ([]*domain.Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, rule_type, title, description, risk_score,
			   affected_records, created_at, is_investigated,
			   investigated_at, investigator, notes
		FROM alerts
		WHERE created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// MarkInvestigated records the investigation outcome of an alert.
func (r *SQLRepository) MarkInvestigated(ctx context.Context, alertID, investigator, notes string) error {
	if investigator == "" {
		return fmt.Errorf("%w: investigator is required", ErrInvalidInput)
	}

	query := `
		UPDATE alerts
		SET is_investigated = 1, investigated_at = ?, investigator = ?, notes = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), investigator, notes, alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert investigated: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: alert %s", ErrNotFound, alertID)
	}
	return nil
}

// SaveEvaluation stores an evaluation record.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, eval *domain.Evaluation) error {
	if eval.ID == "" {
		return fmt.Errorf("%w: evaluation ID is required", ErrInvalidInput)
	}

	results, err := json.Marshal(eval.RuleResults)
	if err != nil {
		return fmt.Errorf("failed to marshal rule results: %w", err)
	}

	query := `
		INSERT INTO evaluations (
			id, dataset_id, dataset_type, record_count,
			rule_results, alert_count, process_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, eval.DatasetID, string(eval.DatasetType), eval.RecordCount,
		string(results), eval.AlertCount, eval.ProcessMs, eval.CreatedAt,
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID.
func (r *SQLRepository) GetEvaluation(ctx context.Context, evalID string) (*domain.Evaluation, error) {
	query := `
		SELECT id, dataset_id, dataset_type, record_count,
			   rule_results, alert_count, process_ms, created_at
		FROM evaluations
		WHERE id = ?
	`

	var (
		eval        domain.Evaluation
		datasetType string
		results     string
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query), evalID).Scan(
		&eval.ID, &eval.DatasetID, &datasetType, &eval.RecordCount,
		&results, &eval.AlertCount, &eval.ProcessMs, &eval.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: evaluation %s", ErrNotFound, evalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	eval.DatasetType = domain.DatasetType(datasetType)
	if err := json.Unmarshal([]byte(results), &eval.RuleResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule results: %w", err)
	}
	return &eval, nil
}

// UpsertIngestionStatus inserts or replaces the status row for a dataset.
func (r *SQLRepository) UpsertIngestionStatus(ctx context.Context, status *domain.IngestionStatus) error {
	if status.DatasetID == "" {
		return fmt.Errorf("%w: dataset ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO ingestion_status (
			dataset_id, status, started_at, completed_at,
			error_message, records_processed, file_size
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dataset_id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			error_message = excluded.error_message,
			records_processed = excluded.records_processed,
			file_size = excluded.file_size
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		status.DatasetID, status.Status, status.StartedAt, status.CompletedAt,
		status.ErrorMessage, status.RecordsProcessed, status.FileSize,
	)
	return err
}

// GetIngestionStatus retrieves the status row for a dataset.
func (r *SQLRepository) GetIngestionStatus(ctx context.Context, datasetID string) (*domain.IngestionStatus, error) {
	query := `
		SELECT dataset_id, status, started_at, completed_at,
			   error_message, records_processed, file_size
		FROM ingestion_status
		WHERE dataset_id = ?
	`

	var (
		st          domain.IngestionStatus
		completedAt sql.NullTime
		errMsg      sql.NullString
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query), datasetID).Scan(
		&st.DatasetID, &st.Status, &st.StartedAt, &completedAt,
		&errMsg, &st.RecordsProcessed, &st.FileSize,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ingestion status %s", ErrNotFound, datasetID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion status: %w", err)
	}

	if completedAt.Valid {
		st.CompletedAt = &completedAt.Time
	}
	st.ErrorMessage = errMsg.String
	return &st, nil
}

// DashboardMetrics aggregates alert activity since the given time.
func (r *SQLRepository) DashboardMetrics(ctx context.Context, since time.Time) (*domain.DashboardMetrics, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN risk_score >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_investigated = 1 THEN 1 ELSE 0 END), 0)
		FROM alerts
		WHERE created_at >= ?
	`

	var m domain.DashboardMetrics
	err := r.db.QueryRowContext(ctx, r.rebind(query), domain.CriticalRiskScore, since).Scan(
		&m.TotalAlerts, &m.CriticalAlerts, &m.InvestigatedAlerts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard metrics: %w", err)
	}

	if m.TotalAlerts > 0 {
		m.InvestigationRate = float64(m.InvestigatedAlerts) / float64(m.TotalAlerts) * 100
	}
	m.WindowDays = int(time.Since(since).Hours() / 24)
	return &m, nil
}

// Ping verifies database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var (
		alert          domain.Alert
		ruleType       string
		affected       string
		investigated   int
		investigatedAt sql.NullTime
		investigator   sql.NullString
		notes          sql.NullString
	)
	err := row.Scan(
		&alert.ID, &ruleType, &alert.Title, &alert.Description,
		&alert.RiskScore, &affected, &alert.CreatedAt, &investigated,
		&investigatedAt, &investigator, &notes,
	)
	if err != nil {
		return nil, err
	}

	alert.RuleType = domain.RuleType(ruleType)
	alert.IsInvestigated = investigated != 0
	if investigatedAt.Valid {
		alert.InvestigatedAt = &investigatedAt.Time
	}
	alert.Investigator = investigator.String
	alert.Notes = notes.String
	if err := json.Unmarshal([]byte(affected), &alert.AffectedRecords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal affected records: %w", err)
	}
	return &alert, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to the $N form PostgreSQL expects.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
			continue
		}
		result = append(result, query[i])
	}
	return string(result)
}
