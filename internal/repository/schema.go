package repository

// Schema definitions for the fiscalwatch database.
// Compatible with both SQLite and PostgreSQL.

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    rule_type TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    risk_score INTEGER NOT NULL,
    affected_records TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    is_investigated INTEGER NOT NULL DEFAULT 0,
    investigated_at TIMESTAMP,
    investigator TEXT,
    notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_alerts_rule_type ON alerts(rule_type);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_risk ON alerts(risk_score);
CREATE INDEX IF NOT EXISTS idx_alerts_investigated ON alerts(is_investigated);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    dataset_id TEXT NOT NULL,
    dataset_type TEXT NOT NULL,
    record_count INTEGER NOT NULL,
    rule_results TEXT NOT NULL,
    alert_count INTEGER NOT NULL,
    process_ms INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_dataset ON evaluations(dataset_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_created ON evaluations(created_at);
`

const schemaIngestionStatus = `
CREATE TABLE IF NOT EXISTS ingestion_status (
    dataset_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    error_message TEXT,
    records_processed INTEGER NOT NULL DEFAULT 0,
    file_size INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_ingestion_status ON ingestion_status(status);
`

// AllSchemas returns all schema definitions in creation order.
func AllSchemas() []string {
	return []string{
		schemaAlerts,
		schemaEvaluations,
		schemaIngestionStatus,
	}
}
