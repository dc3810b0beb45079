package db

// Schema defines the SQLite schema for the local run catalog: one row per
// snapshot orchestration run.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    host TEXT NOT NULL,
    database_name TEXT NOT NULL,
    mode TEXT NOT NULL CHECK(mode IN ('application-consistent', 'crash-consistent')),
    label TEXT,
    backup_id INTEGER,
    snapshot_name TEXT,
    status TEXT NOT NULL CHECK(status IN ('running', 'succeeded', 'failed')),
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_database ON runs(database_name);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Run status constants
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Mode constants, mirrored from the workflow package to keep the schema
// check self-contained.
const (
	ModeApplicationConsistent = "application-consistent"
	ModeCrashConsistent       = "crash-consistent"
)

// Run represents one snapshot orchestration run
type Run struct {
	ID           int64
	Host         string
	Database     string
	Mode         string
	Label        string
	BackupID     int64
	SnapshotName string
	Status       string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
