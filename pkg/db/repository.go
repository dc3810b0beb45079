package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the run catalog
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("catalog_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("catalog_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open catalog")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("catalog_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("catalog_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new run record
func (r *Repository) Create(run *Run) error {
	slog.Info("catalog_create_run", "host", run.Host, "database", run.Database, "mode", run.Mode)

	query := `
		INSERT INTO runs (host, database_name, mode, label, backup_id, snapshot_name, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		run.Host, run.Database, run.Mode, run.Label,
		run.BackupID, run.SnapshotName, run.Status, run.ErrorMessage)
	if err != nil {
		slog.Error("catalog_insert_failed", "database", run.Database, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	run.ID = id

	slog.Info("catalog_run_created", "run_id", run.ID, "database", run.Database)
	return nil
}

// Update updates an existing run record
func (r *Repository) Update(run *Run) error {
	slog.Info("catalog_update_run", "run_id", run.ID, "status", run.Status)

	query := `
		UPDATE runs
		SET label = ?, backup_id = ?, snapshot_name = ?, status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		run.Label, run.BackupID, run.SnapshotName, run.Status, run.ErrorMessage, run.ID)
	if err != nil {
		slog.Error("catalog_update_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to update run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("run not found: id=%d", run.ID)
	}

	return nil
}

// List retrieves all runs, newest first
func (r *Repository) List() ([]*Run, error) {
	query := `
		SELECT id, host, database_name, mode, label, backup_id, snapshot_name, status, error_message, created_at, updated_at
		FROM runs ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("catalog_list_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var label, snapshotName, errorMessage sql.NullString
		var backupID sql.NullInt64

		err := rows.Scan(
			&run.ID, &run.Host, &run.Database, &run.Mode,
			&label, &backupID, &snapshotName, &run.Status, &errorMessage,
			&run.CreatedAt, &run.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		run.Label = label.String
		run.BackupID = backupID.Int64
		run.SnapshotName = snapshotName.String
		run.ErrorMessage = errorMessage.String

		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("catalog_list_complete", "run_count", len(runs))
	return runs, nil
}
