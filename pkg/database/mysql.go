package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dev/bravebird/dashboard-verify/pkg/models"

	_ "github.com/go-sql-driver/mysql"
)

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS verification_runs (
	id                   VARCHAR(36)  NOT NULL PRIMARY KEY,
	temporal_workflow_id VARCHAR(255) NOT NULL DEFAULT '',
	temporal_run_id      VARCHAR(255) NOT NULL DEFAULT '',
	target_url           TEXT         NOT NULL,
	status               VARCHAR(32)  NOT NULL,
	final_url            TEXT         NOT NULL,
	page_title           VARCHAR(512) NOT NULL DEFAULT '',
	login_status         VARCHAR(32)  NOT NULL DEFAULT '',
	artifact_path        VARCHAR(1024) NOT NULL DEFAULT '',
	error_message        TEXT         NOT NULL,
	started_at           DATETIME(3)  NULL,
	completed_at         DATETIME(3)  NULL,
	created_at           DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	INDEX idx_verification_runs_created (created_at)
)`

// EnsureSchema creates the tables if they do not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ==================== Verification Runs ====================

const runColumns = `id, temporal_workflow_id, temporal_run_id, target_url, status,
		       final_url, page_title, login_status, artifact_path, error_message,
		       started_at, completed_at`

// CreateVerificationRun creates a new verification run
func (db *DB) CreateVerificationRun(ctx context.Context, run *models.VerificationRun) error {
	query := `
		INSERT INTO verification_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.TemporalWorkflowID,
		run.TemporalRunID,
		run.TargetURL,
		run.Status,
		run.FinalURL,
		run.PageTitle,
		run.LoginStatus,
		run.ArtifactPath,
		run.ErrorMessage,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// SetTemporalIDs records the Temporal execution of a run and marks it running
func (db *DB) SetTemporalIDs(ctx context.Context, id, workflowID, runID string) error {
	query := `
		UPDATE verification_runs
		SET temporal_workflow_id = ?, temporal_run_id = ?, status = ?, started_at = ?
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, workflowID, runID, models.StatusRunning, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// SaveVerificationResult stores the outcome of a run. Runs started outside
// the API have no row yet, so the row is created if missing.
func (db *DB) SaveVerificationResult(ctx context.Context, result models.VerificationResult) error {
	run := models.VerificationRun{
		ID:        result.RunID,
		TargetURL: result.TargetURL,
	}
	run.ApplyResult(result)

	query := `
		INSERT INTO verification_runs (` + runColumns + `)
		VALUES (?, '', '', ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			final_url = VALUES(final_url),
			page_title = VALUES(page_title),
			login_status = VALUES(login_status),
			artifact_path = VALUES(artifact_path),
			error_message = VALUES(error_message),
			started_at = COALESCE(started_at, VALUES(started_at)),
			completed_at = VALUES(completed_at)
	`

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.TargetURL,
		run.Status,
		run.FinalURL,
		run.PageTitle,
		run.LoginStatus,
		run.ArtifactPath,
		run.ErrorMessage,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// GetVerificationRun retrieves a verification run by ID
func (db *DB) GetVerificationRun(ctx context.Context, id string) (*models.VerificationRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM verification_runs
		WHERE id = ?
	`

	run, err := scanRun(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListVerificationRuns retrieves the most recent runs
func (db *DB) ListVerificationRuns(ctx context.Context, limit int) ([]models.VerificationRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM verification_runs
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.VerificationRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// UpdateVerificationRunStatus updates the status of a verification run
func (db *DB) UpdateVerificationRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	query := `
		UPDATE verification_runs
		SET status = ?, error_message = ?,
		    completed_at = CASE WHEN ? IN ('success', 'unverified', 'failed', 'canceled') THEN NOW(3) ELSE completed_at END
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, status, errorMsg, status, id)
	return err
}

// DeleteVerificationRun removes a run that never started
func (db *DB) DeleteVerificationRun(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM verification_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete verification run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.VerificationRun, error) {
	var run models.VerificationRun
	err := row.Scan(
		&run.ID,
		&run.TemporalWorkflowID,
		&run.TemporalRunID,
		&run.TargetURL,
		&run.Status,
		&run.FinalURL,
		&run.PageTitle,
		&run.LoginStatus,
		&run.ArtifactPath,
		&run.ErrorMessage,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
