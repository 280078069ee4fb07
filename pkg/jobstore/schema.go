package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const SchemaVersion = 1

// Migrate creates the sandbox schema in a SQLite database.
//
// Production record stores are owned by the scheduler that writes them; this
// exists so local sandboxes and tests have the same three tables to read.
// Timestamps are RFC 3339 text in UTC.
func Migrate(ctx context.Context, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS schedule_processed (
			job_id TEXT NOT NULL,
			aplctn_cd TEXT,
			job_stts TEXT,
			job_strt_tm_utc TEXT,
			-- job_end_tm_utc stays NULL while the job is running.
			job_end_tm_utc TEXT,
			edl_load_dtm TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_processed_job ON schedule_processed(job_id, edl_load_dtm);`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_processed_app ON schedule_processed(aplctn_cd);`,

		`CREATE TABLE IF NOT EXISTS schedule_waiting (
			job_id TEXT NOT NULL,
			aplctn_cd TEXT,
			expected_time TEXT,
			last_run TEXT,
			frequency TEXT,
			priority TEXT,
			edl_load_dtm TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_waiting_job ON schedule_waiting(job_id);`,

		`CREATE TABLE IF NOT EXISTS schedule_skipped (
			job_id TEXT NOT NULL,
			aplctn_cd TEXT,
			skip_reason TEXT,
			edl_load_dtm TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_skipped_job ON schedule_skipped(job_id);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
		return fmt.Errorf("update schema_version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// InsertProcessed writes a processed row into a sandbox database.
func InsertProcessed(ctx context.Context, db *sql.DB, rec Record) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO schedule_processed (job_id, aplctn_cd, job_stts, job_strt_tm_utc, job_end_tm_utc, edl_load_dtm)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.ApplicationCode, rec.StatusRaw,
		formatSandboxTime(rec.StartTime), formatSandboxTime(rec.EndTime), formatSandboxTime(rec.LoadTime))
	if err != nil {
		return fmt.Errorf("insert processed %s: %w", rec.JobID, err)
	}
	return nil
}

// InsertWaiting writes a waiting row into a sandbox database.
func InsertWaiting(ctx context.Context, db *sql.DB, rec WaitingRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO schedule_waiting (job_id, aplctn_cd, expected_time, last_run, frequency, priority, edl_load_dtm)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.ApplicationCode, nullIfEmpty(rec.ExpectedTime), formatSandboxTime(rec.LastRun),
		nullIfEmpty(rec.Frequency), nullIfEmpty(rec.Priority), formatSandboxTime(rec.LoadTime))
	if err != nil {
		return fmt.Errorf("insert waiting %s: %w", rec.JobID, err)
	}
	return nil
}

// InsertSkipped writes a skipped row into a sandbox database.
func InsertSkipped(ctx context.Context, db *sql.DB, rec SkippedRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO schedule_skipped (job_id, aplctn_cd, skip_reason, edl_load_dtm)
		 VALUES (?, ?, ?, ?)`,
		rec.JobID, rec.ApplicationCode, nullIfEmpty(rec.Reason), formatSandboxTime(rec.LoadTime))
	if err != nil {
		return fmt.Errorf("insert skipped %s: %w", rec.JobID, err)
	}
	return nil
}

func formatSandboxTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
