package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const processedColumns = `job_id, aplctn_cd, job_stts, job_strt_tm_utc, job_end_tm_utc, edl_load_dtm`

// recencyOrder sorts the most recent load first; rows without a load time
// sort last on every dialect.
func (s *Session) recencyOrder() string {
	load, start := s.timeExpr("edl_load_dtm"), s.timeExpr("job_strt_tm_utc")
	return `CASE WHEN ` + load + ` IS NULL THEN 1 ELSE 0 END, ` + load + ` DESC,
	CASE WHEN ` + start + ` IS NULL THEN 1 ELSE 0 END, ` + start + ` DESC`
}

// ProcessedQuery filters reads from the processed set.
type ProcessedQuery struct {
	// ApplicationCode limits rows to one application. Optional.
	ApplicationCode string

	// Since limits rows to edl_load_dtm >= Since. Optional.
	Since *time.Time

	// LatestOnly keeps only the most recent row per job_id.
	LatestOnly bool

	// Limit caps the number of rows. Zero means no limit.
	Limit int
}

// LatestProcessed returns the most recent processed row for jobID, or nil
// when the job has never been processed.
func (s *Session) LatestProcessed(ctx context.Context, jobID string) (*Record, error) {
	row := s.queryRow(ctx,
		`SELECT `+processedColumns+`
		 FROM `+TableProcessed+`
		 WHERE job_id = ?
		 ORDER BY `+s.recencyOrder()+`
		 LIMIT 1`, jobID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "latest processed", Err: err}
	}
	return rec, nil
}

// InWaiting reports whether jobID has an entry in the waiting set.
func (s *Session) InWaiting(ctx context.Context, jobID string) (bool, error) {
	return s.exists(ctx, "waiting lookup", TableWaiting, jobID)
}

// InSkipped reports whether jobID has an entry in the skipped set.
func (s *Session) InSkipped(ctx context.Context, jobID string) (bool, error) {
	return s.exists(ctx, "skipped lookup", TableSkipped, jobID)
}

func (s *Session) exists(ctx context.Context, op, table, jobID string) (bool, error) {
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM `+table+` WHERE job_id = ? LIMIT 1`, jobID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Op: op, Err: err}
	}
	return true, nil
}

// Applications returns the distinct application codes across all three sets.
func (s *Session) Applications(ctx context.Context, since *time.Time) ([]string, error) {
	var args []any
	parts := make([]string, 0, 3)
	for _, table := range []string{TableProcessed, TableWaiting, TableSkipped} {
		where := " WHERE aplctn_cd IS NOT NULL" + s.sinceClause(since, &args)
		parts = append(parts, `SELECT aplctn_cd FROM `+table+where)
	}
	query := strings.Join(parts, " UNION ") + " ORDER BY 1"

	rows, err := s.query(ctx, "list applications", query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	apps := []string{}
	for rows.Next() {
		var app sql.NullString
		if err := rows.Scan(&app); err != nil {
			return nil, &StoreError{Op: "list applications", Err: err}
		}
		if v := nullString(app); v != "" {
			apps = append(apps, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list applications", Err: err}
	}
	return apps, nil
}

// DistinctJobCount counts job ids across the union of all three sets.
// A job present in several sets, or several times in one, counts once.
func (s *Session) DistinctJobCount(ctx context.Context, since *time.Time) (int, error) {
	var args []any
	parts := make([]string, 0, 3)
	for _, table := range []string{TableProcessed, TableWaiting, TableSkipped} {
		where := " WHERE job_id IS NOT NULL" + s.sinceClause(since, &args)
		parts = append(parts, `SELECT job_id FROM `+table+where)
	}
	query := `SELECT COUNT(*) FROM (` + strings.Join(parts, " UNION ") + `) all_jobs`

	var total int
	if err := s.queryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, &StoreError{Op: "count jobs", Err: err}
	}
	return total, nil
}

// ListProcessed returns processed rows, most recent load first.
func (s *Session) ListProcessed(ctx context.Context, q ProcessedQuery) ([]Record, error) {
	var args []any
	where := " WHERE 1=1"
	if q.ApplicationCode != "" {
		where += " AND aplctn_cd = ?"
		args = append(args, q.ApplicationCode)
	}
	where += s.sinceClause(q.Since, &args)
	order := s.recencyOrder()

	var query string
	if q.LatestOnly {
		query = `SELECT ` + processedColumns + ` FROM (
			SELECT ` + processedColumns + `,
				ROW_NUMBER() OVER (PARTITION BY job_id ORDER BY ` + order + `) AS rn
			FROM ` + TableProcessed + where + `
		) latest
		WHERE rn = 1
		ORDER BY ` + order + `, job_id`
	} else {
		query = `SELECT ` + processedColumns + ` FROM ` + TableProcessed + where +
			` ORDER BY ` + order + `, job_id`
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.query(ctx, "list processed", query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &StoreError{Op: "list processed", Err: err}
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list processed", Err: err}
	}
	return out, nil
}

// ListWaiting returns every row in the waiting set in job_id order.
// Presentation ordering (priority, expected time) is applied by callers.
func (s *Session) ListWaiting(ctx context.Context, since *time.Time) ([]WaitingRecord, error) {
	var args []any
	query := `SELECT job_id, aplctn_cd, expected_time, last_run, frequency, priority, edl_load_dtm
		FROM ` + TableWaiting + ` WHERE 1=1` + s.sinceClause(since, &args) + ` ORDER BY job_id`

	rows, err := s.query(ctx, "list waiting", query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []WaitingRecord{}
	for rows.Next() {
		var (
			jobID, app, expected, lastRun, frequency, priority, loaded sql.NullString
		)
		if err := rows.Scan(&jobID, &app, &expected, &lastRun, &frequency, &priority, &loaded); err != nil {
			return nil, &StoreError{Op: "list waiting", Err: err}
		}
		rec := WaitingRecord{
			JobID:           nullString(jobID),
			ApplicationCode: nullString(app),
			ExpectedTime:    nullString(expected),
			Frequency:       nullString(frequency),
			Priority:        nullString(priority),
		}
		if rec.LastRun, err = parseRecordTime(lastRun); err != nil {
			return nil, &StoreError{Op: "list waiting", Err: err}
		}
		if rec.LoadTime, err = parseRecordTime(loaded); err != nil {
			return nil, &StoreError{Op: "list waiting", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list waiting", Err: err}
	}
	return out, nil
}

// CountWaiting counts rows in the waiting set.
func (s *Session) CountWaiting(ctx context.Context, since *time.Time) (int, error) {
	var args []any
	query := `SELECT COUNT(*) FROM ` + TableWaiting + ` WHERE 1=1` + s.sinceClause(since, &args)

	var n int
	if err := s.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, &StoreError{Op: "count waiting", Err: err}
	}
	return n, nil
}

func (s *Session) sinceClause(since *time.Time, args *[]any) string {
	if since == nil || since.IsZero() {
		return ""
	}
	*args = append(*args, s.timeArg(*since))
	return " AND " + s.timeExpr("edl_load_dtm") + " >= " + s.timeExpr("?")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		jobID, app, status, started, ended, loaded sql.NullString
	)
	if err := row.Scan(&jobID, &app, &status, &started, &ended, &loaded); err != nil {
		return nil, err
	}

	rec := &Record{
		JobID:           nullString(jobID),
		ApplicationCode: nullString(app),
		StatusRaw:       nullString(status),
	}
	var err error
	if rec.StartTime, err = parseRecordTime(started); err != nil {
		return nil, err
	}
	if rec.EndTime, err = parseRecordTime(ended); err != nil {
		return nil, err
	}
	if rec.LoadTime, err = parseRecordTime(loaded); err != nil {
		return nil, err
	}
	return rec, nil
}
