package jobstore

import (
	"context"
	"database/sql"
	"time"
)

// SeedSample loads a small, realistic data set relative to now. It covers
// every set and the VBCDF flow so a fresh sandbox renders something useful.
func SeedSample(ctx context.Context, db *sql.DB, now time.Time) error {
	at := func(d time.Duration) *time.Time {
		t := now.Add(-d).UTC().Truncate(time.Second)
		return &t
	}

	processed := []Record{
		{JobID: "7615134444", ApplicationCode: "VBCDF", StatusRaw: "COMPLETED", StartTime: at(5 * time.Hour), EndTime: at(4 * time.Hour), LoadTime: at(4 * time.Hour)},
		{JobID: "7615132203", ApplicationCode: "VBCDF", StatusRaw: "RUNNING", StartTime: at(150 * time.Minute), LoadTime: at(150 * time.Minute)},
		{JobID: "7615132203", ApplicationCode: "VBCDF", StatusRaw: "FAILED", StartTime: at(26 * time.Hour), EndTime: at(25 * time.Hour), LoadTime: at(25 * time.Hour)},
		{JobID: "8800100001", ApplicationCode: "CLMS", StatusRaw: "SUCCESS", StartTime: at(3 * time.Hour), EndTime: at(170 * time.Minute), LoadTime: at(170 * time.Minute)},
		{JobID: "8800100002", ApplicationCode: "CLMS", StatusRaw: "ERROR", StartTime: at(2 * time.Hour), EndTime: at(100 * time.Minute), LoadTime: at(100 * time.Minute)},
		{JobID: "8800100003", ApplicationCode: "CLMS", StatusRaw: "ACTIVE", StartTime: at(75 * time.Minute), LoadTime: at(75 * time.Minute)},
		{JobID: "9900200001", ApplicationCode: "RXHUB", StatusRaw: "in-progress", StartTime: at(20 * time.Minute), LoadTime: at(20 * time.Minute)},
	}
	waiting := []WaitingRecord{
		{JobID: "7615132210", ApplicationCode: "VBCDF", ExpectedTime: "06:00", LastRun: at(24 * time.Hour), Frequency: "Daily", Priority: "High", LoadTime: at(time.Hour)},
		{JobID: "9900200002", ApplicationCode: "RXHUB", ExpectedTime: "07:30", Frequency: "Daily", LoadTime: at(time.Hour)},
		// Re-queued after a processed run; resolution still reports the processed outcome.
		{JobID: "8800100001", ApplicationCode: "CLMS", ExpectedTime: "08:00", Frequency: "Hourly", Priority: "Low", LoadTime: at(30 * time.Minute)},
	}
	skipped := []SkippedRecord{
		{JobID: "761513677", ApplicationCode: "VBCDF", Reason: "upstream holiday calendar", LoadTime: at(time.Hour)},
	}

	for _, rec := range processed {
		if err := InsertProcessed(ctx, db, rec); err != nil {
			return err
		}
	}
	for _, rec := range waiting {
		if err := InsertWaiting(ctx, db, rec); err != nil {
			return err
		}
	}
	for _, rec := range skipped {
		if err := InsertSkipped(ctx, db, rec); err != nil {
			return err
		}
	}
	return nil
}
