package jobmetrics

import (
	"math"
	"time"
)

// Runtime returns whole elapsed minutes from start to end, or to now while the
// job has no end time. ok is false when start is absent; callers must report
// the runtime as not available instead of computing against a missing value.
//
// Minutes are truncated. End times before start (clock skew between
// schedulers) clamp to zero.
func Runtime(start, end *time.Time, now time.Time) (minutes int, ok bool) {
	if start == nil || start.IsZero() {
		return 0, false
	}
	stop := now
	if end != nil && !end.IsZero() {
		stop = *end
	}
	d := stop.Sub(*start)
	if d < 0 {
		return 0, true
	}
	return int(d / time.Minute), true
}

// OverrunPercent is how far elapsed exceeds baseline, as a rounded percentage.
// It is never negative; a non-positive baseline yields zero.
func OverrunPercent(elapsedMinutes, baselineMinutes int) int {
	if baselineMinutes <= 0 {
		return 0
	}
	pct := math.Round((float64(elapsedMinutes)/float64(baselineMinutes) - 1) * 100)
	if pct < 0 {
		return 0
	}
	return int(pct)
}

// Window optionally restricts reads to a trailing number of days.
type Window struct {
	// Days > 0 keeps rows loaded within the last Days days. Zero is unrestricted.
	Days int
}

// Since returns the lower load-time bound for now, or nil when unrestricted.
func (w Window) Since(now time.Time) *time.Time {
	if w.Days <= 0 {
		return nil
	}
	t := now.Add(-time.Duration(w.Days) * 24 * time.Hour).UTC()
	return &t
}
