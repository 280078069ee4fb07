// Package jobmetrics computes fleet-wide counts and per-job derived values
// (runtime, overrun) from the job record store.
//
// Nothing here is cached: every call re-reads the store through the Source it
// is handed, and every time-derived value uses the injected clock, so output
// is deterministic for fixed records and a fixed now.
package jobmetrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/3leaps/jobscope/pkg/jobstatus"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

// Defaults for Config. The thresholds and baseline are operational
// placeholders, not statistics derived from run history.
const (
	DefaultStatsLongRunningThreshold = 2 * time.Hour
	DefaultListLongRunningThreshold  = time.Hour
	DefaultBaseline                  = 90 * time.Minute
	DefaultRecentLimit               = 10
	DefaultMaxLimit                  = 500
)

// Source is the read surface the aggregator needs. jobstore.Session satisfies it.
type Source interface {
	Applications(ctx context.Context, since *time.Time) ([]string, error)
	DistinctJobCount(ctx context.Context, since *time.Time) (int, error)
	ListProcessed(ctx context.Context, q jobstore.ProcessedQuery) ([]jobstore.Record, error)
	ListWaiting(ctx context.Context, since *time.Time) ([]jobstore.WaitingRecord, error)
	CountWaiting(ctx context.Context, since *time.Time) (int, error)
}

var _ Source = (*jobstore.Session)(nil)

// Config holds the tunable thresholds.
type Config struct {
	// StatsLongRunningThreshold decides the longRunningJobs count in Snapshot.
	StatsLongRunningThreshold time.Duration

	// ListLongRunningThreshold decides membership in the LongRunning listing.
	ListLongRunningThreshold time.Duration

	// DefaultBaseline is the expected runtime used for overrun when a job has
	// no entry in Baselines.
	DefaultBaseline time.Duration

	// Baselines holds per-job expected runtimes.
	Baselines map[string]time.Duration

	RecentLimit int
	MaxLimit    int
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	return Config{
		StatsLongRunningThreshold: DefaultStatsLongRunningThreshold,
		ListLongRunningThreshold:  DefaultListLongRunningThreshold,
		DefaultBaseline:           DefaultBaseline,
		RecentLimit:               DefaultRecentLimit,
		MaxLimit:                  DefaultMaxLimit,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StatsLongRunningThreshold <= 0 {
		c.StatsLongRunningThreshold = d.StatsLongRunningThreshold
	}
	if c.ListLongRunningThreshold <= 0 {
		c.ListLongRunningThreshold = d.ListLongRunningThreshold
	}
	if c.DefaultBaseline <= 0 {
		c.DefaultBaseline = d.DefaultBaseline
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = d.RecentLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = d.MaxLimit
	}
	return c
}

// Aggregator computes snapshots and listings.
type Aggregator struct {
	cfg      Config
	resolver *jobstatus.Resolver
	now      func() time.Time
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now. Tests pin it for deterministic output.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// New returns an Aggregator. Zero-valued config fields take defaults.
func New(cfg Config, resolver *jobstatus.Resolver, opts ...Option) *Aggregator {
	if resolver == nil {
		resolver = jobstatus.NewResolver(nil)
	}
	a := &Aggregator{
		cfg:      cfg.withDefaults(),
		resolver: resolver,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Now returns the aggregator's clock reading in UTC.
func (a *Aggregator) Now() time.Time {
	return a.now().UTC()
}

// Snapshot is the fleet-wide summary.
type Snapshot struct {
	Applications    []string
	TotalJobs       int
	RunningJobs     int
	FailedJobs      int
	SucceededJobs   int
	LongRunningJobs int
	MissingJobs     int

	Now    time.Time
	Window Window
}

// Snapshot computes fleet counts. Any failed read fails the whole snapshot.
//
// Running, failed and succeeded count jobs by the canonical status of their
// most recent processed row, so a job with historical failures and a later
// success counts once, as succeeded.
func (a *Aggregator) Snapshot(ctx context.Context, src Source, w Window) (*Snapshot, error) {
	now := a.Now()
	since := w.Since(now)

	apps, err := src.Applications(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("snapshot applications: %w", err)
	}
	total, err := src.DistinctJobCount(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("snapshot total: %w", err)
	}
	latest, err := src.ListProcessed(ctx, jobstore.ProcessedQuery{Since: since, LatestOnly: true})
	if err != nil {
		return nil, fmt.Errorf("snapshot processed: %w", err)
	}
	missing, err := src.CountWaiting(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("snapshot waiting: %w", err)
	}

	snap := &Snapshot{
		Applications: apps,
		TotalJobs:    total,
		MissingJobs:  missing,
		Now:          now,
		Window:       w,
	}
	for _, rec := range latest {
		switch a.resolver.Classify(rec) {
		case jobstatus.StatusRunning:
			snap.RunningJobs++
			if a.exceeds(rec, now, a.cfg.StatsLongRunningThreshold) {
				snap.LongRunningJobs++
			}
		case jobstatus.StatusFailed:
			snap.FailedJobs++
		case jobstatus.StatusSucceeded:
			snap.SucceededJobs++
		}
	}
	return snap, nil
}

func (a *Aggregator) exceeds(rec jobstore.Record, now time.Time, threshold time.Duration) bool {
	if rec.StartTime == nil {
		return false
	}
	return now.Sub(*rec.StartTime) > threshold
}

// JobRun is a processed row with its canonical status and runtime.
type JobRun struct {
	Record jobstore.Record
	Status jobstatus.Status

	// RuntimeMinutes is valid only when RuntimeKnown is true.
	RuntimeMinutes int
	RuntimeKnown   bool
}

func (a *Aggregator) jobRun(rec jobstore.Record, now time.Time) JobRun {
	minutes, ok := Runtime(rec.StartTime, rec.EndTime, now)
	return JobRun{
		Record:         rec,
		Status:         a.resolver.Classify(rec),
		RuntimeMinutes: minutes,
		RuntimeKnown:   ok,
	}
}

// ClampLimit applies the default and the ceiling to a caller-supplied limit.
func (a *Aggregator) ClampLimit(limit int) int {
	if limit <= 0 {
		return a.cfg.RecentLimit
	}
	if limit > a.cfg.MaxLimit {
		return a.cfg.MaxLimit
	}
	return limit
}

// Recent returns the last limit processed rows by load time.
func (a *Aggregator) Recent(ctx context.Context, src Source, limit int) ([]JobRun, error) {
	now := a.Now()
	recs, err := src.ListProcessed(ctx, jobstore.ProcessedQuery{Limit: a.ClampLimit(limit)})
	if err != nil {
		return nil, fmt.Errorf("recent jobs: %w", err)
	}
	out := make([]JobRun, 0, len(recs))
	for _, rec := range recs {
		out = append(out, a.jobRun(rec, now))
	}
	return out, nil
}

// ByApplication returns every processed row for app, most recent load first.
func (a *Aggregator) ByApplication(ctx context.Context, src Source, app string) ([]JobRun, error) {
	now := a.Now()
	recs, err := src.ListProcessed(ctx, jobstore.ProcessedQuery{ApplicationCode: app})
	if err != nil {
		return nil, fmt.Errorf("jobs for %s: %w", app, err)
	}
	out := make([]JobRun, 0, len(recs))
	for _, rec := range recs {
		out = append(out, a.jobRun(rec, now))
	}
	return out, nil
}

// LongRunningJob is a running job past the listing threshold.
type LongRunningJob struct {
	Record          jobstore.Record
	ElapsedMinutes  int
	BaselineMinutes int
	OverrunPercent  int

	// BaselineApproximate is true because baselines are configured values,
	// not averages computed from run history.
	BaselineApproximate bool
}

// LongRunning lists jobs whose latest processed row is RUNNING and whose
// elapsed time exceeds ListLongRunningThreshold, oldest start first.
func (a *Aggregator) LongRunning(ctx context.Context, src Source) ([]LongRunningJob, error) {
	now := a.Now()
	latest, err := src.ListProcessed(ctx, jobstore.ProcessedQuery{LatestOnly: true})
	if err != nil {
		return nil, fmt.Errorf("long running jobs: %w", err)
	}

	out := []LongRunningJob{}
	for _, rec := range latest {
		if a.resolver.Classify(rec) != jobstatus.StatusRunning {
			continue
		}
		if !a.exceeds(rec, now, a.cfg.ListLongRunningThreshold) {
			continue
		}
		elapsed, _ := Runtime(rec.StartTime, nil, now)
		baseline := a.baselineMinutes(rec.JobID)
		out = append(out, LongRunningJob{
			Record:              rec,
			ElapsedMinutes:      elapsed,
			BaselineMinutes:     baseline,
			OverrunPercent:      OverrunPercent(elapsed, baseline),
			BaselineApproximate: true,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := *out[i].Record.StartTime, *out[j].Record.StartTime
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return out[i].Record.JobID < out[j].Record.JobID
	})
	return out, nil
}

func (a *Aggregator) baselineMinutes(jobID string) int {
	if d, ok := a.cfg.Baselines[jobID]; ok && d > 0 {
		return int(d / time.Minute)
	}
	return int(a.cfg.DefaultBaseline / time.Minute)
}

// Missing returns waiting rows, highest priority first, then earliest
// expected time. Empty optional fields are reported as "".
func (a *Aggregator) Missing(ctx context.Context, src Source) ([]jobstore.WaitingRecord, error) {
	recs, err := src.ListWaiting(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("missing jobs: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		pi, pj := PriorityRank(recs[i].Priority), PriorityRank(recs[j].Priority)
		if pi != pj {
			return pi > pj
		}
		ei, ej := recs[i].ExpectedTime, recs[j].ExpectedTime
		if (ei == "") != (ej == "") {
			return ej == ""
		}
		if ei != ej {
			return ei < ej
		}
		return recs[i].JobID < recs[j].JobID
	})
	return recs, nil
}

// PriorityRank orders waiting-set priorities. Unset priority is treated as
// medium, matching how it is displayed; unrecognized values rank lowest.
func PriorityRank(p string) int {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "critical", "p0":
		return 4
	case "high", "p1":
		return 3
	case "", "medium", "normal", "p2":
		return 2
	case "low", "p3":
		return 1
	default:
		return 0
	}
}

// JobsFilter selects rows for Jobs.
type JobsFilter struct {
	// Status keeps only jobs with this canonical status. Empty keeps all.
	Status jobstatus.Status
	Window Window
}

// JobsListing is the filtered job table with a status summary.
type JobsListing struct {
	Total int
	Jobs  []JobRun

	// Summary counts canonical statuses across the window before the status
	// filter is applied.
	Summary map[jobstatus.Status]int
}

// Jobs lists the latest processed row of every job in the window.
func (a *Aggregator) Jobs(ctx context.Context, src Source, f JobsFilter) (*JobsListing, error) {
	now := a.Now()
	latest, err := src.ListProcessed(ctx, jobstore.ProcessedQuery{Since: f.Window.Since(now), LatestOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	listing := &JobsListing{
		Jobs:    []JobRun{},
		Summary: make(map[jobstatus.Status]int),
	}
	for _, rec := range latest {
		run := a.jobRun(rec, now)
		listing.Summary[run.Status]++
		if f.Status != "" && run.Status != f.Status {
			continue
		}
		listing.Jobs = append(listing.Jobs, run)
	}
	listing.Total = len(listing.Jobs)
	return listing, nil
}
