package handlers

import (
	"fmt"
	"time"

	"github.com/3leaps/jobscope/pkg/jobflow"
	"github.com/3leaps/jobscope/pkg/jobmetrics"
	"github.com/3leaps/jobscope/pkg/jobstatus"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

// Placeholders for absent values in listings.
const (
	notAvailable     = "N/A"
	unknownFrequency = "Unknown"
	defaultPriority  = "Medium"
)

type statsPayload struct {
	Applications    []string `json:"applications"`
	TotalJobs       int      `json:"totalJobs"`
	RunningJobs     int      `json:"runningJobs"`
	FailedJobs      int      `json:"failedJobs"`
	SuccessfulJobs  int      `json:"successfulJobs"`
	LongRunningJobs int      `json:"longRunningJobs"`
	MissingJobs     int      `json:"missingJobs"`
}

type jobRunPayload struct {
	JobID           string  `json:"job_id"`
	StatusRaw       string  `json:"job_stts"`
	Status          string  `json:"status"`
	LoadTime        *string `json:"edl_load_dtm"`
	StartTime       *string `json:"job_strt_tm_utc"`
	EndTime         *string `json:"job_end_tm_utc"`
	ApplicationCode string  `json:"aplctn_cd"`
	Runtime         string  `json:"runtime"`
	JobName         string  `json:"job_name"`
}

type longRunningPayload struct {
	JobID                 string  `json:"job_id"`
	JobName               string  `json:"job_name"`
	ApplicationCode       string  `json:"aplctn_cd"`
	CurrentRuntime        string  `json:"current_runtime"`
	AvgRuntime            string  `json:"avg_runtime"`
	PercentageOver        string  `json:"percentage_over"`
	StartTime             *string `json:"job_strt_tm_utc"`
	AvgRuntimeApproximate bool    `json:"avg_runtime_approximate"`
}

type missingPayload struct {
	JobID           string `json:"job_id"`
	JobName         string `json:"job_name"`
	ApplicationCode string `json:"aplctn_cd"`
	ExpectedTime    string `json:"expected_time"`
	LastRun         string `json:"last_run"`
	Frequency       string `json:"frequency"`
	Priority        string `json:"priority"`
}

type stagePayload struct {
	JobID  string `json:"job_id"`
	Name   string `json:"name"`
	Status string `json:"job_stts"`
}

type flowPayload struct {
	Name            string         `json:"name"`
	ApplicationCode string         `json:"aplctn_cd"`
	Stages          []stagePayload `json:"stages"`
}

type listedJobPayload struct {
	JobID           string  `json:"job_id"`
	ApplicationCode string  `json:"aplctn_cd"`
	Status          string  `json:"status"`
	StatusRaw       string  `json:"job_stts"`
	StartTime       *string `json:"start_time"`
	EndTime         *string `json:"end_time"`
	DurationMinutes *int    `json:"duration_minutes"`
}

type jobsListingPayload struct {
	Total         int                `json:"total"`
	Jobs          []listedJobPayload `json:"jobs"`
	StatusSummary map[string]int     `json:"status_summary"`
}

type statusPayload struct {
	JobID  string `json:"job_id"`
	Status string `json:"job_stts"`
	Source string `json:"source"`
}

type signalPayload struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	SignalID string `json:"signal_id"`
}

type alertBody struct {
	Message string `json:"message"`
}

func timestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func minutesText(minutes int, ok bool) string {
	if !ok {
		return notAvailable
	}
	return fmt.Sprintf("%dmin", minutes)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func newStatsPayload(s *jobmetrics.Snapshot) statsPayload {
	apps := s.Applications
	if apps == nil {
		apps = []string{}
	}
	return statsPayload{
		Applications:    apps,
		TotalJobs:       s.TotalJobs,
		RunningJobs:     s.RunningJobs,
		FailedJobs:      s.FailedJobs,
		SuccessfulJobs:  s.SucceededJobs,
		LongRunningJobs: s.LongRunningJobs,
		MissingJobs:     s.MissingJobs,
	}
}

func (h *Jobs) jobRun(run jobmetrics.JobRun) jobRunPayload {
	rec := run.Record
	return jobRunPayload{
		JobID:           rec.JobID,
		StatusRaw:       rec.StatusRaw,
		Status:          run.Status.String(),
		LoadTime:        timestamp(rec.LoadTime),
		StartTime:       timestamp(rec.StartTime),
		EndTime:         timestamp(rec.EndTime),
		ApplicationCode: rec.ApplicationCode,
		Runtime:         minutesText(run.RuntimeMinutes, run.RuntimeKnown),
		JobName:         h.jobName(rec.JobID),
	}
}

func (h *Jobs) jobRuns(runs []jobmetrics.JobRun) []jobRunPayload {
	out := make([]jobRunPayload, 0, len(runs))
	for _, run := range runs {
		out = append(out, h.jobRun(run))
	}
	return out
}

func (h *Jobs) longRunning(jobs []jobmetrics.LongRunningJob) []longRunningPayload {
	out := make([]longRunningPayload, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, longRunningPayload{
			JobID:                 j.Record.JobID,
			JobName:               h.jobName(j.Record.JobID),
			ApplicationCode:       j.Record.ApplicationCode,
			CurrentRuntime:        minutesText(j.ElapsedMinutes, true),
			AvgRuntime:            minutesText(j.BaselineMinutes, true),
			PercentageOver:        fmt.Sprintf("%d%%", j.OverrunPercent),
			StartTime:             timestamp(j.Record.StartTime),
			AvgRuntimeApproximate: j.BaselineApproximate,
		})
	}
	return out
}

func (h *Jobs) missing(recs []jobstore.WaitingRecord) []missingPayload {
	out := make([]missingPayload, 0, len(recs))
	for _, rec := range recs {
		lastRun := notAvailable
		if ts := timestamp(rec.LastRun); ts != nil {
			lastRun = *ts
		}
		out = append(out, missingPayload{
			JobID:           rec.JobID,
			JobName:         h.jobName(rec.JobID),
			ApplicationCode: rec.ApplicationCode,
			ExpectedTime:    orDefault(rec.ExpectedTime, notAvailable),
			LastRun:         lastRun,
			Frequency:       orDefault(rec.Frequency, unknownFrequency),
			Priority:        orDefault(rec.Priority, defaultPriority),
		})
	}
	return out
}

func newFlowPayload(f jobflow.Flow) flowPayload {
	stages := make([]stagePayload, 0, len(f.Stages))
	for _, st := range f.Stages {
		stages = append(stages, stagePayload{JobID: st.JobID, Name: st.DisplayName, Status: st.Status.String()})
	}
	return flowPayload{Name: f.Name, ApplicationCode: f.ApplicationCode, Stages: stages}
}

func newJobsListingPayload(l *jobmetrics.JobsListing) jobsListingPayload {
	jobs := make([]listedJobPayload, 0, len(l.Jobs))
	for _, run := range l.Jobs {
		var duration *int
		if run.RuntimeKnown {
			d := run.RuntimeMinutes
			duration = &d
		}
		jobs = append(jobs, listedJobPayload{
			JobID:           run.Record.JobID,
			ApplicationCode: run.Record.ApplicationCode,
			Status:          run.Status.String(),
			StatusRaw:       run.Record.StatusRaw,
			StartTime:       timestamp(run.Record.StartTime),
			EndTime:         timestamp(run.Record.EndTime),
			DurationMinutes: duration,
		})
	}

	summary := make(map[string]int, len(jobstatus.All()))
	for _, st := range jobstatus.All() {
		summary[st.String()] = l.Summary[st]
	}
	return jobsListingPayload{Total: l.Total, Jobs: jobs, StatusSummary: summary}
}
