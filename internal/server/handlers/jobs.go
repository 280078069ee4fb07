package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/jobscope/internal/errors"
	"github.com/3leaps/jobscope/internal/server/middleware"
	"github.com/3leaps/jobscope/pkg/jobflow"
	"github.com/3leaps/jobscope/pkg/jobmetrics"
	"github.com/3leaps/jobscope/pkg/jobstatus"
	"github.com/3leaps/jobscope/pkg/jobstore"
	"github.com/3leaps/jobscope/pkg/signal"
)

const maxAlertBodyBytes = 64 << 10

// SessionSource hands out scoped record-store sessions.
type SessionSource interface {
	Acquire(ctx context.Context) (*jobstore.Session, error)
}

var _ SessionSource = (*jobstore.Store)(nil)

// JobsDeps are the collaborators of the job endpoints.
type JobsDeps struct {
	Store      SessionSource
	Resolver   *jobstatus.Resolver
	Aggregator *jobmetrics.Aggregator
	Composer   *jobflow.Composer
	Signals    signal.Sink

	// JobNames maps job ids to display names. Unnamed jobs show their id.
	JobNames map[string]string

	// DefaultDays is the listing window when ?days is absent.
	DefaultDays int
}

// Jobs serves /api/jobs. It holds no per-request state; every request
// acquires its own session and reads current records.
type Jobs struct {
	store       SessionSource
	resolver    *jobstatus.Resolver
	agg         *jobmetrics.Aggregator
	composer    *jobflow.Composer
	signals     signal.Sink
	names       map[string]string
	defaultDays int
}

func NewJobs(d JobsDeps) (*Jobs, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("jobs handler: store is required")
	case d.Aggregator == nil:
		return nil, errors.New("jobs handler: aggregator is required")
	case d.Composer == nil:
		return nil, errors.New("jobs handler: composer is required")
	}
	if d.Resolver == nil {
		d.Resolver = jobstatus.NewResolver(nil)
	}
	if d.Signals == nil {
		d.Signals = signal.NewLogSink(nil)
	}
	if d.DefaultDays <= 0 {
		d.DefaultDays = 1
	}
	names := make(map[string]string, len(d.JobNames))
	for k, v := range d.JobNames {
		names[k] = v
	}
	return &Jobs{
		store:       d.Store,
		resolver:    d.Resolver,
		agg:         d.Aggregator,
		composer:    d.Composer,
		signals:     d.Signals,
		names:       names,
		defaultDays: d.DefaultDays,
	}, nil
}

// Routes mounts the job endpoints on r. Fixed segments take precedence over
// {job_id}.
func (h *Jobs) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/stats", h.Stats)
	r.Get("/recent", h.Recent)
	r.Get("/long-running", h.LongRunning)
	r.Get("/missing", h.Missing)
	r.Get("/flows", h.Flows)
	r.Get("/flows/{name}", h.Flow)
	r.Get("/by-app/{app}", h.ByApplication)
	r.Get("/{job_id}", h.Job)
	r.Get("/{job_id}/status", h.Status)
	r.Post("/{job_id}/trigger", h.Trigger)
	r.Post("/{job_id}/alert", h.Alert)
}

func (h *Jobs) jobName(jobID string) string {
	if name, ok := h.names[jobID]; ok {
		return name
	}
	return "Job " + jobID
}

// withSession runs fn on a fresh session and writes its result as JSON.
func (h *Jobs) withSession(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, sess *jobstore.Session) (any, error)) {
	ctx := r.Context()
	sess, err := h.store.Acquire(ctx)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			middleware.LoggerFrom(ctx).Debug("session close failed", zap.Error(cerr))
		}
	}()

	payload, err := fn(ctx, sess)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Stats serves GET /api/jobs/stats[?days=N].
func (h *Jobs) Stats(w http.ResponseWriter, r *http.Request) {
	days, err := queryPositiveInt(r, "days", 0)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	h.withSession(w, r, func(ctx context.Context, sess *jobstore.Session) (any, error) {
		snap, err := h.agg.Snapshot(ctx, sess, jobmetrics.Window{Days: days})
		if err != nil {
			return nil, err
		}
		return newStatsPayload(snap), nil
	})
}

// Recent serves GET /api/jobs/recent[?limit=N].
func (h *Jobs) Recent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryPositiveInt(r, "limit", 0)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	h.withSession(w, r, func(ctx context.Context, sess *jobstore.Session) (any, error) {
		runs, err := h.agg.Recent(ctx, sess, limit)
		if err != nil {
			return nil, err
		}
		return h.jobRuns(runs), nil
	})
}

func (h *Jobs) LongRunning(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, sess *jobstore.Session) (any, error) {
		jobs, err := h.agg.LongRunning(ctx, sess)
		if err != nil {
			return nil, err
		}
		return h.longRunning(jobs), nil
	})
}

func (h *Jobs) Missing(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, sess *jobstore.Session) (any, error) {
		recs, err := h.agg.Missing(ctx, sess)
		if err != nil {
			return nil, err
		}
		return h.missing(recs), nil
	})
}

func (h *Jobs) Flows(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, sess *jobstore.Session) (any, error) {
		flows, err := h.composer.ComposeAll(ctx, sess)
		if err != nil {
			return nil, err
		}
		out := make([]flowPayload, 0, len(flows))
		for _, f := range flows {
			out = append(out, newFlowPayload(f))
		}
		return out, nil
	})
}

// Flow serves one flow; an unknown name is 404 before any store access.
func (h *Jobs) Flow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := h.composer.Builder().Skeleton(name); err != nil {
		respondWithError(w, r, apperrors.NewNotFound("flow %q not found", name))
		return
	}
	h.withSession(w, r, func(ctx context.Context, sess *jobstore.Session) (any, error) {
		f, err := h.composer.Compose(ctx, sess, name)
		if err != nil {
			return nil, err
		}
		return newFlowPayload(f), nil
	})
}

func (h *Jobs) ByApplication(w http.ResponseWriter, r *http.Request) {
	app := strings.TrimSpace(chi.URLParam(r, "app"))
	if app == "" {
		respondWithError(w, r, apperrors.NewInvalidInput("application code is required"))
		return
	}
	h.withSession(w, r, func(ctx context.Context, sess *jobstore.Session) (any, error) {
		runs, err := h.agg.ByApplication(ctx, sess, app)
		if err != nil {
			return nil, err
		}
		return h.jobRuns(runs), nil
	})
}

// List serves GET /api/jobs?status=S&days=N.
func (h *Jobs) List(w http.ResponseWriter, r *http.Request) {
	days, err := queryPositiveInt(r, "days", h.defaultDays)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	status, err := h.statusFilter(r.URL.Query().Get("status"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	h.withSession(w, r, func(ctx context.Context, sess *jobstore.Session) (any, error) {
		listing, err := h.agg.Jobs(ctx, sess, jobmetrics.JobsFilter{Status: status, Window: jobmetrics.Window{Days: days}})
		if err != nil {
			return nil, err
		}
		return newJobsListingPayload(listing), nil
	})
}

// statusFilter accepts ALL, a canonical name, or any raw spelling the
// vocabulary knows.
func (h *Jobs) statusFilter(raw string) (jobstatus.Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "ALL") {
		return "", nil
	}
	if st, err := jobstatus.Parse(raw); err == nil {
		return st, nil
	}
	if st, ok := h.resolver.Mapping().Match(raw); ok {
		return st, nil
	}
	return "", apperrors.NewInvalidInput("unknown status %q", raw)
}

// Job serves the latest processed record of one job.
func (h *Jobs) Job(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	h.withSession(w, r, func(ctx context.Context, sess *jobstore.Session) (any, error) {
		rec, err := sess.LatestProcessed(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, apperrors.NewNotFound("job %s not found", jobID)
		}
		minutes, known := jobmetrics.Runtime(rec.StartTime, rec.EndTime, h.agg.Now())
		return h.jobRun(jobmetrics.JobRun{
			Record:         *rec,
			Status:         h.resolver.Classify(*rec),
			RuntimeMinutes: minutes,
			RuntimeKnown:   known,
		}), nil
	})
}

// Status serves the resolved canonical status. A job absent from every set
// is PENDING, not 404.
func (h *Jobs) Status(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	h.withSession(w, r, func(ctx context.Context, sess *jobstore.Session) (any, error) {
		res, err := h.resolver.Resolve(ctx, sess, jobID)
		if err != nil {
			return nil, err
		}
		return statusPayload{JobID: res.JobID, Status: res.Status.String(), Source: string(res.Source)}, nil
	})
}

func (h *Jobs) Trigger(w http.ResponseWriter, r *http.Request) {
	h.signal(w, r, signal.KindTrigger, "")
}

// Alert accepts an optional JSON body {"message": "..."}.
func (h *Jobs) Alert(w http.ResponseWriter, r *http.Request) {
	var body alertBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAlertBodyBytes))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, r, apperrors.NewInvalidInput("invalid alert body: %v", err))
		return
	}
	h.signal(w, r, signal.KindAlert, body.Message)
}

func (h *Jobs) signal(w http.ResponseWriter, r *http.Request, kind signal.Kind, message string) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	ack, err := h.signals.Send(r.Context(), signal.Request{
		Kind:      kind,
		JobID:     jobID,
		Message:   message,
		RequestID: middleware.GetRequestID(r.Context()),
	})
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(err, "signal not recorded"))
		return
	}
	writeJSON(w, http.StatusOK, signalPayload{Success: true, Message: ack.Message, SignalID: ack.ID})
}

func (h *Jobs) jobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := chi.URLParam(r, "job_id")
	if err := jobstatus.ValidateJobID(jobID); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInput("%v", err))
		return "", false
	}
	return jobID, true
}

func queryPositiveInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.NewInvalidInput("%s must be a positive integer", name)
	}
	return n, nil
}

// RootHandler identifies the service.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "jobscope job status API",
		"status":  "running",
	})
}

// VersionInfo is served at /version.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Crucible  string `json:"crucible,omitempty"`
	Gofulmen  string `json:"gofulmen,omitempty"`
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("%s (%s, built %s)", v.Version, v.Commit, v.BuildDate)
}

// NewVersionHandler serves info.
func NewVersionHandler(info VersionInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, info)
	}
}
