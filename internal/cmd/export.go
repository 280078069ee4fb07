package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/jobscope/internal/observability"
	"github.com/3leaps/jobscope/pkg/jobmetrics"
	"github.com/3leaps/jobscope/pkg/jobstatus"
	"github.com/3leaps/jobscope/pkg/jobstore"
	"github.com/3leaps/jobscope/pkg/output"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export job status as JSONL",
	Long: `Export the current job table, long-running jobs and missing jobs as
newline-delimited JSON. Every line is an envelope carrying a record type,
a timestamp and a run id shared by the whole export. A summary record
closes the stream.

A section that fails to read is reported as an error record and the
export continues with the remaining sections, so the output is a partial
snapshot. The summary counts the failed sections and the command then
exits non-zero; treat such an export as incomplete.

Examples:
  jobscope export
  jobscope export --days 7 --status FAILED
  jobscope export --output /tmp/jobs.jsonl`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().Int("days", 0, "Only export jobs loaded in the last N days (0 = jobs.default_days)")
	exportCmd.Flags().String("status", "", "Only export jobs with this status (canonical or raw; ALL for every job)")
	exportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
}

type exportOptions struct {
	Days   int
	Status jobstatus.Status
}

func runExport(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	statusRaw, _ := cmd.Flags().GetString("status")
	outPath, _ := cmd.Flags().GetString("output")
	if days < 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --days value", fmt.Errorf("days must be >= 0"))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if days == 0 {
		days = cfg.Jobs.DefaultDays
	}
	rt, err := openRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	status, err := parseStatusFilter(rt.resolver.Mapping(), statusRaw)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --status value", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to create output file", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	runID := uuid.NewString()
	jw := output.NewJSONLWriter(w, runID, string(rt.store.Dialect()))
	defer func() { _ = jw.Close() }()

	observability.CLILogger.Debug("starting export", zap.String("run_id", runID), zap.Int("days", days))
	sum, err := exportJobs(cmd.Context(), rt, jw, exportOptions{Days: days, Status: status})
	if err != nil {
		return err
	}
	if sum.Errors > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Export incomplete",
			fmt.Errorf("%d sections failed (run %s)", sum.Errors, runID))
	}
	return nil
}

// parseStatusFilter accepts ALL or empty, a canonical status, or a raw
// vocabulary value.
func parseStatusFilter(m *jobstatus.Mapping, raw string) (jobstatus.Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "ALL") {
		return "", nil
	}
	if st, err := jobstatus.Parse(raw); err == nil {
		return st, nil
	}
	if st, ok := m.Match(raw); ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", jobstatus.ErrUnknownStatus, raw)
}

// exportJobs writes every section to w on a single session and returns the
// summary it emitted.
func exportJobs(ctx context.Context, rt *appRuntime, w output.Writer, opts exportOptions) (*output.SummaryRecord, error) {
	start := time.Now()
	sum := &output.SummaryRecord{StatusSummary: map[string]int{}, WindowDays: opts.Days}

	err := rt.withSession(ctx, func(ctx context.Context, sess *jobstore.Session) error {
		sectionFailed := func(section string, err error) error {
			sum.Errors++
			observability.CLILogger.Warn("export section failed", zap.String("section", section), zap.Error(err))
			return w.WriteError(ctx, &output.ErrorRecord{
				Code:    exportErrorCode(err),
				Message: fmt.Sprintf("failed to read %s", section),
				Section: section,
			})
		}

		listing, err := rt.agg.Jobs(ctx, sess, jobmetrics.JobsFilter{Status: opts.Status, Window: jobmetrics.Window{Days: opts.Days}})
		if err != nil {
			if werr := sectionFailed("jobs", err); werr != nil {
				return werr
			}
		} else {
			for _, st := range jobstatus.All() {
				sum.StatusSummary[st.String()] = listing.Summary[st]
			}
			for _, run := range listing.Jobs {
				if err := w.WriteJob(ctx, jobRecord(run)); err != nil {
					return err
				}
				sum.Jobs++
			}
		}

		long, err := rt.agg.LongRunning(ctx, sess)
		if err != nil {
			if werr := sectionFailed("long_running", err); werr != nil {
				return werr
			}
		} else {
			for _, j := range long {
				if err := w.WriteLongRunning(ctx, &output.LongRunningRecord{
					JobID:           j.Record.JobID,
					ApplicationCode: j.Record.ApplicationCode,
					ElapsedMinutes:  j.ElapsedMinutes,
					BaselineMinutes: j.BaselineMinutes,
					OverrunPercent:  j.OverrunPercent,

					BaselineApproximate: j.BaselineApproximate,
				}); err != nil {
					return err
				}
				sum.LongRunning++
			}
		}

		missing, err := rt.agg.Missing(ctx, sess)
		if err != nil {
			if werr := sectionFailed("missing", err); werr != nil {
				return werr
			}
		} else {
			for _, m := range missing {
				priority := m.Priority
				if priority == "" {
					priority = "Medium"
				}
				if err := w.WriteMissing(ctx, &output.MissingRecord{
					JobID:           m.JobID,
					ApplicationCode: m.ApplicationCode,
					ExpectedTime:    optionalText(m.ExpectedTime),
					LastRun:         m.LastRun,
					Frequency:       optionalText(m.Frequency),
					Priority:        priority,
				}); err != nil {
					return err
				}
				sum.Missing++
			}
		}

		sum.Duration = time.Since(start)
		sum.DurationHuman = sum.Duration.Round(time.Millisecond).String()
		return w.WriteSummary(ctx, sum)
	})
	if err != nil {
		var we *output.WriteError
		if errors.As(err, &we) {
			return nil, exitError(foundry.ExitFileWriteError, "Failed to write export", err)
		}
		return nil, err
	}
	return sum, nil
}

func jobRecord(run jobmetrics.JobRun) *output.JobRecord {
	rec := &output.JobRecord{
		JobID:           run.Record.JobID,
		ApplicationCode: run.Record.ApplicationCode,
		Status:          run.Status.String(),
		RawStatus:       run.Record.StatusRaw,
		StartTime:       run.Record.StartTime,
		EndTime:         run.Record.EndTime,
	}
	if run.RuntimeKnown {
		minutes := run.RuntimeMinutes
		rec.DurationMinutes = &minutes
	}
	return rec
}

func optionalText(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func exportErrorCode(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return output.ErrCodeTimeout
	case errors.Is(err, jobstore.ErrUnavailable):
		return output.ErrCodeStoreUnavailable
	default:
		return output.ErrCodeInternal
	}
}
