package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/jobscope/pkg/jobmetrics"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fleet job statistics",
	Long: `Show fleet-wide counts: applications, total jobs, running, failed,
succeeded, long-running and missing.

Examples:
  jobscope stats
  jobscope stats --days 7
  jobscope stats --long-running --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().Bool("json", false, "Output as JSON")
	statsCmd.Flags().Int("days", 0, "Only count records loaded in the last N days (0 = all)")
	statsCmd.Flags().Bool("long-running", false, "Include the long-running job list")
}

type statsOutput struct {
	Applications    []string            `json:"applications"`
	TotalJobs       int                 `json:"totalJobs"`
	RunningJobs     int                 `json:"runningJobs"`
	FailedJobs      int                 `json:"failedJobs"`
	SuccessfulJobs  int                 `json:"successfulJobs"`
	LongRunningJobs int                 `json:"longRunningJobs"`
	MissingJobs     int                 `json:"missingJobs"`
	WindowDays      int                 `json:"windowDays,omitempty"`
	GeneratedAt     string              `json:"generatedAt"`
	LongRunning     []longRunningOutput `json:"longRunning,omitempty"`
}

type longRunningOutput struct {
	JobID          string `json:"job_id"`
	Application    string `json:"aplctn_cd"`
	CurrentRuntime string `json:"current_runtime"`
	AvgRuntime     string `json:"avg_runtime"`
	PercentageOver string `json:"percentage_over"`
}

func runStats(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	days, _ := cmd.Flags().GetInt("days")
	withLong, _ := cmd.Flags().GetBool("long-running")
	if days < 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --days value", fmt.Errorf("days must be >= 0"))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	out, err := collectStats(cmd.Context(), rt, days, withLong)
	if err != nil {
		return err
	}
	return printStats(cmd.OutOrStdout(), out, jsonOutput)
}

func collectStats(ctx context.Context, rt *appRuntime, days int, withLong bool) (statsOutput, error) {
	var out statsOutput
	err := rt.withSession(ctx, func(ctx context.Context, sess *jobstore.Session) error {
		snap, err := rt.agg.Snapshot(ctx, sess, jobmetrics.Window{Days: days})
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to compute statistics", err)
		}
		out = statsOutput{
			Applications:    snap.Applications,
			TotalJobs:       snap.TotalJobs,
			RunningJobs:     snap.RunningJobs,
			FailedJobs:      snap.FailedJobs,
			SuccessfulJobs:  snap.SucceededJobs,
			LongRunningJobs: snap.LongRunningJobs,
			MissingJobs:     snap.MissingJobs,
			WindowDays:      days,
			GeneratedAt:     snap.Now.Format(time.RFC3339),
		}
		if out.Applications == nil {
			out.Applications = []string{}
		}
		if !withLong {
			return nil
		}

		long, err := rt.agg.LongRunning(ctx, sess)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to list long-running jobs", err)
		}
		for _, j := range long {
			out.LongRunning = append(out.LongRunning, longRunningOutput{
				JobID:          j.Record.JobID,
				Application:    j.Record.ApplicationCode,
				CurrentRuntime: runtimeText(j.ElapsedMinutes, true),
				AvgRuntime:     runtimeText(j.BaselineMinutes, true),
				PercentageOver: fmt.Sprintf("%d%%", j.OverrunPercent),
			})
		}
		return nil
	})
	return out, err
}

func printStats(w io.Writer, out statsOutput, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	window := "all records"
	if out.WindowDays > 0 {
		window = fmt.Sprintf("last %d day(s)", out.WindowDays)
	}
	_, _ = fmt.Fprintf(tw, "Window:\t%s\n", window)
	_, _ = fmt.Fprintf(tw, "Applications:\t%s\n", strings.Join(out.Applications, ", "))
	_, _ = fmt.Fprintf(tw, "Total jobs:\t%d\n", out.TotalJobs)
	_, _ = fmt.Fprintf(tw, "Running:\t%d\n", out.RunningJobs)
	_, _ = fmt.Fprintf(tw, "Failed:\t%d\n", out.FailedJobs)
	_, _ = fmt.Fprintf(tw, "Succeeded:\t%d\n", out.SuccessfulJobs)
	_, _ = fmt.Fprintf(tw, "Long-running:\t%d\n", out.LongRunningJobs)
	_, _ = fmt.Fprintf(tw, "Missing:\t%d\n", out.MissingJobs)

	if len(out.LongRunning) > 0 {
		_, _ = fmt.Fprintln(tw)
		_, _ = fmt.Fprintln(tw, "JOB ID\tAPP\tRUNTIME\tBASELINE\tOVER")
		for _, j := range out.LongRunning {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.JobID, j.Application, j.CurrentRuntime, j.AvgRuntime, j.PercentageOver)
		}
	}
	return tw.Flush()
}
