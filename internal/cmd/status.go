package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/jobscope/pkg/jobmetrics"
	"github.com/3leaps/jobscope/pkg/jobstatus"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

var statusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Resolve the canonical status of a job",
	Long: `Resolve a job's canonical status from the processed, waiting and skipped
sets, in that order of precedence. A job in none of them is PENDING.

Examples:
  jobscope status 7615132203
  jobscope status 7615132203 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}

type statusOutput struct {
	JobID           string  `json:"job_id"`
	Status          string  `json:"status"`
	Source          string  `json:"source"`
	RawStatus       string  `json:"job_stts,omitempty"`
	ApplicationCode string  `json:"aplctn_cd,omitempty"`
	StartTime       *string `json:"start_time,omitempty"`
	EndTime         *string `json:"end_time,omitempty"`
	Runtime         string  `json:"runtime,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if err := jobstatus.ValidateJobID(args[0]); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid job id", err)
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

	out, err := resolveStatus(cmd.Context(), rt, args[0])
	if err != nil {
		return err
	}
	return printStatus(cmd.OutOrStdout(), out, jsonOutput)
}

func resolveStatus(ctx context.Context, rt *appRuntime, jobID string) (statusOutput, error) {
	var out statusOutput
	err := rt.withSession(ctx, func(ctx context.Context, sess *jobstore.Session) error {
		res, err := rt.resolver.Resolve(ctx, sess, jobID)
		if err != nil {
			if errors.Is(err, jobstatus.ErrInvalidJobID) {
				return exitError(foundry.ExitInvalidArgument, "Invalid job id", err)
			}
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to resolve status", err)
		}
		out = statusOutput{JobID: res.JobID, Status: res.Status.String(), Source: string(res.Source)}
		if rec := res.Record; rec != nil {
			out.RawStatus = rec.StatusRaw
			out.ApplicationCode = rec.ApplicationCode
			out.StartTime = formatTime(rec.StartTime)
			out.EndTime = formatTime(rec.EndTime)
			minutes, ok := jobmetrics.Runtime(rec.StartTime, rec.EndTime, rt.agg.Now())
			out.Runtime = runtimeText(minutes, ok)
		}
		return nil
	})
	return out, err
}

func printStatus(w io.Writer, out statusOutput, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Job:\t%s\n", out.JobID)
	_, _ = fmt.Fprintf(tw, "Status:\t%s\n", out.Status)
	_, _ = fmt.Fprintf(tw, "Source:\t%s\n", out.Source)
	if out.RawStatus != "" {
		_, _ = fmt.Fprintf(tw, "Raw status:\t%s\n", out.RawStatus)
		_, _ = fmt.Fprintf(tw, "Application:\t%s\n", out.ApplicationCode)
		_, _ = fmt.Fprintf(tw, "Started:\t%s\n", orNA(out.StartTime))
		_, _ = fmt.Fprintf(tw, "Ended:\t%s\n", orNA(out.EndTime))
		_, _ = fmt.Fprintf(tw, "Runtime:\t%s\n", out.Runtime)
	}
	return tw.Flush()
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func orNA(s *string) string {
	if s == nil {
		return "N/A"
	}
	return *s
}

func runtimeText(minutes int, ok bool) string {
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%dmin", minutes)
}
