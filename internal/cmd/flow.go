package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/jobscope/pkg/jobflow"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

var flowCmd = &cobra.Command{
	Use:   "flow [name]",
	Short: "Show multi-stage job flows with live stage status",
	Long: `Show configured job flows. Each stage is resolved against current
records; stages print in configured order.

Examples:
  jobscope flow           # every flow in the catalog
  jobscope flow VBCDF
  jobscope flow VBCDF --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFlow,
}

func init() {
	rootCmd.AddCommand(flowCmd)
	flowCmd.Flags().Bool("json", false, "Output as JSON")
}

type flowStageOutput struct {
	JobID  string `json:"job_id"`
	Name   string `json:"name"`
	Status string `json:"job_stts"`
}

type flowOutput struct {
	Name            string            `json:"name"`
	ApplicationCode string            `json:"aplctn_cd"`
	Stages          []flowStageOutput `json:"stages"`
}

func runFlow(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	flows, err := composeFlows(cmd.Context(), rt, name)
	if err != nil {
		return err
	}
	return printFlows(cmd.OutOrStdout(), flows, jsonOutput)
}

// composeFlows resolves one flow by name, or all flows when name is empty.
func composeFlows(ctx context.Context, rt *appRuntime, name string) ([]jobflow.Flow, error) {
	if name != "" {
		if _, err := rt.composer.Builder().Skeleton(name); err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Unknown flow", err)
		}
	}

	var flows []jobflow.Flow
	err := rt.withSession(ctx, func(ctx context.Context, sess *jobstore.Session) error {
		var err error
		if name == "" {
			flows, err = rt.composer.ComposeAll(ctx, sess)
		} else {
			var f jobflow.Flow
			f, err = rt.composer.Compose(ctx, sess, name)
			flows = []jobflow.Flow{f}
		}
		if err != nil {
			if errors.Is(err, jobflow.ErrUnknownFlow) {
				return exitError(foundry.ExitInvalidArgument, "Unknown flow", err)
			}
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to compose flows", err)
		}
		return nil
	})
	return flows, err
}

func printFlows(w io.Writer, flows []jobflow.Flow, jsonOutput bool) error {
	if jsonOutput {
		out := make([]flowOutput, 0, len(flows))
		for _, f := range flows {
			fo := flowOutput{Name: f.Name, ApplicationCode: f.ApplicationCode, Stages: []flowStageOutput{}}
			for _, st := range f.Stages {
				fo.Stages = append(fo.Stages, flowStageOutput{JobID: st.JobID, Name: st.DisplayName, Status: st.Status.String()})
			}
			out = append(out, fo)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(flows) == 0 {
		_, _ = fmt.Fprintln(w, "No flows configured.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, f := range flows {
		if i > 0 {
			_, _ = fmt.Fprintln(tw)
		}
		_, _ = fmt.Fprintf(tw, "Flow: %s (%s)\n", f.Name, f.ApplicationCode)
		_, _ = fmt.Fprintln(tw, "STAGE\tJOB ID\tNAME\tSTATUS")
		for n, st := range f.Stages {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", n+1, st.JobID, st.DisplayName, st.Status)
		}
	}
	return tw.Flush()
}
