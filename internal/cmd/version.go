package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		v := currentVersion()
		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "%s %s\n", GetAppIdentity().BinaryName, v.Version)
		_, _ = fmt.Fprintf(out, "  commit:   %s\n", v.Commit)
		_, _ = fmt.Fprintf(out, "  built:    %s\n", v.BuildDate)
		if v.Gofulmen != "" {
			_, _ = fmt.Fprintf(out, "  gofulmen: %s\n", v.Gofulmen)
		}
		if v.Crucible != "" {
			_, _ = fmt.Fprintf(out, "  crucible: %s\n", v.Crucible)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output as JSON")
}
