package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/jobscope/internal/config"
	"github.com/3leaps/jobscope/internal/observability"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the local sandbox record store",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the sandbox schema in the SQLite record store",
	Long: `Create the processed, waiting and skipped tables in the configured
SQLite store. Production stores (mysql, postgres, libsql) are owned by the
ETL platform and are never modified.

Examples:
  jobscope db init
  jobscope db init --sample   # also load demo rows relative to now`,
	Args: cobra.NoArgs,
	RunE: runDBInit,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd)
	dbInitCmd.Flags().Bool("sample", false, "Seed sample job records")
}

func runDBInit(cmd *cobra.Command, args []string) error {
	sample, _ := cmd.Flags().GetBool("sample")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initSandbox(cmd.Context(), cfg, sample, time.Now()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Sandbox store ready at %s\n", cfg.Store.Path)
	return nil
}

func initSandbox(ctx context.Context, cfg *config.Config, sample bool, now time.Time) error {
	dialect, err := jobstore.ParseDialect(cfg.Store.Driver)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid store driver", err)
	}
	if dialect != jobstore.DialectSQLite {
		return exitError(foundry.ExitInvalidArgument, "db init only manages sqlite stores",
			fmt.Errorf("store.driver is %q", cfg.Store.Driver))
	}

	store, err := jobstore.Open(ctx, cfg.Store.JobStore())
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open sandbox store", err)
	}
	defer func() { _ = store.Close() }()

	if err := jobstore.Migrate(ctx, store.DB()); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create sandbox schema", err)
	}
	observability.CLILogger.Info("sandbox schema ready", zap.String("path", cfg.Store.Path))

	if sample {
		if err := jobstore.SeedSample(ctx, store.DB(), now); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to seed sample records", err)
		}
		observability.CLILogger.Info("sample records loaded")
	}
	return nil
}
