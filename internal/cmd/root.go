package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/jobscope/internal/config"
	"github.com/3leaps/jobscope/internal/observability"
)

// AppIdentity names the binary, its config file, and its env prefix.
type AppIdentity struct {
	BinaryName string
	ConfigName string
	EnvPrefix  string
}

const exitFailure = 1

var defaultIdentity = AppIdentity{
	BinaryName: "jobscope",
	ConfigName: "jobscope",
	EnvPrefix:  "JOBSCOPE",
}

var (
	cfgFile     string
	verbose     bool
	appIdentity *AppIdentity

	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{
		Version:   "dev",
		Commit:    "unknown",
		BuildDate: "unknown",
	}
)

// legacyEnv maps config keys to the environment variables used by earlier
// deployments of the monitor. The prefixed name always wins.
var legacyEnv = map[string]string{
	"store.host":           "DB_HOST",
	"store.port":           "DB_PORT",
	"store.user":           "DB_USER",
	"store.password":       "DB_PASSWORD",
	"store.name":           "DB_NAME",
	"server.host":          "API_HOST",
	"server.port":          "API_PORT",
	"cors.allowed_origins": "CORS_ORIGINS",
}

var rootCmd = &cobra.Command{
	Use:   "jobscope",
	Short: "Job status monitor for scheduled data-pipeline jobs",
	Long: `jobscope reconciles job records from the processed, waiting and skipped
sets into one canonical status per job, and serves fleet statistics,
long-running alerts, missing jobs and multi-stage flows over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appIdentity == nil {
			id := defaultIdentity
			appIdentity = &id
		}
		observability.InitCLILogger(appIdentity.BinaryName, verbose)
		return initConfig()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := notifyContext()
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		code := exitCodeOf(err)
		ExitWithCode(observability.CLILogger, code, "command failed", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: jobscope.yaml in the app config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	setDefaults()
}

// SetVersionInfo records build metadata from ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity set during command startup, or nil
// before any command has run.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.request_timeout", "15s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.profile", "structured")

	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.path", defaultStorePath())
	viper.SetDefault("store.host", "localhost")
	viper.SetDefault("store.user", "root")
	viper.SetDefault("store.name", "job_monitor")
	viper.SetDefault("store.max_open_conns", 10)
	viper.SetDefault("store.conn_max_lifetime", "30m")

	viper.SetDefault("jobs.stats_long_running_threshold", "2h")
	viper.SetDefault("jobs.list_long_running_threshold", "1h")
	viper.SetDefault("jobs.default_baseline", "90m")
	viper.SetDefault("jobs.recent_limit", 10)
	viper.SetDefault("jobs.max_limit", 500)
	viper.SetDefault("jobs.default_days", 1)

	viper.SetDefault("catalog.source", "")
	viper.SetDefault("catalog.s3.region", "")

	viper.SetDefault("cors.allowed_origins", []string{"*"})

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_second", 50.0)
	viper.SetDefault("rate_limit.burst", 100)

	viper.SetDefault("health.enabled", true)
}

func defaultStorePath() string {
	return filepath.Join(gfconfig.GetAppDataDir(defaultIdentity.ConfigName), "jobscope.db")
}

func initConfig() error {
	id := GetAppIdentity()

	viper.SetEnvPrefix(id.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(id.ConfigName)
		viper.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(dir, id.ConfigName))
		}
		viper.AddConfigPath(gfconfig.GetAppDataDir(id.ConfigName))
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return exitError(foundry.ExitFileReadError, "Failed to read config", err)
		}
	} else {
		observability.CLILogger.Debug("loaded config", zap.String("file", viper.ConfigFileUsed()))
	}
	return bindLegacyEnv(viper.GetViper(), id.EnvPrefix)
}

// bindLegacyEnv binds each key to its prefixed variable and its legacy
// alias. A legacy DB_HOST without an explicit driver selects MySQL, the
// store those variables were written for.
func bindLegacyEnv(v *viper.Viper, prefix string) error {
	for key, legacy := range legacyEnv {
		prefixed := prefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	if _, ok := os.LookupEnv("DB_HOST"); ok {
		if _, set := os.LookupEnv(prefix + "_STORE_DRIVER"); !set && !v.InConfig("store.driver") {
			v.SetDefault("store.driver", "mysql")
		}
	}
	return nil
}

// loadConfig decodes and validates the merged configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	return cfg, nil
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &cliError{code: code, err: fmt.Errorf("%s: %w (exit code %d)", message, err, code)}
}

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func exitCodeOf(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	if errors.Is(err, context.Canceled) {
		return foundry.ExitSignalInt
	}
	return exitFailure
}

// ExitWithCode logs err and terminates the process.
func ExitWithCode(logger *zap.Logger, code int, msg string, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Error(msg, zap.Error(err), zap.Int("exit_code", code))
	_ = logger.Sync()
	os.Exit(code)
}
