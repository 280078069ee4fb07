package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/jobscope/internal/config"
	"github.com/3leaps/jobscope/internal/observability"
	"github.com/3leaps/jobscope/pkg/catalog"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

var (
	doctorProvider string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment, configuration, job catalog
and record store, and suggest fixes for common issues.

S3 credential checks run when the catalog source is s3:// or when
--provider s3 is given.

Examples:
  jobscope doctor              # Full environment check
  jobscope doctor --provider s3  # Include S3 credential checks`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run provider-specific checks (s3)")
}

// doctorRun numbers checks and remembers whether any failed.
type doctorRun struct {
	logger *zap.Logger
	num    int
	total  int
	ok     bool
}

func (d *doctorRun) pass(label, detail string, fields ...zap.Field) {
	d.num++
	d.logger.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", d.num, d.total, label, detail), fields...)
}

func (d *doctorRun) warn(label, detail string, fields ...zap.Field) {
	d.num++
	d.ok = false
	d.logger.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  %s", d.num, d.total, label, detail), fields...)
}

func (d *doctorRun) fail(label, detail string, fields ...zap.Field) {
	d.num++
	d.ok = false
	d.logger.Error(fmt.Sprintf("[%d/%d] Checking %s... ❌ %s", d.num, d.total, label, detail), fields...)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	identity := GetAppIdentity()
	bannerName := "doctor"
	if identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	log := observability.CLILogger
	log.Info("=== " + bannerName + " ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	cfg, cfgErr := loadConfig()
	s3Checks := doctorProvider == "s3" || (cfg != nil && strings.HasPrefix(cfg.Catalog.Source, "s3://"))

	d := &doctorRun{logger: log, total: 8, ok: true}
	if s3Checks {
		d.total += 2
	}

	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		d.pass("Go version", goVersion, zap.String("go_version", goVersion))
	} else {
		d.warn("Go version", goVersion+" (recommended: go1.23+)", zap.String("go_version", goVersion))
	}

	version := crucible.GetVersion()
	if version.Crucible != "" {
		d.pass("Crucible access", "v"+version.Crucible, zap.String("crucible_version", version.Crucible))
	} else {
		d.fail("Crucible access", "Cannot access Crucible")
	}
	if version.Gofulmen != "" {
		d.pass("Gofulmen access", "v"+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
	} else {
		d.fail("Gofulmen access", "Cannot access Gofulmen")
	}

	if configDir, err := os.UserConfigDir(); err != nil {
		d.fail("config directory", "Cannot find config directory", zap.Error(err))
	} else {
		d.pass("config directory", configDir, zap.String("config_dir", configDir))
	}

	d.pass("environment", runtime.GOOS+"/"+runtime.GOARCH,
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))

	if cfgErr != nil {
		d.fail("configuration", "Invalid configuration", zap.Error(cfgErr))
		d.fail("job catalog", "Skipped: configuration invalid")
		d.fail("record store", "Skipped: configuration invalid")
	} else {
		d.pass("configuration", orDefaultText(viper.ConfigFileUsed(), "defaults and environment"))
		checkCatalog(cmd.Context(), d, cfg)
		checkStore(cmd.Context(), d, cfg)
	}

	if s3Checks {
		var s3cfg config.S3Config
		if cfg != nil {
			s3cfg = cfg.Catalog.S3
		}
		runS3Checks(cmd.Context(), d, s3cfg)
	}

	log.Info("")
	if d.ok {
		log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")

	if !d.ok {
		return exitError(foundry.ExitExternalServiceUnavailable, "Diagnostics failed", fmt.Errorf("%d checks run, at least one failed", d.num))
	}
	return nil
}

func checkCatalog(ctx context.Context, d *doctorRun, cfg *config.Config) {
	source := cfg.Catalog.Source
	cat, err := catalog.Fetch(ctx, source, cfg.Catalog.S3.S3Options())
	if err != nil {
		d.fail("job catalog", "Cannot load catalog", zap.String("source", orDefaultText(source, "built-in")), zap.Error(err))
		return
	}
	if _, err := newRuntime(cat, cfg); err != nil {
		d.fail("job catalog", "Catalog does not build a runtime", zap.Error(err))
		return
	}
	d.pass("job catalog", fmt.Sprintf("%d flows, %d baselines", len(cat.Flows), len(cat.BaselineDurations())),
		zap.String("source", orDefaultText(source, "built-in")))
}

func checkStore(ctx context.Context, d *doctorRun, cfg *config.Config) {
	store, err := jobstore.Open(ctx, cfg.Store.JobStore())
	if err != nil {
		d.fail("record store", "Cannot open record store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return
	}
	defer func() { _ = store.Close() }()

	pingCtx := ctx
	if t := cfg.Server.RequestTimeout; t > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	if err := store.Ping(pingCtx); err != nil {
		d.fail("record store", "Record store unreachable", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return
	}
	d.pass("record store", string(store.Dialect()), zap.String("driver", cfg.Store.Driver))
}

// runS3Checks verifies that AWS credentials resolve for catalog reads.
func runS3Checks(ctx context.Context, d *doctorRun, s3cfg config.S3Config) {
	d.logger.Info("")
	d.logger.Info("S3 Provider Checks:")

	var opts []func(*awsconfig.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s3cfg.Region))
	}
	if s3cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s3cfg.Profile))
	}
	if s3cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		d.fail("AWS credentials", "Cannot load AWS config", zap.Error(err))
		d.num++
		printAWSCredentialsHelp()
		return
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		d.fail("AWS credentials", "Cannot retrieve credentials", zap.Error(err))
		d.num++
		printAWSCredentialsHelp()
		return
	}

	d.pass("AWS credentials", "Found credentials",
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", creds.Source))

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	d.pass("credential source", source, zap.String("credential_source", source))
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Set catalog.s3.profile to a profile created with 'aws configure', or")
	observability.CLILogger.Info("  3. Use IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also set:")
	observability.CLILogger.Info("  - catalog.s3.endpoint and catalog.s3.force_path_style")
	observability.CLILogger.Info("")
}

func orDefaultText(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
