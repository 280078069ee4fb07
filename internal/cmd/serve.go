package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/jobscope/internal/config"
	"github.com/3leaps/jobscope/internal/observability"
	"github.com/3leaps/jobscope/internal/server"
	"github.com/3leaps/jobscope/internal/server/handlers"
	"github.com/3leaps/jobscope/pkg/signal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job status HTTP API",
	Long: `Start the HTTP API serving job statistics, listings and flows.

Every request reads current records; nothing is cached between requests.

Examples:
  jobscope serve
  jobscope serve --port 9000
  JOBSCOPE_STORE_DRIVER=mysql DB_HOST=db.internal jobscope serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "listen host (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("app identity missing binary name")
	case c.envPrefix == "":
		return errors.New("app identity missing env prefix")
	case c.configName == "":
		return errors.New("app identity missing config name")
	}
	return nil
}

// storeHealthChecker pings the record store.
type storeHealthChecker struct {
	store interface {
		Ping(ctx context.Context) error
	}
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	if c.store == nil {
		return errors.New("record store not initialized")
	}
	return c.store.Ping(ctx)
}

// signalHealthChecker reports whether trigger and alert requests can be recorded.
type signalHealthChecker struct {
	sink signal.Sink
}

func (c signalHealthChecker) CheckHealth(ctx context.Context) error {
	if c.sink == nil {
		return errors.New("signal sink not initialized")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	identity := GetAppIdentity()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := observability.NewServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	defer func() { _ = logger.Sync() }()

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	sink := signal.NewLogSink(logger)
	srv, err := newAPIServer(cfg, rt, sink, logger)
	if err != nil {
		return err
	}

	if cfg.Health.Enabled {
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
		hm.RegisterChecker("store", storeHealthChecker{store: rt.store})
		hm.RegisterChecker("signal", signalHealthChecker{sink: sink})
	}

	logger.Info("starting jobscope",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("version", versionInfo.Version),
		zap.String("store_dialect", string(rt.store.Dialect())),
		zap.Int("flows", len(rt.catalog.Flows)),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitError(foundry.ExitSignalInt, "Graceful shutdown failed", err)
	}
	logger.Info("server stopped")
	return <-errCh
}

func newAPIServer(cfg *config.Config, rt *appRuntime, sink signal.Sink, logger *zap.Logger) (*server.Server, error) {
	jobs, err := handlers.NewJobs(handlers.JobsDeps{
		Store:       rt.store,
		Resolver:    rt.resolver,
		Aggregator:  rt.agg,
		Composer:    rt.composer,
		Signals:     sink,
		JobNames:    rt.catalog.JobNames(),
		DefaultDays: cfg.Jobs.DefaultDays,
	})
	if err != nil {
		return nil, fmt.Errorf("build job handlers: %w", err)
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithJobs(jobs),
		server.WithVersion(currentVersion()),
		server.WithCORS(cfg.CORS.AllowedOrigins),
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	}
	if cfg.RateLimit.Enabled {
		opts = append(opts, server.WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}
	return server.New(cfg.Server.Host, cfg.Server.Port, opts...), nil
}

func currentVersion() handlers.VersionInfo {
	v := crucible.GetVersion()
	return handlers.VersionInfo{
		Version:   versionInfo.Version,
		Commit:    versionInfo.Commit,
		BuildDate: versionInfo.BuildDate,
		Crucible:  v.Crucible,
		Gofulmen:  v.Gofulmen,
	}
}
