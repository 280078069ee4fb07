package cmd

import (
	"context"
	"errors"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/3leaps/jobscope/internal/config"
	"github.com/3leaps/jobscope/pkg/catalog"
	"github.com/3leaps/jobscope/pkg/jobflow"
	"github.com/3leaps/jobscope/pkg/jobmetrics"
	"github.com/3leaps/jobscope/pkg/jobstatus"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

// appRuntime is the wired domain stack shared by serve and the read commands.
type appRuntime struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	store    *jobstore.Store
	resolver *jobstatus.Resolver
	composer *jobflow.Composer
	agg      *jobmetrics.Aggregator
}

// openRuntime loads the catalog, opens the record store, and builds the
// resolver, composer and aggregator. The caller must Close it.
func openRuntime(ctx context.Context, cfg *config.Config, opts ...jobmetrics.Option) (*appRuntime, error) {
	cat, err := catalog.Fetch(ctx, cfg.Catalog.Source, cfg.Catalog.S3.S3Options())
	if err != nil {
		code := foundry.ExitExternalServiceUnavailable
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			code = foundry.ExitFileNotFound
		case errors.Is(err, catalog.ErrValidationFailed):
			code = foundry.ExitInvalidArgument
		}
		return nil, exitError(code, "Failed to load job catalog", err)
	}

	rt, err := newRuntime(cat, cfg, opts...)
	if err != nil {
		return nil, err
	}

	store, err := jobstore.Open(ctx, cfg.Store.JobStore())
	if err != nil {
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to open record store", err)
	}
	if store.Dialect() == jobstore.DialectSQLite {
		if err := jobstore.Migrate(ctx, store.DB()); err != nil {
			_ = store.Close()
			return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to prepare sandbox schema", err)
		}
	}
	rt.store = store
	return rt, nil
}

// newRuntime builds everything except the store from an already loaded catalog.
func newRuntime(cat *catalog.Catalog, cfg *config.Config, opts ...jobmetrics.Option) (*appRuntime, error) {
	mapping, err := cat.StatusMapping()
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid catalog status map", err)
	}
	resolver := jobstatus.NewResolver(mapping)

	builder, err := jobflow.NewBuilder(cat.Flows)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid catalog flows", err)
	}

	return &appRuntime{
		cfg:      cfg,
		catalog:  cat,
		resolver: resolver,
		composer: jobflow.NewComposer(builder, resolver),
		agg:      jobmetrics.New(cfg.Jobs.Metrics(cat.BaselineDurations()), resolver, opts...),
	}, nil
}

func (rt *appRuntime) Close() error {
	if rt == nil || rt.store == nil {
		return nil
	}
	return rt.store.Close()
}

// withSession runs fn on one record-store session bounded by the request
// timeout.
func (rt *appRuntime) withSession(ctx context.Context, fn func(ctx context.Context, sess *jobstore.Session) error) error {
	if d := rt.cfg.Server.RequestTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	sess, err := rt.store.Acquire(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Record store unavailable", err)
	}
	defer func() { _ = sess.Close() }()
	return fn(ctx, sess)
}

func notifyContext() (context.Context, context.CancelFunc) {
	return ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
