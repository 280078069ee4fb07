package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Store is a handle on the job record store.
//
// It owns the connection pool. Request-scoped reads go through a Session
// obtained from Acquire so the connection is released on every exit path.
type Store struct {
	db      *sql.DB
	dialect Dialect
	pool    *pgxpool.Pool
}

// New wraps an already-open database. Used by tests and by callers that
// manage the pool themselves.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open connects to the store described by cfg and verifies it with a ping.
//
// Notes:
// - SQLite paths are created if parent directories do not exist.
// - Remote libsql URLs require a cgo-enabled build.
// - Postgres connections go through a pgx pool exposed as *sql.DB.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, err
	}
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	var (
		db   *sql.DB
		pool *pgxpool.Pool
	)
	switch dialect {
	case DialectSQLite:
		db, err = openSQLite(ctx, dsn)
	case DialectPostgres:
		db, pool, err = openPostgres(ctx, dsn, cfg)
	case DialectMySQL:
		db, err = openMySQL(dsn)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 && dialect != DialectSQLite {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		if pool != nil {
			pool.Close()
		}
		return nil, &StoreError{Op: "ping", Err: err}
	}

	return &Store{db: db, dialect: dialect, pool: pool}, nil
}

func openPostgres(ctx context.Context, dsn string, cfg Config) (*sql.DB, *pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "jobscope"

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, nil, &StoreError{Op: "open", Err: err}
	}
	return stdlib.OpenDBFromPool(pool), pool, nil
}

func openMySQL(dsn string) (*sql.DB, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	// DATETIME columns arrive as text; parseRecordTime handles both layouts.
	mc.ParseTime = false
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	return sql.OpenDB(connector), nil
}

// Dialect reports the SQL dialect of the store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// DB exposes the underlying pool for schema bootstrap and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return &StoreError{Op: "ping", Err: errors.New("store is not open")}
	}
	if err := s.db.PingContext(ctx); err != nil {
		return &StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// Acquire checks out a dedicated connection for one unit of work.
// The caller must Close the session; Close is safe to call more than once.
func (s *Store) Acquire(ctx context.Context) (*Session, error) {
	if s == nil || s.db == nil {
		return nil, &StoreError{Op: "acquire", Err: errors.New("store is not open")}
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &StoreError{Op: "acquire", Err: err}
	}
	return &Session{conn: conn, dialect: s.dialect}, nil
}
