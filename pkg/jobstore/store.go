package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Dialect selects SQL placeholder style and the driver used by Open.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// ParseDialect normalizes a driver name from configuration.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3", "libsql", "turso":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("unsupported store driver: %q", s)
	}
}

// Config describes how to reach the job record store.
type Config struct {
	// Driver is one of sqlite (default), postgres, mysql.
	Driver string

	// Path is a local filesystem path to a SQLite database.
	// If set, it is converted into a libsql-compatible DSN (file:<path>).
	Path string

	// URL is a libsql/Turso URL, e.g. libsql://your-db.turso.io.
	URL string

	// AuthToken is appended to URL-based DSNs as authToken=... when not already present.
	AuthToken string

	// DSN is passed to the postgres or mysql driver verbatim when set.
	DSN string

	// Host, Port, User, Password and Name build a DSN for postgres/mysql
	// when DSN is empty.
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// MaxOpenConns caps pooled connections (0 keeps the driver default).
	MaxOpenConns int

	// ConnMaxLifetime recycles pooled connections (0 disables).
	ConnMaxLifetime time.Duration
}

// Dialect returns the parsed dialect, defaulting to SQLite.
func (c Config) Dialect() (Dialect, error) {
	return ParseDialect(c.Driver)
}

func buildDSN(cfg Config) (string, error) {
	dialect, err := cfg.Dialect()
	if err != nil {
		return "", err
	}
	switch dialect {
	case DialectPostgres:
		return buildPostgresDSN(cfg)
	case DialectMySQL:
		return buildMySQLDSN(cfg)
	}

	if u := strings.TrimSpace(cfg.URL); u != "" {
		return addAuthToken(u, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", errors.New("store path or url is required")
	}
	if path == ":memory:" {
		return path, nil
	}

	if strings.HasPrefix(path, "file:") || strings.HasPrefix(path, "libsql:") {
		if strings.HasPrefix(path, "file:") {
			localPath, err := extractFilePath(path)
			if err != nil {
				return "", err
			}
			if err := ensureStoreDir(localPath); err != nil {
				return "", err
			}
		}
		return path, nil
	}

	if err := ensureStoreDir(path); err != nil {
		return "", err
	}

	return "file:" + filepath.Clean(path), nil
}

func buildPostgresDSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, nil
	}
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.Name) == "" {
		return "", errors.New("postgres store requires dsn or host and name")
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   hostPort(cfg.Host, cfg.Port, 5432),
		Path:   "/" + cfg.Name,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	return u.String(), nil
}

func buildMySQLDSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, nil
	}
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.Name) == "" {
		return "", errors.New("mysql store requires dsn or host and name")
	}

	var b strings.Builder
	if cfg.User != "" {
		b.WriteString(cfg.User)
		if cfg.Password != "" {
			b.WriteString(":")
			b.WriteString(cfg.Password)
		}
		b.WriteString("@")
	}
	b.WriteString("tcp(")
	b.WriteString(hostPort(cfg.Host, cfg.Port, 3306))
	b.WriteString(")/")
	b.WriteString(cfg.Name)
	return b.String(), nil
}

func hostPort(host string, port, fallback int) string {
	if port <= 0 {
		port = fallback
	}
	return strings.TrimSpace(host) + ":" + strconv.Itoa(port)
}

func addAuthToken(dsn string, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}

	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}

	return parsed.String(), nil
}

func extractFilePath(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store path: %w", err)
	}

	if parsed.Path != "" {
		return strings.TrimPrefix(parsed.Path, "//"), nil
	}

	return strings.TrimPrefix(parsed.Opaque, "//"), nil
}

func configureLocalSQLite(ctx context.Context, db *sql.DB, dsn string) error {
	if db == nil {
		return errors.New("store connection is nil")
	}
	if dsn == ":memory:" {
		// Every pooled connection would see its own empty in-memory database.
		db.SetMaxOpenConns(1)
		return nil
	}
	if !strings.HasPrefix(dsn, "file:") {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}

	return nil
}

func ensureStoreDir(path string) error {
	if strings.TrimSpace(path) == "" || path == ":memory:" {
		return nil
	}

	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}

	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
