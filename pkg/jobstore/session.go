package jobstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Session is a single checked-out connection used for one request.
//
// Sessions are not safe for concurrent use; each request acquires its own.
type Session struct {
	conn    *sql.Conn
	dialect Dialect

	closeOnce sync.Once
	closeErr  error
}

// Close returns the connection to the pool. Safe to call more than once.
func (s *Session) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Session) query(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.conn.QueryContext(ctx, rebind(s.dialect, query), args...)
	if err != nil {
		return nil, &StoreError{Op: op, Err: err}
	}
	return rows, nil
}

func (s *Session) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn.QueryRowContext(ctx, rebind(s.dialect, query), args...)
}

// timeArg encodes a bound timestamp the way the dialect stores it.
func (s *Session) timeArg(t time.Time) any {
	if s.dialect == DialectSQLite {
		return t.UTC().Format(time.RFC3339)
	}
	return t.UTC()
}

// timeExpr wraps a timestamp column or placeholder so it compares in time
// order. SQLite stores timestamps as text in whatever layout the loader
// wrote (space or T separator, Z or numeric offset, date only), so it is
// normalized through julianday; other dialects have native types.
func (s *Session) timeExpr(expr string) string {
	if s.dialect == DialectSQLite {
		return "julianday(" + expr + ")"
	}
	return expr
}

// rebind rewrites ? placeholders to $n for postgres.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
