package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Session is one open connection to a customer database, scoped to a
// single probe. Implementations are not safe for concurrent use.
type Session interface {
	// Strings runs query and returns the first column of every row as text.
	Strings(ctx context.Context, query string) ([]string, error)

	// Int runs query and scans the single integer it returns.
	Int(ctx context.Context, query string) (int64, error)

	Close() error
}

// Dialer opens a Session for cfg. Adapters take one so tests can swap in
// sqlmock or a fake.
type Dialer func(ctx context.Context, cfg *Config) (Session, error)

// SQLSession is a Session over database/sql, shared by the engines whose
// drivers register with it (godror, go-mssqldb, go-sql-driver/mysql).
type SQLSession struct {
	db *sql.DB
}

// NewSQLSession wraps an already opened *sql.DB.
func NewSQLSession(db *sql.DB) *SQLSession {
	return &SQLSession{db: db}
}

// OpenSQL opens a single-connection pool and pings it. The pool is closed
// if the ping fails, so callers only own the returned session.
func OpenSQL(ctx context.Context, driverName, dsn string) (*SQLSession, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLSession(db), nil
}

func (s *SQLSession) Strings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, FormatValue(v))
	}
	return out, rows.Err()
}

func (s *SQLSession) Int(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLSession) Close() error {
	return s.db.Close()
}

// FormatValue renders a scanned column value for a sample list.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
