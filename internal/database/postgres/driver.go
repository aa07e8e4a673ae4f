// Package postgres is the PostgreSQL engine adapter, built on pgx.
package postgres

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/koustreak/schemabridge/internal/database"
)

// Adapter probes PostgreSQL servers over a single pgx.Conn per call.
type Adapter struct {
	*database.Runner
}

var _ database.Adapter = (*Adapter)(nil)

// New returns a PostgreSQL adapter.
func New(opts database.Options, options ...database.AdapterOption) *Adapter {
	s := database.ApplyAdapterOptions(options...)
	if s.Dial == nil {
		s.Dial = dialer(opts.ConnectTimeout)
	}
	return &Adapter{Runner: database.NewRunner(dialect{}, s.Dial, opts, s.Log)}
}

func dialer(timeout time.Duration) database.Dialer {
	return func(ctx context.Context, cfg *database.Config) (database.Session, error) {
		connCfg, err := pgx.ParseConfig(buildDSN(cfg))
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			connCfg.ConnectTimeout = timeout
		}

		conn, err := pgx.ConnectConfig(ctx, connCfg)
		if err != nil {
			return nil, err
		}
		return &session{conn: conn}, nil
	}
}

func buildDSN(cfg *database.Config) string {
	port := cfg.Port
	if port == 0 {
		port = database.EnginePostgreSQL.DefaultPort()
	}
	db := cfg.Database
	if db == "" {
		db = database.EnginePostgreSQL.DefaultDatabase()
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Secret),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + db,
		RawQuery: "sslmode=prefer",
	}
	return u.String()
}

// session adapts a pgx.Conn to database.Session.
type session struct {
	conn *pgx.Conn
}

func (s *session) Strings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		if len(vals) > 0 {
			out = append(out, database.FormatValue(vals[0]))
		}
	}
	return out, rows.Err()
}

func (s *session) Int(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := s.conn.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(ctx)
}
