package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSession answers queries from a map; a missing query is an error.
type scriptedSession struct {
	rows   map[string][]string
	counts map[string]int64
	fail   error
	seen   []string
	closed bool
}

func (s *scriptedSession) Strings(_ context.Context, q string) ([]string, error) {
	s.seen = append(s.seen, q)
	if s.fail != nil {
		return nil, s.fail
	}
	v, ok := s.rows[q]
	if !ok {
		return nil, errors.New("unexpected query: " + q)
	}
	return v, nil
}

func (s *scriptedSession) Int(_ context.Context, q string) (int64, error) {
	s.seen = append(s.seen, q)
	n, ok := s.counts[q]
	if !ok {
		return 0, errors.New("unexpected query: " + q)
	}
	return n, nil
}

func (s *scriptedSession) Close() error { s.closed = true; return nil }

func newScripted(s *scriptedSession) *Adapter {
	return New(database.DefaultOptions(),
		database.WithLogger(logger.Nop()),
		database.WithDialer(func(context.Context, *database.Config) (database.Session, error) { return s, nil }),
	)
}

func testConfig() *database.Config {
	return &database.Config{Engine: database.EnginePostgreSQL, Host: "pg.local", Username: "app", Secret: "pw", Schema: "erp"}
}

func TestAdapter_ProbeMapping(t *testing.T) {
	s := &scriptedSession{
		rows:   map[string][]string{"SELECT des_embalagem FROM erp.tab_produto LIMIT 3": {"CX"}},
		counts: map[string]int64{"SELECT COUNT(*) FROM erp.tab_produto": 1},
	}

	res := newScripted(s).ProbeMapping(context.Background(), testConfig(),
		database.Probe{Table: "tab_produto", Column: "des_embalagem"})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "CX", res.Sample)
	assert.True(t, s.closed)
}

func TestAdapter_ProbeMapping_UndefinedTable(t *testing.T) {
	s := &scriptedSession{fail: &pgconn.PgError{Code: "42P01", Message: `relation "tab_nope" does not exist`}}

	res := newScripted(s).ProbeMapping(context.Background(), testConfig(), database.Probe{Table: "tab_nope", Column: "x"})

	assert.False(t, res.Success)
	assert.Equal(t, database.OutcomeTableNotFound, res.Outcome)
	assert.Contains(t, res.Message, "tab_nope")
}

func TestAdapter_TestLiveness(t *testing.T) {
	s := &scriptedSession{rows: map[string][]string{"SELECT 1": {"1"}}}

	res := newScripted(s).TestLiveness(context.Background(), testConfig())

	assert.True(t, res.Success)
	assert.Equal(t, "PostgreSQL connection established", res.Message)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		out  database.Outcome
	}{
		{"undefined table", &pgconn.PgError{Code: "42P01"}, database.OutcomeTableNotFound},
		{"undefined column", &pgconn.PgError{Code: "42703"}, database.OutcomeColumnNotFound},
		{"bad password", &pgconn.PgError{Code: "28P01"}, database.OutcomePermissionDenied},
		{"no privilege", &pgconn.PgError{Code: "42501"}, database.OutcomePermissionDenied},
		{"unknown database", &pgconn.PgError{Code: "3D000"}, database.OutcomeConnectionFailed},
		{"admin shutdown", &pgconn.PgError{Code: "08006"}, database.OutcomeConnectionFailed},
		{"canceled", &pgconn.PgError{Code: "57014"}, database.OutcomeTimeout},
		{"syntax", &pgconn.PgError{Code: "42601"}, database.OutcomeQueryFailed},
		{"deadline", context.DeadlineExceeded, database.OutcomeTimeout},
		{"dial", errors.New("dial error"), database.OutcomeConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, database.OutcomeOf(mapError(tt.err, "probe")))
		})
	}

	assert.True(t, errs.IsPermissionDenied(mapError(&pgconn.PgError{Code: "28000"}, "probe")))
}

func TestBuildDSN(t *testing.T) {
	cfg, err := pgx.ParseConfig(buildDSN(&database.Config{Host: "pg.local", Username: "app", Secret: "p@ss/word"}))
	require.NoError(t, err)

	assert.Equal(t, "pg.local", cfg.Host)
	assert.Equal(t, uint16(5432), cfg.Port)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "p@ss/word", cfg.Password)
	assert.Equal(t, "postgres", cfg.Database)
}
