package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNoSuchTable = errors.New("no such table")

type fakeDialect struct{}

func (fakeDialect) Engine() Engine        { return EngineMySQL }
func (fakeDialect) LivenessQuery() string { return "SELECT 1" }
func (fakeDialect) SampleQuery(p Probe, limit int) string {
	return fmt.Sprintf("SAMPLE %s.%s.%s %d", p.Schema, p.Table, p.Column, limit)
}
func (fakeDialect) CountQuery(p Probe) string { return "COUNT " + p.Table }
func (fakeDialect) MapError(err error, msg string) *errs.Error {
	if e := MapCommon(err, msg); e != nil {
		return e
	}
	if errors.Is(err, errNoSuchTable) {
		return TableNotFound(msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

type fakeSession struct {
	strings map[string][]string
	ints    map[string]int64
	err     error
	queries []string
	closed  bool
}

func (s *fakeSession) Strings(_ context.Context, q string) ([]string, error) {
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	return s.strings[q], nil
}

func (s *fakeSession) Int(_ context.Context, q string) (int64, error) {
	s.queries = append(s.queries, q)
	return s.ints[q], nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func dialTo(s *fakeSession, dialErr error) Dialer {
	return func(ctx context.Context, _ *Config) (Session, error) {
		if _, ok := ctx.Deadline(); !ok {
			return nil, errors.New("dialed without a deadline")
		}
		if dialErr != nil {
			return nil, dialErr
		}
		return s, nil
	}
}

func validConfig() *Config {
	return &Config{Engine: EngineMySQL, Host: "db.local", Username: "app", Secret: "pw", Schema: "erp"}
}

func TestRunner_TestLiveness(t *testing.T) {
	sess := &fakeSession{strings: map[string][]string{"SELECT 1": {"1"}}}
	r := NewRunner(fakeDialect{}, dialTo(sess, nil), Options{}, logger.Nop())

	res := r.TestLiveness(context.Background(), validConfig())

	assert.True(t, res.Success)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, EngineMySQL, res.Engine)
	assert.Equal(t, "MySQL connection established", res.Message)
	assert.True(t, sess.closed)
}

func TestRunner_TestLiveness_EmptyResult(t *testing.T) {
	sess := &fakeSession{}
	r := NewRunner(fakeDialect{}, dialTo(sess, nil), Options{}, logger.Nop())

	res := r.TestLiveness(context.Background(), validConfig())

	assert.False(t, res.Success)
	assert.Equal(t, OutcomeQueryFailed, res.Outcome)
}

func TestRunner_DialFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome Outcome
	}{
		{"deadline", context.DeadlineExceeded, OutcomeTimeout},
		{"unknown driver", errors.New(`sql: unknown driver "godror" (forgotten import?)`), OutcomeDriverNotInstalled},
		{"already classified", errs.New(errs.ErrKindPermissionDenied, "login failed"), OutcomePermissionDenied},
		{"other", errors.New("boom"), OutcomeQueryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(fakeDialect{}, dialTo(nil, tt.err), Options{}, logger.Nop())
			res := r.TestLiveness(context.Background(), validConfig())
			assert.False(t, res.Success)
			assert.Equal(t, tt.outcome, res.Outcome)
		})
	}
}

func TestRunner_ProbeMapping(t *testing.T) {
	sess := &fakeSession{
		strings: map[string][]string{"SAMPLE erp.TAB_PRODUTO.DES_EMBALAGEM 3": {"CX", "UN", "NULL"}},
		ints:    map[string]int64{"COUNT TAB_PRODUTO": 1200},
	}
	r := NewRunner(fakeDialect{}, dialTo(sess, nil), Options{}, logger.Nop())

	res := r.ProbeMapping(context.Background(), validConfig(), Probe{Table: "TAB_PRODUTO", Column: "DES_EMBALAGEM"})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"CX", "UN", "NULL"}, res.Values)
	assert.Equal(t, "CX, UN, NULL", res.Sample)
	require.NotNil(t, res.RowCount)
	assert.Equal(t, int64(1200), *res.RowCount)
	assert.True(t, sess.closed)
}

func TestRunner_ProbeMapping_SanitizesAndOverridesSchema(t *testing.T) {
	sess := &fakeSession{}
	r := NewRunner(fakeDialect{}, dialTo(sess, nil), Options{SampleSize: 5}, logger.Nop())

	r.ProbeMapping(context.Background(), validConfig(), Probe{Table: "TAB;DROP", Column: "COL-1", Schema: "other"})

	require.NotEmpty(t, sess.queries)
	assert.Equal(t, "SAMPLE other.TABDROP.COL1 5", sess.queries[0])
}

func TestRunner_ProbeMapping_InvalidInput(t *testing.T) {
	r := NewRunner(fakeDialect{}, dialTo(&fakeSession{}, nil), Options{}, logger.Nop())

	res := r.ProbeMapping(context.Background(), validConfig(), Probe{Table: "!!!", Column: "X"})
	assert.Equal(t, OutcomeInvalidInput, res.Outcome)

	cfg := validConfig()
	cfg.Host = ""
	res = r.ProbeMapping(context.Background(), cfg, Probe{Table: "T", Column: "X"})
	assert.Equal(t, OutcomeInvalidInput, res.Outcome)

	cfg = validConfig()
	cfg.Engine = EngineOracle
	res = r.ProbeMapping(context.Background(), cfg, Probe{Table: "T", Column: "X"})
	assert.Equal(t, OutcomeInvalidInput, res.Outcome)
}

func TestRunner_ProbeMapping_TableNotFound(t *testing.T) {
	sess := &fakeSession{err: errNoSuchTable}
	r := NewRunner(fakeDialect{}, dialTo(sess, nil), Options{}, logger.Nop())

	res := r.ProbeMapping(context.Background(), validConfig(), Probe{Table: "TAB_NOPE", Column: "X"})

	assert.False(t, res.Success)
	assert.Equal(t, OutcomeTableNotFound, res.Outcome)
	assert.Contains(t, res.Message, "TAB_NOPE")
	assert.True(t, sess.closed)
}

func TestRegistry(t *testing.T) {
	sess := &fakeSession{strings: map[string][]string{"SELECT 1": {"1"}}}
	reg := NewRegistry(NewRunner(fakeDialect{}, dialTo(sess, nil), Options{}, logger.Nop()))

	assert.Equal(t, []Engine{EngineMySQL}, reg.Engines())

	a, err := reg.Get("mariadb")
	require.NoError(t, err)
	assert.Equal(t, EngineMySQL, a.Engine())

	res := reg.TestLiveness(context.Background(), validConfig())
	assert.True(t, res.Success)

	res = reg.TestLiveness(context.Background(), &Config{Engine: "db2", Host: "h", Username: "u"})
	assert.Equal(t, OutcomeUnsupportedEngine, res.Outcome)

	res = reg.ProbeMapping(context.Background(), &Config{Engine: EngineOracle, Host: "h", Username: "u"}, Probe{Table: "T", Column: "C"})
	assert.Equal(t, OutcomeUnsupportedEngine, res.Outcome)

	res = reg.TestLiveness(context.Background(), nil)
	assert.Equal(t, OutcomeInvalidInput, res.Outcome)
}

func TestParseEngine(t *testing.T) {
	for in, want := range map[string]Engine{
		"oracle": EngineOracle, "MSSQL": EngineSQLServer, "sqlserver": EngineSQLServer,
		"mysql": EngineMySQL, "postgres": EnginePostgreSQL, "pg": EnginePostgreSQL, " PostgreSQL ": EnginePostgreSQL,
	} {
		got, err := ParseEngine(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEngine("sybase")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestConfig_WithDefaults(t *testing.T) {
	c := Config{Engine: EngineSQLServer}.WithDefaults()
	assert.Equal(t, 1433, c.Port)
	assert.Equal(t, "master", c.Database)

	c = Config{Engine: EngineMySQL, Port: 3307}.WithDefaults()
	assert.Equal(t, 3307, c.Port)
	assert.Empty(t, c.Database)

	assert.Equal(t, "orcl", Config{Engine: EngineOracle}.WithDefaults().Database)
	assert.Equal(t, 5432, Config{Engine: EnginePostgreSQL}.WithDefaults().Port)
}

func TestDeployment_Endpoint(t *testing.T) {
	cfg := &Config{Engine: EngineOracle, Host: "10.0.0.5", AlternateHost: "tunnel.internal", Port: 1521}

	host, port := Deployment{}.Endpoint(cfg)
	assert.Equal(t, "10.0.0.5", host)
	assert.Equal(t, 1521, port)

	host, port = Deployment{Remote: true, TunnelPorts: map[Engine]int{EngineOracle: 11521}}.Endpoint(cfg)
	assert.Equal(t, "tunnel.internal", host)
	assert.Equal(t, 11521, port)

	cfg.AlternateHost = ""
	cfg.Port = 0
	host, port = Deployment{Remote: true}.Endpoint(cfg)
	assert.Equal(t, "10.0.0.5", host)
	assert.Equal(t, 1521, port)
}

func TestSanitizeIdentifier(t *testing.T) {
	assert.Equal(t, "TAB_PRODUTO", SanitizeIdentifier("TAB_PRODUTO"))
	assert.Equal(t, "TABPRODUTO", SanitizeIdentifier(`TAB"PRODUTO`))
	assert.Equal(t, "x1DROPTABLEt", SanitizeIdentifier("x1; DROP TABLE t--"))
	assert.Equal(t, "o", SanitizeIdentifier("ção"))
	assert.Equal(t, "", SanitizeIdentifier("--"))
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeOK, OutcomeOf(nil))
	assert.Equal(t, OutcomeColumnNotFound, OutcomeOf(ColumnNotFound("x", errors.New("n"))))
	assert.Equal(t, OutcomeTableNotFound, OutcomeOf(errs.New(errs.ErrKindObjectNotFound, "x")))
	assert.Equal(t, OutcomeDriverNotInstalled, OutcomeOf(DriverNotInstalled(EngineOracle, "install Instant Client", nil)))
	assert.Equal(t, OutcomeQueryFailed, OutcomeOf(errors.New("plain")))
}

func TestSQLSession(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT c FROM t").WillReturnRows(
		sqlmock.NewRows([]string{"c"}).AddRow("a").AddRow(nil).AddRow([]byte("b")).AddRow(ts).AddRow(int64(7)),
	)
	mock.ExpectQuery("SELECT COUNT(*) FROM t").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(42)))
	mock.ExpectClose()

	s := NewSQLSession(db)
	values, err := s.Strings(context.Background(), "SELECT c FROM t")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "NULL", "b", "2024-05-01T12:00:00Z", "7"}, values)

	n, err := s.Int(context.Background(), "SELECT COUNT(*) FROM t")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	require.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
