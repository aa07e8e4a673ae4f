package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	a := New(database.DefaultOptions(),
		database.WithLogger(logger.Nop()),
		database.WithDialer(func(context.Context, *database.Config) (database.Session, error) {
			return database.NewSQLSession(db), nil
		}),
	)
	return a, mock
}

func testConfig() *database.Config {
	return &database.Config{Engine: database.EngineMySQL, Host: "db.local", Username: "app", Secret: "pw", Schema: "erp"}
}

func TestAdapter_ProbeMapping(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery("SELECT `DES_EMBALAGEM` FROM `erp`.`TAB_PRODUTO` LIMIT 3").
		WillReturnRows(sqlmock.NewRows([]string{"DES_EMBALAGEM"}).AddRow("CX").AddRow("UN"))
	mock.ExpectQuery("SELECT COUNT(*) FROM `erp`.`TAB_PRODUTO`").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(2)))
	mock.ExpectClose()

	res := a.ProbeMapping(context.Background(), testConfig(), database.Probe{Table: "TAB_PRODUTO", Column: "DES_EMBALAGEM"})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "CX, UN", res.Sample)
	assert.Equal(t, int64(2), *res.RowCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ProbeMapping_TableMissing(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery("SELECT `COL` FROM `TAB_NOPE` LIMIT 3").
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'erp.TAB_NOPE' doesn't exist"})
	mock.ExpectClose()

	cfg := testConfig()
	cfg.Schema = ""
	res := a.ProbeMapping(context.Background(), cfg, database.Probe{Table: "TAB_NOPE", Column: "COL"})

	assert.False(t, res.Success)
	assert.Equal(t, database.OutcomeTableNotFound, res.Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_TestLiveness(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	mock.ExpectClose()

	res := a.TestLiveness(context.Background(), testConfig())

	assert.True(t, res.Success)
	assert.Equal(t, database.EngineMySQL, res.Engine)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
		out  database.Outcome
	}{
		{"no such table", &mysql.MySQLError{Number: 1146}, errs.ErrKindObjectNotFound, database.OutcomeTableNotFound},
		{"bad field", &mysql.MySQLError{Number: 1054}, errs.ErrKindObjectNotFound, database.OutcomeColumnNotFound},
		{"access denied", &mysql.MySQLError{Number: 1045}, errs.ErrKindPermissionDenied, database.OutcomePermissionDenied},
		{"unknown database", &mysql.MySQLError{Number: 1049}, errs.ErrKindConnectionFailed, database.OutcomeConnectionFailed},
		{"syntax", &mysql.MySQLError{Number: 1064}, errs.ErrKindQueryFailed, database.OutcomeQueryFailed},
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout, database.OutcomeTimeout},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed, database.OutcomeConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mapError(tt.err, "probe")
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.out, database.OutcomeOf(e))
		})
	}
}

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(&database.Config{Host: "db.local", Username: "app", Secret: "p@ss:word", Database: "erp"}, 10*time.Second)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "db.local:3306", parsed.Addr)
	assert.Equal(t, "erp", parsed.DBName)
	assert.Equal(t, 10*time.Second, parsed.Timeout)
}
