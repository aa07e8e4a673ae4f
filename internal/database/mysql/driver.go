// Package mysql is the MySQL engine adapter, built on go-sql-driver/mysql.
package mysql

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/schemabridge/internal/database"
)

// Adapter probes MySQL servers. It is safe for concurrent use; every call
// opens and closes its own connection.
type Adapter struct {
	*database.Runner
}

var _ database.Adapter = (*Adapter)(nil)

// New returns a MySQL adapter.
func New(opts database.Options, options ...database.AdapterOption) *Adapter {
	s := database.ApplyAdapterOptions(options...)
	if s.Dial == nil {
		s.Dial = dialer(opts.ConnectTimeout)
	}
	return &Adapter{Runner: database.NewRunner(dialect{}, s.Dial, opts, s.Log)}
}

func dialer(timeout time.Duration) database.Dialer {
	return func(ctx context.Context, cfg *database.Config) (database.Session, error) {
		return database.OpenSQL(ctx, "mysql", buildDSN(cfg, timeout))
	}
}

// buildDSN renders cfg through mysql.Config so passwords with special
// characters survive.
func buildDSN(cfg *database.Config, timeout time.Duration) string {
	port := cfg.Port
	if port == 0 {
		port = database.EngineMySQL.DefaultPort()
	}

	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Secret
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.Timeout = timeout
	mc.ReadTimeout = timeout
	return mc.FormatDSN()
}
