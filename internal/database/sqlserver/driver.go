// Package sqlserver is the SQL Server engine adapter, built on
// microsoft/go-mssqldb.
package sqlserver

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	_ "github.com/microsoft/go-mssqldb" // register "sqlserver" driver

	"github.com/koustreak/schemabridge/internal/database"
)

// Adapter probes SQL Server instances. Inside the remote deployment it
// dials the alternate host and tunnel port.
type Adapter struct {
	*database.Runner
}

var _ database.Adapter = (*Adapter)(nil)

// New returns a SQL Server adapter.
func New(opts database.Options, options ...database.AdapterOption) *Adapter {
	s := database.ApplyAdapterOptions(options...)
	if s.Dial == nil {
		s.Dial = dialer(opts)
	}
	return &Adapter{Runner: database.NewRunner(dialect{}, s.Dial, opts, s.Log)}
}

func dialer(opts database.Options) database.Dialer {
	return func(ctx context.Context, cfg *database.Config) (database.Session, error) {
		host, port := opts.Deployment.Endpoint(cfg)
		return database.OpenSQL(ctx, "sqlserver", buildDSN(cfg, host, port, opts.ConnectTimeout))
	}
}

// buildDSN renders the sqlserver:// URL form. Encryption is off and the
// server certificate trusted, matching how the stores' servers are set up.
func buildDSN(cfg *database.Config, host string, port int, timeout time.Duration) string {
	db := cfg.Database
	if db == "" {
		db = database.EngineSQLServer.DefaultDatabase()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	q := url.Values{}
	q.Set("database", db)
	q.Set("encrypt", "disable")
	q.Set("TrustServerCertificate", "true")
	q.Set("connection timeout", strconv.Itoa(int(timeout.Seconds())))
	q.Set("app name", "schemabridge")

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Secret),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}
