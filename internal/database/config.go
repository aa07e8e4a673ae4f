package database

import (
	"strings"
	"time"

	"github.com/koustreak/schemabridge/internal/errs"
)

// Engine identifies the database engine behind a connection.
type Engine string

const (
	EngineOracle     Engine = "oracle"
	EngineSQLServer  Engine = "sqlserver"
	EngineMySQL      Engine = "mysql"
	EnginePostgreSQL Engine = "postgresql"
)

// Engines lists every supported engine in a stable order.
var Engines = []Engine{EngineOracle, EngineSQLServer, EngineMySQL, EnginePostgreSQL}

// ParseEngine accepts the canonical names plus the aliases stored by older
// admin screens (postgres, pg, mssql).
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "oracle":
		return EngineOracle, nil
	case "sqlserver", "mssql", "sql server":
		return EngineSQLServer, nil
	case "mysql", "mariadb":
		return EngineMySQL, nil
	case "postgresql", "postgres", "pg":
		return EnginePostgreSQL, nil
	}
	return "", errs.Newf(errs.ErrKindInvalidInput, "unsupported engine %q", s)
}

func (e Engine) String() string { return string(e) }

// Label is the human-readable engine name used in result messages.
func (e Engine) Label() string {
	switch e {
	case EngineOracle:
		return "Oracle"
	case EngineSQLServer:
		return "SQL Server"
	case EngineMySQL:
		return "MySQL"
	case EnginePostgreSQL:
		return "PostgreSQL"
	default:
		return string(e)
	}
}

// DefaultPort is the engine's conventional listener port.
func (e Engine) DefaultPort() int {
	switch e {
	case EngineOracle:
		return 1521
	case EngineSQLServer:
		return 1433
	case EngineMySQL:
		return 3306
	case EnginePostgreSQL:
		return 5432
	default:
		return 0
	}
}

// DefaultDatabase is used when a record leaves Database empty.
// MySQL connects without selecting a database.
func (e Engine) DefaultDatabase() string {
	switch e {
	case EngineOracle:
		return "orcl"
	case EngineSQLServer:
		return "master"
	case EnginePostgreSQL:
		return "postgres"
	default:
		return ""
	}
}

// Config holds the parameters needed to reach one customer database.
type Config struct {
	Engine        Engine `json:"engine"`
	Host          string `json:"host"`
	AlternateHost string `json:"alternateHost,omitempty"`
	Port          int    `json:"port"`
	Database      string `json:"database"` // service name on Oracle
	Schema        string `json:"schema,omitempty"`
	Username      string `json:"username"`
	Secret        string `json:"secret,omitempty"`
}

// WithDefaults returns a copy with the engine's default port and database
// filled in where unset.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = c.Engine.DefaultPort()
	}
	if c.Database == "" {
		c.Database = c.Engine.DefaultDatabase()
	}
	return c
}

// Validate checks the fields every engine needs.
func (c *Config) Validate() error {
	if c == nil {
		return errs.New(errs.ErrKindInvalidInput, "connection config is required")
	}
	if _, err := ParseEngine(string(c.Engine)); err != nil {
		return err
	}
	if strings.TrimSpace(c.Host) == "" {
		return errs.New(errs.ErrKindInvalidInput, "host is required")
	}
	if strings.TrimSpace(c.Username) == "" {
		return errs.New(errs.ErrKindInvalidInput, "username is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid port %d", c.Port)
	}
	return nil
}

// Options tunes how adapters dial and probe.
type Options struct {
	ConnectTimeout time.Duration
	SampleSize     int
	Deployment     Deployment
}

const (
	defaultConnectTimeout = 10 * time.Second
	defaultSampleSize     = 3
)

// DefaultOptions returns the timeouts used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: defaultConnectTimeout,
		SampleSize:     defaultSampleSize,
	}
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.SampleSize <= 0 {
		o.SampleSize = defaultSampleSize
	}
	return o
}

// Deployment describes the network context the process runs in. Inside the
// remote deployment, databases are reached through an alternate host and
// per-engine tunnel ports instead of the addresses stored on the record.
type Deployment struct {
	Remote      bool
	TunnelPorts map[Engine]int
}

// Endpoint returns the host and port to dial for cfg.
func (d Deployment) Endpoint(cfg *Config) (string, int) {
	host, port := cfg.Host, cfg.Port
	if port == 0 {
		port = cfg.Engine.DefaultPort()
	}
	if !d.Remote {
		return host, port
	}
	if cfg.AlternateHost != "" {
		host = cfg.AlternateHost
	}
	if p := d.TunnelPorts[cfg.Engine]; p > 0 {
		port = p
	}
	return host, port
}
