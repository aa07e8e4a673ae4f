// Package config loads the service configuration: a YAML file over
// built-in defaults, then an optional .env file, then environment
// variables.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/database/oracle"
	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/filestore"
	"github.com/koustreak/schemabridge/internal/logger"
	"go.yaml.in/yaml/v3"
)

// EnvPrefix prefixes every service-specific environment variable.
const EnvPrefix = "SCHEMABRIDGE_"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        logger.Config    `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Mapping    MappingConfig    `yaml:"mapping"`
	Probe      ProbeConfig      `yaml:"probe"`
	Oracle     oracle.Client    `yaml:"oracle"`
	Deployment DeploymentConfig `yaml:"deployment"`
	Snapshots  SnapshotConfig   `yaml:"snapshots"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	// Path of the SQLite file holding connection records.
	Path string `yaml:"path"`
}

type MappingConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type ProbeConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SampleSize     int           `yaml:"sample_size"`
	// Parallelism bounds concurrent column probes when testing a table.
	Parallelism int `yaml:"parallelism"`
}

// DeploymentConfig describes the remote network context, where customer
// databases are reached through alternate hosts and SSH tunnel ports.
type DeploymentConfig struct {
	Remote              bool `yaml:"remote"`
	TunnelOraclePort    int  `yaml:"tunnel_oracle_port"`
	TunnelSQLServerPort int  `yaml:"tunnel_sqlserver_port"`
}

type SnapshotConfig struct {
	Enabled bool             `yaml:"enabled"`
	Store   filestore.Config `yaml:"store"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: logger.Config{
			Level:      "info",
			Format:     "json",
			TimeFormat: "rfc3339",
		},
		Store:   StoreConfig{Path: "schemabridge.db"},
		Mapping: MappingConfig{CacheTTL: 5 * time.Minute},
		Probe: ProbeConfig{
			ConnectTimeout: 10 * time.Second,
			SampleSize:     3,
			Parallelism:    4,
		},
		Oracle: oracle.DefaultClient(),
		Snapshots: SnapshotConfig{
			Store: *filestore.DefaultConfig("localhost:9000", "", ""),
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads path (optional), then envFiles (missing ones are skipped),
// then the environment. Variables already set in the environment win over
// .env files.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConfigurationMissing, "failed to read config file "+path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse config file "+path, err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to load env file "+f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var e envReader

	e.str("ADDR", &c.Server.Addr)
	e.str("STORE_PATH", &c.Store.Path)
	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup(EnvPrefix + "LOG_FILE"); ok {
		if c.Log.File == nil {
			c.Log.File = &logger.FileConfig{}
		}
		c.Log.File.Path = v
	}
	e.duration("MAPPING_CACHE_TTL", &c.Mapping.CacheTTL)
	e.duration("CONNECT_TIMEOUT", &c.Probe.ConnectTimeout)
	e.integer("PROBE_PARALLELISM", &c.Probe.Parallelism)
	e.str("ORACLE_MODE", &c.Oracle.Mode)
	e.str("ORACLE_LIB_DIR", &c.Oracle.LibDirLinux)
	e.str("ORACLE_LIB_DIR_WINDOWS", &c.Oracle.LibDirWindows)
	e.boolean("SNAPSHOTS_ENABLED", &c.Snapshots.Enabled)
	e.str("MINIO_ENDPOINT", &c.Snapshots.Store.Endpoint)
	e.str("MINIO_ACCESS_KEY", &c.Snapshots.Store.AccessKey)
	e.str("MINIO_SECRET_KEY", &c.Snapshots.Store.SecretKey)
	e.str("MINIO_BUCKET", &c.Snapshots.Store.Bucket)
	e.boolean("MINIO_USE_SSL", &c.Snapshots.Store.UseSSL)
	e.boolean("METRICS_ENABLED", &c.Metrics.Enabled)

	// Names shared with the rest of the platform, without the prefix.
	if v, _ := lookup("DOCKER_CONTAINER"); strings.EqualFold(v, "true") {
		c.Deployment.Remote = true
	}
	if v, _ := lookup("APP_ENV"); strings.EqualFold(v, "production") {
		c.Deployment.Remote = true
	}
	e.raw("TUNNEL_ORACLE_PORT", func(v string) error { return parseInt(v, &c.Deployment.TunnelOraclePort) })
	e.raw("TUNNEL_SQLSERVER_PORT", func(v string) error { return parseInt(v, &c.Deployment.TunnelSQLServerPort) })

	return e.err
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Server.Addr) == "":
		return errs.New(errs.ErrKindInvalidInput, "server.addr is required")
	case strings.TrimSpace(c.Store.Path) == "":
		return errs.New(errs.ErrKindInvalidInput, "store.path is required")
	case c.Mapping.CacheTTL <= 0:
		return errs.New(errs.ErrKindInvalidInput, "mapping.cache_ttl must be positive")
	case c.Probe.ConnectTimeout <= 0:
		return errs.New(errs.ErrKindInvalidInput, "probe.connect_timeout must be positive")
	case c.Probe.SampleSize <= 0:
		return errs.New(errs.ErrKindInvalidInput, "probe.sample_size must be positive")
	case c.Snapshots.Enabled && (c.Snapshots.Store.Endpoint == "" || c.Snapshots.Store.Bucket == ""):
		return errs.New(errs.ErrKindInvalidInput, "snapshots need store.endpoint and store.bucket")
	}
	for _, p := range []int{c.Deployment.TunnelOraclePort, c.Deployment.TunnelSQLServerPort} {
		if p < 0 || p > 65535 {
			return errs.Newf(errs.ErrKindInvalidInput, "invalid tunnel port %d", p)
		}
	}
	switch strings.ToLower(c.Oracle.Mode) {
	case "", oracle.ModeAuto, oracle.ModeThick, oracle.ModeSystem, "thin":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unknown oracle.mode %q", c.Oracle.Mode)
	}
	return nil
}

// DatabaseOptions converts the probe and deployment sections for the adapters.
func (c *Config) DatabaseOptions() database.Options {
	tunnels := map[database.Engine]int{}
	if c.Deployment.TunnelOraclePort > 0 {
		tunnels[database.EngineOracle] = c.Deployment.TunnelOraclePort
	}
	if c.Deployment.TunnelSQLServerPort > 0 {
		tunnels[database.EngineSQLServer] = c.Deployment.TunnelSQLServerPort
	}
	return database.Options{
		ConnectTimeout: c.Probe.ConnectTimeout,
		SampleSize:     c.Probe.SampleSize,
		Deployment: database.Deployment{
			Remote:      c.Deployment.Remote,
			TunnelPorts: tunnels,
		},
	}
}

// envReader applies prefixed variables and keeps the first parse error.
type envReader struct {
	err error
}

func (e *envReader) raw(name string, set func(string) error) {
	v, ok := lookup(name)
	if !ok || e.err != nil {
		return
	}
	if err := set(v); err != nil {
		e.err = errs.Wrap(errs.ErrKindInvalidInput, "invalid value for "+name, err)
	}
}

func (e *envReader) str(name string, dst *string) {
	e.raw(EnvPrefix+name, func(v string) error {
		*dst = v
		return nil
	})
}

func (e *envReader) integer(name string, dst *int) {
	e.raw(EnvPrefix+name, func(v string) error { return parseInt(v, dst) })
}

func (e *envReader) boolean(name string, dst *bool) {
	e.raw(EnvPrefix+name, func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	})
}

func (e *envReader) duration(name string, dst *time.Duration) {
	e.raw(EnvPrefix+name, func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	})
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// lookup treats an empty variable as unset.
func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
