// Package oracle is the Oracle engine adapter, built on godror.
//
// godror loads the Oracle client library once per process. When an
// Instant Client directory is configured and present, it is passed as
// libDir (thick mode); otherwise the library is resolved from the system
// search path.
package oracle

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	_ "github.com/godror/godror" // register "godror" driver

	"github.com/koustreak/schemabridge/internal/database"
)

const (
	DefaultLibDirLinux   = "/opt/oracle/instantclient_23_4"
	DefaultLibDirWindows = `C:\oracle\instantclient_64\instantclient_23_4`
)

// Client modes.
const (
	ModeAuto   = "auto"   // libDir when the directory exists
	ModeThick  = "thick"  // always libDir
	ModeSystem = "system" // never libDir
)

// Client selects how the Oracle client library is located.
type Client struct {
	Mode          string `yaml:"mode"`
	LibDirLinux   string `yaml:"lib_dir_linux"`
	LibDirWindows string `yaml:"lib_dir_windows"`
}

// DefaultClient returns auto mode with the standard Instant Client paths.
func DefaultClient() Client {
	return Client{Mode: ModeAuto, LibDirLinux: DefaultLibDirLinux, LibDirWindows: DefaultLibDirWindows}
}

// LibDir returns the libDir to pass to godror on this host, or "".
func (c Client) LibDir() string {
	return c.libDirFor(runtime.GOOS, dirExists)
}

func (c Client) libDirFor(goos string, exists func(string) bool) string {
	dir := c.LibDirLinux
	if goos == "windows" {
		dir = c.LibDirWindows
	}
	if dir == "" {
		return ""
	}

	switch strings.ToLower(c.Mode) {
	case ModeSystem, "thin":
		return ""
	case ModeThick:
		return dir
	default:
		if exists(dir) {
			return dir
		}
		return ""
	}
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Adapter probes Oracle databases. Inside the remote deployment it dials
// the alternate host and tunnel port.
type Adapter struct {
	*database.Runner
}

var _ database.Adapter = (*Adapter)(nil)

// New returns an Oracle adapter.
func New(opts database.Options, client Client, options ...database.AdapterOption) *Adapter {
	s := database.ApplyAdapterOptions(options...)
	if s.Dial == nil {
		s.Dial = dialer(opts, client)
	}
	return &Adapter{Runner: database.NewRunner(dialect{}, s.Dial, opts, s.Log)}
}

// library tracks the process-wide client library load.
var library clientLoader

// clientLoader passes libDir only until the client library is loaded.
// godror keeps the first load for the life of the process and rejects a
// later libDir, so every dial after that omits it.
type clientLoader struct {
	loaded atomic.Bool
}

func (l *clientLoader) libDir(c Client) string {
	if l.loaded.Load() {
		return ""
	}
	return c.LibDir()
}

// observe records the outcome of one open. Success, and a rejection because
// the library is already in, both mean later dials must omit libDir.
func (l *clientLoader) observe(err error) {
	if err == nil || alreadyInitialized(err) {
		l.loaded.Store(true)
	}
}

func dialer(opts database.Options, client Client) database.Dialer {
	return func(ctx context.Context, cfg *database.Config) (database.Session, error) {
		host, port := opts.Deployment.Endpoint(cfg)

		sess, err := database.OpenSQL(ctx, "godror", buildDSN(cfg, host, port, library.libDir(client)))
		library.observe(err)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}

// buildDSN renders godror's logfmt connection parameters.
func buildDSN(cfg *database.Config, host string, port int, libDir string) string {
	service := cfg.Database
	if service == "" {
		service = database.EngineOracle.DefaultDatabase()
	}

	parts := []string{
		"user=" + strconv.Quote(cfg.Username),
		"password=" + strconv.Quote(cfg.Secret),
		"connectString=" + strconv.Quote(fmt.Sprintf("%s:%d/%s", host, port, service)),
		"standaloneConnection=1",
	}
	if libDir != "" {
		parts = append(parts, "libDir="+strconv.Quote(libDir))
	}
	return strings.Join(parts, " ")
}

func alreadyInitialized(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already been initialized")
}
