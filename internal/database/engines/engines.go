// Package engines assembles the adapter registry. It is the only package
// that imports every engine; the rest of the service sees database.Registry.
package engines

import (
	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/database/mysql"
	"github.com/koustreak/schemabridge/internal/database/oracle"
	"github.com/koustreak/schemabridge/internal/database/postgres"
	"github.com/koustreak/schemabridge/internal/database/sqlserver"
	"github.com/koustreak/schemabridge/internal/logger"
)

// Config tunes the adapters built by NewRegistry.
type Config struct {
	Options database.Options
	Oracle  oracle.Client
	Log     *logger.Logger
}

// NewRegistry builds one adapter per supported engine.
func NewRegistry(cfg Config) *database.Registry {
	withLog := database.WithLogger(cfg.Log)
	return database.NewRegistry(
		oracle.New(cfg.Options, cfg.Oracle, withLog),
		sqlserver.New(cfg.Options, withLog),
		mysql.New(cfg.Options, withLog),
		postgres.New(cfg.Options, withLog),
	)
}
