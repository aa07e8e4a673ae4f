package postgres

import (
	"fmt"

	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
)

// dialect holds PostgreSQL's probe SQL. Identifiers stay unquoted, so they
// fold to lower case the same way the customer's own queries do.
type dialect struct{}

func (dialect) Engine() database.Engine { return database.EnginePostgreSQL }

func (dialect) LivenessQuery() string { return "SELECT 1" }

func (dialect) SampleQuery(p database.Probe, limit int) string {
	return fmt.Sprintf("SELECT %s FROM %s LIMIT %d", p.Column, qualified(p), limit)
}

func (dialect) CountQuery(p database.Probe) string {
	return "SELECT COUNT(*) FROM " + qualified(p)
}

func (dialect) MapError(err error, msg string) *errs.Error { return mapError(err, msg) }

func qualified(p database.Probe) string {
	if p.Schema == "" {
		return p.Table
	}
	return p.Schema + "." + p.Table
}
