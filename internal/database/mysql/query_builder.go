package mysql

import (
	"fmt"

	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
)

// dialect holds MySQL's probe SQL. Identifiers arrive sanitized and are
// backtick-quoted.
type dialect struct{}

func (dialect) Engine() database.Engine { return database.EngineMySQL }

func (dialect) LivenessQuery() string { return "SELECT 1" }

func (dialect) SampleQuery(p database.Probe, limit int) string {
	return fmt.Sprintf("SELECT %s FROM %s LIMIT %d", quote(p.Column), qualified(p), limit)
}

func (dialect) CountQuery(p database.Probe) string {
	return "SELECT COUNT(*) FROM " + qualified(p)
}

func (dialect) MapError(err error, msg string) *errs.Error { return mapError(err, msg) }

func quote(ident string) string { return "`" + ident + "`" }

func qualified(p database.Probe) string {
	if p.Schema == "" {
		return quote(p.Table)
	}
	return quote(p.Schema) + "." + quote(p.Table)
}
