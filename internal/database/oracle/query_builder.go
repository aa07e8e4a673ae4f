package oracle

import (
	"fmt"

	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
)

// dialect holds Oracle's probe SQL. Identifiers are left unquoted so they
// resolve case-insensitively, as in the ERP's own queries.
type dialect struct{}

func (dialect) Engine() database.Engine { return database.EngineOracle }

func (dialect) LivenessQuery() string { return "SELECT 'OK' FROM DUAL" }

func (dialect) SampleQuery(p database.Probe, limit int) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE ROWNUM <= %d", p.Column, qualified(p), limit)
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
