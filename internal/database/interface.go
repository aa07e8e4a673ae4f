package database

import (
	"context"
	"strings"

	"github.com/koustreak/schemabridge/internal/errs"
)

// Adapter is the uniform contract every engine implements.
// Callers above this package talk only to this interface (usually through
// a Registry) and never import the engine packages directly.
type Adapter interface {
	Engine() Engine

	// TestLiveness opens one connection and runs the engine's trivial query.
	TestLiveness(ctx context.Context, cfg *Config) Result

	// ProbeMapping samples a column and counts its table, proving that a
	// mapped (table, column) pair exists on the live database.
	ProbeMapping(ctx context.Context, cfg *Config, p Probe) Result
}

// Dialect is the engine-specific half of an adapter: the SQL it speaks and
// how it reads its own errors. Runner supplies the rest.
type Dialect interface {
	Engine() Engine
	LivenessQuery() string
	SampleQuery(p Probe, limit int) string
	CountQuery(p Probe) string

	// MapError classifies a native error. err is never nil.
	MapError(err error, msg string) *errs.Error
}

// Probe names the physical identifiers to validate. Schema overrides the
// connection's schema when set.
type Probe struct {
	Table  string `json:"tableName"`
	Column string `json:"columnName"`
	Schema string `json:"schema,omitempty"`
}

// Sanitized returns p with every identifier stripped to [A-Za-z0-9_] and
// the schema defaulted from the connection.
func (p Probe) Sanitized(connSchema string) (Probe, error) {
	schema := p.Schema
	if schema == "" {
		schema = connSchema
	}
	out := Probe{
		Table:  SanitizeIdentifier(p.Table),
		Column: SanitizeIdentifier(p.Column),
		Schema: SanitizeIdentifier(schema),
	}
	if out.Table == "" {
		return out, errs.New(errs.ErrKindInvalidInput, "table name is empty after sanitizing")
	}
	if out.Column == "" {
		return out, errs.New(errs.ErrKindInvalidInput, "column name is empty after sanitizing")
	}
	return out, nil
}

// SanitizeIdentifier keeps only ASCII letters, digits and underscore.
// Every identifier interpolated into probe SQL goes through it.
func SanitizeIdentifier(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, s)
}
