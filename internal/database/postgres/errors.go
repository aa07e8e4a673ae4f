package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
)

// PostgreSQL SQLSTATE error codes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrUndefinedTable        = "42P01"
	pgErrUndefinedColumn       = "42703"
	pgErrInsufficientPrivilege = "42501"
	pgErrInvalidPassword       = "28P01"
	pgErrInvalidAuthorization  = "28000"
	pgErrInvalidCatalogName    = "3D000"
	pgErrQueryCanceled         = "57014"
)

// mapError translates pgx errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if e := database.MapCommon(err, msg); e != nil {
		return e
	}
	if pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUndefinedTable:
			return database.TableNotFound(msg, err)
		case pgErrUndefinedColumn:
			return database.ColumnNotFound(msg, err)
		}
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, DNS)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func classifySQLState(code string) errs.ErrKind {
	switch {
	case code == pgErrInsufficientPrivilege, code == pgErrInvalidPassword, code == pgErrInvalidAuthorization:
		return errs.ErrKindPermissionDenied
	case code == pgErrInvalidCatalogName:
		return errs.ErrKindConnectionFailed
	case code == pgErrQueryCanceled:
		return errs.ErrKindTimeout
	case len(code) >= 2 && code[:2] == "08": // Class 08: connection exception
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
