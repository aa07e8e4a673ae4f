package sqlserver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
	mssql "github.com/microsoft/go-mssqldb"
)

// SQL Server error numbers
// Full list: https://learn.microsoft.com/sql/relational-databases/errors-events/database-engine-events-and-errors
const (
	errInvalidObjectName = 208
	errInvalidColumnName = 207
	errLoginFailed       = 18456
	errPermissionDenied  = 229
	errCannotOpenDB      = 4060
	errLockTimeout       = 1222
)

// mapError translates go-mssqldb errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if e := database.MapCommon(err, msg); e != nil {
		return e
	}

	if number, text, ok := asServerError(err); ok {
		switch {
		case number == errInvalidObjectName, strings.Contains(text, "Invalid object name"):
			return database.TableNotFound(msg, err)
		case number == errInvalidColumnName, strings.Contains(text, "Invalid column name"):
			return database.ColumnNotFound(msg, err)
		}
		return errs.Wrap(classifyNumber(number), fmt.Sprintf("%s: %s", msg, text), err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// asServerError finds a server error in the chain. The driver returns
// mssql.Error by value, but pointer forms are accepted too.
func asServerError(err error) (int32, string, bool) {
	var e mssql.Error
	if errors.As(err, &e) {
		return e.Number, e.Message, true
	}
	var pe *mssql.Error
	if errors.As(err, &pe) && pe != nil {
		return pe.Number, pe.Message, true
	}
	return 0, "", false
}

func classifyNumber(number int32) errs.ErrKind {
	switch number {
	case errLoginFailed, errPermissionDenied:
		return errs.ErrKindPermissionDenied
	case errCannotOpenDB:
		return errs.ErrKindConnectionFailed
	case errLockTimeout:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
