package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/koustreak/schemabridge/internal/errs"
)

// Markers carried in the cause chain of object-not-found errors so the
// outcome can tell a missing table from a missing column.
var (
	ErrTableNotFound  = errors.New("table not found")
	ErrColumnNotFound = errors.New("column not found")
)

// TableNotFound wraps a native "no such table" error.
func TableNotFound(msg string, cause error) *errs.Error {
	return errs.Wrap(errs.ErrKindObjectNotFound, msg, marked(ErrTableNotFound, cause))
}

// ColumnNotFound wraps a native "no such column" error.
func ColumnNotFound(msg string, cause error) *errs.Error {
	return errs.Wrap(errs.ErrKindObjectNotFound, msg, marked(ErrColumnNotFound, cause))
}

func marked(marker, cause error) error {
	if cause == nil {
		return marker
	}
	return fmt.Errorf("%w: %w", marker, cause)
}

// DriverNotInstalled reports a missing client library with a message the
// operator can act on.
func DriverNotInstalled(engine Engine, hint string, cause error) *errs.Error {
	msg := fmt.Sprintf("%s client driver is not available in this runtime", engine.Label())
	if hint != "" {
		msg += "; " + hint
	}
	return errs.Wrap(errs.ErrKindDriverNotInstalled, msg, cause)
}

// IsUnknownDriver reports whether err came from database/sql not knowing
// the requested driver name.
func IsUnknownDriver(err error) bool {
	return err != nil && strings.Contains(err.Error(), "sql: unknown driver")
}

// MapCommon classifies the failures all engines share: deadlines, missing
// drivers, network timeouts and errors that were already classified. It
// returns nil when err needs engine-specific handling.
func MapCommon(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var classified *errs.Error
	if errors.As(err, &classified) {
		return classified
	}

	if IsUnknownDriver(err) {
		return errs.Wrap(errs.ErrKindDriverNotInstalled, msg, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	return nil
}
