package oracle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/godror/godror"
	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
)

// Oracle error codes (ORA-NNNNN)
const (
	oraTableOrViewMissing  = 942
	oraInvalidIdentifier   = 904
	oraInvalidLogon        = 1017
	oraInsufficientPrivs   = 1031
	oraAccountLocked       = 28000
	oraUserCanceled        = 1013
	oraConnectTimeout      = 12170
	oraNoListener          = 12541
	oraUnknownService      = 12514
	oraCannotResolve       = 12154
	oraSIDUnknown          = 12505
	oraListenerUnreachable = 12543
)

var oraCodePattern = regexp.MustCompile(`ORA-(\d{5})`)

const clientHint = "install Oracle Instant Client or point oracle.lib_dir at it"

// mapError translates godror/ODPI errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if e := database.MapCommon(err, msg); e != nil {
		return e
	}

	text := err.Error()
	if strings.Contains(text, "DPI-1047") || strings.Contains(text, "DPI-1072") {
		return database.DriverNotInstalled(database.EngineOracle, clientHint, err)
	}

	code := oraCode(err)
	switch code {
	case 0:
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	case oraTableOrViewMissing:
		return database.TableNotFound(msg, err)
	case oraInvalidIdentifier:
		return database.ColumnNotFound(msg, err)
	}
	return errs.Wrap(classifyCode(code), fmt.Sprintf("%s: ORA-%05d", msg, code), err)
}

// oraCode extracts the ORA number, preferring the structured error.
func oraCode(err error) int {
	if oe, ok := godror.AsOraErr(err); ok && oe.Code() != 0 {
		return oe.Code()
	}
	if m := oraCodePattern.FindStringSubmatch(err.Error()); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func classifyCode(code int) errs.ErrKind {
	switch code {
	case oraInvalidLogon, oraInsufficientPrivs, oraAccountLocked:
		return errs.ErrKindPermissionDenied
	case oraUserCanceled, oraConnectTimeout:
		return errs.ErrKindTimeout
	case oraNoListener, oraUnknownService, oraCannotResolve, oraSIDUnknown, oraListenerUnreachable:
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
