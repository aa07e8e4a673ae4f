package database

import (
	"errors"

	"github.com/koustreak/schemabridge/internal/errs"
)

// Outcome is the machine-readable classification of a connectivity or
// mapping probe.
type Outcome string

const (
	OutcomeOK                 Outcome = "ok"
	OutcomeTableNotFound      Outcome = "table_not_found"
	OutcomeColumnNotFound     Outcome = "column_not_found"
	OutcomeDriverNotInstalled Outcome = "driver_not_installed"
	OutcomeTimeout            Outcome = "timeout"
	OutcomeConnectionFailed   Outcome = "connection_failed"
	OutcomePermissionDenied   Outcome = "permission_denied"
	OutcomeQueryFailed        Outcome = "query_failed"
	OutcomeInvalidInput       Outcome = "invalid_input"
	OutcomeUnsupportedEngine  Outcome = "unsupported_engine"
)

// Result is what every adapter returns. Adapters never surface native
// driver errors; they classify them into Outcome and Message.
type Result struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Outcome   Outcome  `json:"outcome"`
	Sample    string   `json:"sample,omitempty"`
	Values    []string `json:"values,omitempty"`
	RowCount  *int64   `json:"rowCount,omitempty"`
	Engine    Engine   `json:"engine"`
	ElapsedMS int64    `json:"elapsedMs"`
}

// Failure builds an unsuccessful Result from a classified error.
func Failure(engine Engine, err error) Result {
	return Result{
		Success: false,
		Message: Describe(err),
		Outcome: OutcomeOf(err),
		Engine:  engine,
	}
}

// OutcomeOf maps an error produced by an engine's mapError to an Outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrTableNotFound):
		return OutcomeTableNotFound
	case errors.Is(err, ErrColumnNotFound):
		return OutcomeColumnNotFound
	}

	switch errs.KindOf(err) {
	case errs.ErrKindDriverNotInstalled:
		return OutcomeDriverNotInstalled
	case errs.ErrKindTimeout:
		return OutcomeTimeout
	case errs.ErrKindConnectionFailed:
		return OutcomeConnectionFailed
	case errs.ErrKindPermissionDenied:
		return OutcomePermissionDenied
	case errs.ErrKindInvalidInput:
		return OutcomeInvalidInput
	case errs.ErrKindObjectNotFound:
		return OutcomeTableNotFound
	default:
		return OutcomeQueryFailed
	}
}

// Describe renders err for an admin-facing message, without the kind prefix.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var e *errs.Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}
