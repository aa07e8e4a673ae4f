package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/logger"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS connections (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	engine         TEXT NOT NULL,
	host           TEXT NOT NULL,
	alternate_host TEXT NOT NULL DEFAULT '',
	port           INTEGER NOT NULL,
	database_name  TEXT NOT NULL DEFAULT '',
	schema_name    TEXT NOT NULL DEFAULT '',
	username       TEXT NOT NULL,
	secret         TEXT NOT NULL DEFAULT '',
	is_default     INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'inactive',
	last_tested_at TEXT,
	last_error     TEXT NOT NULL DEFAULT '',
	mappings       TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS connections_single_default
	ON connections (is_default) WHERE is_default = 1;
`

const selectColumns = `
	id, name, engine, host, alternate_host, port, database_name, schema_name,
	username, secret, is_default, status, last_tested_at, last_error, mappings,
	created_at, updated_at`

// Fixed-width UTC layout so text ordering matches time ordering.
const timeLayout = "2006-01-02 15:04:05.000000000"

// Store is the SQLite-backed connection record store.
// It is safe for concurrent use; SQLite serialises writers.
type Store struct {
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

// Open opens (creating if needed) the store at path and applies the schema.
func Open(ctx context.Context, path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Global()
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid store path", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, mapError(err, "failed to open connection store")
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, mapError(err, "failed to apply store schema")
	}

	log.Infof("connection store ready at %s", path)
	return &Store{db: db, log: log, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new record. It starts inactive with an empty mapping
// document; the first record in an empty store becomes the default.
func (s *Store) Create(ctx context.Context, in Record) (*Record, error) {
	rec, err := normalize(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec.ID = uuid.NewString()
	rec.Status = StatusInactive
	rec.LastTestedAt = nil
	rec.LastError = ""
	rec.CreatedAt = now
	rec.UpdatedAt = now

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM connections`).Scan(&count); err != nil {
			return mapError(err, "failed to count connections")
		}
		if count == 0 {
			rec.IsDefault = true
		}
		if rec.IsDefault {
			if err := clearDefault(ctx, tx, now); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO connections (
				id, name, engine, host, alternate_host, port, database_name, schema_name,
				username, secret, is_default, status, last_error, mappings, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Name, string(rec.Engine), rec.Host, rec.AlternateHost, rec.Port, rec.Database, rec.Schema,
			rec.Username, rec.Secret, boolToInt(rec.IsDefault), string(rec.Status), rec.LastError, rec.Mappings,
			formatTime(now), formatTime(now),
		)
		return mapError(err, "failed to insert connection")
	})
	if err != nil {
		return nil, err
	}

	s.log.With().Str("connection", rec.ID).Logger().Infof("connection %q created (default=%t)", rec.Name, rec.IsDefault)
	return &rec, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM connections WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("connection %s", id))
	}
	return rec, nil
}

// List returns every record, default first, then by name.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM connections ORDER BY is_default DESC, name, created_at`)
	if err != nil {
		return nil, mapError(err, "failed to list connections")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, mapError(err, "failed to scan connection")
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating connections")
	}
	return out, nil
}

// Update applies p to the record. Setting IsDefault clears the flag on
// every other record in the same transaction.
func (s *Store) Update(ctx context.Context, id string, p Patch) (*Record, error) {
	var out *Record
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM connections WHERE id = ?`, id)
		rec, err := scanRecord(row)
		if err != nil {
			return mapError(err, fmt.Sprintf("connection %s", id))
		}

		wasDefault := rec.IsDefault
		if err := p.apply(rec); err != nil {
			return err
		}
		normalized, err := normalize(*rec)
		if err != nil {
			return err
		}
		rec = &normalized

		now := s.now().UTC()
		if rec.IsDefault && !wasDefault {
			if err := clearDefault(ctx, tx, now); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE connections SET
				name = ?, engine = ?, host = ?, alternate_host = ?, port = ?, database_name = ?,
				schema_name = ?, username = ?, secret = ?, is_default = ?, updated_at = ?
			WHERE id = ?`,
			rec.Name, string(rec.Engine), rec.Host, rec.AlternateHost, rec.Port, rec.Database,
			rec.Schema, rec.Username, rec.Secret, boolToInt(rec.IsDefault), formatTime(now), id,
		)
		if err != nil {
			return mapError(err, "failed to update connection")
		}
		rec.UpdatedAt = now
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a record. Deleting the default leaves no default.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return mapError(err, "failed to delete connection")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.ErrKindNotFound, "connection %s not found", id)
	}
	s.log.With().Str("connection", id).Logger().Info("connection deleted")
	return nil
}

// SetDefault makes id the only default record.
func (s *Store) SetDefault(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM connections WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return mapError(err, fmt.Sprintf("connection %s", id))
		}

		now := s.now().UTC()
		if err := clearDefault(ctx, tx, now); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE connections SET is_default = 1, updated_at = ? WHERE id = ?`, formatTime(now), id)
		return mapError(err, "failed to set default connection")
	})
}

// Default returns the default record, else the oldest active one.
func (s *Store) Default(ctx context.Context) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+` FROM connections
		WHERE is_default = 1 OR status = ?
		ORDER BY is_default DESC, created_at
		LIMIT 1`, string(StatusActive))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.ErrKindConfigurationMissing,
			"no default or active database connection is configured")
	}
	if err != nil {
		return nil, mapError(err, "failed to load default connection")
	}
	return rec, nil
}

// UpdateMappings replaces the record's mapping document.
func (s *Store) UpdateMappings(ctx context.Context, id, doc string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE connections SET mappings = ?, updated_at = ? WHERE id = ?`,
		doc, formatTime(s.now().UTC()), id)
	if err != nil {
		return mapError(err, "failed to save mappings")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.ErrKindNotFound, "connection %s not found", id)
	}
	return nil
}

// RecordTest stores the outcome of a liveness test.
func (s *Store) RecordTest(ctx context.Context, id string, ok bool, message string) error {
	status, lastErr := StatusActive, ""
	if !ok {
		status, lastErr = StatusError, message
	}
	now := formatTime(s.now().UTC())

	res, err := s.db.ExecContext(ctx,
		`UPDATE connections SET status = ?, last_error = ?, last_tested_at = ?, updated_at = ? WHERE id = ?`,
		string(status), lastErr, now, now, id)
	if err != nil {
		return mapError(err, "failed to record test result")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.ErrKindNotFound, "connection %s not found", id)
	}
	return nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(err, "failed to commit transaction")
	}
	return nil
}

func clearDefault(ctx context.Context, tx *sql.Tx, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE connections SET is_default = 0, updated_at = ? WHERE is_default = 1`, formatTime(now))
	return mapError(err, "failed to clear default connection")
}

func normalize(in Record) (Record, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, errs.New(errs.ErrKindInvalidInput, "name is required")
	}
	engine, err := database.ParseEngine(string(in.Engine))
	if err != nil {
		return in, err
	}
	in.Engine = engine
	in.Host = strings.TrimSpace(in.Host)
	in.Username = strings.TrimSpace(in.Username)
	if err := in.Config.Validate(); err != nil {
		return in, err
	}
	in.Config = in.Config.WithDefaults()
	return in, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r                    Record
		engine, status       string
		isDefault            int
		lastTested           sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&r.ID, &r.Name, &engine, &r.Host, &r.AlternateHost, &r.Port, &r.Database, &r.Schema,
		&r.Username, &r.Secret, &isDefault, &status, &lastTested, &r.LastError, &r.Mappings,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Engine = database.Engine(engine)
	r.Status = Status(status)
	r.IsDefault = isDefault == 1
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	if lastTested.Valid && lastTested.String != "" {
		t := parseTime(lastTested.String)
		r.LastTestedAt = &t
	}
	return &r, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// mapError translates database/sql and SQLite errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.New(errs.ErrKindNotFound, msg+" not found")
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
