package mapping

import (
	"context"
	"strings"

	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/logger"
	"github.com/koustreak/schemabridge/internal/metrics"
)

// DocumentStore is the part of the connection store the editor writes to.
type DocumentStore interface {
	RecordSource
	UpdateMappings(ctx context.Context, id, doc string) error
}

// Archiver keeps a copy of every persisted document. Archive failures never
// fail an edit.
type Archiver interface {
	Archive(ctx context.Context, connID, doc string) error
}

// TableUpsert replaces the mapping of one table id.
type TableUpsert struct {
	ConnectionID  string            `json:"connectionId" validate:"required"`
	TableID       string            `json:"tableId" validate:"required"`
	RealTableName string            `json:"realTableName"`
	Columns       map[string]string `json:"columns"`
	FieldTables   map[string]string `json:"fieldTables,omitempty"`
}

// UpsertResult reports what was written and which modules read the table.
type UpsertResult struct {
	TableID    string       `json:"tableId"`
	Table      TableMapping `json:"table"`
	Migrated   bool         `json:"migrated"`
	SharedWith []string     `json:"sharedWith"`
}

// Editor applies admin edits to mapping documents. Every write leaves the
// document versioned and invalidates the resolver's copy.
type Editor struct {
	store    DocumentStore
	resolver *Resolver
	archiver Archiver
	log      *logger.Logger
	metrics  *metrics.Metrics
}

type EditorOption func(*Editor)

// WithArchiver enables snapshots of every persisted document.
func WithArchiver(a Archiver) EditorOption {
	return func(e *Editor) { e.archiver = a }
}

func WithEditorLogger(l *logger.Logger) EditorOption {
	return func(e *Editor) { e.log = l }
}

func WithEditorMetrics(m *metrics.Metrics) EditorOption {
	return func(e *Editor) { e.metrics = m }
}

// NewEditor returns an editor over store. resolver may be nil when nothing
// caches documents.
func NewEditor(store DocumentStore, resolver *Resolver, opts ...EditorOption) *Editor {
	e := &Editor{store: store, resolver: resolver}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = logger.Global()
	}
	e.log = e.log.With().Str("component", "mapping_editor").Logger()
	return e
}

// UpsertTableMapping migrates the document if needed, drops blank column and
// field-table values, and replaces tables[in.TableID].
func (e *Editor) UpsertTableMapping(ctx context.Context, in TableUpsert) (*UpsertResult, error) {
	tableID := strings.TrimSpace(in.TableID)
	if strings.TrimSpace(in.ConnectionID) == "" || tableID == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "connectionId and tableId are required")
	}

	doc, err := e.load(ctx, in.ConnectionID)
	if err != nil {
		return nil, err
	}
	migrated := Migrate(doc)

	realName := strings.TrimSpace(in.RealTableName)
	if realName == "" {
		realName = tableID
	}
	t := TableMapping{
		RealName:    realName,
		Columns:     nonBlank(in.Columns),
		FieldTables: nonBlank(in.FieldTables),
	}
	if len(t.FieldTables) == 0 {
		t.FieldTables = nil
	}
	doc.Tables[tableID] = t

	if err := e.save(ctx, in.ConnectionID, doc, "upsert_table"); err != nil {
		return nil, err
	}

	shared := doc.SharingModules(tableID)
	e.log.InfoWith("table mapping saved", map[string]any{
		"connection": in.ConnectionID,
		"table_id":   tableID,
		"columns":    len(t.Columns),
		"migrated":   migrated,
		"shared":     len(shared),
	})
	return &UpsertResult{TableID: tableID, Table: t, Migrated: migrated, SharedWith: shared}, nil
}

// RemoveTableMapping deletes tables[tableID]. Module references to the id
// are left in place.
func (e *Editor) RemoveTableMapping(ctx context.Context, connID, tableID string) error {
	doc, err := e.load(ctx, connID)
	if err != nil {
		return err
	}
	if _, ok := doc.Tables[tableID]; !doc.IsVersioned() || !ok {
		return errs.Newf(errs.ErrKindNotFound, "table %s has no mapping on connection %s", tableID, connID)
	}
	delete(doc.Tables, tableID)
	return e.save(ctx, connID, doc, "remove_table")
}

// SaveModuleMappings accepts the per-module form, whose keys are
// "<field>_table" and "<field>_column". Each field with both parts is
// written as a table mapping keyed by its physical table name, which is
// added to the module's tablesUsed. It returns the fields saved, sorted.
func (e *Editor) SaveModuleMappings(ctx context.Context, connID, module string, fields map[string]string) ([]string, error) {
	module = strings.TrimSpace(module)
	if module == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "module is required")
	}

	pairs := map[string]*Identifier{}
	for key, value := range fields {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch {
		case strings.HasSuffix(key, "_table"):
			pair(pairs, strings.TrimSuffix(key, "_table")).Table = value
		case strings.HasSuffix(key, "_column"):
			pair(pairs, strings.TrimSuffix(key, "_column")).Column = value
		}
	}

	doc, err := e.load(ctx, connID)
	if err != nil {
		return nil, err
	}
	Migrate(doc)

	saved := []string{}
	for _, field := range sortedKeys(pairs) {
		p := pairs[field]
		if p.Table == "" || p.Column == "" {
			continue
		}
		t, ok := doc.Tables[p.Table]
		if !ok {
			t = TableMapping{RealName: p.Table, Columns: map[string]string{}}
		}
		if t.Columns == nil {
			t.Columns = map[string]string{}
		}
		t.Columns[field] = p.Column
		doc.Tables[p.Table] = t
		doc.addTableToModule(module, p.Table)
		saved = append(saved, field)
	}
	if len(saved) == 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "no complete field mappings for module %s", module)
	}

	if err := e.save(ctx, connID, doc, "save_module"); err != nil {
		return nil, err
	}
	return saved, nil
}

// Document returns the parsed document of connID.
func (e *Editor) Document(ctx context.Context, connID string) (*Document, error) {
	return e.load(ctx, connID)
}

// load treats an unreadable stored document as empty so the next save
// replaces it with a fresh versioned one.
func (e *Editor) load(ctx context.Context, connID string) (*Document, error) {
	rec, err := e.store.Get(ctx, connID)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(rec.Mappings)
	if err != nil {
		e.log.ErrorWith("stored mapping document is unreadable, starting from an empty one", err,
			map[string]any{"connection": connID})
		return &Document{}, nil
	}
	return doc, nil
}

func (e *Editor) save(ctx context.Context, connID string, doc *Document, op string) error {
	raw, err := doc.Encode()
	if err != nil {
		return err
	}
	if err := e.store.UpdateMappings(ctx, connID, raw); err != nil {
		return err
	}
	if e.resolver != nil {
		e.resolver.Invalidate(connID)
	}
	e.metrics.MappingWritten(op)

	if e.archiver != nil {
		if err := e.archiver.Archive(ctx, connID, raw); err != nil {
			e.log.ErrorWith("mapping snapshot failed", err, map[string]any{"connection": connID})
		}
	}
	return nil
}

func pair(m map[string]*Identifier, field string) *Identifier {
	p, ok := m[field]
	if !ok {
		p = &Identifier{}
		m[field] = p
	}
	return p
}

func nonBlank(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
