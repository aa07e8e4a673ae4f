// Package mapping resolves logical (module or table, field) references to the
// physical (table, column) identifiers of a customer database, and edits the
// per-connection mapping documents those resolutions read from.
//
// A document comes in two shapes. The legacy shape is a flat object of
// "<module>_<field>_table" / "<module>_<field>_column" keys, optionally
// grouped one level by module. The versioned shape (Version 2) keys table
// mappings by table id and describes which tables each module uses. Every
// write goes through Migrate, so a document is legacy only until it is
// first edited.
package mapping

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/koustreak/schemabridge/internal/errs"
)

// CurrentVersion is the version every edited document is written as.
const CurrentVersion = 2

// TableMapping maps the logical fields of one table id to physical columns.
type TableMapping struct {
	RealName string            `json:"realName"`
	Columns  map[string]string `json:"columns"`

	// FieldTables overrides RealName for individual fields that live in a
	// different physical table.
	FieldTables map[string]string `json:"fieldTables,omitempty"`
}

// ModuleMapping lists the table ids a business module reads from.
type ModuleMapping struct {
	TablesUsed []string                 `json:"tablesUsed"`
	Submodules map[string]ModuleMapping `json:"submodules,omitempty"`
}

// Document is a parsed mapping document. A document with Version below
// CurrentVersion is legacy and only Legacy is populated.
type Document struct {
	Version int                      `json:"version"`
	Tables  map[string]TableMapping  `json:"tables"`
	Modules map[string]ModuleMapping `json:"modules"`

	// Legacy holds the flat document, either as loaded or as it was before
	// migration.
	Legacy map[string]any `json:"legacy,omitempty"`
}

// Identifier is a resolved physical (table, column) pair.
type Identifier struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// ParseDocument decodes the raw text stored on a connection record. An empty
// string is an empty legacy document.
func ParseDocument(raw string) (*Document, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &Document{Legacy: map[string]any{}}, nil
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "mapping document is not a JSON object", err)
	}

	if v, ok := generic["version"].(float64); ok && int(v) >= CurrentVersion {
		doc := &Document{}
		if err := json.Unmarshal([]byte(raw), doc); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed versioned mapping document", err)
		}
		doc.ensureMaps()
		return doc, nil
	}

	delete(generic, "version")
	return &Document{Legacy: generic}, nil
}

// Encode serializes d. Legacy documents are written back in their flat shape.
func (d *Document) Encode() (string, error) {
	var (
		data []byte
		err  error
	)
	if d.IsVersioned() {
		data, err = json.Marshal(d)
	} else {
		data, err = json.Marshal(d.Legacy)
	}
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "failed to encode mapping document", err)
	}
	return string(data), nil
}

func (d *Document) IsVersioned() bool { return d.Version >= CurrentVersion }

func (d *Document) ensureMaps() {
	if d.Tables == nil {
		d.Tables = map[string]TableMapping{}
	}
	if d.Modules == nil {
		d.Modules = map[string]ModuleMapping{}
	}
}

// Migrate converts a legacy document to the versioned shape in place: no
// table mappings, the default module catalog, and the legacy content kept
// under Legacy so existing resolutions keep working. It reports whether
// anything changed; a versioned document is left alone.
func Migrate(d *Document) bool {
	if d.IsVersioned() {
		d.ensureMaps()
		return false
	}
	d.Version = CurrentVersion
	d.Tables = map[string]TableMapping{}
	d.Modules = DefaultCatalog()
	if len(d.Legacy) == 0 {
		d.Legacy = nil
	}
	return true
}

// Lookup returns the mapping d holds for (ref, field), or the zero
// Identifier. A field resolves only to a complete table and column pair,
// taken whole from one source: the versioned tables, then the nested legacy
// group, then the flat legacy keys. An empty field asks for the table only.
func (d *Document) Lookup(ref, field string) Identifier {
	if d.IsVersioned() {
		if id := d.lookupVersioned(ref, field); id.complete(field) {
			return id
		}
	}
	return lookupLegacy(d.Legacy, ref, field)
}

// complete reports whether id answers a lookup of field.
func (id Identifier) complete(field string) bool {
	return id.Table != "" && (field == "" || id.Column != "")
}

func (d *Document) lookupVersioned(ref, field string) Identifier {
	if t, ok := d.Tables[ref]; ok {
		return t.resolve(field)
	}

	m, ok := findModule(d.Modules, ref)
	if !ok {
		return Identifier{}
	}
	for _, tableID := range m.TablesUsed {
		t, ok := d.Tables[tableID]
		if !ok {
			continue
		}
		if id := t.resolve(field); id.complete(field) {
			return id
		}
	}
	return Identifier{}
}

func (t TableMapping) resolve(field string) Identifier {
	table := strings.TrimSpace(t.RealName)
	if field == "" {
		return Identifier{Table: table}
	}
	col := strings.TrimSpace(t.Columns[field])
	if col == "" {
		return Identifier{}
	}
	if override := strings.TrimSpace(t.FieldTables[field]); override != "" {
		table = override
	}
	return Identifier{Table: table, Column: col}
}

func lookupLegacy(legacy map[string]any, ref, field string) Identifier {
	if len(legacy) == 0 {
		return Identifier{}
	}
	tableKey, columnKey := "table", "column"
	if field != "" {
		tableKey, columnKey = field+"_table", field+"_column"
	}

	if group, ok := legacy[ref].(map[string]any); ok {
		id := Identifier{Table: stringValue(group[tableKey])}
		if field != "" {
			id.Column = stringValue(group[columnKey])
		}
		if id.complete(field) {
			return id
		}
	}

	id := Identifier{Table: stringValue(legacy[ref+"_"+tableKey])}
	if field != "" {
		id.Column = stringValue(legacy[ref+"_"+columnKey])
	}
	if id.complete(field) {
		return id
	}
	return Identifier{}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// findModule searches modules and, depth first, their submodules.
func findModule(modules map[string]ModuleMapping, id string) (ModuleMapping, bool) {
	if m, ok := modules[id]; ok {
		return m, true
	}
	for _, name := range sortedKeys(modules) {
		if m, ok := findModule(modules[name].Submodules, id); ok {
			return m, true
		}
	}
	return ModuleMapping{}, false
}

// SharingModules returns every module and submodule whose tablesUsed lists
// tableID. Submodules are named "<module>.<submodule>". The result is sorted.
func (d *Document) SharingModules(tableID string) []string {
	out := []string{}
	var walk func(prefix string, modules map[string]ModuleMapping)
	walk = func(prefix string, modules map[string]ModuleMapping) {
		for name, m := range modules {
			path := name
			if prefix != "" {
				path = prefix + "." + name
			}
			for _, t := range m.TablesUsed {
				if t == tableID {
					out = append(out, path)
					break
				}
			}
			walk(path, m.Submodules)
		}
	}
	walk("", d.Modules)
	sort.Strings(out)
	return out
}

// ModuleConfigured reports whether moduleID exists and every required table
// id has a real name and at least one mapped column. With no required ids
// the module's own tablesUsed are checked.
func (d *Document) ModuleConfigured(moduleID string, required []string) bool {
	if !d.IsVersioned() {
		return false
	}
	m, ok := findModule(d.Modules, moduleID)
	if !ok {
		return false
	}
	if len(required) == 0 {
		required = m.TablesUsed
	}
	if len(required) == 0 {
		return false
	}
	for _, id := range required {
		t, ok := d.Tables[id]
		if !ok || strings.TrimSpace(t.RealName) == "" || len(t.Columns) == 0 {
			return false
		}
	}
	return true
}

// addTableToModule appends tableID to the module's tablesUsed, creating the
// top-level module when needed.
func (d *Document) addTableToModule(moduleID, tableID string) {
	d.ensureMaps()
	m := d.Modules[moduleID]
	for _, t := range m.TablesUsed {
		if t == tableID {
			return
		}
	}
	m.TablesUsed = append(m.TablesUsed, tableID)
	d.Modules[moduleID] = m
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
