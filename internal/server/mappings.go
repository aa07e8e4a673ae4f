package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/mapping"
)

type testMappingRequest struct {
	ConnectionID string `json:"connectionId"`
	TableName    string `json:"tableName" validate:"required"`
	ColumnName   string `json:"columnName" validate:"required"`
	Schema       string `json:"schema"`
}

type testTableMappingRequest struct {
	ConnectionID string `json:"connectionId"`
	TableID      string `json:"tableId" validate:"required"`
}

type saveMappingsRequest struct {
	ConnectionID string            `json:"connectionId" validate:"required"`
	Module       string            `json:"module" validate:"required"`
	Mappings     map[string]string `json:"mappings" validate:"required"`
}

type resolveRequest struct {
	ConnectionID string             `json:"connectionId"`
	Ref          string             `json:"ref" validate:"required"`
	Field        string             `json:"field"`
	Fallback     mapping.Identifier `json:"fallback"`
	Strict       bool               `json:"strict"`
}

// testMapping answers 200 with the probe result, failed or not.
func (s *Server) testMapping(w http.ResponseWriter, r *http.Request) {
	var req testMappingRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Prober.TestMapping(r.Context(), req.ConnectionID, database.Probe{
		Table:  req.TableName,
		Column: req.ColumnName,
		Schema: req.Schema,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) testTableMapping(w http.ResponseWriter, r *http.Request) {
	var req testTableMappingRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Prober.ProbeTable(r.Context(), req.ConnectionID, req.TableID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) saveTableMapping(w http.ResponseWriter, r *http.Request) {
	var req mapping.TableUpsert
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Editor.UpsertTableMapping(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	msg := "table mapping saved"
	if n := len(res.SharedWith); n > 0 {
		msg += "; also used by " + strings.Join(res.SharedWith, ", ")
	}
	okMessage(w, msg, res)
}

func (s *Server) saveModuleMappings(w http.ResponseWriter, r *http.Request) {
	var req saveMappingsRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	saved, err := s.deps.Editor.SaveModuleMappings(r.Context(), req.ConnectionID, req.Module, req.Mappings)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	okMessage(w, "mappings saved", map[string]any{"module": req.Module, "fields": saved})
}

// getMappings returns the stored document byte for byte. An unreadable
// document comes back as a JSON string so it can still be inspected.
func (s *Server) getMappings(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Connections.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	raw := strings.TrimSpace(rec.Mappings)
	switch {
	case raw == "":
		ok(w, json.RawMessage("{}"))
	case json.Valid([]byte(raw)):
		ok(w, json.RawMessage(raw))
	default:
		ok(w, raw)
	}
}

func (s *Server) removeTableMapping(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Editor.RemoveTableMapping(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "tableId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	okMessage(w, "table mapping removed", nil)
}

func (s *Server) tableSharing(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableId")
	modules, err := s.deps.Resolver.TableSharingModules(r.Context(), chi.URLParam(r, "id"), tableID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, map[string]any{"tableId": tableID, "modules": modules})
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		s.fail(w, r, errs.New(errs.ErrKindNotFound, "mapping snapshots are disabled"))
		return
	}
	entries, err := s.deps.Snapshots.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, entries)
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		s.fail(w, r, errs.New(errs.ErrKindNotFound, "mapping snapshots are disabled"))
		return
	}
	doc, err := s.deps.Snapshots.Get(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !json.Valid([]byte(doc)) {
		s.fail(w, r, errs.New(errs.ErrKindQueryFailed, "snapshot is not valid JSON"))
		return
	}
	ok(w, json.RawMessage(doc))
}

// resolve is a diagnostic view of what business code would get.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	policy := mapping.PolicyUnset
	if req.Strict {
		policy = mapping.Strict
	}
	id, err := s.deps.Resolver.Resolve(r.Context(), mapping.Lookup{
		ConnectionID: req.ConnectionID,
		Ref:          req.Ref,
		Field:        req.Field,
		Fallback:     req.Fallback,
		Policy:       policy,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, id)
}

// moduleConfigured takes the connection as ?connectionId= and the required
// table ids as a comma-separated ?tables=.
func (s *Server) moduleConfigured(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	var required []string
	for _, t := range strings.Split(r.URL.Query().Get("tables"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			required = append(required, t)
		}
	}
	configured, err := s.deps.Resolver.IsModuleConfigured(r.Context(), r.URL.Query().Get("connectionId"), module, required)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, map[string]any{"module": module, "configured": configured})
}
