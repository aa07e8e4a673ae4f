package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/schemabridge/internal/connection"
	"github.com/koustreak/schemabridge/internal/database"
)

// connectionRequest is the create and test-new body. Service is the
// Oracle-flavoured name for Database.
type connectionRequest struct {
	Name          string `json:"name"`
	Engine        string `json:"engine" validate:"required"`
	Host          string `json:"host" validate:"required"`
	AlternateHost string `json:"alternateHost"`
	Port          int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Database      string `json:"database"`
	Service       string `json:"service"`
	Schema        string `json:"schema"`
	Username      string `json:"username" validate:"required"`
	Secret        string `json:"secret"`
	IsDefault     bool   `json:"isDefault"`
}

func (c connectionRequest) config() database.Config {
	db := c.Database
	if db == "" {
		db = c.Service
	}
	return database.Config{
		Engine:        database.Engine(strings.TrimSpace(c.Engine)),
		Host:          c.Host,
		AlternateHost: c.AlternateHost,
		Port:          c.Port,
		Database:      db,
		Schema:        c.Schema,
		Username:      c.Username,
		Secret:        c.Secret,
	}
}

type updateRequest struct {
	connection.Patch
	Service *string `json:"service"`
}

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Connections.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]connection.Record, len(list))
	for i, rec := range list {
		out[i] = rec.Masked()
	}
	ok(w, out)
}

func (s *Server) createConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	rec, err := s.deps.Connections.Create(r.Context(), connection.Record{
		Name:      req.Name,
		Config:    req.config(),
		IsDefault: req.IsDefault,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Resolver.InvalidateAll()
	writeJSON(w, http.StatusCreated, response{Success: true, Message: "connection created", Data: rec.Masked()})
}

func (s *Server) getConnection(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Connections.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, rec.Masked())
}

func (s *Server) updateConnection(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Database == nil && req.Service != nil {
		req.Database = req.Service
	}

	rec, err := s.deps.Connections.Update(r.Context(), chi.URLParam(r, "id"), req.Patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Resolver.InvalidateAll()
	okMessage(w, "connection updated", rec.Masked())
}

func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Connections.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Resolver.InvalidateAll()
	okMessage(w, "connection deleted", nil)
}

func (s *Server) setDefault(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Connections.SetDefault(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Resolver.InvalidateAll()
	okMessage(w, "default connection updated", nil)
}

// testConnection probes a stored connection and persists the outcome.
func (s *Server) testConnection(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Prober.TestConnection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) testNewConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Prober.TestConfig(r.Context(), req.config()))
}
