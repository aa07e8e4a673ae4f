package mapping

import (
	"context"
	"sync"

	"github.com/koustreak/schemabridge/internal/connection"
	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
)

// memStore is an in-memory connection store that counts reads.
type memStore struct {
	mu        sync.Mutex
	records   map[string]connection.Record
	defaultID string
	loads     int
	writes    int
	tests     map[string]bool
}

func newMemStore(records ...connection.Record) *memStore {
	s := &memStore{records: map[string]connection.Record{}, tests: map[string]bool{}}
	for _, r := range records {
		s.records[r.ID] = r
		if r.IsDefault {
			s.defaultID = r.ID
		}
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*connection.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	r, ok := s.records[id]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "connection %s not found", id)
	}
	return &r, nil
}

func (s *memStore) Default(_ context.Context) (*connection.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	r, ok := s.records[s.defaultID]
	if !ok {
		return nil, errs.New(errs.ErrKindConfigurationMissing, "no default or active database connection is configured")
	}
	return &r, nil
}

func (s *memStore) UpdateMappings(_ context.Context, id, doc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "connection %s not found", id)
	}
	r.Mappings = doc
	s.records[id] = r
	s.writes++
	return nil
}

func (s *memStore) RecordTest(_ context.Context, id string, ok bool, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, found := s.records[id]
	if !found {
		return errs.Newf(errs.ErrKindNotFound, "connection %s not found", id)
	}
	r.Status, r.LastError = connection.StatusActive, ""
	if !ok {
		r.Status, r.LastError = connection.StatusError, message
	}
	s.records[id] = r
	s.tests[id] = ok
	return nil
}

func (s *memStore) setMappings(id, doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	r.Mappings = doc
	s.records[id] = r
}

func (s *memStore) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func (s *memStore) mappings(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Mappings
}

func testRecord(id, mappings string, isDefault bool) connection.Record {
	return connection.Record{
		ID:   id,
		Name: id,
		Config: database.Config{
			Engine:   database.EngineOracle,
			Host:     "10.0.0.5",
			Port:     1521,
			Database: "orcl",
			Schema:   "INTERSOLID",
			Username: "app",
			Secret:   "s3cret",
		},
		IsDefault: isDefault,
		Mappings:  mappings,
	}
}
