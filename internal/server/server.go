// Package server is the admin HTTP API: connection records, connectivity
// and mapping probes, mapping edits and diagnostics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/koustreak/schemabridge/internal/connection"
	"github.com/koustreak/schemabridge/internal/logger"
	"github.com/koustreak/schemabridge/internal/mapping"
	"github.com/koustreak/schemabridge/internal/metrics"
	"github.com/koustreak/schemabridge/internal/snapshot"
)

// PolicyHeader binds a resolution policy ("strict" or "lenient") to the
// request context.
const PolicyHeader = "X-Mapping-Policy"

// ConnectionStore is the part of connection.Store the API uses.
type ConnectionStore interface {
	Create(ctx context.Context, in connection.Record) (*connection.Record, error)
	Get(ctx context.Context, id string) (*connection.Record, error)
	List(ctx context.Context) ([]connection.Record, error)
	Update(ctx context.Context, id string, p connection.Patch) (*connection.Record, error)
	Delete(ctx context.Context, id string) error
	SetDefault(ctx context.Context, id string) error
}

// SnapshotReader lists and fetches archived mapping documents.
type SnapshotReader interface {
	List(ctx context.Context, connID string) ([]snapshot.Entry, error)
	Get(ctx context.Context, connID, name string) (string, error)
}

// Deps are the components the API serves. Snapshots and Metrics are optional.
type Deps struct {
	Connections ConnectionStore
	Resolver    *mapping.Resolver
	Editor      *mapping.Editor
	Prober      *mapping.Prober
	Snapshots   SnapshotReader
	Metrics     *metrics.Metrics
	MetricsPath string
	Log         *logger.Logger
}

type Server struct {
	deps     Deps
	log      *logger.Logger
	validate *validator.Validate
	router   chi.Router
}

func New(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = logger.Global()
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	s := &Server{
		deps:     deps,
		log:      deps.Log.With().Str("component", "http").Logger(),
		validate: newValidator(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.log.Middleware)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(bindPolicy)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, s.deps.MetricsPath, s.deps.Metrics.Handler())
	}

	r.Route("/connections", func(r chi.Router) {
		r.Get("/", s.listConnections)
		r.Post("/", s.createConnection)

		r.Post("/test-new", s.testNewConnection)
		r.Post("/test-mapping", s.testMapping)
		r.Post("/test-table-mapping", s.testTableMapping)
		r.Post("/save-table-mapping", s.saveTableMapping)
		r.Post("/save-mappings", s.saveModuleMappings)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getConnection)
			r.Put("/", s.updateConnection)
			r.Delete("/", s.deleteConnection)
			r.Post("/default", s.setDefault)
			r.Post("/test", s.testConnection)

			r.Get("/mappings", s.getMappings)
			r.Delete("/mappings/tables/{tableId}", s.removeTableMapping)
			r.Get("/mappings/sharing/{tableId}", s.tableSharing)
			r.Get("/mappings/history", s.listSnapshots)
			r.Get("/mappings/history/{name}", s.getSnapshot)
		})
	})

	r.Post("/mappings/resolve", s.resolve)
	r.Get("/mappings/modules/{module}/configured", s.moduleConfigured)

	return r
}

// instrument counts requests by route pattern once routing is done.
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.deps.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.deps.Metrics.HTTPRequest(r.Method, route, status)
	})
}

func bindPolicy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := mapping.ParsePolicy(r.Header.Get(PolicyHeader)); p != mapping.PolicyUnset {
			r = r.WithContext(mapping.WithPolicy(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
