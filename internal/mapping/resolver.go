package mapping

import (
	"context"
	"strings"
	"time"

	"github.com/koustreak/schemabridge/internal/connection"
	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/logger"
	"github.com/koustreak/schemabridge/internal/metrics"
	"github.com/patrickmn/go-cache"
)

// DefaultTTL is how long a loaded document is reused before the next
// resolve reloads it.
const DefaultTTL = 5 * time.Minute

// defaultKey caches the document of "the default connection".
const defaultKey = "@default"

// RecordSource is the part of the connection store the resolver reads.
type RecordSource interface {
	Get(ctx context.Context, id string) (*connection.Record, error)
	Default(ctx context.Context) (*connection.Record, error)
}

// Lookup is one resolution request. An empty ConnectionID means the default
// connection. An empty Field asks for the table of Ref only.
type Lookup struct {
	ConnectionID string
	Ref          string
	Field        string
	Fallback     Identifier
	Policy       Policy
}

type loaded struct {
	connID string
	schema string
	doc    *Document
}

// Resolver answers lookups from a TTL cache of mapping documents, one per
// connection. It is safe for concurrent use. Two concurrent misses may both
// load the same document; the later store wins.
type Resolver struct {
	source  RecordSource
	cache   *cache.Cache
	log     *logger.Logger
	metrics *metrics.Metrics
}

type ResolverOption func(*resolverSettings)

type resolverSettings struct {
	ttl     time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(s *resolverSettings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithResolverLogger(l *logger.Logger) ResolverOption {
	return func(s *resolverSettings) { s.log = l }
}

func WithResolverMetrics(m *metrics.Metrics) ResolverOption {
	return func(s *resolverSettings) { s.metrics = m }
}

func NewResolver(source RecordSource, opts ...ResolverOption) *Resolver {
	s := resolverSettings{ttl: DefaultTTL}
	for _, o := range opts {
		o(&s)
	}
	if s.log == nil {
		s.log = logger.Global()
	}
	return &Resolver{
		source:  source,
		cache:   cache.New(s.ttl, 2*s.ttl),
		log:     s.log.With().Str("component", "mapping_resolver").Logger(),
		metrics: s.metrics,
	}
}

// Resolve returns the physical table and, when l.Field is set, column for
// l.Ref. When the document holds no complete mapping, the lenient policy
// returns l.Fallback unchanged and the strict policy fails.
func (r *Resolver) Resolve(ctx context.Context, l Lookup) (Identifier, error) {
	if strings.TrimSpace(l.Ref) == "" {
		return Identifier{}, errs.New(errs.ErrKindInvalidInput, "mapping reference is required")
	}

	entry, err := r.load(ctx, l.ConnectionID)
	if err != nil {
		return Identifier{}, err
	}

	if found := entry.doc.Lookup(l.Ref, l.Field); found.complete(l.Field) {
		r.metrics.Resolve(metrics.ResolveHit)
		return found, nil
	}

	name := l.Ref
	if l.Field != "" {
		name += "." + l.Field
	}

	if l.Policy.effective(ctx) == Strict {
		r.metrics.Resolve(metrics.ResolveMiss)
		return Identifier{}, errs.Newf(errs.ErrKindMappingNotFound,
			"no mapping for %s on connection %s; configure it in the mapping admin screen", name, entry.connID)
	}

	r.metrics.Resolve(metrics.ResolveFallback)
	r.log.WarnWith("mapping not found, using fallback", map[string]any{
		"connection": entry.connID,
		"ref":        name,
		"table":      l.Fallback.Table,
		"column":     l.Fallback.Column,
	})
	return l.Fallback, nil
}

// Table returns only the physical table for (ref, field).
func (r *Resolver) Table(ctx context.Context, connID, ref, field, fallback string) (string, error) {
	id, err := r.Resolve(ctx, Lookup{
		ConnectionID: connID,
		Ref:          ref,
		Field:        field,
		Fallback:     Identifier{Table: fallback},
	})
	return id.Table, err
}

// Column returns only the physical column for (ref, field).
func (r *Resolver) Column(ctx context.Context, connID, ref, field, fallback string) (string, error) {
	if field == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "a field is required to resolve a column")
	}
	id, err := r.Resolve(ctx, Lookup{
		ConnectionID: connID,
		Ref:          ref,
		Field:        field,
		Fallback:     Identifier{Column: fallback},
	})
	return id.Column, err
}

// Schema returns the schema configured on the connection.
func (r *Resolver) Schema(ctx context.Context, connID string) (string, error) {
	entry, err := r.load(ctx, connID)
	if err != nil {
		return "", err
	}
	if entry.schema == "" {
		return "", errs.Newf(errs.ErrKindConfigurationMissing, "connection %s has no schema configured", entry.connID)
	}
	return entry.schema, nil
}

// IsModuleConfigured reports whether moduleID has every required table mapped.
func (r *Resolver) IsModuleConfigured(ctx context.Context, connID, moduleID string, required []string) (bool, error) {
	entry, err := r.load(ctx, connID)
	if err != nil {
		return false, err
	}
	return entry.doc.ModuleConfigured(moduleID, required), nil
}

// TableSharingModules lists the modules and submodules that use tableID.
func (r *Resolver) TableSharingModules(ctx context.Context, connID, tableID string) ([]string, error) {
	entry, err := r.load(ctx, connID)
	if err != nil {
		return nil, err
	}
	return entry.doc.SharingModules(tableID), nil
}

// Invalidate drops the cached document of connID and of the default
// connection, which may be the same record.
func (r *Resolver) Invalidate(connID string) {
	if connID != "" {
		r.cache.Delete(connID)
	}
	r.cache.Delete(defaultKey)
}

// InvalidateAll drops every cached document. Changing which record is the
// default needs this.
func (r *Resolver) InvalidateAll() {
	r.cache.Flush()
}

func (r *Resolver) load(ctx context.Context, connID string) (*loaded, error) {
	key := connID
	if key == "" {
		key = defaultKey
	}
	if v, ok := r.cache.Get(key); ok {
		return v.(*loaded), nil
	}

	var (
		rec *connection.Record
		err error
	)
	if connID == "" {
		rec, err = r.source.Default(ctx)
	} else {
		rec, err = r.source.Get(ctx, connID)
		if errs.IsNotFound(err) {
			err = errs.Wrap(errs.ErrKindConfigurationMissing, "connection "+connID+" is not configured", err)
		}
	}
	if err != nil {
		return nil, err
	}

	doc, err := ParseDocument(rec.Mappings)
	if err != nil {
		r.log.ErrorWith("unreadable mapping document, treating it as empty", err, map[string]any{
			"connection": rec.ID,
		})
		doc = &Document{}
	}

	entry := &loaded{connID: rec.ID, schema: strings.TrimSpace(rec.Schema), doc: doc}
	r.cache.Set(key, entry, cache.DefaultExpiration)
	r.metrics.DocumentLoaded()
	r.log.Debugf("mapping document loaded for connection %s", rec.ID)
	return entry, nil
}
