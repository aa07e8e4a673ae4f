package mapping

import (
	"context"
	"time"

	"github.com/koustreak/schemabridge/internal/connection"
	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/logger"
	"github.com/koustreak/schemabridge/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// DefaultProbeParallelism bounds concurrent column probes in ProbeTable.
const DefaultProbeParallelism = 4

// Probes is satisfied by *database.Registry.
type Probes interface {
	TestLiveness(ctx context.Context, cfg *database.Config) database.Result
	ProbeMapping(ctx context.Context, cfg *database.Config, p database.Probe) database.Result
}

// TestRecorder is the part of the connection store the prober writes to.
type TestRecorder interface {
	RecordSource
	RecordTest(ctx context.Context, id string, ok bool, message string) error
}

// FieldProbe is the probe of one mapped field.
type FieldProbe struct {
	Field  string          `json:"field"`
	Table  string          `json:"table"`
	Column string          `json:"column"`
	Result database.Result `json:"result"`
}

// TableProbe is the outcome of probing every column of a table mapping.
type TableProbe struct {
	Success bool         `json:"success"`
	TableID string       `json:"tableId"`
	Fields  []FieldProbe `json:"fields"`
}

// Prober runs adapter probes on behalf of stored connections.
type Prober struct {
	store    TestRecorder
	probes   Probes
	parallel int
	log      *logger.Logger
	metrics  *metrics.Metrics
}

type ProberOption func(*Prober)

func WithParallelism(n int) ProberOption {
	return func(p *Prober) {
		if n > 0 {
			p.parallel = n
		}
	}
}

func WithProberLogger(l *logger.Logger) ProberOption {
	return func(p *Prober) { p.log = l }
}

func WithProberMetrics(m *metrics.Metrics) ProberOption {
	return func(p *Prober) { p.metrics = m }
}

func NewProber(store TestRecorder, probes Probes, opts ...ProberOption) *Prober {
	p := &Prober{store: store, probes: probes, parallel: DefaultProbeParallelism}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = logger.Global()
	}
	p.log = p.log.With().Str("component", "prober").Logger()
	return p
}

// TestConnection runs the liveness probe on a stored connection and records
// its status, last error and test time.
func (p *Prober) TestConnection(ctx context.Context, connID string) (database.Result, error) {
	rec, err := p.store.Get(ctx, connID)
	if err != nil {
		return database.Result{}, err
	}

	res := p.liveness(ctx, &rec.Config)
	if err := p.store.RecordTest(ctx, rec.ID, res.Success, res.Message); err != nil {
		return res, err
	}
	return res, nil
}

// TestConfig runs the liveness probe on an unsaved configuration.
func (p *Prober) TestConfig(ctx context.Context, cfg database.Config) database.Result {
	return p.liveness(ctx, &cfg)
}

// TestMapping probes (table, column) on a stored connection; an empty
// connID means the default connection.
func (p *Prober) TestMapping(ctx context.Context, connID string, probe database.Probe) (database.Result, error) {
	rec, err := p.record(ctx, connID)
	if err != nil {
		return database.Result{}, err
	}
	return p.mapping(ctx, &rec.Config, probe), nil
}

// ProbeTable probes every mapped column of tables[tableID], each probe on
// its own connection, with bounded parallelism.
func (p *Prober) ProbeTable(ctx context.Context, connID, tableID string) (*TableProbe, error) {
	rec, err := p.record(ctx, connID)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(rec.Mappings)
	if err != nil {
		return nil, err
	}
	t, ok := doc.Tables[tableID]
	if !doc.IsVersioned() || !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s has no mapping on connection %s", tableID, rec.ID)
	}
	if len(t.Columns) == 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "table %s has no mapped columns", tableID)
	}

	fields := sortedKeys(t.Columns)
	out := &TableProbe{TableID: tableID, Fields: make([]FieldProbe, len(fields))}

	var g errgroup.Group
	g.SetLimit(p.parallel)
	for i, field := range fields {
		id := t.resolve(field)
		out.Fields[i] = FieldProbe{Field: field, Table: id.Table, Column: id.Column}
		g.Go(func() error {
			out.Fields[i].Result = p.mapping(ctx, &rec.Config, database.Probe{Table: id.Table, Column: id.Column})
			return nil
		})
	}
	_ = g.Wait()

	out.Success = true
	for _, f := range out.Fields {
		if !f.Result.Success {
			out.Success = false
			break
		}
	}
	p.log.InfoWith("table mapping probed", map[string]any{
		"connection": rec.ID,
		"table_id":   tableID,
		"fields":     len(fields),
		"success":    out.Success,
	})
	return out, nil
}

func (p *Prober) record(ctx context.Context, connID string) (*connection.Record, error) {
	if connID == "" {
		return p.store.Default(ctx)
	}
	return p.store.Get(ctx, connID)
}

func (p *Prober) liveness(ctx context.Context, cfg *database.Config) database.Result {
	start := time.Now()
	res := p.probes.TestLiveness(ctx, cfg)
	p.metrics.ObserveProbe(string(res.Engine), "liveness", string(res.Outcome), time.Since(start))
	return res
}

func (p *Prober) mapping(ctx context.Context, cfg *database.Config, probe database.Probe) database.Result {
	start := time.Now()
	res := p.probes.ProbeMapping(ctx, cfg, probe)
	p.metrics.ObserveProbe(string(res.Engine), "mapping", string(res.Outcome), time.Since(start))
	return res
}
