package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/logger"
)

// Runner implements Adapter for any Dialect. It owns the shared flow:
// validate, apply the deadline, open exactly one session, run the
// queries, close, classify. There is no retry.
type Runner struct {
	dialect Dialect
	dial    Dialer
	opts    Options
	log     *logger.Logger
}

// NewRunner wires a dialect to its dialer. A nil log means the global logger.
func NewRunner(d Dialect, dial Dialer, opts Options, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Global()
	}
	return &Runner{
		dialect: d,
		dial:    dial,
		opts:    opts.withDefaults(),
		log:     log.With().Str("engine", d.Engine().String()).Logger(),
	}
}

func (r *Runner) Engine() Engine { return r.dialect.Engine() }

// Options returns the effective options after defaults.
func (r *Runner) Options() Options { return r.opts }

func (r *Runner) TestLiveness(ctx context.Context, cfg *Config) Result {
	start := time.Now()
	res := r.liveness(ctx, cfg)
	return r.finish(res, start)
}

func (r *Runner) ProbeMapping(ctx context.Context, cfg *Config, p Probe) Result {
	start := time.Now()
	res := r.probe(ctx, cfg, p)
	return r.finish(res, start)
}

func (r *Runner) liveness(ctx context.Context, cfg *Config) Result {
	engine := r.Engine()
	if err := r.check(cfg); err != nil {
		return Failure(engine, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.ConnectTimeout)
	defer cancel()

	sess, err := r.dial(ctx, cfg)
	if err != nil {
		return Failure(engine, r.dialect.MapError(err, "connection failed"))
	}
	defer sess.Close()

	values, err := sess.Strings(ctx, r.dialect.LivenessQuery())
	if err != nil {
		return Failure(engine, r.dialect.MapError(err, "test query failed"))
	}
	if len(values) == 0 {
		return Failure(engine, errs.New(errs.ErrKindQueryFailed, "connected, but the test query returned no rows"))
	}

	return Result{
		Success: true,
		Outcome: OutcomeOK,
		Engine:  engine,
		Message: fmt.Sprintf("%s connection established", engine.Label()),
	}
}

func (r *Runner) probe(ctx context.Context, cfg *Config, p Probe) Result {
	engine := r.Engine()
	if err := r.check(cfg); err != nil {
		return Failure(engine, err)
	}
	p, err := p.Sanitized(cfg.Schema)
	if err != nil {
		return Failure(engine, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.ConnectTimeout)
	defer cancel()

	sess, err := r.dial(ctx, cfg)
	if err != nil {
		return Failure(engine, r.dialect.MapError(err, "connection failed"))
	}
	defer sess.Close()

	values, err := sess.Strings(ctx, r.dialect.SampleQuery(p, r.opts.SampleSize))
	if err != nil {
		return Failure(engine, r.dialect.MapError(err, fmt.Sprintf("sampling %s.%s failed", p.Table, p.Column)))
	}

	count, err := sess.Int(ctx, r.dialect.CountQuery(p))
	if err != nil {
		return Failure(engine, r.dialect.MapError(err, fmt.Sprintf("counting %s failed", p.Table)))
	}

	msg := fmt.Sprintf("mapping valid: %s.%s exists, %d rows in table", p.Table, p.Column, count)
	if len(values) == 0 {
		msg = fmt.Sprintf("mapping valid: %s.%s exists, table is empty", p.Table, p.Column)
	}

	return Result{
		Success:  true,
		Outcome:  OutcomeOK,
		Engine:   engine,
		Message:  msg,
		Values:   values,
		Sample:   strings.Join(values, ", "),
		RowCount: &count,
	}
}

func (r *Runner) check(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if e, _ := ParseEngine(string(cfg.Engine)); e != r.Engine() {
		return errs.Newf(errs.ErrKindInvalidInput, "config engine %q does not match adapter %q", cfg.Engine, r.Engine())
	}
	return nil
}

func (r *Runner) finish(res Result, start time.Time) Result {
	res.ElapsedMS = time.Since(start).Milliseconds()
	if !res.Success {
		r.log.With().Str("outcome", string(res.Outcome)).Logger().Warnf("probe failed: %s", res.Message)
	}
	return res
}

// Registry resolves an Adapter by engine. It is built once at startup and
// read concurrently afterwards.
type Registry struct {
	adapters map[Engine]Adapter
}

// NewRegistry indexes adapters by their Engine. A later adapter for the same
// engine replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[Engine]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Engine()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for engine, accepting engine aliases.
func (r *Registry) Get(engine Engine) (Adapter, error) {
	e, err := ParseEngine(string(engine))
	if err != nil {
		return nil, err
	}
	a, ok := r.adapters[e]
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "no adapter registered for %s", e)
	}
	return a, nil
}

// Engines returns the registered engines, sorted.
func (r *Registry) Engines() []Engine {
	out := make([]Engine, 0, len(r.adapters))
	for e := range r.adapters {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TestLiveness dispatches to the adapter for cfg.Engine.
func (r *Registry) TestLiveness(ctx context.Context, cfg *Config) Result {
	a, res, ok := r.lookup(cfg)
	if !ok {
		return res
	}
	c := normalized(cfg, a.Engine())
	return a.TestLiveness(ctx, &c)
}

// ProbeMapping dispatches to the adapter for cfg.Engine.
func (r *Registry) ProbeMapping(ctx context.Context, cfg *Config, p Probe) Result {
	a, res, ok := r.lookup(cfg)
	if !ok {
		return res
	}
	c := normalized(cfg, a.Engine())
	return a.ProbeMapping(ctx, &c, p)
}

func (r *Registry) lookup(cfg *Config) (Adapter, Result, bool) {
	if cfg == nil {
		return nil, Failure("", errs.New(errs.ErrKindInvalidInput, "connection config is required")), false
	}
	a, err := r.Get(cfg.Engine)
	if err != nil {
		return nil, Result{
			Outcome: OutcomeUnsupportedEngine,
			Engine:  cfg.Engine,
			Message: Describe(err),
		}, false
	}
	return a, Result{}, true
}

func normalized(cfg *Config, engine Engine) Config {
	c := *cfg
	c.Engine = engine
	return c.WithDefaults()
}
