package mapping

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koustreak/schemabridge/internal/connection"
	"github.com/koustreak/schemabridge/internal/database"
	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/logger"
	"github.com/koustreak/schemabridge/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProbes answers every probe and tracks peak concurrency.
type stubProbes struct {
	live    database.Result
	missing map[string]bool

	mu      sync.Mutex
	probed  []database.Probe
	running atomic.Int32
	peak    atomic.Int32
}

func (s *stubProbes) TestLiveness(_ context.Context, cfg *database.Config) database.Result {
	res := s.live
	res.Engine = cfg.Engine
	return res
}

func (s *stubProbes) ProbeMapping(_ context.Context, cfg *database.Config, p database.Probe) database.Result {
	n := s.running.Add(1)
	defer s.running.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)

	s.mu.Lock()
	s.probed = append(s.probed, p)
	s.mu.Unlock()

	if s.missing[p.Column] {
		return database.Failure(cfg.Engine, database.ColumnNotFound(p.Column, nil))
	}
	return database.Result{Success: true, Outcome: database.OutcomeOK, Engine: cfg.Engine, Values: []string{"1"}}
}

func newTestProber(s *memStore, probes Probes, opts ...ProberOption) *Prober {
	opts = append([]ProberOption{WithProberLogger(logger.Nop()), WithProberMetrics(metrics.New())}, opts...)
	return NewProber(s, probes, opts...)
}

func TestProber_TestConnectionRecordsStatus(t *testing.T) {
	s := newMemStore(testRecord("main", "", true))
	probes := &stubProbes{live: database.Result{Success: false, Outcome: database.OutcomeConnectionFailed, Message: "ORA-12541: TNS:no listener"}}
	p := newTestProber(s, probes)

	res, err := p.TestConnection(context.Background(), "main")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, database.EngineOracle, res.Engine)

	rec, err := s.Get(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, connection.StatusError, rec.Status)
	assert.Equal(t, "ORA-12541: TNS:no listener", rec.LastError)

	probes.live = database.Result{Success: true, Outcome: database.OutcomeOK}
	_, err = p.TestConnection(context.Background(), "main")
	require.NoError(t, err)
	rec, err = s.Get(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, connection.StatusActive, rec.Status)

	_, err = p.TestConnection(context.Background(), "missing")
	assert.True(t, errs.IsNotFound(err))
}

func TestProber_TestConfigDoesNotPersist(t *testing.T) {
	s := newMemStore()
	p := newTestProber(s, &stubProbes{live: database.Result{Success: true, Outcome: database.OutcomeOK}})

	res := p.TestConfig(context.Background(), database.Config{Engine: database.EngineMySQL, Host: "db", Username: "u"})
	assert.True(t, res.Success)
	assert.Empty(t, s.tests)
}

func TestProber_TestMappingUsesDefault(t *testing.T) {
	s := newMemStore(testRecord("main", "", true))
	probes := &stubProbes{}
	p := newTestProber(s, probes)

	res, err := p.TestMapping(context.Background(), "", database.Probe{Table: "TAB_PRODUTO", Column: "COD_PRODUTO"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, probes.probed, 1)
	assert.Equal(t, "TAB_PRODUTO", probes.probed[0].Table)

	_, err = p.TestMapping(context.Background(), "", database.Probe{})
	assert.NoError(t, err, "validation belongs to the adapter")

	_, err = newTestProber(newMemStore(), probes).TestMapping(context.Background(), "", database.Probe{})
	assert.True(t, errs.IsConfigurationMissing(err))
}

func TestProber_ProbeTable(t *testing.T) {
	doc := `{"version":2,"tables":{"TAB_PRODUTO_LOJA":{
		"realName":"PRODUTO_LOJA",
		"columns":{"a":"COL_A","b":"COL_B","c":"COL_C","d":"COL_D","e":"COL_E","f":"COL_F","g":"COL_G","h":"COL_H"},
		"fieldTables":{"h":"ESTOQUE"}
	}}}`
	s := newMemStore(testRecord("main", doc, true))
	probes := &stubProbes{missing: map[string]bool{"COL_C": true}}
	p := newTestProber(s, probes, WithParallelism(3))

	out, err := p.ProbeTable(context.Background(), "main", "TAB_PRODUTO_LOJA")
	require.NoError(t, err)
	assert.False(t, out.Success)
	require.Len(t, out.Fields, 8)
	assert.LessOrEqual(t, probes.peak.Load(), int32(3))

	for i, f := range out.Fields {
		assert.Equal(t, string(rune('a'+i)), f.Field, "fields are probed in sorted order")
	}
	assert.Equal(t, database.OutcomeColumnNotFound, out.Fields[2].Result.Outcome)
	assert.Equal(t, "ESTOQUE", out.Fields[7].Table)
	assert.Equal(t, "PRODUTO_LOJA", out.Fields[0].Table)

	_, err = p.ProbeTable(context.Background(), "main", "TAB_NOPE")
	assert.True(t, errs.IsNotFound(err))
}
