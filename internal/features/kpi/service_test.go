package kpi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go-kpi/internal/config"
	"go-kpi/internal/elastic"
	"go-kpi/internal/metrics"
	"go-kpi/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockLoadAuditRepository keeps audits in memory.
type MockLoadAuditRepository struct {
	mu        sync.Mutex
	audits    []LoadAudit
	createErr error
	lastLimit int64
}

func (m *MockLoadAuditRepository) Create(ctx context.Context, audit LoadAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.audits = append(m.audits, audit)
	return nil
}

func (m *MockLoadAuditRepository) ListByKPI(ctx context.Context, kpiID string, limit int64) ([]LoadAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []LoadAudit
	for _, a := range m.audits {
		if a.KPIID == kpiID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockLoadAuditRepository) Audits() []LoadAudit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LoadAudit(nil), m.audits...)
}

func testRegistry(t *testing.T, defs ...*KPI) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, d := range defs {
		require.NoError(t, reg.Register(d))
	}
	return reg
}

func newTestService(t *testing.T, searcher Searcher, repo LoadAuditRepository, collector *metrics.Collector, defs ...*KPI) *KPIServiceImpl {
	t.Helper()
	cfg := &config.Config{StrictAggregations: true, JSONDateZone: time.UTC}
	svc := NewKPIService(testRegistry(t, defs...), searcher, repo, collector, cfg, zap.NewNop()).(*KPIServiceImpl)
	svc.clock = fixedClock
	return svc
}

func counterValue(t *testing.T, c *metrics.Collector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestKPIService_LoadData(t *testing.T) {
	searcher := &MockSearcher{responses: []string{`{"aggregations": {"sum#total": {"value": 42}}}`}}
	repo := &MockLoadAuditRepository{}
	collector := metrics.NewCollector()
	svc := newTestService(t, searcher, repo, collector, scalarKPI())

	load, err := svc.LoadData(context.Background(), LoadRequest{
		KPIID:      "revenue",
		FromMillis: 1000,
		ToMillis:   2000,
		Claims:     &utils.UserClaims{UserID: "u-1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, load.ID)
	assert.Equal(t, "revenue", load.KPI.ID)
	assertCell(t, load.Result, "total", NoKey, "total", 42.0)

	audits := repo.Audits()
	require.Len(t, audits, 1)
	a := audits[0]
	assert.Equal(t, load.ID, a.LoadID)
	assert.Equal(t, "revenue", a.KPIID)
	assert.Equal(t, "u-1", a.UserID)
	assert.Equal(t, TriggerRequest, a.Trigger)
	assert.Equal(t, LoadStatusSuccess, a.Status)
	require.NotNil(t, a.FromMillis)
	assert.Equal(t, int64(1000), *a.FromMillis)
	assert.Equal(t, int64(2000), a.ToMillis)
	assert.Equal(t, 1, a.Ranges)
	assert.Equal(t, 1, a.Cells)
	assert.Equal(t, fixedClock().UTC(), a.Timestamp)

	assert.Equal(t, 1.0, counterValue(t, collector, "kpi_loads_total", map[string]string{"kpi": "revenue", "outcome": "success"}))
	assert.Equal(t, 1.0, counterValue(t, collector, "kpi_cells_loaded_total", map[string]string{"kpi": "revenue"}))
}

func TestKPIService_LoadDataOpenWindowAuditsNullFrom(t *testing.T) {
	repo := &MockLoadAuditRepository{}
	svc := newTestService(t, &MockSearcher{responses: []string{emptyResp}}, repo, nil, scalarKPI())

	_, err := svc.LoadData(context.Background(), LoadRequest{KPIID: "revenue", Trigger: TriggerRefresh})
	require.NoError(t, err)

	audits := repo.Audits()
	require.Len(t, audits, 1)
	assert.Nil(t, audits[0].FromMillis)
	assert.Equal(t, nowMillis, audits[0].ToMillis)
	assert.Equal(t, TriggerRefresh, audits[0].Trigger)
	assert.Empty(t, audits[0].UserID)
}

func TestKPIService_LoadDataUnknownKPI(t *testing.T) {
	repo := &MockLoadAuditRepository{}
	searcher := &MockSearcher{}
	svc := newTestService(t, searcher, repo, nil, scalarKPI())

	_, err := svc.LoadData(context.Background(), LoadRequest{KPIID: "nope"})
	assert.ErrorIs(t, err, ErrKPINotFound)
	assert.Empty(t, repo.Audits())
	assert.Empty(t, searcher.Requests())
}

func TestKPIService_LoadDataFailureIsAudited(t *testing.T) {
	repo := &MockLoadAuditRepository{}
	collector := metrics.NewCollector()
	searcher := &MockSearcher{err: &elastic.TransportError{Err: errors.New("connection refused")}}
	svc := newTestService(t, searcher, repo, collector, scalarKPI())

	load, err := svc.LoadData(context.Background(), LoadRequest{KPIID: "revenue", FromMillis: 1, ToMillis: 2})
	assert.Nil(t, load)
	assert.True(t, elastic.IsTransportError(err))

	audits := repo.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, LoadStatusFailed, audits[0].Status)
	assert.True(t, strings.Contains(audits[0].Error, "connection refused"))
	assert.Equal(t, 1.0, counterValue(t, collector, "kpi_loads_total", map[string]string{"kpi": "revenue", "outcome": "error"}))
}

func TestKPIService_AuditFailureDoesNotFailLoad(t *testing.T) {
	repo := &MockLoadAuditRepository{createErr: errors.New("mongo down")}
	svc := newTestService(t, &MockSearcher{responses: []string{emptyResp}}, repo, nil, scalarKPI())

	load, err := svc.LoadData(context.Background(), LoadRequest{KPIID: "revenue", FromMillis: 1, ToMillis: 2})
	require.NoError(t, err)
	assert.NotNil(t, load.Result)
}

func TestKPIService_ListLoads(t *testing.T) {
	repo := &MockLoadAuditRepository{audits: []LoadAudit{
		{LoadID: "a", KPIID: "revenue"},
		{LoadID: "b", KPIID: "other"},
	}}
	svc := newTestService(t, &MockSearcher{}, repo, nil, scalarKPI())

	tests := []struct {
		name      string
		limit     int64
		wantLimit int64
	}{
		{name: "default", limit: 0, wantLimit: 50},
		{name: "explicit", limit: 10, wantLimit: 10},
		{name: "too large", limit: 10_000, wantLimit: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audits, err := svc.ListLoads(context.Background(), "revenue", tt.limit)
			require.NoError(t, err)
			require.Len(t, audits, 1)
			assert.Equal(t, "a", audits[0].LoadID)
			assert.Equal(t, tt.wantLimit, repo.lastLimit)
		})
	}

	_, err := svc.ListLoads(context.Background(), "nope", 10)
	assert.ErrorIs(t, err, ErrKPINotFound)
}

func TestKPIService_ListKPIs(t *testing.T) {
	svc := newTestService(t, &MockSearcher{}, nil, nil, dailyKPI(), scalarKPI())

	list := svc.ListKPIs(context.Background())
	require.Len(t, list, 2)
	assert.Equal(t, "orders_per_day", list[0].ID)

	def, err := svc.GetKPI(context.Background(), "revenue")
	require.NoError(t, err)
	assert.Equal(t, "revenue", def.ID)

	audits, err := svc.ListLoads(context.Background(), "revenue", 5)
	require.NoError(t, err)
	assert.Empty(t, audits)
}
