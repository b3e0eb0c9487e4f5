package kpi

import (
	"context"
	"time"

	"go-kpi/internal/config"
	"go-kpi/internal/metrics"
	"go-kpi/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TriggerRequest = "request"
	TriggerRefresh = "refresh"
)

type LoadRequest struct {
	KPIID      string
	FromMillis int64
	ToMillis   int64
	Claims     *utils.UserClaims
	Trigger    string
}

// Load is one finished load with the id it was logged and audited under.
type Load struct {
	ID     string
	KPI    *KPI
	Result *Result
}

type KPIService interface {
	ListKPIs(ctx context.Context) []*KPI
	GetKPI(ctx context.Context, id string) (*KPI, error)
	LoadData(ctx context.Context, req LoadRequest) (*Load, error)
	ListLoads(ctx context.Context, kpiID string, limit int64) ([]LoadAudit, error)
}

type KPIServiceImpl struct {
	registry *Registry
	searcher Searcher
	repo     LoadAuditRepository
	metrics  *metrics.Collector
	logger   *zap.Logger

	strict bool
	zone   *time.Location
	clock  func() time.Time
}

func NewKPIService(
	registry *Registry,
	searcher Searcher,
	repo LoadAuditRepository,
	collector *metrics.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) KPIService {
	return &KPIServiceImpl{
		registry: registry,
		searcher: searcher,
		repo:     repo,
		metrics:  collector,
		logger:   logger,
		strict:   cfg.StrictAggregations,
		zone:     cfg.JSONDateZone,
		clock:    time.Now,
	}
}

func (s *KPIServiceImpl) ListKPIs(ctx context.Context) []*KPI {
	return s.registry.List()
}

func (s *KPIServiceImpl) GetKPI(ctx context.Context, id string) (*KPI, error) {
	return s.registry.Get(id)
}

func (s *KPIServiceImpl) LoadData(ctx context.Context, req LoadRequest) (*Load, error) {
	def, err := s.registry.Get(req.KPIID)
	if err != nil {
		return nil, err
	}

	loadID := uuid.NewString()
	log := s.logger.With(zap.String("kpi", def.ID), zap.String("load_id", loadID))
	now := s.clock()

	loader, err := NewLoader(s.searcher, def, LoaderOptions{
		Strict:  s.strict,
		Ambient: AmbientContext(req.Claims, now, s.zone),
		Zone:    s.zone,
		Clock:   s.clock,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var result *Result
	err = loader.SetTimeRange(req.FromMillis, req.ToMillis)
	if err == nil {
		result, err = loader.RetrieveData(ctx)
	}
	took := time.Since(start)

	cells := 0
	if result != nil {
		cells = result.CellCount()
	}
	if s.metrics != nil {
		s.metrics.ObserveLoad(def.ID, took, cells, err)
	}
	s.audit(ctx, log, loadID, def, req, loader.Ranges(), cells, took, err)

	if err != nil {
		log.Error("KPI load failed", zap.Error(err))
		return nil, err
	}
	log.Info("KPI loaded", zap.Duration("took", took), zap.Int("cells", cells))
	return &Load{ID: loadID, KPI: def, Result: result}, nil
}

// audit is best effort: a failed write is logged and never fails the load.
func (s *KPIServiceImpl) audit(ctx context.Context, log *zap.Logger, loadID string, def *KPI, req LoadRequest, ranges []TimeRange, cells int, took time.Duration, loadErr error) {
	if s.repo == nil {
		return
	}

	record := LoadAudit{
		LoadID:     loadID,
		KPIID:      def.ID,
		Trigger:    req.Trigger,
		Ranges:     len(ranges),
		Cells:      cells,
		DurationMs: took.Milliseconds(),
		Status:     LoadStatusSuccess,
		Timestamp:  s.clock().UTC(),
	}
	if record.Trigger == "" {
		record.Trigger = TriggerRequest
	}
	if req.Claims != nil {
		record.UserID = req.Claims.UserID
	}
	if len(ranges) > 0 {
		main := ranges[0]
		record.ToMillis = main.ToMillis
		if !main.OpenFrom {
			from := main.FromMillis
			record.FromMillis = &from
		}
	}
	if loadErr != nil {
		record.Status = LoadStatusFailed
		record.Error = loadErr.Error()
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.repo.Create(auditCtx, record); err != nil {
		log.Warn("Failed to write load audit", zap.Error(err))
	}
}

func (s *KPIServiceImpl) ListLoads(ctx context.Context, kpiID string, limit int64) ([]LoadAudit, error) {
	if _, err := s.registry.Get(kpiID); err != nil {
		return nil, err
	}
	if s.repo == nil {
		return []LoadAudit{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.ListByKPI(ctx, kpiID, limit)
}
