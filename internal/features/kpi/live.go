package kpi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go-kpi/internal/metrics"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronParser accepts the standard five field specs plus descriptors.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

const subscriptionBuffer = 4

// Subscription receives the JSON of every refreshed result of one KPI.
type Subscription struct {
	KPIID string
	C     <-chan []byte
	send  chan []byte
}

// LiveHub reloads KPIs on their refresh schedule and fans the results out
// to websocket subscribers.
type LiveHub struct {
	service  KPIService
	registry *Registry
	metrics  *metrics.Collector
	logger   *zap.Logger

	scheduler *cron.Cron
	entries   map[string]cron.EntryID

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewLiveHub(service KPIService, registry *Registry, collector *metrics.Collector, logger *zap.Logger) *LiveHub {
	return &LiveHub{
		service:  service,
		registry: registry,
		metrics:  collector,
		logger:   logger,
		entries:  make(map[string]cron.EntryID),
		subs:     make(map[string]map[*Subscription]struct{}),
	}
}

// Start schedules every KPI that has a refresh schedule.
func (h *LiveHub) Start() error {
	h.scheduler = cron.New(cron.WithParser(cronParser))

	for _, def := range h.registry.List() {
		if def.RefreshSchedule == "" {
			continue
		}
		kpiID := def.ID
		entryID, err := h.scheduler.AddFunc(def.RefreshSchedule, func() {
			if err := h.Refresh(context.Background(), kpiID); err != nil {
				h.logger.Warn("Scheduled KPI refresh failed", zap.String("kpi", kpiID), zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule KPI %s: %w", kpiID, err)
		}
		h.entries[kpiID] = entryID
	}

	h.logger.Info("KPI refresh scheduler started", zap.Int("jobs", len(h.entries)))
	h.scheduler.Start()
	return nil
}

func (h *LiveHub) Stop() {
	if h.scheduler != nil {
		ctx := h.scheduler.Stop()
		<-ctx.Done()
	}
}

func (h *LiveHub) Subscribe(kpiID string) (*Subscription, func()) {
	send := make(chan []byte, subscriptionBuffer)
	sub := &Subscription{KPIID: kpiID, C: send, send: send}

	h.mu.Lock()
	if h.subs[kpiID] == nil {
		h.subs[kpiID] = make(map[*Subscription]struct{})
	}
	h.subs[kpiID][sub] = struct{}{}
	count := len(h.subs[kpiID])
	h.mu.Unlock()
	h.setSubscriberGauge(kpiID, count)

	var once sync.Once
	return sub, func() {
		once.Do(func() { h.unsubscribe(sub) })
	}
}

func (h *LiveHub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs[sub.KPIID], sub)
	count := len(h.subs[sub.KPIID])
	if count == 0 {
		delete(h.subs, sub.KPIID)
	}
	h.mu.Unlock()
	h.setSubscriberGauge(sub.KPIID, count)
}

func (h *LiveHub) Subscribers(kpiID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[kpiID])
}

// Refresh loads the KPI with its default window and pushes the result to
// the current subscribers. Nothing is loaded when nobody listens.
func (h *LiveHub) Refresh(ctx context.Context, kpiID string) error {
	if h.Subscribers(kpiID) == 0 {
		return nil
	}

	load, err := h.service.LoadData(ctx, LoadRequest{KPIID: kpiID, Trigger: TriggerRefresh})
	if err != nil {
		h.countRefresh(kpiID, "error")
		return err
	}

	payload, err := json.Marshal(load.Result)
	if err != nil {
		h.countRefresh(kpiID, "error")
		return fmt.Errorf("failed to encode KPI result: %w", err)
	}

	h.Publish(kpiID, payload)
	h.countRefresh(kpiID, "success")
	return nil
}

// Publish hands payload to every subscriber of kpiID. A subscriber that is
// still behind drops the update instead of stalling the others.
func (h *LiveHub) Publish(kpiID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[kpiID] {
		select {
		case sub.send <- payload:
		default:
			h.logger.Debug("Dropping KPI update for slow subscriber", zap.String("kpi", kpiID))
		}
	}
}

func (h *LiveHub) setSubscriberGauge(kpiID string, n int) {
	if h.metrics != nil {
		h.metrics.LiveSubscribers.WithLabelValues(kpiID).Set(float64(n))
	}
}

func (h *LiveHub) countRefresh(kpiID, outcome string) {
	if h.metrics != nil {
		h.metrics.RefreshRuns.WithLabelValues(kpiID, outcome).Inc()
	}
}
