package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pumpguard/internal/alerts"
	"pumpguard/internal/baseline"
	"pumpguard/internal/config"
	"pumpguard/internal/health"
	"pumpguard/internal/model"
	"pumpguard/internal/results"
	"pumpguard/internal/rul"
	"pumpguard/internal/rules"
	"pumpguard/internal/storage"
	"pumpguard/internal/telemetry"
)

var ErrDuplicate = errors.New("duplicate reading")

type Engine struct {
	logger    *slog.Logger
	telemetry telemetry.Store
	registry  *rules.Registry
	results   *results.Store
	alerts    *alerts.Store
	store     storage.Store
	cfg       atomic.Value
	started   time.Time
	cooldown  *Cooldown
	dedupe    *DedupeCache
	restoreMu sync.Mutex
}

func NewEngine(cfg *config.Config, logger *slog.Logger, tel telemetry.Store, resultsStore *results.Store, alertsStore *alerts.Store, store storage.Store) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		logger:    logger,
		telemetry: tel,
		registry:  rules.NewRegistry(),
		results:   resultsStore,
		alerts:    alertsStore,
		store:     store,
		started:   time.Now().UTC(),
		cooldown:  NewCooldown(),
		dedupe:    NewDedupeCache(),
	}
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) Config() *config.Config { return e.config() }
func (e *Engine) Started() time.Time { return e.started }
func (e *Engine) Alerts() *alerts.Store { return e.alerts }
func (e *Engine) Results() *results.Store { return e.results }
func (e *Engine) Telemetry() telemetry.Source { return e.telemetry }

// Evaluate runs the four core computations on one snapshot and its recent series.
// counters is mutated by the fault pass.
func Evaluate(equipmentID string, ts time.Time, snap model.Snapshot, series []model.Reading, cfg *baseline.Config, counters *rules.Counters) model.Assessment {
	if snap == nil {
		snap = model.Snapshot{}
	}
	return model.Assessment{
		EquipmentID: equipmentID,
		Timestamp:   ts,
		Sensors:     snap.WithAliases(),
		Health:      health.ComputeHealthIndex(snap, cfg),
		Fault:       rules.Evaluate(snap, cfg, counters),
		RUL:         rul.Estimate(snap, series, cfg),
	}
}

// AssessSnapshot evaluates caller-supplied data with fresh rule counters. Nothing is stored.
func (e *Engine) AssessSnapshot(equipmentID string, snap model.Snapshot, series []model.Reading) model.Assessment {
	cfg := e.config()
	ts := time.Now().UTC()
	if n := len(series); n > 0 && !series[n-1].Timestamp.IsZero() {
		ts = series[n-1].Timestamp
	}
	return Evaluate(equipmentID, ts, snap, series, &cfg.Baseline, rules.NewCounters())
}

// Assess pulls the latest snapshot and recent series for one equipment and records the result.
// A failing series fetch degrades to trend-free RUL; a failing snapshot fetch is returned.
func (e *Engine) Assess(ctx context.Context, equipmentID string) (model.Assessment, error) {
	if err := telemetry.ValidateEquipmentID(equipmentID); err != nil {
		return model.Assessment{}, err
	}
	start := time.Now()
	defer func() { assessmentDuration.Observe(time.Since(start).Seconds()) }()

	cfg := e.config()
	snap := model.Snapshot{}
	ts := time.Now().UTC()

	fetchCtx, cancel := withTimeout(ctx, cfg.Detection.FetchTimeout)
	latest, err := e.telemetry.Latest(fetchCtx, equipmentID)
	cancel()
	switch {
	case err == nil:
		snap = latest.Values
		if !latest.Timestamp.IsZero() {
			ts = latest.Timestamp
		}
	case errors.Is(err, telemetry.ErrNoData):
	default:
		return model.Assessment{}, fmt.Errorf("latest snapshot for %s: %w", equipmentID, err)
	}

	series := e.recentSeries(ctx, cfg, equipmentID)
	counters, fresh := e.counters(ctx, equipmentID).ForSample(ts)
	a := Evaluate(equipmentID, ts, snap, series, &cfg.Baseline, counters)
	a.ML = latest.ML
	if fresh {
		e.persistCounters(ctx, equipmentID, counters)
	}
	e.record(ctx, cfg, a, fresh)
	return a, nil
}

// AssessAll assesses every equipment the telemetry source knows, in parallel.
// Per-equipment failures are logged and left out of the result.
func (e *Engine) AssessAll(ctx context.Context) ([]model.Assessment, error) {
	cfg := e.config()
	ids, err := e.telemetry.Equipment(ctx)
	if err != nil {
		return nil, fmt.Errorf("list equipment: %w", err)
	}
	out := make([]*model.Assessment, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	workers := cfg.Detection.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			a, err := e.Assess(gctx, id)
			if err != nil {
				e.logger.Warn("assessment failed", "equipment_id", id, "error", err)
				return nil
			}
			out[i] = &a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	list := make([]model.Assessment, 0, len(out))
	for _, a := range out {
		if a != nil {
			list = append(list, *a)
		}
	}
	return list, nil
}

// ComponentHealth scores the ten components on field means over window.
func (e *Engine) ComponentHealth(ctx context.Context, equipmentID string, window time.Duration) (model.ComponentHealth, error) {
	if err := telemetry.ValidateEquipmentID(equipmentID); err != nil {
		return nil, err
	}
	cfg := e.config()
	if window <= 0 {
		window = cfg.Detection.StatsWindow
	}
	fetchCtx, cancel := withTimeout(ctx, cfg.Detection.FetchTimeout)
	defer cancel()
	stats, err := e.telemetry.Stats(fetchCtx, equipmentID, window)
	if err != nil && !errors.Is(err, telemetry.ErrNoData) {
		return nil, fmt.Errorf("sensor stats for %s: %w", equipmentID, err)
	}
	return health.ComputeComponentHealth(telemetry.Means(stats), &cfg.Baseline), nil
}

// Ingest appends one reading to the telemetry sink and, when configured, assesses its equipment.
func (e *Engine) Ingest(ctx context.Context, r model.Reading) error {
	cfg := e.config()
	if r.EquipmentID == "" {
		r.EquipmentID = cfg.Ingest.Parser.DefaultEquipmentID
	}
	if err := telemetry.ValidateEquipmentID(r.EquipmentID); err != nil {
		readingsDropped.WithLabelValues("invalid_equipment").Inc()
		return err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if cfg.Ingest.DedupeWindow > 0 && e.dedupe.Seen(r, time.Now().UTC(), cfg.Ingest.DedupeWindow) {
		readingsDropped.WithLabelValues("duplicate").Inc()
		return ErrDuplicate
	}
	if err := e.telemetry.Append(ctx, r); err != nil {
		readingsDropped.WithLabelValues("sink_error").Inc()
		return fmt.Errorf("append reading for %s: %w", r.EquipmentID, err)
	}
	source := r.Source
	if source == "" {
		source = "unknown"
	}
	readingsIngested.WithLabelValues(source).Inc()
	if !cfg.Detection.AssessOnIngest {
		return nil
	}
	_, err := e.Assess(ctx, r.EquipmentID)
	return err
}

func (e *Engine) Start(ctx context.Context, in <-chan model.Reading) {
	go func() {
		for {
			select {
			case r := <-in:
				if err := e.Ingest(ctx, r); err != nil && !errors.Is(err, ErrDuplicate) {
					e.logger.Warn("reading rejected", "equipment_id", r.EquipmentID, "source", r.Source, "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Reset clears rule counters, alerts, results, cooldowns and dedupe history for one equipment, or for all
// equipment when equipmentID is empty.
func (e *Engine) Reset(ctx context.Context, equipmentID string) {
	ids := []string{equipmentID}
	if equipmentID == "" {
		ids = e.registry.Equipment()
		healthIndexGauge.Reset()
		rulDaysGauge.Reset()
	} else {
		healthIndexGauge.DeleteLabelValues(equipmentID)
		rulDaysGauge.DeleteLabelValues(equipmentID)
	}
	e.registry.Reset(equipmentID)
	e.alerts.Clear(equipmentID)
	e.results.Clear(equipmentID)
	e.cooldown.Reset(equipmentID)
	e.dedupe.Reset(equipmentID)
	if e.store == nil {
		return
	}
	for _, id := range ids {
		if err := e.store.SaveCounters(ctx, id, nil); err != nil {
			e.logger.Warn("clear persisted counters failed", "equipment_id", id, "error", err)
		}
	}
}

func (e *Engine) recentSeries(ctx context.Context, cfg *config.Config, equipmentID string) []model.Reading {
	p := cfg.Baseline.RUL
	fetchCtx, cancel := withTimeout(ctx, cfg.Detection.FetchTimeout)
	defer cancel()
	series, err := e.telemetry.Recent(fetchCtx, equipmentID, time.Duration(p.WindowHours)*time.Hour, p.MaxSamples)
	if err != nil && !errors.Is(err, telemetry.ErrNoData) {
		seriesFetchFailures.Inc()
		e.logger.Warn("recent series unavailable", "equipment_id", equipmentID, "error", err)
		return nil
	}
	return series
}

// counters returns the equipment's rule counters, restoring persisted ones on first use.
func (e *Engine) counters(ctx context.Context, equipmentID string) *rules.Counters {
	e.restoreMu.Lock()
	defer e.restoreMu.Unlock()
	c, created := e.registry.For(equipmentID)
	if !created || e.store == nil {
		return c
	}
	saved, err := e.store.LoadCounters(ctx, equipmentID)
	if err != nil {
		e.logger.Warn("restore rule counters failed", "equipment_id", equipmentID, "error", err)
		return c
	}
	c.Import(saved)
	return c
}

func (e *Engine) persistCounters(ctx context.Context, equipmentID string, c *rules.Counters) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveCounters(ctx, equipmentID, c.Export()); err != nil {
		e.logger.Warn("persist rule counters failed", "equipment_id", equipmentID, "error", err)
	}
}

// record publishes a. Only a fresh sample is stored and may raise an alert.
func (e *Engine) record(ctx context.Context, cfg *config.Config, a model.Assessment, fresh bool) {
	assessmentsTotal.WithLabelValues(string(a.Fault.Severity)).Inc()
	if a.Health.HIPump != nil {
		healthIndexGauge.WithLabelValues(a.EquipmentID).Set(*a.Health.HIPump)
	}
	if a.RUL.EquipmentRULDays != nil {
		rulDaysGauge.WithLabelValues(a.EquipmentID).Set(*a.RUL.EquipmentRULDays)
	}
	e.results.Update(a)
	if !fresh {
		return
	}
	if e.store != nil {
		if err := e.store.SaveAssessment(ctx, a); err != nil {
			e.logger.Warn("save assessment failed", "equipment_id", a.EquipmentID, "error", err)
		}
	}
	alert, ok := e.raise(cfg, a)
	if !ok {
		return
	}
	e.alerts.Add(alert)
	alertsTotal.WithLabelValues(string(alert.Severity)).Inc()
	e.logger.Warn("fault detected",
		"equipment_id", alert.EquipmentID,
		"severity", alert.Severity,
		"culprit", alert.Culprit,
		"message", alert.Message,
	)
	if e.store != nil {
		if err := e.store.SaveAlert(ctx, alert); err != nil {
			e.logger.Warn("save alert failed", "alert_id", alert.ID, "error", err)
		}
	}
}

func (e *Engine) raise(cfg *config.Config, a model.Assessment) (model.Alert, bool) {
	f := a.Fault
	if f.Severity != model.SeverityWarning && f.Severity != model.SeverityFailure {
		return model.Alert{}, false
	}
	if !e.cooldown.Allow(a.EquipmentID, string(f.CulpritKey), cfg.Detection.AlertCooldown) {
		return model.Alert{}, false
	}
	return model.Alert{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		EquipmentID: a.EquipmentID,
		Severity:    f.Severity,
		AlertType:   "sensor_" + string(f.Severity),
		Culprit:     f.CulpritKey,
		Message:     f.FaultType,
		Triggers:    f.Triggers,
		HIPump:      a.Health.HIPump,
		RULDays:     a.RUL.EquipmentRULDays,
	}, true
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
