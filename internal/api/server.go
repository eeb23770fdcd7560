package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pumpguard/internal/advisor"
	"pumpguard/internal/alerts"
	"pumpguard/internal/baseline"
	"pumpguard/internal/config"
	"pumpguard/internal/ingest"
	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
	"pumpguard/internal/results"
	"pumpguard/internal/telemetry"
)

const maxBodyBytes = 4 << 20

type Engine interface {
	Assess(ctx context.Context, equipmentID string) (model.Assessment, error)
	AssessSnapshot(equipmentID string, snap model.Snapshot, series []model.Reading) model.Assessment
	ComponentHealth(ctx context.Context, equipmentID string, window time.Duration) (model.ComponentHealth, error)
	Reset(ctx context.Context, equipmentID string)
	Started() time.Time
	UpdateConfig(cfg *config.Config)
	Alerts() *alerts.Store
	Results() *results.Store
	Telemetry() telemetry.Source
}

type Server struct {
	cfg     *config.Manager
	engine  Engine
	advisor *advisor.Advisor
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	Version    string       `json:"version"`
	Uptime     string       `json:"uptime"`
	ConfigPath string       `json:"config_path"`
	Telemetry  string       `json:"telemetry"`
	Storage    bool         `json:"storage"`
	Advisor    bool         `json:"advisor"`
	Ingest     ingestStatus `json:"ingest"`
	API        apiStatus    `json:"api"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	FileTail  bool `json:"file_tail"`
	TCPStream bool `json:"tcp_stream"`
	Kafka     bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func NewServer(cfg *config.Manager, engine Engine, adv *advisor.Advisor, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{cfg: cfg, engine: engine, advisor: adv, logger: logger, version: version}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/overview/", s.handleOverview)
	mux.HandleFunc("/api/assess", s.handleAssess)
	mux.HandleFunc("/api/components/", s.handleComponents)
	mux.HandleFunc("/api/assessments", s.handleAssessments)
	mux.HandleFunc("/api/assessments/", s.handleAssessments)
	mux.HandleFunc("/api/alerts", s.handleAlerts)
	mux.HandleFunc("/api/chat/send", s.handleChat)
	mux.HandleFunc("/api/maintenance/ai-refresh", s.handleMaintenance)
	mux.HandleFunc("/api/query/latest", s.handleQueryLatest)
	mux.HandleFunc("/api/query/time-range", s.handleQueryTimeRange)
	mux.HandleFunc("/api/query/sensor-context", s.handleQuerySensorContext)
	mux.HandleFunc("/api/query/ml-status", s.handleQueryMLStatus)
	mux.HandleFunc("/api/baseline", s.handleBaseline)
	mux.HandleFunc("/admin/reset", s.handleReset)
	return mux
}

func Start(ctx context.Context, cfg *config.Manager, engine Engine, adv *advisor.Advisor, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(cfg, engine, adv, logger, version)
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		Uptime:     time.Since(s.engine.Started()).Round(time.Second).String(),
		ConfigPath: s.cfg.Path(),
		Telemetry:  cfg.Telemetry.Driver,
		Storage:    cfg.Storage.Enabled,
		Advisor:    s.advisor.Available(),
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := pathID(r.URL.Path, "/api/overview/")
	a, err := s.engine.Assess(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type assessRequest struct {
	EquipmentID string           `json:"equipment_id"`
	Snapshot    map[string]any   `json:"snapshot"`
	Series      []map[string]any `json:"series"`
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req assessRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cfg := s.cfg.Get()
	opts := normalize.Options{
		Timezone:           cfg.Ingest.Parser.Timezone,
		DefaultEquipmentID: req.EquipmentID,
		Source:             "api",
	}
	series := ingest.ReadingsFromJSON(req.Series, opts)
	writeJSON(w, http.StatusOK, s.engine.AssessSnapshot(req.EquipmentID, normalize.Snapshot(req.Snapshot), series))
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := pathID(r.URL.Path, "/api/components/")
	window, ok := minutesParam(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	components, err := s.engine.ComponentHealth(r.Context(), id, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"equipment_id": id,
		"window":       window.String(),
		"components":   components,
	})
}

func (s *Server) handleAssessments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := pathID(r.URL.Path, "/api/assessments")
	if id != "" {
		a, updated, ok := s.engine.Results().Get(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"equipment_id": id,
			"updated_at":   updated.Format(time.RFC3339Nano),
			"assessment":   a,
		})
		return
	}
	all := s.engine.Results().All()
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": all,
		"count":       len(all),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var since time.Time
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		since = ts
	}
	list := s.engine.Alerts().Query(q.Get("equipment_id"), since, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

type chatRequest struct {
	Message       string `json:"message"`
	EquipmentID   string `json:"equipment_id"`
	Minutes       int    `json:"minutes"`
	SensorContext string `json:"sensor_context"`
	StatusContext string `json:"status_context"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.advisor.Available() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": advisor.ErrUnavailable.Error()})
		return
	}
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	cfg := s.cfg.Get()
	id := req.EquipmentID
	if id == "" {
		id = cfg.Ingest.Parser.DefaultEquipmentID
	}
	window := s.contextWindow(cfg, req.Minutes)
	if req.SensorContext == "" {
		stats, _ := s.stats(r.Context(), id, window)
		req.SensorContext = advisor.SensorContext(stats, window)
	}
	if req.StatusContext == "" {
		req.StatusContext = advisor.StatusContext(s.latest(id))
	}
	reply, err := s.advisor.Chat(r.Context(), req.Message, req.SensorContext, req.StatusContext)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

type maintenanceRequest struct {
	EquipmentID string `json:"equipment_id"`
	Minutes     int    `json:"minutes"`
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.advisor.Available() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": advisor.ErrUnavailable.Error()})
		return
	}
	var req maintenanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cfg := s.cfg.Get()
	id := req.EquipmentID
	if id == "" {
		id = cfg.Ingest.Parser.DefaultEquipmentID
	}
	window := s.contextWindow(cfg, req.Minutes)
	stats, err := s.stats(r.Context(), id, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	components, err := s.engine.ComponentHealth(r.Context(), id, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	current := s.latest(id)
	if current == nil {
		s.logger.Info("maintenance refresh without stored assessment", "equipment_id", id)
	}
	table, err := s.advisor.MaintenanceTable(r.Context(), advisor.MaintenanceInput{
		EquipmentID: id,
		Stats:       stats,
		Components:  components,
		Assessment:  current,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

const (
	defaultLatestLimit   = 100
	defaultMLStatusLimit = 5
	defaultRangeLimit    = 10000
	queryLookback        = time.Hour
)

type mlStatusRow struct {
	Time             time.Time      `json:"time"`
	HealthStatus     model.Severity `json:"health_status"`
	FaultType        string         `json:"fault_type"`
	HealthStatusCode *float64       `json:"health_status_code,omitempty"`
}

// handleQueryLatest returns the newest readings of the last hour, newest first.
func (s *Server) handleQueryLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := s.queryEquipment(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, ok := intParam(r, "limit", defaultLatestLimit)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rows, err := s.engine.Telemetry().Recent(r.Context(), id, queryLookback, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	slices.Reverse(rows)
	writeJSON(w, http.StatusOK, map[string]any{
		"equipment_id": id,
		"data":         rows,
		"count":        len(rows),
	})
}

func (s *Server) handleQueryTimeRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	now := time.Now().UTC()
	start, err := timeParam(q.Get("start"), now)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be RFC3339 or a negative duration such as -1h"})
		return
	}
	stop := now
	if v := q.Get("stop"); v != "" {
		if stop, err = timeParam(v, now); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "stop must be RFC3339 or a negative duration such as -1h"})
			return
		}
	}
	if !stop.After(start) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "stop must be after start"})
		return
	}
	limit, ok := intParam(r, "limit", defaultRangeLimit)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id, err := s.queryEquipment(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := s.engine.Telemetry().Range(r.Context(), id, start, stop, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"equipment_id": id,
		"start":        start.Format(time.RFC3339Nano),
		"stop":         stop.Format(time.RFC3339Nano),
		"data":         rows,
		"count":        len(rows),
	})
}

func (s *Server) handleQuerySensorContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	window, ok := minutesParam(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if window == 0 {
		window = 5 * time.Minute
	}
	id, err := s.queryEquipment(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	stats, err := s.stats(r.Context(), id, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"equipment_id": id,
		"minutes":      int(window / time.Minute),
		"stats":        stats,
		"context":      advisor.SensorContext(stats, window),
	})
}

// handleQueryMLStatus lists the newest classifier labels stored with the last hour of readings.
func (s *Server) handleQueryMLStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, ok := intParam(r, "limit", defaultMLStatusLimit)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id, err := s.queryEquipment(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := s.engine.Telemetry().Recent(r.Context(), id, queryLookback, 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]mlStatusRow, 0, min(limit, len(rows)))
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		ml := rows[i].ML
		if ml == nil {
			continue
		}
		out = append(out, mlStatusRow{
			Time:             rows[i].Timestamp,
			HealthStatus:     ml.Status,
			FaultType:        ml.FaultType,
			HealthStatusCode: ml.HealthStatusCode,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"equipment_id": id,
		"data":         out,
		"count":        len(out),
	})
}

func (s *Server) handleBaseline(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.cfg.Get().Baseline)
	case http.MethodPost:
		var b baseline.Config
		if !decodeBody(w, r, &b) {
			return
		}
		b.ApplyDefaults()
		if err := b.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		next := *s.cfg.Get()
		next.Baseline = b
		if err := s.cfg.Update(&next); err != nil {
			s.logger.Error("baseline update failed", "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.engine.UpdateConfig(&next)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		EquipmentID string `json:"equipment_id"`
	}
	_ = json.Unmarshal(body, &req)
	s.engine.Reset(r.Context(), strings.TrimSpace(req.EquipmentID))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) contextWindow(cfg *config.Config, minutes int) time.Duration {
	if minutes > 0 {
		return time.Duration(minutes) * time.Minute
	}
	if cfg.Advisor.ContextWindow > 0 {
		return cfg.Advisor.ContextWindow
	}
	return cfg.Detection.StatsWindow
}

func (s *Server) stats(ctx context.Context, id string, window time.Duration) (map[model.SensorKey]model.SensorStats, error) {
	if err := telemetry.ValidateEquipmentID(id); err != nil {
		return nil, err
	}
	stats, err := s.engine.Telemetry().Stats(ctx, id, window)
	if errors.Is(err, telemetry.ErrNoData) {
		return map[model.SensorKey]model.SensorStats{}, nil
	}
	return stats, err
}

func (s *Server) latest(id string) *model.Assessment {
	if a, _, ok := s.engine.Results().Get(id); ok {
		return &a
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, telemetry.ErrInvalidEquipmentID):
		status = http.StatusBadRequest
	case errors.Is(err, advisor.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		s.logger.Warn("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) queryEquipment(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.URL.Query().Get("equipment_id"))
	if id == "" {
		id = s.cfg.Get().Ingest.Parser.DefaultEquipmentID
	}
	return id, telemetry.ValidateEquipmentID(id)
}

func intParam(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// timeParam accepts RFC3339 or a negative duration relative to now, e.g. -30m.
func timeParam(v string, now time.Time) (time.Time, error) {
	if strings.HasPrefix(v, "-") {
		d, err := time.ParseDuration(v)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}
	return time.Parse(time.RFC3339, v)
}

func pathID(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

func minutesParam(r *http.Request) (time.Duration, bool) {
	v := r.URL.Query().Get("minutes")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Minute, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
