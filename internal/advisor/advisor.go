// Package advisor wraps a chat completion model for operator questions and maintenance planning.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"pumpguard/internal/config"
	"pumpguard/internal/health"
	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
)

// FallbackRULDays stands in for the equipment RUL when no estimate is available.
const FallbackRULDays = 150.0

var ErrUnavailable = errors.New("advisor: API key not configured")

// Completer returns the assistant content of one chat completion.
type Completer interface {
	Complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error)
}

type OpenAI struct {
	client *openai.Client
}

func NewOpenAI(apiKey, baseURL string, timeout time.Duration) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg)}
}

func (o *OpenAI) Complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", errors.New("chat completion stopped by content filter")
	}
	return choice.Message.Content, nil
}

type Advisor struct {
	cfg       config.AdvisorConfig
	completer Completer
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New builds an advisor. A nil completer is replaced by an OpenAI client when an API key is set.
func New(cfg config.AdvisorConfig, completer Completer, logger *slog.Logger) *Advisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if completer == nil && cfg.Enabled && strings.TrimSpace(cfg.APIKey) != "" {
		completer = NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Timeout)
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
		burst = cfg.RequestsPerMinute
	}
	return &Advisor{
		cfg:       cfg,
		completer: completer,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
	}
}

func (a *Advisor) Available() bool {
	return a != nil && a.cfg.Enabled && a.completer != nil
}

func (a *Advisor) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if !a.Available() {
		return "", ErrUnavailable
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("advisor rate limit: %w", err)
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := a.completer.Complete(ctx, req)
	if err != nil {
		a.logger.Error("advisor request failed", "model", req.Model, "error", err)
		return "", err
	}
	a.logger.Debug("advisor request done", "model", req.Model, "duration", time.Since(start))
	return out, nil
}

// Chat answers an operator message given the sensor and status context blocks.
func (a *Advisor) Chat(ctx context.Context, message, sensorContext, statusContext string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("empty message")
	}
	system := chatSystemPrompt + "\n\nFailure-mode knowledge base:\n" + failureKnowledgeBase +
		"\n\n" + sensorContext + "\n\n" + statusContext
	user := message + "\n\n[Latest assessment context]:\n" + statusContext
	return a.complete(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:         a.cfg.Temperature,
		MaxCompletionTokens: a.cfg.MaxTokens,
	})
}

// SensorContext renders window statistics as one line per sensor, sorted by key.
func SensorContext(stats map[model.SensorKey]model.SensorStats, window time.Duration) string {
	if len(stats) == 0 {
		return "Live sensor statistics: no data in the last " + window.String()
	}
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "Live sensor statistics (last %s):\n", window)
	for _, k := range keys {
		s := stats[model.SensorKey(k)]
		fmt.Fprintf(&b, "- %s: mean=%.4g std=%.4g min=%.4g max=%.4g n=%d\n", k, s.Mean, s.Std, s.Min, s.Max, s.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

// StatusContext summarizes an assessment for the model.
func StatusContext(a *model.Assessment) string {
	if a == nil {
		return "Latest assessment: none available"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Latest assessment for %s at %s:\n", a.EquipmentID, a.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- health index: %s (%s)\n", formatOptional(a.Health.HIPump), a.Health.Condition)
	fmt.Fprintf(&b, "- fault: %s, %s\n", a.Fault.Severity, a.Fault.FaultType)
	for _, t := range a.Fault.Triggers {
		fmt.Fprintf(&b, "  - %s value=%.4g z=%.2f\n", t.Key, t.Value, t.Z)
	}
	fmt.Fprintf(&b, "- remaining useful life: %s days, action in %s days (%s mode)",
		formatOptional(a.RUL.EquipmentRULDays), formatOptional(a.RUL.EquipmentDaysToAction), a.RUL.Mode)
	return b.String()
}

func formatOptional(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.1f", *v)
}

type Asset struct {
	Component  string            `json:"component"`
	SensorKeys []model.SensorKey `json:"sensor_keys"`
	HI         *float64          `json:"hi"`
}

// Assets lists the ten components with their sensors and current health index.
func Assets(components model.ComponentHealth) []Asset {
	out := make([]Asset, 0, len(health.Components))
	for _, c := range health.Components {
		out = append(out, Asset{Component: c.Name, SensorKeys: c.Sensors(), HI: components[c.Name]})
	}
	return out
}

type MaintenanceInput struct {
	EquipmentID string
	Stats       map[model.SensorKey]model.SensorStats
	Components  model.ComponentHealth
	Assessment  *model.Assessment
}

type MaintenanceRow struct {
	Component         string  `json:"component"`
	HealthScore       float64 `json:"health_score"`
	RiskLevel         string  `json:"risk_level"`
	Sign              string  `json:"sign"`
	DaysToAction      float64 `json:"days_to_action"`
	Trend             string  `json:"trend"`
	Action            string  `json:"action"`
	RecommendedAction string  `json:"recommended_action"`
	Reason            *string `json:"reason"`
}

type MaintenanceTable struct {
	EquipmentID string           `json:"equipment_id"`
	GeneratedAt string           `json:"generated_at"`
	RULDays     float64          `json:"overall_equipment_rul_days"`
	Assets      []MaintenanceRow `json:"assets"`
}

// MaintenanceTable asks the model for one maintenance row per component.
func (a *Advisor) MaintenanceTable(ctx context.Context, in MaintenanceInput) (MaintenanceTable, error) {
	rul := FallbackRULDays
	var status any
	if in.Assessment != nil {
		if d := in.Assessment.RUL.EquipmentRULDays; d != nil {
			rul = *d
		}
		status = map[string]any{
			"time":       in.Assessment.Timestamp,
			"severity":   in.Assessment.Fault.Severity,
			"fault_type": in.Assessment.Fault.FaultType,
			"hi_pump":    in.Assessment.Health.HIPump,
		}
	}
	payload, err := json.Marshal(map[string]any{
		"assets_input":               Assets(in.Components),
		"sensor_stats":               in.Stats,
		"status":                     status,
		"overall_equipment_rul_days": rul,
	})
	if err != nil {
		return MaintenanceTable{}, fmt.Errorf("encode maintenance input: %w", err)
	}
	content, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(maintenancePrompt, failureKnowledgeBase)},
			{Role: openai.ChatMessageRoleUser, Content: "Generate the maintenance table:\n" + string(payload)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return MaintenanceTable{}, err
	}
	table, err := decodeTable(content)
	if err != nil {
		return MaintenanceTable{}, err
	}
	table.EquipmentID = in.EquipmentID
	table.RULDays = rul
	return table, nil
}

func decodeTable(content string) (MaintenanceTable, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return MaintenanceTable{}, errors.New("empty maintenance response")
	}
	var table MaintenanceTable
	if err := json.Unmarshal([]byte(content), &table); err != nil {
		return MaintenanceTable{}, fmt.Errorf("decode maintenance response: %w", err)
	}
	if table.Assets == nil {
		return MaintenanceTable{}, errors.New("maintenance response has no assets")
	}
	for i := range table.Assets {
		row := &table.Assets[i]
		row.HealthScore = normalize.Clamp(row.HealthScore, 0, 100)
		row.DaysToAction = math.Max(0, row.DaysToAction)
	}
	if table.GeneratedAt == "" {
		table.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return table, nil
}
