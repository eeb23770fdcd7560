package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpguard/internal/config"
	"pumpguard/internal/model"
)

type fakeCompleter struct {
	reply string
	err   error
	reqs  []openai.ChatCompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req openai.ChatCompletionRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

func testAdvisor(fake Completer) *Advisor {
	cfg := config.DefaultConfig().Advisor
	cfg.RequestsPerMinute = 0
	return New(cfg, fake, nil)
}

func TestChatBuildsPrompt(t *testing.T) {
	fake := &fakeCompleter{reply: "Bearing looks **Normal**."}
	a := testAdvisor(fake)
	out, err := a.Chat(context.Background(), "How is the bearing?", "Live sensor statistics: x", "Latest assessment: y")
	require.NoError(t, err)
	assert.Equal(t, "Bearing looks **Normal**.", out)

	require.Len(t, fake.reqs, 1)
	req := fake.reqs[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "Coupling / Alignment")
	assert.Contains(t, req.Messages[0].Content, "Live sensor statistics: x")
	assert.True(t, strings.HasPrefix(req.Messages[1].Content, "How is the bearing?"))
	assert.Contains(t, req.Messages[1].Content, "Latest assessment: y")
	assert.Equal(t, "gpt-4o-mini", req.Model)
}

func TestChatUnavailableWithoutKey(t *testing.T) {
	a := New(config.DefaultConfig().Advisor, nil, nil)
	assert.False(t, a.Available())
	_, err := a.Chat(context.Background(), "hello", "", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChatPropagatesErrors(t *testing.T) {
	a := testAdvisor(&fakeCompleter{err: errors.New("upstream 500")})
	_, err := a.Chat(context.Background(), "hello", "", "")
	assert.ErrorContains(t, err, "upstream 500")

	_, err = a.Chat(context.Background(), "   ", "", "")
	assert.Error(t, err)
}

func TestMaintenanceTable(t *testing.T) {
	fake := &fakeCompleter{reply: `{"generated_at":"","assets":[{"component":"Casing","health_score":120,"risk_level":"normal","sign":"none","days_to_action":-3,"trend":"stable","action":"Monitor","recommended_action":"Keep monitoring","reason":null}]}`}
	a := testAdvisor(fake)
	hi := 91.5
	table, err := a.MaintenanceTable(context.Background(), MaintenanceInput{
		EquipmentID: "pump-1",
		Components:  model.ComponentHealth{"Casing": &hi},
	})
	require.NoError(t, err)
	assert.Equal(t, "pump-1", table.EquipmentID)
	assert.Equal(t, FallbackRULDays, table.RULDays)
	require.Len(t, table.Assets, 1)
	assert.Equal(t, 100.0, table.Assets[0].HealthScore)
	assert.Equal(t, 0.0, table.Assets[0].DaysToAction)
	assert.NotEmpty(t, table.GeneratedAt)

	req := fake.reqs[0]
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
	assert.Contains(t, req.Messages[1].Content, `"component":"Casing"`)
	assert.Contains(t, req.Messages[1].Content, `"hi":91.5`)
	assert.Contains(t, req.Messages[1].Content, `"overall_equipment_rul_days":150`)
}

func TestMaintenanceTableUsesAssessmentRUL(t *testing.T) {
	fake := &fakeCompleter{reply: `{"assets":[]}`}
	a := testAdvisor(fake)
	table, err := a.MaintenanceTable(context.Background(), MaintenanceInput{
		Assessment: &model.Assessment{RUL: model.RULResult{EquipmentRULDays: model.Float(42)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 42.0, table.RULDays)
	assert.Empty(t, table.Assets)
}

func TestMaintenanceTableRejectsBadJSON(t *testing.T) {
	for _, reply := range []string{"", "not json", `{"generated_at":"x"}`} {
		_, err := testAdvisor(&fakeCompleter{reply: reply}).MaintenanceTable(context.Background(), MaintenanceInput{})
		assert.Error(t, err, reply)
	}
}

func TestAssetsCoverTenComponents(t *testing.T) {
	assets := Assets(nil)
	require.Len(t, assets, 10)
	assert.Equal(t, "Casing", assets[0].Component)
	assert.Equal(t, "Coupling / Alignment", assets[9].Component)
	for _, a := range assets {
		assert.NotEmpty(t, a.SensorKeys)
		assert.Nil(t, a.HI)
	}
}

func TestContextBlocks(t *testing.T) {
	stats := map[model.SensorKey]model.SensorStats{
		model.OilTemp:     {Mean: 55, Std: 1, Min: 53, Max: 57, Count: 10},
		model.BearingTemp: {Mean: 65, Std: 1.5, Min: 62, Max: 68, Count: 10},
	}
	out := SensorContext(stats, 5*time.Minute)
	assert.Less(t, strings.Index(out, "bearing_temp_c"), strings.Index(out, "oil_temp_c"))
	assert.Contains(t, out, "oil_temp_c: mean=55 std=1 min=53 max=57 n=10")
	assert.Contains(t, SensorContext(nil, time.Minute), "no data")

	assert.Contains(t, StatusContext(nil), "none available")
	a := &model.Assessment{
		EquipmentID: "pump-1",
		Health:      model.HealthIndexResult{HIPump: model.Float(82.3), Condition: model.ConditionNormal},
		Fault:       model.FaultResult{Severity: model.SeverityNormal, FaultType: "Normal operation"},
		RUL:         model.RULResult{Mode: model.RULModeTrend},
	}
	s := StatusContext(a)
	assert.Contains(t, s, "health index: 82.3 (normal)")
	assert.Contains(t, s, "remaining useful life: unknown days")
}
