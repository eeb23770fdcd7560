package normalize

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpguard/internal/model"
)

func TestToFloat(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want *float64
	}{
		{"nil", nil, nil},
		{"float", 1.5, model.Float(1.5)},
		{"int", 3, model.Float(3)},
		{"numeric string", " 42.25 ", model.Float(42.25)},
		{"json number", json.Number("7"), model.Float(7)},
		{"garbage string", "abc", nil},
		{"empty string", "", nil},
		{"bool", true, nil},
		{"nan", math.NaN(), nil},
		{"inf", math.Inf(1), nil},
		{"inf string", "-Inf", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToFloat(tc.in)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tc.want, *got, 1e-12)
		})
	}
}

func TestRelativeExcess(t *testing.T) {
	assert.Nil(t, RelativeExcess(nil, 10))
	assert.Nil(t, RelativeExcess(model.Float(5), 0))
	assert.Equal(t, 0.0, *RelativeExcess(model.Float(10), 10))
	assert.Equal(t, 0.0, *RelativeExcess(model.Float(3), 10))
	assert.InDelta(t, 0.5, *RelativeExcess(model.Float(15), 10), 1e-12)
}

func TestRelativeAbsoluteError(t *testing.T) {
	assert.Nil(t, RelativeAbsoluteError(nil, 10))
	assert.Nil(t, RelativeAbsoluteError(model.Float(5), -1))
	assert.InDelta(t, 0.2, *RelativeAbsoluteError(model.Float(8), 10), 1e-12)
	assert.InDelta(t, 0.2, *RelativeAbsoluteError(model.Float(12), 10), 1e-12)
}

func TestAverageSkipsNil(t *testing.T) {
	assert.Nil(t, Average(nil))
	assert.Nil(t, Average([]*float64{nil, nil}))
	avg := Average([]*float64{model.Float(1), nil, model.Float(3)})
	require.NotNil(t, avg)
	assert.Equal(t, 2.0, *avg)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5, 0, 100))
	assert.Equal(t, 100.0, Clamp(120, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
}

func TestNormalizeRecord(t *testing.T) {
	r, err := Normalize(RecordFields{
		Timestamp: "2025-03-01 10:00:00",
		Values: map[string]any{
			"Bearing_Temp_C":     "65.2",
			"vibration_velocity": 3.4,
			"operator":           "alice",
			"oil_temp_c":         "n/a",
		},
	}, Options{DefaultEquipmentID: "pump-1", Source: "rest"})
	require.NoError(t, err)
	assert.Equal(t, "pump-1", r.EquipmentID)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), r.Timestamp)
	assert.Equal(t, model.Snapshot{model.BearingTemp: 65.2, model.VibrationVelocityAlias: 3.4}, r.Values)
	assert.Equal(t, "rest", r.Source)
	assert.Nil(t, r.ML)
}

func TestNormalizeKeepsMLLabels(t *testing.T) {
	r, err := Normalize(RecordFields{
		Timestamp: "2025-03-01T10:00:00Z",
		Values: map[string]any{
			"bearing_temp_c":     65.2,
			"health_status":      "Warning",
			"fault_type":         "cavitation",
			"health_status_code": json.Number("1"),
		},
	}, Options{DefaultEquipmentID: "pump-1"})
	require.NoError(t, err)
	require.NotNil(t, r.ML)
	assert.Equal(t, model.SeverityWarning, r.ML.Status)
	assert.Equal(t, "cavitation", r.ML.FaultType)
	require.NotNil(t, r.ML.HealthStatusCode)
	assert.Equal(t, 1.0, *r.ML.HealthStatusCode)
	assert.Len(t, r.Values, 1)
}

func TestMLLabelsDefaults(t *testing.T) {
	assert.Nil(t, MLLabels(map[string]any{"bearing_temp_c": 60.0}))

	ml := MLLabels(map[string]any{"health_status": "Degraded"})
	require.NotNil(t, ml)
	assert.Equal(t, model.SeverityNormal, ml.Status)
	assert.Equal(t, "none", ml.FaultType)
	assert.Nil(t, ml.HealthStatusCode)

	ml = MLLabels(map[string]any{"health_status": "FAILURE", "fault_type": " "})
	assert.Equal(t, model.SeverityFailure, ml.Status)
	assert.Equal(t, "none", ml.FaultType)
}

func TestNormalizeRejectsEmptyRecord(t *testing.T) {
	_, err := Normalize(RecordFields{Values: map[string]any{"status": "ok"}}, Options{})
	if !errors.Is(err, ErrNoSensorValues) {
		t.Fatalf("expected ErrNoSensorValues, got %v", err)
	}
}

func TestParseTimestampUnix(t *testing.T) {
	ts, err := ParseTimestamp("1700000000", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts.Unix())

	ts, err = ParseTimestamp("1700000000123", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ts.UnixMilli())

	_, err = ParseTimestamp("yesterday", time.UTC)
	assert.Error(t, err)
}
