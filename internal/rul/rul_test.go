package rul

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpguard/internal/baseline"
	"pumpguard/internal/model"
)

var start = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// window builds n rows ten minutes apart; gen returns the row values for index i.
func window(n int, gen func(i int) model.Snapshot) []model.Reading {
	rows := make([]model.Reading, n)
	for i := range rows {
		rows[i] = model.Reading{
			EquipmentID: "pump-1",
			Timestamp:   start.Add(time.Duration(i) * 10 * time.Minute),
			Values:      gen(i),
		}
	}
	return rows
}

func flat(cfg *baseline.Config) func(int) model.Snapshot {
	return func(int) model.Snapshot {
		snap := model.Snapshot{}
		for _, k := range cfg.RUL.CriticalSensors {
			snap[k] = cfg.Stats[k].Mean
		}
		return snap
	}
}

func TestHybridFlatSeriesFollowsSimulation(t *testing.T) {
	cfg := baseline.Default()
	snap := model.Snapshot{model.SimRULDays: 100, model.CSVCycleID: 12}
	res := Estimate(snap, window(36, flat(cfg)), cfg)

	assert.Equal(t, model.RULModeHybrid, res.Mode)
	require.NotNil(t, res.AccelerationFactor)
	assert.InDelta(t, 1.0, *res.AccelerationFactor, 1e-6)
	require.NotNil(t, res.EquipmentRULDays)
	assert.InDelta(t, 100.0, *res.EquipmentRULDays, 1e-4)
	assert.InDelta(t, 86.0, *res.EquipmentDaysToAction, 1e-4)
	assert.Equal(t, 100.0, *res.SimulatedBaseline)
	require.NotNil(t, res.CSVCycleID)
	assert.Equal(t, 12.0, *res.CSVCycleID)
}

func TestHybridWithoutSeries(t *testing.T) {
	cfg := baseline.Default()
	res := Estimate(model.Snapshot{model.SimRULDays: 100}, nil, cfg)
	assert.Equal(t, 1.0, *res.AccelerationFactor)
	assert.Equal(t, 100.0, *res.EquipmentRULDays)
	assert.Equal(t, 86.0, *res.EquipmentDaysToAction)
	assert.Nil(t, res.CulpritSensor)
	assert.NotNil(t, res.PerSensor)
	assert.Nil(t, res.CSVCycleID)
}

func TestHybridClamps(t *testing.T) {
	cfg := baseline.Default()
	cases := []struct {
		sim  float64
		want float64
	}{
		{500, 150},
		{0.2, 1},
		{-10, 1},
	}
	for _, tc := range cases {
		res := Estimate(model.Snapshot{model.SimRULDays: tc.sim}, nil, cfg)
		if *res.EquipmentRULDays != tc.want {
			t.Fatalf("sim=%v: rul %v, want %v", tc.sim, *res.EquipmentRULDays, tc.want)
		}
	}
	res := Estimate(model.Snapshot{model.SimRULDays: 5}, nil, cfg)
	assert.Equal(t, 0.0, *res.EquipmentDaysToAction)
}

func TestHybridDegradationAccelerates(t *testing.T) {
	cfg := baseline.Default()
	st := cfg.Stats[model.BearingTemp]
	rows := window(36, func(i int) model.Snapshot {
		snap := flat(cfg)(i)
		snap[model.BearingTemp] = st.Mean + 0.2*float64(i)
		return snap
	})
	res := Estimate(model.Snapshot{model.SimRULDays: 100}, rows, cfg)
	require.NotNil(t, res.AccelerationFactor)
	assert.Equal(t, 2.0, *res.AccelerationFactor)
	assert.Equal(t, 150.0, *res.EquipmentRULDays)
	require.NotNil(t, res.CulpritSensor)
	assert.Equal(t, model.BearingTemp, *res.CulpritSensor)

	var found bool
	for _, s := range res.PerSensor {
		if s.Sensor == model.BearingTemp {
			found = true
			assert.Greater(t, s.RatePerDay, 0.0)
			assert.Nil(t, s.DaysToFail)
		}
	}
	assert.True(t, found)
}

func TestHybridSkipsShortSeries(t *testing.T) {
	cfg := baseline.Default()
	st := cfg.Stats[model.BearingTemp]
	rows := window(7, func(i int) model.Snapshot {
		return model.Snapshot{model.BearingTemp: st.Mean + float64(i)}
	})
	res := Estimate(model.Snapshot{model.SimRULDays: 40}, rows, cfg)
	assert.Equal(t, 1.0, *res.AccelerationFactor)
	assert.Empty(t, res.PerSensor)
}

func TestTrendOnlyWithoutSeries(t *testing.T) {
	res := Estimate(model.Snapshot{model.BearingTemp: 70}, nil, baseline.Default())
	assert.Equal(t, model.RULModeTrend, res.Mode)
	assert.Nil(t, res.EquipmentRULDays)
	assert.Nil(t, res.EquipmentDaysToAction)
	assert.Nil(t, res.CulpritSensor)
	assert.NotNil(t, res.PerSensor)
	assert.Empty(t, res.PerSensor)
	assert.Nil(t, res.AccelerationFactor)
}

func TestTrendOnlyExtrapolatesToLimits(t *testing.T) {
	cfg := baseline.Default()
	brg := cfg.Stats[model.BearingTemp]
	flow := cfg.Deviations[model.FlowRate]
	rows := window(24, func(i int) model.Snapshot {
		return model.Snapshot{
			model.BearingTemp: brg.Mean + 0.05*float64(i),
			model.FlowRate:    flow.Nominal - 0.02*float64(i),
			model.OilTemp:     cfg.Stats[model.OilTemp].Mean,
		}
	})
	snap := model.Snapshot{model.BearingTemp: brg.Mean + 1, model.FlowRate: flow.Nominal - 1}
	res := Estimate(snap, rows, cfg)

	bySensor := map[model.SensorKey]model.SensorRUL{}
	for _, s := range res.PerSensor {
		bySensor[s.Sensor] = s
	}
	require.Contains(t, bySensor, model.BearingTemp)
	require.Contains(t, bySensor, model.FlowRate)
	require.Contains(t, bySensor, model.OilTemp)

	b := bySensor[model.BearingTemp]
	require.Greater(t, b.RatePerDay, 0.0)
	require.NotNil(t, b.DaysToFail)
	assert.InDelta(t, (brg.Mean+3*brg.Std-(brg.Mean+1))/b.RatePerDay, *b.DaysToFail, 1e-9)
	assert.InDelta(t, (brg.Mean+2*brg.Std-(brg.Mean+1))/b.RatePerDay, *b.DaysToAction, 1e-9)

	f := bySensor[model.FlowRate]
	require.Less(t, f.RatePerDay, 0.0)
	require.NotNil(t, f.DaysToFail)
	failLo := flow.Nominal * (1 - flow.FailDev)
	assert.InDelta(t, ((flow.Nominal-1)-failLo)/-f.RatePerDay, *f.DaysToFail, 1e-9)

	// a flat oil series projects nothing
	o := bySensor[model.OilTemp]
	assert.Nil(t, o.DaysToFail)

	require.NotNil(t, res.EquipmentRULDays)
	want := *b.DaysToFail
	culprit := model.BearingTemp
	if *f.DaysToFail < want {
		want, culprit = *f.DaysToFail, model.FlowRate
	}
	assert.Equal(t, want, *res.EquipmentRULDays)
	require.NotNil(t, res.CulpritSensor)
	assert.Equal(t, culprit, *res.CulpritSensor)
	assert.LessOrEqual(t, *res.EquipmentDaysToAction, *res.EquipmentRULDays)
}

func TestTrendOnlyUsesSmoothedValueWhenSnapshotLacksSensor(t *testing.T) {
	cfg := baseline.Default()
	rows := window(10, func(i int) model.Snapshot {
		return model.Snapshot{model.Accelerometer: 0.3 + 0.001*float64(i)}
	})
	res := Estimate(model.Snapshot{}, rows, cfg)
	require.Len(t, res.PerSensor, 1)
	require.NotNil(t, res.PerSensor[0].Current)
	assert.Less(t, *res.PerSensor[0].Current, 0.309)
	assert.Greater(t, *res.PerSensor[0].Current, 0.3)
}

func TestDaysToLimit(t *testing.T) {
	cur := model.Float(10)
	cases := []struct {
		name  string
		cur   *float64
		rate  float64
		limit float64
		dir   Direction
		want  *float64
	}{
		{"no current", nil, 1, 20, High, nil},
		{"flat", cur, 1e-12, 20, High, nil},
		{"high approaching", cur, 2, 20, High, model.Float(5)},
		{"high receding", cur, -2, 20, High, nil},
		{"high already past", cur, 2, 8, High, model.Float(0)},
		{"low approaching", cur, -2, 4, Low, model.Float(3)},
		{"low receding", cur, 2, 4, Low, nil},
		{"low already past", cur, -2, 12, Low, model.Float(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DaysToLimit(tc.cur, tc.rate, tc.limit, tc.dir)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tc.want, *got, 1e-12)
		})
	}
}
