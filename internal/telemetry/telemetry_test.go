package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpguard/internal/model"
)

func newMemoryAt(now time.Time, retention time.Duration, capacity int) *Memory {
	m := NewMemory(retention, capacity)
	m.now = func() time.Time { return now }
	return m
}

func reading(id string, ts time.Time, v float64) model.Reading {
	return model.Reading{EquipmentID: id, Timestamp: ts, Values: model.Snapshot{model.BearingTemp: v}}
}

func TestMemoryLatestAndRecent(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	m := newMemoryAt(now, 24*time.Hour, 0)
	ctx := context.Background()

	_, err := m.Latest(ctx, "pump-1")
	require.True(t, errors.Is(err, ErrNoData))

	for i := 10; i >= 1; i-- {
		require.NoError(t, m.Append(ctx, reading("pump-1", now.Add(-time.Duration(i)*time.Hour), float64(i))))
	}
	latest, err := m.Latest(ctx, "pump-1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, latest.Values[model.BearingTemp])

	rows, err := m.Recent(ctx, "pump-1", 6*time.Hour, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []float64{3, 2, 1}, []float64{
		rows[0].Values[model.BearingTemp], rows[1].Values[model.BearingTemp], rows[2].Values[model.BearingTemp],
	})

	rows, err = m.Recent(ctx, "pump-1", 6*time.Hour, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}

func TestMemoryOutOfOrderInsert(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	m := newMemoryAt(now, time.Hour, 0)
	ctx := context.Background()
	require.NoError(t, m.Append(ctx,
		reading("p", now.Add(-10*time.Minute), 1),
		reading("p", now.Add(-30*time.Minute), 2),
		reading("p", now.Add(-20*time.Minute), 3),
	))
	rows, err := m.Recent(ctx, "p", time.Hour, 0)
	require.NoError(t, err)
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i-1].Timestamp.Before(rows[i].Timestamp))
	}
}

func TestMemoryEvictsByRetentionAndCapacity(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	m := newMemoryAt(now, 2*time.Hour, 5)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, m.Append(ctx, reading("p", now.Add(-3*time.Hour+time.Duration(i)*10*time.Minute), float64(i))))
	}
	rows, err := m.Recent(ctx, "p", 24*time.Hour, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Equal(t, 19.0, rows[4].Values[model.BearingTemp])
}

func TestMemoryRejectsBadEquipmentID(t *testing.T) {
	m := NewMemory(time.Hour, 0)
	err := m.Append(context.Background(), reading(`x") |> drop()`, time.Now(), 1))
	assert.True(t, errors.Is(err, ErrInvalidEquipmentID))
}

func TestMemoryStats(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	m := newMemoryAt(now, time.Hour, 0)
	ctx := context.Background()
	for i, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		require.NoError(t, m.Append(ctx, model.Reading{
			EquipmentID: "p",
			Timestamp:   now.Add(-time.Duration(10-i) * time.Minute),
			Values:      model.Snapshot{model.OilTemp: v},
		}))
	}
	stats, err := m.Stats(ctx, "p", 15*time.Minute)
	require.NoError(t, err)
	st := stats[model.OilTemp]
	assert.Equal(t, 8, st.Count)
	assert.Equal(t, 5.0, st.Mean)
	assert.Equal(t, 2.1381, st.Std)
	assert.Equal(t, 2.0, st.Min)
	assert.Equal(t, 9.0, st.Max)
	assert.Equal(t, model.Snapshot{model.OilTemp: 5}, Means(stats))

	ids, err := m.Equipment(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, ids)
}

func TestMemoryReturnsCopies(t *testing.T) {
	now := time.Now()
	m := newMemoryAt(now, time.Hour, 0)
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, reading("p", now, 1)))
	got, err := m.Latest(ctx, "p")
	require.NoError(t, err)
	got.Values[model.BearingTemp] = 99
	again, _ := m.Latest(ctx, "p")
	assert.Equal(t, 1.0, again.Values[model.BearingTemp])
}

func TestMemoryRange(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	m := newMemoryAt(now, 24*time.Hour, 0)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		require.NoError(t, m.Append(ctx, reading("p", now.Add(-time.Duration(6-i)*time.Hour), float64(i))))
	}
	rows, err := m.Range(ctx, "p", now.Add(-4*time.Hour), now.Add(-2*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2.0, rows[0].Values[model.BearingTemp])
	assert.Equal(t, 3.0, rows[1].Values[model.BearingTemp])

	rows, err = m.Range(ctx, "p", now.Add(-24*time.Hour), now, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0.0, rows[0].Values[model.BearingTemp])

	rows, err = m.Range(ctx, "p", now, now.Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = m.Range(ctx, "unknown", now.Add(-time.Hour), now, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = m.Range(ctx, "a b", now.Add(-time.Hour), now, 0)
	assert.True(t, errors.Is(err, ErrInvalidEquipmentID))
}

func TestMemoryKeepsMLStatus(t *testing.T) {
	now := time.Now()
	m := newMemoryAt(now, time.Hour, 0)
	ctx := context.Background()
	r := reading("p", now, 1)
	r.ML = &model.MLStatus{Status: model.SeverityWarning, FaultType: "seal leak"}
	require.NoError(t, m.Append(ctx, r))
	r.ML.FaultType = "changed"

	got, err := m.Latest(ctx, "p")
	require.NoError(t, err)
	require.NotNil(t, got.ML)
	assert.Equal(t, "seal leak", got.ML.FaultType)
	assert.Equal(t, model.SeverityWarning, got.ML.Status)
}

func TestValidateEquipmentID(t *testing.T) {
	for _, ok := range []string{"pump-1", "sensor_measurements", "a.b", strings.Repeat("x", 64)} {
		assert.NoError(t, ValidateEquipmentID(ok), ok)
	}
	for _, bad := range []string{"", "a b", `x"`, strings.Repeat("x", 65)} {
		assert.Error(t, ValidateEquipmentID(bad), bad)
	}
}

func TestFluxQueries(t *testing.T) {
	q := recentQuery("telemetry", "pump-1", 6*time.Hour, 240)
	assert.Contains(t, q, `from(bucket: "telemetry")`)
	assert.Contains(t, q, "range(start: -21600s)")
	assert.Contains(t, q, `r["_measurement"] == "pump-1"`)
	assert.Contains(t, q, "limit(n: 240)")
	assert.Less(t, strings.Index(q, "desc: true"), strings.Index(q, "desc: false"))

	s := statsQuery("telemetry", "pump-1", 5*time.Minute)
	assert.Contains(t, s, "range(start: -300s)")
	assert.Contains(t, s, `r["_field"] != "health_status"`)

	assert.Less(t, strings.Index(q, "pivot("), strings.Index(q, "group()"))
	assert.Less(t, strings.Index(q, "group()"), strings.Index(q, "limit("))

	l := latestQuery("b", "m")
	assert.Contains(t, l, "limit(n: 1)")
	assert.Less(t, strings.Index(l, "pivot("), strings.Index(l, "group()"))
	assert.Less(t, strings.Index(l, "group()"), strings.Index(l, "sort("))
	assert.Contains(t, measurementsQuery("b"), `schema.measurements(bucket: "b")`)

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rq := rangeQuery("telemetry", "pump-1", start, start.Add(time.Hour), 50)
	assert.Contains(t, rq, "range(start: 2025-05-01T00:00:00Z, stop: 2025-05-01T01:00:00Z)")
	assert.Less(t, strings.Index(rq, "group()"), strings.Index(rq, "limit(n: 50)"))
	assert.NotContains(t, rangeQuery("telemetry", "pump-1", start, start.Add(time.Hour), 0), "limit(")
}

func TestNewestReadingAcrossTagTables(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.Reading{
		{EquipmentID: "pump-1", Timestamp: base.Add(time.Minute), Values: model.Snapshot{model.OilTemp: 54}},
		{EquipmentID: "pump-1", Timestamp: base.Add(3 * time.Minute), Values: model.Snapshot{model.OilTemp: 56}},
		{EquipmentID: "pump-1", Timestamp: base.Add(2 * time.Minute), Values: model.Snapshot{model.OilTemp: 55}},
	}
	newest := newestReading(rows)
	assert.Equal(t, base.Add(3*time.Minute), newest.Timestamp)
	assert.Equal(t, 56.0, newest.Values[model.OilTemp])
}

func TestPivotValues(t *testing.T) {
	snap := pivotValues(map[string]interface{}{
		"_time":             time.Now(),
		"_measurement":      "pump-1",
		"result":            "_result",
		"table":             int64(0),
		"bearing_temp_c":    65.1,
		"sim_rul_days":      int64(90),
		"health_status":     "ok",
		"oil_temp_c":        nil,
		"flow_rate_m3_h":    "88.5",
		"unrelated_counter": 3.0,
	})
	assert.Equal(t, model.Snapshot{
		model.BearingTemp: 65.1,
		model.SimRULDays:  90,
		model.FlowRate:    88.5,
	}, snap)
}

func TestReadingPoint(t *testing.T) {
	ts := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	p := readingPoint(model.Reading{EquipmentID: "pump-1", Timestamp: ts, Source: "kafka", Values: model.Snapshot{model.OilTemp: 55}})
	assert.Equal(t, "pump-1", p.Name())
	assert.Equal(t, ts, p.Time())
	require.Len(t, p.FieldList(), 1)
	assert.Equal(t, "oil_temp_c", p.FieldList()[0].Key)
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "kafka", p.TagList()[0].Value)
}

func TestReadingPointWritesMLFields(t *testing.T) {
	code := 2.0
	p := readingPoint(model.Reading{
		EquipmentID: "pump-1",
		Timestamp:   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Values:      model.Snapshot{model.OilTemp: 55},
		ML:          &model.MLStatus{Status: model.SeverityFailure, FaultType: "bearing wear", HealthStatusCode: &code},
	})
	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, "failure", fields["health_status"])
	assert.Equal(t, "bearing wear", fields["fault_type"])
	assert.Equal(t, 2.0, fields["health_status_code"])
	assert.Equal(t, 55.0, fields["oil_temp_c"])
}
