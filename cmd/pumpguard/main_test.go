package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpguard/internal/config"
	"pumpguard/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadSnapshotAcceptsWrappedObject(t *testing.T) {
	plain := writeFile(t, "plain.json", `{"bearing_temp_c": 70.5, "Oil_Temp_C": "55", "pump_name": "p1"}`)
	snap, err := readSnapshot(plain)
	require.NoError(t, err)
	assert.Equal(t, 70.5, snap[model.BearingTemp])
	assert.Equal(t, 55.0, snap[model.OilTemp])
	assert.Len(t, snap, 2)

	wrapped := writeFile(t, "wrapped.json", `{"snapshot": {"flow_rate_m3_h": 90}}`)
	snap, err = readSnapshot(wrapped)
	require.NoError(t, err)
	assert.Equal(t, 90.0, snap[model.FlowRate])
}

func TestReadSeriesOrdersRows(t *testing.T) {
	path := writeFile(t, "series.json", `[
		{"timestamp": "2025-01-01T00:02:00Z", "bearing_temp_c": 66},
		{"timestamp": "2025-01-01T00:00:00Z", "bearing_temp_c": 65},
		{"timestamp": "2025-01-01T00:01:00Z", "note": "no sensors"}
	]`)
	series, err := readSeries(path, config.DefaultConfig(), "pump-7")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "pump-7", series[0].EquipmentID)
	assert.True(t, series[0].Timestamp.Before(series[1].Timestamp))
}

func TestReadSnapshotRejectsBadJSON(t *testing.T) {
	_, err := readSnapshot(writeFile(t, "bad.json", `{"bearing_temp_c":`))
	assert.Error(t, err)
}

func TestAssessCommandPrintsAssessment(t *testing.T) {
	t.Setenv("PUMPGUARD_CONFIG", "")
	snap := writeFile(t, "snap.json", `{"bearing_temp_c": 70.5}`)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"assess", "--snapshot", snap, "--equipment", "pump-1"})
	require.NoError(t, rootCmd.Execute())

	var a model.Assessment
	require.NoError(t, json.Unmarshal(out.Bytes(), &a))
	assert.Equal(t, "pump-1", a.EquipmentID)
	assert.Equal(t, model.SeverityFailure, a.Fault.Severity)
	assert.Equal(t, model.BearingTemp, a.Fault.CulpritKey)
}
