package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpguard/internal/model"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, 2.0, cfg.Baseline.Rules.ZWarn)
	assert.Equal(t, 1, cfg.Baseline.Rules.Persistence)
	assert.Len(t, cfg.Baseline.Stats, 15)
}

func TestParseYAMLKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
log_level: debug
telemetry:
  driver: memory
  memory:
    retention: 2h
detection:
  alert_cooldown: 30s
baseline:
  rules:
    persistence: 3
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 2*time.Hour, cfg.Telemetry.Memory.Retention)
	assert.Equal(t, 30*time.Second, cfg.Detection.AlertCooldown)
	assert.Equal(t, 3, cfg.Baseline.Rules.Persistence)
	assert.Equal(t, 3.0, cfg.Baseline.Rules.ZCrit)
	assert.Equal(t, 6, cfg.Baseline.RUL.WindowHours)
	assert.Contains(t, cfg.Baseline.Stats, model.BearingTemp)
	assert.Equal(t, ":8081", cfg.API.Addr)
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"log_level":"warn","api":{"enabled":true,"addr":":9999"}}`))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, ":9999", cfg.API.Addr)
}

func TestParseBaselineOverride(t *testing.T) {
	cfg, err := Parse([]byte(`
baseline:
  stats:
    bearing_temp_c: {mean: 60, std: 2}
`))
	require.NoError(t, err)
	require.Len(t, cfg.Baseline.Stats, 1)
	assert.Equal(t, 60.0, cfg.Baseline.Stats[model.BearingTemp].Mean)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"empty":            ``,
		"kafka incomplete": "ingest:\n  kafka:\n    enabled: true\n",
		"bad driver":       "telemetry:\n  driver: prometheus\n",
		"bad format":       "log_format: xml\n",
		"inverted z":       "baseline:\n  rules:\n    z_warn: 4\n    z_crit: 3\n",
		"file tail":        "ingest:\n  file_tail:\n    enabled: true\n",
	}
	for name, content := range cases {
		if _, err := Parse([]byte(content)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestEnvFillsSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("INFLUXDB_TOKEN", "tok")
	cfg, err := Parse([]byte("log_level: info\n"))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Advisor.APIKey)
	assert.Equal(t, "tok", cfg.Telemetry.Influx.Token)

	cfg, err = Parse([]byte("advisor:\n  api_key: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Advisor.APIKey)

	assert.Equal(t, "sk-test", FromEnv().Advisor.APIKey)
	assert.Empty(t, DefaultConfig().Advisor.APIKey)
}

func TestManagerUpdateAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pumpguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, "info", m.Get().LogLevel)

	next := *m.Get()
	next.LogLevel = "debug"
	require.NoError(t, m.Update(&next))
	assert.Equal(t, "debug", m.Get().LogLevel)

	reloaded, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, "debug", reloaded.LogLevel)
}

func TestManagerWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pumpguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))
	m, err := NewManager(path)
	require.NoError(t, err)

	reloaded := make(chan *Config, 4)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		m.Watch(50*time.Millisecond, func(c *Config) { reloaded <- c }, nil, stop)
		close(done)
	}()

	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("log_level: error\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case c := <-reloaded:
		assert.Equal(t, "error", c.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
	assert.Equal(t, "error", m.Get().LogLevel)
	close(stop)
	<-done
}

func TestStaticManager(t *testing.T) {
	cfg := DefaultConfig()
	m := NewStaticManager(cfg)
	assert.Same(t, cfg, m.Get())
	needs, err := m.NeedsReload()
	require.NoError(t, err)
	assert.False(t, needs)
}
