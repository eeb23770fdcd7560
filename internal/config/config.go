package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"pumpguard/internal/baseline"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	LogFormat string          `json:"log_format" yaml:"log_format"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Baseline  baseline.Config `json:"baseline" yaml:"baseline"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Advisor   AdvisorConfig   `json:"advisor" yaml:"advisor"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
	Results   ResultsConfig   `json:"results" yaml:"results"`
}

type TelemetryConfig struct {
	Driver string       `json:"driver" yaml:"driver"`
	Influx InfluxConfig `json:"influx" yaml:"influx"`
	Memory MemoryConfig `json:"memory" yaml:"memory"`
}

type InfluxConfig struct {
	URL     string        `json:"url" yaml:"url"`
	Token   string        `json:"token" yaml:"token"`
	Org     string        `json:"org" yaml:"org"`
	Bucket  string        `json:"bucket" yaml:"bucket"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

type MemoryConfig struct {
	Retention time.Duration `json:"retention" yaml:"retention"`
	Capacity  int           `json:"capacity" yaml:"capacity"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	DedupeWindow  time.Duration   `json:"dedupe_window" yaml:"dedupe_window"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	Parser        ParserConfig    `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type ParserConfig struct {
	Timezone           string `json:"timezone" yaml:"timezone"`
	DefaultEquipmentID string `json:"default_equipment_id" yaml:"default_equipment_id"`
}

type DetectionConfig struct {
	AlertCooldown  time.Duration `json:"alert_cooldown" yaml:"alert_cooldown"`
	AssessOnIngest bool          `json:"assess_on_ingest" yaml:"assess_on_ingest"`
	FetchTimeout   time.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
	Workers        int           `json:"workers" yaml:"workers"`
	StatsWindow    time.Duration `json:"stats_window" yaml:"stats_window"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type AdvisorConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled"`
	APIKey            string        `json:"api_key" yaml:"api_key"`
	BaseURL           string        `json:"base_url" yaml:"base_url"`
	Model             string        `json:"model" yaml:"model"`
	Temperature       float32       `json:"temperature" yaml:"temperature"`
	MaxTokens         int           `json:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int           `json:"requests_per_minute" yaml:"requests_per_minute"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	ContextWindow     time.Duration `json:"context_window" yaml:"context_window"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type ResultsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Telemetry: TelemetryConfig{
			Driver: "memory",
			Influx: InfluxConfig{URL: "http://localhost:8086", Org: "pumpguard", Bucket: "telemetry", Timeout: 10 * time.Second},
			Memory: MemoryConfig{Retention: 24 * time.Hour, Capacity: 20000},
		},
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			DedupeWindow:  time.Minute,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
			Parser:        ParserConfig{Timezone: "UTC", DefaultEquipmentID: "sensor_measurements"},
		},
		Detection: DetectionConfig{
			AlertCooldown:  5 * time.Minute,
			AssessOnIngest: true,
			FetchTimeout:   10 * time.Second,
			Workers:        4,
			StatsWindow:    5 * time.Minute,
		},
		Baseline: *baseline.Default(),
		API:      APIConfig{Enabled: true, Addr: ":8081"},
		Storage:  StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:pumpguard.db?_pragma=busy_timeout(5000)"},
		Advisor: AdvisorConfig{
			Enabled:           true,
			Model:             "gpt-4o-mini",
			Temperature:       0.3,
			MaxTokens:         800,
			RequestsPerMinute: 20,
			Timeout:           60 * time.Second,
			ContextWindow:     5 * time.Minute,
		},
		Alerts:  AlertsConfig{StoreLimit: 1000},
		Results: ResultsConfig{StoreLimit: 5000},
	}
}

// FromEnv is DefaultConfig with environment secrets applied, for runs without a config file.
func FromEnv() *Config {
	cfg := DefaultConfig()
	applyEnv(cfg)
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return Parse(content)
}

// Parse decodes YAML or JSON over the defaults, then validates.
func Parse(content []byte) (*Config, error) {
	cfg := DefaultConfig()
	// section maps are replaced wholesale when present in the file
	cfg.Baseline = baseline.Config{}

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode config: %w", decodeErr)
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	cfg.Baseline.ApplyDefaults()
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.Telemetry.Driver == "" {
		cfg.Telemetry.Driver = "memory"
	}
	if cfg.Telemetry.Memory.Retention <= 0 {
		cfg.Telemetry.Memory.Retention = 24 * time.Hour
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Results.StoreLimit <= 0 {
		cfg.Results.StoreLimit = 5000
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = "UTC"
	}
	if cfg.Ingest.Parser.DefaultEquipmentID == "" {
		cfg.Ingest.Parser.DefaultEquipmentID = "sensor_measurements"
	}
	if cfg.Detection.Workers <= 0 {
		cfg.Detection.Workers = 4
	}
	if cfg.Detection.FetchTimeout <= 0 {
		cfg.Detection.FetchTimeout = 10 * time.Second
	}
	if cfg.Detection.StatsWindow <= 0 {
		cfg.Detection.StatsWindow = 5 * time.Minute
	}
	if cfg.Advisor.Model == "" {
		cfg.Advisor.Model = "gpt-4o-mini"
	}
	if cfg.Advisor.RequestsPerMinute <= 0 {
		cfg.Advisor.RequestsPerMinute = 20
	}
	if cfg.Advisor.ContextWindow <= 0 {
		cfg.Advisor.ContextWindow = 5 * time.Minute
	}
}

// applyEnv fills secrets left empty in the file.
func applyEnv(cfg *Config) {
	if cfg.Telemetry.Influx.Token == "" {
		cfg.Telemetry.Influx.Token = os.Getenv("INFLUXDB_TOKEN")
	}
	if cfg.Advisor.APIKey == "" {
		cfg.Advisor.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	switch strings.ToLower(cfg.Telemetry.Driver) {
	case "memory":
	case "influx", "influxdb":
		in := cfg.Telemetry.Influx
		if in.URL == "" || in.Org == "" || in.Bucket == "" {
			return errors.New("telemetry.influx requires url, org, bucket")
		}
	default:
		return fmt.Errorf("telemetry.driver %q not supported", cfg.Telemetry.Driver)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("log_format %q not supported", cfg.LogFormat)
	}
	if cfg.Detection.AlertCooldown < 0 {
		return errors.New("detection.alert_cooldown must not be negative")
	}
	if err := cfg.Baseline.Validate(); err != nil {
		return err
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	mu      sync.Mutex
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	m.touch()
	return m, nil
}

// NewStaticManager serves cfg without a backing file.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) touch() {
	if m.path == "" {
		return
	}
	if info, err := os.Stat(m.path); err == nil {
		m.mu.Lock()
		m.modTime = info.ModTime()
		m.mu.Unlock()
	}
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	m.touch()
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	m.touch()
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return info.ModTime().After(m.modTime), nil
}
