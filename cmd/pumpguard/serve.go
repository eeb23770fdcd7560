package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pumpguard/internal/advisor"
	"pumpguard/internal/alerts"
	"pumpguard/internal/api"
	"pumpguard/internal/config"
	"pumpguard/internal/engine"
	"pumpguard/internal/ingest"
	"pumpguard/internal/logging"
	"pumpguard/internal/model"
	"pumpguard/internal/results"
	"pumpguard/internal/storage"
	"pumpguard/internal/telemetry"
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run ingestion, assessment and the HTTP API",
		RunE:  runServe,
	}

	checkConfigCmd = &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the config, then print it",
		RunE:  runCheckConfig,
	}

	assessInterval time.Duration
)

func init() {
	serveCmd.Flags().DurationVar(&assessInterval, "assess-interval", 0, "assess every known equipment on this period (0 disables)")
	rootCmd.AddCommand(serveCmd, checkConfigCmd)
}

func resolveConfigPath() string {
	if configPath != "" {
		return config.ResolvePath(configPath)
	}
	return config.ResolvePath(os.Getenv("PUMPGUARD_CONFIG"))
}

func loadManager() (*config.Manager, error) {
	path := resolveConfigPath()
	if path == "" {
		return config.NewStaticManager(config.FromEnv()), nil
	}
	cfg, err := config.NewManager(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func openTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (telemetry.Store, error) {
	switch cfg.Telemetry.Driver {
	case "", "memory":
		return telemetry.NewMemory(cfg.Telemetry.Memory.Retention, cfg.Telemetry.Memory.Capacity), nil
	case "influx", "influxdb":
		in := cfg.Telemetry.Influx
		store, err := telemetry.NewInflux(telemetry.InfluxOptions{
			URL:     in.URL,
			Token:   in.Token,
			Org:     in.Org,
			Bucket:  in.Bucket,
			Timeout: in.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			logger.Warn("influx not reachable at startup", "url", in.URL, "err", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported telemetry driver %q", cfg.Telemetry.Driver)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgManager, err := loadManager()
	if err != nil {
		return err
	}
	cfg := cfgManager.Get()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := openTelemetry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer tel.Close()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
	}

	eng := engine.NewEngine(cfg, logger, tel,
		results.NewStore(cfg.Results.StoreLimit),
		alerts.NewStore(cfg.Alerts.StoreLimit),
		store)
	adv := advisor.New(cfg.Advisor, nil, logger)
	if !adv.Available() {
		logger.Info("advisor disabled", "reason", "no api key or advisor.enabled=false")
	}

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go cfgManager.Watch(3*time.Second, func(next *config.Config) {
		eng.UpdateConfig(next)
		logger.Info("config reloaded", "path", cfgManager.Path())
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, stopWatch)

	readings := make(chan model.Reading, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, readings)

	ingest.StartREST(ctx, cfgManager, readings, logger)
	ingest.StartTCPStream(ctx, cfgManager, readings, logger)
	ingest.StartFileTail(ctx, cfgManager, readings, logger)
	ingest.StartKafka(ctx, cfgManager, ingest.NewParser(), readings, logger)
	api.Start(ctx, cfgManager, eng, adv, logger, version)

	if assessInterval > 0 {
		go assessLoop(ctx, eng, assessInterval, logger)
	}

	logger.Info("pumpguard started", "version", version, "telemetry", cfg.Telemetry.Driver, "storage", cfg.Storage.Enabled)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func assessLoop(ctx context.Context, eng *engine.Engine, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			list, err := eng.AssessAll(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("periodic assessment failed", "err", err)
				continue
			}
			logger.Debug("periodic assessment done", "equipment", len(list))
		}
	}
}

func runCheckConfig(cmd *cobra.Command, _ []string) error {
	cfgManager, err := loadManager()
	if err != nil {
		return err
	}
	cfg := *cfgManager.Get()
	if cfg.Advisor.APIKey != "" {
		cfg.Advisor.APIKey = "***"
	}
	if cfg.Telemetry.Influx.Token != "" {
		cfg.Telemetry.Influx.Token = "***"
	}
	if err := config.Validate(&cfg); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), cfg)
}
