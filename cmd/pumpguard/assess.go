package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pumpguard/internal/alerts"
	"pumpguard/internal/config"
	"pumpguard/internal/engine"
	"pumpguard/internal/ingest"
	"pumpguard/internal/logging"
	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
	"pumpguard/internal/results"
	"pumpguard/internal/telemetry"
)

var (
	assessCmd = &cobra.Command{
		Use:   "assess",
		Short: "Assess one snapshot file, optionally with a series file, and print the result",
		RunE:  runAssess,
	}

	snapshotFile string
	seriesFile   string
	equipmentID  string
)

func init() {
	assessCmd.Flags().StringVar(&snapshotFile, "snapshot", "", "JSON object of sensor values")
	assessCmd.Flags().StringVar(&seriesFile, "series", "", "JSON array of timestamped readings")
	assessCmd.Flags().StringVar(&equipmentID, "equipment", "", "equipment id for the result")
	_ = assessCmd.MarkFlagRequired("snapshot")
	rootCmd.AddCommand(assessCmd)
}

func runAssess(cmd *cobra.Command, _ []string) error {
	cfgManager, err := loadManager()
	if err != nil {
		return err
	}
	cfg := cfgManager.Get()
	snap, err := readSnapshot(snapshotFile)
	if err != nil {
		return err
	}
	var series []model.Reading
	if seriesFile != "" {
		series, err = readSeries(seriesFile, cfg, equipmentID)
		if err != nil {
			return err
		}
	}
	eng := engine.NewEngine(cfg, logging.Discard(), telemetry.NewMemory(0, 0), results.NewStore(0), alerts.NewStore(0), nil)
	return printJSON(cmd.OutOrStdout(), eng.AssessSnapshot(equipmentID, snap, series))
}

func readSnapshot(path string) (model.Snapshot, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := decodeJSON(content, &obj); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if nested, ok := obj["snapshot"].(map[string]any); ok {
		obj = nested
	}
	return normalize.Snapshot(obj), nil
}

func readSeries(path string, cfg *config.Config, equipmentID string) ([]model.Reading, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := decodeJSON(content, &rows); err != nil {
		return nil, fmt.Errorf("decode series %s: %w", path, err)
	}
	defaultID := equipmentID
	if defaultID == "" {
		defaultID = cfg.Ingest.Parser.DefaultEquipmentID
	}
	return ingest.ReadingsFromJSON(rows, normalize.Options{
		Timezone:           cfg.Ingest.Parser.Timezone,
		DefaultEquipmentID: defaultID,
		Source:             "file",
	}), nil
}

func decodeJSON(content []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	return dec.Decode(v)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
