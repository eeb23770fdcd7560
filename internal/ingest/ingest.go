package ingest

import (
	"context"
	"log/slog"
	"time"

	"pumpguard/internal/config"
	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
)

const (
	SourceREST      = "rest"
	SourceKafka     = "kafka"
	SourceTCPStream = "tcp_stream"
	SourceFileTail  = "file_tail"
)

func SendNonBlocking(ctx context.Context, out chan<- model.Reading, r model.Reading, logger *slog.Logger) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("reading channel full, dropping reading", "equipment_id", r.EquipmentID, "timestamp", r.Timestamp)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func normalizeOptions(cfg *config.Config, source string) normalize.Options {
	return normalize.Options{
		Timezone:           cfg.Ingest.Parser.Timezone,
		DefaultEquipmentID: cfg.Ingest.Parser.DefaultEquipmentID,
		Source:             source,
	}
}

// forwardLine parses one line and queues the resulting reading. Header and blank lines are skipped.
func forwardLine(ctx context.Context, line string, parser *Parser, cfg *config.Manager, source string, out chan<- model.Reading, logger *slog.Logger) {
	fields, err := parser.ParseLine(line)
	if err != nil {
		if logger != nil {
			logger.Warn("parse error", "source", source, "err", err)
		}
		return
	}
	if fields == nil {
		return
	}
	r, err := normalize.Normalize(*fields, normalizeOptions(cfg.Get(), source))
	if err != nil {
		if logger != nil {
			logger.Warn("normalize error", "source", source, "err", err)
		}
		return
	}
	SendNonBlocking(ctx, out, r, logger)
}
