package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"pumpguard/internal/config"
	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
)

// StartKafka consumes reading messages. A message key, when present, names the equipment
// for records that carry no equipment id of their own.
func StartKafka(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.Reading, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, time.Second) {
					return
				}
				continue
			}
			r, ok := decodeMessage(m, parser, cfg.Get(), logger)
			if !ok {
				continue
			}
			SendNonBlocking(ctx, out, r, logger)
		}
	}()
}

func decodeMessage(m kafka.Message, parser *Parser, cfg *config.Config, logger *slog.Logger) (model.Reading, bool) {
	fields, err := parser.ParseLine(string(m.Value))
	if err != nil || fields == nil {
		return model.Reading{}, false
	}
	if fields.EquipmentID == "" && len(m.Key) > 0 {
		fields.EquipmentID = string(m.Key)
	}
	r, err := normalize.Normalize(*fields, normalizeOptions(cfg, SourceKafka))
	if err != nil {
		if logger != nil {
			logger.Warn("kafka normalize error", "topic", m.Topic, "offset", m.Offset, "err", err)
		}
		return model.Reading{}, false
	}
	return r, true
}
