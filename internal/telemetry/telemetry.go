// Package telemetry reads and writes equipment sensor series. The inference core only sees
// snapshots and reading windows; where they live is up to the Store implementation.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"pumpguard/internal/model"
)

var (
	ErrNoData             = errors.New("telemetry: no data")
	ErrInvalidEquipmentID = errors.New("telemetry: invalid equipment id")
)

var equipmentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidateEquipmentID guards ids that end up inside query text.
func ValidateEquipmentID(id string) error {
	if !equipmentIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidEquipmentID, id)
	}
	return nil
}

type Source interface {
	// Latest returns the most recent reading or ErrNoData.
	Latest(ctx context.Context, equipmentID string) (model.Reading, error)
	// Recent returns at most limit of the newest readings inside window, oldest first.
	Recent(ctx context.Context, equipmentID string, window time.Duration, limit int) ([]model.Reading, error)
	// Range returns readings with start <= timestamp < stop, oldest first, at most limit when limit > 0.
	Range(ctx context.Context, equipmentID string, start, stop time.Time, limit int) ([]model.Reading, error)
	Stats(ctx context.Context, equipmentID string, window time.Duration) (map[model.SensorKey]model.SensorStats, error)
	Equipment(ctx context.Context) ([]string, error)
}

type Sink interface {
	Append(ctx context.Context, readings ...model.Reading) error
}

type Store interface {
	Source
	Sink
	Close() error
}

// summarize computes per-field stats with the sample standard deviation, rounded to 4 places.
func summarize(values map[model.SensorKey][]float64) map[model.SensorKey]model.SensorStats {
	out := make(map[model.SensorKey]model.SensorStats, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		minV, maxV, sum := vals[0], vals[0], 0.0
		for _, v := range vals {
			sum += v
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}
		mean := sum / float64(len(vals))
		std := 0.0
		if len(vals) > 1 {
			ss := 0.0
			for _, v := range vals {
				ss += (v - mean) * (v - mean)
			}
			std = math.Sqrt(ss / float64(len(vals)-1))
		}
		out[key] = model.SensorStats{
			Mean:  round4(mean),
			Std:   round4(std),
			Min:   round4(minV),
			Max:   round4(maxV),
			Count: len(vals),
		}
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Means projects stats onto a snapshot of their means.
func Means(stats map[model.SensorKey]model.SensorStats) model.Snapshot {
	snap := make(model.Snapshot, len(stats))
	for k, st := range stats {
		snap[k] = st.Mean
	}
	return snap
}

func sortReadings(rows []model.Reading) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
}
