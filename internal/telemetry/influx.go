package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
)

type InfluxOptions struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration
}

// Influx stores each equipment as its own measurement, one field per sensor.
type Influx struct {
	client influxdb2.Client
	query  api.QueryAPI
	write  api.WriteAPIBlocking
	bucket string
	logger *slog.Logger
}

func NewInflux(opts InfluxOptions, logger *slog.Logger) (*Influx, error) {
	if opts.URL == "" || opts.Org == "" || opts.Bucket == "" {
		return nil, errors.New("influx url, org and bucket are required")
	}
	options := influxdb2.DefaultOptions()
	if opts.Timeout > 0 {
		options.SetHTTPRequestTimeout(uint(opts.Timeout.Seconds()))
	}
	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token, options)
	return &Influx{
		client: client,
		query:  client.QueryAPI(opts.Org),
		write:  client.WriteAPIBlocking(opts.Org, opts.Bucket),
		bucket: opts.Bucket,
		logger: logger,
	}, nil
}

// Ping reports whether the server answers.
func (s *Influx) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx ping: %w", err)
	}
	if !ok {
		return errors.New("influx ping: server not ready")
	}
	return nil
}

func (s *Influx) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

func latestQuery(bucket, measurement string) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -7d)
		  |> filter(fn: (r) => r["_measurement"] == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> group()
		  |> sort(columns: ["_time"], desc: true)
		  |> limit(n: 1)
	`, bucket, measurement)
}

func recentQuery(bucket, measurement string, window time.Duration, limit int) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -%ds)
		  |> filter(fn: (r) => r["_measurement"] == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> group()
		  |> sort(columns: ["_time"], desc: true)
		  |> limit(n: %d)
		  |> sort(columns: ["_time"], desc: false)
	`, bucket, int64(math.Ceil(window.Seconds())), measurement, limit)
}

func rangeQuery(bucket, measurement string, start, stop time.Time, limit int) string {
	q := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: %s, stop: %s)
		  |> filter(fn: (r) => r["_measurement"] == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> group()
		  |> sort(columns: ["_time"], desc: false)
	`, bucket, start.UTC().Format(time.RFC3339Nano), stop.UTC().Format(time.RFC3339Nano), measurement)
	if limit > 0 {
		q += fmt.Sprintf("  |> limit(n: %d)\n", limit)
	}
	return q
}

func statsQuery(bucket, measurement string, window time.Duration) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -%ds)
		  |> filter(fn: (r) => r["_measurement"] == "%s")
		  |> filter(fn: (r) => r["_field"] != "health_status" and r["_field"] != "fault_type" and r["_field"] != "health_status_code")
	`, bucket, int64(math.Ceil(window.Seconds())), measurement)
}

func measurementsQuery(bucket string) string {
	return fmt.Sprintf(`
		import "influxdata/influxdb/schema"
		schema.measurements(bucket: "%s")
	`, bucket)
}

func (s *Influx) Latest(ctx context.Context, equipmentID string) (model.Reading, error) {
	if err := ValidateEquipmentID(equipmentID); err != nil {
		return model.Reading{}, err
	}
	rows, err := s.pivotRows(ctx, equipmentID, latestQuery(s.bucket, equipmentID))
	if err != nil {
		return model.Reading{}, err
	}
	if len(rows) == 0 {
		return model.Reading{}, ErrNoData
	}
	return newestReading(rows), nil
}

// newestReading picks the row with the greatest timestamp; rows may arrive in one table per tag set.
func newestReading(rows []model.Reading) model.Reading {
	newest := rows[0]
	for _, r := range rows[1:] {
		if r.Timestamp.After(newest.Timestamp) {
			newest = r
		}
	}
	return newest
}

func (s *Influx) Recent(ctx context.Context, equipmentID string, window time.Duration, limit int) ([]model.Reading, error) {
	if err := ValidateEquipmentID(equipmentID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 240
	}
	rows, err := s.pivotRows(ctx, equipmentID, recentQuery(s.bucket, equipmentID, window, limit))
	if err != nil {
		return nil, err
	}
	sortReadings(rows)
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

func (s *Influx) Range(ctx context.Context, equipmentID string, start, stop time.Time, limit int) ([]model.Reading, error) {
	if err := ValidateEquipmentID(equipmentID); err != nil {
		return nil, err
	}
	if !stop.After(start) {
		return []model.Reading{}, nil
	}
	rows, err := s.pivotRows(ctx, equipmentID, rangeQuery(s.bucket, equipmentID, start, stop, limit))
	if err != nil {
		return nil, err
	}
	sortReadings(rows)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Influx) Stats(ctx context.Context, equipmentID string, window time.Duration) (map[model.SensorKey]model.SensorStats, error) {
	if err := ValidateEquipmentID(equipmentID); err != nil {
		return nil, err
	}
	result, err := s.query.Query(ctx, statsQuery(s.bucket, equipmentID, window))
	if err != nil {
		return nil, fmt.Errorf("influx stats query: %w", err)
	}
	defer result.Close()

	values := map[model.SensorKey][]float64{}
	for result.Next() {
		record := result.Record()
		key, ok := model.ParseSensorKey(record.Field())
		if !ok {
			continue
		}
		if v := normalize.ToFloat(record.Value()); v != nil {
			values[key] = append(values[key], *v)
		}
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx stats read: %w", result.Err())
	}
	return summarize(values), nil
}

func (s *Influx) Equipment(ctx context.Context) ([]string, error) {
	result, err := s.query.Query(ctx, measurementsQuery(s.bucket))
	if err != nil {
		return nil, fmt.Errorf("influx measurements query: %w", err)
	}
	defer result.Close()
	var ids []string
	for result.Next() {
		if name, ok := result.Record().Value().(string); ok && ValidateEquipmentID(name) == nil {
			ids = append(ids, name)
		}
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx measurements read: %w", result.Err())
	}
	return ids, nil
}

func (s *Influx) Append(ctx context.Context, readings ...model.Reading) error {
	points := make([]*write.Point, 0, len(readings))
	for _, r := range readings {
		if err := ValidateEquipmentID(r.EquipmentID); err != nil {
			return err
		}
		points = append(points, readingPoint(r))
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.write.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func readingPoint(r model.Reading) *write.Point {
	fields := make(map[string]interface{}, len(r.Values))
	for k, v := range r.Values {
		fields[string(k)] = v
	}
	if r.ML != nil {
		fields["health_status"] = string(r.ML.Status)
		fields["fault_type"] = r.ML.FaultType
		if r.ML.HealthStatusCode != nil {
			fields["health_status_code"] = *r.ML.HealthStatusCode
		}
	}
	tags := map[string]string{}
	if r.Source != "" {
		tags["source"] = r.Source
	}
	return influxdb2.NewPoint(r.EquipmentID, tags, fields, r.Timestamp)
}

func (s *Influx) pivotRows(ctx context.Context, equipmentID, flux string) ([]model.Reading, error) {
	result, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer result.Close()

	var rows []model.Reading
	for result.Next() {
		record := result.Record()
		rows = append(rows, model.Reading{
			EquipmentID: equipmentID,
			Timestamp:   record.Time().UTC(),
			Values:      pivotValues(record.Values()),
			Source:      "influx",
			ML:          normalize.MLLabels(record.Values()),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx read: %w", result.Err())
	}
	if s.logger != nil {
		s.logger.Debug("influx rows", "equipment_id", equipmentID, "rows", len(rows))
	}
	return rows, nil
}

// pivotValues keeps the known sensor columns of a pivoted record.
func pivotValues(values map[string]interface{}) model.Snapshot {
	snap := model.Snapshot{}
	for name, raw := range values {
		if strings.HasPrefix(name, "_") {
			continue
		}
		key, ok := model.ParseSensorKey(name)
		if !ok {
			continue
		}
		if v := normalize.ToFloat(raw); v != nil {
			snap[key] = *v
		}
	}
	return snap
}
