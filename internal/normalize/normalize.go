package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pumpguard/internal/model"
)

// RecordFields is one decoded telemetry record before typing.
type RecordFields struct {
	Timestamp   string
	EquipmentID string
	Values      map[string]any
	Raw         string
}

type Options struct {
	Timezone           string
	DefaultEquipmentID string
	Source             string
}

var ErrNoSensorValues = errors.New("record has no known sensor values")

// Normalize turns decoded fields into a Reading. Unknown fields and non-numeric values are dropped;
// a record with no usable sensor value is rejected.
func Normalize(fields RecordFields, opts Options) (model.Reading, error) {
	equipment := strings.TrimSpace(fields.EquipmentID)
	if equipment == "" {
		equipment = opts.DefaultEquipmentID
	}

	loc := time.UTC
	if opts.Timezone != "" {
		if l, err := time.LoadLocation(opts.Timezone); err == nil {
			loc = l
		}
	}

	ts := time.Now().UTC()
	if fields.Timestamp != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, loc)
		if err != nil {
			return model.Reading{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = parsed.UTC()
	}

	values := Snapshot(fields.Values)
	if len(values) == 0 {
		return model.Reading{}, ErrNoSensorValues
	}

	return model.Reading{
		EquipmentID: equipment,
		Timestamp:   ts,
		Values:      values,
		Source:      opts.Source,
		ML:          MLLabels(fields.Values),
	}, nil
}

// MLLabels extracts the upstream classifier fields health_status, fault_type and
// health_status_code, or nil when none is present. Unrecognised statuses read as normal.
func MLLabels(values map[string]any) *model.MLStatus {
	status, hasStatus := values["health_status"]
	fault, hasFault := values["fault_type"]
	code := ToFloat(values["health_status_code"])
	if !hasStatus && !hasFault && code == nil {
		return nil
	}
	ml := &model.MLStatus{Status: model.SeverityNormal, FaultType: "none", HealthStatusCode: code}
	if hasStatus && status != nil {
		switch model.Severity(strings.ToLower(strings.TrimSpace(fmt.Sprint(status)))) {
		case model.SeverityWarning:
			ml.Status = model.SeverityWarning
		case model.SeverityFailure:
			ml.Status = model.SeverityFailure
		}
	}
	if hasFault && fault != nil {
		if f := strings.TrimSpace(fmt.Sprint(fault)); f != "" {
			ml.FaultType = f
		}
	}
	return ml
}

// Snapshot keeps the known sensor fields of values that convert to a number.
func Snapshot(values map[string]any) model.Snapshot {
	out := make(model.Snapshot, len(values))
	for name, raw := range values {
		key, ok := model.ParseSensorKey(name)
		if !ok {
			continue
		}
		if f := ToFloat(raw); f != nil {
			out[key] = *f
		}
	}
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
