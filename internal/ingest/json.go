package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
)

var (
	timestampKeys = []string{"timestamp", "time", "ts", "_time"}
	equipmentKeys = []string{"equipment_id", "equipment", "measurement", "_measurement", "pump_id", "asset_id"}
	nestedKeys    = []string{"values", "sensors", "fields"}
)

func ParseJSONBytes(data []byte) (*normalize.RecordFields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

// ParseJSONMap splits a flat object into timestamp, equipment id and sensor values.
// Sensor values may also sit in a nested "values", "sensors" or "fields" object.
func ParseJSONMap(obj map[string]any) *normalize.RecordFields {
	fields := &normalize.RecordFields{Values: map[string]any{}}
	lower := make(map[string]any, len(obj))
	for key, val := range obj {
		lower[strings.ToLower(strings.TrimSpace(key))] = val
	}
	fields.Timestamp = firstString(lower, timestampKeys...)
	fields.EquipmentID = firstString(lower, equipmentKeys...)
	for key, val := range lower {
		if isReserved(key) {
			continue
		}
		fields.Values[key] = val
	}
	for _, key := range nestedKeys {
		nested, ok := lower[key].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range nested {
			fields.Values[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	return fields
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return ""
}

func isReserved(key string) bool {
	for _, group := range [][]string{timestampKeys, equipmentKeys, nestedKeys} {
		for _, k := range group {
			if k == key {
				return true
			}
		}
	}
	return false
}

// ReadingsFromJSON normalizes decoded objects into a series ordered by timestamp.
// Objects without a usable sensor value or timestamp are skipped.
func ReadingsFromJSON(objs []map[string]any, opts normalize.Options) []model.Reading {
	out := make([]model.Reading, 0, len(objs))
	for _, obj := range objs {
		r, err := normalize.Normalize(*ParseJSONMap(obj), opts)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
