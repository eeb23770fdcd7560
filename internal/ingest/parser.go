package ingest

import (
	"encoding/csv"
	"errors"
	"strings"
	"sync"

	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
)

var errNoHeader = errors.New("csv line before header")

// Parser decodes JSON object lines and CSV lines. CSV input needs a header line first;
// the header is remembered for the lines that follow.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

// ParseLine returns nil fields for blank and header lines.
func (p *Parser) ParseLine(line string) (*normalize.RecordFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		fields, err := ParseJSONBytes([]byte(trim))
		if err != nil {
			return nil, err
		}
		fields.Raw = line
		return fields, nil
	}
	fields, err := p.csv.Parse(trim)
	if err != nil || fields == nil {
		return nil, err
	}
	fields.Raw = line
	return fields, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

type CSVParser struct {
	mu     sync.Mutex
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(line string) (*normalize.RecordFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	if p.header == nil {
		return nil, errNoHeader
	}
	fields := &normalize.RecordFields{Values: map[string]any{}}
	for i, name := range p.header {
		if i >= len(record) {
			break
		}
		assignField(fields, name, record[i])
	}
	return fields, nil
}

// looksLikeHeader is true when any column names a timestamp, an equipment id or a sensor.
func looksLikeHeader(record []string) bool {
	for _, v := range record {
		v = strings.ToLower(strings.TrimSpace(v))
		if isReserved(v) {
			return true
		}
		if _, ok := model.ParseSensorKey(v); ok {
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func assignField(fields *normalize.RecordFields, name string, value string) {
	value = strings.TrimSpace(value)
	for _, k := range timestampKeys {
		if name == k {
			fields.Timestamp = value
			return
		}
	}
	for _, k := range equipmentKeys {
		if name == k {
			fields.EquipmentID = value
			return
		}
	}
	if value != "" {
		fields.Values[name] = value
	}
}
