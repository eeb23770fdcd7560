package storage

import (
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

var postgresDialect = dialect{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			equipment_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			culprit TEXT NOT NULL,
			message TEXT NOT NULL,
			triggers_json JSONB NOT NULL,
			hi_pump DOUBLE PRECISION,
			rul_days DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE TABLE IF NOT EXISTS assessments (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			equipment_id TEXT NOT NULL,
			hi_condition TEXT NOT NULL,
			hi_pump DOUBLE PRECISION,
			severity TEXT NOT NULL,
			culprit TEXT NOT NULL,
			rul_days DOUBLE PRECISION,
			rul_mode TEXT NOT NULL,
			payload_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_equipment_ts ON assessments(equipment_id, ts)`,
		`CREATE TABLE IF NOT EXISTS rule_counters (
			equipment_id TEXT NOT NULL,
			sensor TEXT NOT NULL,
			warning_count INTEGER NOT NULL,
			failure_count INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (equipment_id, sensor)
		)`,
	},
	insertAlert: `INSERT INTO alerts (id, ts, equipment_id, severity, alert_type, culprit, message, triggers_json, hi_pump, rul_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	insertAssess: `INSERT INTO assessments (ts, equipment_id, hi_condition, hi_pump, severity, culprit, rul_days, rul_mode, payload_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	deleteCounters: `DELETE FROM rule_counters WHERE equipment_id = $1`,
	insertCounter: `INSERT INTO rule_counters (equipment_id, sensor, warning_count, failure_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
	selectCounters: `SELECT sensor, warning_count, failure_count FROM rule_counters WHERE equipment_id = $1`,
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/pumpguard?sslmode=disable"
	}
	db, err := openDB("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, d: postgresDialect}}, nil
}
