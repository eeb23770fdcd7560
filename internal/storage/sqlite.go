package storage

import (
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

var sqliteDialect = dialect{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			equipment_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			culprit TEXT NOT NULL,
			message TEXT NOT NULL,
			triggers_json TEXT NOT NULL,
			hi_pump REAL,
			rul_days REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE TABLE IF NOT EXISTS assessments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			equipment_id TEXT NOT NULL,
			hi_condition TEXT NOT NULL,
			hi_pump REAL,
			severity TEXT NOT NULL,
			culprit TEXT NOT NULL,
			rul_days REAL,
			rul_mode TEXT NOT NULL,
			payload_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_equipment_ts ON assessments(equipment_id, ts)`,
		`CREATE TABLE IF NOT EXISTS rule_counters (
			equipment_id TEXT NOT NULL,
			sensor TEXT NOT NULL,
			warning_count INTEGER NOT NULL,
			failure_count INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (equipment_id, sensor)
		)`,
	},
	insertAlert: `INSERT INTO alerts (id, ts, equipment_id, severity, alert_type, culprit, message, triggers_json, hi_pump, rul_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	insertAssess: `INSERT INTO assessments (ts, equipment_id, hi_condition, hi_pump, severity, culprit, rul_days, rul_mode, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	deleteCounters: `DELETE FROM rule_counters WHERE equipment_id = ?`,
	insertCounter: `INSERT INTO rule_counters (equipment_id, sensor, warning_count, failure_count, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
	selectCounters: `SELECT sensor, warning_count, failure_count FROM rule_counters WHERE equipment_id = ?`,
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:pumpguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db, d: sqliteDialect}}, nil
}
