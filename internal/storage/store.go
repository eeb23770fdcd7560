package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pumpguard/internal/config"
	"pumpguard/internal/model"
	"pumpguard/internal/rules"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveAlert(ctx context.Context, alert model.Alert) error
	SaveAssessment(ctx context.Context, a model.Assessment) error
	SaveCounters(ctx context.Context, equipmentID string, counts map[model.SensorKey]rules.Count) error
	LoadCounters(ctx context.Context, equipmentID string) (map[model.SensorKey]rules.Count, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// dialect holds the statements that differ between drivers.
type dialect struct {
	schema         []string
	insertAlert    string
	insertAssess   string
	deleteCounters string
	insertCounter  string
	selectCounters string
}

type baseStore struct {
	db *sql.DB
	d  dialect
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) Init(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	for _, stmt := range b.d.schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (b *baseStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if b.db == nil {
		return nil
	}
	_, err := b.db.ExecContext(ctx, b.d.insertAlert,
		alert.ID,
		alert.Timestamp.UTC(),
		alert.EquipmentID,
		string(alert.Severity),
		alert.AlertType,
		string(alert.Culprit),
		alert.Message,
		encodeJSON(alert.Triggers),
		nullFloat(alert.HIPump),
		nullFloat(alert.RULDays),
	)
	return err
}

func (b *baseStore) SaveAssessment(ctx context.Context, a model.Assessment) error {
	if b.db == nil {
		return nil
	}
	_, err := b.db.ExecContext(ctx, b.d.insertAssess,
		a.Timestamp.UTC(),
		a.EquipmentID,
		string(a.Health.Condition),
		nullFloat(a.Health.HIPump),
		string(a.Fault.Severity),
		string(a.Fault.CulpritKey),
		nullFloat(a.RUL.EquipmentRULDays),
		string(a.RUL.Mode),
		encodeJSON(a),
	)
	return err
}

// SaveCounters replaces the stored counters of one equipment.
func (b *baseStore) SaveCounters(ctx context.Context, equipmentID string, counts map[model.SensorKey]rules.Count) error {
	if b.db == nil || equipmentID == "" {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, b.d.deleteCounters, equipmentID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if len(counts) > 0 {
		stmt, err := tx.PrepareContext(ctx, b.d.insertCounter)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		defer stmt.Close()
		now := nowUTC()
		for key, c := range counts {
			if _, err := stmt.ExecContext(ctx, equipmentID, string(key), c.Warning, c.Failure, now); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}

func (b *baseStore) LoadCounters(ctx context.Context, equipmentID string) (map[model.SensorKey]rules.Count, error) {
	out := map[model.SensorKey]rules.Count{}
	if b.db == nil {
		return out, nil
	}
	rows, err := b.db.QueryContext(ctx, b.d.selectCounters, equipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sensor string
			c      rules.Count
		)
		if err := rows.Scan(&sensor, &c.Warning, &c.Failure); err != nil {
			return nil, err
		}
		out[model.SensorKey(sensor)] = c
	}
	return out, rows.Err()
}

func openDB(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
