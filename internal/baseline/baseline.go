// Package baseline holds the fixed nominal values, spreads and thresholds the inference engine
// compares readings against. It is loaded once with the service config and never mutated.
package baseline

import (
	"errors"
	"fmt"

	"pumpguard/internal/model"
)

type Config struct {
	Stats      map[model.SensorKey]Stat          `json:"stats" yaml:"stats"`
	Subsystems Subsystems                        `json:"subsystems" yaml:"subsystems"`
	Limits     map[model.SensorKey]LimitRule     `json:"limits" yaml:"limits"`
	Deviations map[model.SensorKey]DeviationRule `json:"deviations" yaml:"deviations"`
	Rules      RuleParams                        `json:"rules" yaml:"rules"`
	RUL        RULParams                         `json:"rul" yaml:"rul"`
}

type Stat struct {
	Mean float64 `json:"mean" yaml:"mean"`
	Std  float64 `json:"std" yaml:"std"`
}

// Subsystems carries the nominal value of each sensor used by the damage index of that subsystem.
type Subsystems struct {
	Mechanical map[model.SensorKey]float64 `json:"mechanical" yaml:"mechanical"`
	Hydraulic  map[model.SensorKey]float64 `json:"hydraulic" yaml:"hydraulic"`
	Electrical map[model.SensorKey]float64 `json:"electrical" yaml:"electrical"`
	Weights    Weights                     `json:"weights" yaml:"weights"`
}

type Weights struct {
	Mechanical float64 `json:"mechanical" yaml:"mechanical"`
	Hydraulic  float64 `json:"hydraulic" yaml:"hydraulic"`
	Electrical float64 `json:"electrical" yaml:"electrical"`
}

type LimitRule struct {
	WarnRatio float64 `json:"warn_ratio" yaml:"warn_ratio"`
	Limit     float64 `json:"limit" yaml:"limit"`
	Label     string  `json:"label" yaml:"label"`
}

type DeviationRule struct {
	WarnDev float64 `json:"warn_dev" yaml:"warn_dev"`
	FailDev float64 `json:"fail_dev" yaml:"fail_dev"`
	Nominal float64 `json:"nominal" yaml:"nominal"`
	Label   string  `json:"label" yaml:"label"`
}

type RuleParams struct {
	ZWarn       float64 `json:"z_warn" yaml:"z_warn"`
	ZCrit       float64 `json:"z_crit" yaml:"z_crit"`
	Persistence int     `json:"persistence" yaml:"persistence"`
	MaxTriggers int     `json:"max_triggers" yaml:"max_triggers"`
}

type RULParams struct {
	WindowHours      int               `json:"window_hours" yaml:"window_hours"`
	MaxSamples       int               `json:"max_samples" yaml:"max_samples"`
	Alpha            float64           `json:"alpha" yaml:"alpha"`
	MinPoints        int               `json:"min_points" yaml:"min_points"`
	ActionBufferDays float64           `json:"action_buffer_days" yaml:"action_buffer_days"`
	MinDays          float64           `json:"min_days" yaml:"min_days"`
	MaxDays          float64           `json:"max_days" yaml:"max_days"`
	AccelerationGain float64           `json:"acceleration_gain" yaml:"acceleration_gain"`
	MinAcceleration  float64           `json:"min_acceleration" yaml:"min_acceleration"`
	MaxAcceleration  float64           `json:"max_acceleration" yaml:"max_acceleration"`
	CriticalWeight   float64           `json:"critical_weight" yaml:"critical_weight"`
	CriticalSensors  []model.SensorKey `json:"critical_sensors" yaml:"critical_sensors"`
	CandidateSensors []model.SensorKey `json:"candidate_sensors" yaml:"candidate_sensors"`
}

// Stat returns the mean/std pair for k, resolving the vibration alias.
func (c *Config) Stat(k model.SensorKey) (Stat, bool) {
	if c == nil {
		return Stat{}, false
	}
	if st, ok := c.Stats[k]; ok {
		return st, true
	}
	switch k {
	case model.VibrationVelocityAlias:
		st, ok := c.Stats[model.VibrationVelocity]
		return st, ok
	case model.VibrationVelocity:
		st, ok := c.Stats[model.VibrationVelocityAlias]
		return st, ok
	}
	return Stat{}, false
}

// Nominal returns the subsystem nominal for k from whichever subsystem lists it.
func (c *Config) Nominal(k model.SensorKey) (float64, bool) {
	if c == nil {
		return 0, false
	}
	if k == model.VibrationVelocityAlias {
		k = model.VibrationVelocity
	}
	for _, m := range []map[model.SensorKey]float64{c.Subsystems.Mechanical, c.Subsystems.Hydraulic, c.Subsystems.Electrical} {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return 0, false
}

// ApplyDefaults fills zero tuning values so a partially written config section still works.
func (c *Config) ApplyDefaults() {
	d := Default()
	c.canonicalize()
	if len(c.Stats) == 0 {
		c.Stats = d.Stats
	}
	if len(c.Subsystems.Mechanical) == 0 {
		c.Subsystems.Mechanical = d.Subsystems.Mechanical
	}
	if len(c.Subsystems.Hydraulic) == 0 {
		c.Subsystems.Hydraulic = d.Subsystems.Hydraulic
	}
	if len(c.Subsystems.Electrical) == 0 {
		c.Subsystems.Electrical = d.Subsystems.Electrical
	}
	if c.Subsystems.Weights == (Weights{}) {
		c.Subsystems.Weights = d.Subsystems.Weights
	}
	if len(c.Limits) == 0 {
		c.Limits = d.Limits
	}
	if len(c.Deviations) == 0 {
		c.Deviations = d.Deviations
	}
	if c.Rules.ZWarn <= 0 {
		c.Rules.ZWarn = d.Rules.ZWarn
	}
	if c.Rules.ZCrit <= 0 {
		c.Rules.ZCrit = d.Rules.ZCrit
	}
	if c.Rules.Persistence <= 0 {
		c.Rules.Persistence = d.Rules.Persistence
	}
	if c.Rules.MaxTriggers <= 0 {
		c.Rules.MaxTriggers = d.Rules.MaxTriggers
	}
	r := &c.RUL
	if r.WindowHours <= 0 {
		r.WindowHours = d.RUL.WindowHours
	}
	if r.MaxSamples <= 0 {
		r.MaxSamples = d.RUL.MaxSamples
	}
	if r.Alpha <= 0 || r.Alpha > 1 {
		r.Alpha = d.RUL.Alpha
	}
	if r.MinPoints <= 0 {
		r.MinPoints = d.RUL.MinPoints
	}
	if r.ActionBufferDays <= 0 {
		r.ActionBufferDays = d.RUL.ActionBufferDays
	}
	if r.MinDays <= 0 {
		r.MinDays = d.RUL.MinDays
	}
	if r.MaxDays <= 0 {
		r.MaxDays = d.RUL.MaxDays
	}
	if r.AccelerationGain <= 0 {
		r.AccelerationGain = d.RUL.AccelerationGain
	}
	if r.MinAcceleration <= 0 {
		r.MinAcceleration = d.RUL.MinAcceleration
	}
	if r.MaxAcceleration <= 0 {
		r.MaxAcceleration = d.RUL.MaxAcceleration
	}
	if r.CriticalWeight <= 0 {
		r.CriticalWeight = d.RUL.CriticalWeight
	}
	if len(r.CriticalSensors) == 0 {
		r.CriticalSensors = d.RUL.CriticalSensors
	}
	if len(r.CandidateSensors) == 0 {
		r.CandidateSensors = d.RUL.CandidateSensors
	}
}

// canonicalize moves entries keyed by the vibration alias to the canonical key. An explicit
// canonical entry wins over the alias.
func (c *Config) canonicalize() {
	c.Stats = canonicalKeys(c.Stats)
	c.Subsystems.Mechanical = canonicalKeys(c.Subsystems.Mechanical)
	c.Subsystems.Hydraulic = canonicalKeys(c.Subsystems.Hydraulic)
	c.Subsystems.Electrical = canonicalKeys(c.Subsystems.Electrical)
	c.Limits = canonicalKeys(c.Limits)
	c.Deviations = canonicalKeys(c.Deviations)
}

func canonicalKeys[V any](m map[model.SensorKey]V) map[model.SensorKey]V {
	v, ok := m[model.VibrationVelocityAlias]
	if !ok {
		return m
	}
	delete(m, model.VibrationVelocityAlias)
	if _, exists := m[model.VibrationVelocity]; !exists {
		m[model.VibrationVelocity] = v
	}
	return m
}

// Validate rejects threshold combinations that make the rule engine meaningless. Per-sensor
// entries with a non-positive std or nominal are allowed and skipped at evaluation time.
func (c *Config) Validate() error {
	if c.Rules.ZWarn >= c.Rules.ZCrit {
		return fmt.Errorf("baseline.rules.z_warn (%v) must be below z_crit (%v)", c.Rules.ZWarn, c.Rules.ZCrit)
	}
	if c.Rules.Persistence < 1 {
		return errors.New("baseline.rules.persistence must be >= 1")
	}
	if c.RUL.MinDays > c.RUL.MaxDays {
		return errors.New("baseline.rul.min_days must not exceed max_days")
	}
	if c.RUL.MinAcceleration > c.RUL.MaxAcceleration {
		return errors.New("baseline.rul.min_acceleration must not exceed max_acceleration")
	}
	w := c.Subsystems.Weights
	if w.Mechanical < 0 || w.Hydraulic < 0 || w.Electrical < 0 {
		return errors.New("baseline.subsystems.weights must be non-negative")
	}
	return nil
}
