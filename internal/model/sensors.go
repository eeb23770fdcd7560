package model

import (
	"sort"
	"strings"
)

type SensorKey string

const (
	SoundIntensity         SensorKey = "sound_intensity_db"
	OilTemp                SensorKey = "oil_temp_c"
	BearingTemp            SensorKey = "bearing_temp_c"
	ShaftDisplacement      SensorKey = "shaft_displacement_um"
	Accelerometer          SensorKey = "accelerometer_g"
	VibrationVelocity      SensorKey = "vibration_velocity_mm_s"
	VibrationVelocityAlias SensorKey = "vibration_velocity"
	CasingTemp             SensorKey = "casing_temp_c"
	InletFluidTemp         SensorKey = "inlet_fluid_temp_c"
	OutletFluidTemp        SensorKey = "outlet_fluid_temp_c"
	InletPressure          SensorKey = "inlet_pressure_bar"
	OutletPressure         SensorKey = "outlet_pressure_bar"
	FlowRate               SensorKey = "flow_rate_m3_h"
	MotorCurrent           SensorKey = "motor_current_a"
	SupplyVoltage          SensorKey = "supply_voltage_v"
	PowerConsumption       SensorKey = "power_consumption_kw"

	// Fed by the physics simulator on the same stream.
	SimRULDays SensorKey = "sim_rul_days"
	CSVCycleID SensorKey = "csv_cycle_id"
)

// SensorKeys lists the physical channels in their canonical order.
var SensorKeys = []SensorKey{
	Accelerometer,
	VibrationVelocity,
	ShaftDisplacement,
	BearingTemp,
	OilTemp,
	CasingTemp,
	InletFluidTemp,
	OutletFluidTemp,
	InletPressure,
	OutletPressure,
	FlowRate,
	MotorCurrent,
	SupplyVoltage,
	PowerConsumption,
	SoundIntensity,
}

var knownKeys = func() map[SensorKey]struct{} {
	m := make(map[SensorKey]struct{}, len(SensorKeys)+3)
	for _, k := range SensorKeys {
		m[k] = struct{}{}
	}
	m[VibrationVelocityAlias] = struct{}{}
	m[SimRULDays] = struct{}{}
	m[CSVCycleID] = struct{}{}
	return m
}()

// ParseSensorKey accepts a field name case-insensitively and reports whether it is a known channel.
func ParseSensorKey(name string) (SensorKey, bool) {
	k := SensorKey(strings.ToLower(strings.TrimSpace(name)))
	_, ok := knownKeys[k]
	return k, ok
}

// Snapshot maps sensor keys to readings. A missing key is a missing reading.
type Snapshot map[SensorKey]float64

// Lookup returns the reading stored under exactly k.
func (s Snapshot) Lookup(k SensorKey) *float64 {
	if s == nil {
		return nil
	}
	v, ok := s[k]
	if !ok {
		return nil
	}
	return &v
}

// Value is Lookup with the vibration velocity alias resolved in both directions.
func (s Snapshot) Value(k SensorKey) *float64 {
	if v := s.Lookup(k); v != nil {
		return v
	}
	switch k {
	case VibrationVelocity:
		return s.Lookup(VibrationVelocityAlias)
	case VibrationVelocityAlias:
		return s.Lookup(VibrationVelocity)
	}
	return nil
}

// WithAliases returns a copy where both vibration velocity keys are populated if either is.
func (s Snapshot) WithAliases() Snapshot {
	out := make(Snapshot, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	if v, ok := out[VibrationVelocity]; ok {
		if _, has := out[VibrationVelocityAlias]; !has {
			out[VibrationVelocityAlias] = v
		}
	}
	if v, ok := out[VibrationVelocityAlias]; ok {
		if _, has := out[VibrationVelocity]; !has {
			out[VibrationVelocity] = v
		}
	}
	return out
}

func (s Snapshot) Keys() []SensorKey {
	keys := make([]SensorKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
