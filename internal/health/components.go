package health

import (
	"pumpguard/internal/baseline"
	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
)

type termKind int

const (
	// value divided by a fixed scale
	termScaled termKind = iota
	// relative absolute error against the subsystem nominal
	termDeviation
	// value divided by the subsystem nominal
	termNominalRatio
)

type term struct {
	key   model.SensorKey
	kind  termKind
	scale float64
}

func scaled(k model.SensorKey, scale float64) term { return term{key: k, kind: termScaled, scale: scale} }
func dev(k model.SensorKey) term { return term{key: k, kind: termDeviation} }
func ratio(k model.SensorKey) term { return term{key: k, kind: termNominalRatio} }

type Component struct {
	Name  string
	terms []term
}

// Sensors lists the channels the component score depends on.
func (c Component) Sensors() []model.SensorKey {
	out := make([]model.SensorKey, 0, len(c.terms))
	for _, t := range c.terms {
		out = append(out, t.key)
	}
	return out
}

var (
	acc   = scaled(model.Accelerometer, 2)
	vel   = scaled(model.VibrationVelocity, 4.5)
	disp  = scaled(model.ShaftDisplacement, 50)
	tBrg  = scaled(model.BearingTemp, 80)
	tOil  = scaled(model.OilTemp, 70)
	sound = scaled(model.SoundIntensity, 85)
	tIn   = scaled(model.InletFluidTemp, 60)
	tOut  = scaled(model.OutletFluidTemp, 60)
)

// Components is the fixed table of ten scored components, in display order.
var Components = []Component{
	{Name: "Casing", terms: []term{acc, vel, sound, dev(model.OutletPressure), tOut}},
	{Name: "Bearing", terms: []term{acc, vel, disp, tBrg, tOil, sound, dev(model.PowerConsumption)}},
	{Name: "Pump Shaft", terms: []term{disp, vel, sound, dev(model.PowerConsumption)}},
	{Name: "Lubrication System", terms: []term{tOil, tBrg, sound, ratio(model.PowerConsumption)}},
	{Name: "Motor", terms: []term{dev(model.MotorCurrent), dev(model.SupplyVoltage), dev(model.PowerConsumption), sound}},
	{Name: "Impeller", terms: []term{acc, vel, dev(model.OutletPressure), dev(model.FlowRate), sound}},
	{Name: "Mechanical Seal", terms: []term{tBrg, tOil, sound, dev(model.InletPressure)}},
	{Name: "Suction Pipe Side", terms: []term{dev(model.InletPressure), dev(model.FlowRate), tIn, sound}},
	{Name: "Discharge Pipe Side", terms: []term{dev(model.OutletPressure), dev(model.FlowRate), tOut, sound}},
	{Name: "Coupling / Alignment", terms: []term{disp, vel, sound, dev(model.PowerConsumption)}},
}

// ComputeComponentHealth scores every component from window means. A component is nil as soon
// as any one of its sensors is missing or cannot be normalized.
func ComputeComponentHealth(means model.Snapshot, cfg *baseline.Config) model.ComponentHealth {
	out := make(model.ComponentHealth, len(Components))
	for _, c := range Components {
		out[c.Name] = c.score(means, cfg)
	}
	return out
}

func (c Component) score(means model.Snapshot, cfg *baseline.Config) *float64 {
	sum := 0.0
	for _, t := range c.terms {
		v := t.value(means, cfg)
		if v == nil {
			return nil
		}
		sum += *v
	}
	hi := 100 * (1 - sum/float64(len(c.terms)))
	return model.Float(normalize.Clamp(hi, 0, 100))
}

func (t term) value(means model.Snapshot, cfg *baseline.Config) *float64 {
	x := means.Value(t.key)
	if x == nil {
		return nil
	}
	switch t.kind {
	case termScaled:
		return model.Float(*x / t.scale)
	case termDeviation:
		nom, ok := cfg.Nominal(t.key)
		if !ok {
			return nil
		}
		return normalize.RelativeAbsoluteError(x, nom)
	case termNominalRatio:
		nom, ok := cfg.Nominal(t.key)
		if !ok || nom <= 0 {
			return nil
		}
		return model.Float(*x / nom)
	}
	return nil
}
