// Package health computes subsystem damage indices, the composite pump health index and the
// per-component health scores.
package health

import (
	"pumpguard/internal/baseline"
	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
)

const (
	NormalFloor  = 70.0
	WarningFloor = 40.0
)

type subsystem struct {
	nominals map[model.SensorKey]float64
	weight   float64
	hi       **float64
	damage   **float64
}

// ComputeHealthIndex scores a snapshot against the subsystem nominals. A subsystem with no
// computable sensor is nil and its weight is redistributed over the others.
func ComputeHealthIndex(snap model.Snapshot, cfg *baseline.Config) model.HealthIndexResult {
	var res model.HealthIndexResult
	if cfg == nil {
		res.Condition = ConditionFor(nil)
		return res
	}
	w := cfg.Subsystems.Weights
	subsystems := []subsystem{
		{cfg.Subsystems.Mechanical, w.Mechanical, &res.HIMechanical, &res.DamageMechanicalPct},
		{cfg.Subsystems.Hydraulic, w.Hydraulic, &res.HIHydraulic, &res.DamageHydraulicPct},
		{cfg.Subsystems.Electrical, w.Electrical, &res.HIElectrical, &res.DamageElectricalPct},
	}

	weighted, total := 0.0, 0.0
	for _, s := range subsystems {
		di := damageIndex(snap, s.nominals)
		if di == nil {
			continue
		}
		pct := *di * 100
		hi := normalize.Clamp(100-pct, 0, 100)
		*s.damage = model.Float(pct)
		*s.hi = model.Float(hi)
		if s.weight > 0 {
			weighted += hi * s.weight
			total += s.weight
		}
	}
	if total > 0 {
		res.HIPump = model.Float(normalize.Clamp(weighted/total, 0, 100))
	}
	res.Condition = ConditionFor(res.HIPump)
	return res
}

func damageIndex(snap model.Snapshot, nominals map[model.SensorKey]float64) *float64 {
	errs := make([]*float64, 0, len(nominals))
	for _, key := range model.SensorKeys {
		nom, ok := nominals[key]
		if !ok {
			continue
		}
		errs = append(errs, normalize.RelativeAbsoluteError(snap.Value(key), nom))
	}
	return normalize.Average(errs)
}

func ConditionFor(hi *float64) model.Condition {
	switch {
	case hi == nil:
		return model.ConditionUnknown
	case *hi >= NormalFloor:
		return model.ConditionNormal
	case *hi >= WarningFloor:
		return model.ConditionWarning
	default:
		return model.ConditionCritical
	}
}
