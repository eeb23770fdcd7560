// Package rul estimates remaining useful life either by scaling a simulator-supplied lifetime with
// the observed drift of critical sensors, or by extrapolating each sensor's trend to its limits.
package rul

import (
	"math"
	"strings"

	"pumpguard/internal/baseline"
	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
	"pumpguard/internal/trend"
)

type Direction int

const (
	High Direction = iota
	Low
)

const flatRate = 1e-9

// Estimate picks hybrid mode when snap carries a simulated lifetime, trend mode otherwise.
// series is the recent window, oldest first; an empty series yields a best-effort result.
func Estimate(snap model.Snapshot, series []model.Reading, cfg *baseline.Config) model.RULResult {
	if cfg == nil {
		cfg = baseline.Default()
	}
	if sim := snap.Lookup(model.SimRULDays); sim != nil {
		return hybrid(*sim, snap, series, cfg)
	}
	return trendOnly(snap, series, cfg)
}

func hybrid(sim float64, snap model.Snapshot, series []model.Reading, cfg *baseline.Config) model.RULResult {
	p := cfg.RUL
	factor, perSensor, culprit := acceleration(snap, series, cfg)
	days := normalize.Clamp(sim*factor, p.MinDays, p.MaxDays)
	action := math.Max(0, days-p.ActionBufferDays)
	return model.RULResult{
		EquipmentRULDays:      model.Float(days),
		EquipmentDaysToAction: model.Float(action),
		CulpritSensor:         culprit,
		PerSensor:             perSensor,
		Mode:                  model.RULModeHybrid,
		CSVCycleID:            snap.Lookup(model.CSVCycleID),
		AccelerationFactor:    model.Float(factor),
		SimulatedBaseline:     model.Float(sim),
	}
}

// acceleration turns the weighted drift of the critical sensors into a lifetime multiplier.
// Without any qualifying sensor the simulation is followed as is.
func acceleration(snap model.Snapshot, series []model.Reading, cfg *baseline.Config) (float64, []model.SensorRUL, *model.SensorKey) {
	p := cfg.RUL
	perSensor := []model.SensorRUL{}
	if len(series) == 0 {
		return 1.0, perSensor, nil
	}

	var (
		total, weights float64
		culprit        *model.SensorKey
		worst          float64
	)
	for _, key := range p.CriticalSensors {
		fit, ok := trend.FitSeries(trend.Extract(series, key), p.Alpha, p.MinPoints)
		if !ok {
			continue
		}
		st, ok := cfg.Stat(key)
		if !ok || st.Std <= 0 || fit.RatePerDay == 0 {
			continue
		}
		severity := math.Abs(fit.RatePerDay) / (st.Std / 24)
		weight := 1.0
		if name := string(key); strings.Contains(name, "vib") || strings.Contains(name, "temp") {
			weight = p.CriticalWeight
		}
		total += severity * weight
		weights += weight

		current := snap.Value(key)
		if current == nil {
			current = fit.Last()
		}
		weighted := severity * weight
		perSensor = append(perSensor, model.SensorRUL{
			Sensor:     key,
			Current:    current,
			RatePerDay: fit.RatePerDay,
			Severity:   model.Float(weighted),
		})
		if culprit == nil || weighted > worst {
			k := key
			culprit, worst = &k, weighted
		}
	}
	if weights == 0 {
		return 1.0, perSensor, nil
	}
	factor := 1.0 + p.AccelerationGain*(total/weights)
	return normalize.Clamp(factor, p.MinAcceleration, p.MaxAcceleration), perSensor, culprit
}

type limits struct {
	nominal bool
	warn    float64
	fail    float64
	// nominal-type bounds
	warnHi, failHi, warnLo, failLo float64
}

func limitsFor(key model.SensorKey, cfg *baseline.Config) (limits, bool) {
	canonical := key
	if key == model.VibrationVelocityAlias {
		canonical = model.VibrationVelocity
	}
	if _, ok := cfg.Limits[canonical]; ok {
		st, ok := cfg.Stat(canonical)
		if !ok || st.Std <= 0 {
			return limits{}, false
		}
		return limits{
			warn: st.Mean + cfg.Rules.ZWarn*st.Std,
			fail: st.Mean + cfg.Rules.ZCrit*st.Std,
		}, true
	}
	if d, ok := cfg.Deviations[canonical]; ok {
		return limits{
			nominal: true,
			warnHi:  d.Nominal * (1 + d.WarnDev),
			failHi:  d.Nominal * (1 + d.FailDev),
			warnLo:  d.Nominal * (1 - d.WarnDev),
			failLo:  d.Nominal * (1 - d.FailDev),
		}, true
	}
	return limits{}, false
}

func trendOnly(snap model.Snapshot, series []model.Reading, cfg *baseline.Config) model.RULResult {
	res := model.RULResult{PerSensor: []model.SensorRUL{}, Mode: model.RULModeTrend}
	if len(series) == 0 {
		return res
	}
	p := cfg.RUL

	for _, key := range p.CandidateSensors {
		fit, ok := trend.FitSeries(trend.Extract(series, key), p.Alpha, p.MinPoints)
		if !ok {
			continue
		}
		lim, ok := limitsFor(key, cfg)
		if !ok {
			continue
		}
		rate := fit.RatePerDay
		current := snap.Lookup(key)
		if current == nil {
			current = fit.Last()
		}

		var toFail, toWarn *float64
		switch {
		case !lim.nominal:
			toFail = DaysToLimit(current, rate, lim.fail, High)
			toWarn = DaysToLimit(current, rate, lim.warn, High)
		case rate > 0:
			toFail = DaysToLimit(current, rate, lim.failHi, High)
			toWarn = DaysToLimit(current, rate, lim.warnHi, High)
		case rate < 0:
			toFail = DaysToLimit(current, rate, lim.failLo, Low)
			toWarn = DaysToLimit(current, rate, lim.warnLo, Low)
		}

		res.PerSensor = append(res.PerSensor, model.SensorRUL{
			Sensor:       key,
			Current:      current,
			RatePerDay:   rate,
			DaysToFail:   toFail,
			DaysToAction: toWarn,
		})
	}

	res.EquipmentRULDays = minDays(res.PerSensor, func(s model.SensorRUL) *float64 { return s.DaysToFail })
	res.EquipmentDaysToAction = minDays(res.PerSensor, func(s model.SensorRUL) *float64 { return s.DaysToAction })
	if res.EquipmentRULDays != nil {
		for _, s := range res.PerSensor {
			if s.DaysToFail != nil && *s.DaysToFail == *res.EquipmentRULDays {
				k := s.Sensor
				res.CulpritSensor = &k
				break
			}
		}
	}
	return res
}

func minDays(rows []model.SensorRUL, field func(model.SensorRUL) *float64) *float64 {
	var out *float64
	for _, r := range rows {
		v := field(r)
		if v == nil {
			continue
		}
		if out == nil || *v < *out {
			out = model.Float(*v)
		}
	}
	return out
}

// DaysToLimit projects how many days current needs at rate to reach limit from below (High) or
// above (Low). It is 0 when the limit is already crossed and nil when the trend is flat or heads away.
func DaysToLimit(current *float64, rate, limit float64, dir Direction) *float64 {
	if current == nil || math.Abs(rate) < flatRate {
		return nil
	}
	if dir == High {
		if rate <= 0 {
			return nil
		}
		remaining := limit - *current
		if remaining <= 0 {
			return model.Float(0)
		}
		return model.Float(remaining / rate)
	}
	if rate >= 0 {
		return nil
	}
	remaining := *current - limit
	if remaining <= 0 {
		return model.Float(0)
	}
	return model.Float(remaining / -rate)
}
