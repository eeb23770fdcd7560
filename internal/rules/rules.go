// Package rules classifies a snapshot by z-score against the baseline and debounces the result
// with per-sensor persistence counters.
package rules

import (
	"fmt"
	"math"
	"sort"

	"pumpguard/internal/baseline"
	"pumpguard/internal/model"
)

const NormalFaultType = "Normal operation"

// zTolerance absorbs rounding in (x-mean)/std so a reading of exactly mean+k*std reaches threshold k.
const zTolerance = 1e-9

// Evaluate scores every baseline sensor present in snap and updates counters. A sensor fires
// only once its counter reaches the configured persistence.
func Evaluate(snap model.Snapshot, cfg *baseline.Config, counters *Counters) model.FaultResult {
	if cfg == nil {
		return normalResult()
	}
	if counters == nil {
		counters = NewCounters()
	}
	params := cfg.Rules
	persist := params.Persistence
	if persist < 1 {
		persist = 1
	}

	counters.mu.Lock()
	var triggers []model.Trigger
	for _, key := range model.SensorKeys {
		st, ok := cfg.Stat(key)
		if !ok || st.Std <= 0 {
			continue
		}
		x := snap.Value(key)
		if x == nil {
			continue
		}
		z := (*x - st.Mean) / st.Std
		sev := classify(math.Abs(z), params)
		n := counters.bump(key, sev)
		if sev == model.SeverityNormal || n < persist {
			continue
		}
		triggers = append(triggers, model.Trigger{
			Key:      key,
			Severity: sev,
			Z:        math.Round(z*100) / 100,
			Value:    *x,
			Mean:     st.Mean,
			Std:      st.Std,
			Message:  message(key, sev, params),
		})
	}
	counters.mu.Unlock()

	if len(triggers) == 0 {
		return normalResult()
	}

	overall := model.SeverityWarning
	for _, t := range triggers {
		if t.Severity == model.SeverityFailure {
			overall = model.SeverityFailure
			break
		}
	}
	sort.SliceStable(triggers, func(i, j int) bool {
		return math.Abs(triggers[i].Z) > math.Abs(triggers[j].Z)
	})
	if limit := params.MaxTriggers; limit > 0 && len(triggers) > limit {
		triggers = triggers[:limit]
	}
	culprit := triggers[0]
	return model.FaultResult{
		Severity:   overall,
		FaultType:  culprit.Message,
		CulpritKey: culprit.Key,
		Culprit:    &culprit,
		Triggers:   triggers,
	}
}

func classify(absZ float64, p baseline.RuleParams) model.Severity {
	switch {
	case absZ >= p.ZCrit-zTolerance:
		return model.SeverityFailure
	case absZ >= p.ZWarn-zTolerance:
		return model.SeverityWarning
	default:
		return model.SeverityNormal
	}
}

func message(key model.SensorKey, sev model.Severity, p baseline.RuleParams) string {
	if sev == model.SeverityFailure {
		return fmt.Sprintf("%s abnormal (|z|≥%.1f)", key, p.ZCrit)
	}
	return fmt.Sprintf("%s deviating (|z|≥%.1f)", key, p.ZWarn)
}

func normalResult() model.FaultResult {
	return model.FaultResult{
		Severity:  model.SeverityNormal,
		FaultType: NormalFaultType,
		Triggers:  []model.Trigger{},
	}
}
