package model

import "time"

type Severity string

const (
	SeverityNormal  Severity = "normal"
	SeverityWarning Severity = "warning"
	SeverityFailure Severity = "failure"
)

type Condition string

const (
	ConditionUnknown  Condition = "unknown"
	ConditionNormal   Condition = "normal"
	ConditionWarning  Condition = "warning"
	ConditionCritical Condition = "critical"
)

type RULMode string

const (
	RULModeHybrid RULMode = "hybrid"
	RULModeTrend  RULMode = "trend"
)

// Reading is one timestamped row of the telemetry series for an equipment.
type Reading struct {
	EquipmentID string    `json:"equipment_id"`
	Timestamp   time.Time `json:"timestamp"`
	Values      Snapshot  `json:"values"`
	Source      string    `json:"source,omitempty"`
	ML          *MLStatus `json:"ml,omitempty"`
}

// MLStatus is the classifier output stored alongside a reading by an upstream model.
type MLStatus struct {
	Status           Severity `json:"status"`
	FaultType        string   `json:"fault_type"`
	HealthStatusCode *float64 `json:"health_status_code,omitempty"`
}

type HealthIndexResult struct {
	HIPump              *float64  `json:"hi_pump"`
	Condition           Condition `json:"condition"`
	HIMechanical        *float64  `json:"hi_mechanical"`
	HIHydraulic         *float64  `json:"hi_hydraulic"`
	HIElectrical        *float64  `json:"hi_electrical"`
	DamageMechanicalPct *float64  `json:"damage_mechanical_pct"`
	DamageHydraulicPct  *float64  `json:"damage_hydraulic_pct"`
	DamageElectricalPct *float64  `json:"damage_electrical_pct"`
}

// ComponentHealth maps a component label to its HI, nil when a required sensor is missing.
type ComponentHealth map[string]*float64

type Trigger struct {
	Key      SensorKey `json:"key"`
	Severity Severity  `json:"severity"`
	Z        float64   `json:"z"`
	Value    float64   `json:"value"`
	Mean     float64   `json:"mean"`
	Std      float64   `json:"std"`
	Message  string    `json:"message"`
}

type FaultResult struct {
	Severity   Severity  `json:"severity"`
	FaultType  string    `json:"fault_type"`
	CulpritKey SensorKey `json:"culprit_key,omitempty"`
	Culprit    *Trigger  `json:"culprit,omitempty"`
	Triggers   []Trigger `json:"triggers"`
}

type SensorRUL struct {
	Sensor       SensorKey `json:"sensor"`
	Current      *float64  `json:"current"`
	RatePerDay   float64   `json:"rate_per_day"`
	Severity     *float64  `json:"severity,omitempty"`
	DaysToFail   *float64  `json:"rul_days_to_fail"`
	DaysToAction *float64  `json:"days_to_action"`
}

type RULResult struct {
	EquipmentRULDays      *float64    `json:"equipment_rul_days"`
	EquipmentDaysToAction *float64    `json:"equipment_days_to_action"`
	CulpritSensor         *SensorKey  `json:"culprit_sensor"`
	PerSensor             []SensorRUL `json:"per_sensor"`
	Mode                  RULMode     `json:"mode"`
	CSVCycleID            *float64    `json:"csv_cycle_id,omitempty"`
	AccelerationFactor    *float64    `json:"acceleration_factor,omitempty"`
	SimulatedBaseline     *float64    `json:"simulated_baseline,omitempty"`
}

type Assessment struct {
	EquipmentID string            `json:"equipment_id"`
	Timestamp   time.Time         `json:"ts"`
	Sensors     Snapshot          `json:"sensors"`
	Health      HealthIndexResult `json:"hi"`
	Fault       FaultResult       `json:"fault"`
	RUL         RULResult         `json:"rul"`
	ML          *MLStatus         `json:"ml,omitempty"`
}

type Alert struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	EquipmentID string    `json:"equipment_id"`
	Severity    Severity  `json:"severity"`
	AlertType   string    `json:"alert_type"`
	Culprit     SensorKey `json:"culprit"`
	Message     string    `json:"message"`
	Triggers    []Trigger `json:"triggers"`
	HIPump      *float64  `json:"hi_pump,omitempty"`
	RULDays     *float64  `json:"rul_days,omitempty"`
}

// SensorStats summarizes one field over a recent window.
type SensorStats struct {
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

func Float(v float64) *float64 {
	return &v
}
