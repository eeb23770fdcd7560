package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assessmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpguard_assessments_total",
		Help: "Assessments computed, by fault severity",
	}, []string{"severity"})

	assessmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pumpguard_assessment_duration_seconds",
		Help:    "Time spent computing one assessment, telemetry fetch included",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpguard_alerts_total",
		Help: "Alerts raised, by severity",
	}, []string{"severity"})

	seriesFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pumpguard_series_fetch_failures_total",
		Help: "Recent series fetches that failed and fell back to an empty series",
	})

	readingsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpguard_readings_ingested_total",
		Help: "Readings accepted by the engine, by ingest source",
	}, []string{"source"})

	readingsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpguard_readings_dropped_total",
		Help: "Readings dropped before assessment, by reason",
	}, []string{"reason"})

	healthIndexGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pumpguard_health_index",
		Help: "Latest composite health index per equipment",
	}, []string{"equipment"})

	rulDaysGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pumpguard_rul_days",
		Help: "Latest equipment remaining useful life in days",
	}, []string{"equipment"})
)
