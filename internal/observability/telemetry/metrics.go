package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	ActiveChargingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stationd_active_charging_sessions",
		Help: "Number of active charging sessions",
	})

	AllocatedPowerKW = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stationd_allocated_power_kw",
		Help: "Total power currently allocated to sessions in kW",
	})

	ConsumedPowerKW = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stationd_consumed_power_kw",
		Help: "Total power currently reported consumed in kW",
	})

	GridUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stationd_grid_utilization_ratio",
		Help: "Allocated power as a fraction of grid capacity",
	})

	BatterySOCKWh = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stationd_battery_soc_kwh",
		Help: "Battery state of charge in kWh",
	})

	BatteryPowerKW = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stationd_battery_power_kw",
		Help: "Battery power flow in kW (positive = discharging)",
	})

	SessionStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationd_session_starts_total",
		Help: "Session start attempts by outcome",
	}, []string{"status"})

	// Allocation engine metrics
	RecomputationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stationd_allocation_recomputations_total",
		Help: "Number of allocation recomputations",
	})

	RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stationd_allocation_recompute_seconds",
		Help:    "Duration of allocation recomputations",
		Buckets: prometheus.DefBuckets,
	})
)
