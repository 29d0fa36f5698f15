package station

import (
	"time"

	"go.uber.org/zap"

	"github.com/gridwatt/stationd/internal/domain"
	"github.com/gridwatt/stationd/internal/ports"
)

// Service aggregates registry, load manager and battery state into the
// read-only station views served by the monitoring endpoints.
type Service struct {
	station  *domain.StationConfig
	sessions ports.SessionRegistry
	loads    ports.LoadManager
	battery  ports.BatteryController
	log      *zap.Logger
}

func NewService(
	station *domain.StationConfig,
	sessions ports.SessionRegistry,
	loads ports.LoadManager,
	battery ports.BatteryController,
	log *zap.Logger,
) *Service {
	return &Service{
		station:  station,
		sessions: sessions,
		loads:    loads,
		battery:  battery,
		log:      log,
	}
}

// Status is the full station view for dashboards.
type Status struct {
	StationID           string               `json:"station_id"`
	GridCapacity        float64              `json:"grid_capacity_kw"`
	TotalAllocatedPower float64              `json:"total_allocated_power_kw"`
	TotalConsumedPower  float64              `json:"total_consumed_power_kw"`
	ActiveSessions      []domain.SessionView `json:"active_sessions"`
	PowerAllocation     map[string]float64   `json:"power_allocation"`
	Battery             *BatterySummary      `json:"battery,omitempty"`
	Timestamp           time.Time            `json:"timestamp"`
}

// BatterySummary is the compact battery block embedded in Status.
type BatterySummary struct {
	SOC      float64 `json:"soc_kwh"`
	Capacity float64 `json:"capacity_kwh"`
	MaxPower float64 `json:"max_power_kw"`
}

// BatteryStatus is the detailed battery view.
type BatteryStatus struct {
	Available          bool      `json:"available"`
	SOC                float64   `json:"soc_kwh,omitempty"`
	SOCPercentage      float64   `json:"soc_percentage,omitempty"`
	Capacity           float64   `json:"capacity_kwh,omitempty"`
	MaxPower           float64   `json:"max_power_kw,omitempty"`
	CurrentPower       float64   `json:"current_power_kw"`
	AvailableDischarge float64   `json:"available_discharge_kw"`
	AvailableCharge    float64   `json:"available_charge_kw"`
	EmergencyState     bool      `json:"emergency_state"`
	LastUpdate         time.Time `json:"last_update"`
	Message            string    `json:"message,omitempty"`
}

// LoadSummary reports allocation and fairness metrics.
type LoadSummary struct {
	TotalSessions      int       `json:"total_sessions"`
	TotalAllocated     float64   `json:"total_allocated_kw"`
	TotalConsumed      float64   `json:"total_consumed_kw"`
	GridCapacity       float64   `json:"grid_capacity_kw"`
	GridUtilization    float64   `json:"grid_utilization"`
	JainsFairnessIndex float64   `json:"jains_fairness_index"`
	BatterySOC         float64   `json:"battery_soc_kwh,omitempty"`
	BatteryPower       float64   `json:"battery_power_kw,omitempty"`
	LastAllocationTime time.Time `json:"last_allocation_time,omitempty"`
}

// Health is the lightweight liveness payload.
type Health struct {
	Status           string    `json:"status"`
	StationID        string    `json:"station_id"`
	ActiveSessions   int       `json:"active_sessions"`
	GridCapacity     float64   `json:"grid_capacity_kw"`
	BatteryAvailable bool      `json:"battery_available"`
	Timestamp        time.Time `json:"timestamp"`
}

func (s *Service) Config() *domain.StationConfig {
	return s.station
}

func (s *Service) Status() Status {
	sessions := s.sessions.Snapshot()

	allocation := make(map[string]float64, len(sessions))
	var totalAllocated, totalConsumed float64
	for _, v := range sessions {
		allocation[v.SessionID] = v.AllocatedPower
		totalAllocated += v.AllocatedPower
		totalConsumed += v.ConsumedPower
	}

	status := Status{
		StationID:           s.station.StationID,
		GridCapacity:        s.station.GridCapacity,
		TotalAllocatedPower: totalAllocated,
		TotalConsumedPower:  totalConsumed,
		ActiveSessions:      sessions,
		PowerAllocation:     allocation,
		Timestamp:           time.Now(),
	}
	if s.battery.IsAvailable() {
		status.Battery = &BatterySummary{
			SOC:      s.battery.SOC(),
			Capacity: s.battery.Capacity(),
			MaxPower: s.battery.MaxPower(),
		}
	}
	return status
}

func (s *Service) BatteryStatus() BatteryStatus {
	if !s.battery.IsAvailable() {
		return BatteryStatus{
			Available: false,
			Message:   "No battery system configured",
		}
	}
	return BatteryStatus{
		Available:          true,
		SOC:                s.battery.SOC(),
		SOCPercentage:      s.battery.SOCPercentage(),
		Capacity:           s.battery.Capacity(),
		MaxPower:           s.battery.MaxPower(),
		CurrentPower:       s.battery.CurrentPower(),
		AvailableDischarge: s.battery.AvailableDischarge(),
		AvailableCharge:    s.battery.AvailableCharge(),
		EmergencyState:     s.battery.IsEmergencyState(),
		LastUpdate:         s.battery.LastUpdate(),
	}
}

func (s *Service) LoadSummary() LoadSummary {
	sessions := s.sessions.Snapshot()

	var totalAllocated, totalConsumed float64
	allocations := make([]float64, 0, len(sessions))
	for _, v := range sessions {
		totalAllocated += v.AllocatedPower
		totalConsumed += v.ConsumedPower
		allocations = append(allocations, v.AllocatedPower)
	}

	var utilization float64
	if s.station.GridCapacity > 0 {
		utilization = totalAllocated / s.station.GridCapacity
	}

	summary := LoadSummary{
		TotalSessions:      len(sessions),
		TotalAllocated:     totalAllocated,
		TotalConsumed:      totalConsumed,
		GridCapacity:       s.station.GridCapacity,
		GridUtilization:    utilization,
		JainsFairnessIndex: JainsFairnessIndex(allocations),
		LastAllocationTime: s.loads.LastAllocationTime(),
	}
	if s.battery.IsAvailable() {
		summary.BatterySOC = s.battery.SOC()
		summary.BatteryPower = s.battery.CurrentPower()
	}
	return summary
}

func (s *Service) Health() Health {
	return Health{
		Status:           "UP",
		StationID:        s.station.StationID,
		ActiveSessions:   s.sessions.ActiveCount(),
		GridCapacity:     s.station.GridCapacity,
		BatteryAvailable: s.battery.IsAvailable(),
		Timestamp:        time.Now(),
	}
}

// JainsFairnessIndex computes (Σx)² / (n·Σx²) over the allocations.
// Ranges from 1/n (one session takes everything) to 1 (equal shares).
// Empty or all-zero inputs count as perfectly fair.
func JainsFairnessIndex(values []float64) float64 {
	if len(values) == 0 {
		return 1.0
	}

	var sum, sumSquares float64
	for _, v := range values {
		sum += v
		sumSquares += v * v
	}
	if sumSquares == 0 {
		return 1.0
	}
	return sum * sum / (float64(len(values)) * sumSquares)
}
