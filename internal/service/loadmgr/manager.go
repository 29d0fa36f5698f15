package loadmgr

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gridwatt/stationd/internal/adapter/queue"
	"github.com/gridwatt/stationd/internal/domain"
	"github.com/gridwatt/stationd/internal/observability/telemetry"
	"github.com/gridwatt/stationd/internal/ports"
)

// Tunable algorithm parameters. The water-fill trades a little residual
// error (bounded by convergenceThresholdKW) for bounded runtime.
const (
	maxIterations          = 20
	convergenceThresholdKW = 0.01
	binarySearchIterations = 15
	epsilonKW              = 1e-3 // avoids log(0) in the utility; never survives to a committed allocation

	staticLoadKW       = 3.0 // station auxiliary draw
	gridSafetyMarginKW = 5.0 // reserved headroom below the grid cap

	bessUpdateWindowSeconds = 300.0
	valleyFillLoadFraction  = 0.7
)

// Manager computes proportional-fair power allocations across active
// sessions under the vehicle, charger and grid constraint levels, then
// drives the battery from the realized load. It owns no session state;
// every run reads a fresh snapshot and writes allocations back through
// the registry.
type Manager struct {
	station  *domain.StationConfig
	sessions ports.SessionRegistry
	battery  ports.BatteryController
	mq       queue.MessageQueue
	log      *zap.Logger

	chargers map[string]domain.ChargerConfig

	mu                 sync.Mutex
	lastAllocations    map[string]float64
	lastAllocationTime time.Time
}

func NewManager(
	station *domain.StationConfig,
	sessions ports.SessionRegistry,
	battery ports.BatteryController,
	mq queue.MessageQueue,
	log *zap.Logger,
) *Manager {
	chargers := make(map[string]domain.ChargerConfig, len(station.Chargers))
	for _, c := range station.Chargers {
		chargers[c.ID] = c
	}

	log.Info("Load manager initialized",
		zap.String("station_id", station.StationID),
		zap.Float64("grid_capacity_kw", station.GridCapacity),
		zap.Int("chargers", len(chargers)),
	)
	return &Manager{
		station:         station,
		sessions:        sessions,
		battery:         battery,
		mq:              mq,
		log:             log,
		chargers:        chargers,
		lastAllocations: make(map[string]float64),
	}
}

var _ ports.LoadManager = (*Manager)(nil)

// Recompute is the allocation entry point, invoked after every session
// lifecycle event. Concurrent calls are permitted: per-session writes
// are atomic and last-writer-wins, and every mutation that matters
// triggers another recompute anyway.
func (m *Manager) Recompute() map[string]float64 {
	start := time.Now()

	snapshot := m.sessions.Snapshot()
	if len(snapshot) == 0 {
		m.battery.SetIdle()
		m.cache(map[string]float64{})
		m.observe(0, 0, start)
		return map[string]float64{}
	}

	allocations := m.computeAllocations(snapshot)

	// Commit. Sessions stopped mid-computation are skipped.
	for id, kw := range allocations {
		m.sessions.SetAllocatedPower(id, kw)
	}

	var total float64
	for _, kw := range allocations {
		total += kw
	}

	m.driveBattery(total)
	m.cache(allocations)
	m.observe(len(snapshot), total, start)
	m.publish(allocations, total)

	m.log.Info("Power allocation computed",
		zap.Int("sessions", len(snapshot)),
		zap.Float64("total_allocated_kw", total),
		zap.Duration("elapsed", time.Since(start)),
	)
	return allocations
}

// computeAllocations runs the constraint cascade: proportional-fair
// water-fill over the pooled budget, per-charger scaling, then a final
// uniform rescale against the global budget.
func (m *Manager) computeAllocations(snapshot []domain.SessionView) map[string]float64 {
	gridBudget := math.Max(0, m.station.GridCapacity-staticLoadKW-gridSafetyMarginKW)

	var bessBudget float64
	if m.battery.IsAvailable() {
		bessBudget = m.battery.AvailableDischarge()
	}
	totalBudget := gridBudget + bessBudget

	m.log.Debug("Available power budget",
		zap.Float64("grid_kw", gridBudget),
		zap.Float64("battery_kw", bessBudget),
		zap.Float64("total_kw", totalBudget),
	)

	allocations := make(map[string]float64, len(snapshot))
	if totalBudget <= 0 {
		m.log.Warn("No power available for allocation")
		for _, s := range snapshot {
			allocations[s.SessionID] = 0
		}
		return allocations
	}

	allocated := waterFill(snapshot, totalBudget)

	// Charger-level constraint: each charger's max power is shared
	// across its connectors.
	m.scaleToChargerLimits(snapshot, allocated)

	// Global constraint: uniform rescale absorbs the water-fill's
	// residual error as well as any excess left by charger scaling.
	var total float64
	for _, kw := range allocated {
		total += kw
	}
	if total > totalBudget {
		factor := totalBudget / total
		for i := range allocated {
			allocated[i] *= factor
		}
	}

	for i, s := range snapshot {
		allocations[s.SessionID] = allocated[i]
	}
	return allocations
}

// scaleToChargerLimits scales each charger's sessions down uniformly
// when their sum exceeds the charger rating. Unknown charger ids cannot
// occur for registered sessions, but a stale snapshot entry is skipped
// with a warning rather than halting the run.
func (m *Manager) scaleToChargerLimits(snapshot []domain.SessionView, allocated []float64) {
	byCharger := make(map[string][]int)
	for i, s := range snapshot {
		byCharger[s.ChargerID] = append(byCharger[s.ChargerID], i)
	}

	for chargerID, indexes := range byCharger {
		charger, ok := m.chargers[chargerID]
		if !ok {
			m.log.Warn("Unknown charger id in snapshot", zap.String("charger_id", chargerID))
			continue
		}

		var sum float64
		for _, i := range indexes {
			sum += allocated[i]
		}
		if sum <= charger.MaxPowerKW || sum <= 0 {
			continue
		}

		factor := charger.MaxPowerKW / sum
		for _, i := range indexes {
			allocated[i] *= factor
		}
		m.log.Debug("Scaled charger allocations",
			zap.String("charger_id", chargerID),
			zap.Float64("factor", factor),
			zap.Float64("sum_kw", sum),
			zap.Float64("limit_kw", charger.MaxPowerKW),
		)
	}
}

// driveBattery implements peak shaving and valley filling from the
// realized load (allocated power plus the static auxiliary draw).
func (m *Manager) driveBattery(totalAllocated float64) {
	if !m.battery.IsAvailable() {
		return
	}

	realizedLoad := totalAllocated + staticLoadKW
	gridCapacity := m.station.GridCapacity

	switch {
	case realizedLoad > gridCapacity:
		excess := realizedLoad - gridCapacity
		actual := m.battery.Discharge(excess, bessUpdateWindowSeconds)
		m.log.Debug("Battery peak shaving",
			zap.Float64("requested_kw", excess),
			zap.Float64("actual_kw", actual),
		)
	case realizedLoad < gridCapacity*valleyFillLoadFraction:
		spare := gridCapacity - realizedLoad
		actual := m.battery.Charge(spare*0.5, bessUpdateWindowSeconds)
		m.log.Debug("Battery valley filling",
			zap.Float64("requested_kw", spare*0.5),
			zap.Float64("actual_kw", actual),
		)
	default:
		m.battery.SetIdle()
	}
}

// LastAllocations returns a copy of the most recently committed
// allocation map.
func (m *Manager) LastAllocations() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.lastAllocations))
	for id, kw := range m.lastAllocations {
		out[id] = kw
	}
	return out
}

// LastAllocationTime returns when the last recompute committed.
func (m *Manager) LastAllocationTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAllocationTime
}

func (m *Manager) cache(allocations map[string]float64) {
	m.mu.Lock()
	m.lastAllocations = allocations
	m.lastAllocationTime = time.Now()
	m.mu.Unlock()
}

func (m *Manager) observe(sessions int, totalAllocated float64, start time.Time) {
	telemetry.ActiveChargingSessions.Set(float64(sessions))
	telemetry.AllocatedPowerKW.Set(totalAllocated)
	telemetry.ConsumedPowerKW.Set(m.sessions.TotalConsumedPower())
	if m.station.GridCapacity > 0 {
		telemetry.GridUtilization.Set(totalAllocated / m.station.GridCapacity)
	}
	if m.battery.IsAvailable() {
		telemetry.BatterySOCKWh.Set(m.battery.SOC())
		telemetry.BatteryPowerKW.Set(m.battery.CurrentPower())
	}
	telemetry.RecomputationsTotal.Inc()
	telemetry.RecomputeDuration.Observe(time.Since(start).Seconds())
}

type allocationEvent struct {
	StationID      string             `json:"station_id"`
	Allocations    map[string]float64 `json:"allocations_kw"`
	TotalAllocated float64            `json:"total_allocated_kw"`
	Timestamp      time.Time          `json:"timestamp"`
}

func (m *Manager) publish(allocations map[string]float64, total float64) {
	if m.mq == nil {
		return
	}
	event := allocationEvent{
		StationID:      m.station.StationID,
		Allocations:    allocations,
		TotalAllocated: total,
		Timestamp:      time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := m.mq.Publish(queue.SubjectAllocationUpdated, data); err != nil {
		m.log.Warn("Failed to publish allocation event", zap.Error(err))
	}
}
