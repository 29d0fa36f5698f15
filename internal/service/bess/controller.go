package bess

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gridwatt/stationd/internal/domain"
	"github.com/gridwatt/stationd/internal/ports"
)

// Safety envelope for Li-ion storage. Discharge stops at the 10% floor,
// charge stops at the 95% ceiling, and 5% is the hard emergency level
// no operation may cross.
const (
	minSOCFraction       = 0.10
	maxSOCFraction       = 0.95
	emergencySOCFraction = 0.05

	// Discharge/charge power is capped so it could be sustained for
	// roughly 15 minutes given the energy left above the floor (or the
	// headroom below the ceiling).
	sustainabilityWindowHours = 0.25

	// Valley filling only engages when the grid surplus is significant.
	valleyFillThresholdKW = 10.0
	valleyFillFraction    = 0.5
)

// Controller manages the station battery: state of charge, charge and
// discharge execution, and the peak-shave/valley-fill recommendation.
// A nil battery config yields a permanently unavailable controller.
type Controller struct {
	capacity float64 // kWh
	maxPower float64 // kW, symmetric charge/discharge rating
	log      *zap.Logger

	mu           sync.Mutex
	soc          float64 // kWh
	currentPower float64 // kW, positive = discharging, negative = charging
	lastUpdate   time.Time
}

func NewController(cfg *domain.BatteryConfig, log *zap.Logger) *Controller {
	c := &Controller{log: log, lastUpdate: time.Now()}
	if cfg == nil {
		log.Info("Battery controller initialized without battery")
		return c
	}

	c.capacity = cfg.CapacityKWh
	c.maxPower = cfg.PowerKW
	c.soc = cfg.CapacityKWh // starts fully charged
	log.Info("Battery controller initialized",
		zap.Float64("capacity_kwh", c.capacity),
		zap.Float64("max_power_kw", c.maxPower),
	)
	return c
}

var _ ports.BatteryController = (*Controller)(nil)

// IsAvailable reports whether a usable battery is configured.
func (c *Controller) IsAvailable() bool {
	return c.capacity > 0 && c.maxPower > 0
}

// AvailableDischarge returns the discharge power sustainable for the
// 15-minute window given the energy above the SOC floor.
func (c *Controller) AvailableDischarge() float64 {
	if !c.IsAvailable() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availableDischargeLocked()
}

func (c *Controller) availableDischargeLocked() float64 {
	floor := c.capacity * minSOCFraction
	if c.soc <= floor {
		return 0
	}
	available := c.soc - floor
	return math.Max(0, math.Min(c.maxPower, available/sustainabilityWindowHours))
}

// AvailableCharge returns the charge power sustainable for the
// 15-minute window given the headroom below the SOC ceiling.
func (c *Controller) AvailableCharge() float64 {
	if !c.IsAvailable() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availableChargeLocked()
}

func (c *Controller) availableChargeLocked() float64 {
	ceiling := c.capacity * maxSOCFraction
	if c.soc >= ceiling {
		return 0
	}
	headroom := ceiling - c.soc
	return math.Max(0, math.Min(c.maxPower, headroom/sustainabilityWindowHours))
}

// Discharge draws requestedKW for durationSeconds, capped by the
// available discharge power, and returns the power actually delivered.
// The SOC update and the cap are evaluated in one critical section so
// concurrent callers serialize against the floor.
func (c *Controller) Discharge(requestedKW, durationSeconds float64) float64 {
	if !c.IsAvailable() || requestedKW <= 0 || durationSeconds <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	actual := math.Min(requestedKW, c.availableDischargeLocked())
	if actual <= 0 {
		return 0
	}

	energy := actual * durationSeconds / 3600.0
	floor := c.capacity * minSOCFraction
	oldSOC := c.soc
	c.soc = math.Max(c.soc-energy, floor)
	c.currentPower = actual
	c.lastUpdate = time.Now()

	c.log.Debug("Battery discharging",
		zap.Float64("power_kw", actual),
		zap.Float64("duration_s", durationSeconds),
		zap.Float64("soc_before_kwh", oldSOC),
		zap.Float64("soc_after_kwh", c.soc),
	)
	return actual
}

// Charge absorbs requestedKW for durationSeconds, capped by the
// available charge power, and returns the power actually absorbed.
func (c *Controller) Charge(requestedKW, durationSeconds float64) float64 {
	if !c.IsAvailable() || requestedKW <= 0 || durationSeconds <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	actual := math.Min(requestedKW, c.availableChargeLocked())
	if actual <= 0 {
		return 0
	}

	energy := actual * durationSeconds / 3600.0
	ceiling := c.capacity * maxSOCFraction
	oldSOC := c.soc
	c.soc = math.Min(c.soc+energy, ceiling)
	c.currentPower = -actual
	c.lastUpdate = time.Now()

	c.log.Debug("Battery charging",
		zap.Float64("power_kw", actual),
		zap.Float64("duration_s", durationSeconds),
		zap.Float64("soc_before_kwh", oldSOC),
		zap.Float64("soc_after_kwh", c.soc),
	)
	return actual
}

// SetIdle zeroes the power flow without touching the SOC.
func (c *Controller) SetIdle() {
	c.mu.Lock()
	c.currentPower = 0
	c.lastUpdate = time.Now()
	c.mu.Unlock()
}

// CalculateOptimalPower recommends a battery action for the given grid
// load: positive for peak-shave discharge, negative for valley-fill
// charge, zero in the neutral band.
func (c *Controller) CalculateOptimalPower(gridLoad, gridCapacity, safetyMargin float64) float64 {
	if !c.IsAvailable() {
		return 0
	}

	effectiveCap := gridCapacity - safetyMargin

	if gridLoad > effectiveCap {
		required := gridLoad - effectiveCap
		return math.Min(required, c.AvailableDischarge())
	}

	surplus := effectiveCap - gridLoad
	if surplus > valleyFillThresholdKW {
		return -math.Min(surplus*valleyFillFraction, c.AvailableCharge())
	}

	return 0
}

func (c *Controller) SOC() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.soc
}

func (c *Controller) SOCPercentage() float64 {
	if c.capacity <= 0 {
		return 0
	}
	return c.SOC() / c.capacity * 100.0
}

func (c *Controller) Capacity() float64 { return c.capacity }
func (c *Controller) MaxPower() float64 { return c.maxPower }

func (c *Controller) CurrentPower() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPower
}

// IsEmergencyState reports a critically low SOC. It documents the
// condition; the floors enforced by Discharge keep it from being
// crossed by battery operations themselves.
func (c *Controller) IsEmergencyState() bool {
	if !c.IsAvailable() {
		return false
	}
	return c.SOC() <= c.capacity*emergencySOCFraction
}

func (c *Controller) LastUpdate() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdate
}

func (c *Controller) String() string {
	if !c.IsAvailable() {
		return "BESS{unavailable}"
	}
	return fmt.Sprintf("BESS{soc=%.1fkWh (%.1f%%), power=%.1fkW, capacity=%.1fkWh}",
		c.SOC(), c.SOCPercentage(), c.CurrentPower(), c.capacity)
}
