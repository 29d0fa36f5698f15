package ports

import (
	"time"

	"github.com/gridwatt/stationd/internal/domain"
)

// SessionRegistry owns session identity and connector exclusivity.
type SessionRegistry interface {
	// StartSession registers a new session, or returns
	// domain.ErrUnknownCharger, domain.ErrInvalidConnector or
	// domain.ErrConnectorOccupied.
	StartSession(chargerID string, connectorID int, vehicleMaxPower float64) (*domain.Session, error)
	// StopSession removes the session from both indexes and returns its
	// final field values, or domain.ErrSessionNotFound.
	StopSession(sessionID string) (domain.SessionView, error)
	// UpdateSessionPower integrates consumed energy since the previous
	// update and overwrites reported consumption and vehicle capability.
	UpdateSessionPower(sessionID string, consumedPower, vehicleMaxPower float64) (domain.SessionView, error)
	// SetAllocatedPower writes the load manager's decision back into a
	// session. Returns false if the session is gone.
	SetAllocatedPower(sessionID string, kw float64) bool

	GetSession(sessionID string) (domain.SessionView, bool)
	Snapshot() []domain.SessionView
	SessionsByCharger() map[string][]domain.SessionView
	IsConnectorAvailable(chargerID string, connectorID int) bool

	ActiveCount() int
	TotalAllocatedPower() float64
	TotalConsumedPower() float64
	TotalEnergy() float64
}

// BatteryController models the stationary battery and its safety
// envelope. All methods are safe under concurrency; mutating calls
// return the power actually applied.
type BatteryController interface {
	IsAvailable() bool
	AvailableDischarge() float64
	AvailableCharge() float64
	Discharge(requestedKW, durationSeconds float64) float64
	Charge(requestedKW, durationSeconds float64) float64
	SetIdle()
	CalculateOptimalPower(gridLoad, gridCapacity, safetyMargin float64) float64

	SOC() float64
	SOCPercentage() float64
	Capacity() float64
	MaxPower() float64
	CurrentPower() float64
	IsEmergencyState() bool
	LastUpdate() time.Time
}

// LoadManager recomputes power allocations for all active sessions.
type LoadManager interface {
	// Recompute reads a session snapshot, solves the constrained
	// allocation, writes allocations back and drives the battery. It
	// never fails; degenerate inputs yield all-zero allocations.
	Recompute() map[string]float64
	LastAllocations() map[string]float64
	LastAllocationTime() time.Time
}
