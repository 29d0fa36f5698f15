package domain

import (
	"fmt"
	"sync"
	"time"
)

type SessionState string

const (
	SessionStateStarting  SessionState = "STARTING"
	SessionStateActive    SessionState = "ACTIVE"
	SessionStateStopping  SessionState = "STOPPING"
	SessionStateCompleted SessionState = "COMPLETED"
)

// Session is one active charging engagement of a vehicle on a specific
// connector. Identity fields are immutable; power figures and state are
// guarded by a mutex so concurrent handlers and the load manager see
// consistent values.
type Session struct {
	id          string
	chargerID   string
	connectorID int
	startTime   time.Time

	mu              sync.RWMutex
	vehicleMaxPower float64
	allocatedPower  float64
	consumedPower   float64
	totalEnergy     float64
	state           SessionState
	lastUpdate      time.Time
}

// SessionView is an immutable copy of a session's fields, taken under
// the session lock. The load manager computes over views so it never
// holds a lock across an iteration.
type SessionView struct {
	SessionID       string       `json:"session_id"`
	ChargerID       string       `json:"charger_id"`
	ConnectorID     int          `json:"connector_id"`
	VehicleMaxPower float64      `json:"vehicle_max_power_kw"`
	AllocatedPower  float64      `json:"allocated_power_kw"`
	ConsumedPower   float64      `json:"consumed_power_kw"`
	TotalEnergy     float64      `json:"total_energy_kwh"`
	State           SessionState `json:"state"`
	StartTime       time.Time    `json:"start_time"`
	LastUpdate      time.Time    `json:"last_update"`
}

func NewSession(id, chargerID string, connectorID int, vehicleMaxPower float64) *Session {
	now := time.Now()
	return &Session{
		id:              id,
		chargerID:       chargerID,
		connectorID:     connectorID,
		startTime:       now,
		lastUpdate:      now,
		vehicleMaxPower: max(0, vehicleMaxPower),
		state:           SessionStateActive,
	}
}

func (s *Session) ID() string        { return s.id }
func (s *Session) ChargerID() string { return s.chargerID }
func (s *Session) ConnectorID() int  { return s.connectorID }

// ConnectorKey identifies the physical slot this session occupies.
func (s *Session) ConnectorKey() string {
	return ConnectorKey(s.chargerID, s.connectorID)
}

// ConnectorKey builds the composite (charger, connector) index key.
func ConnectorKey(chargerID string, connectorID int) string {
	return fmt.Sprintf("%s_%d", chargerID, connectorID)
}

func (s *Session) VehicleMaxPower() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vehicleMaxPower
}

func (s *Session) AllocatedPower() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allocatedPower
}

func (s *Session) ConsumedPower() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consumedPower
}

func (s *Session) TotalEnergy() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalEnergy
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// SetAllocatedPower records the load manager's decision. Negative
// inputs clamp to zero.
func (s *Session) SetAllocatedPower(kw float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocatedPower = max(0, kw)
	s.lastUpdate = time.Now()
}

// ApplyPowerUpdate integrates consumed energy since the previous update
// and overwrites the reported consumption and vehicle capability in one
// critical section, so a concurrent reader never sees a half-applied
// update.
func (s *Session) ApplyPowerUpdate(consumedPower, vehicleMaxPower float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	hours := now.Sub(s.lastUpdate).Hours()
	if hours > 0 {
		s.totalEnergy += max(0, consumedPower) * hours
	}
	s.consumedPower = max(0, consumedPower)
	s.vehicleMaxPower = max(0, vehicleMaxPower)
	s.lastUpdate = now
}

func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.lastUpdate = time.Now()
}

// View returns a consistent copy of all session fields.
func (s *Session) View() SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionView{
		SessionID:       s.id,
		ChargerID:       s.chargerID,
		ConnectorID:     s.connectorID,
		VehicleMaxPower: s.vehicleMaxPower,
		AllocatedPower:  s.allocatedPower,
		ConsumedPower:   s.consumedPower,
		TotalEnergy:     s.totalEnergy,
		State:           s.state,
		StartTime:       s.startTime,
		LastUpdate:      s.lastUpdate,
	}
}

func (s *Session) String() string {
	v := s.View()
	return fmt.Sprintf("Session{id=%s charger=%s connector=%d vehicleMax=%.1fkW allocated=%.1fkW consumed=%.1fkW energy=%.2fkWh state=%s}",
		v.SessionID, v.ChargerID, v.ConnectorID, v.VehicleMaxPower, v.AllocatedPower, v.ConsumedPower, v.TotalEnergy, v.State)
}
