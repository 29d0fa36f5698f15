package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridwatt/stationd/internal/domain"
	"github.com/gridwatt/stationd/internal/ports"
)

// Manager is the in-memory session registry. It holds the session map
// and the connector index under one lock so start/stop publish both
// entries atomically: no observer ever sees a connector bound to a
// session that is not registered, or the other way around.
type Manager struct {
	station *domain.StationConfig
	log     *zap.Logger

	mu                 sync.RWMutex
	sessions           map[string]*domain.Session
	connectorToSession map[string]string
}

func NewManager(station *domain.StationConfig, log *zap.Logger) *Manager {
	return &Manager{
		station:            station,
		log:                log,
		sessions:           make(map[string]*domain.Session),
		connectorToSession: make(map[string]string),
	}
}

var _ ports.SessionRegistry = (*Manager)(nil)

// StartSession validates the slot against the station topology, then
// atomically publishes the new session in both indexes.
func (m *Manager) StartSession(chargerID string, connectorID int, vehicleMaxPower float64) (*domain.Session, error) {
	charger := m.station.ChargerByID(chargerID)
	if charger == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCharger, chargerID)
	}
	if connectorID < 1 || connectorID > charger.Connectors {
		return nil, fmt.Errorf("%w: %s/%d", domain.ErrInvalidConnector, chargerID, connectorID)
	}

	connectorKey := domain.ConnectorKey(chargerID, connectorID)
	sessionID := generateSessionID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, occupied := m.connectorToSession[connectorKey]; occupied {
		m.log.Warn("Connector already occupied",
			zap.String("charger_id", chargerID),
			zap.Int("connector_id", connectorID),
		)
		return nil, fmt.Errorf("%w: %s", domain.ErrConnectorOccupied, connectorKey)
	}
	if _, exists := m.sessions[sessionID]; exists {
		// UUID collision is practically impossible; fail loudly rather
		// than overwrite a live session.
		m.log.Error("Session id collision", zap.String("session_id", sessionID))
		return nil, domain.ErrSessionIDCollision
	}

	s := domain.NewSession(sessionID, chargerID, connectorID, vehicleMaxPower)
	m.sessions[sessionID] = s
	m.connectorToSession[connectorKey] = sessionID

	m.log.Info("Session started",
		zap.String("session_id", sessionID),
		zap.String("charger_id", chargerID),
		zap.Int("connector_id", connectorID),
		zap.Float64("vehicle_max_kw", vehicleMaxPower),
	)
	return s, nil
}

// StopSession removes the session from both indexes and marks it
// STOPPING. Further mutations via this id are rejected.
func (m *Manager) StopSession(sessionID string) (domain.SessionView, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return domain.SessionView{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	delete(m.sessions, sessionID)
	delete(m.connectorToSession, s.ConnectorKey())
	m.mu.Unlock()

	s.SetState(domain.SessionStateStopping)
	view := s.View()

	m.log.Info("Session stopped",
		zap.String("session_id", sessionID),
		zap.String("charger_id", view.ChargerID),
		zap.Int("connector_id", view.ConnectorID),
		zap.Float64("total_energy_kwh", view.TotalEnergy),
	)
	return view, nil
}

// UpdateSessionPower applies a charger power report. Negative values or
// consumption above the reported vehicle capability are rejected and
// leave the session untouched.
func (m *Manager) UpdateSessionPower(sessionID string, consumedPower, vehicleMaxPower float64) (domain.SessionView, error) {
	if consumedPower < 0 || vehicleMaxPower < 0 || consumedPower > vehicleMaxPower {
		return domain.SessionView{}, fmt.Errorf("%w: consumed=%.1fkW vehicleMax=%.1fkW",
			domain.ErrInvalidPowerUpdate, consumedPower, vehicleMaxPower)
	}

	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return domain.SessionView{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	s.ApplyPowerUpdate(consumedPower, vehicleMaxPower)
	view := s.View()

	m.log.Debug("Session power updated",
		zap.String("session_id", sessionID),
		zap.Float64("consumed_kw", consumedPower),
		zap.Float64("vehicle_max_kw", vehicleMaxPower),
		zap.Float64("total_energy_kwh", view.TotalEnergy),
	)
	return view, nil
}

// SetAllocatedPower is called by the load manager when committing an
// allocation. A session stopped mid-computation is simply skipped.
func (m *Manager) SetAllocatedPower(sessionID string, kw float64) bool {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	s.SetAllocatedPower(kw)
	return true
}

func (m *Manager) GetSession(sessionID string) (domain.SessionView, bool) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return domain.SessionView{}, false
	}
	return s.View(), true
}

// Snapshot returns a consistent copy of every active session, ordered
// by session id so allocation runs are deterministic for a fixed set.
func (m *Manager) Snapshot() []domain.SessionView {
	m.mu.RLock()
	views := make([]domain.SessionView, 0, len(m.sessions))
	for _, s := range m.sessions {
		views = append(views, s.View())
	}
	m.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool { return views[i].SessionID < views[j].SessionID })
	return views
}

// SessionsByCharger groups the current snapshot by charger id.
func (m *Manager) SessionsByCharger() map[string][]domain.SessionView {
	grouped := make(map[string][]domain.SessionView)
	for _, v := range m.Snapshot() {
		grouped[v.ChargerID] = append(grouped[v.ChargerID], v)
	}
	return grouped
}

func (m *Manager) IsConnectorAvailable(chargerID string, connectorID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, occupied := m.connectorToSession[domain.ConnectorKey(chargerID, connectorID)]
	return !occupied
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) TotalAllocatedPower() float64 {
	var total float64
	for _, v := range m.Snapshot() {
		total += v.AllocatedPower
	}
	return total
}

func (m *Manager) TotalConsumedPower() float64 {
	var total float64
	for _, v := range m.Snapshot() {
		total += v.ConsumedPower
	}
	return total
}

func (m *Manager) TotalEnergy() float64 {
	var total float64
	for _, v := range m.Snapshot() {
		total += v.TotalEnergy
	}
	return total
}

func generateSessionID() string {
	return "session_" + uuid.New().String()
}
