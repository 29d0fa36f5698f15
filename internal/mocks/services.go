package mocks

import (
	"time"

	"github.com/gridwatt/stationd/internal/domain"
)

// MockSessionRegistry is a mock implementation of ports.SessionRegistry
type MockSessionRegistry struct {
	StartSessionFunc         func(chargerID string, connectorID int, vehicleMaxPower float64) (*domain.Session, error)
	StopSessionFunc          func(sessionID string) (domain.SessionView, error)
	UpdateSessionPowerFunc   func(sessionID string, consumedPower, vehicleMaxPower float64) (domain.SessionView, error)
	SetAllocatedPowerFunc    func(sessionID string, kw float64) bool
	GetSessionFunc           func(sessionID string) (domain.SessionView, bool)
	SnapshotFunc             func() []domain.SessionView
	SessionsByChargerFunc    func() map[string][]domain.SessionView
	IsConnectorAvailableFunc func(chargerID string, connectorID int) bool
	ActiveCountFunc          func() int
	TotalAllocatedPowerFunc  func() float64
	TotalConsumedPowerFunc   func() float64
	TotalEnergyFunc          func() float64
}

func (m *MockSessionRegistry) StartSession(chargerID string, connectorID int, vehicleMaxPower float64) (*domain.Session, error) {
	if m.StartSessionFunc != nil {
		return m.StartSessionFunc(chargerID, connectorID, vehicleMaxPower)
	}
	return nil, domain.ErrUnknownCharger
}

func (m *MockSessionRegistry) StopSession(sessionID string) (domain.SessionView, error) {
	if m.StopSessionFunc != nil {
		return m.StopSessionFunc(sessionID)
	}
	return domain.SessionView{}, domain.ErrSessionNotFound
}

func (m *MockSessionRegistry) UpdateSessionPower(sessionID string, consumedPower, vehicleMaxPower float64) (domain.SessionView, error) {
	if m.UpdateSessionPowerFunc != nil {
		return m.UpdateSessionPowerFunc(sessionID, consumedPower, vehicleMaxPower)
	}
	return domain.SessionView{}, domain.ErrSessionNotFound
}

func (m *MockSessionRegistry) SetAllocatedPower(sessionID string, kw float64) bool {
	if m.SetAllocatedPowerFunc != nil {
		return m.SetAllocatedPowerFunc(sessionID, kw)
	}
	return false
}

func (m *MockSessionRegistry) GetSession(sessionID string) (domain.SessionView, bool) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(sessionID)
	}
	return domain.SessionView{}, false
}

func (m *MockSessionRegistry) Snapshot() []domain.SessionView {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc()
	}
	return nil
}

func (m *MockSessionRegistry) SessionsByCharger() map[string][]domain.SessionView {
	if m.SessionsByChargerFunc != nil {
		return m.SessionsByChargerFunc()
	}
	return nil
}

func (m *MockSessionRegistry) IsConnectorAvailable(chargerID string, connectorID int) bool {
	if m.IsConnectorAvailableFunc != nil {
		return m.IsConnectorAvailableFunc(chargerID, connectorID)
	}
	return true
}

func (m *MockSessionRegistry) ActiveCount() int {
	if m.ActiveCountFunc != nil {
		return m.ActiveCountFunc()
	}
	return 0
}

func (m *MockSessionRegistry) TotalAllocatedPower() float64 {
	if m.TotalAllocatedPowerFunc != nil {
		return m.TotalAllocatedPowerFunc()
	}
	return 0
}

func (m *MockSessionRegistry) TotalConsumedPower() float64 {
	if m.TotalConsumedPowerFunc != nil {
		return m.TotalConsumedPowerFunc()
	}
	return 0
}

func (m *MockSessionRegistry) TotalEnergy() float64 {
	if m.TotalEnergyFunc != nil {
		return m.TotalEnergyFunc()
	}
	return 0
}

// MockBatteryController is a mock implementation of ports.BatteryController
type MockBatteryController struct {
	Available                 bool
	AvailableDischargeFunc    func() float64
	AvailableChargeFunc       func() float64
	DischargeFunc             func(requestedKW, durationSeconds float64) float64
	ChargeFunc                func(requestedKW, durationSeconds float64) float64
	SetIdleFunc               func()
	CalculateOptimalPowerFunc func(gridLoad, gridCapacity, safetyMargin float64) float64
	SOCFunc                   func() float64
	CapacityKWh               float64
	MaxPowerKW                float64
	CurrentPowerKW            float64

	SetIdleCalls   int
	DischargeCalls []float64
	ChargeCalls    []float64
}

func (m *MockBatteryController) IsAvailable() bool { return m.Available }

func (m *MockBatteryController) AvailableDischarge() float64 {
	if m.AvailableDischargeFunc != nil {
		return m.AvailableDischargeFunc()
	}
	return 0
}

func (m *MockBatteryController) AvailableCharge() float64 {
	if m.AvailableChargeFunc != nil {
		return m.AvailableChargeFunc()
	}
	return 0
}

func (m *MockBatteryController) Discharge(requestedKW, durationSeconds float64) float64 {
	m.DischargeCalls = append(m.DischargeCalls, requestedKW)
	if m.DischargeFunc != nil {
		return m.DischargeFunc(requestedKW, durationSeconds)
	}
	return requestedKW
}

func (m *MockBatteryController) Charge(requestedKW, durationSeconds float64) float64 {
	m.ChargeCalls = append(m.ChargeCalls, requestedKW)
	if m.ChargeFunc != nil {
		return m.ChargeFunc(requestedKW, durationSeconds)
	}
	return requestedKW
}

func (m *MockBatteryController) SetIdle() {
	m.SetIdleCalls++
	if m.SetIdleFunc != nil {
		m.SetIdleFunc()
	}
}

func (m *MockBatteryController) CalculateOptimalPower(gridLoad, gridCapacity, safetyMargin float64) float64 {
	if m.CalculateOptimalPowerFunc != nil {
		return m.CalculateOptimalPowerFunc(gridLoad, gridCapacity, safetyMargin)
	}
	return 0
}

func (m *MockBatteryController) SOC() float64 {
	if m.SOCFunc != nil {
		return m.SOCFunc()
	}
	return m.CapacityKWh
}

func (m *MockBatteryController) SOCPercentage() float64 {
	if m.CapacityKWh <= 0 {
		return 0
	}
	return m.SOC() / m.CapacityKWh * 100
}

func (m *MockBatteryController) Capacity() float64 { return m.CapacityKWh }

func (m *MockBatteryController) MaxPower() float64 { return m.MaxPowerKW }

func (m *MockBatteryController) CurrentPower() float64 { return m.CurrentPowerKW }

func (m *MockBatteryController) IsEmergencyState() bool {
	return m.SOC() <= m.CapacityKWh*0.05
}

func (m *MockBatteryController) LastUpdate() time.Time { return time.Now() }

// MockLoadManager is a mock implementation of ports.LoadManager
type MockLoadManager struct {
	RecomputeFunc          func() map[string]float64
	LastAllocationsFunc    func() map[string]float64
	LastAllocationTimeFunc func() time.Time

	RecomputeCalls int
}

func (m *MockLoadManager) Recompute() map[string]float64 {
	m.RecomputeCalls++
	if m.RecomputeFunc != nil {
		return m.RecomputeFunc()
	}
	return map[string]float64{}
}

func (m *MockLoadManager) LastAllocations() map[string]float64 {
	if m.LastAllocationsFunc != nil {
		return m.LastAllocationsFunc()
	}
	return map[string]float64{}
}

func (m *MockLoadManager) LastAllocationTime() time.Time {
	if m.LastAllocationTimeFunc != nil {
		return m.LastAllocationTimeFunc()
	}
	return time.Time{}
}
