package loadmgr

import (
	"encoding/json"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/gridwatt/stationd/internal/adapter/queue"
	"github.com/gridwatt/stationd/internal/domain"
	"github.com/gridwatt/stationd/internal/mocks"
	"github.com/gridwatt/stationd/internal/service/bess"
	sessionsvc "github.com/gridwatt/stationd/internal/service/session"
)

const tolerance = 0.05

func approx(got, want float64) bool {
	return math.Abs(got-want) <= tolerance
}

// buildManager wires a real registry and battery controller around the
// given station, with a mock queue capturing allocation events.
func buildManager(station *domain.StationConfig) (*Manager, *sessionsvc.Manager, *bess.Controller, *mocks.MockMessageQueue) {
	logger := zap.NewNop()
	sessions := sessionsvc.NewManager(station, logger)
	battery := bess.NewController(station.Battery, logger)
	mq := mocks.NewMockMessageQueue()
	return NewManager(station, sessions, battery, mq, logger), sessions, battery, mq
}

// Two 150 kW vehicles on a 200 kW charger: the charger rating is the
// binding constraint and both sessions share it equally.
func TestRecompute_ChargerLimitSplitsEqually(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 400,
		Chargers:     []domain.ChargerConfig{{ID: "CP001", MaxPowerKW: 200, Connectors: 2}},
	}
	m, sessions, _, _ := buildManager(station)

	a, _ := sessions.StartSession("CP001", 1, 150)
	b, _ := sessions.StartSession("CP001", 2, 150)

	allocations := m.Recompute()

	if !approx(allocations[a.ID()], 100) || !approx(allocations[b.ID()], 100) {
		t.Errorf("Expected 100 kW each, got %f and %f", allocations[a.ID()], allocations[b.ID()])
	}

	viewA, _ := sessions.GetSession(a.ID())
	if !approx(viewA.AllocatedPower, 100) {
		t.Errorf("Allocation not committed to session: %f", viewA.AllocatedPower)
	}
}

// Three then four 200 kW vehicles against a 400 kW grid connection:
// the grid budget (392 kW after static load and safety margin) is
// shared equally, and the shares shrink when the fourth joins.
func TestRecompute_GridBudgetSharedEqually(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 400,
		Chargers:     []domain.ChargerConfig{{ID: "CP001", MaxPowerKW: 500, Connectors: 4}},
	}
	m, sessions, _, _ := buildManager(station)

	var ids []string
	for connector := 1; connector <= 3; connector++ {
		s, err := sessions.StartSession("CP001", connector, 200)
		if err != nil {
			t.Fatalf("StartSession failed: %v", err)
		}
		ids = append(ids, s.ID())
	}

	allocations := m.Recompute()
	for _, id := range ids {
		if !approx(allocations[id], 392.0/3) {
			t.Errorf("3 sessions: expected %f kW, got %f", 392.0/3, allocations[id])
		}
	}

	fourth, _ := sessions.StartSession("CP001", 4, 200)
	ids = append(ids, fourth.ID())

	allocations = m.Recompute()
	for _, id := range ids {
		if !approx(allocations[id], 98) {
			t.Errorf("4 sessions: expected 98 kW, got %f", allocations[id])
		}
	}
}

// Four 150 kW vehicles against a 400 kW grid with a battery able to
// sustain 100 kW: the pooled budget is 492 kW, each session gets 123 kW
// and the battery shaves the 95 kW peak above the grid connection.
func TestRecompute_BatteryExtendsBudgetAndShavesPeak(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 400,
		Chargers: []domain.ChargerConfig{
			{ID: "CP001", MaxPowerKW: 350, Connectors: 2},
			{ID: "CP002", MaxPowerKW: 350, Connectors: 2},
		},
		Battery: &domain.BatteryConfig{CapacityKWh: 200, PowerKW: 100},
	}
	m, sessions, battery, _ := buildManager(station)

	for _, slot := range []struct {
		charger   string
		connector int
	}{
		{"CP001", 1}, {"CP001", 2}, {"CP002", 1}, {"CP002", 2},
	} {
		if _, err := sessions.StartSession(slot.charger, slot.connector, 150); err != nil {
			t.Fatalf("StartSession failed: %v", err)
		}
	}

	allocations := m.Recompute()

	var total float64
	for id, kw := range allocations {
		if !approx(kw, 123) {
			t.Errorf("Session %s: expected 123 kW, got %f", id, kw)
		}
		total += kw
	}
	if !approx(total, 492) {
		t.Errorf("Expected 492 kW total, got %f", total)
	}

	// Realized load 495 kW exceeds the 400 kW grid connection; the
	// battery covers the difference.
	if got := battery.CurrentPower(); !approx(got, 95) {
		t.Errorf("Expected 95 kW discharge, got %f", got)
	}
	if battery.SOC() >= 200 {
		t.Error("Expected SOC to drop after peak shaving")
	}
}

func TestRecompute_EmptySnapshotIdlesBattery(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 400,
		Chargers:     []domain.ChargerConfig{{ID: "CP001", MaxPowerKW: 200, Connectors: 2}},
	}
	logger := zap.NewNop()
	sessions := sessionsvc.NewManager(station, logger)
	battery := &mocks.MockBatteryController{Available: true, CapacityKWh: 100, MaxPowerKW: 50}
	m := NewManager(station, sessions, battery, mocks.NewMockMessageQueue(), logger)

	allocations := m.Recompute()

	if len(allocations) != 0 {
		t.Errorf("Expected empty allocation map, got %d entries", len(allocations))
	}
	if battery.SetIdleCalls != 1 {
		t.Errorf("Expected battery idled once, got %d", battery.SetIdleCalls)
	}
}

func TestRecompute_ZeroVehicleMaxGetsExactlyZero(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 400,
		Chargers:     []domain.ChargerConfig{{ID: "CP001", MaxPowerKW: 200, Connectors: 2}},
	}
	m, sessions, _, _ := buildManager(station)

	idle, _ := sessions.StartSession("CP001", 1, 0)
	active, _ := sessions.StartSession("CP001", 2, 150)

	allocations := m.Recompute()

	if allocations[idle.ID()] != 0 {
		t.Errorf("Zero-capability vehicle must get exactly 0, got %f", allocations[idle.ID()])
	}
	if !approx(allocations[active.ID()], 150) {
		t.Errorf("Expected 150 kW for the active vehicle, got %f", allocations[active.ID()])
	}
}

func TestRecompute_SingleSessionCappedByChargerAndGrid(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 400,
		Chargers:     []domain.ChargerConfig{{ID: "CP001", MaxPowerKW: 350, Connectors: 1}},
	}
	m, sessions, _, _ := buildManager(station)

	s, _ := sessions.StartSession("CP001", 1, 1000)

	allocations := m.Recompute()

	// Vehicle wants 1000 kW; the charger rating is the binding cap.
	if !approx(allocations[s.ID()], 350) {
		t.Errorf("Expected 350 kW, got %f", allocations[s.ID()])
	}
}

func TestRecompute_NoBudgetAllocatesZero(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 5, // below static load + safety margin
		Chargers:     []domain.ChargerConfig{{ID: "CP001", MaxPowerKW: 200, Connectors: 2}},
	}
	m, sessions, _, _ := buildManager(station)

	s, _ := sessions.StartSession("CP001", 1, 150)

	allocations := m.Recompute()

	if allocations[s.ID()] != 0 {
		t.Errorf("Expected 0 kW with no budget, got %f", allocations[s.ID()])
	}
}

func TestRecompute_InvariantsHold(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 300,
		Chargers: []domain.ChargerConfig{
			{ID: "CP001", MaxPowerKW: 150, Connectors: 2},
			{ID: "CP002", MaxPowerKW: 100, Connectors: 1},
		},
		Battery: &domain.BatteryConfig{CapacityKWh: 50, PowerKW: 25},
	}
	m, sessions, battery, _ := buildManager(station)

	sessions.StartSession("CP001", 1, 120)
	sessions.StartSession("CP001", 2, 40)
	sessions.StartSession("CP002", 1, 200)

	allocations := m.Recompute()

	budget := 300 - 3 - 5 + battery.MaxPower()
	var total float64
	for _, view := range sessions.Snapshot() {
		kw := allocations[view.SessionID]
		if kw < 0 {
			t.Errorf("Negative allocation for %s: %f", view.SessionID, kw)
		}
		if kw > view.VehicleMaxPower+tolerance {
			t.Errorf("Allocation %f exceeds vehicle max %f", kw, view.VehicleMaxPower)
		}
		total += kw
	}
	if total > budget+tolerance {
		t.Errorf("Total %f exceeds budget %f", total, budget)
	}

	for chargerID, views := range sessions.SessionsByCharger() {
		charger := station.ChargerByID(chargerID)
		var sum float64
		for _, v := range views {
			sum += allocations[v.SessionID]
		}
		if sum > charger.MaxPowerKW+tolerance {
			t.Errorf("Charger %s sum %f exceeds rating %f", chargerID, sum, charger.MaxPowerKW)
		}
	}
}

func TestRecompute_IsIdempotentForStableSessions(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 400,
		Chargers:     []domain.ChargerConfig{{ID: "CP001", MaxPowerKW: 200, Connectors: 2}},
	}
	m, sessions, _, _ := buildManager(station)

	sessions.StartSession("CP001", 1, 150)
	sessions.StartSession("CP001", 2, 150)

	first := m.Recompute()
	second := m.Recompute()

	for id, kw := range first {
		if math.Abs(second[id]-kw) > tolerance {
			t.Errorf("Allocations drifted between runs: %f then %f", kw, second[id])
		}
	}
}

func TestRecompute_ValleyFillChargesBattery(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 400,
		Chargers:     []domain.ChargerConfig{{ID: "CP001", MaxPowerKW: 200, Connectors: 2}},
	}
	logger := zap.NewNop()
	sessions := sessionsvc.NewManager(station, logger)
	battery := &mocks.MockBatteryController{
		Available:              true,
		CapacityKWh:            100,
		MaxPowerKW:             50,
		AvailableDischargeFunc: func() float64 { return 50 },
	}
	m := NewManager(station, sessions, battery, mocks.NewMockMessageQueue(), logger)

	sessions.StartSession("CP001", 1, 50)

	m.Recompute()

	// Realized load 53 kW is below 70% of the 400 kW connection; half
	// the 347 kW surplus is offered to the battery.
	if len(battery.ChargeCalls) != 1 {
		t.Fatalf("Expected one charge call, got %d", len(battery.ChargeCalls))
	}
	if !approx(battery.ChargeCalls[0], 173.5) {
		t.Errorf("Expected 173.5 kW charge request, got %f", battery.ChargeCalls[0])
	}
}

func TestRecompute_PublishesAllocationEvent(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 400,
		Chargers:     []domain.ChargerConfig{{ID: "CP001", MaxPowerKW: 200, Connectors: 2}},
	}
	m, sessions, _, mq := buildManager(station)

	s, _ := sessions.StartSession("CP001", 1, 150)

	m.Recompute()

	messages := mq.GetPublishedMessages(queue.SubjectAllocationUpdated)
	if len(messages) != 1 {
		t.Fatalf("Expected 1 allocation event, got %d", len(messages))
	}

	var event struct {
		StationID   string             `json:"station_id"`
		Allocations map[string]float64 `json:"allocations_kw"`
	}
	if err := json.Unmarshal(messages[0], &event); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if event.StationID != "TEST" {
		t.Errorf("Expected station TEST, got %s", event.StationID)
	}
	if _, ok := event.Allocations[s.ID()]; !ok {
		t.Error("Event missing session allocation")
	}
}

func TestRecompute_CachesLastAllocations(t *testing.T) {
	station := &domain.StationConfig{
		StationID:    "TEST",
		GridCapacity: 400,
		Chargers:     []domain.ChargerConfig{{ID: "CP001", MaxPowerKW: 200, Connectors: 2}},
	}
	m, sessions, _, _ := buildManager(station)

	if !m.LastAllocationTime().IsZero() {
		t.Error("Expected zero allocation time before first run")
	}

	s, _ := sessions.StartSession("CP001", 1, 150)
	computed := m.Recompute()

	cached := m.LastAllocations()
	if cached[s.ID()] != computed[s.ID()] {
		t.Errorf("Cache mismatch: %f vs %f", cached[s.ID()], computed[s.ID()])
	}
	if m.LastAllocationTime().IsZero() {
		t.Error("Expected allocation time to be set")
	}

	// The returned map is a copy.
	cached[s.ID()] = -1
	if m.LastAllocations()[s.ID()] == -1 {
		t.Error("LastAllocations must return a defensive copy")
	}
}
