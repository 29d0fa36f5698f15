package domain

import (
	"sync"
	"testing"
	"time"
)

func TestNewSession_Defaults(t *testing.T) {
	s := NewSession("session_1", "CP001", 1, 150)

	if s.ID() != "session_1" {
		t.Errorf("Expected id session_1, got %s", s.ID())
	}
	if s.State() != SessionStateActive {
		t.Errorf("Expected ACTIVE state, got %s", s.State())
	}
	if s.AllocatedPower() != 0 {
		t.Errorf("Expected zero initial allocation, got %f", s.AllocatedPower())
	}
	if s.TotalEnergy() != 0 {
		t.Errorf("Expected zero initial energy, got %f", s.TotalEnergy())
	}
	if s.ConnectorKey() != "CP001_1" {
		t.Errorf("Expected connector key CP001_1, got %s", s.ConnectorKey())
	}
}

func TestNewSession_NegativeVehicleMaxClampsToZero(t *testing.T) {
	s := NewSession("session_1", "CP001", 1, -50)

	if s.VehicleMaxPower() != 0 {
		t.Errorf("Expected clamped vehicle max 0, got %f", s.VehicleMaxPower())
	}
}

func TestSession_SetAllocatedPowerClampsNegative(t *testing.T) {
	s := NewSession("session_1", "CP001", 1, 150)

	s.SetAllocatedPower(-10)

	if s.AllocatedPower() != 0 {
		t.Errorf("Expected allocation clamped to 0, got %f", s.AllocatedPower())
	}
}

func TestSession_ApplyPowerUpdateIntegratesEnergy(t *testing.T) {
	s := NewSession("session_1", "CP001", 1, 150)

	time.Sleep(10 * time.Millisecond)
	s.ApplyPowerUpdate(100, 150)
	first := s.TotalEnergy()
	if first <= 0 {
		t.Fatalf("Expected positive energy after consuming 100 kW, got %f", first)
	}

	time.Sleep(10 * time.Millisecond)
	s.ApplyPowerUpdate(100, 150)
	second := s.TotalEnergy()
	if second <= first {
		t.Errorf("Expected energy to grow monotonically: %f then %f", first, second)
	}
}

func TestSession_ApplyPowerUpdateZeroConsumptionAddsNoEnergy(t *testing.T) {
	s := NewSession("session_1", "CP001", 1, 150)

	time.Sleep(5 * time.Millisecond)
	s.ApplyPowerUpdate(0, 150)

	if s.TotalEnergy() != 0 {
		t.Errorf("Expected no energy for zero consumption, got %f", s.TotalEnergy())
	}
}

func TestSession_ViewIsConsistentUnderConcurrency(t *testing.T) {
	s := NewSession("session_1", "CP001", 1, 150)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.ApplyPowerUpdate(100, 150)
				s.SetAllocatedPower(120)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v := s.View()
				if v.ConsumedPower > v.VehicleMaxPower {
					t.Errorf("Inconsistent view: consumed %f > vehicle max %f", v.ConsumedPower, v.VehicleMaxPower)
				}
			}
		}()
	}
	wg.Wait()
}

func TestConnectorKey(t *testing.T) {
	if got := ConnectorKey("CP002", 2); got != "CP002_2" {
		t.Errorf("Expected CP002_2, got %s", got)
	}
}
