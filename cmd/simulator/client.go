package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type apiClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func newClient(baseURL string, timeout time.Duration, log *zap.Logger) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *apiClient) waitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := c.http.Get(c.baseURL + "/health/ready")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("station did not become ready within %s", timeout)
}

type startResponse struct {
	SessionID      string  `json:"session_id"`
	AllocatedPower float64 `json:"allocated_power_kw"`
	Status         string  `json:"status"`
}

func (c *apiClient) startSession(chargerID string, connectorID int, vehicleMaxKW float64) (startResponse, error) {
	var out startResponse
	body := map[string]interface{}{
		"charger_id":           chargerID,
		"connector_id":         connectorID,
		"vehicle_max_power_kw": vehicleMaxKW,
	}
	err := c.post("/api/v1/sessions", body, &out)
	if err != nil {
		return out, err
	}
	if out.Status != "SESSION_STARTED" {
		return out, fmt.Errorf("start on %s:%d rejected: %s", chargerID, connectorID, out.Status)
	}
	return out, nil
}

type powerUpdateResponse struct {
	NewAllocatedPower float64 `json:"new_allocated_power_kw"`
	TotalEnergy       float64 `json:"total_energy_kwh"`
	Status            string  `json:"status"`
}

func (c *apiClient) updatePower(sessionID string, consumedKW, vehicleMaxKW float64) (powerUpdateResponse, error) {
	var out powerUpdateResponse
	body := map[string]interface{}{
		"consumed_power_kw":    consumedKW,
		"vehicle_max_power_kw": vehicleMaxKW,
	}
	err := c.post("/api/v1/sessions/"+sessionID+"/power-update", body, &out)
	return out, err
}

func (c *apiClient) stopSession(sessionID string) error {
	return c.post("/api/v1/sessions/"+sessionID+"/stop", map[string]interface{}{}, nil)
}

type batteryStatus struct {
	Available          bool    `json:"available"`
	SOCKWh             float64 `json:"soc_kwh"`
	SOCPercentage      float64 `json:"soc_percentage"`
	CurrentPower       float64 `json:"current_power_kw"`
	AvailableDischarge float64 `json:"available_discharge_kw"`
	EmergencyState     bool    `json:"emergency_state"`
}

func (c *apiClient) battery() (batteryStatus, error) {
	var out batteryStatus
	err := c.get("/api/v1/station/battery", &out)
	return out, err
}

type loadSummary struct {
	TotalSessions      int       `json:"total_sessions"`
	TotalAllocatedKW   float64   `json:"total_allocated_kw"`
	GridCapacityKW     float64   `json:"grid_capacity_kw"`
	GridUtilization    float64   `json:"grid_utilization"`
	JainsFairnessIndex float64   `json:"jains_fairness_index"`
	BatteryPowerKW     float64   `json:"battery_power_kw"`
	LastAllocationTime time.Time `json:"last_allocation_time"`
}

func (c *apiClient) loadSummary() (loadSummary, error) {
	var out loadSummary
	err := c.get("/api/v1/station/load-summary", &out)
	return out, err
}

func (c *apiClient) post(path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// allocationWatcher counts allocation broadcasts seen on the websocket
// so the run log shows the push channel is alive.
type allocationWatcher struct {
	count atomic.Int64
}

func (w *allocationWatcher) Count() int64 { return w.count.Load() }

func watchAllocations(wsURL string, log *zap.Logger) *allocationWatcher {
	w := &allocationWatcher{}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Warn("Websocket unavailable, continuing without push updates", zap.Error(err))
		return w
	}
	go func() {
		defer conn.Close()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			w.count.Add(1)
		}
	}()
	return w
}
