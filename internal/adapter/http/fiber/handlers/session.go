package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gridwatt/stationd/internal/adapter/queue"
	"github.com/gridwatt/stationd/internal/domain"
	"github.com/gridwatt/stationd/internal/observability/telemetry"
	"github.com/gridwatt/stationd/internal/ports"
)

// Session lifecycle statuses exposed on the wire.
const (
	StatusSessionStarted     = "SESSION_STARTED"
	StatusInvalidCharger     = "INVALID_CHARGER_OR_CONNECTOR"
	StatusConnectorOccupied  = "CONNECTOR_OCCUPIED"
	StatusSessionStartFailed = "SESSION_START_FAILED"
	StatusPowerUpdated       = "POWER_UPDATED"
	StatusSessionNotFound    = "SESSION_NOT_FOUND"
	StatusInvalidConsumed    = "INVALID_CONSUMED_POWER"
	StatusOK                 = "OK"
)

type SessionHandler struct {
	sessions ports.SessionRegistry
	loads    ports.LoadManager
	mq       queue.MessageQueue
	log      *zap.Logger
}

func NewSessionHandler(sessions ports.SessionRegistry, loads ports.LoadManager, mq queue.MessageQueue, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		loads:    loads,
		mq:       mq,
		log:      log,
	}
}

type StartSessionRequest struct {
	ChargerID       string  `json:"charger_id"`
	ConnectorID     int     `json:"connector_id"`
	VehicleMaxPower float64 `json:"vehicle_max_power_kw"`
}

type StartSessionResponse struct {
	SessionID      string  `json:"session_id,omitempty"`
	AllocatedPower float64 `json:"allocated_power_kw"`
	TotalEnergy    float64 `json:"total_energy_kwh"`
	Status         string  `json:"status"`
}

// Start registers a session on a free connector and returns the
// post-recompute allocation. Modeled on the OCPP StartTransaction flow.
func (h *SessionHandler) Start(c *fiber.Ctx) error {
	var req StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	h.log.Info("Start session request",
		zap.String("charger_id", req.ChargerID),
		zap.Int("connector_id", req.ConnectorID),
		zap.Float64("vehicle_max_kw", req.VehicleMaxPower),
	)

	s, err := h.sessions.StartSession(req.ChargerID, req.ConnectorID, req.VehicleMaxPower)
	if err != nil {
		status := StatusSessionStartFailed
		code := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrUnknownCharger), errors.Is(err, domain.ErrInvalidConnector):
			status = StatusInvalidCharger
			code = fiber.StatusBadRequest
		case errors.Is(err, domain.ErrConnectorOccupied):
			status = StatusConnectorOccupied
			code = fiber.StatusConflict
		}
		telemetry.SessionStartsTotal.WithLabelValues(status).Inc()
		return c.Status(code).JSON(StartSessionResponse{Status: status})
	}

	// The caller sees the allocation that includes its own session.
	h.loads.Recompute()

	view, _ := h.sessions.GetSession(s.ID())
	telemetry.SessionStartsTotal.WithLabelValues(StatusSessionStarted).Inc()
	h.publishEvent(queue.SubjectSessionStarted, view)

	return c.Status(fiber.StatusCreated).JSON(StartSessionResponse{
		SessionID:      view.SessionID,
		AllocatedPower: view.AllocatedPower,
		TotalEnergy:    view.TotalEnergy,
		Status:         StatusSessionStarted,
	})
}

type PowerUpdateRequest struct {
	ConsumedPower   float64 `json:"consumed_power_kw"`
	VehicleMaxPower float64 `json:"vehicle_max_power_kw"`
}

type PowerUpdateResponse struct {
	NewAllocatedPower float64 `json:"new_allocated_power_kw"`
	TotalEnergy       float64 `json:"total_energy_kwh"`
	Status            string  `json:"status"`
}

// UpdatePower applies a charger power report and returns the
// re-balanced allocation. A rejected update echoes the current
// allocation so the charger can resynchronize.
func (h *SessionHandler) UpdatePower(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req PowerUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	current, ok := h.sessions.GetSession(sessionID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(PowerUpdateResponse{Status: StatusSessionNotFound})
	}

	if _, err := h.sessions.UpdateSessionPower(sessionID, req.ConsumedPower, req.VehicleMaxPower); err != nil {
		if errors.Is(err, domain.ErrInvalidPowerUpdate) {
			h.log.Warn("Rejected power update",
				zap.String("session_id", sessionID),
				zap.Float64("consumed_kw", req.ConsumedPower),
				zap.Float64("vehicle_max_kw", req.VehicleMaxPower),
			)
			return c.Status(fiber.StatusBadRequest).JSON(PowerUpdateResponse{
				NewAllocatedPower: current.AllocatedPower,
				TotalEnergy:       current.TotalEnergy,
				Status:            StatusInvalidConsumed,
			})
		}
		return c.Status(fiber.StatusNotFound).JSON(PowerUpdateResponse{Status: StatusSessionNotFound})
	}

	h.loads.Recompute()

	view, _ := h.sessions.GetSession(sessionID)
	return c.JSON(PowerUpdateResponse{
		NewAllocatedPower: view.AllocatedPower,
		TotalEnergy:       view.TotalEnergy,
		Status:            StatusPowerUpdated,
	})
}

type StopSessionResponse struct {
	SessionID           string    `json:"session_id"`
	ChargerID           string    `json:"charger_id,omitempty"`
	ConnectorID         int       `json:"connector_id,omitempty"`
	FinalAllocatedPower float64   `json:"final_allocated_power_kw"`
	LastConsumedPower   float64   `json:"last_consumed_power_kw"`
	TotalEnergy         float64   `json:"total_energy_kwh"`
	StopTime            time.Time `json:"stop_time"`
	Status              string    `json:"status"`
}

// Stop removes the session and re-balances the remaining ones.
func (h *SessionHandler) Stop(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	view, err := h.sessions.StopSession(sessionID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(StopSessionResponse{
			SessionID: sessionID,
			Status:    StatusSessionNotFound,
		})
	}

	h.loads.Recompute()
	h.publishEvent(queue.SubjectSessionStopped, view)

	return c.JSON(StopSessionResponse{
		SessionID:           view.SessionID,
		ChargerID:           view.ChargerID,
		ConnectorID:         view.ConnectorID,
		FinalAllocatedPower: view.AllocatedPower,
		LastConsumedPower:   view.ConsumedPower,
		TotalEnergy:         view.TotalEnergy,
		StopTime:            time.Now(),
		Status:              StatusOK,
	})
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	view, ok := h.sessions.GetSession(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": StatusSessionNotFound})
	}
	return c.JSON(view)
}

func (h *SessionHandler) List(c *fiber.Ctx) error {
	sessions := h.sessions.Snapshot()
	return c.JSON(fiber.Map{
		"sessions":           sessions,
		"total_sessions":     len(sessions),
		"total_allocated_kw": h.sessions.TotalAllocatedPower(),
		"total_consumed_kw":  h.sessions.TotalConsumedPower(),
		"total_energy_kwh":   h.sessions.TotalEnergy(),
		"timestamp":          time.Now(),
	})
}

func (h *SessionHandler) publishEvent(subject string, view domain.SessionView) {
	if h.mq == nil {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := h.mq.Publish(subject, data); err != nil {
		h.log.Warn("Failed to publish session event", zap.String("subject", subject), zap.Error(err))
	}
}
