package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gridwatt/stationd/internal/ports"
	"github.com/gridwatt/stationd/internal/service/station"
)

type StationHandler struct {
	station *station.Service
	loads   ports.LoadManager
	log     *zap.Logger
}

func NewStationHandler(stationService *station.Service, loads ports.LoadManager, log *zap.Logger) *StationHandler {
	return &StationHandler{
		station: stationService,
		loads:   loads,
		log:     log,
	}
}

// Status returns the complete station state: sessions, allocations,
// grid utilization and the battery block when one is configured.
func (h *StationHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.station.Status())
}

// LoadSummary returns allocation totals and the Jain fairness index.
func (h *StationHandler) LoadSummary(c *fiber.Ctx) error {
	return c.JSON(h.station.LoadSummary())
}

// Battery returns the detailed battery view.
func (h *StationHandler) Battery(c *fiber.Ctx) error {
	return c.JSON(h.station.BatteryStatus())
}

// Config returns the immutable station topology.
func (h *StationHandler) Config(c *fiber.Ctx) error {
	return c.JSON(h.station.Config())
}

// Recompute forces an allocation run. Useful for testing and external
// system integration.
func (h *StationHandler) Recompute(c *fiber.Ctx) error {
	h.log.Info("Manual load recomputation triggered")

	allocations := h.loads.Recompute()

	var total float64
	for _, kw := range allocations {
		total += kw
	}

	return c.JSON(fiber.Map{
		"success":              true,
		"allocations_computed": len(allocations),
		"allocations_kw":       allocations,
		"total_allocated_kw":   total,
		"timestamp":            time.Now(),
	})
}

// Health reports liveness for monitoring and load balancing.
func (h *StationHandler) Health(c *fiber.Ctx) error {
	return c.JSON(h.station.Health())
}
