package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/gridwatt/stationd/internal/adapter/http/fiber/handlers"
	"github.com/gridwatt/stationd/internal/adapter/http/fiber/middleware"
	"github.com/gridwatt/stationd/internal/adapter/queue"
	wsAdapter "github.com/gridwatt/stationd/internal/adapter/websocket"
	"github.com/gridwatt/stationd/internal/observability/telemetry"
	"github.com/gridwatt/stationd/internal/service/bess"
	"github.com/gridwatt/stationd/internal/service/loadmgr"
	sessionsvc "github.com/gridwatt/stationd/internal/service/session"
	"github.com/gridwatt/stationd/internal/service/station"
	"github.com/gridwatt/stationd/pkg/config"
)

const serviceName = "stationd"

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	stationConfig := cfg.Station.Domain()
	logger.Info("Starting station energy manager",
		zap.String("service", serviceName),
		zap.String("version", cfg.App.Version),
		zap.String("station_id", stationConfig.StationID),
		zap.Float64("grid_capacity_kw", stationConfig.GridCapacity),
		zap.Bool("battery", stationConfig.Battery != nil),
	)

	// 3. Initialize OpenTelemetry (optional)
	if cfg.OpenTelemetry.Enabled {
		tracerProvider, err := telemetry.InitTracer(serviceName, cfg.OpenTelemetry.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 4. Initialize Message Queue (NATS, or in-memory when unset)
	var messageQueue queue.MessageQueue
	if cfg.NATS.URL != "" {
		messageQueue, err = queue.NewNATSQueue(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
	} else {
		messageQueue = queue.NewMemoryQueue(logger)
	}
	defer messageQueue.Close()

	// 5. Initialize Services (Business Logic Layer)
	sessionManager := sessionsvc.NewManager(stationConfig, logger)
	batteryController := bess.NewController(stationConfig.Battery, logger)
	loadManager := loadmgr.NewManager(stationConfig, sessionManager, batteryController, messageQueue, logger)
	stationService := station.NewService(stationConfig, sessionManager, loadManager, batteryController, logger)

	// 6. Initialize WebSocket Hub and bridge allocation events into it
	wsHub := wsAdapter.NewHub()
	go wsHub.Run()
	if err := messageQueue.Subscribe(queue.SubjectAllocationUpdated, func(data []byte) error {
		wsHub.Broadcast(data)
		return nil
	}); err != nil {
		logger.Error("Failed to subscribe to allocation events", zap.Error(err))
	}

	// 7. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	// Global Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins(cfg.HTTP.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(middleware.CircuitBreaker(logger))

	// Health Check Endpoints
	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		return c.SendString("Ready")
	})

	// Metrics endpoint for Prometheus
	if cfg.Prometheus.Enabled {
		app.Get(cfg.Prometheus.Path, func(c *fiber.Ctx) error {
			handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
			handler(c.Context())
			return nil
		})
	}

	// API v1 Routes
	v1 := app.Group("/api/v1")

	sessionHandler := handlers.NewSessionHandler(sessionManager, loadManager, messageQueue, logger)
	v1.Post("/sessions", sessionHandler.Start)
	v1.Post("/sessions/:id/power-update", sessionHandler.UpdatePower)
	v1.Post("/sessions/:id/stop", sessionHandler.Stop)
	v1.Get("/sessions/:id", sessionHandler.Get)
	v1.Get("/sessions", sessionHandler.List)

	stationHandler := handlers.NewStationHandler(stationService, loadManager, logger)
	v1.Get("/station/status", stationHandler.Status)
	v1.Get("/station/load-summary", stationHandler.LoadSummary)
	v1.Get("/station/battery", stationHandler.Battery)
	v1.Get("/station/config", stationHandler.Config)
	v1.Post("/station/recompute", stationHandler.Recompute)
	v1.Get("/station/health", stationHandler.Health)

	// WebSocket route for real-time allocation updates
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/updates", websocket.New(func(c *websocket.Conn) {
		wsHub.AddClient(c)
	}))

	// 8. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

func allowedOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ",")
}
