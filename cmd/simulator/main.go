// Command simulator drives a running stationd instance through the
// canonical charging scenarios and checks the allocations it returns.
// It exits non-zero when any scenario fails, so it doubles as a smoke
// test in CI against a docker-compose stack.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "stationd base URL")
	wsURL := flag.String("ws-url", "ws://localhost:8080/ws/updates", "stationd websocket URL")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client := newClient(*baseURL, *timeout, logger)

	if err := client.waitReady(30 * time.Second); err != nil {
		logger.Fatal("Station not ready", zap.Error(err))
	}

	updates := watchAllocations(*wsURL, logger)

	scenarios := []struct {
		name string
		run  func(*apiClient) error
	}{
		{"single charger split", runSingleChargerSplit},
		{"dynamic reallocation", runDynamicReallocation},
		{"battery boost under oversubscription", runBatteryBoost},
	}

	failed := 0
	for _, sc := range scenarios {
		logger.Info("Running scenario", zap.String("scenario", sc.name))
		if err := sc.run(client); err != nil {
			logger.Error("Scenario failed", zap.String("scenario", sc.name), zap.Error(err))
			failed++
			continue
		}
		logger.Info("Scenario passed", zap.String("scenario", sc.name))
	}

	logger.Info("Simulation complete",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("failed", failed),
		zap.Int64("allocation_updates_seen", updates.Count()),
	)

	if failed > 0 {
		os.Exit(1)
	}
}
