package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	v.AddConfigPath("/app/configs")

	v.SetEnvPrefix("STATIOND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow common env vars without the prefix for Docker/VM deploys
	v.BindEnv("http.port", "HTTP_PORT", "STATIOND_HTTP_PORT")
	v.BindEnv("nats.url", "NATS_URL", "STATIOND_NATS_URL")
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("app.environment", "STATIOND_ENVIRONMENT")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: defaults plus env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults seeds the default deployment: 500 kW grid connection,
// two dual-connector 350 kW chargers, one single-connector 150 kW
// charger and a 100 kWh / 50 kW battery.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stationd")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.path", "/metrics")

	v.SetDefault("opentelemetry.enabled", false)
	v.SetDefault("opentelemetry.jaeger_endpoint", "http://jaeger:14268/api/traces")

	v.SetDefault("station.station_id", "STATION_001")
	v.SetDefault("station.grid_capacity_kw", 500.0)
	v.SetDefault("station.chargers", []map[string]interface{}{
		{"id": "CP001", "max_power_kw": 350.0, "connectors": 2},
		{"id": "CP002", "max_power_kw": 350.0, "connectors": 2},
		{"id": "CP003", "max_power_kw": 150.0, "connectors": 1},
	})
	v.SetDefault("station.battery.capacity_kwh", 100.0)
	v.SetDefault("station.battery.power_kw", 50.0)
}

func validate(cfg *Config) error {
	if cfg.Station.GridCapacity <= 0 {
		return fmt.Errorf("station grid capacity must be positive, got %.1f", cfg.Station.GridCapacity)
	}
	if len(cfg.Station.Chargers) == 0 {
		return fmt.Errorf("station must have at least one charger")
	}
	seen := make(map[string]bool)
	for _, charger := range cfg.Station.Chargers {
		if charger.ID == "" {
			return fmt.Errorf("charger id must not be empty")
		}
		if seen[charger.ID] {
			return fmt.Errorf("duplicate charger id: %s", charger.ID)
		}
		seen[charger.ID] = true
		if charger.MaxPowerKW <= 0 {
			return fmt.Errorf("charger %s max power must be positive", charger.ID)
		}
		if charger.Connectors < 1 {
			return fmt.Errorf("charger %s must have at least one connector", charger.ID)
		}
	}
	return nil
}
