package config

import (
	"time"

	"github.com/gridwatt/stationd/internal/domain"
)

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Prometheus    PrometheusConfig    `mapstructure:"prometheus"`
	OpenTelemetry OpenTelemetryConfig `mapstructure:"opentelemetry"`
	Station       StationConfig       `mapstructure:"station"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type OpenTelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// StationConfig mirrors domain.StationConfig for unmarshalling.
type StationConfig struct {
	StationID    string          `mapstructure:"station_id"`
	GridCapacity float64         `mapstructure:"grid_capacity_kw"`
	Chargers     []ChargerConfig `mapstructure:"chargers"`
	Battery      *BatteryConfig  `mapstructure:"battery"`
}

type ChargerConfig struct {
	ID         string  `mapstructure:"id"`
	MaxPowerKW float64 `mapstructure:"max_power_kw"`
	Connectors int     `mapstructure:"connectors"`
}

type BatteryConfig struct {
	CapacityKWh float64 `mapstructure:"capacity_kwh"`
	PowerKW     float64 `mapstructure:"power_kw"`
}

// Domain converts the configured topology into the immutable domain
// model shared by the services.
func (c StationConfig) Domain() *domain.StationConfig {
	station := &domain.StationConfig{
		StationID:    c.StationID,
		GridCapacity: c.GridCapacity,
	}
	for _, charger := range c.Chargers {
		station.Chargers = append(station.Chargers, domain.ChargerConfig{
			ID:         charger.ID,
			MaxPowerKW: charger.MaxPowerKW,
			Connectors: charger.Connectors,
		})
	}
	if c.Battery != nil {
		station.Battery = &domain.BatteryConfig{
			CapacityKWh: c.Battery.CapacityKWh,
			PowerKW:     c.Battery.PowerKW,
		}
	}
	return station
}
