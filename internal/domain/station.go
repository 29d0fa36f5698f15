package domain

// StationConfig describes the station topology. It is immutable after
// construction and safe to read without synchronization.
type StationConfig struct {
	StationID    string          `json:"station_id" mapstructure:"station_id"`
	GridCapacity float64         `json:"grid_capacity_kw" mapstructure:"grid_capacity_kw"`
	Chargers     []ChargerConfig `json:"chargers" mapstructure:"chargers"`
	Battery      *BatteryConfig  `json:"battery,omitempty" mapstructure:"battery"`
}

// ChargerConfig describes one physical charger. MaxPowerKW is shared
// across all of its connectors. Connector ids are 1-based.
type ChargerConfig struct {
	ID         string  `json:"id" mapstructure:"id"`
	MaxPowerKW float64 `json:"max_power_kw" mapstructure:"max_power_kw"`
	Connectors int     `json:"connectors" mapstructure:"connectors"`
}

// BatteryConfig describes the stationary battery (BESS), if present.
type BatteryConfig struct {
	CapacityKWh float64 `json:"capacity_kwh" mapstructure:"capacity_kwh"`
	PowerKW     float64 `json:"power_kw" mapstructure:"power_kw"`
}

// ChargerByID returns the charger with the given id, or nil.
func (c *StationConfig) ChargerByID(chargerID string) *ChargerConfig {
	for i := range c.Chargers {
		if c.Chargers[i].ID == chargerID {
			return &c.Chargers[i]
		}
	}
	return nil
}

// HasConnector reports whether chargerID exists and connectorID is
// within its 1-based connector range.
func (c *StationConfig) HasConnector(chargerID string, connectorID int) bool {
	charger := c.ChargerByID(chargerID)
	if charger == nil {
		return false
	}
	return connectorID >= 1 && connectorID <= charger.Connectors
}
