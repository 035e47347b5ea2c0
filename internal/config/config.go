// Package config loads the pulse-meter daemon configuration from YAML.
// Command-line flags in cmd/pulse-meter override individual fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/pulse-meter/internal/gpio"
)

// Config is the daemon configuration.
type Config struct {
	Meter  MeterConfig  `yaml:"meter"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	HTTP   HTTPConfig   `yaml:"http"`
	Report ReportConfig `yaml:"report"`
	Debug  bool         `yaml:"debug"`
}

// MeterConfig describes the GPIO lines and debounce policy.
type MeterConfig struct {
	Chip           string        `yaml:"chip"`
	Pin            int           `yaml:"pin"`
	IndicatorPin   int           `yaml:"indicator_pin"`
	Edge           string        `yaml:"edge"` // rising or falling
	Debounce       *bool         `yaml:"debounce"`
	DebounceWindow time.Duration `yaml:"debounce_window"`
	// Scale converts a pulse interval in seconds to watts.
	Scale float64 `yaml:"scale"`
}

// MQTTConfig describes the telemetry broker. An empty broker disables MQTT.
// Coalesce is the wall-clock window that merges a pulse burst into one
// reading publish.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Prefix    string        `yaml:"prefix"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	Coalesce  time.Duration `yaml:"coalesce"`
}

// HTTPConfig describes the attribute/status server. Empty addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// ReportConfig describes the fixed-record power report listener. Empty addr
// disables it.
type ReportConfig struct {
	Addr string `yaml:"addr"`
}

// DebounceEnabled returns the configured default, true when unset.
func (m MeterConfig) DebounceEnabled() bool {
	return m.Debounce == nil || *m.Debounce
}

// Default returns the built-in configuration.
func Default() *Config {
	on := true
	return &Config{
		Meter: MeterConfig{
			Chip:           gpio.DefaultChip,
			Pin:            gpio.DefaultPinMeter,
			IndicatorPin:   gpio.DefaultPinIndicator,
			Edge:           string(gpio.EdgeRising),
			Debounce:       &on,
			DebounceWindow: 200 * time.Millisecond,
			Scale:          3600,
		},
		MQTT: MQTTConfig{
			Broker:    "tcp://192.168.1.200:1883",
			ClientID:  "pulse-meter",
			Prefix:    "energy/meter/main",
			Heartbeat: 15 * time.Minute,
			Coalesce:  100 * time.Millisecond,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Report: ReportConfig{
			Addr: ":9123",
		},
	}
}

// Load reads path over Default. Keys absent from the file keep their
// default; an explicit "" or 0 disables the feature.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data over Default.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks values that would otherwise fail late, at line request.
func (c *Config) Validate() error {
	if _, err := gpio.ParseEdge(c.Meter.Edge); err != nil {
		return fmt.Errorf("meter.edge: %w", err)
	}
	if c.Meter.Pin < 0 || c.Meter.IndicatorPin < 0 {
		return fmt.Errorf("meter pins must be non-negative (pin=%d indicator_pin=%d)", c.Meter.Pin, c.Meter.IndicatorPin)
	}
	if c.Meter.Pin == c.Meter.IndicatorPin {
		return fmt.Errorf("meter.pin and meter.indicator_pin are both %d", c.Meter.Pin)
	}
	if c.Meter.DebounceWindow < 0 {
		return fmt.Errorf("meter.debounce_window must not be negative")
	}
	if c.Meter.Scale <= 0 {
		return fmt.Errorf("meter.scale must be positive")
	}
	return nil
}
