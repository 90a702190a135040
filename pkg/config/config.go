// Package config holds the monitor configuration file format and build metadata.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Build metadata, injected at link time by the dev tool.
var (
	Version = "latest"
	Commit  = "none"
	Date    = "unknown"
)

const (
	AdapterPeriph  = "periph"
	AdapterMCP2221 = "mcp2221"
	AdapterNanoPi  = "nanopi"
	// simulated sensor, no hardware needed
	AdapterSim = "sim"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Bus     Bus     `yaml:"bus"`
	Sensor  Sensor  `yaml:"sensor"`
	Monitor Monitor `yaml:"monitor"`
	Metrics Metrics `yaml:"metrics"`
}

type Bus struct {
	// one of periph, mcp2221, nanopi, sim
	Adapter string `yaml:"adapter"`
	// periph bus name, e.g. /dev/i2c-1 or "" for the first bus
	Device string `yaml:"device"`
	// gobot bus number
	Number int `yaml:"number"`
	// 0 keeps the bus default
	SpeedHz int64 `yaml:"speed_hz"`
}

type Sensor struct {
	Address          uint8         `yaml:"address"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	ResetSettle      time.Duration `yaml:"reset_settle"`
	MeasureSettle    time.Duration `yaml:"measure_settle"`
	TransportBackoff time.Duration `yaml:"transport_backoff"`
	IntegrityBackoff time.Duration `yaml:"integrity_backoff"`
}

type Monitor struct {
	Scan            bool          `yaml:"scan"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	StartupDelay    time.Duration `yaml:"startup_delay"`
	PostScanDelay   time.Duration `yaml:"post_scan_delay"`
	InitialAttempts int           `yaml:"initial_attempts"`
	PollAttempts    int           `yaml:"poll_attempts"`
	Interval        time.Duration `yaml:"interval"`
}

type Metrics struct {
	// empty disables the /metrics endpoint
	Listen string `yaml:"listen"`
}

func Default() Config {
	return Config{
		Bus: Bus{
			Adapter: AdapterPeriph,
			Device:  "/dev/i2c-1",
		},
		Sensor: Sensor{
			Address:          0x44,
			CommandTimeout:   1000 * time.Millisecond,
			ReadTimeout:      500 * time.Millisecond,
			ResetTimeout:     500 * time.Millisecond,
			ResetSettle:      100 * time.Millisecond,
			MeasureSettle:    30 * time.Millisecond,
			TransportBackoff: 100 * time.Millisecond,
			IntegrityBackoff: 50 * time.Millisecond,
		},
		Monitor: Monitor{
			Scan:            true,
			ProbeTimeout:    100 * time.Millisecond,
			StartupDelay:    500 * time.Millisecond,
			PostScanDelay:   1000 * time.Millisecond,
			InitialAttempts: 5,
			PollAttempts:    3,
			Interval:        2000 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Bus.Adapter {
	case AdapterPeriph, AdapterMCP2221, AdapterNanoPi, AdapterSim:
	default:
		return fmt.Errorf("%w: unknown adapter %q", ErrInvalid, c.Bus.Adapter)
	}
	if c.Sensor.Address > 0x7F {
		return fmt.Errorf("%w: address %#x is not a 7-bit address", ErrInvalid, c.Sensor.Address)
	}
	if c.Monitor.InitialAttempts < 1 || c.Monitor.PollAttempts < 1 {
		return fmt.Errorf("%w: attempt budgets must be at least 1", ErrInvalid)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalid)
	}
	return nil
}

// Encode writes c as YAML.
func (c Config) Encode() ([]byte, error) {
	return yaml.Marshal(c)
}
