package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/shtmon"
	"github.com/mklimuk/shtmon/adapter"
	"github.com/mklimuk/shtmon/environment"
	"github.com/mklimuk/shtmon/i2c"
	"github.com/mklimuk/shtmon/pkg/config"
)

// settings loads the config file and applies the global flags over it.
func settings(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("adapter") {
		cfg.Bus.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Bus.Device = c.String("device")
	}
	if c.IsSet("bus") {
		cfg.Bus.Number = c.Int("bus")
	}
	if c.IsSet("addr") {
		addr, err := parseAddress(c.String("addr"))
		if err != nil {
			return cfg, err
		}
		cfg.Sensor.Address = addr
	}
	return cfg, cfg.Validate()
}

func parseAddress(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if v > i2c.MaxAddress {
		return 0, fmt.Errorf("address %#x is not a 7-bit address", v)
	}
	return byte(v), nil
}

// openBus opens the configured adapter. The returned func releases it.
func openBus(cfg config.Config) (shtmon.I2CBus, func(), error) {
	switch cfg.Bus.Adapter {
	case config.AdapterMCP2221:
		bridge := adapter.NewMCP2221()
		if err := bridge.Init(); err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return bridge, func() {}, nil
	case config.AdapterSim:
		start := time.Now()
		// slow drift around room conditions
		temp := func(context.Context) (float64, error) {
			return 22.5 + 0.5*math.Sin(time.Since(start).Minutes()), nil
		}
		return environment.NewSimulatedSHT3x(cfg.Sensor.Address, temp, environment.Constant(45)), func() {}, nil
	case config.AdapterNanoPi:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, cfg.Bus.Number)
		return bus, func() {
			if err := bus.Close(); err != nil {
				slog.Warn("could not close i2c connections", "error", err)
			}
			_ = npi.I2cBusAdaptor.Finalize()
		}, nil
	default:
		bus, err := i2c.NewGenericBus(cfg.Bus.Device)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Bus.SpeedHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(cfg.Bus.SpeedHz) * physic.Hertz); err != nil {
				slog.Warn("could not set bus speed", "bus", bus.String(), "error", err)
			}
		}
		return bus, func() { _ = bus.Close() }, nil
	}
}

func newSensor(bus shtmon.I2CBus, cfg config.Config, opts ...environment.SHT3xOpt) *environment.SHT3x {
	s := cfg.Sensor
	base := []environment.SHT3xOpt{
		environment.WithSHT3xAddress(s.Address),
		environment.WithTimeouts(s.CommandTimeout, s.ReadTimeout, s.ResetTimeout),
		environment.WithResetSettle(s.ResetSettle),
		environment.WithMeasureSettle(s.MeasureSettle),
		environment.WithBackoff(s.TransportBackoff, s.IntegrityBackoff),
	}
	return environment.NewSHT3x(bus, append(base, opts...)...)
}
