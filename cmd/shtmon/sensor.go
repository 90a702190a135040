package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/shtmon/cmd/shtmon/console"
	"github.com/mklimuk/shtmon/environment"
	"github.com/mklimuk/shtmon/snsctx"
)

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"temp"},
	Usage:   "take a single measurement",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "attempts",
			Usage: "attempt budget (defaults to the configured poll budget)",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := settings(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		attempts := cfg.Monitor.PollAttempts
		if c.IsSet("attempts") {
			attempts = c.Int("attempts")
		}
		bus, release, err := openBus(cfg)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer release()

		ctx := snsctx.SetVerbose(context.Background(), c.Bool("verbose"))
		r, err := newSensor(bus, cfg).Measure(ctx, attempts)
		if err != nil {
			return console.Exit(1, "error getting measurement: %s", console.Red(err))
		}
		console.Printf("%s  %s\n%s %s\n",
			console.PictoThermometer, console.White(fmt.Sprintf("%.2f°C", r.Temperature)),
			console.PictoHumidity, console.White(fmt.Sprintf("%.2f%%", r.Humidity)))
		return nil
	},
}

var resetCmd = cli.Command{
	Name:  "reset",
	Usage: "send a soft reset to the sensor",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := settings(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if !confirmed(c, fmt.Sprintf("soft reset sensor at %#02x?", cfg.Sensor.Address)) {
			return nil
		}
		bus, release, err := openBus(cfg)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer release()

		ctx := snsctx.SetVerbose(context.Background(), c.Bool("verbose"))
		if err := newSensor(bus, cfg).SoftReset(ctx); err != nil {
			return console.Exit(1, "reset error: %s", console.Red(err))
		}
		console.Infof("sensor at %s reset", console.White(fmt.Sprintf("%#02x", cfg.Sensor.Address)))
		return nil
	},
}

var statusCmd = cli.Command{
	Name:  "status",
	Usage: "read the status register, optionally clear it or switch the heater",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "clear", Usage: "clear alert and reset flags after reading"},
		&cli.StringFlag{Name: "heater", Usage: "switch the heater: on or off"},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := settings(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		heater := c.String("heater")
		if heater != "" && heater != "on" && heater != "off" {
			return console.Exit(1, "heater must be on or off, got %q", heater)
		}
		bus, release, err := openBus(cfg)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer release()

		ctx, cancel := context.WithTimeout(snsctx.SetVerbose(context.Background(), c.Bool("verbose")), 5*time.Second)
		defer cancel()
		s := newSensor(bus, cfg)
		status, err := s.ReadStatus(ctx)
		if err != nil {
			return console.Exit(1, "status error: %s", console.Red(err))
		}
		printStatus(status)

		if c.Bool("clear") {
			if err := s.ClearStatus(ctx); err != nil {
				return console.Exit(1, "clear status error: %s", console.Red(err))
			}
			console.Infof("status cleared")
		}
		if heater != "" {
			if heater == "on" && !confirmed(c, "heater raises the sensor temperature by several degrees, continue?") {
				return nil
			}
			if err := s.SetHeater(ctx, heater == "on"); err != nil {
				return console.Exit(1, "heater error: %s", console.Red(err))
			}
			console.Infof("heater %s", console.White(heater))
		}
		return nil
	},
}

func printStatus(status environment.Status) {
	console.Printf("status register: %s\n", console.Bold(fmt.Sprintf("%#04x", uint16(status))))
	console.Printf("  alert pending:      %s\n", console.YesNo(status.Has(environment.StatusAlertPending)))
	console.Printf("  heater on:          %s\n", console.YesNo(status.Has(environment.StatusHeaterOn)))
	console.Printf("  humidity alert:     %s\n", console.YesNo(status.Has(environment.StatusHumidityAlert)))
	console.Printf("  temperature alert:  %s\n", console.YesNo(status.Has(environment.StatusTemperatureAlert)))
	console.Printf("  reset detected:     %s\n", console.YesNo(status.Has(environment.StatusResetDetected)))
	console.Printf("  command failed:     %s\n", console.YesNo(status.Has(environment.StatusCommandFailed)))
	console.Printf("  write crc error:    %s\n", console.YesNo(status.Has(environment.StatusWriteChecksumError)))
}

func confirmed(c *cli.Context, question string) bool {
	if c.Bool("yes") {
		return true
	}
	ok, err := console.Confirm(question)
	if err != nil {
		console.Warnf("could not read answer: %s", err)
		return false
	}
	return ok
}
