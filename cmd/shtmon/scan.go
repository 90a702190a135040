package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/shtmon/cmd/shtmon/console"
	"github.com/mklimuk/shtmon/environment"
	"github.com/mklimuk/shtmon/i2c"
	"github.com/mklimuk/shtmon/snsctx"
)

var scanCmd = cli.Command{
	Name:  "scan",
	Usage: "probe every 7-bit address on the bus",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per-address probe timeout",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := settings(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		bus, release, err := openBus(cfg)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer release()

		var opts []i2c.ScanOpt
		if c.IsSet("timeout") {
			opts = append(opts, i2c.WithProbeTimeout(c.Duration("timeout")))
		}
		ctx := snsctx.SetVerbose(context.Background(), c.Bool("verbose"))
		res, err := i2c.Scan(ctx, bus, opts...)
		if err != nil {
			return console.Exit(1, "scan error: %s", console.Red(err))
		}
		if res.Count == 0 {
			console.PInfof(console.PictoStop, "no devices found")
			return nil
		}
		w := tabwriter.NewWriter(console.Writer(), 8, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "ADDR\tDEVICE\n")
		for _, addr := range res.Addresses {
			_, _ = fmt.Fprintf(w, "%#02x\t%s\n", addr, knownDevice(addr))
		}
		_ = w.Flush()
		return nil
	},
}

func knownDevice(addr byte) string {
	switch addr {
	case environment.SHT3xAddress, environment.SHT3xAlternateAddress:
		return "SHT3x"
	}
	return "-"
}
