package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/shtmon/cmd/shtmon/console"
	"github.com/mklimuk/shtmon/environment"
	"github.com/mklimuk/shtmon/monitor"
	"github.com/mklimuk/shtmon/snsctx"
)

var monitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "scan the bus and poll the sensor until interrupted",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "serve prometheus metrics on this address, e.g. :9101",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "poll interval",
		},
		&cli.BoolFlag{
			Name:  "no-scan",
			Usage: "skip the bus scan, only probe the sensor",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := settings(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if c.IsSet("metrics-addr") {
			cfg.Metrics.Listen = c.String("metrics-addr")
		}
		if c.IsSet("interval") {
			cfg.Monitor.Interval = c.Duration("interval")
		}
		if c.Bool("no-scan") {
			cfg.Monitor.Scan = false
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = snsctx.SetVerbose(ctx, c.Bool("verbose"))

		bus, release, err := openBus(cfg)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer release()

		var reporter monitor.Reporter = monitor.NewLogReporter(slog.Default())
		var observer environment.AttemptObserver
		if cfg.Metrics.Listen != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics := monitor.NewMetrics(reg)
			reporter = metrics.Reporter(reporter)
			observer = metrics.ObserveAttempt
			srv := serveMetrics(cfg.Metrics.Listen, reg)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		sensor := newSensor(bus, cfg, environment.WithAttemptObserver(observer))
		m := monitor.New(sensor,
			monitor.WithDiscovery(bus, cfg.Sensor.Address, cfg.Monitor.Scan),
			monitor.WithProbeTimeout(cfg.Monitor.ProbeTimeout),
			monitor.WithStartupDelays(cfg.Monitor.StartupDelay, cfg.Monitor.PostScanDelay),
			monitor.WithAttempts(cfg.Monitor.InitialAttempts, cfg.Monitor.PollAttempts),
			monitor.WithInterval(cfg.Monitor.Interval),
			monitor.WithReporter(reporter),
		)
		err = m.Run(ctx)
		if errors.Is(err, context.Canceled) {
			slog.Info("monitor stopped")
			return nil
		}
		return console.Exit(1, "monitor error: %s", console.Red(err))
	},
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitor.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
