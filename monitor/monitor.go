// Package monitor drives an SHT3x sensor in a fixed-cadence polling loop.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/shtmon"
	"github.com/mklimuk/shtmon/environment"
	"github.com/mklimuk/shtmon/i2c"
)

// Measurer runs the measurement protocol with an attempt budget.
type Measurer interface {
	Measure(ctx context.Context, maxAttempts int) (environment.Reading, error)
}

// Event is the outcome of one poll cycle. Cycle 0 is the initial read.
type Event struct {
	Time    time.Time
	Cycle   int
	Reading environment.Reading
	// temperature change against the previous good reading, 0 when there is none
	Delta float64
	Err   error
}

func (e Event) OK() bool {
	return e.Err == nil
}

func (e Event) Initial() bool {
	return e.Cycle == 0
}

type Reporter interface {
	Report(ctx context.Context, ev Event)
}

type ReporterFunc func(ctx context.Context, ev Event)

func (f ReporterFunc) Report(ctx context.Context, ev Event) {
	f(ctx, ev)
}

type Opts struct {
	// Bus enables discovery and the start-up probe when set.
	Bus     shtmon.AddressableWriter
	Address byte
	Scan    bool

	ProbeTimeout  time.Duration
	StartupDelay  time.Duration
	PostScanDelay time.Duration

	InitialAttempts int
	PollAttempts    int
	Interval        time.Duration

	Reporter Reporter
	Sleeper  shtmon.Sleeper
	Logger   *slog.Logger
	Clock    func() time.Time
}

type Opt func(*Opts)

// WithDiscovery scans bus (if scan is set) and probes address before polling.
func WithDiscovery(bus shtmon.AddressableWriter, address byte, scan bool) Opt {
	return func(o *Opts) {
		o.Bus = bus
		o.Address = address
		o.Scan = scan
	}
}

func WithProbeTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.ProbeTimeout = timeout
	}
}

func WithStartupDelays(startup, postScan time.Duration) Opt {
	return func(o *Opts) {
		o.StartupDelay = startup
		o.PostScanDelay = postScan
	}
}

func WithAttempts(initial, poll int) Opt {
	return func(o *Opts) {
		o.InitialAttempts = initial
		o.PollAttempts = poll
	}
}

func WithInterval(interval time.Duration) Opt {
	return func(o *Opts) {
		o.Interval = interval
	}
}

func WithReporter(reporter Reporter) Opt {
	return func(o *Opts) {
		o.Reporter = reporter
	}
}

func WithSleeper(sleeper shtmon.Sleeper) Opt {
	return func(o *Opts) {
		o.Sleeper = sleeper
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

func WithClock(clock func() time.Time) Opt {
	return func(o *Opts) {
		o.Clock = clock
	}
}

type Monitor struct {
	sensor Measurer
	config Opts
	log    *slog.Logger

	lastTemp float64
	hasLast  bool
}

func New(sensor Measurer, opts ...Opt) *Monitor {
	config := Opts{
		Address:         environment.SHT3xAddress,
		ProbeTimeout:    100 * time.Millisecond,
		StartupDelay:    500 * time.Millisecond,
		PostScanDelay:   1000 * time.Millisecond,
		InitialAttempts: 5,
		PollAttempts:    3,
		Interval:        2000 * time.Millisecond,
		Sleeper:         shtmon.TimerSleeper,
		Clock:           time.Now,
	}
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Reporter == nil {
		config.Reporter = NewLogReporter(logger)
	}
	return &Monitor{
		sensor: sensor,
		config: config,
		log:    logger.With("component", "monitor"),
	}
}

// Run performs the start-up sequence, the initial read and then polls until
// ctx is cancelled. Failed cycles are reported and never stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.sleep(ctx, m.config.StartupDelay); err != nil {
		return err
	}
	if m.config.Bus != nil {
		if err := m.discover(ctx); err != nil {
			return err
		}
	}

	m.log.Info("initial read", "attempts", m.config.InitialAttempts)
	m.Poll(ctx, 0, m.config.InitialAttempts)
	if err := ctx.Err(); err != nil {
		return err
	}

	m.log.Info("polling", "interval", m.config.Interval, "attempts", m.config.PollAttempts)
	for cycle := 1; ; cycle++ {
		m.Poll(ctx, cycle, m.config.PollAttempts)
		if err := m.sleep(ctx, m.config.Interval); err != nil {
			return err
		}
	}
}

// Poll runs one measurement and reports it. Cancellation is not reported.
func (m *Monitor) Poll(ctx context.Context, cycle, attempts int) Event {
	reading, err := m.sensor.Measure(ctx, attempts)
	ev := Event{
		Time:  m.config.Clock(),
		Cycle: cycle,
		Err:   err,
	}
	if ctx.Err() != nil {
		return ev
	}
	if err == nil {
		ev.Reading = reading
		if m.hasLast {
			ev.Delta = reading.Temperature - m.lastTemp
		}
		m.lastTemp = reading.Temperature
		m.hasLast = true
	}
	m.config.Reporter.Report(ctx, ev)
	return ev
}

func (m *Monitor) discover(ctx context.Context) error {
	if m.config.Scan {
		res, err := i2c.Scan(ctx, m.config.Bus, i2c.WithScanLogger(m.log))
		if err != nil {
			return err
		}
		if !res.Contains(m.config.Address) {
			m.log.Warn("sensor address not found during scan", "addr", fmt.Sprintf("%#02x", m.config.Address))
		}
		if err := m.sleep(ctx, m.config.PostScanDelay); err != nil {
			return err
		}
	}
	if i2c.Probe(ctx, m.config.Bus, m.config.Address, m.config.ProbeTimeout) {
		m.log.Info("sensor acknowledged probe", "addr", fmt.Sprintf("%#02x", m.config.Address))
	} else {
		m.log.Warn("sensor did not acknowledge probe, continuing", "addr", fmt.Sprintf("%#02x", m.config.Address))
	}
	return ctx.Err()
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) error {
	return m.config.Sleeper.Sleep(ctx, d)
}
