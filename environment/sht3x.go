package environment

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/shtmon"
)

// SHT3x I2C addresses (7-bit), selected by the ADDR strap.
const (
	SHT3xAddress          = 0x44
	SHT3xAlternateAddress = 0x45
)

// Commands (Big Endian on the wire)
const (
	// High repeatability, clock stretching disabled
	sht3xCmdMeasureHighNoCS uint16 = 0x2400
	sht3xCmdSoftReset       uint16 = 0x30A2
	sht3xCmdReadStatus      uint16 = 0xF32D
	sht3xCmdClearStatus     uint16 = 0x3041
	sht3xCmdHeaterOn        uint16 = 0x306D
	sht3xCmdHeaterOff       uint16 = 0x3066
)

// Status register bits
const (
	StatusAlertPending       Status = 1 << 15
	StatusHeaterOn           Status = 1 << 13
	StatusHumidityAlert      Status = 1 << 11
	StatusTemperatureAlert   Status = 1 << 10
	StatusResetDetected      Status = 1 << 4
	StatusCommandFailed      Status = 1 << 1
	StatusWriteChecksumError Status = 1 << 0
)

// Status is the SHT3x status register.
type Status uint16

func (s Status) Has(bit Status) bool {
	return s&bit != 0
}

type SHT3xOpts struct {
	Address byte
	Logger  *slog.Logger
	Sleeper shtmon.Sleeper

	// per-call bus timeouts
	CommandTimeout time.Duration
	ReadTimeout    time.Duration
	ResetTimeout   time.Duration

	ResetSettle      time.Duration
	MeasureSettle    time.Duration
	TransportBackoff time.Duration
	IntegrityBackoff time.Duration

	Observer AttemptObserver
}

type SHT3xOpt func(*SHT3xOpts)

func WithSHT3xAddress(address byte) SHT3xOpt {
	return func(o *SHT3xOpts) {
		o.Address = address
	}
}

func WithLogger(logger *slog.Logger) SHT3xOpt {
	return func(o *SHT3xOpts) {
		o.Logger = logger
	}
}

func WithSleeper(sleeper shtmon.Sleeper) SHT3xOpt {
	return func(o *SHT3xOpts) {
		o.Sleeper = sleeper
	}
}

func WithTimeouts(command, read, reset time.Duration) SHT3xOpt {
	return func(o *SHT3xOpts) {
		o.CommandTimeout = command
		o.ReadTimeout = read
		o.ResetTimeout = reset
	}
}

func WithResetSettle(delay time.Duration) SHT3xOpt {
	return func(o *SHT3xOpts) {
		o.ResetSettle = delay
	}
}

func WithMeasureSettle(delay time.Duration) SHT3xOpt {
	return func(o *SHT3xOpts) {
		o.MeasureSettle = delay
	}
}

func WithBackoff(transport, integrity time.Duration) SHT3xOpt {
	return func(o *SHT3xOpts) {
		o.TransportBackoff = transport
		o.IntegrityBackoff = integrity
	}
}

func WithAttemptObserver(observer AttemptObserver) SHT3xOpt {
	return func(o *SHT3xOpts) {
		o.Observer = observer
	}
}

// SHT3x represents Sensirion SHT30/31/35 Temperature/Humidity sensor
// Typical usage:
//
//	s := NewSHT3x(bus)
//	r, err := s.Measure(ctx, 3)
type SHT3x struct {
	mx     sync.Mutex
	dev    *shtmon.Device
	config SHT3xOpts
	log    *slog.Logger
}

func NewSHT3x(trans shtmon.I2CBus, opts ...SHT3xOpt) *SHT3x {
	config := SHT3xOpts{
		Address:          SHT3xAddress,
		Sleeper:          shtmon.TimerSleeper,
		CommandTimeout:   1000 * time.Millisecond,
		ReadTimeout:      500 * time.Millisecond,
		ResetTimeout:     500 * time.Millisecond,
		ResetSettle:      100 * time.Millisecond,
		MeasureSettle:    30 * time.Millisecond,
		TransportBackoff: 100 * time.Millisecond,
		IntegrityBackoff: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SHT3x{
		dev:    shtmon.NewDevice(trans, config.Address),
		config: config,
		log:    logger.With("sensor", "sht3x", "addr", fmt.Sprintf("%#x", config.Address)),
	}
}

func (s *SHT3x) Address() byte {
	return s.dev.Addr()
}

// SendMeasureCommand triggers a single-shot high repeatability measurement.
func (s *SHT3x) SendMeasureCommand(ctx context.Context) error {
	if err := s.writeCmd(ctx, sht3xCmdMeasureHighNoCS, s.config.CommandTimeout); err != nil {
		return &TransportError{Stage: StageCommand, Err: err}
	}
	return nil
}

// ReadFrame reads exactly one measurement frame. The content is not validated.
func (s *SHT3x) ReadFrame(ctx context.Context) (Frame, error) {
	var frame Frame
	if err := s.read(ctx, frame[:], s.config.ReadTimeout); err != nil {
		return frame, &TransportError{Stage: StageRead, Err: err}
	}
	return frame, nil
}

// SoftReset asks the sensor to reboot and always waits the settle delay afterwards,
// whether or not the command was acknowledged.
func (s *SHT3x) SoftReset(ctx context.Context) error {
	err := s.writeCmd(ctx, sht3xCmdSoftReset, s.config.ResetTimeout)
	if err != nil {
		s.log.Warn("soft reset failed", "error", err)
	} else {
		s.log.Debug("soft reset sent")
	}
	if serr := s.sleep(ctx, s.config.ResetSettle); serr != nil {
		return serr
	}
	if err != nil {
		return fmt.Errorf("sht3x: soft reset failed: %w", err)
	}
	return nil
}

// ReadStatus reads and validates the status register.
func (s *SHT3x) ReadStatus(ctx context.Context) (Status, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.writeCmd(ctx, sht3xCmdReadStatus, s.config.CommandTimeout); err != nil {
		return 0, &TransportError{Stage: StageStatus, Err: err}
	}
	var buf [3]byte
	if err := s.read(ctx, buf[:], s.config.ReadTimeout); err != nil {
		return 0, &TransportError{Stage: StageStatus, Err: err}
	}
	if crc := Checksum(buf[0:2]); crc != buf[2] {
		return 0, &IntegrityError{Field: FieldStatus, Expected: buf[2], Got: crc}
	}
	return Status(binary.BigEndian.Uint16(buf[0:2])), nil
}

// ClearStatus clears the alert and reset flags of the status register.
func (s *SHT3x) ClearStatus(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.writeCmd(ctx, sht3xCmdClearStatus, s.config.CommandTimeout); err != nil {
		return &TransportError{Stage: StageStatus, Err: err}
	}
	return nil
}

// SetHeater switches the internal heater.
func (s *SHT3x) SetHeater(ctx context.Context, on bool) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	cmd := sht3xCmdHeaterOff
	if on {
		cmd = sht3xCmdHeaterOn
	}
	if err := s.writeCmd(ctx, cmd, s.config.CommandTimeout); err != nil {
		return &TransportError{Stage: StageCommand, Err: err}
	}
	return nil
}

func (s *SHT3x) writeCmd(ctx context.Context, cmd uint16, timeout time.Duration) error {
	var out [2]byte
	binary.BigEndian.PutUint16(out[:], cmd)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.dev.Write(callCtx, out[:])
}

func (s *SHT3x) read(ctx context.Context, buf []byte, timeout time.Duration) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.dev.Read(callCtx, buf)
}

func (s *SHT3x) sleep(ctx context.Context, d time.Duration) error {
	return s.config.Sleeper.Sleep(ctx, d)
}
