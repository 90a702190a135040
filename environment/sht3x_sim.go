package environment

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/mklimuk/shtmon"
)

var ErrNoDevice = errors.New("no device at address")
var ErrNoData = errors.New("no data pending")

// BehaviorFunc produces the physical value a simulated sensor reports.
type BehaviorFunc func(ctx context.Context) (float64, error)

// Constant returns a behavior always reporting v.
func Constant(v float64) BehaviorFunc {
	return func(context.Context) (float64, error) {
		return v, nil
	}
}

var _ shtmon.I2CBus = &SimulatedSHT3x{}

// SimulatedSHT3x is a bus with a single SHT3x on it. It answers the same
// commands as the real part, so the driver can run without hardware:
//
//	sim := NewSimulatedSHT3x(SHT3xAddress, Constant(22.5), Constant(45))
//	s := NewSHT3x(sim)
type SimulatedSHT3x struct {
	mx       sync.Mutex
	addr     byte
	temp     BehaviorFunc
	hum      BehaviorFunc
	pending  []byte
	status   Status
	corrupt  int
	commands []uint16
}

func NewSimulatedSHT3x(addr byte, temp, hum BehaviorFunc) *SimulatedSHT3x {
	return &SimulatedSHT3x{
		addr: addr,
		temp: temp,
		hum:  hum,
		// power-up state
		status: StatusAlertPending | StatusResetDetected,
	}
}

// CorruptNext makes the next n measurements carry a bad humidity check byte.
func (s *SimulatedSHT3x) CorruptNext(n int) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.corrupt = n
}

// Commands lists every command received so far.
func (s *SimulatedSHT3x) Commands() []uint16 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]uint16(nil), s.commands...)
}

func (s *SimulatedSHT3x) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if address != s.addr {
		return fmt.Errorf("write to %x: %w", address, ErrNoDevice)
	}
	if len(buffer) == 0 {
		return nil
	}
	if len(buffer) != 2 {
		return fmt.Errorf("write to %x: commands are 2 bytes, got %d", address, len(buffer))
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	cmd := binary.BigEndian.Uint16(buffer)
	s.commands = append(s.commands, cmd)
	s.pending = nil
	switch cmd {
	case sht3xCmdMeasureHighNoCS:
		return s.measure(ctx)
	case sht3xCmdSoftReset:
		s.status = StatusAlertPending | StatusResetDetected
	case sht3xCmdReadStatus:
		s.pending = word(uint16(s.status))
	case sht3xCmdClearStatus:
		s.status &^= StatusAlertPending | StatusHumidityAlert | StatusTemperatureAlert | StatusResetDetected
	case sht3xCmdHeaterOn:
		s.status |= StatusHeaterOn
	case sht3xCmdHeaterOff:
		s.status &^= StatusHeaterOn
	default:
		s.status |= StatusCommandFailed
		return fmt.Errorf("write to %x: unknown command %#04x", address, cmd)
	}
	return nil
}

func (s *SimulatedSHT3x) measure(ctx context.Context) error {
	t, err := s.temp(ctx)
	if err != nil {
		return err
	}
	h, err := s.hum(ctx)
	if err != nil {
		return err
	}
	frame := append(word(EncodeTemperature(t)), word(EncodeHumidity(h))...)
	if s.corrupt > 0 {
		frame[5] ^= 0xFF
		s.corrupt--
	}
	s.pending = frame
	return nil
}

func (s *SimulatedSHT3x) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if address != s.addr {
		return fmt.Errorf("read from %x: %w", address, ErrNoDevice)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.pending == nil {
		return fmt.Errorf("read from %x: %w", address, ErrNoData)
	}
	n := copy(buffer, s.pending)
	s.pending = nil
	if n < len(buffer) {
		return fmt.Errorf("read from %x: got %d of %d bytes: %w", address, n, len(buffer), shtmon.ErrShortRead)
	}
	return nil
}

func (s *SimulatedSHT3x) Release(context.Context) error {
	return nil
}

// EncodeTemperature is the inverse of DecodeTemperature, clamped to the sensor range.
func EncodeTemperature(celsius float64) uint16 {
	return toRaw((celsius + 45) / 175)
}

// EncodeHumidity is the inverse of DecodeHumidity, clamped to 0..100 %RH.
func EncodeHumidity(rh float64) uint16 {
	return toRaw(rh / 100)
}

func toRaw(fraction float64) uint16 {
	return uint16(math.Round(math.Max(0, math.Min(1, fraction)) * 65535))
}

// word is a big endian value followed by its check byte.
func word(v uint16) []byte {
	out := make([]byte, 3)
	binary.BigEndian.PutUint16(out, v)
	out[2] = Checksum(out[:2])
	return out
}
