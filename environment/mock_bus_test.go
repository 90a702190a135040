package environment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/mklimuk/shtmon"
)

// MockI2CBus is a mock implementation of shtmon.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if args.Get(0) != nil {
		// Copy mock data to buffer if provided
		if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
			copy(buffer, data)
		}
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// recordingSleeper returns immediately and remembers every requested delay.
type recordingSleeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.calls...)
}

var (
	resetCmd   = []byte{0x30, 0xA2}
	measureCmd = []byte{0x24, 0x00}
)

// validFrame builds a frame with correct check bytes for the given raw words.
func validFrame(rawT, rawRH uint16) []byte {
	buf := []byte{byte(rawT >> 8), byte(rawT), 0, byte(rawRH >> 8), byte(rawRH), 0}
	buf[2] = Checksum(buf[0:2])
	buf[5] = Checksum(buf[3:5])
	return buf
}

func newTestSensor(bus shtmon.I2CBus, opts ...SHT3xOpt) (*SHT3x, *recordingSleeper) {
	sleeper := &recordingSleeper{}
	opts = append([]SHT3xOpt{WithSleeper(sleeper), WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	return NewSHT3x(bus, opts...), sleeper
}
