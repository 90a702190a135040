package environment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/shtmon"
)

// quantization step of the temperature encoding
const tempStep = 175.0 / 65535

func TestSimulatedSHT3x_Measure(t *testing.T) {
	sim := NewSimulatedSHT3x(SHT3xAddress, Constant(22.5), Constant(45))
	s, sleeper := newTestSensor(sim)

	r, err := s.Measure(context.Background(), 3)

	require.NoError(t, err)
	assert.InDelta(t, 22.5, r.Temperature, tempStep)
	assert.InDelta(t, 45.0, r.Humidity, 100.0/65535)
	assert.Equal(t, []uint16{sht3xCmdSoftReset, sht3xCmdMeasureHighNoCS}, sim.Commands())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 30 * time.Millisecond}, sleeper.delays())
}

func TestSimulatedSHT3x_RecoversFromCorruptFrame(t *testing.T) {
	sim := NewSimulatedSHT3x(SHT3xAddress, Constant(-10), Constant(80))
	sim.CorruptNext(2)
	var states []State
	s, _ := newTestSensor(sim, WithAttemptObserver(func(_ int, state State, _ error) {
		states = append(states, state)
	}))

	r, err := s.Measure(context.Background(), 3)

	require.NoError(t, err)
	assert.InDelta(t, -10.0, r.Temperature, tempStep)
	assert.Equal(t, []State{StateValidating, StateValidating, StateDecoded}, states)
}

func TestSimulatedSHT3x_SensorFailure(t *testing.T) {
	failing := func(context.Context) (float64, error) { return 0, errors.New("conversion stuck") }
	sim := NewSimulatedSHT3x(SHT3xAddress, failing, Constant(50))
	s, _ := newTestSensor(sim)

	_, err := s.Measure(context.Background(), 2)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, StageCommand, transport.Stage)
}

func TestSimulatedSHT3x_WrongAddress(t *testing.T) {
	sim := NewSimulatedSHT3x(SHT3xAlternateAddress, Constant(20), Constant(50))
	ctx := context.Background()

	assert.ErrorIs(t, sim.WriteToAddr(ctx, SHT3xAddress, nil), ErrNoDevice)
	assert.NoError(t, sim.WriteToAddr(ctx, SHT3xAlternateAddress, nil))

	s, _ := newTestSensor(sim)
	_, err := s.Measure(ctx, 1)
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestSimulatedSHT3x_StatusRegister(t *testing.T) {
	sim := NewSimulatedSHT3x(SHT3xAddress, Constant(20), Constant(50))
	s, _ := newTestSensor(sim)
	ctx := context.Background()

	status, err := s.ReadStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status(0x8010), status)

	require.NoError(t, s.ClearStatus(ctx))
	require.NoError(t, s.SetHeater(ctx, true))
	status, err = s.ReadStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusHeaterOn, status)

	require.NoError(t, s.SoftReset(ctx))
	status, err = s.ReadStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Has(StatusResetDetected))
	assert.False(t, status.Has(StatusHeaterOn))
}

func TestSimulatedSHT3x_ReadWithoutCommand(t *testing.T) {
	sim := NewSimulatedSHT3x(SHT3xAddress, Constant(20), Constant(50))
	buf := make([]byte, FrameSize)

	assert.ErrorIs(t, sim.ReadFromAddr(context.Background(), SHT3xAddress, buf), ErrNoData)

	require.NoError(t, sim.WriteToAddr(context.Background(), SHT3xAddress, []byte{0xF3, 0x2D}))
	assert.ErrorIs(t, sim.ReadFromAddr(context.Background(), SHT3xAddress, buf), shtmon.ErrShortRead)
}

func TestEncode_Endpoints(t *testing.T) {
	assert.Equal(t, uint16(0), EncodeTemperature(-45))
	assert.Equal(t, uint16(0xFFFF), EncodeTemperature(130))
	assert.Equal(t, uint16(0xFFFF), EncodeTemperature(200))
	assert.Equal(t, uint16(0), EncodeHumidity(-3))
	assert.Equal(t, uint16(0xFFFF), EncodeHumidity(100))
	for _, c := range []float64{-40, 0, 21.73, 85} {
		assert.InDelta(t, c, DecodeTemperature(EncodeTemperature(c)), tempStep)
	}
}
