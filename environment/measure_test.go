package environment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const ms = time.Millisecond

type observedAttempt struct {
	attempt int
	state   State
	err     error
}

func TestSHT3x_Measure_FirstAttempt(t *testing.T) {
	bus := new(MockI2CBus)
	sensor, sleeper := newTestSensor(bus)
	bus.On("WriteToAddr", mock.Anything, byte(SHT3xAddress), resetCmd).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(SHT3xAddress), measureCmd).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).
		Return([]byte{0x63, 0x75, 0xF4, 0x58, 0x31, 0xA5}, nil).Once()

	r, err := sensor.Measure(context.Background(), 3)

	require.NoError(t, err)
	assert.InDelta(t, 22.99, r.Temperature, 0.01)
	assert.InDelta(t, 34.45, r.Humidity, 0.01)
	assert.Equal(t, []time.Duration{100 * ms, 30 * ms}, sleeper.delays())
	bus.AssertExpectations(t)
}

func TestSHT3x_Measure_ChecksumMismatchExhausts(t *testing.T) {
	bus := new(MockI2CBus)
	sensor, sleeper := newTestSensor(bus)
	bus.On("WriteToAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).Return(nil)
	bus.On("ReadFromAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).
		Return([]byte{0x61, 0x9C, 0xCF, 0x58, 0x7D, 0x4A}, nil)

	r, err := sensor.Measure(context.Background(), 3)

	require.Error(t, err)
	assert.Equal(t, Reading{}, r)
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, ErrChecksum)
	var ierr *IntegrityError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, FieldTemperature, ierr.Field)

	bus.AssertNumberOfCalls(t, "ReadFromAddr", 3)
	bus.AssertNumberOfCalls(t, "WriteToAddr", 6)
	assert.Equal(t, []time.Duration{
		100 * ms, 30 * ms, 50 * ms,
		100 * ms, 30 * ms, 50 * ms,
		100 * ms, 30 * ms,
	}, sleeper.delays())
}

func TestSHT3x_Measure_WriteFailureSkipsRead(t *testing.T) {
	bus := new(MockI2CBus)
	sensor, sleeper := newTestSensor(bus)
	busErr := errors.New("no ack")
	bus.On("WriteToAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).Return(busErr)

	_, err := sensor.Measure(context.Background(), 3)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, StageCommand, terr.Stage)
	assert.ErrorIs(t, err, busErr)

	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
	bus.AssertNumberOfCalls(t, "WriteToAddr", 6)
	assert.Equal(t, []time.Duration{
		100 * ms, 100 * ms,
		100 * ms, 100 * ms,
		100 * ms,
	}, sleeper.delays())
}

func TestSHT3x_Measure_SucceedsOnSecondAttempt(t *testing.T) {
	bus := new(MockI2CBus)
	var observed []observedAttempt
	sensor, sleeper := newTestSensor(bus, WithAttemptObserver(func(attempt int, state State, err error) {
		observed = append(observed, observedAttempt{attempt, state, err})
	}))
	corrupted := validFrame(0xFFFF, 0x0000)
	corrupted[5] ^= 0xFF
	bus.On("WriteToAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).Return(nil)
	bus.On("ReadFromAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).
		Return(corrupted, nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).
		Return(validFrame(0x6666, 0x8000), nil).Once()

	r, err := sensor.Measure(context.Background(), 3)

	require.NoError(t, err)
	assert.InDelta(t, 25.0, r.Temperature, 1e-9)
	assert.InDelta(t, 50.0, r.Humidity, 0.001)
	require.Len(t, observed, 2)
	assert.Equal(t, 1, observed[0].attempt)
	assert.Equal(t, StateValidating, observed[0].state)
	assert.ErrorIs(t, observed[0].err, ErrChecksum)
	assert.Equal(t, observedAttempt{attempt: 2, state: StateDecoded}, observed[1])
	assert.Equal(t, []time.Duration{100 * ms, 30 * ms, 50 * ms, 100 * ms, 30 * ms}, sleeper.delays())
	bus.AssertExpectations(t)
}

func TestSHT3x_Measure_ReadFailureRetries(t *testing.T) {
	bus := new(MockI2CBus)
	sensor, sleeper := newTestSensor(bus)
	bus.On("WriteToAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).Return(nil)
	bus.On("ReadFromAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).
		Return(nil, errors.New("timeout")).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).
		Return(validFrame(0x6666, 0x8000), nil).Once()

	_, err := sensor.Measure(context.Background(), 2)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * ms, 30 * ms, 100 * ms, 100 * ms, 30 * ms}, sleeper.delays())
}

func TestSHT3x_Measure_ResetFailureIsNotFatal(t *testing.T) {
	bus := new(MockI2CBus)
	sensor, _ := newTestSensor(bus)
	bus.On("WriteToAddr", mock.Anything, byte(SHT3xAddress), resetCmd).Return(errors.New("no ack")).Once()
	bus.On("WriteToAddr", mock.Anything, byte(SHT3xAddress), measureCmd).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).
		Return(validFrame(0x6666, 0x8000), nil).Once()

	r, err := sensor.Measure(context.Background(), 1)

	require.NoError(t, err)
	assert.InDelta(t, 25.0, r.Temperature, 1e-9)
	bus.AssertExpectations(t)
}

func TestSHT3x_Measure_BudgetBelowOne(t *testing.T) {
	bus := new(MockI2CBus)
	sensor, _ := newTestSensor(bus)
	bus.On("WriteToAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).Return(errors.New("no ack"))

	_, err := sensor.Measure(context.Background(), 0)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 1, exhausted.Attempts)
}

func TestSHT3x_Measure_ContextCancelled(t *testing.T) {
	bus := new(MockI2CBus)
	sensor, _ := newTestSensor(bus)
	bus.On("WriteToAddr", mock.Anything, byte(SHT3xAddress), mock.Anything).Return(nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sensor.Measure(ctx, 5)

	assert.ErrorIs(t, err, context.Canceled)
	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestSHT3x_Measure_PerCallDeadline(t *testing.T) {
	bus := new(MockI2CBus)
	sensor, _ := newTestSensor(bus, WithSHT3xAddress(SHT3xAlternateAddress))
	hasDeadline := mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})
	bus.On("WriteToAddr", hasDeadline, byte(SHT3xAlternateAddress), mock.Anything).Return(nil)
	bus.On("ReadFromAddr", hasDeadline, byte(SHT3xAlternateAddress), mock.Anything).
		Return(validFrame(0x6666, 0x8000), nil).Once()

	_, err := sensor.Measure(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, byte(SHT3xAlternateAddress), sensor.Address())
	bus.AssertExpectations(t)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "measurement-settling", StateMeasurementSettling.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
	assert.Equal(t, "state(42)", State(42).String())
}
