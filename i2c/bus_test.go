package i2c

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func TestGenericBus_WriteRead(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x44, W: []byte{0x24, 0x00}},
			{Addr: 0x44, R: []byte{0x63, 0x75, 0xF4, 0x58, 0x31, 0xA5}},
			{Addr: 0x44, R: []byte{0x63, 0x75, 0xF4, 0x58, 0x31, 0xA5}},
		},
	}
	bus := newGenericBus(playback)

	require.NoError(t, bus.WriteToAddr(context.Background(), 0x44, []byte{0x24, 0x00}))

	buf := make([]byte, 6)
	require.NoError(t, bus.ReadFromAddr(context.Background(), 0x44, buf))
	assert.Equal(t, []byte{0x63, 0x75, 0xF4, 0x58, 0x31, 0xA5}, buf)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	buf = make([]byte, 6)
	require.NoError(t, bus.ReadFromAddr(ctx, 0x44, buf))
	assert.Equal(t, []byte{0x63, 0x75, 0xF4, 0x58, 0x31, 0xA5}, buf)

	require.NoError(t, bus.Close())
}

func TestGenericBus_ProbeUsesSingleByteRead(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{{Addr: 0x68, R: []byte{0x00}}},
	}
	bus := newGenericBus(playback)
	require.NoError(t, bus.WriteToAddr(context.Background(), 0x68, nil))
	require.NoError(t, bus.Close())
}

type stuckBus struct {
	i2ctest.Playback
	release chan struct{}
}

func (b *stuckBus) Tx(addr uint16, w, r []byte) error {
	<-b.release
	return errors.New("too late")
}

func TestGenericBus_DeadlineStopsWaiting(t *testing.T) {
	stuck := &stuckBus{release: make(chan struct{})}
	defer close(stuck.release)
	bus := newGenericBus(stuck)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := bus.ReadFromAddr(ctx, 0x44, make([]byte, 6))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "could not read from i2c bus 44")
}

func TestGenericBus_CancelledBeforeTx(t *testing.T) {
	bus := newGenericBus(&i2ctest.Playback{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.WriteToAddr(ctx, 0x44, []byte{0x30, 0xA2}), context.Canceled)
}

func TestGenericBus_SetSpeed(t *testing.T) {
	bus := newGenericBus(&i2ctest.Playback{})
	assert.NoError(t, bus.SetSpeed(100*physic.KiloHertz))
}
