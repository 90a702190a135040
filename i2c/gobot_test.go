package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gi2c "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/shtmon"
)

type fakeConnection struct {
	gi2c.Connection
	addr    int
	written [][]byte
	data    []byte
	readErr error
	closed  bool
}

func (c *fakeConnection) Write(b []byte) (int, error) {
	c.written = append(c.written, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConnection) Read(b []byte) (int, error) {
	if c.readErr != nil {
		return 0, c.readErr
	}
	return copy(b, c.data), nil
}

func (c *fakeConnection) ReadByte() (byte, error) {
	if c.readErr != nil {
		return 0, c.readErr
	}
	return 0, nil
}

func (c *fakeConnection) Close() error {
	c.closed = true
	return nil
}

type fakeConnector struct {
	conns  map[int]*fakeConnection
	opened int
}

func (f *fakeConnector) GetI2cConnection(address int, busNr int) (gi2c.Connection, error) {
	c, ok := f.conns[address]
	if !ok {
		return nil, errors.New("no such device")
	}
	f.opened++
	return c, nil
}

func (f *fakeConnector) DefaultI2cBus() int {
	return 0
}

func TestGobotBus(t *testing.T) {
	sensor := &fakeConnection{addr: 0x44, data: []byte{0x63, 0x75, 0xF4, 0x58, 0x31, 0xA5}}
	connector := &fakeConnector{conns: map[int]*fakeConnection{0x44: sensor}}
	bus := NewGobotBus(connector, 0)
	ctx := context.Background()

	require.NoError(t, bus.WriteToAddr(ctx, 0x44, []byte{0x24, 0x00}))
	buf := make([]byte, 6)
	require.NoError(t, bus.ReadFromAddr(ctx, 0x44, buf))
	assert.Equal(t, sensor.data, buf)
	assert.Equal(t, [][]byte{{0x24, 0x00}}, sensor.written)
	assert.Equal(t, 1, connector.opened, "connection is reused")

	require.NoError(t, bus.WriteToAddr(ctx, 0x44, nil), "empty write probes with a read")
	assert.Error(t, bus.WriteToAddr(ctx, 0x45, nil))

	require.NoError(t, bus.Close())
	assert.True(t, sensor.closed)
}

func TestGobotBus_ShortRead(t *testing.T) {
	sensor := &fakeConnection{data: []byte{0x63, 0x75}}
	bus := NewGobotBus(&fakeConnector{conns: map[int]*fakeConnection{0x44: sensor}}, 0)
	err := bus.ReadFromAddr(context.Background(), 0x44, make([]byte, 6))
	assert.ErrorIs(t, err, shtmon.ErrShortRead)
}
