package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/shtmon"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ shtmon.I2CBus = &GenericBus{}

// GenericBus is a Linux I2C bus driven through periph.io.
type GenericBus struct {
	bus i2c.BusCloser
}

func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return newGenericBus(bus), nil
}

func newGenericBus(bus i2c.BusCloser) *GenericBus {
	return &GenericBus{bus: bus}
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.tx(ctx, address, nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

// WriteToAddr writes buffer to address. periph skips transactions without
// payload, so an empty buffer is sent as a one byte read to get the address
// acknowledged.
func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	var err error
	if len(buffer) == 0 {
		var probe [1]byte
		err = b.tx(ctx, address, nil, probe[:])
	} else {
		err = b.tx(ctx, address, buffer, nil)
	}
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

// tx runs the transaction and gives up waiting once ctx is done. The kernel
// transaction cannot be aborted and finishes in the background.
func (b *GenericBus) tx(ctx context.Context, address byte, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		return b.bus.Tx(uint16(address), w, r)
	}
	scratch := make([]byte, len(r))
	done := make(chan error, 1)
	go func() {
		done <- b.bus.Tx(uint16(address), w, scratch)
	}()
	select {
	case err := <-done:
		if err == nil {
			copy(r, scratch)
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *GenericBus) SetSpeed(f physic.Frequency) error {
	return b.bus.SetSpeed(f)
}

func (b *GenericBus) String() string {
	return b.bus.String()
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
