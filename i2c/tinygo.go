package i2c

import (
	"context"
	"fmt"

	"tinygo.org/x/drivers"

	"github.com/mklimuk/shtmon"
)

var _ shtmon.I2CBus = &TxBus{}

// TxBus adapts any tinygo drivers.I2C (machine.I2C on microcontrollers) to the
// bus contract. Timeouts are left to the peripheral configuration.
type TxBus struct {
	bus drivers.I2C
}

func NewTxBus(bus drivers.I2C) *TxBus {
	return &TxBus{bus: bus}
}

func (b *TxBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.bus.Tx(uint16(address), nil, buffer); err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *TxBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.bus.Tx(uint16(address), buffer, nil); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *TxBus) Release(ctx context.Context) error {
	return nil
}
