package shtmon

import "context"

var _ I2CDevice = &Device{}

// Device binds a bus to a single 7-bit address.
type Device struct {
	bus  I2CBus
	addr byte
}

func NewDevice(bus I2CBus, addr byte) *Device {
	return &Device{bus: bus, addr: addr}
}

func (d *Device) Addr() byte {
	return d.addr
}

func (d *Device) Bus() I2CBus {
	return d.bus
}

func (d *Device) Read(ctx context.Context, buffer []byte) error {
	return d.bus.ReadFromAddr(ctx, d.addr, buffer)
}

func (d *Device) Write(ctx context.Context, buffer []byte) error {
	return d.bus.WriteToAddr(ctx, d.addr, buffer)
}
