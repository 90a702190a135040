package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/shtmon"
)

const (
	// MaxAddress is the highest 7-bit address.
	MaxAddress     = 0x7F
	defaultTimeout = 50 * time.Millisecond
)

// ScanResult lists the addresses that acknowledged a probe, in ascending order.
type ScanResult struct {
	Count     int
	Addresses []byte
}

func (r ScanResult) Contains(addr byte) bool {
	for _, a := range r.Addresses {
		if a == addr {
			return true
		}
	}
	return false
}

type ScanOpts struct {
	Timeout time.Duration
	First   byte
	Last    byte
	Logger  *slog.Logger
}

type ScanOpt func(*ScanOpts)

func WithProbeTimeout(timeout time.Duration) ScanOpt {
	return func(o *ScanOpts) {
		o.Timeout = timeout
	}
}

func WithRange(first, last byte) ScanOpt {
	return func(o *ScanOpts) {
		o.First = first
		o.Last = last
	}
}

func WithScanLogger(logger *slog.Logger) ScanOpt {
	return func(o *ScanOpts) {
		o.Logger = logger
	}
}

// Scan probes every address with a zero-length write. It is a diagnostic and
// only fails when ctx is cancelled.
func Scan(ctx context.Context, bus shtmon.AddressableWriter, opts ...ScanOpt) (ScanResult, error) {
	config := ScanOpts{
		Timeout: defaultTimeout,
		First:   0x00,
		Last:    MaxAddress,
	}
	for _, opt := range opts {
		opt(&config)
	}
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	if config.Last > MaxAddress {
		config.Last = MaxAddress
	}

	log.Info("scanning i2c bus", "from", fmt.Sprintf("%#02x", config.First), "to", fmt.Sprintf("%#02x", config.Last))
	var res ScanResult
	for addr := int(config.First); addr <= int(config.Last); addr++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if Probe(ctx, bus, byte(addr), config.Timeout) {
			log.Info("found device", "addr", fmt.Sprintf("%#02x", addr))
			res.Addresses = append(res.Addresses, byte(addr))
		}
	}
	res.Count = len(res.Addresses)

	switch {
	case res.Count == 0:
		log.Error("no devices found, check wiring and pull-up resistors")
	case res.Count < 5:
		log.Info("scan complete", "found", res.Count, "hint", "SHT3x answers at 0x44 (ADDR low) or 0x45 (ADDR high)")
	default:
		log.Info("scan complete", "found", res.Count)
	}
	return res, nil
}

// Probe reports whether addr acknowledges an empty write within timeout.
func Probe(ctx context.Context, bus shtmon.AddressableWriter, addr byte, timeout time.Duration) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return bus.WriteToAddr(probeCtx, addr, nil) == nil
}
