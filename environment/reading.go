package environment

import (
	"encoding/binary"

	"periph.io/x/conn/v3/physic"
)

// FrameSize is the length of a measurement response: T[0:2], CRC, RH[3:5], CRC.
const FrameSize = 6

// Frame is one raw measurement response as read from the bus.
type Frame [FrameSize]byte

func (f Frame) TemperatureWord() []byte { return f[0:2] }

func (f Frame) HumidityWord() []byte { return f[3:5] }

// Validate checks both words against their trailing check bytes, temperature first.
func (f Frame) Validate() error {
	if crc := Checksum(f.TemperatureWord()); crc != f[2] {
		return &IntegrityError{Field: FieldTemperature, Expected: f[2], Got: crc}
	}
	if crc := Checksum(f.HumidityWord()); crc != f[5] {
		return &IntegrityError{Field: FieldHumidity, Expected: f[5], Got: crc}
	}
	return nil
}

// Decode validates the frame and converts it. Nothing is decoded from a frame
// that fails validation.
func (f Frame) Decode() (Reading, error) {
	if err := f.Validate(); err != nil {
		return Reading{}, err
	}
	return Reading{
		Temperature: DecodeTemperature(binary.BigEndian.Uint16(f.TemperatureWord())),
		Humidity:    DecodeHumidity(binary.BigEndian.Uint16(f.HumidityWord())),
	}, nil
}

// Reading is a validated measurement.
type Reading struct {
	// Temperature in Celsius, -45..130.
	Temperature float64
	// Humidity in %RH, 0..100.
	Humidity float64
}

// Env converts the reading to periph units.
func (r Reading) Env() physic.Env {
	return physic.Env{
		Temperature: physic.ZeroCelsius + physic.Temperature(r.Temperature*float64(physic.Celsius)),
		Humidity:    physic.RelativeHumidity(r.Humidity * float64(physic.PercentRH)),
	}
}

// Conversion formulas from datasheet
// T(C) = -45 + 175 * rawT / 65535
// RH(%) = 100 * rawRH / 65535
func DecodeTemperature(raw uint16) float64 {
	return -45.0 + 175.0*float64(raw)/65535.0
}

func DecodeHumidity(raw uint16) float64 {
	return 100.0 * float64(raw) / 65535.0
}
