package environment

import (
	"errors"
	"fmt"
)

// ErrChecksum matches every IntegrityError via errors.Is.
var ErrChecksum = errors.New("checksum mismatch")

// Stage names the bus transaction that failed.
type Stage int

const (
	StageCommand Stage = iota
	StageRead
	StageStatus
)

func (s Stage) String() string {
	switch s {
	case StageCommand:
		return "command"
	case StageRead:
		return "read"
	case StageStatus:
		return "status"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Field names the checksummed word that failed validation.
type Field int

const (
	FieldTemperature Field = iota
	FieldHumidity
	FieldStatus
)

func (f Field) String() string {
	switch f {
	case FieldTemperature:
		return "temperature"
	case FieldHumidity:
		return "humidity"
	case FieldStatus:
		return "status"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// TransportError is a bus-layer failure: no acknowledgment, timeout or short transfer.
type TransportError struct {
	Stage Stage
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sht3x: %s transaction failed: %v", e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IntegrityError means data arrived but its check byte did not match.
type IntegrityError struct {
	Field    Field
	Expected byte
	Got      byte
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("sht3x: %s crc mismatch: expected %#x, got %#x", e.Field, e.Expected, e.Got)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrChecksum
}

// ExhaustedError is returned once the attempt budget is spent without a valid frame.
type ExhaustedError struct {
	Attempts  int
	LastCause error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("sht3x: no valid measurement after %d attempt(s): %v", e.Attempts, e.LastCause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastCause
}
