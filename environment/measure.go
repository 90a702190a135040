package environment

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/mklimuk/shtmon/snsctx"
)

// State is a step of the measurement protocol. An attempt walks
// Resetting → Settling → CommandSent → MeasurementSettling → Reading → Validating
// and ends in Decoded; failed attempts end in Retry or, once the budget is
// spent, Exhausted.
type State int

const (
	StateIdle State = iota
	StateResetting
	StateSettling
	StateCommandSent
	StateMeasurementSettling
	StateReading
	StateValidating
	StateDecoded
	StateRetry
	StateExhausted
)

var stateNames = [...]string{
	StateIdle:                "idle",
	StateResetting:           "resetting",
	StateSettling:            "settling",
	StateCommandSent:         "command-sent",
	StateMeasurementSettling: "measurement-settling",
	StateReading:             "reading",
	StateValidating:          "validating",
	StateDecoded:             "decoded",
	StateRetry:               "retry",
	StateExhausted:           "exhausted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// AttemptObserver is called after every attempt with the state the attempt
// failed in (or StateDecoded) and its error.
type AttemptObserver func(attempt int, state State, err error)

// attemptOutcome is Success(reading), TransportError or IntegrityError for one
// attempt, plus the delay to apply before the next one.
type attemptOutcome struct {
	state   State
	reading Reading
	err     error
	backoff time.Duration
}

// Measure runs the reset/command/read/validate cycle until a frame validates or
// maxAttempts attempts have failed. Only exhaustion or context cancellation is
// reported to the caller.
func (s *SHT3x) Measure(ctx context.Context, maxAttempts int) (Reading, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	s.mx.Lock()
	defer s.mx.Unlock()

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out := s.attempt(ctx)
		if out.err == nil {
			s.observe(attempt, StateDecoded, nil)
			return out.reading, nil
		}
		if err := ctx.Err(); err != nil {
			s.observe(attempt, out.state, err)
			return Reading{}, err
		}
		last = out.err
		next := StateRetry
		if attempt == maxAttempts {
			next = StateExhausted
		}
		s.log.Warn("measurement attempt failed", "attempt", attempt, "of", maxAttempts, "state", out.state, "next", next, "error", out.err)
		s.observe(attempt, out.state, out.err)
		if next == StateExhausted {
			break
		}
		if err := s.sleep(ctx, out.backoff); err != nil {
			return Reading{}, err
		}
	}
	return Reading{}, &ExhaustedError{Attempts: maxAttempts, LastCause: last}
}

func (s *SHT3x) attempt(ctx context.Context) attemptOutcome {
	// reset is best effort, its error is logged by SoftReset
	_ = s.SoftReset(ctx)
	if err := ctx.Err(); err != nil {
		return attemptOutcome{state: StateSettling, err: err}
	}

	if err := s.SendMeasureCommand(ctx); err != nil {
		return attemptOutcome{state: StateCommandSent, err: err, backoff: s.config.TransportBackoff}
	}
	if err := s.sleep(ctx, s.config.MeasureSettle); err != nil {
		return attemptOutcome{state: StateMeasurementSettling, err: err}
	}

	frame, err := s.ReadFrame(ctx)
	if err != nil {
		return attemptOutcome{state: StateReading, err: err, backoff: s.config.TransportBackoff}
	}
	if snsctx.IsVerbose(ctx) {
		s.log.Info("raw frame", "temperature", hex.EncodeToString(frame[0:3]), "humidity", hex.EncodeToString(frame[3:6]))
	}

	reading, err := frame.Decode()
	if err != nil {
		return attemptOutcome{state: StateValidating, err: err, backoff: s.config.IntegrityBackoff}
	}
	return attemptOutcome{state: StateDecoded, reading: reading}
}

func (s *SHT3x) observe(attempt int, state State, err error) {
	if s.config.Observer != nil {
		s.config.Observer(attempt, state, err)
	}
}
