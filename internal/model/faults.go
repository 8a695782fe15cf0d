package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the five failure kinds of the runtime. Only
// configuration, I/O and invariant errors surface out of the core;
// round, transport and protocol errors are reported through fault
// callbacks and never interrupt the scheduler.
var (
	ErrConfig    = errors.New("configuration error")
	ErrIO        = errors.New("i/o error")
	ErrRound     = errors.New("round error")
	ErrTransport = errors.New("transport error")
	ErrProtocol  = errors.New("protocol error")
	ErrInvariant = errors.New("invariant violation")
)

// Fault is a structured incident report delivered through net hooks.
type Fault struct {
	Kind   error
	Device DeviceID
	Time   Time
	Err    error
}

func (f Fault) Error() string {
	return fmt.Sprintf("device %d at %v: %v", f.Device, f.Time, f.Err)
}

func (f Fault) Unwrap() error { return f.Err }

// Invariantf builds an invariant violation. Invariant violations abort
// the whole net; they indicate a defect in the runtime, never in user
// programs.
func Invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

// Protocolf builds a protocol error for a malformed or mistyped wire
// payload.
func Protocolf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}
