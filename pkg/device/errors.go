package device

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOwner indicates the calling client doesn't hold the ownership token.
	ErrNotOwner = errors.New("not owner")
	// ErrBusy indicates the device is owned by another client, or a transfer
	// is still in progress.
	ErrBusy = errors.New("busy")
	// ErrNotOpen indicates the device has not been opened by anyone.
	ErrNotOpen = errors.New("not open")
	// ErrPoolExhausted indicates a fixed-capacity arena has no free block.
	ErrPoolExhausted = errors.New("pool exhausted")
	// ErrBufferOverrun indicates a message didn't fit in the fixed buffer.
	ErrBufferOverrun = errors.New("buffer overrun")
	// ErrNegotiation indicates a negotiation procedure didn't converge.
	ErrNegotiation = errors.New("negotiation failed")
	// ErrInvalidClient indicates the sentinel client ID was used by a caller.
	ErrInvalidClient = errors.New("invalid client")
)

// PoolError is returned when an arena can't serve a request.
type PoolError struct {
	Pool     string
	Capacity int
	Err      error
}

// Error implements error.
func (e *PoolError) Error() string {
	return fmt.Sprintf("pool %s (capacity %d): %v", e.Pool, e.Capacity, e.Err)
}

// Unwrap returns the underlying error.
func (e *PoolError) Unwrap() error {
	return e.Err
}

// NegotiationError reports a bounded search or retry loop which gave up.
type NegotiationError struct {
	Op       string
	Attempts int
	Detail   string
}

// Error implements error.
func (e *NegotiationError) Error() string {
	msg := e.Op + ": " + ErrNegotiation.Error()
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Is matches ErrNegotiation.
func (e *NegotiationError) Is(target error) bool {
	return target == ErrNegotiation
}

// Result is the typed outcome of a gated operation.
type Result int

// Results
const (
	OK Result = iota
	NotOwner
	Busy
	NotOpen
	PoolExhausted
	Overrun
	NegotiationFailed
	Failed
)

var resultNames = [...]string{
	OK:                "ok",
	NotOwner:          "not-owner",
	Busy:              "busy",
	NotOpen:           "not-open",
	PoolExhausted:     "pool-exhausted",
	Overrun:           "overrun",
	NegotiationFailed: "negotiation-failed",
	Failed:            "failed",
}

// String implements fmt.Stringer.
func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// ResultOf classifies an error returned by a gated operation.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrNotOwner):
		return NotOwner
	case errors.Is(err, ErrBusy):
		return Busy
	case errors.Is(err, ErrNotOpen):
		return NotOpen
	case errors.Is(err, ErrPoolExhausted):
		return PoolExhausted
	case errors.Is(err, ErrBufferOverrun):
		return Overrun
	case errors.Is(err, ErrNegotiation):
		return NegotiationFailed
	default:
		return Failed
	}
}
