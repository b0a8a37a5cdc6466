package secframe

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady           = errors.New("secframe: secure session not ready")
	ErrWritesPending      = errors.New("secframe: pending writes on handler detach")
	ErrNoFramesEmitted    = errors.New("secframe: protector emitted no frames for non-empty batch")
	ErrProtectorInstalled = errors.New("secframe: protector already installed")
	ErrNilProtector       = errors.New("secframe: nil protector")
	ErrNilCompletion      = errors.New("secframe: nil completion")
)

// NotReadyError reports an operation attempted outside the Active state.
// It matches ErrNotReady under errors.Is and carries the observed state
// for diagnostics.
type NotReadyError struct {
	State State
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("secframe: secure session not ready: state=%s", e.State)
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// ProtocolError reports malformed or unauthenticated inbound data.
// It is fatal to the read side of the connection and is never retried here.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("secframe: protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// SecurityError reports a protect-side primitive failure. It fails the
// in-flight aggregate batch and is never retried here.
type SecurityError struct {
	Err error
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("secframe: security error: %v", e.Err)
}

func (e *SecurityError) Unwrap() error { return e.Err }
