// SPDX-License-Identifier: Apache-2.0

package moot

import "fmt"

// ProtocolReason is the closed set of framing violations a response can
// exhibit. Callers branch on the reason rather than parsing messages.
type ProtocolReason int

const (
	// ReasonBadMagic means the response did not open with ResponseMagic.
	ReasonBadMagic ProtocolReason = iota

	// ReasonBadLength means the response length violated the phase invariant
	// (a nonzero length where the phase shape requires zero).
	ReasonBadLength
)

func (r ProtocolReason) String() string {
	switch r {
	case ReasonBadMagic:
		return "bad magic"
	case ReasonBadLength:
		return "bad length"
	default:
		return fmt.Sprintf("protocol reason %d", int(r))
	}
}

// ProtocolError indicates a framing violation in a device response. It is
// always fatal to the dispatch call that observed it; the stream state is
// unknown afterwards.
type ProtocolError struct {
	Reason ProtocolReason
	Got    uint32
	Want   uint32
}

func (e *ProtocolError) Error() string {
	switch e.Reason {
	case ReasonBadMagic:
		return fmt.Sprintf("protocol violation: response magic 0x%08X, want 0x%08X", e.Got, e.Want)
	case ReasonBadLength:
		return fmt.Sprintf("protocol violation: response length %d, want %d", e.Got, e.Want)
	default:
		return fmt.Sprintf("protocol violation: %s", e.Reason)
	}
}

// IsProtocolError reports whether err is a ProtocolError.
func IsProtocolError(err error) bool {
	_, ok := err.(*ProtocolError)
	return ok
}

// TransportError wraps a timeout or I/O failure from the underlying transport.
// Fatal to the current dispatch call; the dispatcher never retries.
type TransportError struct {
	Op  string // "write header", "read response", "write payload", "read payload"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is a TransportError.
func IsTransportError(err error) bool {
	_, ok := err.(*TransportError)
	return ok
}

// UnknownCommandError indicates a command identifier absent from the registry.
// Raised before any transport access.
type UnknownCommandError struct {
	Command Command
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command 0x%02X", uint32(e.Command))
}

// IsUnknownCommand reports whether err is an UnknownCommandError.
func IsUnknownCommand(err error) bool {
	_, ok := err.(*UnknownCommandError)
	return ok
}
