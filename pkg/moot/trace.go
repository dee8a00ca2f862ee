// SPDX-License-Identifier: Apache-2.0

package moot

// TraceKind identifies a dispatcher trace event.
type TraceKind int

const (
	// TraceFrameSent is emitted after a command header is written.
	TraceFrameSent TraceKind = iota

	// TraceFrameReceived is emitted after a response header is decoded.
	TraceFrameReceived

	// TraceDataSent is emitted after the outbound payload completes.
	TraceDataSent

	// TraceDataReceived is emitted after an inbound payload completes.
	TraceDataReceived

	// TraceAbort is emitted when the device declines a data phase and the
	// dispatch returns early with the device's retcode.
	TraceAbort
)

func (k TraceKind) String() string {
	switch k {
	case TraceFrameSent:
		return "frame sent"
	case TraceFrameReceived:
		return "frame received"
	case TraceDataSent:
		return "data sent"
	case TraceDataReceived:
		return "data received"
	case TraceAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// TraceEvent describes one step of a dispatch. Events carry the command the
// transaction is running and, where meaningful, the retcode and byte length
// observed at that step.
type TraceEvent struct {
	Kind    TraceKind
	Command Command
	Retcode Retcode
	Length  int
}

// TraceFunc receives dispatcher trace events. The sink is injected so tests
// and tools can observe the exact frame/phase sequence; a nil sink disables
// tracing. Implementations must not call back into the dispatcher.
type TraceFunc func(TraceEvent)
