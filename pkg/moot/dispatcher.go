// SPDX-License-Identifier: Apache-2.0

package moot

import (
	"fmt"
	"time"
)

// ProgressFunc reports outbound payload progress as (written, total) bytes.
// Implementations should return quickly; they run on the dispatch path.
type ProgressFunc func(written, total int)

// Dispatcher drives complete bootloader transactions over a Transport. One
// Dispatch call is one transaction; the dispatcher holds no state across
// calls. It is not safe for concurrent dispatches against the same transport.
type Dispatcher struct {
	transport   Transport
	dataTimeout time.Duration
	chunkSize   int
	progress    ProgressFunc
	trace       TraceFunc
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDataTimeout sets the bounded wait used for data-phase operations: the
// readiness handshake and the payload transfer. Default is DefaultDataTimeout.
func WithDataTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.dataTimeout = timeout
		}
	}
}

// WithChunkSize sets the write granularity for outbound payloads.
// Default is DefaultChunkSize.
func WithChunkSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.chunkSize = size
		}
	}
}

// WithProgress sets a callback reporting outbound payload progress.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Dispatcher) {
		d.progress = fn
	}
}

// WithTrace sets a sink receiving dispatcher trace events.
func WithTrace(fn TraceFunc) Option {
	return func(d *Dispatcher) {
		d.trace = fn
	}
}

// NewDispatcher creates a Dispatcher speaking the moot protocol over transport.
func NewDispatcher(transport Transport, opts ...Option) *Dispatcher {
	if transport == nil {
		panic("moot: transport cannot be nil")
	}

	d := &Dispatcher{
		transport:   transport,
		dataTimeout: DefaultDataTimeout,
		chunkSize:   DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one complete transaction: it frames cmd, negotiates the data
// phase the command calls for, and returns the device's final retcode plus any
// payload the device sent back.
//
// Framing and transport failures come back as errors (ProtocolError,
// TransportError, UnknownCommandError) and abort the call with no partial
// result. A device-reported failure is not an error: it is returned as the
// retcode, with an empty payload, for the caller to inspect.
func (d *Dispatcher) Dispatch(cmd Command, payload []byte) (Retcode, []byte, error) {
	phase, err := cmd.Phase()
	if err != nil {
		return 0, nil, err
	}

	switch phase {
	case PhaseNone:
		return d.dispatchNone(cmd)
	case PhaseHostToDevice:
		return d.dispatchHostToDevice(cmd, payload)
	case PhaseDeviceToHost:
		return d.dispatchDeviceToHost(cmd)
	default:
		return 0, nil, fmt.Errorf("moot: unhandled data phase %d", phase)
	}
}

// dispatchNone runs a header-only transaction. The closing response must
// report a zero length; the device has nothing to send for these commands.
func (d *Dispatcher) dispatchNone(cmd Command) (Retcode, []byte, error) {
	if err := d.writeHeader(cmd, 0); err != nil {
		return 0, nil, err
	}

	retcode, length, err := d.readResponse(cmd, 0)
	if err != nil {
		return 0, nil, err
	}
	if length != 0 {
		return 0, nil, &ProtocolError{Reason: ReasonBadLength, Got: length, Want: 0}
	}

	return retcode, nil, nil
}

// dispatchHostToDevice sends payload after the device signals recv_ready.
// The readiness response must arrive within the data timeout and carry a zero
// length. Any other retcode aborts the transfer before a payload byte moves.
// No payload is ever returned for this shape, even on success.
func (d *Dispatcher) dispatchHostToDevice(cmd Command, payload []byte) (Retcode, []byte, error) {
	if err := d.writeHeader(cmd, uint32(len(payload))); err != nil {
		return 0, nil, err
	}

	retcode, length, err := d.readResponse(cmd, d.dataTimeout)
	if err != nil {
		return 0, nil, err
	}
	if length != 0 {
		return 0, nil, &ProtocolError{Reason: ReasonBadLength, Got: length, Want: 0}
	}
	if retcode != RespRecvReady {
		d.emit(TraceEvent{Kind: TraceAbort, Command: cmd, Retcode: retcode})
		return retcode, nil, nil
	}

	if err := d.writePayload(cmd, payload); err != nil {
		return 0, nil, err
	}

	final, _, err := d.readResponse(cmd, 0)
	if err != nil {
		return 0, nil, err
	}
	return final, nil, nil
}

// dispatchDeviceToHost reads back a payload whose length the device announces
// in its xmit_ready response. The payload length is authoritative from that
// first response; the status surfaced to the caller comes from the second,
// closing response. A firmware whose two lengths disagree still transfers
// exactly the announced byte count.
func (d *Dispatcher) dispatchDeviceToHost(cmd Command) (Retcode, []byte, error) {
	if err := d.writeHeader(cmd, 0); err != nil {
		return 0, nil, err
	}

	retcode, length, err := d.readResponse(cmd, 0)
	if err != nil {
		return 0, nil, err
	}
	if retcode != RespXmitReady {
		d.emit(TraceEvent{Kind: TraceAbort, Command: cmd, Retcode: retcode})
		return retcode, nil, nil
	}

	payload, err := d.transport.Read(int(length), d.dataTimeout)
	if err != nil {
		return 0, nil, &TransportError{Op: "read payload", Err: err}
	}
	d.emit(TraceEvent{Kind: TraceDataReceived, Command: cmd, Length: len(payload)})

	final, _, err := d.readResponse(cmd, 0)
	if err != nil {
		return 0, nil, err
	}
	return final, payload, nil
}

// writeHeader encodes and writes a command header.
func (d *Dispatcher) writeHeader(cmd Command, length uint32) error {
	frame := EncodeCommand(cmd, length)
	n, err := d.transport.Write(frame, 0)
	if err != nil {
		return &TransportError{Op: "write header", Err: err}
	}
	if n != len(frame) {
		return &TransportError{Op: "write header", Err: fmt.Errorf("short write: %d of %d bytes", n, len(frame))}
	}

	d.emit(TraceEvent{Kind: TraceFrameSent, Command: cmd, Length: int(length)})
	return nil
}

// readResponse reads and decodes one response header with the given timeout
// (zero means the default, unbounded wait).
func (d *Dispatcher) readResponse(cmd Command, timeout time.Duration) (Retcode, uint32, error) {
	buf, err := d.transport.Read(HeaderSize, timeout)
	if err != nil {
		return 0, 0, &TransportError{Op: "read response", Err: err}
	}

	retcode, length, err := DecodeResponse(buf)
	if err != nil {
		return 0, 0, err
	}

	d.emit(TraceEvent{Kind: TraceFrameReceived, Command: cmd, Retcode: retcode, Length: int(length)})
	return retcode, length, nil
}

// writePayload writes the outbound payload in chunks, each bounded by the
// data timeout, reporting progress after every chunk.
func (d *Dispatcher) writePayload(cmd Command, payload []byte) error {
	total := len(payload)
	written := 0

	for written < total {
		chunk := payload[written:]
		if len(chunk) > d.chunkSize {
			chunk = chunk[:d.chunkSize]
		}

		n, err := d.transport.Write(chunk, d.dataTimeout)
		if err != nil {
			return &TransportError{Op: "write payload", Err: err}
		}
		if n != len(chunk) {
			return &TransportError{Op: "write payload", Err: fmt.Errorf("short write: %d of %d bytes", n, len(chunk))}
		}

		written += n
		if d.progress != nil {
			d.progress(written, total)
		}
	}

	d.emit(TraceEvent{Kind: TraceDataSent, Command: cmd, Length: total})
	return nil
}

func (d *Dispatcher) emit(ev TraceEvent) {
	if d.trace != nil {
		d.trace(ev)
	}
}
