// SPDX-License-Identifier: Apache-2.0

package moot

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// fakeTransport simulates the device side of the protocol. Queued response
// bytes are served exactly as requested; running out of queued bytes models a
// device that never answers (a read timeout).
type fakeTransport struct {
	rx bytes.Buffer // bytes the device will send

	writes        [][]byte // every Write call, in order
	writeTimeouts []time.Duration
	readTimeouts  []time.Duration

	writeErr error
}

var errFakeTimeout = errors.New("read timed out")

func (f *fakeTransport) Write(p []byte, timeout time.Duration) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	f.writes = append(f.writes, buf)
	f.writeTimeouts = append(f.writeTimeouts, timeout)
	return len(p), nil
}

func (f *fakeTransport) Read(n int, timeout time.Duration) ([]byte, error) {
	f.readTimeouts = append(f.readTimeouts, timeout)
	if f.rx.Len() < n {
		return nil, errFakeTimeout
	}
	buf := make([]byte, n)
	if _, err := f.rx.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (f *fakeTransport) queueResponse(retcode Retcode, length uint32) {
	f.rx.Write(EncodeResponse(retcode, length))
}

func (f *fakeTransport) queuePayload(data []byte) {
	f.rx.Write(data)
}

// payloadBytesWritten counts bytes written after the 12-byte command header.
func (f *fakeTransport) payloadBytesWritten() int {
	total := 0
	for i, w := range f.writes {
		if i == 0 {
			continue
		}
		total += len(w)
	}
	return total
}

func TestDispatchBoot(t *testing.T) {
	ft := &fakeTransport{}
	ft.queueResponse(RespNoError, 0)

	retcode, payload, err := NewDispatcher(ft).Dispatch(CmdBoot, nil)
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if retcode != RespNoError {
		t.Errorf("retcode = %v, want %v", retcode, RespNoError)
	}
	if len(payload) != 0 {
		t.Errorf("payload = % X, want empty", payload)
	}

	if len(ft.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(ft.writes))
	}
	if !bytes.Equal(ft.writes[0], EncodeCommand(CmdBoot, 0)) {
		t.Errorf("header = % X", ft.writes[0])
	}
}

func TestDispatchBootNonzeroLengthIsFatal(t *testing.T) {
	// A phase-less command must never report a payload, whatever the retcode.
	for _, rc := range []Retcode{RespNoError, RespXmitReady, RespErrWriteSysFlash} {
		ft := &fakeTransport{}
		ft.queueResponse(rc, 4)

		_, _, err := NewDispatcher(ft).Dispatch(CmdBoot, nil)
		if err == nil {
			t.Fatalf("retcode %v: expected protocol error", rc)
		}
		perr, ok := err.(*ProtocolError)
		if !ok {
			t.Fatalf("retcode %v: expected *ProtocolError, got %T", rc, err)
		}
		if perr.Reason != ReasonBadLength {
			t.Errorf("retcode %v: reason = %v, want %v", rc, perr.Reason, ReasonBadLength)
		}
	}
}

func TestDispatchDevInfo(t *testing.T) {
	info := bytes.Repeat([]byte{0xA5}, 32)

	ft := &fakeTransport{}
	ft.queueResponse(RespXmitReady, uint32(len(info)))
	ft.queuePayload(info)
	ft.queueResponse(RespNoError, 0)

	retcode, payload, err := NewDispatcher(ft).Dispatch(CmdDevInfo, nil)
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if retcode != RespNoError {
		t.Errorf("retcode = %v, want %v", retcode, RespNoError)
	}
	if !bytes.Equal(payload, info) {
		t.Errorf("payload = % X, want % X", payload, info)
	}
}

func TestDispatchDevInfoAbort(t *testing.T) {
	ft := &fakeTransport{}
	ft.queueResponse(RespSysFlashReadErr, 0)

	retcode, payload, err := NewDispatcher(ft).Dispatch(CmdDevInfo, nil)
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if retcode != RespSysFlashReadErr {
		t.Errorf("retcode = %v, want %v", retcode, RespSysFlashReadErr)
	}
	if len(payload) != 0 {
		t.Errorf("payload = % X, want empty", payload)
	}

	// One header read only; no payload read was attempted.
	if len(ft.readTimeouts) != 1 {
		t.Errorf("reads = %d, want 1", len(ft.readTimeouts))
	}
}

func TestDispatchDevInfoLengthFromFirstResponse(t *testing.T) {
	// The payload length is authoritative from the xmit_ready response; the
	// closing response supplies only the status, even when its length field
	// disagrees.
	info := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	ft := &fakeTransport{}
	ft.queueResponse(RespXmitReady, uint32(len(info)))
	ft.queuePayload(info)
	ft.queueResponse(RespNoError, 99)

	retcode, payload, err := NewDispatcher(ft).Dispatch(CmdDevInfo, nil)
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if retcode != RespNoError {
		t.Errorf("retcode = %v, want %v", retcode, RespNoError)
	}
	if !bytes.Equal(payload, info) {
		t.Errorf("payload = % X, want % X", payload, info)
	}
}

func TestDispatchFlash(t *testing.T) {
	image := bytes.Repeat([]byte{0x5A}, 1024)

	ft := &fakeTransport{}
	ft.queueResponse(RespRecvReady, 0)
	ft.queueResponse(RespErrWriteSysFlash, 0)

	retcode, payload, err := NewDispatcher(ft).Dispatch(CmdFlash, image)
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if retcode != RespErrWriteSysFlash {
		t.Errorf("retcode = %v, want %v", retcode, RespErrWriteSysFlash)
	}
	if len(payload) != 0 {
		t.Errorf("payload = % X, want empty", payload)
	}

	if !bytes.Equal(ft.writes[0], EncodeCommand(CmdFlash, 1024)) {
		t.Errorf("header = % X", ft.writes[0])
	}
	if got := ft.payloadBytesWritten(); got != 1024 {
		t.Errorf("payload bytes written = %d, want 1024", got)
	}
}

func TestDispatchFlashAbort(t *testing.T) {
	image := bytes.Repeat([]byte{0x5A}, 256)

	ft := &fakeTransport{}
	ft.queueResponse(RespSysImageTooBig, 0)

	retcode, payload, err := NewDispatcher(ft).Dispatch(CmdFlash, image)
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if retcode != RespSysImageTooBig {
		t.Errorf("retcode = %v, want %v", retcode, RespSysImageTooBig)
	}
	if len(payload) != 0 {
		t.Errorf("payload = % X, want empty", payload)
	}
	if got := ft.payloadBytesWritten(); got != 0 {
		t.Errorf("payload bytes written = %d, want 0", got)
	}
}

func TestDispatchFlashReadinessNonzeroLength(t *testing.T) {
	ft := &fakeTransport{}
	ft.queueResponse(RespRecvReady, 16)

	_, _, err := NewDispatcher(ft).Dispatch(CmdFlash, []byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected protocol error")
	}
	if !IsProtocolError(err) {
		t.Fatalf("expected ProtocolError, got %T", err)
	}
	if got := ft.payloadBytesWritten(); got != 0 {
		t.Errorf("payload bytes written = %d, want 0", got)
	}
}

func TestDispatchFlashReadinessTimeout(t *testing.T) {
	// The device never acknowledges the header: the data-phase read fails and
	// the payload must never be sent.
	ft := &fakeTransport{}

	_, _, err := NewDispatcher(ft).Dispatch(CmdFlash, bytes.Repeat([]byte{0xEE}, 512))
	if err == nil {
		t.Fatal("expected transport error")
	}
	if !IsTransportError(err) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if !errors.Is(err, errFakeTimeout) {
		t.Errorf("expected wrapped timeout, got %v", err)
	}
	if got := ft.payloadBytesWritten(); got != 0 {
		t.Errorf("payload bytes written = %d, want 0", got)
	}
}

func TestDispatchBadMagic(t *testing.T) {
	for _, cmd := range []Command{CmdFlash, CmdBoot, CmdDevInfo} {
		ft := &fakeTransport{}
		ft.queuePayload(EncodeCommand(CmdBoot, 0)) // wrong magic for a response

		_, _, err := NewDispatcher(ft).Dispatch(cmd, []byte{0x00})
		if err == nil {
			t.Fatalf("%v: expected protocol error", cmd)
		}
		perr, ok := err.(*ProtocolError)
		if !ok {
			t.Fatalf("%v: expected *ProtocolError, got %T", cmd, err)
		}
		if perr.Reason != ReasonBadMagic {
			t.Errorf("%v: reason = %v, want %v", cmd, perr.Reason, ReasonBadMagic)
		}
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	ft := &fakeTransport{}

	_, _, err := NewDispatcher(ft).Dispatch(Command(0xFF), nil)
	if err == nil {
		t.Fatal("expected error for unregistered command")
	}
	if !IsUnknownCommand(err) {
		t.Fatalf("expected UnknownCommandError, got %T", err)
	}
	if len(ft.writes) != 0 {
		t.Errorf("writes = %d, want 0 (no I/O before registry check)", len(ft.writes))
	}
	if len(ft.readTimeouts) != 0 {
		t.Errorf("reads = %d, want 0", len(ft.readTimeouts))
	}
}

func TestDispatchTimeoutRegimes(t *testing.T) {
	const dataTimeout = 2 * time.Second

	t.Run("boot uses default wait", func(t *testing.T) {
		ft := &fakeTransport{}
		ft.queueResponse(RespNoError, 0)

		d := NewDispatcher(ft, WithDataTimeout(dataTimeout))
		if _, _, err := d.Dispatch(CmdBoot, nil); err != nil {
			t.Fatalf("dispatch error: %v", err)
		}

		want := []time.Duration{0}
		assertTimeouts(t, ft.readTimeouts, want)
	})

	t.Run("flash bounds the readiness read", func(t *testing.T) {
		ft := &fakeTransport{}
		ft.queueResponse(RespRecvReady, 0)
		ft.queueResponse(RespNoError, 0)

		d := NewDispatcher(ft, WithDataTimeout(dataTimeout))
		if _, _, err := d.Dispatch(CmdFlash, []byte{1, 2, 3}); err != nil {
			t.Fatalf("dispatch error: %v", err)
		}

		assertTimeouts(t, ft.readTimeouts, []time.Duration{dataTimeout, 0})
		// header write is unbounded, payload chunks are not
		assertTimeouts(t, ft.writeTimeouts, []time.Duration{0, dataTimeout})
	})

	t.Run("devinfo bounds the payload read", func(t *testing.T) {
		ft := &fakeTransport{}
		ft.queueResponse(RespXmitReady, 4)
		ft.queuePayload([]byte{1, 2, 3, 4})
		ft.queueResponse(RespNoError, 0)

		d := NewDispatcher(ft, WithDataTimeout(dataTimeout))
		if _, _, err := d.Dispatch(CmdDevInfo, nil); err != nil {
			t.Fatalf("dispatch error: %v", err)
		}

		assertTimeouts(t, ft.readTimeouts, []time.Duration{0, dataTimeout, 0})
	})
}

func assertTimeouts(t *testing.T, got, want []time.Duration) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("timeouts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("timeout[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDispatchChunkedWrites(t *testing.T) {
	image := bytes.Repeat([]byte{0xC3}, 10)

	ft := &fakeTransport{}
	ft.queueResponse(RespRecvReady, 0)
	ft.queueResponse(RespNoError, 0)

	var progress [][2]int
	d := NewDispatcher(ft,
		WithChunkSize(4),
		WithProgress(func(written, total int) {
			progress = append(progress, [2]int{written, total})
		}),
	)

	if _, _, err := d.Dispatch(CmdFlash, image); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}

	// header + 3 chunks of 4, 4, 2
	if len(ft.writes) != 4 {
		t.Fatalf("writes = %d, want 4", len(ft.writes))
	}
	if got := ft.payloadBytesWritten(); got != len(image) {
		t.Errorf("payload bytes written = %d, want %d", got, len(image))
	}

	want := [][2]int{{4, 10}, {8, 10}, {10, 10}}
	if len(progress) != len(want) {
		t.Fatalf("progress calls = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}
}

func TestDispatchTraceSequence(t *testing.T) {
	t.Run("devinfo success", func(t *testing.T) {
		ft := &fakeTransport{}
		ft.queueResponse(RespXmitReady, 4)
		ft.queuePayload([]byte{1, 2, 3, 4})
		ft.queueResponse(RespNoError, 0)

		var events []TraceKind
		d := NewDispatcher(ft, WithTrace(func(ev TraceEvent) {
			events = append(events, ev.Kind)
		}))
		if _, _, err := d.Dispatch(CmdDevInfo, nil); err != nil {
			t.Fatalf("dispatch error: %v", err)
		}

		want := []TraceKind{TraceFrameSent, TraceFrameReceived, TraceDataReceived, TraceFrameReceived}
		assertTraceKinds(t, events, want)
	})

	t.Run("flash rejected", func(t *testing.T) {
		ft := &fakeTransport{}
		ft.queueResponse(RespSysImageTooBig, 0)

		var events []TraceEvent
		d := NewDispatcher(ft, WithTrace(func(ev TraceEvent) {
			events = append(events, ev)
		}))
		if _, _, err := d.Dispatch(CmdFlash, []byte{1}); err != nil {
			t.Fatalf("dispatch error: %v", err)
		}

		kinds := make([]TraceKind, len(events))
		for i, ev := range events {
			kinds[i] = ev.Kind
		}
		assertTraceKinds(t, kinds, []TraceKind{TraceFrameSent, TraceFrameReceived, TraceAbort})

		last := events[len(events)-1]
		if last.Retcode != RespSysImageTooBig {
			t.Errorf("abort retcode = %v, want %v", last.Retcode, RespSysImageTooBig)
		}
		if last.Command != CmdFlash {
			t.Errorf("abort command = %v, want %v", last.Command, CmdFlash)
		}
	})
}

func assertTraceKinds(t *testing.T, got, want []TraceKind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("trace[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDispatchWriteError(t *testing.T) {
	ft := &fakeTransport{writeErr: errors.New("endpoint gone")}

	_, _, err := NewDispatcher(ft).Dispatch(CmdBoot, nil)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if !IsTransportError(err) {
		t.Fatalf("expected TransportError, got %T", err)
	}
}
