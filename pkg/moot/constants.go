// SPDX-License-Identifier: Apache-2.0

// Package moot implements the host side of the LK moot bootloader protocol.
//
// The bootloader exposes a small command/response protocol over a byte-stream
// transport with one device-bound and one host-bound endpoint. Every
// transaction opens with a fixed 12-byte command header and closes with a
// 12-byte response header; commands that carry bulk data run an additional
// data phase between the two. This package provides the frame codec, the
// command registry and the dispatcher state machine that drives a complete
// transaction and surfaces the device's retcode and any returned payload.
package moot

import "time"

// Frame magics. Every command header opens with CommandMagic ("MOOT") and
// every response header opens with ResponseMagic ("RESP"). A response whose
// first word is anything else means the stream is desynchronized.
const (
	CommandMagic  uint32 = 0x4d4f4f54
	ResponseMagic uint32 = 0x52455350
)

// HeaderSize is the wire size of both the command and response headers.
const HeaderSize = 12

// Command identifies a bootloader operation. Identifiers are opaque 32-bit
// values on the wire.
type Command uint32

// Bootloader commands.
const (
	CmdFlash   Command = 0x01 // write a system image to flash
	CmdBoot    Command = 0x02 // boot the currently flashed image
	CmdDevInfo Command = 0x03 // read the device info record
)

// Retcode is the device-reported status closing a transaction step.
//
// Values are partitioned into three bands: normal operation (0x0000-0x0002),
// malformed requests (descending from 0xFFFF) and device-system errors
// (0xFFF3-0xFFF8). The band is informative only; values round-trip exactly.
type Retcode uint32

// Normal operation.
const (
	RespNoError   Retcode = 0x0000
	RespXmitReady Retcode = 0x0001 // device is about to transmit a payload
	RespRecvReady Retcode = 0x0002 // device is ready to receive a payload
)

// Malformed request errors.
const (
	RespBadDataLen Retcode = 0xFFFF
	RespBadMagic   Retcode = 0xFFFE
	RespUnknownCmd Retcode = 0xFFFD
)

// Device system errors.
const (
	RespSysImageTooBig   Retcode = 0xFFF8
	RespErrOpenSysFlash  Retcode = 0xFFF7
	RespErrEraseSysFlash Retcode = 0xFFF6
	RespCantFindBuildSig Retcode = 0xFFF5
	RespErrWriteSysFlash Retcode = 0xFFF4
	RespSysFlashReadErr  Retcode = 0xFFF3
)

// IsError reports whether the retcode falls outside the normal-operation band.
func (r Retcode) IsError() bool {
	switch r {
	case RespNoError, RespXmitReady, RespRecvReady:
		return false
	}
	return true
}

// DefaultDataTimeout bounds data-phase operations: the readiness handshake and
// the payload transfer itself. Once a device has committed to a data phase it
// is expected to respond promptly; control-phase reads have no such bound
// because they cover device thinking time (erasing flash, booting).
const DefaultDataTimeout = 10 * time.Second

// DefaultChunkSize is the write granularity for outbound payloads. Chunking
// keeps individual transport writes bounded and gives progress reporting
// something to hook into; the data-phase timeout applies per chunk.
const DefaultChunkSize = 4096
