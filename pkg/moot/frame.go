// SPDX-License-Identifier: Apache-2.0

package moot

import (
	"encoding/binary"
	"fmt"
)

// EncodeCommand packs a command header to wire format:
//
//	[u32 magic "MOOT"][u32 command][u32 payload_length]
//
// all little-endian. For HostToDevice commands length is the exact outbound
// payload size; for every other phase shape it is zero.
func EncodeCommand(cmd Command, length uint32) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], CommandMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(cmd))
	binary.LittleEndian.PutUint32(buf[8:12], length)
	return buf
}

// DecodeResponse unpacks a response header:
//
//	[u32 magic "RESP"][u32 retcode][u32 length]
//
// It fails with a ProtocolError if the magic does not match. No other field
// validation happens here; length/phase consistency belongs to the dispatcher.
func DecodeResponse(buf []byte) (Retcode, uint32, error) {
	if len(buf) != HeaderSize {
		return 0, 0, fmt.Errorf("response header must be %d bytes, got %d", HeaderSize, len(buf))
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != ResponseMagic {
		return 0, 0, &ProtocolError{Reason: ReasonBadMagic, Got: magic, Want: ResponseMagic}
	}

	retcode := Retcode(binary.LittleEndian.Uint32(buf[4:8]))
	length := binary.LittleEndian.Uint32(buf[8:12])
	return retcode, length, nil
}

// EncodeResponse packs a response header to wire format. The host never sends
// responses; this exists for device simulators and tests.
func EncodeResponse(retcode Retcode, length uint32) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], ResponseMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(retcode))
	binary.LittleEndian.PutUint32(buf[8:12], length)
	return buf
}
