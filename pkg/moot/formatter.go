// SPDX-License-Identifier: Apache-2.0

package moot

import (
	"fmt"
	"strings"
)

func (c Command) String() string {
	switch c {
	case CmdFlash:
		return "FLASH"
	case CmdBoot:
		return "BOOT"
	case CmdDevInfo:
		return "DEVINFO"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint32(c))
	}
}

func (p DataPhase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseHostToDevice:
		return "host-to-device"
	case PhaseDeviceToHost:
		return "device-to-host"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (r Retcode) String() string {
	switch r {
	case RespNoError:
		return "no error"
	case RespXmitReady:
		return "xmit ready"
	case RespRecvReady:
		return "recv ready"
	case RespBadDataLen:
		return "bad data length"
	case RespBadMagic:
		return "bad magic"
	case RespUnknownCmd:
		return "unknown command"
	case RespSysImageTooBig:
		return "system image too big"
	case RespErrOpenSysFlash:
		return "failed to open system flash"
	case RespErrEraseSysFlash:
		return "failed to erase system flash"
	case RespCantFindBuildSig:
		return "build signature not found"
	case RespErrWriteSysFlash:
		return "failed to write system flash"
	case RespSysFlashReadErr:
		return "system flash read error"
	default:
		return fmt.Sprintf("retcode 0x%04X", uint32(r))
	}
}

// HexDump formats a payload as a classic 16-bytes-per-line hex dump with an
// ASCII gutter.
func HexDump(data []byte) string {
	var b strings.Builder

	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]

		fmt.Fprintf(&b, "%08x  ", off)
		for i := 0; i < 16; i++ {
			if i < len(line) {
				fmt.Fprintf(&b, "%02x ", line[i])
			} else {
				b.WriteString("   ")
			}
			if i == 7 {
				b.WriteByte(' ')
			}
		}

		b.WriteString(" |")
		for _, c := range line {
			if c >= 0x20 && c <= 0x7e {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("|\n")
	}

	return b.String()
}
