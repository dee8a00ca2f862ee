// SPDX-License-Identifier: Apache-2.0

package moot

// DataPhase is the shape of the bulk transfer that follows the initial
// command/response handshake, fixed per command.
type DataPhase int

const (
	// PhaseNone has no data phase; the transaction is header in, header out.
	PhaseNone DataPhase = iota

	// PhaseHostToDevice sends an outbound payload after the device signals
	// recv_ready.
	PhaseHostToDevice

	// PhaseDeviceToHost reads a payload whose length the device announces in
	// its xmit_ready response.
	PhaseDeviceToHost
)

// Phase returns the data-phase shape for the command. The mapping is the
// compile-time command catalog; an identifier outside it fails with
// UnknownCommandError before any transport I/O happens.
func (c Command) Phase() (DataPhase, error) {
	switch c {
	case CmdFlash:
		return PhaseHostToDevice, nil
	case CmdBoot:
		return PhaseNone, nil
	case CmdDevInfo:
		return PhaseDeviceToHost, nil
	default:
		return PhaseNone, &UnknownCommandError{Command: c}
	}
}
