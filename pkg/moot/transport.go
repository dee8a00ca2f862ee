// SPDX-License-Identifier: Apache-2.0

package moot

import "time"

// Transport moves raw bytes between the host and the device bootloader. The
// two methods map onto the device-bound and host-bound endpoints of the
// underlying link (USB bulk pair, serial line, WebSocket bridge).
//
// A zero timeout means block until the operation completes (the default wait
// used for control-phase reads). Read must return exactly n bytes or fail;
// a short read is never a success.
//
// Implementations are not required to be safe for concurrent use. The
// dispatcher assumes exclusive access for the duration of a call and callers
// must serialize dispatches sharing a transport.
type Transport interface {
	Write(p []byte, timeout time.Duration) (int, error)
	Read(n int, timeout time.Duration) ([]byte, error)
}
