// SPDX-License-Identifier: Apache-2.0
//
// lkboot - LK moot bootloader host tool
//
// A CLI tool for flashing, booting and inspecting devices running the LK
// moot bootloader over serial or a WebSocket device bridge.

package main

import (
	"os"

	"github.com/yinbiaozhong/lk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
