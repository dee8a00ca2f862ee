// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yinbiaozhong/lk/pkg/moot"
)

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Boot the flashed system image",
	Long: `Ask the bootloader to verify and boot the currently flashed system image.

The device answers before it jumps to the image; a missing or corrupt image is
reported as a device error (for example when no build signature is found).`,
	RunE: runBoot,
}

func init() {
	rootCmd.AddCommand(bootCmd)
}

func runBoot(cmd *cobra.Command, args []string) error {
	d, conn, connInfo, err := newDispatcher()
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info().Str("connection", connInfo).Msg("booting system image")

	retcode, _, err := d.Dispatch(moot.CmdBoot, nil)
	if err != nil {
		return err
	}
	if retcode.IsError() {
		return fmt.Errorf("device rejected boot: %s (0x%04X)", retcode, uint32(retcode))
	}

	logger.Info().Msg("device is booting")
	return nil
}
