// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/yinbiaozhong/lk/pkg/moot"
)

var flashNoTUI bool

var flashCmd = &cobra.Command{
	Use:   "flash <image>",
	Short: "Flash a system image to the device",
	Long: `Write a binary system image to the device's system flash.

The image is read from disk and streamed to the bootloader once it signals it
is ready to receive. The device reports the final status only after the whole
image has been transferred and written.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlash,
}

func init() {
	flashCmd.Flags().BoolVar(&flashNoTUI, "no-tui", false, "Plain log output instead of the progress UI")
	rootCmd.AddCommand(flashCmd)
}

func runFlash(cmd *cobra.Command, args []string) error {
	imagePath := args[0]
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if len(image) == 0 {
		return fmt.Errorf("image %s is empty", imagePath)
	}

	if !flashNoTUI && isatty.IsTerminal(os.Stdout.Fd()) {
		return flashWithTUI(imagePath, image)
	}
	return flashPlain(imagePath, image)
}

func flashPlain(imagePath string, image []byte) error {
	lastQuarter := 0
	d, conn, connInfo, err := newDispatcher(
		moot.WithProgress(func(written, total int) {
			quarter := written * 4 / total
			if quarter > lastQuarter {
				lastQuarter = quarter
				logger.Info().
					Int("written", written).
					Int("total", total).
					Msgf("transfer %d%%", written*100/total)
			}
		}),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info().
		Str("connection", connInfo).
		Str("image", imagePath).
		Int("bytes", len(image)).
		Msg("flashing system image")

	start := time.Now()
	retcode, _, err := d.Dispatch(moot.CmdFlash, image)
	if err != nil {
		return err
	}
	if retcode.IsError() {
		return fmt.Errorf("device rejected flash: %s (0x%04X)", retcode, uint32(retcode))
	}

	logger.Info().
		Int("bytes", len(image)).
		Dur("elapsed", time.Since(start)).
		Msg("flash complete")
	return nil
}
