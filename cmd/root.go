// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yinbiaozhong/lk/pkg/moot"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket bridge flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Behaviour flags
	configPath  string
	dataTimeout time.Duration
	chunkSize   int
	verbose     bool

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lkboot",
	Short: "LK moot bootloader host tool",
	Long: `lkboot talks to a device running the LK moot bootloader and lets you
flash a system image, boot the flashed image, or read the device info record.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

A WebSocket URL points at a device bridge exposing the bootloader endpoints as
binary messages. For WebSocket authentication, the password is read from the
LKBOOT_PASSWORD environment variable, or prompted interactively if not set.
The --password flag is intentionally not provided to avoid leaking credentials
in shell history.

Defaults for the connection flags can be placed in a TOML config file
(--config, or ~/.config/lkboot/config.toml); explicit flags always win.`,
	Version:           "1.0.2",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket bridge flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (TOML)")
	rootCmd.PersistentFlags().DurationVarP(&dataTimeout, "timeout", "t", moot.DefaultDataTimeout, "Data-phase timeout")
	rootCmd.PersistentFlags().IntVar(&chunkSize, "chunk-size", moot.DefaultChunkSize, "Payload write chunk size in bytes")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log protocol trace events")
}

// setup initializes logging and folds config-file defaults into any flag the
// user did not set explicitly.
func setup(cmd *cobra.Command, args []string) error {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(level).
		With().Timestamp().Logger()

	return applyConfig(cmd)
}

// traceSink bridges dispatcher trace events into the debug log.
func traceSink(ev moot.TraceEvent) {
	logger.Debug().
		Str("event", ev.Kind.String()).
		Str("command", ev.Command.String()).
		Str("retcode", ev.Retcode.String()).
		Int("length", ev.Length).
		Msg("trace")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
