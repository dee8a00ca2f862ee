// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"

	"github.com/yinbiaozhong/lk/pkg/moot"
)

var devinfoRaw bool

var devinfoCmd = &cobra.Command{
	Use:   "devinfo",
	Short: "Read the device info record",
	Long: `Read the bootloader's device info record and print it.

Newer firmware encodes the record as a CBOR map; when the payload decodes as
one it is printed field by field, otherwise (or with --raw) the payload is
shown as a hex dump.`,
	RunE: runDevInfo,
}

func init() {
	devinfoCmd.Flags().BoolVar(&devinfoRaw, "raw", false, "Always hex dump the record")
	rootCmd.AddCommand(devinfoCmd)
}

func runDevInfo(cmd *cobra.Command, args []string) error {
	d, conn, connInfo, err := newDispatcher()
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info().Str("connection", connInfo).Msg("reading device info")

	retcode, payload, err := d.Dispatch(moot.CmdDevInfo, nil)
	if err != nil {
		return err
	}
	if retcode.IsError() {
		return fmt.Errorf("device rejected devinfo: %s (0x%04X)", retcode, uint32(retcode))
	}
	if len(payload) == 0 {
		fmt.Println("device returned an empty info record")
		return nil
	}

	if !devinfoRaw {
		if record, ok := decodeInfoRecord(payload); ok {
			printInfoRecord(record)
			return nil
		}
	}

	fmt.Printf("device info (%d bytes):\n%s", len(payload), moot.HexDump(payload))
	return nil
}

// decodeInfoRecord attempts to parse the payload as a CBOR string-keyed map.
func decodeInfoRecord(payload []byte) (map[string]interface{}, bool) {
	var record map[string]interface{}
	if err := cbor.Unmarshal(payload, &record); err != nil {
		return nil, false
	}
	if len(record) == 0 {
		return nil, false
	}
	return record, true
}

func printInfoRecord(record map[string]interface{}) {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := record[k].(type) {
		case []byte:
			fmt.Printf("%-20s % X\n", k, v)
		default:
			fmt.Printf("%-20s %v\n", k, v)
		}
	}
}
