// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// fileConfig mirrors the optional TOML config file. Every field supplies a
// default for the matching flag; flags the user sets explicitly always win.
type fileConfig struct {
	Port        string `toml:"port"`
	Baud        int    `toml:"baud"`
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	DataTimeout string `toml:"data_timeout"`
	ChunkSize   int    `toml:"chunk_size"`
}

type loadedConfig struct {
	raw  fileConfig
	meta toml.MetaData
}

func loadConfigFile(path string) (*loadedConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &loadedConfig{raw: raw, meta: meta}, nil
}

// defaultConfigPath returns ~/.config/lkboot/config.toml (or the platform
// equivalent), or "" when it cannot be determined.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "lkboot", "config.toml")
}

// applyConfig folds config-file values into flags the user left untouched.
// An explicit --config path must exist; the default path is optional.
func applyConfig(cmd *cobra.Command) error {
	path := configPath
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return nil
		}
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}

	cfg, err := loadConfigFile(path)
	if err != nil {
		if explicit {
			return err
		}
		logger.Warn().Str("path", path).Err(err).Msg("ignoring unreadable config file")
		return nil
	}

	flags := cmd.Root().PersistentFlags()

	if cfg.meta.IsDefined("port") && !flags.Changed("port") {
		portName = strings.TrimSpace(cfg.raw.Port)
	}
	if cfg.meta.IsDefined("baud") && !flags.Changed("baud") && cfg.raw.Baud > 0 {
		baudRate = cfg.raw.Baud
	}
	if cfg.meta.IsDefined("url") && !flags.Changed("url") {
		wsURL = strings.TrimSpace(cfg.raw.URL)
	}
	if cfg.meta.IsDefined("username") && !flags.Changed("username") {
		wsUsername = strings.TrimSpace(cfg.raw.Username)
	}
	if cfg.meta.IsDefined("data_timeout") && !flags.Changed("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(cfg.raw.DataTimeout))
		if err != nil {
			return fmt.Errorf("parse data_timeout: %w", err)
		}
		dataTimeout = d
	}
	if cfg.meta.IsDefined("chunk_size") && !flags.Changed("chunk-size") && cfg.raw.ChunkSize > 0 {
		chunkSize = cfg.raw.ChunkSize
	}

	return nil
}
