// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/modelrace/internal/config"
)

// =============================================================================
// CONFIG COMMAND - SHOW / INIT CONFIGURATION
// =============================================================================

// HandleConfig dispatches config subcommands: show, path, init.
func HandleConfig(args *ArgParser) error {
	switch args.Subcommand() {
	case "", "show":
		return configShow(args)
	case "path":
		return configPath()
	case "init":
		return configInit()
	default:
		return fmt.Errorf("unknown config subcommand %q (expected show, path, init)", args.Subcommand())
	}
}

// configShow prints the effective configuration after defaults and
// environment overrides.
func configShow(args *ArgParser) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if args.BoolFlag("json") {
		return NewJSONResponse("config show", cfg).Print()
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	fmt.Print(buf.String())
	return nil
}

func configPath() error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// configInit writes a default config file, refusing to overwrite an
// existing one.
func configInit() error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := config.Save(config.Default()); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}
