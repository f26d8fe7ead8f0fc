// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/modelrace/internal/config"
	"github.com/jeranaias/modelrace/internal/export"
	"github.com/jeranaias/modelrace/internal/history"
)

// =============================================================================
// EXPORT COMMAND - RE-EXPORT AN ARCHIVED SESSION
// =============================================================================

// HandleExport re-exports an archived session to JSON and/or Markdown.
func HandleExport(args *ArgParser) error {
	id := args.Positional(0)
	if id == "" {
		return errors.New("usage: modelrace export <session-id> [--format json|markdown|both] [--output DIR]")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := store.Load(ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("no session with ID %s", id)
	}
	if err != nil {
		return err
	}

	opts := &export.Options{
		OutputDir: args.FlagOrDefault("output", cfg.Export.OutputDir),
	}

	format := args.FlagOrDefault("format", "both")
	switch format {
	case "json":
		path, err := export.ExportJSON(sess, opts)
		if err != nil {
			return err
		}
		fmt.Println(path)
	case "markdown", "md":
		path, err := export.ExportMarkdown(sess, opts)
		if err != nil {
			return err
		}
		fmt.Println(path)
	case "both":
		jsonPath, err := export.ExportJSON(sess, opts)
		if err != nil {
			return err
		}
		mdPath, err := export.ExportMarkdown(sess, opts)
		if err != nil {
			return err
		}
		fmt.Println(jsonPath)
		fmt.Println(mdPath)
	default:
		return fmt.Errorf("unknown format %q (expected json, markdown, or both)", format)
	}
	return nil
}
