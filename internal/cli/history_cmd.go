// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/modelrace/internal/config"
	"github.com/jeranaias/modelrace/internal/history"
	"github.com/jeranaias/modelrace/internal/util"
)

// =============================================================================
// HISTORY COMMAND - MANAGE ARCHIVED SESSIONS
// =============================================================================

// HandleHistory dispatches history subcommands: list, show, delete, clear.
func HandleHistory(args *ArgParser) error {
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

	switch args.Subcommand() {
	case "", "list":
		return historyList(ctx, store, args, cfg)
	case "show":
		return historyShow(ctx, store, args)
	case "delete":
		return historyDelete(ctx, store, args)
	case "clear":
		return historyClear(ctx, store, args)
	default:
		return fmt.Errorf("unknown history subcommand %q (expected list, show, delete, clear)", args.Subcommand())
	}
}

// openStore opens the history database at the configured or default path.
func openStore(cfg *config.Config) (*history.Store, error) {
	path := cfg.History.DatabasePath
	if path == "" {
		var err error
		path, err = history.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return history.NewStore(path)
}

func historyList(ctx context.Context, store *history.Store, args *ArgParser, cfg *config.Config) error {
	limit := args.FlagIntOrDefault("limit", cfg.History.ListLimit)

	summaries, err := store.List(ctx, limit)
	if err != nil {
		return err
	}

	if args.BoolFlag("json") {
		return NewJSONResponse("history list", summaries).Print()
	}

	if len(summaries) == 0 {
		fmt.Println("No archived sessions.")
		return nil
	}

	fmt.Printf("%-36s  %-19s  %6s  %s\n", "ID", "CREATED", "MODELS", "PROMPT")
	for _, sum := range summaries {
		fmt.Printf("%-36s  %-19s  %6d  %s\n",
			sum.ID,
			sum.CreatedAt.Format("2006-01-02 15:04:05"),
			sum.ModelCount,
			util.TruncateRunes(util.CollapseWhitespace(sum.Prompt), 60))
	}
	return nil
}

func historyShow(ctx context.Context, store *history.Store, args *ArgParser) error {
	id := args.Positional(1)
	if id == "" {
		return errors.New("usage: modelrace history show <session-id>")
	}

	sess, err := store.Load(ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("no session with ID %s", id)
	}
	if err != nil {
		return err
	}

	if args.BoolFlag("json") {
		return NewJSONResponse("history show", sess).Print()
	}

	printSessionResults(sess)
	return nil
}

func historyDelete(ctx context.Context, store *history.Store, args *ArgParser) error {
	id := args.Positional(1)
	if id == "" {
		return errors.New("usage: modelrace history delete <session-id> --confirm")
	}
	if !args.BoolFlag("confirm") {
		return errors.New("deletion is permanent; re-run with --confirm")
	}

	err := store.Delete(ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("no session with ID %s", id)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Deleted session %s\n", id)
	return nil
}

func historyClear(ctx context.Context, store *history.Store, args *ArgParser) error {
	if !args.BoolFlag("confirm") {
		return errors.New("clearing history is permanent; re-run with --confirm")
	}

	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx); err != nil {
		return err
	}
	fmt.Printf("Cleared %d archived session(s)\n", n)
	return nil
}
