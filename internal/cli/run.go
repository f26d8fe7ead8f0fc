// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jeranaias/modelrace/internal/compare"
	"github.com/jeranaias/modelrace/internal/config"
	"github.com/jeranaias/modelrace/internal/export"
	"github.com/jeranaias/modelrace/internal/history"
	"github.com/jeranaias/modelrace/internal/ollama"
)

// =============================================================================
// RUN COMMAND - RACE A PROMPT ACROSS MODELS
// =============================================================================

// HandleRun executes the run command: fan the prompt out to every requested
// model, stream progress to stderr, then print the finished comparison.
func HandleRun(args *ArgParser) error {
	prompt := strings.Join(args.PositionalFrom(0), " ")
	if strings.TrimSpace(prompt) == "" {
		return errors.New("no prompt given; usage: modelrace run [flags] <prompt>")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	modelNames := cfg.Models
	if v := args.Flag("models"); v != "" {
		modelNames = SplitList(v)
	}
	if len(modelNames) == 0 {
		return errors.New("no models configured; pass --models or set models in config")
	}

	systemPrompt := args.FlagOrDefault("system", cfg.SystemPrompt)
	flushMs := args.FlagIntOrDefault("flush-ms", cfg.Compare.FlushIntervalMs)

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL: cfg.Server.OllamaURL,
		Timeout: time.Duration(cfg.Server.TimeoutSecs) * time.Second,
	})

	jsonOut := args.BoolFlag("json")
	opts := &compare.Options{
		FlushInterval: time.Duration(flushMs) * time.Millisecond,
	}
	if !jsonOut {
		progress := newProgressPrinter(os.Stderr)
		opts.OnUpdate = progress.Update
	}

	orch := compare.NewOrchestrator(client, opts)

	// Ctrl-C stops the race instead of killing the process; a second signal
	// falls through to the default handler.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	models := make([]compare.ModelRef, 0, len(modelNames))
	for _, name := range modelNames {
		models = append(models, compare.ModelRef{ID: name, Name: name})
	}

	sess := orch.Start(ctx, prompt, systemPrompt, models)
	if sess == nil {
		return errors.New("no models to race")
	}

	if err := orch.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "\nStopped.")
			if stopErr := orch.StopAll(); stopErr != nil && !errors.Is(stopErr, compare.ErrNoActiveSession) {
				return stopErr
			}
		} else {
			return err
		}
	}

	final, err := orch.SnapshotCurrent()
	if err != nil {
		return err
	}

	if cfg.History.Enabled {
		if err := archiveSession(cfg, final); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to archive session: %v\n", err)
		}
	}

	if jsonOut {
		if err := NewJSONResponse("run", final).Print(); err != nil {
			return err
		}
	} else {
		printSessionResults(final)
	}

	if args.BoolFlag("export") {
		exportOpts := &export.Options{
			OutputDir: args.FlagOrDefault("output", cfg.Export.OutputDir),
		}
		jsonPath, err := export.ExportJSON(final, exportOpts)
		if err != nil {
			return err
		}
		mdPath, err := export.ExportMarkdown(final, exportOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported:\n  %s\n  %s\n", jsonPath, mdPath)
	}

	return nil
}

// archiveSession saves the finished session to the history database.
func archiveSession(cfg *config.Config, sess *compare.Session) error {
	path := cfg.History.DatabasePath
	if path == "" {
		var err error
		path, err = history.DefaultPath()
		if err != nil {
			return err
		}
	}

	store, err := history.NewStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.Save(ctx, sess)
}

// =============================================================================
// RESULT PRINTING
// =============================================================================

// printSessionResults writes the finished comparison to stdout.
func printSessionResults(sess *compare.Session) {
	fmt.Printf("Prompt: %s\n", sess.Prompt)
	if sess.SystemPrompt != "" {
		fmt.Printf("System prompt: %s\n", sess.SystemPrompt)
	}
	fmt.Println()

	for _, unit := range sess.Units {
		fmt.Printf("=== %s ===\n", unit.ModelName)
		switch {
		case unit.State.Kind == compare.StateError:
			fmt.Printf("Error: %s\n", unit.ErrorMessage())
			if unit.Response != "" {
				fmt.Println(unit.Response)
			}
		default:
			fmt.Println(unit.Response)
			if unit.ResponseTime > 0 {
				fmt.Printf("(%s", formatSeconds(unit.ResponseTime))
				if unit.TokenCount > 0 {
					fmt.Printf(", %d tokens", unit.TokenCount)
				}
				fmt.Println(")")
			}
		}
		fmt.Println()
	}

	if fastest := sess.FastestUnit(); fastest != nil {
		fmt.Printf("Fastest: %s (%s)\n", fastest.ModelName, formatSeconds(fastest.ResponseTime))
	}
	if avg, ok := sess.AverageResponseTime(); ok {
		fmt.Printf("Average: %s\n", formatSeconds(avg))
	}
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// =============================================================================
// STREAMING PROGRESS
// =============================================================================

// progressPrinter reports unit state transitions on one line each, so a
// race's progress is visible without interleaving N live streams. Updates
// arrive from N streaming goroutines, hence the mutex.
type progressPrinter struct {
	mu       sync.Mutex
	out      *os.File
	reported map[string]bool
}

func newProgressPrinter(out *os.File) *progressPrinter {
	return &progressPrinter{out: out, reported: make(map[string]bool)}
}

// Update handles an orchestrator update. Only terminal transitions are
// printed; mid-stream flushes are ignored.
func (p *progressPrinter) Update(upd compare.UnitUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !upd.State.IsTerminal() || p.reported[upd.UnitID] {
		return
	}
	p.reported[upd.UnitID] = true

	if upd.State.Kind == compare.StateError {
		fmt.Fprintf(p.out, "%-24s failed: %s\n", upd.ModelName, upd.State.Message)
		return
	}
	fmt.Fprintf(p.out, "%-24s done (%d chars)\n", upd.ModelName, len(upd.Response))
}
