// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/modelrace/internal/config"
	"github.com/jeranaias/modelrace/internal/ollama"
)

// =============================================================================
// MODELS COMMAND - LIST AVAILABLE MODELS
// =============================================================================

// HandleModels lists the models available on the configured Ollama server.
func HandleModels(args *ArgParser) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL: cfg.Server.OllamaURL,
		Timeout: time.Duration(cfg.Server.TimeoutSecs) * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	models, err := client.ListModels(ctx)
	if err != nil {
		if args.BoolFlag("json") {
			return NewJSONErrorResponse("models", err).Print()
		}
		if ollama.IsNotRunning(err) {
			return fmt.Errorf("cannot reach Ollama at %s: %w", cfg.Server.OllamaURL, err)
		}
		return err
	}

	if args.BoolFlag("json") {
		return NewJSONResponse("models", models).Print()
	}

	if len(models) == 0 {
		fmt.Println("No models installed. Pull one with: ollama pull <model>")
		return nil
	}

	fmt.Printf("%-40s %10s\n", "NAME", "SIZE")
	for _, m := range models {
		fmt.Printf("%-40s %10s\n", m.Name, formatBytes(m.Size))
	}
	return nil
}

// formatBytes renders a byte count as a human-readable size.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
