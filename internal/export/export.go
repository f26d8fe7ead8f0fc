// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders comparison sessions as shareable artifacts.
// Supports structured JSON and a human-readable Markdown report.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/modelrace/internal/compare"
	"github.com/jeranaias/modelrace/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for session exporters.
type Exporter interface {
	// Export renders a session to the target format and returns the content.
	// Exporting a still-streaming session is legal; incomplete units are
	// reported as still loading.
	Export(sess *compare.Session) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".md", ".json").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files will be saved.
	// Default: the OS temporary directory.
	OutputDir string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir: os.TempDir(),
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile renders a session with the given exporter and writes the
// result to comparison-<sessionID><ext> under the output directory. Returns
// the output file path.
func ExportToFile(sess *compare.Session, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}

	content, err := exporter.Export(sess)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	filename := "comparison-" + sess.ID + exporter.FileExtension()
	outputPath := filepath.Join(opts.OutputDir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return outputPath, nil
}

// ExportJSON exports a session to a JSON file.
func ExportJSON(sess *compare.Session, opts *Options) (string, error) {
	return ExportToFile(sess, NewJSONExporter(), opts)
}

// ExportMarkdown exports a session to a Markdown file.
func ExportMarkdown(sess *compare.Session, opts *Options) (string, error) {
	return ExportToFile(sess, NewMarkdownExporter(), opts)
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// formatDuration formats a duration to a human-readable string.
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := d.Seconds()
	if seconds < 60 {
		return fmt.Sprintf("%.2fs", seconds)
	}
	minutes := int(seconds / 60)
	remainingSeconds := int(seconds) % 60
	return fmt.Sprintf("%dm %ds", minutes, remainingSeconds)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
