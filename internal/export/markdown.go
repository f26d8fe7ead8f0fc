// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/modelrace/internal/compare"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports sessions to a human-readable Markdown report:
// prompt block, optional system-prompt block, summary statistics, then one
// subsection per model with its status and text or error.
type MarkdownExporter struct{}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter() *MarkdownExporter {
	return &MarkdownExporter{}
}

// Export converts a session to Markdown.
func (e *MarkdownExporter) Export(sess *compare.Session) ([]byte, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}
	if sess.CreatedAt.IsZero() {
		return nil, fmt.Errorf("session has invalid creation timestamp")
	}

	var sb strings.Builder

	// Header
	sb.WriteString("# Model Comparison\n\n")
	sb.WriteString(fmt.Sprintf("- **Session**: %s\n", sess.ID))
	sb.WriteString(fmt.Sprintf("- **Created**: %s\n", formatTimestamp(sess.CreatedAt)))
	if !sess.CompletedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("- **Completed**: %s\n", formatTimestamp(sess.CompletedAt)))
	}
	sb.WriteString(fmt.Sprintf("- **Models**: %d\n\n", len(sess.Units)))

	// Prompt block
	sb.WriteString("## Prompt\n\n")
	sb.WriteString("```\n")
	sb.WriteString(sess.Prompt)
	sb.WriteString("\n```\n\n")

	if sess.SystemPrompt != "" {
		sb.WriteString("## System Prompt\n\n")
		sb.WriteString("```\n")
		sb.WriteString(sess.SystemPrompt)
		sb.WriteString("\n```\n\n")
	}

	// Summary statistics over completed units
	sb.WriteString("## Summary\n\n")
	sb.WriteString(e.formatSummary(sess))
	sb.WriteString("\n")

	// One subsection per model, in session order
	sb.WriteString("## Responses\n\n")
	for i, u := range sess.Units {
		sb.WriteString(fmt.Sprintf("### %s\n\n", u.ModelName))
		sb.WriteString(e.formatUnit(u))
		if i < len(sess.Units)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	// Footer
	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported from modelrace on %s*\n",
		time.Now().Format("January 2, 2006 at 3:04 PM")))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// SECTION FORMATTING
// =============================================================================

// formatSummary renders the derived statistics block.
func (e *MarkdownExporter) formatSummary(sess *compare.Session) string {
	completed := sess.CompletedUnits()
	if len(completed) == 0 {
		return "No model completed.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("- **Completed**: %d of %d models\n", len(completed), len(sess.Units)))

	if fastest := sess.FastestUnit(); fastest != nil {
		sb.WriteString(fmt.Sprintf("- **Fastest**: %s (%s)\n",
			fastest.ModelName, formatDuration(fastest.ResponseTime)))
	}
	if avg, ok := sess.AverageResponseTime(); ok {
		sb.WriteString(fmt.Sprintf("- **Average response time**: %s\n", formatDuration(avg)))
	}
	if longest := sess.LongestResponse(); longest != nil {
		sb.WriteString(fmt.Sprintf("- **Longest response**: %s (%d characters)\n",
			longest.ModelName, len(longest.Response)))
	}
	return sb.String()
}

// formatUnit renders one model's status and text.
func (e *MarkdownExporter) formatUnit(u *compare.ResponseUnit) string {
	var sb strings.Builder

	switch u.State.Kind {
	case compare.StateStreaming:
		sb.WriteString("*Still loading...*\n")
		if u.Response != "" {
			sb.WriteString("\n")
			sb.WriteString(strings.TrimSpace(u.Response))
			sb.WriteString("\n")
		}

	case compare.StateError:
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", u.ErrorMessage()))
		// Keep any partial output received before the failure.
		if u.Response != "" {
			sb.WriteString("\n")
			sb.WriteString(strings.TrimSpace(u.Response))
			sb.WriteString("\n")
		}

	case compare.StateCompleted:
		var stats []string
		if u.ResponseTime > 0 {
			stats = append(stats, fmt.Sprintf("Completed in %s", formatDuration(u.ResponseTime)))
		} else {
			stats = append(stats, "Completed")
		}
		if u.TokenCount > 0 {
			stats = append(stats, fmt.Sprintf("%d tokens", u.TokenCount))
		}
		sb.WriteString(fmt.Sprintf("<sub>%s</sub>\n\n", strings.Join(stats, " | ")))
		sb.WriteString(strings.TrimSpace(u.Response))
		sb.WriteString("\n")
	}

	return sb.String()
}
