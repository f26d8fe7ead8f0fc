// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements command parsing and handlers for modelrace.
//
// Commands:
//   - run: race a prompt across several models
//   - models: list models available on the Ollama server
//   - history: list, show, delete archived sessions
//   - export: re-export an archived session to JSON/Markdown
//   - config: show or initialize configuration
package cli
