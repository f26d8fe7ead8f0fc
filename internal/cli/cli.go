// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
)

// =============================================================================
// VERSION INFO
// =============================================================================

// Version information, injected at build time via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command represents a parsed CLI command.
type Command int

const (
	CmdUnknown Command = iota
	CmdRun
	CmdModels
	CmdHistory
	CmdExport
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name as typed on the command line.
func (c Command) String() string {
	switch c {
	case CmdRun:
		return "run"
	case CmdModels:
		return "models"
	case CmdHistory:
		return "history"
	case CmdExport:
		return "export"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Parse maps raw command-line arguments (without the program name) to a
// Command and an ArgParser over the remaining arguments.
func Parse(args []string) (Command, *ArgParser) {
	if len(args) == 0 {
		return CmdHelp, NewArgParser(nil)
	}

	rest := NewArgParser(args[1:])
	switch args[0] {
	case "run":
		return CmdRun, rest
	case "models":
		return CmdModels, rest
	case "history":
		return CmdHistory, rest
	case "export":
		return CmdExport, rest
	case "config":
		return CmdConfig, rest
	case "version", "--version", "-v":
		return CmdVersion, rest
	case "help", "--help", "-h":
		return CmdHelp, rest
	default:
		return CmdUnknown, NewArgParser(args)
	}
}

// =============================================================================
// USAGE
// =============================================================================

const usageText = `modelrace - race one prompt across several Ollama models

Usage:
  modelrace run [flags] <prompt...>     Race a prompt across models
  modelrace models [--json]             List models available on the server
  modelrace history <subcommand>        Manage archived sessions
  modelrace export <session-id> [flags] Re-export an archived session
  modelrace config <subcommand>         Show or initialize configuration
  modelrace version                     Print version information
  modelrace help                        Show this help

Run flags:
  --models m1,m2      Models to race (default: configured model set)
  --system TEXT       System prompt prepended to the conversation
  --flush-ms N        Stream flush interval in milliseconds
  --export            Write JSON and Markdown artifacts when finished
  --output DIR        Directory for export artifacts (default: temp dir)
  --json              Print the finished session as JSON

History subcommands:
  list [--limit N]    List archived sessions, newest first
  show <id>           Print one archived session
  delete <id> --confirm
  clear --confirm

Export flags:
  --format FMT        json, markdown, or both (default: both)
  --output DIR        Directory for artifacts (default: temp dir)

Config subcommands:
  show                Print the effective configuration
  path                Print the config file location
  init                Write a default config file

Environment:
  MODELRACE_OLLAMA_URL, MODELRACE_MODELS, MODELRACE_SYSTEM_PROMPT,
  MODELRACE_FLUSH_INTERVAL_MS, MODELRACE_OUTPUT_DIR, MODELRACE_HISTORY_DB
`

// PrintUsage writes the top-level usage text to stdout.
func PrintUsage() {
	fmt.Fprint(os.Stdout, usageText)
}

// PrintVersion writes version information to stdout.
func PrintVersion() {
	fmt.Printf("modelrace %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}
