// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"testing"
)

// =============================================================================
// ARG PARSER TESTS
// =============================================================================

func TestArgParserFlagFormats(t *testing.T) {
	args := NewArgParser([]string{"--models", "llama3.2:3b,phi3:mini", "--flush-ms=50", "--json", "explain", "monads"})

	if args.Flag("models") != "llama3.2:3b,phi3:mini" {
		t.Errorf("space-separated flag not parsed: %q", args.Flag("models"))
	}
	if args.FlagIntOrDefault("flush-ms", 100) != 50 {
		t.Errorf("equals-form flag not parsed: %d", args.FlagIntOrDefault("flush-ms", 100))
	}
	if !args.BoolFlag("json") {
		t.Error("bool flag not parsed")
	}
	if args.Positional(0) != "explain" || args.Positional(1) != "monads" {
		t.Errorf("positionals wrong: %v", args.PositionalFrom(0))
	}
}

func TestArgParserExplicitBool(t *testing.T) {
	args := NewArgParser([]string{"--json=false", "--confirm=true"})
	if args.BoolFlag("json") {
		t.Error("--json=false should be false")
	}
	if !args.BoolFlag("confirm") {
		t.Error("--confirm=true should be true")
	}
}

func TestArgParserSubcommand(t *testing.T) {
	args := NewArgParser([]string{"show", "abc-123", "--json"})
	if args.Subcommand() != "show" {
		t.Errorf("subcommand: %q", args.Subcommand())
	}
	if args.Positional(1) != "abc-123" {
		t.Errorf("positional 1: %q", args.Positional(1))
	}
}

func TestArgParserTrailingBoolFlag(t *testing.T) {
	// A flag at the end of args with no value is boolean.
	args := NewArgParser([]string{"list", "--json"})
	if !args.BoolFlag("json") {
		t.Error("trailing flag should parse as bool")
	}
}

func TestArgParserDefaults(t *testing.T) {
	args := NewArgParser(nil)
	if args.Subcommand() != "" {
		t.Error("empty args should have no subcommand")
	}
	if args.FlagOrDefault("limit", "10") != "10" {
		t.Error("missing flag should return default")
	}
	if args.FlagIntOrDefault("limit", 7) != 7 {
		t.Error("missing int flag should return default")
	}
	if args.Positional(5) != "" {
		t.Error("out-of-bounds positional should be empty")
	}
	if len(args.PositionalFrom(3)) != 0 {
		t.Error("out-of-bounds PositionalFrom should be empty")
	}
}

func TestArgParserHasFlag(t *testing.T) {
	args := NewArgParser([]string{"--output", "/tmp/x", "--json"})
	if !args.HasFlag("output") || !args.HasFlag("json") {
		t.Error("HasFlag should see both string and bool flags")
	}
	if args.HasFlag("missing") {
		t.Error("HasFlag should not see absent flags")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" llama3.2:3b , ,phi3:mini,")
	if len(got) != 2 || got[0] != "llama3.2:3b" || got[1] != "phi3:mini" {
		t.Errorf("SplitList: %v", got)
	}
	if SplitList("") != nil {
		t.Error("empty input should produce nil")
	}
}

// =============================================================================
// COMMAND PARSE TESTS
// =============================================================================

func TestParseCommands(t *testing.T) {
	cases := []struct {
		args []string
		want Command
	}{
		{[]string{"run", "hello"}, CmdRun},
		{[]string{"models"}, CmdModels},
		{[]string{"history", "list"}, CmdHistory},
		{[]string{"export", "abc"}, CmdExport},
		{[]string{"config", "show"}, CmdConfig},
		{[]string{"version"}, CmdVersion},
		{[]string{"--version"}, CmdVersion},
		{[]string{"help"}, CmdHelp},
		{[]string{"-h"}, CmdHelp},
		{nil, CmdHelp},
		{[]string{"bogus"}, CmdUnknown},
	}

	for _, tc := range cases {
		got, _ := Parse(tc.args)
		if got != tc.want {
			t.Errorf("Parse(%v) = %v, want %v", tc.args, got, tc.want)
		}
	}
}

func TestParsePassesRemainingArgs(t *testing.T) {
	cmd, rest := Parse([]string{"history", "show", "abc-123", "--json"})
	if cmd != CmdHistory {
		t.Fatalf("command: %v", cmd)
	}
	if rest.Subcommand() != "show" {
		t.Errorf("subcommand: %q", rest.Subcommand())
	}
	if rest.Positional(1) != "abc-123" {
		t.Errorf("positional: %q", rest.Positional(1))
	}
	if !rest.BoolFlag("json") {
		t.Error("flag lost in Parse")
	}
}

func TestCommandString(t *testing.T) {
	if CmdRun.String() != "run" || CmdHistory.String() != "history" {
		t.Error("Command.String mismatch")
	}
	if CmdUnknown.String() != "unknown" {
		t.Error("unknown command should stringify as unknown")
	}
}
