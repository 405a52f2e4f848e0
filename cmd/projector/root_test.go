package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootSubcommands(t *testing.T) {
	cmd := newRootCmd()

	want := []string{"run", "worker", "import", "corpora", "runs", "events", "mcp", "version"}
	for _, name := range want {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootPersistentFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"data-dir", "log-level", "trace"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("--%s flag not found", name)
		}
	}
}

func TestRunFlags(t *testing.T) {
	cmd := newRunCmd()

	tests := []struct {
		flagName  string
		shorthand string
		defValue  string
	}{
		{"file", "f", "[]"},
		{"corpus", "c", ""},
		{"json", "", "false"},
		{"model", "m", ""},
		{"target-dim", "", "0"},
		{"sample", "", "0"},
		{"transform-batch", "", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.flagName, func(t *testing.T) {
			flag := cmd.Flags().Lookup(tt.flagName)
			if flag == nil {
				t.Fatalf("--%s flag not found", tt.flagName)
			}
			if tt.shorthand != "" && flag.Shorthand != tt.shorthand {
				t.Errorf("--%s shorthand = %q, want %q", tt.flagName, flag.Shorthand, tt.shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("--%s default = %q, want %q", tt.flagName, flag.DefValue, tt.defValue)
			}
		})
	}
}

func TestVersionCmd(t *testing.T) {
	setVersion("1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { setVersion("dev", "none", "unknown") })

	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)

	out := buf.String()
	for _, want := range []string{"projector 1.2.3", "abc123", "2026-01-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q: %q", want, out)
		}
	}
}

func TestMCPCmdDescription(t *testing.T) {
	cmd := newMCPCmd()
	if !strings.Contains(cmd.Long, "MCP") || !strings.Contains(cmd.Long, "stdio") {
		t.Error("Long description should mention MCP and stdio")
	}
	if cmd.RunE == nil {
		t.Error("RunE should be set")
	}
}

func TestImportNeedsArgs(t *testing.T) {
	cmd := newImportCmd()
	if err := cmd.Args(cmd, []string{"only-name"}); err == nil {
		t.Error("import with a name and no file should fail")
	}
	if err := cmd.Args(cmd, []string{"name", "a.txt"}); err != nil {
		t.Errorf("import with name and file should pass: %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a-very-long-run-identifier", 10); got != "a-very-..." {
		t.Errorf("truncate long = %q", got)
	}
}
