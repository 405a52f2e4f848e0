package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCallsBeforeInitAreNoOps(t *testing.T) {
	Close()
	Info("ignored")
	Warn("ignored", "k", 1)
	if l := WithPrefix("x"); l == nil {
		t.Fatal("WithPrefix returned nil before Init")
	}
}

func TestInitWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir, "test", "info"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info("hello", "n", 3)
	Debug("below level")
	Close()

	matches, err := filepath.Glob(filepath.Join(dir, "logs", "projector-*.log"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one log file, got %v (%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "hello") {
		t.Errorf("log missing message: %q", text)
	}
	if strings.Contains(text, "below level") {
		t.Errorf("debug line written at info level: %q", text)
	}
}

func TestInitRejectsBadLevel(t *testing.T) {
	if err := Init(t.TempDir(), "test", "loud"); err == nil {
		Close()
		t.Fatal("expected error for unknown level")
	}
}
