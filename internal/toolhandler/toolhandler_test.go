package toolhandler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestShellHandlerRefusesBlockedCommands(t *testing.T) {
	reg := NewDefaultRegistry(t.TempDir())
	h, ok := reg.Get(ShellName)
	if !ok {
		t.Fatal("expected shell handler to be registered")
	}
	if _, err := h.Describe(context.Background(), map[string]any{"command": "rm -rf /"}); err == nil {
		t.Fatal("expected Describe to refuse a blocked command")
	}
}

func TestShellHandlerExecutesReadCommand(t *testing.T) {
	reg := NewDefaultRegistry(t.TempDir())
	h, _ := reg.Get(ShellName)
	class, err := h.Describe(context.Background(), map[string]any{"command": "echo hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if class.RequiresApproval {
		t.Fatal("a read command should not require approval")
	}
	res := h.Execute(context.Background(), map[string]any{"command": "echo hello"}, nil)
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
}

func TestFileHandlersStayWithinWorkspace(t *testing.T) {
	ws := t.TempDir()
	reg := NewDefaultRegistry(ws)
	write, _ := reg.Get("write_file")

	res := write.Execute(context.Background(), map[string]any{"path": "notes.txt", "content": "hi"}, nil)
	if !res.Success {
		t.Fatalf("expected write to succeed: %s", res.Error)
	}
	if _, err := os.Stat(filepath.Join(ws, "notes.txt")); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}

	read, _ := reg.Get("read_file")
	if _, err := read.Describe(context.Background(), map[string]any{"path": "../../etc/passwd"}); err == nil {
		t.Fatal("expected a path escaping the workspace to be rejected")
	}
}
