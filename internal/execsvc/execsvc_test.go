package execsvc

import (
	"context"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/convoke/internal/classify"
)

func recFor(command string, timeoutSeconds int, maxBuffer int64) classify.Record {
	return classify.Record{
		Command:        command,
		Category:       "read",
		TimeoutSeconds: timeoutSeconds,
		MaxBufferBytes: maxBuffer,
	}
}

func TestRunCapturesStdoutAndExitCode(t *testing.T) {
	e := New()
	res := e.Run(context.Background(), recFor("echo hello", 5, 1<<20), "", nil)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Fatalf("expected stdout 'hello', got %q", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
}

func TestRunReportsNonZeroExit(t *testing.T) {
	e := New()
	res := e.Run(context.Background(), recFor("exit 3", 5, 1<<20), "", nil)
	if res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d (err=%v)", res.ExitCode, res.Err)
	}
}

func TestRunTimesOut(t *testing.T) {
	e := New()
	res := e.Run(context.Background(), recFor("sleep 5", 1, 1<<20), "", nil)
	if !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}
}

func TestRunStreamsChunks(t *testing.T) {
	e := New()
	var chunks []Chunk
	res := e.Run(context.Background(), recFor("echo one; echo two 1>&2", 5, 1<<20), "", func(c Chunk) {
		chunks = append(chunks, c)
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one streamed chunk")
	}
}

func TestRunRefusesBlockedCommand(t *testing.T) {
	e := New()
	rec := recFor("rm -rf /", 5, 1<<20)
	rec.Category = "blocked"
	res := e.Run(context.Background(), rec, "", nil)
	if res.Err == nil {
		t.Fatal("expected an error refusing to execute a blocked command")
	}
}

func TestRunEnforcesBufferCap(t *testing.T) {
	e := New()
	// A tiny cap with a command producing far more output than the cap.
	res := e.Run(context.Background(), recFor("yes x | head -c 200000", 5, 1024), "", nil)
	if !res.BufferExceeded {
		t.Fatalf("expected buffer exceeded, got %+v", res)
	}
}
