package toolbatch

import "testing"

func TestBatchCompletesOnlyWhenEveryEntryResolved(t *testing.T) {
	b := New("prompt-1")
	b.AddTool("tu-1", "shell")
	b.AddTool("tu-2", "web_fetch")

	if b.IsComplete() {
		t.Fatal("batch with pending entries must not be complete")
	}

	b.SetProposalID("tu-1", "prop-1")
	b.ResolveSuccess("tu-1", "ok")
	if b.IsComplete() {
		t.Fatal("batch with one unresolved entry must not be complete")
	}

	b.ResolveFailed("tu-2", "boom")
	if !b.IsComplete() {
		t.Fatal("batch with every entry resolved must be complete")
	}

	res, err := b.Complete()
	if err != nil {
		t.Fatalf("Complete returned error on a complete batch: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Entries))
	}
	if res.Entries[0].ToolUseID != "tu-1" || res.Entries[1].ToolUseID != "tu-2" {
		t.Fatal("entries must preserve insertion order for deterministic tool-result ordering")
	}
}

func TestCompleteOnIncompleteBatchReturnsError(t *testing.T) {
	b := New("prompt-1")
	b.AddTool("tu-1", "shell")
	if _, err := b.Complete(); err == nil {
		t.Fatal("expected an error, not a panic, calling Complete on an incomplete batch")
	}
}

func TestFindByProposalID(t *testing.T) {
	b := New("prompt-1")
	b.AddTool("tu-1", "shell")
	b.SetProposalID("tu-1", "prop-42")

	e, ok := b.FindByProposalID("prop-42")
	if !ok || e.ToolUseID != "tu-1" {
		t.Fatal("expected to resolve proposal id back to its tool-use entry")
	}
	if _, ok := b.FindByProposalID("missing"); ok {
		t.Fatal("expected no match for an unknown proposal id")
	}
}

func TestRejectionMarksBatchAndResolvesEntry(t *testing.T) {
	b := New("prompt-1")
	b.AddTool("tu-1", "shell")
	b.MarkRejected()
	b.ResolveFailed("tu-1", "Command rejected by human: not today")

	if !b.HadRejection() {
		t.Fatal("expected HadRejection to be set")
	}
	res, err := b.Complete()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.HadRejection {
		t.Fatal("expected the completed result to carry hadRejection")
	}
	if res.Entries[0].Success {
		t.Fatal("rejected entry must resolve as a failure")
	}
}

func TestAddToolIsIdempotent(t *testing.T) {
	b := New("prompt-1")
	b.AddTool("tu-1", "shell")
	b.AddTool("tu-1", "shell")
	if b.Size() != 1 {
		t.Fatalf("expected AddTool to be idempotent, got size %d", b.Size())
	}
}
