// Package toolbatch implements the tool-batch manager: the atomic set
// of tool-use requests produced by one model completion, tracked until
// every entry is resolved. Every tool-use from one assistant turn must
// be answered by exactly one tool-result in the next user turn, in a
// single message, even when approvals race or are denied — plain
// structs and explicit mutation, no channels, one batch at a time.
package toolbatch

import "fmt"

// Status is an entry's resolution state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// Entry tracks one tool-use from the completion that opened the batch.
type Entry struct {
	ToolUseID  string
	ToolName   string
	ProposalID string // set once the proposal has been emitted (tool.propose)
	Status     Status
	Success    bool
	Result     string // output on success, error message on failure
}

// Result is the resolved batch, ready to be folded into the next user
// turn as one tool-result block per entry.
type Result struct {
	PromptRef   string
	HadRejection bool
	Entries     []Entry
}

// Batch is the single active tool-batch for one agent at one point in
// time.
type Batch struct {
	promptRef    string
	hadRejection bool
	order        []string // toolUseIDs in insertion order, for deterministic output
	entries      map[string]*Entry
}

// New starts a batch for the completion that answered promptRef.
func New(promptRef string) *Batch {
	return &Batch{promptRef: promptRef, entries: make(map[string]*Entry)}
}

// PromptRef returns the prompt this batch answers.
func (b *Batch) PromptRef() string { return b.promptRef }

// AddTool inserts a fresh pending entry for one tool-use block.
func (b *Batch) AddTool(toolUseID, toolName string) {
	if _, exists := b.entries[toolUseID]; exists {
		return
	}
	b.order = append(b.order, toolUseID)
	b.entries[toolUseID] = &Entry{ToolUseID: toolUseID, ToolName: toolName, Status: StatusPending}
}

// SetProposalID records the proposal message id once tool.propose has
// been emitted for a tool-use.
func (b *Batch) SetProposalID(toolUseID, proposalID string) {
	if e, ok := b.entries[toolUseID]; ok {
		e.ProposalID = proposalID
	}
}

// FindByProposalID resolves a gate/tool-execute callback (which only
// carries a proposal id) back to its batch entry.
func (b *Batch) FindByProposalID(proposalID string) (*Entry, bool) {
	for _, e := range b.entries {
		if e.ProposalID == proposalID {
			return e, true
		}
	}
	return nil, false
}

// ResolveSuccess records a successful tool result.
func (b *Batch) ResolveSuccess(toolUseID, result string) {
	if e, ok := b.entries[toolUseID]; ok {
		e.Status = StatusResolved
		e.Success = true
		e.Result = result
	}
}

// ResolveFailed records a failed tool result: an execution error, or a
// rejection fed back as a failing result.
func (b *Batch) ResolveFailed(toolUseID, errMsg string) {
	if e, ok := b.entries[toolUseID]; ok {
		e.Status = StatusResolved
		e.Success = false
		e.Result = errMsg
	}
}

// MarkRejected sets hadRejection, which tells the orchestrator not to
// call the model again once this batch completes.
func (b *Batch) MarkRejected() { b.hadRejection = true }

// HadRejection reports whether any entry in this batch was rejected.
func (b *Batch) HadRejection() bool { return b.hadRejection }

// IsComplete reports whether every entry has been resolved.
func (b *Batch) IsComplete() bool {
	if len(b.entries) == 0 {
		return false
	}
	for _, e := range b.entries {
		if e.Status != StatusResolved {
			return false
		}
	}
	return true
}

// Entries returns a snapshot of the batch's entries in insertion order.
func (b *Batch) Entries() []Entry {
	out := make([]Entry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.entries[id])
	}
	return out
}

// Complete returns the finished batch's result for folding into the
// model's next turn. Callers should check
// IsComplete first; calling this on an incomplete batch is a caller
// bug, reported as an error rather than a panic so the orchestrator can
// log and recover.
func (b *Batch) Complete() (Result, error) {
	if !b.IsComplete() {
		return Result{}, fmt.Errorf("toolbatch: Complete called on incomplete batch (prompt %s)", b.promptRef)
	}
	return Result{
		PromptRef:    b.promptRef,
		HadRejection: b.hadRejection,
		Entries:      b.Entries(),
	}, nil
}

// Size reports how many tool-use entries the batch tracks.
func (b *Batch) Size() int { return len(b.entries) }
