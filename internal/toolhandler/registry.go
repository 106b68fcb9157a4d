// Package toolhandler defines the shared tool-handler interface and the
// registry of external tools consulted by the agent orchestration loop.
// Every tool is a first-class value behind one closed Handler shape —
// no interface hierarchy per tool. The built-in shell tool is always
// registered; everything else is opt-in.
package toolhandler

import (
	"context"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// ExecResult is what a Handler's Execute returns: success/failure plus
// human-readable output, folded by the agent loop into a tool.result
// envelope and a toolbatch entry.
type ExecResult struct {
	Success bool
	Output  string
	Error   string
}

// Handler is the shared shape every tool (built-in or external) is
// dispatched through: Describe classifies a call before any gate is
// opened, Execute actually performs it once authorized.
type Handler interface {
	// Name is the tool's wire name, matching the name an agent's
	// completion provider used in its ToolCall.
	Name() string

	// Describe classifies one invocation's arguments into a proposal's
	// category/risk/approval-requirement, without performing any work.
	// A non-nil error means the call must be refused before a proposal
	// is even created (the blocked-command case).
	Describe(ctx context.Context, arguments map[string]any) (Classification, error)

	// Execute performs the tool call after it has been authorized
	// (no gate required, or the gate resolved to approved). Execute
	// itself never returns a protocol-level error: failures are carried
	// in ExecResult.
	Execute(ctx context.Context, arguments map[string]any, onOutput func(stream, chunk string)) ExecResult
}

// Classification is a Handler's verdict for one invocation.
type Classification struct {
	Category         protocol.ToolCategory
	RiskLevel        protocol.RiskLevel
	RequiresApproval bool
	Description      string
}

// Registry holds every registered tool, keyed by name. The built-in
// shell tool is registered like any other handler; it is distinguished
// only by always appearing first in the catalog offered to the model.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces a handler. Built once at broker startup.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

// Get returns the handler for name, if registered.
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered tool names. Order is not guaranteed;
// callers that need a stable catalog should sort.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}
