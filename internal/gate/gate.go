// Package gate implements the approval-gate state machine: quorum
// evaluation, approval/rejection accumulation, and timeouts. Gates carry
// a per-gate deadline instead of a goroutine blocking on a channel
// receive, since the router drives evaluation synchronously.
package gate

import (
	"time"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// Request is the immutable request a gate was opened for.
type Request struct {
	ActionType     protocol.ToolCategory
	ActionRef      string // proposal message id
	Quorum         protocol.Quorum
	TimeoutSeconds int
	Message        string
}

// Outcome is the closed set of terminal gate resolutions.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	// OutcomeTimedOutAutoApproved and OutcomeEscalated only occur if
	// policy selects them; by default a timeout collapses to
	// OutcomeRejected. An escalated gate still denies automatic
	// execution — it differs from rejected only in how the timeout is
	// reported, so downstream tooling can route it to a human.
	OutcomeTimedOutAutoApproved Outcome = "timed-out-auto-approved"
	OutcomeEscalated            Outcome = "escalated"
)

// State is a single gate's mutable state. A gate with a
// zero ExpiresAt (TimeoutSeconds == 0) never expires.
type State struct {
	ProposalID string
	Request    Request
	Approvals  map[string]bool
	Rejections map[string]bool
	CreatedAt  time.Time
	ExpiresAt  time.Time // zero value = no timeout
}

// TimeoutPolicy decides how an expired gate resolves.
type TimeoutPolicy string

const (
	PolicyRejectOnTimeout  TimeoutPolicy = "rejected"
	PolicyApproveOnTimeout TimeoutPolicy = "auto_approved"
	PolicyEscalateOnTimeout TimeoutPolicy = "escalated"
)

// Create builds a new open gate for req, with expiry now+timeoutSeconds.
// A zero timeout arms no timer; the gate stays open indefinitely.
func Create(req Request, now time.Time) *State {
	g := &State{
		ProposalID: req.ActionRef,
		Request:    req,
		Approvals:  make(map[string]bool),
		Rejections: make(map[string]bool),
		CreatedAt:  now,
	}
	if req.TimeoutSeconds > 0 {
		g.ExpiresAt = now.Add(time.Duration(req.TimeoutSeconds) * time.Second)
	}
	return g
}

// AddApproval is an idempotent set insert.
func (g *State) AddApproval(participantID string) {
	g.Approvals[participantID] = true
}

// AddRejection is an idempotent set insert.
func (g *State) AddRejection(participantID string) {
	g.Rejections[participantID] = true
}

// IsExpired checks the wall clock against ExpiresAt.
func (g *State) IsExpired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && now.After(g.ExpiresAt)
}

// Eligibility supplies the participant sets a quorum rule is evaluated
// against, computed by the caller (internal/participant.Table) outside
// this package to keep gate evaluation free of any session dependency.
type Eligibility struct {
	// AllEligible lists every participant eligible to approve (role
	// approver or capability approve) — used by `any`, `all`, `majority`.
	AllEligible []string
	// RoleMembers lists participants carrying the quorum's named role,
	// for the `role{role,count}` variant.
	RoleMembers []string
}

// Evaluate judges g against its quorum rule. Any rejection
// short-circuits evaluation regardless of approvals.
func Evaluate(g *State, elig Eligibility) (met bool, outcome Outcome, reason string) {
	if len(g.Rejections) > 0 {
		return false, OutcomeRejected, "rejected by an approver"
	}

	switch g.Request.Quorum.Type {
	case protocol.QuorumAny:
		if len(elig.AllEligible) == 0 {
			return false, OutcomeRejected, "no eligible approvers"
		}
		if countIn(g.Approvals, elig.AllEligible) >= max(1, g.Request.Quorum.Count) {
			return true, OutcomeApproved, ""
		}
	case protocol.QuorumAll:
		if len(elig.AllEligible) == 0 {
			return false, OutcomeRejected, "no eligible approvers"
		}
		if countIn(g.Approvals, elig.AllEligible) >= len(elig.AllEligible) {
			return true, OutcomeApproved, ""
		}
	case protocol.QuorumRole:
		if len(elig.RoleMembers) == 0 {
			return false, OutcomeRejected, "no eligible approvers"
		}
		if countIn(g.Approvals, elig.RoleMembers) >= max(1, g.Request.Quorum.Count) {
			return true, OutcomeApproved, ""
		}
	case protocol.QuorumSpecific:
		if len(g.Request.Quorum.Participants) == 0 {
			return false, OutcomeRejected, "no eligible approvers"
		}
		if countIn(g.Approvals, g.Request.Quorum.Participants) >= len(g.Request.Quorum.Participants) {
			return true, OutcomeApproved, ""
		}
	case protocol.QuorumMajority:
		if len(elig.AllEligible) == 0 {
			return false, OutcomeRejected, "no eligible approvers"
		}
		if countIn(g.Approvals, elig.AllEligible)*2 > len(elig.AllEligible) {
			return true, OutcomeApproved, ""
		}
	}
	return false, "", ""
}

// ResolveTimeout applies policy to an expired gate; the default policy
// collapses a timeout to rejected.
func ResolveTimeout(policy TimeoutPolicy) Outcome {
	switch policy {
	case PolicyApproveOnTimeout:
		return OutcomeTimedOutAutoApproved
	case PolicyEscalateOnTimeout:
		return OutcomeEscalated
	default:
		return OutcomeRejected
	}
}

func countIn(set map[string]bool, candidates []string) int {
	n := 0
	for _, c := range candidates {
		if set[c] {
			n++
		}
	}
	return n
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Table is a session's pending-gate table, keyed by proposal id.
type Table struct {
	byProposal map[string]*State
}

// NewTable constructs an empty gate table.
func NewTable() *Table {
	return &Table{byProposal: make(map[string]*State)}
}

// Put inserts or replaces a pending gate.
func (t *Table) Put(g *State) { t.byProposal[g.ProposalID] = g }

// Get returns the pending gate for a proposal id.
func (t *Table) Get(proposalID string) (*State, bool) {
	g, ok := t.byProposal[proposalID]
	return g, ok
}

// Delete removes a terminated gate; a terminated gate never reappears.
func (t *Table) Delete(proposalID string) { delete(t.byProposal, proposalID) }

// Pending returns every still-open gate, for the timeout sweep.
func (t *Table) Pending() []*State {
	out := make([]*State, 0, len(t.byProposal))
	for _, g := range t.byProposal {
		out = append(out, g)
	}
	return out
}
