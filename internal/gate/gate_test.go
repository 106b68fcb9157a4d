package gate

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

func req(q protocol.Quorum) Request {
	return Request{ActionRef: "prop-1", Quorum: q, TimeoutSeconds: 0}
}

func TestEvaluateAnyQuorum(t *testing.T) {
	g := Create(req(protocol.Quorum{Type: protocol.QuorumAny, Count: 1}), time.Now())
	elig := Eligibility{AllEligible: []string{"a1", "a2"}}

	met, _, _ := Evaluate(g, elig)
	if met {
		t.Fatal("expected not met before any approval")
	}
	g.AddApproval("a1")
	met, outcome, _ := Evaluate(g, elig)
	if !met || outcome != OutcomeApproved {
		t.Fatalf("expected approved after one approval, got met=%v outcome=%s", met, outcome)
	}
}

func TestEvaluateAllQuorumRequiresEveryone(t *testing.T) {
	g := Create(req(protocol.Quorum{Type: protocol.QuorumAll}), time.Now())
	elig := Eligibility{AllEligible: []string{"a1", "a2"}}

	g.AddApproval("a1")
	if met, _, _ := Evaluate(g, elig); met {
		t.Fatal("expected not met with one of two approvals")
	}
	g.AddApproval("a2")
	if met, outcome, _ := Evaluate(g, elig); !met || outcome != OutcomeApproved {
		t.Fatal("expected approved once all eligible approvers approved")
	}
}

func TestRejectionShortCircuitsRegardlessOfApprovals(t *testing.T) {
	g := Create(req(protocol.Quorum{Type: protocol.QuorumAny, Count: 1}), time.Now())
	elig := Eligibility{AllEligible: []string{"a1", "a2"}}

	g.AddApproval("a1")
	g.AddRejection("a2")
	met, outcome, _ := Evaluate(g, elig)
	if met || outcome != OutcomeRejected {
		t.Fatalf("expected rejection to win, got met=%v outcome=%s", met, outcome)
	}
}

func TestEvaluateMajority(t *testing.T) {
	g := Create(req(protocol.Quorum{Type: protocol.QuorumMajority}), time.Now())
	elig := Eligibility{AllEligible: []string{"a1", "a2", "a3"}}

	g.AddApproval("a1")
	if met, _, _ := Evaluate(g, elig); met {
		t.Fatal("1 of 3 should not meet majority")
	}
	g.AddApproval("a2")
	if met, outcome, _ := Evaluate(g, elig); !met || outcome != OutcomeApproved {
		t.Fatal("2 of 3 should meet majority")
	}
}

func TestEvaluateRoleQuorum(t *testing.T) {
	g := Create(req(protocol.Quorum{Type: protocol.QuorumRole, Role: protocol.RoleApprover, Count: 1}), time.Now())
	elig := Eligibility{RoleMembers: []string{"r1"}}

	g.AddApproval("r1")
	if met, outcome, _ := Evaluate(g, elig); !met || outcome != OutcomeApproved {
		t.Fatal("expected role quorum satisfied by named role member")
	}
}

func TestEvaluateSpecificQuorumRequiresNamedParticipants(t *testing.T) {
	g := Create(req(protocol.Quorum{Type: protocol.QuorumSpecific, Participants: []string{"p1", "p2"}}), time.Now())
	g.AddApproval("p1")
	if met, _, _ := Evaluate(g, Eligibility{}); met {
		t.Fatal("expected not met until every named participant approves")
	}
	g.AddApproval("p2")
	if met, outcome, _ := Evaluate(g, Eligibility{}); !met || outcome != OutcomeApproved {
		t.Fatal("expected approved once every named participant approved")
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	g := Create(req(protocol.Quorum{Type: protocol.QuorumAny, Count: 1}), now)
	g.Request.TimeoutSeconds = 30
	g.ExpiresAt = now.Add(30 * time.Second)

	if g.IsExpired(now.Add(10 * time.Second)) {
		t.Fatal("should not be expired before the deadline")
	}
	if !g.IsExpired(now.Add(31 * time.Second)) {
		t.Fatal("should be expired after the deadline")
	}
}

func TestCreateWithZeroTimeoutNeverExpires(t *testing.T) {
	g := Create(req(protocol.Quorum{Type: protocol.QuorumAny, Count: 1}), time.Now())
	if g.IsExpired(time.Now().Add(365 * 24 * time.Hour)) {
		t.Fatal("a gate with no timeout must never expire")
	}
}

func TestResolveTimeoutDefaultsToRejected(t *testing.T) {
	if ResolveTimeout(PolicyRejectOnTimeout) != OutcomeRejected {
		t.Fatal("expected reject-on-timeout policy to resolve to rejected")
	}
	if ResolveTimeout(PolicyApproveOnTimeout) != OutcomeTimedOutAutoApproved {
		t.Fatal("expected approve-on-timeout policy to auto-approve")
	}
	if ResolveTimeout(PolicyEscalateOnTimeout) != OutcomeEscalated {
		t.Fatal("expected escalate-on-timeout policy to escalate")
	}
	if ResolveTimeout(TimeoutPolicy("")) != OutcomeRejected {
		t.Fatal("expected an unset policy to collapse to rejected")
	}
}

func TestTablePutGetDelete(t *testing.T) {
	tbl := NewTable()
	g := Create(req(protocol.Quorum{Type: protocol.QuorumAny, Count: 1}), time.Now())
	tbl.Put(g)

	if got, ok := tbl.Get(g.ProposalID); !ok || got != g {
		t.Fatal("expected to retrieve the gate just stored")
	}
	if len(tbl.Pending()) != 1 {
		t.Fatalf("expected 1 pending gate, got %d", len(tbl.Pending()))
	}
	tbl.Delete(g.ProposalID)
	if _, ok := tbl.Get(g.ProposalID); ok {
		t.Fatal("expected gate removed after Delete")
	}
}
