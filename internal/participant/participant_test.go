package participant

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

func TestTableAddRemove(t *testing.T) {
	tbl := NewTable()
	tbl.Add(protocol.ParticipantInfo{ID: "p1", Type: protocol.ParticipantHuman})
	p, ok := tbl.Get("p1")
	if !ok || p.Presence != protocol.PresenceActive {
		t.Fatalf("expected active participant p1, got %+v ok=%v", p, ok)
	}
	tbl.Remove("p1")
	if _, ok := tbl.Get("p1"); ok {
		t.Fatal("expected p1 removed")
	}
}

func TestSetPresenceOnlyReportsActualTransitions(t *testing.T) {
	tbl := NewTable()
	tbl.Add(protocol.ParticipantInfo{ID: "p1"})
	_, changed := tbl.SetPresence("p1", protocol.PresenceActive)
	if changed {
		t.Fatal("setting to the same presence should not report a change")
	}
	prev, changed := tbl.SetPresence("p1", protocol.PresenceIdle)
	if !changed || prev != protocol.PresenceActive {
		t.Fatalf("expected transition from active, got prev=%s changed=%v", prev, changed)
	}
}

func TestEligibleApprovers(t *testing.T) {
	tbl := NewTable()
	tbl.Add(protocol.ParticipantInfo{ID: "approver1", Roles: []protocol.Role{protocol.RoleApprover}})
	tbl.Add(protocol.ParticipantInfo{ID: "cap-approver", Capabilities: []protocol.Capability{protocol.CapApprove}})
	tbl.Add(protocol.ParticipantInfo{ID: "observer", Roles: []protocol.Role{protocol.RoleObserver}})

	eligible := tbl.Eligible()
	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible approvers, got %d (%v)", len(eligible), eligible)
	}
}

func TestEvaluatePresence(t *testing.T) {
	now := time.Now()
	cases := []struct {
		elapsed time.Duration
		want    protocol.Presence
	}{
		{5 * time.Second, protocol.PresenceActive},
		{90 * time.Second, protocol.PresenceIdle},
		{10 * time.Minute, protocol.PresenceAway},
	}
	for _, tc := range cases {
		got := EvaluatePresence(now.Add(-tc.elapsed), now, 60*time.Second, 300*time.Second)
		if got != tc.want {
			t.Errorf("elapsed=%s: got %s, want %s", tc.elapsed, got, tc.want)
		}
	}
}

func TestSchedulerStopAllBlocksUntilDone(t *testing.T) {
	s := NewScheduler(nil)
	s.GetOrCreate("sess-1", 5*time.Millisecond, func(ctx context.Context) {}, nil)
	if s.Active() != 1 {
		t.Fatalf("expected 1 active runner, got %d", s.Active())
	}
	s.StopAll()
	if s.Active() != 0 {
		t.Fatalf("expected 0 active runners after StopAll, got %d", s.Active())
	}
}
