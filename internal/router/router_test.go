package router

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/nextlevelbuilder/convoke/internal/gate"
	"github.com/nextlevelbuilder/convoke/internal/participant"
	"github.com/nextlevelbuilder/convoke/internal/session"
	"github.com/nextlevelbuilder/convoke/internal/transport"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// fakeServer records every broadcast (and its filter) for assertions; it
// never actually delivers anywhere, matching what these tests need.
type fakeServer struct {
	broadcasts []protocol.Envelope
	filters    []transport.BroadcastFilter
}

func (f *fakeServer) OnConnection(h func(conn transport.Transport))                {}
func (f *fakeServer) Broadcast(ctx context.Context, env protocol.Envelope, filter transport.BroadcastFilter) {
	f.broadcasts = append(f.broadcasts, env)
	f.filters = append(f.filters, filter)
}
func (f *fakeServer) Register(participantID string, conn transport.Transport) {}
func (f *fakeServer) Unregister(participantID string)                         {}
func (f *fakeServer) Close() error                                            { return nil }

func newTestRouter() (*Router, *fakeServer) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := &fakeServer{}
	r := New(session.NewRegistry(), srv, participant.NewScheduler(logger), nil, logger, gate.PolicyRejectOnTimeout)
	return r, srv
}

func mustEnvelope(t *testing.T, typ protocol.Type, sessionID, sender string, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.New(typ, sessionID, sender, payload)
	if err != nil {
		t.Fatalf("building envelope: %v", err)
	}
	return env
}

func TestSessionCreateThenJoinReplaysRoster(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	create := mustEnvelope(t, protocol.TypeSessionCreate, "sess-1", protocol.SystemSender, protocol.SessionCreatePayload{
		Config: protocol.DefaultSessionConfig(),
	})
	r.Dispatch(ctx, create)

	join1 := mustEnvelope(t, protocol.TypeSessionJoin, "sess-1", "alice", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "alice", Type: protocol.ParticipantHuman},
		SupportedVersions: []int{protocol.SchemaVersion},
	})
	r.Dispatch(ctx, join1)

	join2 := mustEnvelope(t, protocol.TypeSessionJoin, "sess-1", "bob", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "bob", Type: protocol.ParticipantHuman},
		SupportedVersions: []int{protocol.SchemaVersion},
	})
	srv.broadcasts = nil
	r.Dispatch(ctx, join2)

	foundAliceReplay := false
	for _, env := range srv.broadcasts {
		if env.Type == protocol.TypeParticipantAnnounce {
			var p protocol.ParticipantAnnouncePayload
			_ = env.DecodePayload(&p)
			if p.Participant.ID == "alice" {
				foundAliceReplay = true
			}
		}
	}
	if !foundAliceReplay {
		t.Fatal("expected bob's join to replay alice's existing participant.announce")
	}
}

func TestSessionNotFoundRepliesError(t *testing.T) {
	r, srv := newTestRouter()
	env := mustEnvelope(t, protocol.TypeHeartbeatPong, "missing", "alice", nil)
	r.Dispatch(context.Background(), env)

	if len(srv.broadcasts) != 1 || srv.broadcasts[0].Type != protocol.TypeError {
		t.Fatalf("expected a single error envelope, got %+v", srv.broadcasts)
	}
	var payload protocol.ErrorPayload
	if err := srv.broadcasts[0].DecodePayload(&payload); err != nil {
		t.Fatalf("decoding error payload: %v", err)
	}
	if payload.Code != protocol.ErrSessionNotFound {
		t.Fatalf("expected SESSION_NOT_FOUND, got %s", payload.Code)
	}
}

func TestToolProposeRequiringApprovalOpensGate(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-2", protocol.SystemSender, protocol.SessionCreatePayload{
		Config: protocol.DefaultSessionConfig(),
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-2", "agent-1", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "agent-1", Type: protocol.ParticipantAgent},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-2", "approver-1", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "approver-1", Type: protocol.ParticipantHuman, Roles: []protocol.Role{protocol.RoleApprover}},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))

	srv.broadcasts = nil
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeToolPropose, "sess-2", "agent-1", protocol.ToolProposePayload{
		ToolName:         "shell",
		Arguments:        map[string]any{"command": "rm -rf ./build"},
		Category:         protocol.CategoryShellExecute,
		RiskLevel:        protocol.RiskHigh,
		RequiresApproval: true,
	}))

	var sawGateRequest bool
	for _, env := range srv.broadcasts {
		if env.Type == protocol.TypeGateRequest {
			sawGateRequest = true
		}
		if env.Type == protocol.TypeToolExecute {
			t.Fatal("a command requiring approval must not synthesize tool.execute before a gate resolves")
		}
	}
	if !sawGateRequest {
		t.Fatal("expected a gate.request to be broadcast")
	}
}

func TestGateApprovalByEligibleApproverSynthesizesExecute(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-3", protocol.SystemSender, protocol.SessionCreatePayload{
		Config: protocol.DefaultSessionConfig(),
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-3", "approver-1", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "approver-1", Type: protocol.ParticipantHuman, Roles: []protocol.Role{protocol.RoleApprover}},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeToolPropose, "sess-3", "agent-1", protocol.ToolProposePayload{
		ProposalID:       "prop-1",
		ToolName:         "shell",
		Category:         protocol.CategoryShellExecute,
		RiskLevel:        protocol.RiskHigh,
		RequiresApproval: true,
	}))

	srv.broadcasts = nil
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeGateApprove, "sess-3", "approver-1", protocol.GateApprovePayload{ProposalID: "prop-1"}))

	var sawExecute bool
	for _, env := range srv.broadcasts {
		if env.Type == protocol.TypeToolExecute {
			sawExecute = true
		}
	}
	if !sawExecute {
		t.Fatal("expected tool.execute once the only eligible approver approves")
	}
}

func TestUnauthorizedGateApproveIsRejected(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-4", protocol.SystemSender, protocol.SessionCreatePayload{
		Config: protocol.DefaultSessionConfig(),
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-4", "observer-1", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "observer-1", Type: protocol.ParticipantHuman, Roles: []protocol.Role{protocol.RoleObserver}},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))

	srv.broadcasts = nil
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeGateApprove, "sess-4", "observer-1", protocol.GateApprovePayload{ProposalID: "nope"}))

	if len(srv.broadcasts) != 1 || srv.broadcasts[0].Type != protocol.TypeError {
		t.Fatalf("expected a single error envelope, got %+v", srv.broadcasts)
	}
	var payload protocol.ErrorPayload
	_ = srv.broadcasts[0].DecodePayload(&payload)
	if payload.Code != protocol.ErrUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %s", payload.Code)
	}
}

func TestGateRejectionTerminatesGate(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-5", protocol.SystemSender, protocol.SessionCreatePayload{
		Config: protocol.DefaultSessionConfig(),
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-5", "approver-1", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "approver-1", Type: protocol.ParticipantHuman, Roles: []protocol.Role{protocol.RoleApprover}},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeToolPropose, "sess-5", "agent-1", protocol.ToolProposePayload{
		ProposalID:       "prop-5",
		ToolName:         "shell",
		Category:         protocol.CategoryShellExecute,
		RiskLevel:        protocol.RiskHigh,
		RequiresApproval: true,
	}))

	srv.broadcasts = nil
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeGateReject, "sess-5", "approver-1", protocol.GateRejectPayload{ProposalID: "prop-5", Reason: "not today"}))

	for _, env := range srv.broadcasts {
		if env.Type == protocol.TypeToolExecute {
			t.Fatal("a rejected gate must never synthesize tool.execute")
		}
	}

	sess, _ := r.sessions.Get("sess-5")
	sess.Lock()
	_, stillPending := sess.Gates.Get("prop-5")
	sess.Unlock()
	if stillPending {
		t.Fatal("a rejected gate must be removed from the pending table")
	}

	// A terminated gate never reappears: a late approve gets INVALID_STATE.
	srv.broadcasts = nil
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeGateApprove, "sess-5", "approver-1", protocol.GateApprovePayload{ProposalID: "prop-5"}))
	if len(srv.broadcasts) != 1 || srv.broadcasts[0].Type != protocol.TypeError {
		t.Fatalf("expected an error envelope for a vote on a terminated gate, got %+v", srv.broadcasts)
	}
	var payload protocol.ErrorPayload
	_ = srv.broadcasts[0].DecodePayload(&payload)
	if payload.Code != protocol.ErrInvalidState {
		t.Fatalf("expected INVALID_STATE, got %s", payload.Code)
	}
}

func TestProposalWithNoEligibleApproversRejectsImmediately(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-6", protocol.SystemSender, protocol.SessionCreatePayload{
		Config: protocol.DefaultSessionConfig(),
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-6", "agent-1", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "agent-1", Type: protocol.ParticipantAgent},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))

	srv.broadcasts = nil
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeToolPropose, "sess-6", "agent-1", protocol.ToolProposePayload{
		ProposalID:       "prop-6",
		ToolName:         "shell",
		Category:         protocol.CategoryShellExecute,
		RiskLevel:        protocol.RiskHigh,
		RequiresApproval: true,
	}))

	var reject *protocol.GateRejectPayload
	for _, env := range srv.broadcasts {
		if env.Type == protocol.TypeGateRequest {
			t.Fatal("a gate nobody can approve must not be opened")
		}
		if env.Type == protocol.TypeGateReject {
			var p protocol.GateRejectPayload
			_ = env.DecodePayload(&p)
			reject = &p
		}
	}
	if reject == nil {
		t.Fatal("expected an immediate gate.reject")
	}
	if reject.Reason != "no eligible approvers" {
		t.Fatalf("expected reason %q, got %q", "no eligible approvers", reject.Reason)
	}
}

func TestMergeExecuteFoldsForkAndMovesPointer(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-7", protocol.SystemSender, protocol.SessionCreatePayload{
		Config: protocol.DefaultSessionConfig(),
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-7", "alice", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "alice", Type: protocol.ParticipantHuman, Capabilities: []protocol.Capability{protocol.CapFork}},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))

	srv.broadcasts = nil
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeForkCreate, "sess-7", "alice", protocol.ForkCreatePayload{Name: "experiment"}))

	var forkID string
	for _, env := range srv.broadcasts {
		if env.Type == protocol.TypeForkCreate {
			var p protocol.ForkCreatePayload
			_ = env.DecodePayload(&p)
			forkID = p.ForkID
		}
	}
	if forkID == "" {
		t.Fatal("expected fork.create to assign a fork id")
	}

	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeForkSwitch, "sess-7", "alice", protocol.ForkSwitchPayload{ForkID: forkID}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeMergeExecute, "sess-7", "alice", protocol.MergeExecutePayload{FromFork: forkID, IntoFork: "root"}))

	sess, _ := r.sessions.Get("sess-7")
	sess.Lock()
	current := sess.CurrentFork()
	merged, _ := sess.GetFork(forkID)
	sess.Unlock()

	if current != "root" {
		t.Fatalf("expected the current fork to follow the merge to root, got %q", current)
	}
	if merged.MergedInto != "root" {
		t.Fatalf("expected fork %q to record its merge target, got %q", forkID, merged.MergedInto)
	}

	// A merged fork stops being a switch target.
	srv.broadcasts = nil
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeForkSwitch, "sess-7", "alice", protocol.ForkSwitchPayload{ForkID: forkID}))
	if len(srv.broadcasts) != 1 || srv.broadcasts[0].Type != protocol.TypeError {
		t.Fatalf("expected an error switching to a merged fork, got %+v", srv.broadcasts)
	}
}

func TestSecretShareDeliversOnlyToAllowlist(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-8", protocol.SystemSender, protocol.SessionCreatePayload{
		Config: protocol.DefaultSessionConfig(),
	}))
	for _, id := range []string{"alice", "bob", "carol"} {
		r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-8", id, protocol.SessionJoinPayload{
			Participant:       protocol.ParticipantInfo{ID: id, Type: protocol.ParticipantHuman},
			SupportedVersions: []int{protocol.SchemaVersion},
		}))
	}

	srv.broadcasts = nil
	srv.filters = nil
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSecretShare, "sess-8", "alice", protocol.SecretSharePayload{
		Key:        "deploy-token",
		Value:      "s3cr3t",
		SharedWith: []string{"bob"},
	}))

	if len(srv.broadcasts) != 1 || srv.broadcasts[0].Type != protocol.TypeSecretShare {
		t.Fatalf("expected exactly the secret.share broadcast, got %+v", srv.broadcasts)
	}
	filter := srv.filters[0]
	if filter == nil {
		t.Fatal("secret.share must carry a delivery filter")
	}
	if !filter("alice") || !filter("bob") {
		t.Fatal("the sharer and the allowlisted participant must receive the secret")
	}
	if filter("carol") {
		t.Fatal("a participant outside the allowlist must not receive the secret")
	}
}

func TestTotalOrderingAssignsContiguousSeq(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	cfg := protocol.DefaultSessionConfig()
	cfg.OrderingMode = protocol.OrderingTotal
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-9", protocol.SystemSender, protocol.SessionCreatePayload{Config: cfg}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-9", "alice", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "alice", Type: protocol.ParticipantHuman, Capabilities: []protocol.Capability{protocol.CapPrompt}},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypePromptSubmit, "sess-9", "alice", protocol.PromptSubmitPayload{Content: "one"}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypePromptSubmit, "sess-9", "alice", protocol.PromptSubmitPayload{Content: "two"}))

	sess, _ := r.sessions.Get("sess-9")
	sess.Lock()
	log := sess.Log()
	sess.Unlock()

	var prev int64
	for _, env := range log {
		if env.Seq != prev+1 {
			t.Fatalf("expected strictly increasing contiguous seq, got %d after %d", env.Seq, prev)
		}
		prev = env.Seq
	}
	_ = srv
}

func TestUnresolvableRefIsInvalidState(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-10", protocol.SystemSender, protocol.SessionCreatePayload{
		Config: protocol.DefaultSessionConfig(),
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-10", "alice", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "alice", Type: protocol.ParticipantHuman, Capabilities: []protocol.Capability{protocol.CapPrompt}},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))

	srv.broadcasts = nil
	env, err := protocol.New(protocol.TypePromptSubmit, "sess-10", "alice", protocol.PromptSubmitPayload{Content: "hi"}, protocol.WithRef("no-such-message"))
	if err != nil {
		t.Fatalf("building envelope: %v", err)
	}
	r.Dispatch(ctx, env)

	if len(srv.broadcasts) != 1 || srv.broadcasts[0].Type != protocol.TypeError {
		t.Fatalf("expected a single error envelope, got %+v", srv.broadcasts)
	}
	var payload protocol.ErrorPayload
	_ = srv.broadcasts[0].DecodePayload(&payload)
	if payload.Code != protocol.ErrInvalidState {
		t.Fatalf("expected INVALID_STATE, got %s", payload.Code)
	}
}

func TestOversizedContextItemIsRefused(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-11", protocol.SystemSender, protocol.SessionCreatePayload{
		Config: protocol.DefaultSessionConfig(),
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-11", "alice", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "alice", Type: protocol.ParticipantHuman, Capabilities: []protocol.Capability{protocol.CapAddContext}},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))

	srv.broadcasts = nil
	huge := make([]byte, maxContextBytes+1)
	for i := range huge {
		huge[i] = 'x'
	}
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeContextAdd, "sess-11", "alice", protocol.ContextAddPayload{Item: protocol.ContextItem{
		Key:         "blob",
		ContentType: protocol.ContentText,
		Content:     string(huge),
	}}))

	if len(srv.broadcasts) != 1 || srv.broadcasts[0].Type != protocol.TypeError {
		t.Fatalf("expected a single error envelope, got %+v", srv.broadcasts)
	}
	var payload protocol.ErrorPayload
	_ = srv.broadcasts[0].DecodePayload(&payload)
	if payload.Code != protocol.ErrContextTooLarge {
		t.Fatalf("expected CONTEXT_TOO_LARGE, got %s", payload.Code)
	}
}

func TestSessionFullRefusesJoin(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	cfg := protocol.DefaultSessionConfig()
	cfg.MaxParticipants = 1
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-12", protocol.SystemSender, protocol.SessionCreatePayload{Config: cfg}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-12", "alice", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "alice", Type: protocol.ParticipantHuman},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))

	srv.broadcasts = nil
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-12", "bob", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "bob", Type: protocol.ParticipantHuman},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))

	if len(srv.broadcasts) != 1 || srv.broadcasts[0].Type != protocol.TypeError {
		t.Fatalf("expected a single error envelope, got %+v", srv.broadcasts)
	}
}

func TestContextAddKeepsInboundIDAndAttachesRef(t *testing.T) {
	r, srv := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionCreate, "sess-13", protocol.SystemSender, protocol.SessionCreatePayload{
		Config: protocol.DefaultSessionConfig(),
	}))
	r.Dispatch(ctx, mustEnvelope(t, protocol.TypeSessionJoin, "sess-13", "alice", protocol.SessionJoinPayload{
		Participant:       protocol.ParticipantInfo{ID: "alice", Type: protocol.ParticipantHuman, Capabilities: []protocol.Capability{protocol.CapAddContext}},
		SupportedVersions: []int{protocol.SchemaVersion},
	}))

	srv.broadcasts = nil
	addEnv := mustEnvelope(t, protocol.TypeContextAdd, "sess-13", "alice", protocol.ContextAddPayload{Item: protocol.ContextItem{
		Key:         "plan",
		ContentType: protocol.ContentText,
		Content:     "step one",
	}})
	r.Dispatch(ctx, addEnv)

	if len(srv.broadcasts) != 1 || srv.broadcasts[0].Type != protocol.TypeContextAdd {
		t.Fatalf("expected the context.add broadcast, got %+v", srv.broadcasts)
	}
	if srv.broadcasts[0].ID != addEnv.ID {
		t.Fatal("the broadcast must keep the inbound envelope's id so later refs resolve")
	}
	var payload protocol.ContextAddPayload
	_ = srv.broadcasts[0].DecodePayload(&payload)
	if payload.Item.ContentRef == nil || payload.Item.ContentRef.Hash == "" {
		t.Fatal("inline content must gain a computed content ref")
	}
	if payload.Item.ContentRef.Size != int64(len("step one")) {
		t.Fatalf("content ref must record size in bytes, got %d", payload.Item.ContentRef.Size)
	}
}
