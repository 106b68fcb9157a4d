package router

import (
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/convoke/internal/gate"
	"github.com/nextlevelbuilder/convoke/internal/id"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// handleToolPropose trusts the proposing agent's own classification
// (category/risk/requires_approval), already computed by a toolhandler's
// Describe call before the proposal was ever sent: the router never
// reclassifies, it only decides whether to open a gate.
func (r *Router) handleToolPropose(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.ToolProposePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed tool.propose payload")
	}
	if payload.ProposalID == "" {
		payload.ProposalID = id.NewProposalID()
	}
	payload.ProposingAgent = env.Sender

	// Rebroadcast under the inbound envelope's own id with the proposal
	// id and proposing agent normalized, so later gate/execute envelopes
	// can ref it against the log.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, rerr(protocol.ErrInternalError, "%v", err)
	}
	env.Payload = raw
	appended := sess.Append(env)
	out := []outbound{{appended, nil}}

	if !payload.RequiresApproval {
		execEnv, err := protocol.New(protocol.TypeToolExecute, sess.ID, protocol.SystemSender, protocol.ToolExecutePayload{ProposalID: payload.ProposalID}, protocol.WithRef(appended.ID))
		if err != nil {
			return out, nil, nil
		}
		out = append(out, outbound{sess.Append(execEnv), nil})
		return out, nil, nil
	}

	quorum := sess.Config.DefaultGateQuorum
	if len(payload.SuggestedApprovers) > 0 {
		quorum = protocol.Quorum{Type: protocol.QuorumSpecific, Participants: payload.SuggestedApprovers}
	}
	req := gate.Request{
		ActionType:     payload.Category,
		ActionRef:      payload.ProposalID,
		Quorum:         quorum,
		TimeoutSeconds: defaultGateTimeoutSeconds,
		Message:        payload.Description,
	}
	g := gate.Create(req, time.Now().UTC())

	// A gate nobody could ever approve resolves immediately as
	// rejected, before it is ever placed in the pending table.
	if _, outcome, reason := gate.Evaluate(g, r.eligibility(sess, g)); outcome == gate.OutcomeRejected {
		rejectEnv, err := protocol.New(protocol.TypeGateReject, sess.ID, protocol.SystemSender, protocol.GateRejectPayload{
			ProposalID: g.ProposalID,
			Reason:     reason,
		}, protocol.WithRef(appended.ID))
		if err == nil {
			out = append(out, outbound{sess.Append(rejectEnv), nil})
		}
		return out, nil, nil
	}

	sess.Gates.Put(g)
	after := r.gateSaved(sess.ID, g)

	reqEnv, err := protocol.New(protocol.TypeGateRequest, sess.ID, protocol.SystemSender, protocol.GateRequestPayload{
		ActionType:     req.ActionType,
		ActionRef:      req.ActionRef,
		Quorum:         req.Quorum,
		TimeoutSeconds: req.TimeoutSeconds,
		Message:        req.Message,
	}, protocol.WithRef(appended.ID))
	if err != nil {
		return out, after, nil
	}
	out = append(out, outbound{sess.Append(reqEnv), nil})
	return out, after, nil
}

// eligibility computes the approver sets g's quorum is judged against.
func (r *Router) eligibility(sess *sessionT, g *gate.State) gate.Eligibility {
	elig := gate.Eligibility{AllEligible: sess.Participants.Eligible()}
	if g.Request.Quorum.Type == protocol.QuorumRole {
		elig.RoleMembers = sess.Participants.EligibleWithRole(g.Request.Quorum.Role)
	}
	return elig
}

func (r *Router) handleGateApprove(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.GateApprovePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed gate.approve payload")
	}
	g, ok := sess.Gates.Get(payload.ProposalID)
	if !ok {
		return nil, nil, rerr(protocol.ErrInvalidState, "no pending gate for proposal %q", payload.ProposalID)
	}
	g.AddApproval(env.Sender)
	return r.resolveGate(sess, g, env)
}

func (r *Router) handleGateReject(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.GateRejectPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed gate.reject payload")
	}
	g, ok := sess.Gates.Get(payload.ProposalID)
	if !ok {
		return nil, nil, rerr(protocol.ErrInvalidState, "no pending gate for proposal %q", payload.ProposalID)
	}
	g.AddRejection(env.Sender)
	return r.resolveGate(sess, g, env)
}

// resolveGate appends the vote itself, then evaluates quorum; a
// rejection always wins immediately regardless of any prior approvals
// (internal/gate.Evaluate), and an approved gate synthesizes tool.execute
// while a rejected one ends with a gate.reject addressed to the whole
// session (the proposing agent included, so it can fail the tool-batch
// entry): the voter's own gate.reject, or a synthesized one when the
// deciding vote was not a rejection. The gate stays pending only while evaluation is inconclusive:
// quorum met and any rejection are both terminal.
func (r *Router) resolveGate(sess *sessionT, g *gate.State, voteEnv protocol.Envelope) ([]outbound, []func(), *routeError) {
	met, outcome, reason := gate.Evaluate(g, r.eligibility(sess, g))
	appendedVote := sess.Append(voteEnv)
	out := []outbound{{appendedVote, nil}}
	if !met && outcome != gate.OutcomeRejected {
		return out, nil, nil
	}
	sess.Gates.Delete(g.ProposalID)
	after := r.gateDeleted(sess.ID, g.ProposalID)

	if met {
		execEnv, err := protocol.New(protocol.TypeToolExecute, sess.ID, protocol.SystemSender, protocol.ToolExecutePayload{ProposalID: g.ProposalID}, protocol.WithRef(appendedVote.ID))
		if err == nil {
			out = append(out, outbound{sess.Append(execEnv), nil})
		}
		return out, after, nil
	}

	// A human's own gate.reject vote was just appended above and already
	// carries the proposal id and reason; only votes of other kinds (an
	// approval that tipped evaluation into "no eligible approvers") need
	// a synthetic reject.
	if voteEnv.Type == protocol.TypeGateReject {
		return out, after, nil
	}
	if reason == "" {
		reason = "quorum rejected"
	}
	rejectEnv, err := protocol.New(protocol.TypeGateReject, sess.ID, protocol.SystemSender, protocol.GateRejectPayload{
		ProposalID: g.ProposalID,
		Reason:     reason,
	}, protocol.WithRef(appendedVote.ID))
	if err == nil {
		out = append(out, outbound{sess.Append(rejectEnv), nil})
	}
	return out, after, nil
}
