package router

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/convoke/internal/gate"
	"github.com/nextlevelbuilder/convoke/internal/participant"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// pingFunc builds the per-tick heartbeat.ping broadcaster for one
// session, bound by id rather than by pointer so it keeps working across
// a session lookup that might (in principle) return a different instance
// after a restart-from-storage. Pings are transport-level liveness
// probes, never appended to the event log — the log records the
// session's conversation, not the broker's polling.
func (r *Router) pingFunc(sessionID string) participant.PingFunc {
	return func(ctx context.Context) {
		if _, ok := r.sessions.Get(sessionID); !ok {
			return
		}
		env, err := protocol.New(protocol.TypeHeartbeatPing, sessionID, protocol.SystemSender, nil)
		if err != nil {
			return
		}
		r.transport.Broadcast(ctx, env, nil)
	}
}

// sweepFunc builds the per-tick sweep: presence transitions off elapsed
// heartbeat age, plus gate-timeout resolution for any gate whose timer
// has expired. Both run under the same lock acquisition since both read
// and mutate session state; broadcasts happen after the unlock.
func (r *Router) sweepFunc(sessionID string) func(ctx context.Context) {
	return func(ctx context.Context) {
		sess, ok := r.sessions.Get(sessionID)
		if !ok {
			return
		}

		sess.Lock()
		toSend := r.sweepPresence(sess)
		gateEnvs, expired := r.sweepGateTimeouts(sess)
		toSend = append(toSend, gateEnvs...)
		sess.Unlock()

		out := make([]outbound, 0, len(toSend))
		for _, env := range toSend {
			r.transport.Broadcast(ctx, env, nil)
			out = append(out, outbound{env, nil})
		}
		r.mirrorEvents(ctx, out)
		if r.store != nil {
			for _, proposalID := range expired {
				if err := r.store.Delete(ctx, sessionID, proposalID); err != nil {
					r.logger.Warn("store mirror gate delete failed", "session_id", sessionID, "proposal_id", proposalID, "error", err)
				}
			}
		}
	}
}

func (r *Router) sweepPresence(sess *sessionT) []protocol.Envelope {
	idle := time.Duration(sess.Config.IdleTimeoutSeconds) * time.Second
	away := time.Duration(sess.Config.AwayTimeoutSeconds) * time.Second
	now := time.Now().UTC()

	var out []protocol.Envelope
	for _, snap := range sess.Participants.Snapshot() {
		want := participant.EvaluatePresence(snap.LastHeartbeatAt, now, idle, away)
		if want == snap.Presence {
			continue
		}
		if _, changed := sess.Participants.SetPresence(snap.ID, want); !changed {
			continue
		}
		env, err := protocol.New(protocol.TypePresenceUpdate, sess.ID, protocol.SystemSender, protocol.PresenceUpdatePayload{
			ParticipantID: snap.ID,
			Presence:      want,
		})
		if err != nil {
			continue
		}
		out = append(out, sess.Append(env))
	}
	return out
}

// sweepGateTimeouts resolves every expired pending gate per the router's
// configured timeout policy: rejected (default), auto-approved, or
// escalated (which still denies automatic execution). The second return
// lists the proposal ids whose gates terminated, for the store mirror.
func (r *Router) sweepGateTimeouts(sess *sessionT) ([]protocol.Envelope, []string) {
	now := time.Now().UTC()
	var out []protocol.Envelope
	var expired []string
	for _, g := range sess.Gates.Pending() {
		if !g.IsExpired(now) {
			continue
		}
		sess.Gates.Delete(g.ProposalID)
		expired = append(expired, g.ProposalID)

		outcome := gate.ResolveTimeout(r.gateTimeoutPolicy)
		resolution := protocol.ResolutionRejected
		switch outcome {
		case gate.OutcomeTimedOutAutoApproved:
			resolution = protocol.ResolutionAutoApproved
		case gate.OutcomeEscalated:
			resolution = protocol.ResolutionEscalated
		}

		timeoutEnv, err := protocol.New(protocol.TypeGateTimeout, sess.ID, protocol.SystemSender, protocol.GateTimeoutPayload{
			ProposalID: g.ProposalID,
			Resolution: resolution,
		})
		if err != nil {
			continue
		}
		out = append(out, sess.Append(timeoutEnv))

		if outcome == gate.OutcomeTimedOutAutoApproved {
			execEnv, err := protocol.New(protocol.TypeToolExecute, sess.ID, protocol.SystemSender, protocol.ToolExecutePayload{ProposalID: g.ProposalID}, protocol.WithRef(timeoutEnv.ID))
			if err == nil {
				out = append(out, sess.Append(execEnv))
			}
		}
	}
	return out, expired
}
