package router

import (
	"encoding/json"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

func (r *Router) handleForkCreate(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	if !sess.Config.AllowForks {
		return nil, nil, rerr(protocol.ErrInvalidState, "forking is disabled for this session")
	}
	var payload protocol.ForkCreatePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed fork.create payload")
	}
	parent := payload.ParentID
	if parent == "" {
		parent = sess.CurrentFork()
	}
	f := sess.CreateFork(payload.Name, parent)
	payload.ForkID = f.ID
	payload.ParentID = f.ParentID

	// Rebroadcast under the inbound envelope's own id with the assigned
	// fork id filled in, so refs to it resolve against the log.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, rerr(protocol.ErrInternalError, "%v", err)
	}
	env.Payload = raw
	appended := sess.Append(env)
	return []outbound{{appended, nil}}, nil, nil
}

func (r *Router) handleForkSwitch(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.ForkSwitchPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed fork.switch payload")
	}
	if !sess.SwitchFork(payload.ForkID) {
		return nil, nil, rerr(protocol.ErrInvalidState, "unknown fork %q", payload.ForkID)
	}
	appended := sess.Append(env)
	return []outbound{{appended, nil}}, nil, nil
}

// handleMergePropose validates both forks before relaying the proposal;
// it mutates nothing — the fork table only changes on merge.execute.
func (r *Router) handleMergePropose(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.MergeProposePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed merge.propose payload")
	}
	if _, ok := sess.GetFork(payload.FromFork); !ok {
		return nil, nil, rerr(protocol.ErrInvalidState, "unknown fork %q", payload.FromFork)
	}
	if _, ok := sess.GetFork(payload.IntoFork); !ok {
		return nil, nil, rerr(protocol.ErrInvalidState, "unknown fork %q", payload.IntoFork)
	}
	appended := sess.Append(env)
	return []outbound{{appended, nil}}, nil, nil
}

// handleMergeExecute folds one fork into another: the source is marked
// merged and, when the current fork pointed at it, the pointer follows
// the merge.
func (r *Router) handleMergeExecute(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.MergeExecutePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed merge.execute payload")
	}
	if !sess.MergeFork(payload.FromFork, payload.IntoFork) {
		return nil, nil, rerr(protocol.ErrInvalidState, "cannot merge fork %q into %q", payload.FromFork, payload.IntoFork)
	}
	appended := sess.Append(env)
	return []outbound{{appended, nil}}, nil, nil
}

// handleSecretShare delivers the secret only to the participants its
// allowlist names plus the sharer — the same delivery discipline as
// context visibility, applied to a payload that must never reach the
// whole session.
func (r *Router) handleSecretShare(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.SecretSharePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed secret.share payload")
	}
	if len(payload.SharedWith) == 0 {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "secret.share requires an explicit shared_with allowlist")
	}
	allowed := map[string]bool{env.Sender: true}
	for _, pid := range payload.SharedWith {
		allowed[pid] = true
	}
	appended := sess.Append(env)
	filter := func(participantID string) bool { return allowed[participantID] }
	return []outbound{{appended, filter}}, nil, nil
}

// handleInboundError routes a client-originated `error` envelope to the
// participant whose earlier message it relates to, when that can be
// resolved; otherwise it is broadcast. Like every error envelope, it is
// never appended to the session log.
func (r *Router) handleInboundError(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.ErrorPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed error payload")
	}
	var filter func(string) bool
	if payload.RelatedTo != "" {
		if related, ok := sess.GetByID(payload.RelatedTo); ok {
			filter = filterOne(related.Sender)
		}
	}
	return []outbound{{env, filter}}, nil, nil
}
