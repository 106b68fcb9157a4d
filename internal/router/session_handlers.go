package router

import (
	"context"

	"github.com/nextlevelbuilder/convoke/internal/id"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// handleSessionCreate is dispatched before any session lookup, since the
// session named by the envelope may not exist yet. An empty env.Session
// requests a freshly minted id; a name colliding with a live session is
// rejected rather than silently reused.
func (r *Router) handleSessionCreate(ctx context.Context, env protocol.Envelope) {
	var payload protocol.SessionCreatePayload
	if err := env.DecodePayload(&payload); err != nil {
		r.replyError(ctx, env, protocol.ErrInvalidMessage, "malformed session.create payload", false)
		return
	}

	sessionID := env.Session
	if sessionID == "" {
		sessionID = id.NewSessionID()
	}
	cfg := payload.Config
	if cfg.DefaultGateQuorum.Type == "" {
		cfg = protocol.DefaultSessionConfig()
	}

	sess, created := r.sessions.Create(sessionID, payload.Name, cfg)
	if !created {
		r.replyError(ctx, env, protocol.ErrInvalidState, "session already exists", false)
		return
	}

	env.Session = sessionID
	sess.Lock()
	appended := sess.Append(env)
	sess.Unlock()
	r.transport.Broadcast(ctx, appended, nil)
	r.mirrorEvents(ctx, []outbound{{appended, nil}})
}

// handleSessionJoin adds the joining participant, broadcasts its
// announcement, replays the current roster and visible context privately
// to the joiner (never logged — it would duplicate events already in the
// log), and starts the session's heartbeat runner if this is its first
// participant.
func (r *Router) handleSessionJoin(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.SessionJoinPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed session.join payload")
	}
	if !supportsVersion(payload.SupportedVersions) {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "no overlapping protocol version")
	}
	if payload.Participant.ID == "" {
		payload.Participant.ID = env.Sender
	}
	if max := sess.Config.MaxParticipants; max > 0 {
		if _, already := sess.Participants.Get(payload.Participant.ID); !already && len(sess.Participants.All()) >= max {
			return nil, nil, rerr(protocol.ErrInvalidState, "session is full (%d participants)", max)
		}
	}

	sess.Participants.Add(payload.Participant)

	announceEnv, err := protocol.New(protocol.TypeParticipantAnnounce, sess.ID, protocol.SystemSender, protocol.ParticipantAnnouncePayload{Participant: payload.Participant})
	if err != nil {
		return nil, nil, rerr(protocol.ErrInternalError, "%v", err)
	}
	appended := sess.Append(announceEnv)
	out := []outbound{{appended, nil}}

	joinerFilter := filterOne(payload.Participant.ID)
	for _, p := range sess.Participants.All() {
		if p.Info.ID == payload.Participant.ID {
			continue
		}
		e, err := protocol.New(protocol.TypeParticipantAnnounce, sess.ID, protocol.SystemSender, protocol.ParticipantAnnouncePayload{Participant: p.Info})
		if err != nil {
			continue
		}
		out = append(out, outbound{e, joinerFilter})
	}
	for _, item := range sess.Context.FilterVisibleTo(payload.Participant.ID) {
		e, err := protocol.New(protocol.TypeContextAdd, sess.ID, protocol.SystemSender, protocol.ContextAddPayload{Item: item})
		if err != nil {
			continue
		}
		out = append(out, outbound{e, joinerFilter})
	}

	r.startHeartbeat(sess)
	return out, nil, nil
}

// handleSessionLeave removes the participant and synthesizes the matching
// presence transition to disconnected; the broker's transport-close
// handler constructs an identical envelope when a connection drops
// without an explicit session.leave.
func (r *Router) handleSessionLeave(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	sess.Participants.Remove(env.Sender)
	appended := sess.Append(env)
	out := []outbound{{appended, nil}}

	presenceEnv, err := protocol.New(protocol.TypePresenceUpdate, sess.ID, protocol.SystemSender, protocol.PresenceUpdatePayload{
		ParticipantID: env.Sender,
		Presence:      protocol.PresenceDisconnected,
	})
	if err == nil {
		out = append(out, outbound{sess.Append(presenceEnv), nil})
	}

	after := []func(){func() {
		if r.limiter != nil {
			r.limiter.Remove(env.Sender)
		}
	}}
	return out, after, nil
}

// handleSessionEnd broadcasts the end and defers tearing down the
// session's registry entry and heartbeat runner until after the lock is
// released, since the runner's stop() blocks waiting for its goroutine to
// exit and that goroutine may itself be trying to acquire this lock.
func (r *Router) handleSessionEnd(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	appended := sess.Append(env)
	sessionID := sess.ID
	after := []func(){func() {
		r.sessions.Remove(sessionID)
		r.heartbeats.StopSession(sessionID)
	}}
	return []outbound{{appended, nil}}, after, nil
}

func (r *Router) handleSessionConfigUpdate(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.SessionConfigUpdatePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed session.config_update payload")
	}
	sess.Config = payload.Config
	appended := sess.Append(env)
	return []outbound{{appended, nil}}, nil, nil
}

func (r *Router) handleRoleChange(sess *sessionT, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	var payload protocol.ParticipantRoleChangePayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, nil, rerr(protocol.ErrInvalidMessage, "malformed participant.role_change payload")
	}
	if !sess.Participants.SetRoles(payload.ParticipantID, payload.Roles) {
		return nil, nil, rerr(protocol.ErrParticipantNotFound, "unknown participant %q", payload.ParticipantID)
	}
	appended := sess.Append(env)
	return []outbound{{appended, nil}}, nil, nil
}

func supportsVersion(versions []int) bool {
	if len(versions) == 0 {
		return true
	}
	for _, v := range versions {
		if v == protocol.SchemaVersion {
			return true
		}
	}
	return false
}
