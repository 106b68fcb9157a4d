// Package router implements the central message dispatcher: the single
// place that knows what each protocol.Type means for session state,
// authorization, and who else gets to see the result. Every inbound
// envelope from any transport connection passes through Dispatch, which
// locks the target session, computes a set of outbound envelopes (and any
// log appends) under that lock, and only then releases it and fans the
// results out over the transport — no goroutine ever suspends while
// holding a session's single logical mutex.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/convoke/internal/gate"
	"github.com/nextlevelbuilder/convoke/internal/participant"
	"github.com/nextlevelbuilder/convoke/internal/ratelimit"
	"github.com/nextlevelbuilder/convoke/internal/session"
	"github.com/nextlevelbuilder/convoke/internal/store"
	"github.com/nextlevelbuilder/convoke/internal/tracing"
	"github.com/nextlevelbuilder/convoke/internal/transport"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// defaultGateTimeoutSeconds is the fixed per-gate timer armed whenever a
// tool proposal opens a gate. tool.propose carries no timeout of its own
// and there is no session-config field for it.
const defaultGateTimeoutSeconds = 120

// sessionT aliases session.Session so the per-area handler files below
// don't each need their own import of internal/session.
type sessionT = session.Session

// outbound pairs an envelope already appended to a session's log with the
// broadcast filter it should be delivered under (nil = everyone).
type outbound struct {
	env    protocol.Envelope
	filter transport.BroadcastFilter
}

// routeError is a rejection the router converts into an `error` envelope
// addressed back to the offending sender. It is distinct from a Go error
// returned by Dispatch itself, which would indicate a programming defect.
type routeError struct {
	code        string
	message     string
	recoverable bool
}

func (e *routeError) Error() string { return e.message }

func rerr(code, format string, args ...any) *routeError {
	return &routeError{code: code, message: fmt.Sprintf(format, args...), recoverable: true}
}

// Router wires together the session registry, the transport acceptor, the
// heartbeat scheduler, and the inbound rate limiter. It holds no session
// state itself; all of that lives in the *session.Session the dispatched
// envelope names.
type Router struct {
	sessions   *session.Registry
	transport  transport.Server
	heartbeats *participant.Scheduler
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	tracer     *tracing.Provider
	store      store.Store

	gateTimeoutPolicy gate.TimeoutPolicy
}

// SetStore attaches the durability mirror: every
// envelope a session's log appends is also written to the configured
// backend after the session lock is released, and pending gates are
// snapshotted on open and deleted on termination. The in-memory session
// log stays authoritative at runtime; the mirror is write-behind and
// best-effort (a failed write is logged, never surfaced to participants).
func (r *Router) SetStore(st store.Store) { r.store = st }

// SetTracer attaches a tracing.Provider; nil disables
// span creation (Dispatch falls back to running untraced). Split from
// New so tests and call sites that don't care about tracing are
// unaffected.
func (r *Router) SetTracer(p *tracing.Provider) { r.tracer = p }

// New constructs a Router. limiter may be nil to disable rate limiting.
func New(sessions *session.Registry, srv transport.Server, heartbeats *participant.Scheduler, limiter *ratelimit.Limiter, logger *slog.Logger, gateTimeoutPolicy gate.TimeoutPolicy) *Router {
	return &Router{
		sessions:          sessions,
		transport:         srv,
		heartbeats:        heartbeats,
		limiter:           limiter,
		logger:            logger,
		gateTimeoutPolicy: gateTimeoutPolicy,
	}
}

// Dispatch is the single entry point every transport connection's message
// handler calls. It never panics on malformed input; every failure mode,
// including an envelope for an unknown session, becomes a direct `error`
// envelope back to the sender.
func (r *Router) Dispatch(ctx context.Context, env protocol.Envelope) {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "router.dispatch", attribute.String("message.type", string(env.Type)))
		defer span.End()
	}

	if env.Type == protocol.TypeSessionCreate {
		r.handleSessionCreate(ctx, env)
		return
	}

	if r.limiter != nil && env.Sender != protocol.SystemSender && !r.limiter.Allow(env.Sender) {
		r.replyError(ctx, env, protocol.ErrRateLimited, "rate limit exceeded", true)
		return
	}

	var sess *session.Session
	if env.Type == protocol.TypeSessionJoin {
		sess, _ = r.sessions.GetOrAutoCreate(env.Session)
	} else {
		var ok bool
		sess, ok = r.sessions.Get(env.Session)
		if !ok {
			r.replyError(ctx, env, protocol.ErrSessionNotFound, "unknown session", false)
			return
		}
	}

	sess.Lock()
	sess.Participants.TouchActive(env.Sender)
	out, after, rerr := r.route(ctx, sess, env)
	sess.Unlock()

	if rerr != nil {
		errEnv, err := protocol.NewError(sess.ID, env.ID, rerr.code, rerr.message, rerr.recoverable)
		if err == nil {
			r.transport.Broadcast(ctx, errEnv, filterOne(env.Sender))
		}
		for _, fn := range after {
			fn()
		}
		return
	}

	for _, o := range out {
		r.transport.Broadcast(ctx, o.env, o.filter)
	}
	r.mirrorEvents(ctx, out)
	for _, fn := range after {
		fn()
	}
}

// mirrorEvents write-behinds appended envelopes to the durability store.
// Error envelopes are never appended to the session log; one relayed by
// handleInboundError can still be in out, and is skipped here.
func (r *Router) mirrorEvents(ctx context.Context, out []outbound) {
	if r.store == nil {
		return
	}
	for _, o := range out {
		if o.env.Type == protocol.TypeError {
			continue
		}
		if err := r.store.Append(ctx, o.env.Session, o.env); err != nil {
			r.logger.Warn("store mirror append failed", "session_id", o.env.Session, "message_id", o.env.ID, "error", err)
		}
	}
}

// gateSaved returns the deferred store write for a freshly opened gate.
func (r *Router) gateSaved(sessionID string, g *gate.State) []func() {
	if r.store == nil {
		return nil
	}
	snap, err := snapshotGate(sessionID, g)
	if err != nil {
		r.logger.Warn("store mirror gate snapshot failed", "session_id", sessionID, "proposal_id", g.ProposalID, "error", err)
		return nil
	}
	return []func(){func() {
		if err := r.store.Save(context.Background(), snap); err != nil {
			r.logger.Warn("store mirror gate save failed", "session_id", sessionID, "proposal_id", snap.ProposalID, "error", err)
		}
	}}
}

// snapshotGate projects a gate.State into the store's durable form; the
// router owns this (de)serialization so internal/store stays free of a
// gate dependency.
func snapshotGate(sessionID string, g *gate.State) (store.GateSnapshot, error) {
	stateJSON, err := json.Marshal(g)
	if err != nil {
		return store.GateSnapshot{}, err
	}
	var expires int64
	if !g.ExpiresAt.IsZero() {
		expires = g.ExpiresAt.Unix()
	}
	return store.GateSnapshot{
		SessionID:  sessionID,
		ProposalID: g.ProposalID,
		StateJSON:  stateJSON,
		ExpiresAt:  expires,
	}, nil
}

// gateDeleted returns the deferred store delete for a terminated gate.
func (r *Router) gateDeleted(sessionID, proposalID string) []func() {
	if r.store == nil {
		return nil
	}
	return []func(){func() {
		if err := r.store.Delete(context.Background(), sessionID, proposalID); err != nil {
			r.logger.Warn("store mirror gate delete failed", "session_id", sessionID, "proposal_id", proposalID, "error", err)
		}
	}}
}

// replyError sends an `error` envelope directly to env's sender without a
// session context (used before a session lookup has succeeded).
func (r *Router) replyError(ctx context.Context, env protocol.Envelope, code, message string, recoverable bool) {
	errEnv, err := protocol.NewError(env.Session, env.ID, code, message, recoverable)
	if err != nil {
		return
	}
	r.transport.Broadcast(ctx, errEnv, filterOne(env.Sender))
}

// requiredCapability maps a message type to the capability its sender must
// carry (via explicit grant, role admin, or — for gate votes — role
// approver). Types absent from this map carry no authorization
// requirement beyond being a registered participant of the session.
var requiredCapability = map[protocol.Type]protocol.Capability{
	protocol.TypePromptDraft:            protocol.CapPrompt,
	protocol.TypePromptSubmit:           protocol.CapPrompt,
	protocol.TypePromptAmend:            protocol.CapPrompt,
	protocol.TypeContextAdd:             protocol.CapAddContext,
	protocol.TypeContextUpdate:          protocol.CapAddContext,
	protocol.TypeContextRemove:          protocol.CapAddContext,
	protocol.TypeGateApprove:            protocol.CapApprove,
	protocol.TypeGateReject:             protocol.CapApprove,
	protocol.TypeInterruptRaise:         protocol.CapInterrupt,
	protocol.TypeForkCreate:             protocol.CapFork,
	protocol.TypeForkSwitch:             protocol.CapFork,
	protocol.TypeParticipantRoleChange:  protocol.CapManageParticipants,
	protocol.TypeSessionEnd:             protocol.CapEndSession,
	protocol.TypeSessionConfigUpdate:    protocol.CapManageParticipants,
}

// authorized reports whether p carries cap: directly, via role admin, or
// (for the approve capability specifically) via role approver.
func authorized(p *participant.Participant, cap protocol.Capability) bool {
	if p == nil {
		return false
	}
	for _, role := range p.Info.Roles {
		if role == protocol.RoleAdmin {
			return true
		}
		if cap == protocol.CapApprove && role == protocol.RoleApprover {
			return true
		}
	}
	for _, c := range p.Info.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// checkAuthorized enforces requiredCapability for env.Type, if any.
// Broker-originated envelopes (shutdown broadcasts, the reaper's
// session.end, synthesized leaves) carry the reserved system sender and
// bypass participant authorization.
func (r *Router) checkAuthorized(sess *session.Session, env protocol.Envelope) *routeError {
	if env.Sender == protocol.SystemSender {
		return nil
	}
	cap, needs := requiredCapability[env.Type]
	if !needs {
		return nil
	}
	p, ok := sess.Participants.Get(env.Sender)
	if !ok || !authorized(p, cap) {
		return &routeError{
			code:        protocol.ErrUnauthorized,
			message:     fmt.Sprintf("%s requires capability %q", env.Type, cap),
			recoverable: true,
		}
	}
	return nil
}

// filterOne builds a BroadcastFilter matching exactly one participant.
func filterOne(participantID string) transport.BroadcastFilter {
	return func(id string) bool { return id == participantID }
}

// route computes the outbound envelopes (and deferred side effects) for
// one already-session-resolved, already-rate-limit-checked envelope.
// Callers must hold sess's lock for the duration of this call and release
// it before acting on the returned after funcs.
func (r *Router) route(ctx context.Context, sess *session.Session, env protocol.Envelope) ([]outbound, []func(), *routeError) {
	if rerr := r.checkAuthorized(sess, env); rerr != nil {
		return nil, nil, rerr
	}
	// Referential integrity: a ref that names
	// this session's log must resolve to a prior entry.
	if env.Ref != "" {
		if _, ok := sess.GetByID(env.Ref); !ok {
			return nil, nil, rerr(protocol.ErrInvalidState, "ref %q does not resolve to a prior message", env.Ref)
		}
	}

	switch env.Type {
	case protocol.TypeSessionJoin:
		return r.handleSessionJoin(sess, env)
	case protocol.TypeSessionLeave:
		return r.handleSessionLeave(sess, env)
	case protocol.TypeSessionEnd:
		return r.handleSessionEnd(sess, env)
	case protocol.TypeSessionConfigUpdate:
		return r.handleSessionConfigUpdate(sess, env)
	case protocol.TypeParticipantRoleChange:
		return r.handleRoleChange(sess, env)

	case protocol.TypeHeartbeatPong:
		sess.Participants.TouchHeartbeat(env.Sender)
		return nil, nil, nil
	case protocol.TypeHeartbeatPing:
		return nil, nil, nil

	case protocol.TypeContextAdd:
		return r.handleContextAdd(sess, env)
	case protocol.TypeContextUpdate:
		return r.handleContextUpdate(sess, env)
	case protocol.TypeContextRemove:
		return r.handleContextRemove(sess, env)

	case protocol.TypeToolPropose:
		return r.handleToolPropose(sess, env)
	case protocol.TypeGateApprove:
		return r.handleGateApprove(sess, env)
	case protocol.TypeGateReject:
		return r.handleGateReject(sess, env)

	case protocol.TypeForkCreate:
		return r.handleForkCreate(sess, env)
	case protocol.TypeForkSwitch:
		return r.handleForkSwitch(sess, env)
	case protocol.TypeMergePropose:
		return r.handleMergePropose(sess, env)
	case protocol.TypeMergeExecute:
		return r.handleMergeExecute(sess, env)

	case protocol.TypeSecretShare:
		return r.handleSecretShare(sess, env)

	case protocol.TypeError:
		return r.handleInboundError(sess, env)

	default:
		// thinking.*, response.*, tool.output, tool.result,
		// participant.announce, presence.update, secret.revoke,
		// interrupt.raise/acknowledge, prompt.draft/submit/amend: relayed
		// verbatim, appended to the log, broadcast to the whole session.
		appended := sess.Append(env)
		return []outbound{{appended, nil}}, nil, nil
	}
}

// startHeartbeat starts (or returns the existing) heartbeat runner for
// sess, ticking at the session's configured interval.
func (r *Router) startHeartbeat(sess *session.Session) {
	interval := time.Duration(sess.Config.HeartbeatIntervalSeconds) * time.Second
	r.heartbeats.GetOrCreate(sess.ID, interval, r.pingFunc(sess.ID), r.sweepFunc(sess.ID))
}
