// Package broker is the convoke entrypoint: it wires the transport
// acceptor, the message router, the heartbeat scheduler, and the rate
// limiter into one running process, and owns the HTTP listener that
// exposes the websocket upgrade endpoint, the bridge reverse proxy, and a
// health check.
package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/convoke/internal/bridge"
	"github.com/nextlevelbuilder/convoke/internal/config"
	"github.com/nextlevelbuilder/convoke/internal/gate"
	"github.com/nextlevelbuilder/convoke/internal/maintenance"
	"github.com/nextlevelbuilder/convoke/internal/participant"
	"github.com/nextlevelbuilder/convoke/internal/ratelimit"
	"github.com/nextlevelbuilder/convoke/internal/router"
	"github.com/nextlevelbuilder/convoke/internal/session"
	"github.com/nextlevelbuilder/convoke/internal/store"
	"github.com/nextlevelbuilder/convoke/internal/tracing"
	"github.com/nextlevelbuilder/convoke/internal/transport"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// Broker owns every long-lived broker-side component.
type Broker struct {
	cfg    *config.Config
	logger *slog.Logger

	Sessions    *session.Registry
	Transport   *transport.WSServer
	Router      *router.Router
	Heartbeats  *participant.Scheduler
	Limiter     *ratelimit.Limiter
	Bridge      *bridge.Proxy
	Store       store.Store
	Tracer      *tracing.Provider
	Maintenance *maintenance.Reaper
}

// New constructs a Broker from cfg, wiring every connection's lifecycle
// (first-frame registration, message dispatch, disconnect-as-leave) the
// same way regardless of which participant or transport connects. The
// store backend and OpenTelemetry exporter are constructed here (both can
// fail to connect, hence the error return); a misconfigured store or
// telemetry endpoint fails broker startup rather than degrading
// silently; exit code is the caller's signal of a failed start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Broker, error) {
	sessions := session.NewRegistry()
	wsSrv := transport.NewWSServer(logger)
	heartbeats := participant.NewScheduler(logger)

	var limiter *ratelimit.Limiter
	if cfg.Gateway.RateLimitRPM > 0 {
		limiter = ratelimit.New(cfg.Gateway.RateLimitRPM, cfg.Gateway.RateLimitRPM)
	}

	st, err := store.Open(cfg.Store.Backend, cfg.Store.PostgresDSN, cfg.SQLitePathExpanded())
	if err != nil {
		return nil, err
	}

	tracer, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	rt := router.New(sessions, wsSrv, heartbeats, limiter, logger, gateTimeoutPolicy(cfg.GateTimeoutPolicy))
	rt.SetTracer(tracer)
	rt.SetStore(st)

	b := &Broker{
		cfg:        cfg,
		logger:     logger,
		Sessions:   sessions,
		Transport:  wsSrv,
		Router:     rt,
		Heartbeats: heartbeats,
		Limiter:    limiter,
		Bridge:     bridge.New(cfg.Bridge.Host, cfg.Bridge.Port, logger),
		Store:      st,
		Tracer:     tracer,
	}
	b.Maintenance = maintenance.New(cfg.Maintenance.ReapSchedule, cfg.Maintenance.GraceWindowSeconds, b, logger)

	wsSrv.OnConnection(b.onConnection)
	return b, nil
}

// IdleSessions implements maintenance.Terminator: a session is idle once
// it has no connected participants and its last log activity predates
// now by more than graceWindow.
func (b *Broker) IdleSessions(now time.Time, graceWindow time.Duration) []string {
	var out []string
	for _, sess := range b.Sessions.All() {
		sess.Lock()
		empty := len(sess.Participants.All()) == 0
		sess.Unlock()
		if empty && now.Sub(sess.LastActivityAt()) > graceWindow {
			out = append(out, sess.ID)
		}
	}
	return out
}

// Terminate ends sessionID the same way an explicit session.end event
// would: broadcast session.end, then drop it from the registry.
func (b *Broker) Terminate(ctx context.Context, sessionID string) {
	endEnv, err := protocol.New(protocol.TypeSessionEnd, sessionID, protocol.SystemSender,
		protocol.SessionEndPayload{Reason: "grace window elapsed with no participants"})
	if err == nil {
		b.Router.Dispatch(ctx, endEnv)
	}
	b.Sessions.Remove(sessionID)
}

func gateTimeoutPolicy(s string) gate.TimeoutPolicy {
	switch s {
	case string(gate.PolicyApproveOnTimeout):
		return gate.PolicyApproveOnTimeout
	case string(gate.PolicyEscalateOnTimeout):
		return gate.PolicyEscalateOnTimeout
	default:
		return gate.PolicyRejectOnTimeout
	}
}

// onConnection is the per-connection protocol wiring shared by every
// participant, human or agent: the first envelope's sender establishes
// the participant id the connection is registered under, every
// subsequent envelope goes straight to the router, and a disconnect
// synthesizes session.leave in every session the connection's
// participant was still a member of.
func (b *Broker) onConnection(conn transport.Transport) {
	var participantID string

	conn.OnMessage(func(env protocol.Envelope) {
		if participantID == "" && env.Sender != "" && env.Sender != protocol.SystemSender {
			participantID = env.Sender
			b.Transport.Register(participantID, conn)
		}
		b.Router.Dispatch(context.Background(), env)
	})

	conn.OnClose(func(closedID string) {
		id := closedID
		if id == "" {
			id = participantID
		}
		if id == "" {
			return
		}
		b.Transport.Unregister(id)
		for _, sess := range b.Sessions.All() {
			sess.Lock()
			_, member := sess.Participants.Get(id)
			sessionID := sess.ID
			sess.Unlock()
			if !member {
				continue
			}
			leaveEnv, err := protocol.New(protocol.TypeSessionLeave, sessionID, id, protocol.SessionLeavePayload{Reason: "disconnected"})
			if err != nil {
				continue
			}
			b.Router.Dispatch(context.Background(), leaveEnv)
		}
	})
}

// Shutdown broadcasts session.end to every live session and stops every
// heartbeat runner before the caller tears down the HTTP listener.
func (b *Broker) Shutdown(ctx context.Context) {
	if b.Maintenance != nil {
		b.Maintenance.Stop()
	}
	for _, sess := range b.Sessions.All() {
		endEnv, err := protocol.New(protocol.TypeSessionEnd, sess.ID, protocol.SystemSender, protocol.SessionEndPayload{Reason: "server shutdown", FinalState: "aborted"})
		if err != nil {
			continue
		}
		b.Router.Dispatch(ctx, endEnv)
	}
	b.Heartbeats.StopAll()
	_ = b.Transport.Close()
	if b.Store != nil {
		_ = b.Store.Close()
	}
	if b.Tracer != nil {
		_ = b.Tracer.Shutdown(ctx)
	}
}

// StartMaintenance begins the reaper's background polling loop (Broker.New
// only constructs it; the caller — cmd's broker subcommand — starts it
// just before it starts serving HTTP).
func (b *Broker) StartMaintenance(ctx context.Context) {
	b.Maintenance.Start(ctx)
}
