// Package agent implements the orchestration loop that turns a prompt
// into a model completion, a batch of tool calls, and their resolved
// results — one agent participant at a time, never overlapping. The loop
// is a sequential driver, not a callback/event-handler tree: a single
// goroutine reads every inbound envelope off one channel and processes it
// to completion before the next, so the conversation history and the
// current tool batch never see a concurrent mutation — a
// driven-from-one-place control flow instead of fan-out goroutines,
// since ordering matters here.
package agent

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/convoke/internal/provider"
	"github.com/nextlevelbuilder/convoke/internal/toolbatch"
	"github.com/nextlevelbuilder/convoke/internal/toolhandler"
	"github.com/nextlevelbuilder/convoke/internal/transport"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// inboxSize bounds how many envelopes can queue while a turn is in
// flight; the session's own flow (one prompt answered before the next is
// accepted) keeps this small in practice.
const inboxSize = 64

// Agent drives one agent-type participant's side of a session: it owns
// the conversation history handed to the completion provider and the
// single in-flight tool batch, and it is the only writer of both.
type Agent struct {
	id        string
	sessionID string
	workspace string

	conn     transport.Transport
	provider provider.Provider
	tools    *toolhandler.Registry
	logger   *slog.Logger

	inbox chan protocol.Envelope

	// history and batch are only ever touched from the loop goroutine
	// (including mid-turn, via runToolBatch draining the same inbox), so
	// neither needs its own lock.
	history []provider.Message
	batch   *toolbatch.Batch
	// pending maps a tool-proposal id to the call it was opened for, so a
	// later tool.execute/gate.reject/gate.timeout can be resolved back to
	// the right toolbatch entry and handler invocation.
	pending map[string]pendingCall
}

type pendingCall struct {
	toolUseID string
	toolName  string
	arguments map[string]any
}

// New constructs an Agent. conn is this agent's own transport connection
// to the broker — the same duplex abstraction every participant uses, not
// a privileged back door.
func New(participantID, sessionID, workspace string, conn transport.Transport, prov provider.Provider, tools *toolhandler.Registry, logger *slog.Logger) *Agent {
	return &Agent{
		id:        participantID,
		sessionID: sessionID,
		workspace: workspace,
		conn:      conn,
		provider:  prov,
		tools:     tools,
		logger:    logger,
		inbox:     make(chan protocol.Envelope, inboxSize),
		pending:   make(map[string]pendingCall),
	}
}

// Start registers the envelope handler and launches the loop goroutine.
// Start returns immediately; the loop runs until ctx is canceled.
func (a *Agent) Start(ctx context.Context) {
	a.conn.OnMessage(func(env protocol.Envelope) {
		select {
		case a.inbox <- env:
		case <-ctx.Done():
		}
	})
	go a.loop(ctx)
}

func (a *Agent) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-a.inbox:
			a.handle(ctx, env)
		}
	}
}

// handle is the single dispatch point for every envelope this agent
// receives, whether it arrives between turns or is drained mid-turn by
// runToolBatch.
func (a *Agent) handle(ctx context.Context, env protocol.Envelope) {
	if env.Sender == a.id {
		return
	}
	switch env.Type {
	case protocol.TypePromptSubmit:
		a.onPromptSubmit(ctx, env)
	case protocol.TypeToolExecute:
		a.onToolExecute(ctx, env)
	case protocol.TypeGateReject:
		a.onGateReject(ctx, env)
	case protocol.TypeGateTimeout:
		a.onGateTimeout(ctx, env)
	case protocol.TypeInterruptRaise:
		a.onInterruptRaise(ctx, env)
	}
}

func (a *Agent) send(ctx context.Context, typ protocol.Type, payload any, opts ...protocol.Option) {
	env, err := protocol.New(typ, a.sessionID, a.id, payload, opts...)
	if err != nil {
		a.logger.Error("agent: building envelope", "type", typ, "error", err)
		return
	}
	if err := a.conn.Send(ctx, env); err != nil {
		a.logger.Error("agent: sending envelope", "type", typ, "error", err)
	}
}

func (a *Agent) onPromptSubmit(ctx context.Context, env protocol.Envelope) {
	var payload protocol.PromptSubmitPayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	if payload.Target != "" && payload.Target != a.id {
		return
	}
	a.runTurn(ctx, env.ID, payload.Content)
}
