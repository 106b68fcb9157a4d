// Package transport provides the duplex framed-JSON connection
// abstraction as two small interfaces, not a class hierarchy: Transport
// for a single connection, Server for the acceptor side.
package transport

import (
	"context"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// Handler reacts to an inbound envelope on a connection.
type Handler func(env protocol.Envelope)

// CloseHandler reacts to a connection closing, with the participant id
// established on the first frame (empty if the connection never sent one).
type CloseHandler func(participantID string)

// Transport is a single duplex connection. Implementations are
// data-bearing records, not inheritance trees.
type Transport interface {
	Send(ctx context.Context, env protocol.Envelope) error
	OnMessage(h Handler)
	OnClose(h CloseHandler)
	Close() error
	IsConnected() bool
}

// BroadcastFilter decides whether a broadcast envelope should reach a
// given participant. Returning false suppresses delivery to that
// participant only; it never aborts delivery to others.
type BroadcastFilter func(participantID string) bool

// Server is the connection acceptor side.
type Server interface {
	// OnConnection is invoked for every newly accepted, not-yet-registered
	// connection.
	OnConnection(h func(conn Transport))
	// Broadcast sends env to every registered connection passing filter
	// (nil filter = everyone). Send failures are logged, not propagated.
	Broadcast(ctx context.Context, env protocol.Envelope, filter BroadcastFilter)
	// Register binds a connection to a participant id, making it a
	// broadcast target.
	Register(participantID string, conn Transport)
	// Unregister removes a participant's connection from the broadcast
	// registry.
	Unregister(participantID string)
	Close() error
}
