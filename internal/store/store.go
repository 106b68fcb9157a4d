// Package store defines the pluggable persistence boundary: EventStore
// and GateStore are the seam a durable backend plugs into. MemoryStore
// is the authoritative runtime default; PostgresStore and SQLiteStore
// are optional adapters for operators who want durability across
// restarts, selected by Config.Store.Backend.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// ErrNotFound is returned by Load/Get lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// EventStore durably mirrors a session's append-only event log
//. The in-memory session log (internal/session.Session)
// remains the authoritative runtime path regardless of backend; a
// configured EventStore is written to after each Append so the log
// survives a restart.
type EventStore interface {
	Append(ctx context.Context, sessionID string, env protocol.Envelope) error
	Load(ctx context.Context, sessionID string) ([]protocol.Envelope, error)
	GetByID(ctx context.Context, sessionID, msgID string) (protocol.Envelope, error)
}

// GateSnapshot is the durable projection of a gate.State (internal/gate
// can't be imported here without a cycle, since internal/gate has no
// store dependency today and should not gain one — the router owns the
// (de)serialization between gate.State and GateSnapshot).
type GateSnapshot struct {
	SessionID  string
	ProposalID string
	StateJSON  []byte // json.Marshal of gate.State
	ExpiresAt  int64  // unix seconds, 0 = no timeout
}

// GateStore durably mirrors a session's pending-gate table.
type GateStore interface {
	Save(ctx context.Context, g GateSnapshot) error
	LoadGate(ctx context.Context, sessionID, proposalID string) (GateSnapshot, error)
	Delete(ctx context.Context, sessionID, proposalID string) error
	ListPending(ctx context.Context, sessionID string) ([]GateSnapshot, error)
}

// Store bundles both interfaces; broker.New takes one Store and passes
// it to the router as the optional durability mirror.
type Store interface {
	EventStore
	GateStore
	Close() error
}

// MemoryStore implements Store over plain Go maps/slices, guarded by its
// own mutex — distinct from, and in addition to, each session's own
// in-process log, which stays authoritative. It is the
// default backend (Config.Store.Backend == "memory").
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]protocol.Envelope          // sessionID -> log
	gates  map[string]map[string]GateSnapshot       // sessionID -> proposalID -> snapshot
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string][]protocol.Envelope),
		gates:  make(map[string]map[string]GateSnapshot),
	}
}

func (m *MemoryStore) Append(_ context.Context, sessionID string, env protocol.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[sessionID] = append(m.events[sessionID], env)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) ([]protocol.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.events[sessionID]
	out := make([]protocol.Envelope, len(log))
	copy(out, log)
	return out, nil
}

func (m *MemoryStore) GetByID(_ context.Context, sessionID, msgID string) (protocol.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, env := range m.events[sessionID] {
		if env.ID == msgID {
			return env, nil
		}
	}
	return protocol.Envelope{}, ErrNotFound
}

func (m *MemoryStore) Save(_ context.Context, g GateSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySession, ok := m.gates[g.SessionID]
	if !ok {
		bySession = make(map[string]GateSnapshot)
		m.gates[g.SessionID] = bySession
	}
	bySession[g.ProposalID] = g
	return nil
}

func (m *MemoryStore) LoadGate(_ context.Context, sessionID, proposalID string) (GateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gates[sessionID][proposalID]
	if !ok {
		return GateSnapshot{}, ErrNotFound
	}
	return g, nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID, proposalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.gates[sessionID], proposalID)
	return nil
}

func (m *MemoryStore) ListPending(_ context.Context, sessionID string) ([]GateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GateSnapshot, 0, len(m.gates[sessionID]))
	for _, g := range m.gates[sessionID] {
		out = append(out, g)
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
