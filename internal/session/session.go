// Package session implements the session registry and append-only event
// log, the gate table (consulted by internal/gate), the
// fork table, and the single logical per-session mutex that the router
// serializes all state mutation through.
package session

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/convoke/internal/ctxstore"
	"github.com/nextlevelbuilder/convoke/internal/gate"
	"github.com/nextlevelbuilder/convoke/internal/id"
	"github.com/nextlevelbuilder/convoke/internal/participant"
	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// Session owns a participant table, an append-only event log, a context
// table (see internal/ctxstore), a pending-gate table (see internal/gate)
// and a fork table. All mutation happens under mu, the session's single
// logical lock. There are no ownership cycles: gates refer
// to proposals by id, resolved via the log, never by pointer back into
// the session.
type Session struct {
	mu sync.Mutex

	ID        string
	Name      string
	Config    protocol.SessionConfig
	CreatedAt time.Time

	Participants *participant.Table
	Context      *ctxstore.Store
	Gates        *gate.Table

	seq int64
	log []protocol.Envelope
	// byID indexes the log for ref/related_to lookups.
	byID map[string]int

	forks       map[string]Fork
	currentFork string

	// lastActivityAt drives the maintenance reaper's grace-window
	// termination: updated on every
	// Append, read by the reaper through LastActivityAt.
	lastActivityAt time.Time
}

// Fork is a named branch of the session's event stream.
// A merged fork records the branch it was folded into and stops being a
// valid target for fork.switch.
type Fork struct {
	ID         string
	ParentID   string
	Name       string
	MergedInto string
}

// New constructs a session. Sessions are otherwise created lazily by the
// Registry on first session.create or session.join.
func New(sessionID, name string, cfg protocol.SessionConfig) *Session {
	root := Fork{ID: "root"}
	now := time.Now().UTC()
	return &Session{
		ID:             sessionID,
		Name:           name,
		Config:         cfg,
		CreatedAt:      now,
		Participants:   participant.NewTable(),
		Context:        ctxstore.New(),
		Gates:          gate.NewTable(),
		byID:           make(map[string]int),
		forks:          map[string]Fork{root.ID: root},
		currentFork:    root.ID,
		lastActivityAt: now,
	}
}

// Lock/Unlock expose the session's single logical mutex to the router,
// which computes outbound envelopes while holding it and releases it
// before fanning out.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Append records env in order. In total ordering mode it assigns
// seq = counter++ before append. Callers must hold the
// session lock. The log is append-only; no mutation of past events.
func (s *Session) Append(env protocol.Envelope) protocol.Envelope {
	if s.Config.OrderingMode == protocol.OrderingTotal {
		s.seq++
		env.Seq = s.seq
	}
	s.log = append(s.log, env)
	s.byID[env.ID] = len(s.log) - 1
	s.lastActivityAt = time.Now().UTC()
	return env
}

// LastActivityAt reports when the session last appended an event. It takes
// the session lock itself, so callers must not already hold it.
func (s *Session) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// GetByID looks up a prior log entry by message id, for ref resolution.
func (s *Session) GetByID(msgID string) (protocol.Envelope, bool) {
	idx, ok := s.byID[msgID]
	if !ok {
		return protocol.Envelope{}, false
	}
	return s.log[idx], true
}

// Log returns a snapshot of the event log. Safe to call while holding or
// not holding the lock; callers needing a consistent view must hold it.
func (s *Session) Log() []protocol.Envelope {
	out := make([]protocol.Envelope, len(s.log))
	copy(out, s.log)
	return out
}

// NextSeq previews the sequence number Append would assign next
// (total mode only); used by tests asserting monotonicity.
func (s *Session) NextSeq() int64 { return s.seq + 1 }

// CreateFork adds a fork branching from parentID.
func (s *Session) CreateFork(name, parentID string) Fork {
	f := Fork{ID: id.NewForkID(), ParentID: parentID, Name: name}
	s.forks[f.ID] = f
	return f
}

// SwitchFork moves the current-fork pointer. A merged fork is no longer
// a valid target.
func (s *Session) SwitchFork(forkID string) bool {
	f, ok := s.forks[forkID]
	if !ok || f.MergedInto != "" {
		return false
	}
	s.currentFork = forkID
	return true
}

// CurrentFork returns the active fork id.
func (s *Session) CurrentFork() string { return s.currentFork }

// GetFork returns the fork table entry for forkID.
func (s *Session) GetFork(forkID string) (Fork, bool) {
	f, ok := s.forks[forkID]
	return f, ok
}

// MergeFork folds fromID into intoID on merge.execute: the source fork
// is marked merged and the current-fork pointer, if it was on the
// source, follows the merge. Both forks must exist, be distinct, and
// the source must not already be merged.
func (s *Session) MergeFork(fromID, intoID string) bool {
	from, ok := s.forks[fromID]
	if !ok || from.MergedInto != "" || fromID == intoID {
		return false
	}
	into, ok := s.forks[intoID]
	if !ok || into.MergedInto != "" {
		return false
	}
	from.MergedInto = intoID
	s.forks[fromID] = from
	if s.currentFork == fromID {
		s.currentFork = intoID
	}
	return true
}

// Registry is the in-memory map of session id -> *Session, guarded by
// its own mutex, distinct from each session's internal lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get returns the session for id, if present.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Create registers a brand new session, failing if one already exists
// with that id.
func (r *Registry) Create(sessionID, name string, cfg protocol.SessionConfig) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[sessionID]; exists {
		return nil, false
	}
	s := New(sessionID, name, cfg)
	r.sessions[sessionID] = s
	return s, true
}

// GetOrAutoCreate returns the session for id, auto-creating it with
// default config if unknown.
func (r *Registry) GetOrAutoCreate(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return s, false
	}
	s := New(sessionID, "", protocol.DefaultSessionConfig())
	r.sessions[sessionID] = s
	return s, true
}

// Remove deletes a session from the registry (session.end, or the
// maintenance reaper's grace-window termination).
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// All returns a snapshot of every live session, for shutdown broadcast
// and the maintenance reaper.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
