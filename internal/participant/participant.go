// Package participant implements the participant registry and the
// heartbeat-driven presence state machine: one Runner per session,
// ticking on an interval, driving presence transitions off elapsed time
// since the last heartbeat.
package participant

import (
	"time"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// Participant is a session member's full tracked state.
type Participant struct {
	Info            protocol.ParticipantInfo
	Presence        protocol.Presence
	LastHeartbeatAt time.Time
	LastActiveAt    time.Time
}

// Table is a session's participant table. Mutation happens under the
// owning session's lock; Table itself holds no lock of its own.
type Table struct {
	byID map[string]*Participant
}

// NewTable constructs an empty participant table.
func NewTable() *Table {
	return &Table{byID: make(map[string]*Participant)}
}

// Add registers a participant on session.join.
func (t *Table) Add(info protocol.ParticipantInfo) *Participant {
	now := time.Now().UTC()
	p := &Participant{
		Info:            info,
		Presence:        protocol.PresenceActive,
		LastHeartbeatAt: now,
		LastActiveAt:    now,
	}
	t.byID[info.ID] = p
	return p
}

// Remove deletes a participant on session.leave or disconnect.
func (t *Table) Remove(participantID string) {
	delete(t.byID, participantID)
}

// Get returns a participant by id.
func (t *Table) Get(participantID string) (*Participant, bool) {
	p, ok := t.byID[participantID]
	return p, ok
}

// SetRoles replaces a participant's role set (participant.role_change).
func (t *Table) SetRoles(participantID string, roles []protocol.Role) bool {
	p, ok := t.byID[participantID]
	if !ok {
		return false
	}
	p.Info.Roles = roles
	return true
}

// TouchActive updates lastActiveAt on any received envelope.
func (t *Table) TouchActive(participantID string) {
	if p, ok := t.byID[participantID]; ok {
		p.LastActiveAt = time.Now().UTC()
	}
}

// TouchHeartbeat updates lastHeartbeatAt on heartbeat.pong.
func (t *Table) TouchHeartbeat(participantID string) {
	if p, ok := t.byID[participantID]; ok {
		p.LastHeartbeatAt = time.Now().UTC()
	}
}

// SetPresence transitions a participant's presence, returning the
// previous value and whether it actually changed, so callers only
// broadcast on an actual transition.
func (t *Table) SetPresence(participantID string, presence protocol.Presence) (protocol.Presence, bool) {
	p, ok := t.byID[participantID]
	if !ok {
		return "", false
	}
	prev := p.Presence
	if prev == presence {
		return prev, false
	}
	p.Presence = presence
	return prev, true
}

// All returns a snapshot of every tracked participant.
func (t *Table) All() []*Participant {
	out := make([]*Participant, 0, len(t.byID))
	for _, p := range t.byID {
		out = append(out, p)
	}
	return out
}

// Eligible returns participant ids eligible to approve a gate: roles
// include approver or capabilities include approve.
func (t *Table) Eligible() []string {
	var out []string
	for id, p := range t.byID {
		if hasRole(p.Info.Roles, protocol.RoleApprover) || hasCap(p.Info.Capabilities, protocol.CapApprove) {
			out = append(out, id)
		}
	}
	return out
}

// EligibleWithRole returns participant ids carrying the named role
// (for the `role{role,count}` quorum variant).
func (t *Table) EligibleWithRole(role protocol.Role) []string {
	var out []string
	for id, p := range t.byID {
		if hasRole(p.Info.Roles, role) {
			out = append(out, id)
		}
	}
	return out
}

func hasRole(roles []protocol.Role, want protocol.Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

func hasCap(caps []protocol.Capability, want protocol.Capability) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}

// Snapshot captures (participantID, lastHeartbeatAt, presence) triples
// for the presence scheduler's sweep. Callers must hold the owning
// session's lock while calling this, and must release it before acting
// on the result.
func (t *Table) Snapshot() []struct {
	ID              string
	LastHeartbeatAt time.Time
	Presence        protocol.Presence
} {
	out := make([]struct {
		ID              string
		LastHeartbeatAt time.Time
		Presence        protocol.Presence
	}, 0, len(t.byID))
	for id, p := range t.byID {
		out = append(out, struct {
			ID              string
			LastHeartbeatAt time.Time
			Presence        protocol.Presence
		}{id, p.LastHeartbeatAt, p.Presence})
	}
	return out
}
