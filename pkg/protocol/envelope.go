// Package protocol defines the wire format shared by every participant of
// a convoke session: the message envelope, its closed set of types, and
// the payload shapes each type carries.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/convoke/internal/id"
)

// SchemaVersion is the fixed protocol generation this build speaks.
const SchemaVersion = 1

// Type is the discriminator for an envelope's payload. The set is closed;
// unknown values must surface as a protocol error on deserialization.
type Type string

const (
	TypeSessionCreate       Type = "session.create"
	TypeSessionJoin         Type = "session.join"
	TypeSessionLeave        Type = "session.leave"
	TypeSessionEnd          Type = "session.end"
	TypeSessionConfigUpdate Type = "session.config_update"

	TypeParticipantAnnounce   Type = "participant.announce"
	TypeParticipantRoleChange Type = "participant.role_change"

	TypeHeartbeatPing Type = "heartbeat.ping"
	TypeHeartbeatPong Type = "heartbeat.pong"

	TypePresenceUpdate Type = "presence.update"

	TypeContextAdd    Type = "context.add"
	TypeContextUpdate Type = "context.update"
	TypeContextRemove Type = "context.remove"

	TypeSecretShare  Type = "secret.share"
	TypeSecretRevoke Type = "secret.revoke"

	TypePromptDraft  Type = "prompt.draft"
	TypePromptSubmit Type = "prompt.submit"
	TypePromptAmend  Type = "prompt.amend"

	TypeThinkingStart Type = "thinking.start"
	TypeThinkingChunk Type = "thinking.chunk"
	TypeThinkingEnd   Type = "thinking.end"

	TypeResponseStart Type = "response.start"
	TypeResponseChunk Type = "response.chunk"
	TypeResponseEnd   Type = "response.end"

	TypeToolPropose Type = "tool.propose"
	TypeToolApprove Type = "tool.approve"
	TypeToolReject  Type = "tool.reject"
	TypeToolExecute Type = "tool.execute"
	TypeToolOutput  Type = "tool.output"
	TypeToolResult  Type = "tool.result"

	TypeGateRequest Type = "gate.request"
	TypeGateApprove Type = "gate.approve"
	TypeGateReject  Type = "gate.reject"
	TypeGateTimeout Type = "gate.timeout"

	TypeInterruptRaise       Type = "interrupt.raise"
	TypeInterruptAcknowledge Type = "interrupt.acknowledge"

	TypeForkCreate Type = "fork.create"
	TypeForkSwitch Type = "fork.switch"

	TypeMergePropose Type = "merge.propose"
	TypeMergeExecute Type = "merge.execute"

	TypeError Type = "error"
)

// knownTypes is the closed set used to validate incoming type discriminators.
var knownTypes = map[Type]bool{
	TypeSessionCreate: true, TypeSessionJoin: true, TypeSessionLeave: true,
	TypeSessionEnd: true, TypeSessionConfigUpdate: true,
	TypeParticipantAnnounce: true, TypeParticipantRoleChange: true,
	TypeHeartbeatPing: true, TypeHeartbeatPong: true,
	TypePresenceUpdate: true,
	TypeContextAdd:     true, TypeContextUpdate: true, TypeContextRemove: true,
	TypeSecretShare: true, TypeSecretRevoke: true,
	TypePromptDraft: true, TypePromptSubmit: true, TypePromptAmend: true,
	TypeThinkingStart: true, TypeThinkingChunk: true, TypeThinkingEnd: true,
	TypeResponseStart: true, TypeResponseChunk: true, TypeResponseEnd: true,
	TypeToolPropose: true, TypeToolApprove: true, TypeToolReject: true,
	TypeToolExecute: true, TypeToolOutput: true, TypeToolResult: true,
	TypeGateRequest: true, TypeGateApprove: true, TypeGateReject: true, TypeGateTimeout: true,
	TypeInterruptRaise: true, TypeInterruptAcknowledge: true,
	TypeForkCreate: true, TypeForkSwitch: true,
	TypeMergePropose: true, TypeMergeExecute: true,
	TypeError: true,
}

// IsKnownType reports whether t belongs to the closed protocol type set.
func IsKnownType(t Type) bool {
	return knownTypes[t]
}

// SystemSender is the reserved sender identity for broker-originated envelopes.
const SystemSender = "system"

// Envelope is the common record wrapping every protocol event.
type Envelope struct {
	Version    int             `json:"version"`
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Session    string          `json:"session"`
	Sender     string          `json:"sender"`
	Type       Type            `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Ref        string          `json:"ref,omitempty"`
	Seq        int64           `json:"seq,omitempty"`
	CausalRefs []string        `json:"causal_refs,omitempty"`
	Fork       string          `json:"fork,omitempty"`
}

// Option mutates an envelope at construction time.
type Option func(*Envelope)

// WithRef sets the envelope this one responds to.
func WithRef(ref string) Option { return func(e *Envelope) { e.Ref = ref } }

// WithCausalRefs sets the causal predecessors (causal ordering mode).
func WithCausalRefs(refs ...string) Option {
	return func(e *Envelope) { e.CausalRefs = append([]string(nil), refs...) }
}

// WithFork scopes the envelope to a fork branch.
func WithFork(fork string) Option { return func(e *Envelope) { e.Fork = fork } }

// New constructs an envelope with a fresh id and the current timestamp.
// payload is marshaled to JSON; a nil payload produces an empty payload.
func New(typ Type, session, sender string, payload any, opts ...Option) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("protocol: marshal payload for %s: %w", typ, err)
		}
		raw = b
	}
	env := Envelope{
		Version:   SchemaVersion,
		ID:        id.NewMessageID(),
		Timestamp: time.Now().UTC(),
		Session:   session,
		Sender:    sender,
		Type:      typ,
		Payload:   raw,
	}
	for _, opt := range opts {
		opt(&env)
	}
	return env, nil
}

// NewError builds an `error` envelope: never appended to a log,
// always routed back to the offending sender or broadcast when unaddressed.
func NewError(session, relatedTo, code, message string, recoverable bool) (Envelope, error) {
	return New(TypeError, session, SystemSender, ErrorPayload{
		Code:        code,
		Message:     message,
		RelatedTo:   relatedTo,
		Recoverable: recoverable,
	})
}

// Marshal serializes the envelope to a single framed JSON line (no trailing
// newline; transports are responsible for framing).
func Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Unmarshal parses a single frame into an envelope and validates that its
// type belongs to the closed protocol set.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: malformed envelope: %w", err)
	}
	if !IsKnownType(env.Type) {
		return Envelope{}, fmt.Errorf("protocol: unknown message type %q", env.Type)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope's payload into dst.
func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, dst)
}
