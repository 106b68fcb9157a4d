package protocol

// Presence is a participant's liveness state, driven by the heartbeat
// scheduler, never set directly by a client.
type Presence string

const (
	PresenceActive       Presence = "active"
	PresenceIdle         Presence = "idle"
	PresenceAway         Presence = "away"
	PresenceDisconnected Presence = "disconnected"
)

// ParticipantType distinguishes a human operator from an autonomous agent.
type ParticipantType string

const (
	ParticipantHuman ParticipantType = "human"
	ParticipantAgent ParticipantType = "agent"
)

// Role is a capability-bearing tag a participant can carry.
type Role string

const (
	RoleDriver    Role = "driver"
	RoleNavigator Role = "navigator"
	RoleAdversary Role = "adversary"
	RoleObserver  Role = "observer"
	RoleApprover  Role = "approver"
	RoleAdmin     Role = "admin"
)

// Capability is a fine-grained permission independent of role.
type Capability string

const (
	CapPrompt             Capability = "prompt"
	CapApprove            Capability = "approve"
	CapInterrupt          Capability = "interrupt"
	CapFork               Capability = "fork"
	CapAddContext         Capability = "add_context"
	CapManageParticipants Capability = "manage_participants"
	CapEndSession         Capability = "end_session"
)

// ParticipantInfo describes a participant identity as carried on the wire.
type ParticipantInfo struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         ParticipantType   `json:"type"`
	Roles        []Role            `json:"roles,omitempty"`
	Capabilities []Capability      `json:"capabilities,omitempty"`
	Transport    string            `json:"transport,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// SessionJoinPayload is carried by session.join.
type SessionJoinPayload struct {
	Participant       ParticipantInfo `json:"participant"`
	SupportedVersions []int           `json:"supported_versions"`
}

// SessionCreatePayload is carried by session.create.
type SessionCreatePayload struct {
	Name   string        `json:"name,omitempty"`
	Config SessionConfig `json:"config"`
}

// SessionConfigUpdatePayload is carried by session.config_update: a full
// replacement of the session's configuration, not a partial patch.
type SessionConfigUpdatePayload struct {
	Config SessionConfig `json:"config"`
}

// SessionLeavePayload is carried by session.leave, including synthetic
// disconnect-originated leaves.
type SessionLeavePayload struct {
	Reason string `json:"reason,omitempty"`
}

// SessionEndPayload is carried by session.end, including the broker's own
// shutdown-time broadcast.
type SessionEndPayload struct {
	Reason     string `json:"reason,omitempty"`
	FinalState string `json:"final_state,omitempty"`
}

// OrderingMode selects causal-ordering vs total-ordering delivery.
type OrderingMode string

const (
	OrderingCausal OrderingMode = "causal"
	OrderingTotal  OrderingMode = "total"
)

// ParticipantTimeoutPolicy governs what the session does while waiting on
// a participant that has gone quiet.
type ParticipantTimeoutPolicy string

const (
	TimeoutWait         ParticipantTimeoutPolicy = "wait"
	TimeoutSkip         ParticipantTimeoutPolicy = "skip"
	TimeoutPauseSession ParticipantTimeoutPolicy = "pause_session"
)

// SessionConfig is the recognized per-session configuration.
type SessionConfig struct {
	RequireApprovalFor       []ToolCategory           `json:"require_approval_for"`
	DefaultGateQuorum        Quorum                   `json:"default_gate_quorum"`
	AllowForks               bool                     `json:"allow_forks"`
	MaxParticipants          int                      `json:"max_participants"`
	OrderingMode             OrderingMode             `json:"ordering_mode"`
	OnParticipantTimeout     ParticipantTimeoutPolicy `json:"on_participant_timeout"`
	HeartbeatIntervalSeconds int                      `json:"heartbeat_interval_seconds"`
	IdleTimeoutSeconds       int                      `json:"idle_timeout_seconds"`
	AwayTimeoutSeconds       int                      `json:"away_timeout_seconds"`
	GraceWindowSeconds       int                      `json:"grace_window_seconds"`
}

// DefaultSessionConfig is the demo default: default_gate_quorum = any{1}
// with an empty require_approval_for, which in practice auto-approves
// everything. Deployments that want stricter gating override it.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		RequireApprovalFor:       nil,
		DefaultGateQuorum:        Quorum{Type: QuorumAny, Count: 1},
		AllowForks:               true,
		MaxParticipants:          32,
		OrderingMode:             OrderingCausal,
		OnParticipantTimeout:     TimeoutWait,
		HeartbeatIntervalSeconds: 15,
		IdleTimeoutSeconds:       60,
		AwayTimeoutSeconds:       300,
		GraceWindowSeconds:       120,
	}
}

// ContextContentType is the closed set of context item content kinds.
type ContextContentType string

const (
	ContentText            ContextContentType = "text"
	ContentFile            ContextContentType = "file"
	ContentReference       ContextContentType = "reference"
	ContentStructured      ContextContentType = "structured"
	ContentImage           ContextContentType = "image"
	ContentAudioTranscript ContextContentType = "audio_transcript"
)

// ContextRef records a content-addressed reference to out-of-band content.
type ContextRef struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
	MIME string `json:"mime,omitempty"`
}

// ContextItem is a named piece of shared session state.
type ContextItem struct {
	Key         string             `json:"key"`
	ContentType ContextContentType `json:"content_type"`
	Content     string             `json:"content,omitempty"`
	ContentRef  *ContextRef        `json:"content_ref,omitempty"`
	VisibleTo   []string           `json:"visible_to,omitempty"`
	AddedBy     string             `json:"added_by"`
	AddedAt     int64              `json:"added_at"`
	UpdatedAt   int64              `json:"updated_at"`
}

// ContextPatch describes a partial update to a context item.
type ContextPatch struct {
	Content   *string  `json:"content,omitempty"`
	VisibleTo []string `json:"visible_to,omitempty"`
}

// QuorumType is the closed set of quorum rule variants.
type QuorumType string

const (
	QuorumAny      QuorumType = "any"
	QuorumAll      QuorumType = "all"
	QuorumRole     QuorumType = "role"
	QuorumSpecific QuorumType = "specific"
	QuorumMajority QuorumType = "majority"
)

// Quorum is the rule deciding when a gate is approved.
type Quorum struct {
	Type         QuorumType `json:"type"`
	Count        int        `json:"count,omitempty"`
	Role         Role       `json:"role,omitempty"`
	Participants []string   `json:"participants,omitempty"`
}

// ToolCategory is the closed set of tool-proposal categories.
type ToolCategory string

const (
	CategoryFileRead       ToolCategory = "file_read"
	CategoryFileWrite      ToolCategory = "file_write"
	CategoryFileDelete     ToolCategory = "file_delete"
	CategoryShellExecute   ToolCategory = "shell_execute"
	CategoryNetworkRequest ToolCategory = "network_request"
	CategoryDeploy         ToolCategory = "deploy"
	CategoryDatabase       ToolCategory = "database"
	CategorySecretAccess   ToolCategory = "secret_access"
	CategoryExternalAPI    ToolCategory = "external_api"
	CategoryAll            ToolCategory = "all"
)

// RiskLevel is the closed set of risk gradations a classifier assigns.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ToolProposePayload is carried by tool.propose.
type ToolProposePayload struct {
	ProposalID         string         `json:"proposal_id"`
	ToolName           string         `json:"tool_name"`
	Arguments          map[string]any `json:"arguments"`
	ProposingAgent     string         `json:"proposing_agent"`
	Category           ToolCategory   `json:"category"`
	RiskLevel          RiskLevel      `json:"risk_level"`
	RequiresApproval   bool           `json:"requires_approval"`
	Description        string         `json:"description,omitempty"`
	SuggestedApprovers []string       `json:"suggested_approvers,omitempty"`
}

// GateRequestPayload is carried by gate.request.
type GateRequestPayload struct {
	ActionType     ToolCategory `json:"action_type"`
	ActionRef      string       `json:"action_ref"`
	Quorum         Quorum       `json:"quorum"`
	TimeoutSeconds int          `json:"timeout_seconds"`
	Message        string       `json:"message,omitempty"`
}

// GateApprovePayload/GateRejectPayload are carried by gate.approve/gate.reject.
type GateApprovePayload struct {
	ProposalID string `json:"proposal_id"`
}

type GateRejectPayload struct {
	ProposalID string `json:"proposal_id"`
	Reason     string `json:"reason,omitempty"`
}

// GateTimeoutResolution is the closed set of ways an expired gate may resolve.
type GateTimeoutResolution string

const (
	ResolutionRejected     GateTimeoutResolution = "rejected"
	ResolutionAutoApproved GateTimeoutResolution = "auto_approved"
	ResolutionEscalated    GateTimeoutResolution = "escalated"
)

// GateTimeoutPayload is carried by gate.timeout.
type GateTimeoutPayload struct {
	ProposalID string                `json:"proposal_id"`
	Resolution GateTimeoutResolution `json:"resolution"`
}

// ToolExecutePayload is carried by tool.execute.
type ToolExecutePayload struct {
	ProposalID string `json:"proposal_id"`
}

// ToolOutputPayload streams subprocess/tool output chunks.
type ToolOutputPayload struct {
	ProposalID string `json:"proposal_id"`
	Stream     string `json:"stream"` // "stdout" | "stderr"
	Chunk      string `json:"chunk"`
}

// ToolResultPayload is carried by tool.result.
type ToolResultPayload struct {
	ProposalID string `json:"proposal_id"`
	ToolUseID  string `json:"tool_use_id"`
	Success    bool   `json:"success"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PromptSubmitPayload is carried by prompt.submit.
type PromptSubmitPayload struct {
	Target  string `json:"target"`
	Content string `json:"content"`
}

// PromptDraftPayload is carried by prompt.draft: a not-yet-submitted
// prompt other participants can see being composed.
type PromptDraftPayload struct {
	Target  string `json:"target,omitempty"`
	Content string `json:"content"`
}

// PromptAmendPayload is carried by prompt.amend; the envelope's ref names
// the prompt.submit being amended.
type PromptAmendPayload struct {
	Content string `json:"content"`
}

// SecretSharePayload is carried by secret.share: a named secret exposed
// to an explicit participant allowlist (never to the whole session).
type SecretSharePayload struct {
	Key        string   `json:"key"`
	Value      string   `json:"value,omitempty"`
	SharedWith []string `json:"shared_with"`
}

// SecretRevokePayload is carried by secret.revoke.
type SecretRevokePayload struct {
	Key string `json:"key"`
}

// ThinkingStartPayload / ResponseStartPayload open a model turn's
// thinking/response streams, referencing the prompt being answered.
type ThinkingStartPayload struct {
	PromptRef string `json:"prompt_ref"`
}

type ResponseStartPayload struct {
	PromptRef string `json:"prompt_ref"`
}

// ResponseChunkPayload/ThinkingChunkPayload stream model output.
type ResponseChunkPayload struct {
	PromptRef string `json:"prompt_ref"`
	Text      string `json:"text"`
}

type ThinkingChunkPayload struct {
	PromptRef string `json:"prompt_ref"`
	Text      string `json:"text"`
}

// ResponseEndPayload / ThinkingEndPayload carry a finish reason.
type FinishReason string

const (
	FinishComplete FinishReason = "complete"
	FinishToolUse  FinishReason = "tool_use"
)

type ResponseEndPayload struct {
	PromptRef    string       `json:"prompt_ref"`
	FinishReason FinishReason `json:"finish_reason"`
}

type ThinkingEndPayload struct {
	PromptRef    string       `json:"prompt_ref"`
	FinishReason FinishReason `json:"finish_reason"`
}

// InterruptUrgency is the closed set of interrupt severities.
type InterruptUrgency string

const (
	UrgencyNormal    InterruptUrgency = "normal"
	UrgencyEmergency InterruptUrgency = "emergency"
)

// InterruptRaisePayload is carried by interrupt.raise.
type InterruptRaisePayload struct {
	Target  string           `json:"target"`
	Urgency InterruptUrgency `json:"urgency"`
	Reason  string           `json:"reason,omitempty"`
}

// InterruptAction is the closed set of acknowledgment actions.
type InterruptAction string

const (
	ActionPaused       InterruptAction = "paused"
	ActionStopped      InterruptAction = "stopped"
	ActionAcknowledged InterruptAction = "acknowledged"
	ActionIgnored      InterruptAction = "ignored"
)

// InterruptAcknowledgePayload is carried by interrupt.acknowledge.
type InterruptAcknowledgePayload struct {
	ActionTaken InterruptAction `json:"action_taken"`
}

// PresenceUpdatePayload is carried by presence.update.
type PresenceUpdatePayload struct {
	ParticipantID string   `json:"participant_id"`
	Presence      Presence `json:"presence"`
}

// ParticipantAnnouncePayload is carried by participant.announce.
type ParticipantAnnouncePayload struct {
	Participant ParticipantInfo `json:"participant"`
}

// ParticipantRoleChangePayload is carried by participant.role_change.
type ParticipantRoleChangePayload struct {
	ParticipantID string `json:"participant_id"`
	Roles         []Role `json:"roles"`
}

// ForkCreatePayload / ForkSwitchPayload manage the fork table.
type ForkCreatePayload struct {
	ForkID   string `json:"fork_id"`
	ParentID string `json:"parent_id,omitempty"`
	Name     string `json:"name,omitempty"`
}

type ForkSwitchPayload struct {
	ForkID string `json:"fork_id"`
}

// MergeProposePayload / MergeExecutePayload manage fork merges.
type MergeProposePayload struct {
	FromFork string `json:"from_fork"`
	IntoFork string `json:"into_fork"`
}

type MergeExecutePayload struct {
	FromFork string `json:"from_fork"`
	IntoFork string `json:"into_fork"`
}

// ContextAddPayload / ContextUpdatePayload / ContextRemovePayload mutate
// the context store.
type ContextAddPayload struct {
	Item ContextItem `json:"item"`
}

type ContextUpdatePayload struct {
	Key   string       `json:"key"`
	Patch ContextPatch `json:"patch"`
}

type ContextRemovePayload struct {
	Key string `json:"key"`
}

// ErrorPayload is carried by the `error` envelope type.
type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	RelatedTo   string `json:"related_to,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

// Error code set.
const (
	ErrInvalidMessage      = "INVALID_MESSAGE"
	ErrUnauthorized        = "UNAUTHORIZED"
	ErrSessionNotFound     = "SESSION_NOT_FOUND"
	ErrParticipantNotFound = "PARTICIPANT_NOT_FOUND"
	ErrGateFailed          = "GATE_FAILED"
	ErrTimeout             = "TIMEOUT"
	ErrRateLimited         = "RATE_LIMITED"
	ErrContextTooLarge     = "CONTEXT_TOO_LARGE"
	ErrInvalidState        = "INVALID_STATE"
	ErrTransportError      = "TRANSPORT_ERROR"
	ErrAgentError          = "AGENT_ERROR"
	ErrInternalError       = "INTERNAL_ERROR"
)

// ShellCategory is the closed set of command-classifier categories.
type ShellCategory string

const (
	ShellBlocked     ShellCategory = "blocked"
	ShellDestructive ShellCategory = "destructive"
	ShellWrite       ShellCategory = "write"
	ShellRead        ShellCategory = "read"
)

// ShellCommandRecord is the classifier's verdict for one command.
type ShellCommandRecord struct {
	Command          string        `json:"command"`
	Args             []string      `json:"args,omitempty"`
	Category         ShellCategory `json:"category"`
	RiskLevel        RiskLevel     `json:"risk_level"`
	RequiresApproval bool          `json:"requires_approval"`
	TimeoutSeconds   int           `json:"timeout_seconds,omitempty"`
	MaxBufferBytes   int           `json:"max_buffer_bytes,omitempty"`
	Cwd              string        `json:"cwd,omitempty"`
	Reason           string        `json:"reason,omitempty"`
}
