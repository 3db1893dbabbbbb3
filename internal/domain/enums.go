// Package domain defines the core domain models for the sprint orchestrator.
package domain

// SprintStatus represents the status of a sprint run.
type SprintStatus string

const (
	SprintStatusCreated   SprintStatus = "CREATED"
	SprintStatusRunning   SprintStatus = "RUNNING"
	SprintStatusCompleted SprintStatus = "COMPLETED"
	SprintStatusFailed    SprintStatus = "FAILED"
)

// Phase represents a named stage of the sprint workflow.
type Phase string

const (
	PhaseDiscovery    Phase = "discovery"
	PhaseCoding       Phase = "coding"
	PhaseVerification Phase = "verification"
)

// PhaseStatus represents the terminal status of a single phase attempt.
// Records are written only once the attempt ends, so there is no running
// state here.
type PhaseStatus string

const (
	PhaseStatusCompleted PhaseStatus = "COMPLETED"
	PhaseStatusFailed    PhaseStatus = "FAILED"
)

// CheckpointStatus represents the status of a checkpoint.
type CheckpointStatus string

const (
	CheckpointStatusActive     CheckpointStatus = "ACTIVE"
	CheckpointStatusCompleted  CheckpointStatus = "COMPLETED"
	CheckpointStatusRolledBack CheckpointStatus = "ROLLED_BACK"
	CheckpointStatusFailed     CheckpointStatus = "FAILED"
)

// AgentKind represents the transport kind of a registered agent.
type AgentKind string

const (
	AgentKindSDK  AgentKind = "sdk"
	AgentKindCLI  AgentKind = "cli"
	AgentKindHTTP AgentKind = "http"
)

// EventType represents the type of a timeline/broadcast event.
type EventType string

const (
	EventTypeWorkflowStarted    EventType = "workflow.started"
	EventTypeWorkflowStatus     EventType = "workflow.status"
	EventTypePhaseStarted       EventType = "phase.started"
	EventTypePhaseCompleted     EventType = "phase.completed"
	EventTypePhaseFailed        EventType = "phase.failed"
	EventTypeCandidateStarted   EventType = "candidate.started"
	EventTypeCandidateGenerated EventType = "candidate.generated"
	EventTypeJudgeStarted       EventType = "judge.started"
	EventTypeJudgeDecided       EventType = "judge.decided"
	EventTypeCheckpointCreated  EventType = "checkpoint.created"
	EventTypeCheckpointRestored EventType = "checkpoint.restored"
)

// TelemetryEventType classifies telemetry events for backend queries.
type TelemetryEventType string

const (
	TelemetryAgentDispatch   TelemetryEventType = "agent_dispatch"
	TelemetryJudgeDecision   TelemetryEventType = "judge_decision"
	TelemetryPhaseTransition TelemetryEventType = "phase_transition"
	TelemetryWorkflowDone    TelemetryEventType = "workflow_done"
)
