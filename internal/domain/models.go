package domain

import (
	"encoding/json"
	"time"
)

// Sprint represents one end-to-end multi-phase execution instance.
type Sprint struct {
	SprintID  string       `json:"sprint_id"`
	Goal      string       `json:"goal"`
	Status    SprintStatus `json:"status"`
	Phase     Phase        `json:"phase,omitempty"`
	Attempt   int          `json:"attempt,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// TokenUsage represents token accounting for one agent invocation.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// ToolCall records a tool invocation reported by an agent.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// AgentResponse is the normalized outcome of a single dispatch attempt.
// It is produced exactly once per attempt and never modified afterwards.
type AgentResponse struct {
	AgentName  string     `json:"agent_name"`
	Provider   string     `json:"provider"`
	Model      string     `json:"model"`
	Content    string     `json:"content"`
	Success    bool       `json:"success"`
	Error      string     `json:"error,omitempty"`
	LatencyMs  int64      `json:"latency_ms"`
	TokenUsage TokenUsage `json:"token_usage"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Candidate is a persisted AgentResponse scoped to a sprint.
type Candidate struct {
	CandidateID string     `json:"candidate_id"`
	SprintID    string     `json:"sprint_id"`
	Phase       Phase      `json:"phase"`
	Attempt     int        `json:"attempt"`
	AgentName   string     `json:"agent_name"`
	Provider    string     `json:"provider"`
	Model       string     `json:"model"`
	Content     string     `json:"content"`
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
	LatencyMs   int64      `json:"latency_ms"`
	TokenUsage  TokenUsage `json:"token_usage"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Decision is the judge verdict for a sprint; at most one per sprint.
type Decision struct {
	SprintID    string    `json:"sprint_id"`
	CandidateID string    `json:"candidate_id"`
	Score       float64   `json:"score"`
	Rationale   string    `json:"rationale"`
	JudgeModel  string    `json:"judge_model"`
	Fallback    bool      `json:"fallback,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Checkpoint is an immutable snapshot of workflow state. Checkpoints form a
// tree via ParentID; restoring forks a new checkpoint instead of mutating
// history.
type Checkpoint struct {
	CheckpointID string            `json:"checkpoint_id"`
	ParentID     string            `json:"parent_id,omitempty"`
	SprintID     string            `json:"sprint_id"`
	Phase        Phase             `json:"phase"`
	Status       CheckpointStatus  `json:"status"`
	AgentData    json.RawMessage   `json:"agent_data,omitempty"`
	Context      json.RawMessage   `json:"context,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TimelineEvent is one entry of the per-sprint ordered event log.
type TimelineEvent struct {
	EventID      string          `json:"event_id"`
	SprintID     string          `json:"sprint_id"`
	Sequence     int64           `json:"sequence"`
	Type         EventType       `json:"type"`
	Phase        Phase           `json:"phase,omitempty"`
	CheckpointID string          `json:"checkpoint_id,omitempty"`
	DurationMs   int64           `json:"duration_ms,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Ts           time.Time       `json:"ts"`
}

// PhaseRecord captures one phase attempt (e.g. coding attempt 2).
type PhaseRecord struct {
	SprintID     string      `json:"sprint_id"`
	Phase        Phase       `json:"phase"`
	Attempt      int         `json:"attempt"`
	Status       PhaseStatus `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	EndedAt      *time.Time  `json:"ended_at,omitempty"`
	DurationMs   int64       `json:"duration_ms"`
	CandidateIDs []string    `json:"candidate_ids,omitempty"`
	DecisionID   string      `json:"decision_id,omitempty"`
}

// TelemetryEvent is a transient execution event fanned out to telemetry
// backends; durability is backend-specific.
type TelemetryEvent struct {
	Type       TelemetryEventType `json:"type"`
	SprintID   string             `json:"sprint_id,omitempty"`
	AgentName  string             `json:"agent_name,omitempty"`
	Phase      Phase              `json:"phase,omitempty"`
	Success    bool               `json:"success"`
	LatencyMs  int64              `json:"latency_ms,omitempty"`
	TokenUsage TokenUsage         `json:"token_usage"`
	Error      string             `json:"error,omitempty"`
	Ts         time.Time          `json:"ts"`
}
