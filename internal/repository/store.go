// Package repository defines the persistence interface and its SQLite
// implementation. The orchestration core is agnostic to the backing
// store and reaches it only through Store.
package repository

import (
	"context"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Sprint operations
	CreateSprint(ctx context.Context, sprint *domain.Sprint) error
	GetSprint(ctx context.Context, sprintID string) (*domain.Sprint, error)
	UpdateSprintPhase(ctx context.Context, sprintID string, status domain.SprintStatus, phase domain.Phase, attempt int) error
	UpdateSprintCompleted(ctx context.Context, sprintID string, status domain.SprintStatus, errMsg string) error

	// Candidate operations
	CreateCandidate(ctx context.Context, candidate *domain.Candidate) error
	ListCandidates(ctx context.Context, sprintID string) ([]domain.Candidate, error)

	// Decision operations (at most one per sprint; create-or-update)
	UpsertDecision(ctx context.Context, decision *domain.Decision) error
	GetDecision(ctx context.Context, sprintID string) (*domain.Decision, error)

	// Checkpoint operations
	SaveCheckpoint(ctx context.Context, checkpoint *domain.Checkpoint) error
	GetCheckpoint(ctx context.Context, checkpointID string) (*domain.Checkpoint, error)
	UpdateCheckpointStatus(ctx context.Context, checkpointID string, status domain.CheckpointStatus, errMsg string) error
	DeleteCheckpoint(ctx context.Context, checkpointID string) error
	ListCheckpoints(ctx context.Context, sprintID string) ([]domain.Checkpoint, error)

	// Timeline operations
	CreateTimelineEvent(ctx context.Context, event *domain.TimelineEvent) error
	ListTimelineEvents(ctx context.Context, sprintID string, afterSeq int64, limit int) ([]domain.TimelineEvent, error)

	// Phase record operations
	CreatePhaseRecord(ctx context.Context, record *domain.PhaseRecord) error
	ListPhaseRecords(ctx context.Context, sprintID string) ([]domain.PhaseRecord, error)

	// Lifecycle
	Close() error
}
