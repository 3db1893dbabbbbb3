// Package checkpoint implements the append-only, forkable checkpoint log.
// Checkpoints live in an in-memory arena with per-sprint index lists; the
// repository is the durable tier and the fallback for lookups that miss
// memory. Restoring never mutates history: it forks a new ACTIVE
// checkpoint under the restored one.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// Repository is the persistence surface the store needs.
type Repository interface {
	SaveCheckpoint(ctx context.Context, checkpoint *domain.Checkpoint) error
	GetCheckpoint(ctx context.Context, checkpointID string) (*domain.Checkpoint, error)
	UpdateCheckpointStatus(ctx context.Context, checkpointID string, status domain.CheckpointStatus, errMsg string) error
	DeleteCheckpoint(ctx context.Context, checkpointID string) error
	ListCheckpoints(ctx context.Context, sprintID string) ([]domain.Checkpoint, error)
}

const defaultMaxCheckpoints = 50

// Store holds checkpoints in an append-only arena. Slots of evicted
// checkpoints are zeroed; indices are never reused within a process.
type Store struct {
	mu       sync.Mutex
	arena    []domain.Checkpoint
	byID     map[string]int
	bySprint map[string][]int
	max      int
	repo     Repository
}

// NewStore creates a checkpoint store retaining at most maxCheckpoints
// per sprint. repo may be nil for a purely in-memory store.
func NewStore(maxCheckpoints int, repo Repository) *Store {
	if maxCheckpoints <= 0 {
		maxCheckpoints = defaultMaxCheckpoints
	}
	return &Store{
		byID:     make(map[string]int),
		bySprint: make(map[string][]int),
		max:      maxCheckpoints,
		repo:     repo,
	}
}

// Create appends a new ACTIVE checkpoint. When parentID is empty the
// checkpoint chains to the sprint's most recent one. Retention is
// enforced after insert by evicting the sprint's oldest checkpoints.
func (s *Store) Create(ctx context.Context, sprintID string, phase domain.Phase, agentData, contextData json.RawMessage, parentID string) (domain.Checkpoint, error) {
	if sprintID == "" {
		return domain.Checkpoint{}, fmt.Errorf("sprint id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if parentID == "" {
		if indices := s.bySprint[sprintID]; len(indices) > 0 {
			parentID = s.arena[indices[len(indices)-1]].CheckpointID
		}
	}

	ckpt := domain.Checkpoint{
		CheckpointID: "ckpt_" + uuid.New().String()[:8],
		ParentID:     parentID,
		SprintID:     sprintID,
		Phase:        phase,
		Status:       domain.CheckpointStatusActive,
		AgentData:    agentData,
		Context:      contextData,
		CreatedAt:    time.Now(),
	}
	s.insertLocked(ckpt)
	s.persist(ctx, ckpt)
	s.evictLocked(ctx, sprintID)
	return ckpt, nil
}

func (s *Store) insertLocked(ckpt domain.Checkpoint) {
	idx := len(s.arena)
	s.arena = append(s.arena, ckpt)
	s.byID[ckpt.CheckpointID] = idx
	s.bySprint[ckpt.SprintID] = append(s.bySprint[ckpt.SprintID], idx)
}

// evictLocked removes the oldest checkpoints of a sprint above the
// retention bound and compacts the sprint's index list. The newest
// checkpoint is never evicted.
func (s *Store) evictLocked(ctx context.Context, sprintID string) {
	indices := s.bySprint[sprintID]
	for len(indices) > s.max {
		victim := s.arena[indices[0]]
		s.arena[indices[0]] = domain.Checkpoint{}
		delete(s.byID, victim.CheckpointID)
		indices = indices[1:]
		if s.repo != nil {
			if err := s.repo.DeleteCheckpoint(ctx, victim.CheckpointID); err != nil {
				log.Printf("WARN: failed to delete evicted checkpoint %s: %v", victim.CheckpointID, err)
			}
		}
	}
	s.bySprint[sprintID] = indices
}

// Get returns a checkpoint by id, consulting memory first and the
// repository on a miss. An unknown id yields (nil, nil).
func (s *Store) Get(ctx context.Context, checkpointID string) (*domain.Checkpoint, error) {
	s.mu.Lock()
	if idx, ok := s.byID[checkpointID]; ok {
		ckpt := s.arena[idx]
		s.mu.Unlock()
		return &ckpt, nil
	}
	s.mu.Unlock()

	if s.repo == nil {
		return nil, nil
	}
	ckpt, err := s.repo.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return ckpt, nil
}

// Restore forks a new ACTIVE checkpoint whose parent is checkpointID.
// Every currently ACTIVE checkpoint of that sprint is marked ROLLED_BACK
// first. The referenced checkpoint itself is never modified.
func (s *Store) Restore(ctx context.Context, checkpointID string) (domain.Checkpoint, error) {
	source, err := s.Get(ctx, checkpointID)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	if source == nil {
		return domain.Checkpoint{}, fmt.Errorf("checkpoint %s not found", checkpointID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, idx := range s.bySprint[source.SprintID] {
		if s.arena[idx].Status != domain.CheckpointStatusActive {
			continue
		}
		s.arena[idx].Status = domain.CheckpointStatusRolledBack
		if s.repo != nil {
			if err := s.repo.UpdateCheckpointStatus(ctx, s.arena[idx].CheckpointID, domain.CheckpointStatusRolledBack, ""); err != nil {
				log.Printf("WARN: failed to persist rollback of %s: %v", s.arena[idx].CheckpointID, err)
			}
		}
	}

	forked := domain.Checkpoint{
		CheckpointID: "ckpt_" + uuid.New().String()[:8],
		ParentID:     source.CheckpointID,
		SprintID:     source.SprintID,
		Phase:        source.Phase,
		Status:       domain.CheckpointStatusActive,
		AgentData:    source.AgentData,
		Context:      source.Context,
		Metadata:     map[string]string{"restored_from": source.CheckpointID},
		CreatedAt:    time.Now(),
	}
	s.insertLocked(forked)
	s.persist(ctx, forked)
	s.evictLocked(ctx, source.SprintID)
	return forked, nil
}

// WorkflowHistory returns the retained checkpoints of a sprint ordered
// by created_at, independent of arena insertion or eviction order.
func (s *Store) WorkflowHistory(ctx context.Context, sprintID string) ([]domain.Checkpoint, error) {
	s.mu.Lock()
	indices := s.bySprint[sprintID]
	out := make([]domain.Checkpoint, 0, len(indices))
	for _, idx := range indices {
		out = append(out, s.arena[idx])
	}
	s.mu.Unlock()

	if len(out) == 0 && s.repo != nil {
		persisted, err := s.repo.ListCheckpoints(ctx, sprintID)
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoint history: %w", err)
		}
		out = persisted
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CheckpointID < out[j].CheckpointID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Complete marks a checkpoint COMPLETED.
func (s *Store) Complete(ctx context.Context, checkpointID string) error {
	return s.setStatus(ctx, checkpointID, domain.CheckpointStatusCompleted, "")
}

// Fail marks a checkpoint FAILED with an optional error message.
func (s *Store) Fail(ctx context.Context, checkpointID, errMsg string) error {
	return s.setStatus(ctx, checkpointID, domain.CheckpointStatusFailed, errMsg)
}

func (s *Store) setStatus(ctx context.Context, checkpointID string, status domain.CheckpointStatus, errMsg string) error {
	s.mu.Lock()
	idx, ok := s.byID[checkpointID]
	if ok {
		s.arena[idx].Status = status
		s.arena[idx].Error = errMsg
	}
	s.mu.Unlock()

	if !ok && s.repo == nil {
		return fmt.Errorf("checkpoint %s not found", checkpointID)
	}
	if s.repo != nil {
		if err := s.repo.UpdateCheckpointStatus(ctx, checkpointID, status, errMsg); err != nil {
			return fmt.Errorf("failed to persist checkpoint status: %w", err)
		}
	}
	return nil
}

// Delete removes a checkpoint from memory and the repository.
func (s *Store) Delete(ctx context.Context, checkpointID string) error {
	s.mu.Lock()
	if idx, ok := s.byID[checkpointID]; ok {
		sprintID := s.arena[idx].SprintID
		s.arena[idx] = domain.Checkpoint{}
		delete(s.byID, checkpointID)
		indices := s.bySprint[sprintID]
		for i, v := range indices {
			if v == idx {
				s.bySprint[sprintID] = append(indices[:i], indices[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.DeleteCheckpoint(ctx, checkpointID); err != nil {
			return fmt.Errorf("failed to delete checkpoint: %w", err)
		}
	}
	return nil
}

func (s *Store) persist(ctx context.Context, ckpt domain.Checkpoint) {
	if s.repo == nil {
		return
	}
	// Persistence failure must not block the run; memory stays authoritative.
	if err := s.repo.SaveCheckpoint(ctx, &ckpt); err != nil {
		log.Printf("WARN: failed to persist checkpoint %s: %v", ckpt.CheckpointID, err)
	}
}
