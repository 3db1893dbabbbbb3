package checkpoint

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/repository"
)

func newTestRepo(t *testing.T) repository.Store {
	t.Helper()
	store, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAutoChainsToLatest(t *testing.T) {
	ctx := context.Background()
	s := NewStore(10, nil)

	a, err := s.Create(ctx, "w1", domain.PhaseDiscovery, nil, nil, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if a.ParentID != "" {
		t.Fatalf("first checkpoint should have no parent, got %q", a.ParentID)
	}

	b, err := s.Create(ctx, "w1", domain.PhaseCoding, nil, nil, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if b.ParentID != a.CheckpointID {
		t.Fatalf("expected auto-chain to %s, got %q", a.CheckpointID, b.ParentID)
	}

	history, err := s.WorkflowHistory(ctx, "w1")
	if err != nil {
		t.Fatalf("WorkflowHistory failed: %v", err)
	}
	if len(history) != 2 || history[0].CheckpointID != a.CheckpointID || history[1].CheckpointID != b.CheckpointID {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestRestoreForksWithoutMutatingSource(t *testing.T) {
	ctx := context.Background()
	s := NewStore(10, nil)

	a, _ := s.Create(ctx, "w1", domain.PhaseDiscovery, json.RawMessage(`{"k":1}`), nil, "")
	if err := s.Complete(ctx, a.CheckpointID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	b, _ := s.Create(ctx, "w1", domain.PhaseCoding, nil, nil, "")

	c, err := s.Restore(ctx, a.CheckpointID)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if c.ParentID != a.CheckpointID {
		t.Fatalf("expected fork parent %s, got %q", a.CheckpointID, c.ParentID)
	}
	if c.Status != domain.CheckpointStatusActive {
		t.Fatalf("expected fork ACTIVE, got %s", c.Status)
	}
	if c.Metadata["restored_from"] != a.CheckpointID {
		t.Fatalf("expected restore metadata, got %+v", c.Metadata)
	}

	gotA, _ := s.Get(ctx, a.CheckpointID)
	if gotA.Status != domain.CheckpointStatusCompleted {
		t.Fatalf("restore mutated source checkpoint: %+v", gotA)
	}
	gotB, _ := s.Get(ctx, b.CheckpointID)
	if gotB.Status != domain.CheckpointStatusRolledBack {
		t.Fatalf("expected previously ACTIVE checkpoint rolled back, got %s", gotB.Status)
	}

	history, _ := s.WorkflowHistory(ctx, "w1")
	if len(history) != 3 {
		t.Fatalf("restore should append exactly one checkpoint, history=%d", len(history))
	}
}

func TestRestoreUnknownCheckpoint(t *testing.T) {
	s := NewStore(10, nil)
	if _, err := s.Restore(context.Background(), "ckpt_missing"); err == nil {
		t.Fatal("expected error for unknown checkpoint")
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	s := NewStore(10, nil)
	ckpt, err := s.Get(context.Background(), "ckpt_missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ckpt != nil {
		t.Fatalf("expected nil for unknown checkpoint, got %+v", ckpt)
	}
}

func TestEvictionKeepsNewest(t *testing.T) {
	ctx := context.Background()
	s := NewStore(3, nil)

	var ids []string
	for i := 0; i < 5; i++ {
		ckpt, err := s.Create(ctx, "w1", domain.PhaseCoding, nil, nil, "")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, ckpt.CheckpointID)
	}

	history, _ := s.WorkflowHistory(ctx, "w1")
	if len(history) != 3 {
		t.Fatalf("expected 3 retained checkpoints, got %d", len(history))
	}
	for i, want := range ids[2:] {
		if history[i].CheckpointID != want {
			t.Fatalf("expected newest checkpoints retained, got %+v", history)
		}
	}

	// Evicted ids are gone from memory.
	if ckpt, _ := s.Get(ctx, ids[0]); ckpt != nil {
		t.Fatalf("expected evicted checkpoint to be gone, got %+v", ckpt)
	}
}

func TestEvictionIsPerWorkflow(t *testing.T) {
	ctx := context.Background()
	s := NewStore(2, nil)

	for i := 0; i < 4; i++ {
		s.Create(ctx, "w1", domain.PhaseCoding, nil, nil, "")
	}
	s.Create(ctx, "w2", domain.PhaseCoding, nil, nil, "")

	h1, _ := s.WorkflowHistory(ctx, "w1")
	h2, _ := s.WorkflowHistory(ctx, "w2")
	if len(h1) != 2 || len(h2) != 1 {
		t.Fatalf("unexpected retention: w1=%d w2=%d", len(h1), len(h2))
	}
}

func TestGetFallsBackToRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	warm := NewStore(10, repo)
	a, err := warm.Create(ctx, "w1", domain.PhaseDiscovery, nil, nil, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// A fresh store with an empty arena must find it in the repository.
	cold := NewStore(10, repo)
	got, err := cold.Get(ctx, a.CheckpointID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.CheckpointID != a.CheckpointID {
		t.Fatalf("expected repository fallback, got %+v", got)
	}

	history, err := cold.WorkflowHistory(ctx, "w1")
	if err != nil {
		t.Fatalf("WorkflowHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected persisted history, got %+v", history)
	}
}

func TestCompleteAndFail(t *testing.T) {
	ctx := context.Background()
	s := NewStore(10, nil)

	a, _ := s.Create(ctx, "w1", domain.PhaseCoding, nil, nil, "")
	if err := s.Complete(ctx, a.CheckpointID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	got, _ := s.Get(ctx, a.CheckpointID)
	if got.Status != domain.CheckpointStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}

	b, _ := s.Create(ctx, "w1", domain.PhaseVerification, nil, nil, "")
	if err := s.Fail(ctx, b.CheckpointID, "marker missing"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	got, _ = s.Get(ctx, b.CheckpointID)
	if got.Status != domain.CheckpointStatusFailed || got.Error != "marker missing" {
		t.Fatalf("unexpected failed checkpoint: %+v", got)
	}
}

func TestDeleteRemovesFromHistory(t *testing.T) {
	ctx := context.Background()
	s := NewStore(10, nil)

	a, _ := s.Create(ctx, "w1", domain.PhaseCoding, nil, nil, "")
	b, _ := s.Create(ctx, "w1", domain.PhaseCoding, nil, nil, "")
	if err := s.Delete(ctx, a.CheckpointID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	history, _ := s.WorkflowHistory(ctx, "w1")
	if len(history) != 1 || history[0].CheckpointID != b.CheckpointID {
		t.Fatalf("unexpected history after delete: %+v", history)
	}
}
