package judge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/dispatch"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/registry"
)

func newJudgeDispatcher(t *testing.T, reply registry.SdkFunc) *dispatch.Dispatcher {
	t.Helper()
	reg := registry.New()
	err := reg.Register(registry.AgentDescriptor{
		Name:     "judge",
		Kind:     "sdk",
		Provider: "test",
		Model:    "judge-1",
		Enabled:  true,
		Factory:  func() registry.SdkClient { return reply },
	})
	if err != nil {
		t.Fatalf("failed to register judge: %v", err)
	}
	return dispatch.New(reg, nil, dispatch.Options{DefaultTimeout: time.Second})
}

func sampleCandidates() []domain.Candidate {
	return []domain.Candidate{
		{CandidateID: "cand_aaa", SprintID: "sprint_1", AgentName: "alpha", Provider: "p1", Model: "m1", Content: "solution A", Success: true},
		{CandidateID: "cand_bbb", SprintID: "sprint_1", AgentName: "beta", Provider: "p2", Model: "m2", Content: "solution B", Success: true},
	}
}

func TestSelectValidVerdict(t *testing.T) {
	d := newJudgeDispatcher(t, func(ctx context.Context, prompt string) (string, error) {
		return `{"candidate_id": "cand_bbb", "score": 0.9, "rationale": "cleaner solution"}`, nil
	})
	s := NewSelector(d, "judge", time.Second)

	decision, err := s.Select(context.Background(), "goal", sampleCandidates())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if decision.CandidateID != "cand_bbb" {
		t.Fatalf("expected cand_bbb, got %s", decision.CandidateID)
	}
	if decision.Score != 0.9 || decision.Rationale != "cleaner solution" {
		t.Fatalf("unexpected verdict fields: %+v", decision)
	}
	if decision.Fallback {
		t.Fatal("valid verdict must not be a fallback")
	}
	if decision.JudgeModel != "judge-1" {
		t.Fatalf("expected judge model recorded, got %q", decision.JudgeModel)
	}
}

func TestSelectVerdictWrappedInProse(t *testing.T) {
	d := newJudgeDispatcher(t, func(ctx context.Context, prompt string) (string, error) {
		return "Sure, here is my verdict:\n```json\n{\"candidate_id\": \"cand_aaa\", \"score\": 0.6, \"rationale\": \"ok\"}\n```\n", nil
	})
	s := NewSelector(d, "judge", time.Second)

	decision, err := s.Select(context.Background(), "goal", sampleCandidates())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if decision.CandidateID != "cand_aaa" || decision.Fallback {
		t.Fatalf("expected fenced verdict to parse, got %+v", decision)
	}
}

func TestSelectFallsBackOnInvalidJSON(t *testing.T) {
	d := newJudgeDispatcher(t, func(ctx context.Context, prompt string) (string, error) {
		return "I think the first one is best.", nil
	})
	s := NewSelector(d, "judge", time.Second)

	decision, err := s.Select(context.Background(), "goal", sampleCandidates())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if decision.CandidateID != "cand_aaa" {
		t.Fatalf("fallback must pick the first candidate, got %s", decision.CandidateID)
	}
	if !decision.Fallback {
		t.Fatal("expected fallback flag set")
	}
	if !strings.HasPrefix(decision.Rationale, "fallback to first candidate:") {
		t.Fatalf("unexpected rationale: %q", decision.Rationale)
	}
}

func TestSelectFallsBackOnUnknownCandidate(t *testing.T) {
	d := newJudgeDispatcher(t, func(ctx context.Context, prompt string) (string, error) {
		return `{"candidate_id": "does-not-exist", "score": 1, "rationale": "x"}`, nil
	})
	s := NewSelector(d, "judge", time.Second)

	decision, err := s.Select(context.Background(), "goal", sampleCandidates())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if decision.CandidateID != "cand_aaa" || !decision.Fallback {
		t.Fatalf("expected fallback for unknown candidate, got %+v", decision)
	}
	if !strings.Contains(decision.Rationale, "does-not-exist") {
		t.Fatalf("rationale should name the unknown id: %q", decision.Rationale)
	}
}

func TestSelectFallsBackOnJudgeFailure(t *testing.T) {
	d := newJudgeDispatcher(t, func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("judge backend down")
	})
	s := NewSelector(d, "judge", time.Second)

	decision, err := s.Select(context.Background(), "goal", sampleCandidates())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if decision.CandidateID != "cand_aaa" || !decision.Fallback {
		t.Fatalf("expected fallback when judge fails, got %+v", decision)
	}
}

func TestSelectFallsBackOnMissingJudgeAgent(t *testing.T) {
	d := dispatch.New(registry.New(), nil, dispatch.Options{DefaultTimeout: time.Second})
	s := NewSelector(d, "judge", time.Second)

	decision, err := s.Select(context.Background(), "goal", sampleCandidates())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if decision.CandidateID != "cand_aaa" || !decision.Fallback {
		t.Fatalf("expected fallback for missing judge, got %+v", decision)
	}
}

func TestSelectEmptyCandidates(t *testing.T) {
	d := newJudgeDispatcher(t, func(ctx context.Context, prompt string) (string, error) {
		return "{}", nil
	})
	s := NewSelector(d, "judge", time.Second)

	if _, err := s.Select(context.Background(), "goal", nil); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestJudgePromptContainsCandidates(t *testing.T) {
	var seen string
	d := newJudgeDispatcher(t, func(ctx context.Context, prompt string) (string, error) {
		seen = prompt
		return `{"candidate_id": "cand_aaa", "score": 0.5, "rationale": "r"}`, nil
	})
	s := NewSelector(d, "judge", time.Second)

	if _, err := s.Select(context.Background(), "build a parser", sampleCandidates()); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	for _, want := range []string{"build a parser", "cand_aaa", "cand_bbb", "solution A", "solution B"} {
		if !strings.Contains(seen, want) {
			t.Fatalf("judge prompt missing %q", want)
		}
	}
}
