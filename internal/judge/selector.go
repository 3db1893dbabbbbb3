// Package judge submits candidate outputs to a designated judge agent and
// parses its verdict. Selection never fails the run: any unusable judge
// output falls back deterministically to the first candidate.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/dispatch"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// Selector picks one candidate using the configured judge agent.
type Selector struct {
	dispatcher *dispatch.Dispatcher
	judgeName  string
	timeout    time.Duration
}

// NewSelector creates a selector that invokes judgeName through the
// dispatcher's single path.
func NewSelector(dispatcher *dispatch.Dispatcher, judgeName string, timeout time.Duration) *Selector {
	return &Selector{dispatcher: dispatcher, judgeName: judgeName, timeout: timeout}
}

// verdict is the JSON shape the judge is asked to produce.
type verdict struct {
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
	Rationale   string  `json:"rationale"`
}

// Select returns the decision for the given candidates. candidates must
// be non-empty; the caller guarantees at least one response per dispatch.
func (s *Selector) Select(ctx context.Context, goal string, candidates []domain.Candidate) (domain.Decision, error) {
	if len(candidates) == 0 {
		return domain.Decision{}, fmt.Errorf("no candidates to judge")
	}

	sprintContext := map[string]string{"sprint_id": candidates[0].SprintID}
	resp, err := s.dispatcher.ExecuteSingle(ctx, s.judgeName, s.buildPrompt(goal, candidates), sprintContext, s.timeout)
	if err != nil {
		return s.fallback(candidates, fmt.Sprintf("judge agent unavailable: %v", err)), nil
	}
	if !resp.Success {
		return s.fallback(candidates, fmt.Sprintf("judge invocation failed: %s", resp.Error)), nil
	}

	v, err := parseVerdict(resp.Content)
	if err != nil {
		return s.fallback(candidates, fmt.Sprintf("could not parse judge output: %v", err)), nil
	}

	chosen, ok := findCandidate(candidates, v.CandidateID)
	if !ok {
		return s.fallback(candidates, fmt.Sprintf("judge chose unknown candidate %q", v.CandidateID)), nil
	}

	return domain.Decision{
		SprintID:    chosen.SprintID,
		CandidateID: chosen.CandidateID,
		Score:       v.Score,
		Rationale:   v.Rationale,
		JudgeModel:  resp.Model,
		CreatedAt:   time.Now(),
	}, nil
}

// buildPrompt embeds every candidate's identity and output in the judge
// prompt and pins the expected reply shape.
func (s *Selector) buildPrompt(goal string, candidates []domain.Candidate) string {
	var b strings.Builder
	b.WriteString("You are judging candidate solutions for the following task.\n\n")
	b.WriteString("Task:\n")
	b.WriteString(goal)
	b.WriteString("\n\nCandidates:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n--- Candidate %d ---\n", i+1)
		fmt.Fprintf(&b, "id: %s\nprovider: %s\nmodel: %s\n", c.CandidateID, c.Provider, c.Model)
		if c.Success {
			fmt.Fprintf(&b, "output:\n%s\n", c.Content)
		} else {
			fmt.Fprintf(&b, "output: (failed: %s)\n", c.Error)
		}
	}
	b.WriteString("\nReply with JSON only: {\"candidate_id\": \"<id>\", \"score\": <0..1>, \"rationale\": \"<why>\"}\n")
	return b.String()
}

func (s *Selector) fallback(candidates []domain.Candidate, reason string) domain.Decision {
	first := candidates[0]
	log.Printf("WARN: judge fallback for sprint %s: %s", first.SprintID, reason)
	return domain.Decision{
		SprintID:    first.SprintID,
		CandidateID: first.CandidateID,
		Rationale:   fmt.Sprintf("fallback to first candidate: %s", reason),
		Fallback:    true,
		CreatedAt:   time.Now(),
	}
}

// parseVerdict decodes the judge reply, tolerating surrounding prose or
// code fences by extracting the outermost JSON object.
func parseVerdict(content string) (verdict, error) {
	var v verdict
	raw := content
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return verdict{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if v.CandidateID == "" {
		return verdict{}, fmt.Errorf("missing candidate_id")
	}
	return v, nil
}

func findCandidate(candidates []domain.Candidate, id string) (domain.Candidate, bool) {
	for _, c := range candidates {
		if c.CandidateID == id {
			return c, true
		}
	}
	return domain.Candidate{}, false
}
