package phase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/checkpoint"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/dispatch"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/hub"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/judge"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/registry"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/repository"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/telemetry"
)

// SuccessMarker is the literal a verification output must contain for the
// sprint to complete.
const SuccessMarker = "VERIFICATION_SUCCESS"

const defaultMaxRetries = 3

// Runner executes sprints. Phases run strictly sequentially; only the
// dispatcher's fan-out within a phase is parallel.
type Runner struct {
	store       repository.Store
	checkpoints *checkpoint.Store
	dispatcher  *dispatch.Dispatcher
	judge       *judge.Selector
	telemetry   *telemetry.Collector
	hub         *hub.Hub
	registry    *registry.Registry
	maxRetries  int
	agentNames  []string
	judgeName   string
}

// Config configures a Runner.
type Config struct {
	MaxRetries int
	// AgentNames restricts dispatch to the named agents; empty targets
	// every enabled agent except the judge.
	AgentNames []string
	// JudgeName is excluded from candidate dispatch.
	JudgeName string
}

// NewRunner wires a runner from its collaborators.
func NewRunner(store repository.Store, checkpoints *checkpoint.Store, dispatcher *dispatch.Dispatcher, selector *judge.Selector, collector *telemetry.Collector, h *hub.Hub, reg *registry.Registry, cfg Config) *Runner {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Runner{
		store:       store,
		checkpoints: checkpoints,
		dispatcher:  dispatcher,
		judge:       selector,
		telemetry:   collector,
		hub:         h,
		registry:    reg,
		maxRetries:  maxRetries,
		agentNames:  cfg.AgentNames,
		judgeName:   cfg.JudgeName,
	}
}

// runState carries phase outputs forward across the workflow.
type runState struct {
	discoveryNotes string
	solution       domain.Candidate
}

// Start executes the sprint to a terminal state. It never panics and
// never returns an error: any fatal condition forces the sprint to
// FAILED with best-effort checkpoint and telemetry flushing. Safe to run
// in its own goroutine.
func (r *Runner) Start(ctx context.Context, sprintID string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("ERROR: sprint %s panicked: %v", sprintID, rec)
			r.failSprint(ctx, sprintID, "", fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if err := r.run(ctx, sprintID); err != nil {
		log.Printf("ERROR: sprint %s failed: %v", sprintID, err)
		r.failSprint(ctx, sprintID, "", err.Error())
	}
}

func (r *Runner) run(ctx context.Context, sprintID string) error {
	sprint, err := r.store.GetSprint(ctx, sprintID)
	if err != nil {
		return fmt.Errorf("failed to load sprint: %w", err)
	}
	if sprint == nil {
		return fmt.Errorf("sprint %s not found", sprintID)
	}

	r.emit(ctx, sprintID, domain.EventTypeWorkflowStarted, "", "", 0, map[string]interface{}{
		"goal":   sprint.Goal,
		"status": "running",
	})
	r.hub.BroadcastSprintUpdate(sprintID, string(domain.SprintStatusRunning), "", "sprint started")

	// Initial checkpoint anchors the workflow's history tree.
	contextData, _ := json.Marshal(map[string]string{"goal": sprint.Goal})
	if ckpt, err := r.checkpoints.Create(ctx, sprintID, "", nil, contextData, ""); err != nil {
		log.Printf("WARN: failed to create initial checkpoint for %s: %v", sprintID, err)
	} else {
		r.emit(ctx, sprintID, domain.EventTypeCheckpointCreated, "", ckpt.CheckpointID, 0, map[string]interface{}{
			"checkpoint_id": ckpt.CheckpointID,
		})
	}

	var rs runState
	state := Next(State{Kind: KindInit}, OutcomeSuccess, r.maxRetries)
	last := state
	for !state.Terminal() {
		outcome := r.runPhase(ctx, sprint, state, &rs)
		last = state
		state = Next(state, outcome, r.maxRetries)
	}

	if state.Kind == KindFailed {
		detail := fmt.Sprintf("verification did not pass within %d attempts", r.maxRetries)
		if last.Kind == KindDiscovery {
			detail = "discovery produced no usable candidates"
		}
		r.failSprint(ctx, sprintID, phaseOf(last.Kind), detail)
		return nil
	}

	if err := r.store.UpdateSprintCompleted(ctx, sprintID, domain.SprintStatusCompleted, ""); err != nil {
		log.Printf("ERROR: failed to mark sprint %s completed: %v", sprintID, err)
	}
	r.emit(ctx, sprintID, domain.EventTypeWorkflowStatus, domain.PhaseVerification, "", 0, map[string]interface{}{
		"status": "completed",
	})
	r.hub.BroadcastSprintUpdate(sprintID, string(domain.SprintStatusCompleted), string(domain.PhaseVerification), "sprint completed")
	r.recordWorkflowDone(sprintID, true)
	r.telemetry.Flush()
	return nil
}

// runPhase executes one phase attempt end to end: dispatch, judge,
// checkpoint, events.
func (r *Runner) runPhase(ctx context.Context, sprint *domain.Sprint, state State, rs *runState) Outcome {
	ph := phaseOf(state.Kind)
	started := time.Now()

	if err := r.store.UpdateSprintPhase(ctx, sprint.SprintID, domain.SprintStatusRunning, ph, state.Attempt); err != nil {
		log.Printf("WARN: failed to update sprint phase: %v", err)
	}

	r.emit(ctx, sprint.SprintID, domain.EventTypePhaseStarted, ph, "", 0, map[string]interface{}{
		"phase":   string(ph),
		"attempt": state.Attempt,
	})

	prompt := r.buildPrompt(ph, sprint.Goal, state.Attempt, rs)
	names := r.targetNames()
	for _, name := range names {
		r.emit(ctx, sprint.SprintID, domain.EventTypeCandidateStarted, ph, "", 0, map[string]interface{}{
			"agent": name,
		})
	}

	sprintContext := map[string]string{
		"sprint_id": sprint.SprintID,
		"phase":     string(ph),
	}
	responses := r.dispatcher.ExecuteParallel(ctx, prompt, names, sprintContext, 0)

	candidates := make([]domain.Candidate, 0, len(responses))
	successful := 0
	for _, resp := range responses {
		cand := candidateFrom(resp, sprint.SprintID, ph, state.Attempt)
		if err := r.store.CreateCandidate(ctx, &cand); err != nil {
			log.Printf("ERROR: failed to persist candidate for %s: %v", sprint.SprintID, err)
		}
		candidates = append(candidates, cand)
		if cand.Success {
			successful++
		}
		r.emit(ctx, sprint.SprintID, domain.EventTypeCandidateGenerated, ph, "", cand.LatencyMs, map[string]interface{}{
			"candidate_id": cand.CandidateID,
			"agent":        cand.AgentName,
			"success":      cand.Success,
		})
	}

	if len(candidates) == 0 || successful == 0 {
		return r.finishPhase(ctx, sprint.SprintID, ph, state.Attempt, started, candidates, nil, OutcomeFailure, "no successful candidates")
	}

	r.emit(ctx, sprint.SprintID, domain.EventTypeJudgeStarted, ph, "", 0, map[string]interface{}{
		"candidates": len(candidates),
	})
	decision, err := r.judge.Select(ctx, sprint.Goal, candidates)
	if err != nil {
		// Only an empty candidate list reaches here, and it is excluded above.
		return r.finishPhase(ctx, sprint.SprintID, ph, state.Attempt, started, candidates, nil, OutcomeFailure, err.Error())
	}
	if err := r.store.UpsertDecision(ctx, &decision); err != nil {
		log.Printf("ERROR: failed to persist decision for %s: %v", sprint.SprintID, err)
	}
	r.emit(ctx, sprint.SprintID, domain.EventTypeJudgeDecided, ph, "", 0, map[string]interface{}{
		"candidate_id": decision.CandidateID,
		"score":        decision.Score,
		"fallback":     decision.Fallback,
	})
	r.recordJudge(sprint.SprintID, ph, decision)

	selected, _ := findByID(candidates, decision.CandidateID)
	outcome := OutcomeSuccess
	detail := ""
	switch ph {
	case domain.PhaseDiscovery:
		if !selected.Success {
			outcome = OutcomeFailure
			detail = "selected discovery candidate failed"
		} else {
			rs.discoveryNotes = selected.Content
		}
	case domain.PhaseCoding:
		rs.solution = selected
	case domain.PhaseVerification:
		if !strings.Contains(selected.Content, SuccessMarker) {
			outcome = OutcomeFailure
			detail = "verification output is missing the success marker"
		}
	}

	return r.finishPhase(ctx, sprint.SprintID, ph, state.Attempt, started, candidates, &decision, outcome, detail)
}

// finishPhase checkpoints the attempt, records it and emits the closing
// phase events.
func (r *Runner) finishPhase(ctx context.Context, sprintID string, ph domain.Phase, attempt int, started time.Time, candidates []domain.Candidate, decision *domain.Decision, outcome Outcome, detail string) Outcome {
	duration := time.Since(started).Milliseconds()

	agentData, _ := json.Marshal(map[string]interface{}{
		"candidates": candidateIDs(candidates),
		"decision":   decision,
	})
	contextData, _ := json.Marshal(map[string]interface{}{
		"phase":   string(ph),
		"attempt": attempt,
	})
	ckpt, err := r.checkpoints.Create(ctx, sprintID, ph, agentData, contextData, "")
	if err != nil {
		log.Printf("ERROR: failed to checkpoint %s/%s: %v", sprintID, ph, err)
	} else {
		r.emit(ctx, sprintID, domain.EventTypeCheckpointCreated, ph, ckpt.CheckpointID, 0, map[string]interface{}{
			"checkpoint_id": ckpt.CheckpointID,
			"phase":         string(ph),
		})
	}

	status := domain.PhaseStatusCompleted
	eventType := domain.EventTypePhaseCompleted
	if outcome == OutcomeFailure {
		status = domain.PhaseStatusFailed
		eventType = domain.EventTypePhaseFailed
		if err := r.checkpoints.Fail(ctx, ckpt.CheckpointID, detail); err != nil {
			log.Printf("WARN: failed to fail checkpoint %s: %v", ckpt.CheckpointID, err)
		}
	} else {
		if err := r.checkpoints.Complete(ctx, ckpt.CheckpointID); err != nil {
			log.Printf("WARN: failed to complete checkpoint %s: %v", ckpt.CheckpointID, err)
		}
	}

	ended := time.Now()
	record := domain.PhaseRecord{
		SprintID:     sprintID,
		Phase:        ph,
		Attempt:      attempt,
		Status:       status,
		StartedAt:    started,
		EndedAt:      &ended,
		DurationMs:   duration,
		CandidateIDs: candidateIDs(candidates),
	}
	if decision != nil {
		record.DecisionID = decision.CandidateID
	}
	if err := r.store.CreatePhaseRecord(ctx, &record); err != nil {
		log.Printf("ERROR: failed to persist phase record for %s: %v", sprintID, err)
	}

	data := map[string]interface{}{
		"phase":   string(ph),
		"attempt": attempt,
	}
	if detail != "" {
		data["detail"] = detail
	}
	r.emit(ctx, sprintID, eventType, ph, ckpt.CheckpointID, duration, data)
	r.emit(ctx, sprintID, domain.EventTypeWorkflowStatus, ph, "", 0, map[string]interface{}{
		"status": "running",
	})
	r.telemetry.Record(domain.TelemetryEvent{
		Type:      domain.TelemetryPhaseTransition,
		SprintID:  sprintID,
		Phase:     ph,
		Success:   outcome == OutcomeSuccess,
		LatencyMs: duration,
		Error:     detail,
		Ts:        time.Now(),
	})
	return outcome
}

// failSprint forces the terminal FAILED state. Every step is best-effort;
// nothing here may panic or propagate.
func (r *Runner) failSprint(ctx context.Context, sprintID string, ph domain.Phase, detail string) {
	if err := r.store.UpdateSprintCompleted(ctx, sprintID, domain.SprintStatusFailed, detail); err != nil {
		log.Printf("ERROR: failed to mark sprint %s failed: %v", sprintID, err)
	}

	contextData, _ := json.Marshal(map[string]string{"error": detail})
	if ckpt, err := r.checkpoints.Create(ctx, sprintID, ph, nil, contextData, ""); err == nil {
		if err := r.checkpoints.Fail(ctx, ckpt.CheckpointID, detail); err != nil {
			log.Printf("WARN: failed to fail final checkpoint: %v", err)
		}
	} else {
		log.Printf("WARN: failed to create final checkpoint for %s: %v", sprintID, err)
	}

	r.emit(ctx, sprintID, domain.EventTypeWorkflowStatus, ph, "", 0, map[string]interface{}{
		"status": "failed",
		"detail": detail,
	})
	r.hub.BroadcastSprintUpdate(sprintID, string(domain.SprintStatusFailed), string(ph), detail)
	r.recordWorkflowDone(sprintID, false)
	r.telemetry.Flush()
}

// Announce broadcasts an out-of-band event for a sprint and records it
// on the timeline, keeping the sequence stream and the persisted history
// in lockstep. Used by callers outside the phase loop, such as the
// checkpoint restore endpoint.
func (r *Runner) Announce(ctx context.Context, sprintID string, eventType domain.EventType, checkpointID string, data map[string]interface{}) {
	r.emit(ctx, sprintID, eventType, "", checkpointID, 0, data)
}

// emit broadcasts a wire event and appends the matching timeline entry
// with the sequence the hub stamped.
func (r *Runner) emit(ctx context.Context, sprintID string, eventType domain.EventType, ph domain.Phase, checkpointID string, durationMs int64, data map[string]interface{}) {
	seq := r.hub.BroadcastEvent(sprintID, eventType, data)

	metadata, _ := json.Marshal(data)
	event := &domain.TimelineEvent{
		EventID:      "evt_" + uuid.New().String()[:8],
		SprintID:     sprintID,
		Sequence:     seq,
		Type:         eventType,
		Phase:        ph,
		CheckpointID: checkpointID,
		DurationMs:   durationMs,
		Metadata:     metadata,
		Ts:           time.Now(),
	}
	if err := r.store.CreateTimelineEvent(ctx, event); err != nil {
		log.Printf("ERROR: failed to record timeline event %s for %s: %v", eventType, sprintID, err)
	}
}

func (r *Runner) buildPrompt(ph domain.Phase, goal string, attempt int, rs *runState) string {
	var b strings.Builder
	switch ph {
	case domain.PhaseDiscovery:
		b.WriteString("Analyze the following task and produce a concise technical plan: ")
		b.WriteString("key components, risks, and the approach you recommend.\n\nTask:\n")
		b.WriteString(goal)
	case domain.PhaseCoding:
		b.WriteString("Implement a solution for the following task.\n\nTask:\n")
		b.WriteString(goal)
		if rs.discoveryNotes != "" {
			b.WriteString("\n\nDiscovery notes:\n")
			b.WriteString(rs.discoveryNotes)
		}
		if attempt > 1 {
			fmt.Fprintf(&b, "\n\nThis is attempt %d; the previous solution failed verification. Address likely gaps.", attempt)
		}
	case domain.PhaseVerification:
		b.WriteString("Verify the following solution against the task. ")
		fmt.Fprintf(&b, "If and only if it fully satisfies the task, include the literal string %s in your reply.\n\nTask:\n", SuccessMarker)
		b.WriteString(goal)
		b.WriteString("\n\nSolution:\n")
		b.WriteString(rs.solution.Content)
	}
	return b.String()
}

// targetNames resolves the agents a phase dispatches to. The judge never
// competes with the candidates it ranks.
func (r *Runner) targetNames() []string {
	if len(r.agentNames) > 0 {
		return r.agentNames
	}
	names := r.registry.EnabledNames()
	out := names[:0]
	for _, name := range names {
		if name != r.judgeName {
			out = append(out, name)
		}
	}
	return out
}

func (r *Runner) recordJudge(sprintID string, ph domain.Phase, decision domain.Decision) {
	r.telemetry.Record(domain.TelemetryEvent{
		Type:     domain.TelemetryJudgeDecision,
		SprintID: sprintID,
		Phase:    ph,
		Success:  !decision.Fallback,
		Ts:       time.Now(),
	})
}

func (r *Runner) recordWorkflowDone(sprintID string, success bool) {
	r.telemetry.Record(domain.TelemetryEvent{
		Type:     domain.TelemetryWorkflowDone,
		SprintID: sprintID,
		Success:  success,
		Ts:       time.Now(),
	})
}

func phaseOf(kind Kind) domain.Phase {
	switch kind {
	case KindDiscovery:
		return domain.PhaseDiscovery
	case KindCoding:
		return domain.PhaseCoding
	case KindVerification:
		return domain.PhaseVerification
	}
	return ""
}

func candidateFrom(resp domain.AgentResponse, sprintID string, ph domain.Phase, attempt int) domain.Candidate {
	return domain.Candidate{
		CandidateID: "cand_" + uuid.New().String()[:8],
		SprintID:    sprintID,
		Phase:       ph,
		Attempt:     attempt,
		AgentName:   resp.AgentName,
		Provider:    resp.Provider,
		Model:       resp.Model,
		Content:     resp.Content,
		Success:     resp.Success,
		Error:       resp.Error,
		LatencyMs:   resp.LatencyMs,
		TokenUsage:  resp.TokenUsage,
		CreatedAt:   time.Now(),
	}
}

func candidateIDs(candidates []domain.Candidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.CandidateID)
	}
	return ids
}

func findByID(candidates []domain.Candidate, id string) (domain.Candidate, bool) {
	for _, c := range candidates {
		if c.CandidateID == id {
			return c, true
		}
	}
	return domain.Candidate{}, false
}
