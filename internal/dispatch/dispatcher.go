// Package dispatch fans prompts out to registered agents in parallel and
// normalizes every outcome into an AgentResponse. A single agent failing,
// timing out or being blocked by policy never aborts the batch.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/registry"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/telemetry"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/worker"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/policy"
)

// ErrAgentNotFound is returned by ExecuteSingle for an unregistered name.
var ErrAgentNotFound = errors.New("agent not found")

const defaultAgentTimeout = 5 * time.Minute

// WorkerFactory builds the worker for a descriptor. Tests swap it out.
type WorkerFactory func(desc registry.AgentDescriptor, opts worker.Options) (worker.Worker, error)

// Dispatcher executes prompts against registered agents.
type Dispatcher struct {
	registry       *registry.Registry
	telemetry      *telemetry.Collector
	policy         *policy.Engine
	defaultTimeout time.Duration
	cliGrace       time.Duration
	factory        WorkerFactory
}

// Options configures a Dispatcher.
type Options struct {
	DefaultTimeout time.Duration
	CLIGrace       time.Duration
	// Policy may be nil; dispatch is then unrestricted.
	Policy *policy.Engine
	// Factory may be nil; worker.New is used.
	Factory WorkerFactory
}

// New creates a dispatcher over the given registry.
func New(reg *registry.Registry, collector *telemetry.Collector, opts Options) *Dispatcher {
	d := &Dispatcher{
		registry:       reg,
		telemetry:      collector,
		policy:         opts.Policy,
		defaultTimeout: opts.DefaultTimeout,
		cliGrace:       opts.CLIGrace,
		factory:        opts.Factory,
	}
	if d.defaultTimeout <= 0 {
		d.defaultTimeout = defaultAgentTimeout
	}
	if d.factory == nil {
		d.factory = worker.New
	}
	return d
}

// ExecuteParallel dispatches the prompt to the named agents concurrently
// and returns one AgentResponse per known agent, in input order. Unknown
// names are silently skipped. An empty name list targets every enabled
// agent. timeout overrides the per-descriptor default when positive.
func (d *Dispatcher) ExecuteParallel(ctx context.Context, prompt string, names []string, sprintContext map[string]string, timeout time.Duration) []domain.AgentResponse {
	if len(names) == 0 {
		names = d.registry.EnabledNames()
	}

	descs := make([]registry.AgentDescriptor, 0, len(names))
	for _, name := range names {
		desc, ok := d.registry.Get(name)
		if !ok {
			log.Printf("WARN: skipping unknown agent %q", name)
			continue
		}
		descs = append(descs, desc)
	}

	responses := make([]domain.AgentResponse, len(descs))
	var wg sync.WaitGroup
	for i, desc := range descs {
		wg.Add(1)
		go func(i int, desc registry.AgentDescriptor) {
			defer wg.Done()
			responses[i] = d.invoke(ctx, desc, prompt, sprintContext, timeout)
		}(i, desc)
	}
	wg.Wait()
	return responses
}

// ExecuteSingle dispatches the prompt to one agent. Unlike the parallel
// path, an unknown name is an error.
func (d *Dispatcher) ExecuteSingle(ctx context.Context, name, prompt string, sprintContext map[string]string, timeout time.Duration) (domain.AgentResponse, error) {
	desc, ok := d.registry.Get(name)
	if !ok {
		return domain.AgentResponse{}, fmt.Errorf("agent %q: %w", name, ErrAgentNotFound)
	}
	return d.invoke(ctx, desc, prompt, sprintContext, timeout), nil
}

// invoke runs one agent call under its own deadline and converts every
// failure mode into a failed AgentResponse.
func (d *Dispatcher) invoke(ctx context.Context, desc registry.AgentDescriptor, prompt string, sprintContext map[string]string, timeout time.Duration) domain.AgentResponse {
	resp := domain.AgentResponse{
		AgentName: desc.Name,
		Provider:  desc.Provider,
		Model:     desc.Model,
		Timestamp: time.Now(),
	}

	effective := d.resolveTimeout(timeout, desc.Timeout)
	start := time.Now()
	finish := func() {
		resp.LatencyMs = time.Since(start).Milliseconds()
		d.recordDispatch(resp, sprintContext)
	}

	if !desc.Enabled {
		resp.Error = "agent is disabled"
		finish()
		return resp
	}

	if reason, blocked := d.policyBlocks(ctx, desc, sprintContext); blocked {
		resp.Error = "blocked by policy: " + reason
		finish()
		return resp
	}

	w, err := d.factory(desc, worker.Options{CLIGrace: d.cliGrace})
	if err != nil {
		resp.Error = err.Error()
		finish()
		return resp
	}

	callCtx, cancel := context.WithTimeout(ctx, effective)
	defer cancel()

	result, err := w.Invoke(callCtx, prompt, sprintContext)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			resp.Error = fmt.Sprintf("Timeout after %s", effective)
		} else {
			resp.Error = err.Error()
		}
		finish()
		return resp
	}

	resp.Success = true
	resp.Content = result.Content
	resp.TokenUsage = result.TokenUsage
	resp.ToolCalls = result.ToolCalls
	finish()
	return resp
}

func (d *Dispatcher) resolveTimeout(override, descriptor time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if descriptor > 0 {
		return descriptor
	}
	return d.defaultTimeout
}

func (d *Dispatcher) policyBlocks(ctx context.Context, desc registry.AgentDescriptor, sprintContext map[string]string) (string, bool) {
	if d.policy == nil {
		return "", false
	}
	input := map[string]interface{}{
		"agent_name": desc.Name,
		"kind":       string(desc.Kind),
		"provider":   desc.Provider,
		"model":      desc.Model,
		"command":    desc.Command,
		"context":    sprintContext,
	}
	decision, reason, err := d.policy.Evaluate(ctx, input)
	if err != nil {
		// An unevaluable policy fails open; the engine is validated at startup.
		log.Printf("WARN: policy evaluation failed for agent %s: %v", desc.Name, err)
		return "", false
	}
	if decision == "block" {
		if reason == "" {
			reason = "dispatch policy"
		}
		return reason, true
	}
	return "", false
}

func (d *Dispatcher) recordDispatch(resp domain.AgentResponse, sprintContext map[string]string) {
	if d.telemetry == nil {
		return
	}
	d.telemetry.Record(domain.TelemetryEvent{
		Type:       domain.TelemetryAgentDispatch,
		SprintID:   sprintContext["sprint_id"],
		AgentName:  resp.AgentName,
		Success:    resp.Success,
		LatencyMs:  resp.LatencyMs,
		TokenUsage: resp.TokenUsage,
		Error:      resp.Error,
		Ts:         time.Now(),
	})
}
