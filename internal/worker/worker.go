// Package worker implements the three agent invocation transports. Each
// registered agent maps to exactly one Worker variant selected by its
// descriptor kind; there is no runtime probing.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/registry"
)

// Result is the normalized outcome of a successful invocation.
type Result struct {
	Content    string
	TokenUsage domain.TokenUsage
	ToolCalls  []domain.ToolCall
}

// Worker invokes an agent. Implementations must honor ctx cancellation;
// a deadline on ctx bounds the whole invocation.
type Worker interface {
	Invoke(ctx context.Context, prompt string, sprintContext map[string]string) (Result, error)
}

// Options carries transport-wide settings workers need beyond their
// descriptor.
type Options struct {
	// CLIGrace is the extra teardown window granted to subprocesses past
	// the logical deadline.
	CLIGrace time.Duration
}

// New constructs the worker for a descriptor.
func New(desc registry.AgentDescriptor, opts Options) (Worker, error) {
	switch desc.Kind {
	case domain.AgentKindSDK:
		return newSDKWorker(desc)
	case domain.AgentKindCLI:
		return newCLIWorker(desc, opts.CLIGrace), nil
	case domain.AgentKindHTTP:
		return newHTTPWorker(desc), nil
	}
	return nil, fmt.Errorf("agent %s: unknown kind %q", desc.Name, desc.Kind)
}
