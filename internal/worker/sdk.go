package worker

import (
	"context"
	"fmt"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/registry"
)

// sdkWorker wraps a provider SDK client produced by the descriptor's
// factory. The factory runs once at construction so a misconfigured
// client surfaces before the first dispatch.
type sdkWorker struct {
	desc   registry.AgentDescriptor
	client registry.SdkClient
}

func newSDKWorker(desc registry.AgentDescriptor) (*sdkWorker, error) {
	client := desc.Factory()
	if client == nil {
		return nil, fmt.Errorf("agent %s: factory returned nil client", desc.Name)
	}
	return &sdkWorker{desc: desc, client: client}, nil
}

type sdkOutcome struct {
	res registry.SdkResult
	err error
}

// Invoke runs the client call in its own goroutine so a client that
// ignores ctx still cannot hold the dispatch slot past the deadline.
func (w *sdkWorker) Invoke(ctx context.Context, prompt string, _ map[string]string) (Result, error) {
	done := make(chan sdkOutcome, 1)
	go func() {
		res, err := w.client.Run(ctx, prompt)
		done <- sdkOutcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out := <-done:
		if out.err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return Result{}, ctx.Err()
			}
			return Result{}, fmt.Errorf("sdk call failed: %w", out.err)
		}
		return Result{
			Content:    out.res.Content,
			TokenUsage: out.res.TokenUsage,
			ToolCalls:  out.res.ToolCalls,
		}, nil
	}
}
