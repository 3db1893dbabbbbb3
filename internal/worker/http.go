package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/registry"
)

// httpWorker posts the prompt to a fixed endpoint as JSON.
type httpWorker struct {
	desc   registry.AgentDescriptor
	client *http.Client
}

func newHTTPWorker(desc registry.AgentDescriptor) *httpWorker {
	// Per-call deadlines come from ctx; the client itself carries none.
	return &httpWorker{desc: desc, client: &http.Client{}}
}

type httpInvokeRequest struct {
	Prompt  string            `json:"prompt"`
	Model   string            `json:"model,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

type httpInvokeResponse struct {
	Content  string             `json:"content"`
	Response string             `json:"response"`
	Usage    *domain.TokenUsage `json:"usage,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func (w *httpWorker) Invoke(ctx context.Context, prompt string, sprintContext map[string]string) (Result, error) {
	body, err := json.Marshal(httpInvokeRequest{
		Prompt:  prompt,
		Model:   w.desc.Model,
		Context: sprintContext,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.desc.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed httpInvokeResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}
	content := parsed.Content
	if content == "" {
		content = parsed.Response
	}

	result := Result{Content: content}
	if parsed.Usage != nil {
		result.TokenUsage = *parsed.Usage
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
