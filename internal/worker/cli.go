package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/registry"
)

const defaultCLIGrace = 5 * time.Second

// cliWorker runs an agent as a subprocess, feeding the prompt on stdin.
type cliWorker struct {
	desc  registry.AgentDescriptor
	grace time.Duration
}

func newCLIWorker(desc registry.AgentDescriptor, grace time.Duration) *cliWorker {
	if grace <= 0 {
		grace = defaultCLIGrace
	}
	return &cliWorker{desc: desc, grace: grace}
}

// Invoke executes the command template with descriptor fields and the
// sprint context expanded into the argv. The child gets its own process
// group and is killed as a group when ctx expires; WaitDelay bounds how
// long we wait for pipes to drain after the kill.
func (w *cliWorker) Invoke(ctx context.Context, prompt string, sprintContext map[string]string) (Result, error) {
	vars := map[string]string{
		"model":      w.desc.Model,
		"provider":   w.desc.Provider,
		"agent_name": w.desc.Name,
	}
	for key, val := range sprintContext {
		vars[key] = val
	}
	argv := expandCommand(w.desc.Command, vars)
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("agent %s: empty command", w.desc.Name)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	configureProcessGroup(cmd)
	cmd.Cancel = func() error {
		terminateProcessGroup(cmd)
		return nil
	}
	cmd.WaitDelay = w.grace

	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Result{}, ctx.Err()
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return Result{}, fmt.Errorf("command failed: %s", detail)
	}

	return Result{Content: strings.TrimSpace(stdout.String())}, nil
}

// expandCommand substitutes {key} placeholders into each argv element.
func expandCommand(template []string, vars map[string]string) []string {
	argv := make([]string, len(template))
	for i, arg := range template {
		for key, val := range vars {
			arg = strings.ReplaceAll(arg, "{"+key+"}", val)
		}
		argv[i] = arg
	}
	return argv
}
