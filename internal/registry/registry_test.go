package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

func TestValidatePerKind(t *testing.T) {
	factory := func() SdkClient {
		return SdkFunc(func(ctx context.Context, prompt string) (string, error) { return "", nil })
	}

	cases := []struct {
		name    string
		desc    AgentDescriptor
		wantErr bool
	}{
		{"cli with command", AgentDescriptor{Name: "a", Kind: domain.AgentKindCLI, Command: []string{"claude", "-p"}}, false},
		{"cli without command", AgentDescriptor{Name: "a", Kind: domain.AgentKindCLI}, true},
		{"http with endpoint", AgentDescriptor{Name: "a", Kind: domain.AgentKindHTTP, Endpoint: "http://localhost:9000/run"}, false},
		{"http without endpoint", AgentDescriptor{Name: "a", Kind: domain.AgentKindHTTP}, true},
		{"sdk with factory", AgentDescriptor{Name: "a", Kind: domain.AgentKindSDK, Factory: factory}, false},
		{"sdk without factory", AgentDescriptor{Name: "a", Kind: domain.AgentKindSDK}, true},
		{"missing name", AgentDescriptor{Kind: domain.AgentKindSDK, Factory: factory}, true},
		{"unknown kind", AgentDescriptor{Name: "a", Kind: "grpc"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.desc.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRegisterReplacesAndUnregister(t *testing.T) {
	r := New()
	desc := AgentDescriptor{Name: "alpha", Kind: domain.AgentKindCLI, Command: []string{"run"}, Enabled: true}
	if err := r.Register(desc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	desc.Model = "m2"
	if err := r.Register(desc); err != nil {
		t.Fatalf("re-Register failed: %v", err)
	}
	got, ok := r.Get("alpha")
	if !ok || got.Model != "m2" {
		t.Fatalf("expected replacement, got %+v ok=%v", got, ok)
	}

	r.Unregister("alpha")
	if _, ok := r.Get("alpha"); ok {
		t.Fatal("expected agent removed")
	}
}

func TestEnabledNamesSorted(t *testing.T) {
	r := New()
	r.Register(AgentDescriptor{Name: "zeta", Kind: domain.AgentKindCLI, Command: []string{"x"}, Enabled: true})
	r.Register(AgentDescriptor{Name: "alpha", Kind: domain.AgentKindCLI, Command: []string{"x"}, Enabled: true})
	r.Register(AgentDescriptor{Name: "mid", Kind: domain.AgentKindCLI, Command: []string{"x"}, Enabled: false})

	names := r.EnabledNames()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("unexpected enabled names: %v", names)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	content := `agents:
  - name: claude-cli
    kind: cli
    provider: anthropic
    model: claude-sonnet
    timeout_ms: 120000
    command: ["claude", "-p", "--model", "{model}"]
  - name: local-http
    kind: http
    provider: local
    model: llama
    endpoint: http://localhost:9000/v1/run
    enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	r := New()
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	cli, ok := r.Get("claude-cli")
	if !ok {
		t.Fatal("expected claude-cli registered")
	}
	if cli.Kind != domain.AgentKindCLI || cli.Timeout != 2*time.Minute || !cli.Enabled {
		t.Fatalf("unexpected descriptor: %+v", cli)
	}
	if len(cli.Command) != 4 || cli.Command[3] != "{model}" {
		t.Fatalf("command template lost: %v", cli.Command)
	}

	httpAgent, ok := r.Get("local-http")
	if !ok || httpAgent.Enabled {
		t.Fatalf("expected disabled http agent, got %+v ok=%v", httpAgent, ok)
	}

	if names := r.EnabledNames(); len(names) != 1 || names[0] != "claude-cli" {
		t.Fatalf("unexpected enabled set: %v", names)
	}
}

func TestLoadFileRejectsInvalidEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	content := `agents:
  - name: broken
    kind: cli
`
	os.WriteFile(path, []byte(content), 0o644)

	r := New()
	if err := r.LoadFile(path); err == nil {
		t.Fatal("expected validation error for cli agent without command")
	}
}

func TestLoadFileMissing(t *testing.T) {
	r := New()
	if err := r.LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
