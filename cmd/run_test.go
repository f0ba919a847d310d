package cmd

import (
	"testing"

	"github.com/opencoder/agentruntime/internal/config"
)

func TestResolveAgentSpecByName(t *testing.T) {
	cfg := &config.Config{
		Agents: config.AgentsConfig{
			List: map[string]config.AgentSpec{
				"reviewer": {DisplayName: "Reviewer"},
				"builder":  {DisplayName: "Builder", Default: true},
			},
		},
	}
	id, spec := resolveAgentSpec(cfg, "reviewer")
	if id != "reviewer" || spec.DisplayName != "Reviewer" {
		t.Fatalf("expected reviewer spec, got id=%q spec=%+v", id, spec)
	}
}

func TestResolveAgentSpecFallsBackToDefault(t *testing.T) {
	cfg := &config.Config{
		Agents: config.AgentsConfig{
			List: map[string]config.AgentSpec{
				"reviewer": {DisplayName: "Reviewer"},
				"builder":  {DisplayName: "Builder", Default: true},
			},
		},
	}
	id, spec := resolveAgentSpec(cfg, "")
	if id != "builder" || !spec.Default {
		t.Fatalf("expected the default agent, got id=%q spec=%+v", id, spec)
	}
}

func TestResolveAgentSpecUnknownNameFallsBackToDefault(t *testing.T) {
	cfg := &config.Config{
		Agents: config.AgentsConfig{
			List: map[string]config.AgentSpec{
				"builder": {DisplayName: "Builder", Default: true},
			},
		},
	}
	id, _ := resolveAgentSpec(cfg, "does-not-exist")
	if id != "builder" {
		t.Fatalf("expected fallback to the default agent, got %q", id)
	}
}

func TestResolveProviderUnknownNameErrors(t *testing.T) {
	cfg := &config.Config{}
	if _, err := resolveProvider(cfg, "not-a-real-provider"); err == nil {
		t.Fatal("expected an error for an unknown provider name")
	}
}

func TestResolveProviderMissingAPIKeyErrors(t *testing.T) {
	cfg := &config.Config{}
	if _, err := resolveProvider(cfg, "anthropic"); err == nil {
		t.Fatal("expected an error when no Anthropic API key is configured")
	}
}
