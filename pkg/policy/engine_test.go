package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/webpilot/webpilot/pkg/workflow"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func nav(name, url string) workflow.Action {
	return workflow.Action{
		Name:       name,
		Variant:    workflow.VariantNavigation,
		Navigation: &workflow.NavigationPayload{URL: url},
	}
}

func TestNewEngineLoadsBuiltins(t *testing.T) {
	eng := testEngine(t)

	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"navigation-allowlist",
		"insecure-navigation",
		"script-steps",
		"unbounded-loops",
		"plaintext-secrets",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestEvaluateAllowlist(t *testing.T) {
	eng := testEngine(t)

	tests := []struct {
		name          string
		url           string
		allowedHosts  []string
		expectAllowed bool
	}{
		{
			name:          "allowed host",
			url:           "https://shop.example.com/cart",
			allowedHosts:  []string{"shop.example.com"},
			expectAllowed: true,
		},
		{
			name:          "blocked host",
			url:           "https://evil.example.net/",
			allowedHosts:  []string{"shop.example.com"},
			expectAllowed: false,
		},
		{
			name:          "port stripped before matching",
			url:           "https://shop.example.com:8443/cart",
			allowedHosts:  []string{"shop.example.com"},
			expectAllowed: true,
		},
		{
			name:          "empty allowlist allows everything",
			url:           "https://anywhere.example.org/",
			allowedHosts:  nil,
			expectAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &workflow.Workflow{
				Name:    "allowlist-check",
				Actions: []workflow.Action{nav("open", tt.url)},
			}

			result, err := eng.Evaluate(context.Background(), wf, &Context{
				AllowedHosts: tt.allowedHosts,
				Operation:    "run",
			})
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}
			if result.Allowed != tt.expectAllowed {
				t.Errorf("allowed = %v, want %v (violations: %+v)",
					result.Allowed, tt.expectAllowed, result.Violations)
			}
		})
	}
}

func TestEvaluateAllowlistSeesNestedActions(t *testing.T) {
	eng := testEngine(t)

	wf := &workflow.Workflow{
		Name: "nested",
		Actions: []workflow.Action{
			{
				Name:    "maybe-detour",
				Variant: workflow.VariantConditional,
				Conditional: &workflow.ConditionalPayload{
					Predicate: workflow.Predicate{Kind: workflow.PredicateElementExists, Target: "#x"},
					Then:      []workflow.Action{nav("detour", "https://evil.example.net/")},
				},
			},
		},
	}

	result, err := eng.Evaluate(context.Background(), wf, &Context{
		AllowedHosts: []string{"shop.example.com"},
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("blocked host inside a conditional branch must still deny")
	}
}

func TestEvaluateInsecureNavigationWarns(t *testing.T) {
	eng := testEngine(t)

	wf := &workflow.Workflow{
		Name:    "plain-http",
		Actions: []workflow.Action{nav("open", "http://example.com/")},
	}

	result, err := eng.Evaluate(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Error("a warning must not block the run")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "insecure-navigation" && v.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an insecure-navigation warning, got %+v", result.Violations)
	}
}

func TestEvaluatePlaintextSecretBlocks(t *testing.T) {
	eng := testEngine(t)

	wf := &workflow.Workflow{
		Name: "bad-login",
		Actions: []workflow.Action{
			{
				Name:    "fill-password",
				Variant: workflow.VariantInteraction,
				Interaction: &workflow.InteractionPayload{
					Selector: "#password",
					Kind:     workflow.InteractionType,
					Value:    "hunter2",
				},
			},
		},
	}

	result, err := eng.Evaluate(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("literal password values must block the run")
	}
}

func TestEvaluateCredentialRefPasses(t *testing.T) {
	eng := testEngine(t)

	wf := &workflow.Workflow{
		Name: "good-login",
		Actions: []workflow.Action{
			{
				Name:    "fill-password",
				Variant: workflow.VariantInteraction,
				Interaction: &workflow.InteractionPayload{
					Selector:      "#password",
					Kind:          workflow.InteractionType,
					CredentialRef: "site-password",
				},
			},
		},
	}

	result, err := eng.Evaluate(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("credential references must pass, got %+v", result.Violations)
	}
}

func TestEvaluateWhileLoopWarns(t *testing.T) {
	eng := testEngine(t)

	wf := &workflow.Workflow{
		Name: "poller",
		Actions: []workflow.Action{
			{
				Name:    "wait-for-done",
				Variant: workflow.VariantLoop,
				Loop: &workflow.LoopPayload{
					Source:    workflow.LoopWhile,
					Predicate: &workflow.Predicate{Kind: workflow.PredicateElementExists, Target: "#spinner"},
					Body:      []workflow.Action{nav("refresh", "https://example.com/status")},
				},
			},
		},
	}

	result, err := eng.Evaluate(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "unbounded-loops" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unbounded-loops warning, got %+v", result.Violations)
	}
}

func TestDisablePolicy(t *testing.T) {
	eng := testEngine(t)

	if err := eng.DisablePolicy("insecure-navigation"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	wf := &workflow.Workflow{
		Name:    "plain-http",
		Actions: []workflow.Action{nav("open", "http://example.com/")},
	}

	result, err := eng.Evaluate(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	for _, v := range result.Violations {
		if v.Policy == "insecure-navigation" {
			t.Error("disabled policy still fired")
		}
	}

	if err := eng.EnablePolicy("insecure-navigation"); err != nil {
		t.Fatalf("Failed to re-enable policy: %v", err)
	}
	if err := eng.DisablePolicy("no-such-policy"); err == nil {
		t.Error("expected unknown policy to error")
	}
}
