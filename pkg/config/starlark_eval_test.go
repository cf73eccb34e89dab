package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/webpilot/webpilot/pkg/workflow"
)

func TestStarlarkEvaluateScript(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	script := `
total = price * quantity
label = "order of " + str(quantity)
`
	out, err := se.EvaluateScript(context.Background(), script, map[string]any{
		"price":    int64(25),
		"quantity": int64(4),
	})
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if out["total"] != int64(100) {
		t.Errorf("total = %v, want 100", out["total"])
	}
	if out["label"] != "order of 4" {
		t.Errorf("label = %v", out["label"])
	}
}

func TestStarlarkUnderscoreGlobalsArePrivate(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	out, err := se.EvaluateScript(context.Background(), "_tmp = 1\nvisible = _tmp + 1", nil)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if _, ok := out["_tmp"]; ok {
		t.Error("underscore globals must not be exported")
	}
	if out["visible"] != int64(2) {
		t.Errorf("visible = %v", out["visible"])
	}
}

func TestStarlarkBuiltins(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	script := `
indices = [i for i in range(3)]
pairs = [p for p in enumerate(["a", "b"])]
zipped = [z for z in zip([1, 2], ["x", "y"])]
`
	out, err := se.EvaluateScript(context.Background(), script, nil)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	indices, ok := out["indices"].([]any)
	if !ok || len(indices) != 3 || indices[2] != int64(2) {
		t.Errorf("range broken: %v", out["indices"])
	}
	pairs, ok := out["pairs"].([]any)
	if !ok || len(pairs) != 2 {
		t.Errorf("enumerate broken: %v", out["pairs"])
	}
	zipped, ok := out["zipped"].([]any)
	if !ok || len(zipped) != 2 {
		t.Errorf("zip broken: %v", out["zipped"])
	}
}

func TestStarlarkNestedDataRoundTrip(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	input := map[string]any{
		"page": map[string]any{
			"title": "Checkout",
			"items": []any{"a", "b"},
		},
	}
	out, err := se.EvaluateScript(context.Background(), `item_count = len(page["items"])`, input)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if out["item_count"] != int64(2) {
		t.Errorf("item_count = %v", out["item_count"])
	}
}

func TestStarlarkSyntaxError(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	_, err := se.EvaluateScript(context.Background(), "def broken(:", nil)
	if err == nil {
		t.Fatal("expected a syntax error")
	}
	if !strings.Contains(err.Error(), "execution failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStarlarkTimeout(t *testing.T) {
	se := NewStarlarkEvaluator(50 * time.Millisecond)

	// Bounded but slow enough to trip the timeout.
	script := `
x = 0
for i in range(10000):
    for j in range(10000):
        x += j
`
	start := time.Now()
	_, err := se.EvaluateScript(context.Background(), script, nil)
	if err == nil {
		t.Fatal("expected a timeout")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestStarlarkFailuresAreScriptErrors(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	_, err := se.EvaluateScript(context.Background(), "x = undefined_name", nil)
	if err == nil {
		t.Fatal("expected an error from an undefined name")
	}
	if !workflow.IsScript(err) {
		t.Fatalf("script failures must carry the script kind, got %v", err)
	}
	if workflow.IsEngine(err) {
		t.Fatalf("a user script failure is not an engine fault: %v", err)
	}
}
