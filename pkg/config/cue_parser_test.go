package config

import (
	"strings"
	"testing"
	"time"

	"github.com/webpilot/webpilot/pkg/workflow"
)

const sampleCUEWorkflow = `
workflow: {
	name: "checkout"
	actions: [
		{
			name:    "open-shop"
			variant: "navigation"
			navigation: {
				url: "https://shop.example.com"
				wait_for: {
					condition: "element_visible"
					target:    "#cart"
					timeout:   "5s"
				}
			}
		},
		{
			name:    "add-items"
			variant: "loop"
			loop: {
				source: "count"
				count:  3
				body: [
					{
						name:    "add"
						variant: "interaction"
						interaction: {
							selector: "#add-to-cart"
							kind:     "click"
						}
					},
				]
			}
		},
	]
}
`

func TestParseCUEWorkflow(t *testing.T) {
	path := writeFile(t, t.TempDir(), "checkout.cue", sampleCUEWorkflow)

	wf, err := NewCUEParser().ParseWorkflow(path)
	if err != nil {
		t.Fatalf("failed to parse workflow: %v", err)
	}
	if wf.Name != "checkout" {
		t.Errorf("name = %q, want checkout", wf.Name)
	}
	if len(wf.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(wf.Actions))
	}
	if got := wf.Actions[0].Navigation.WaitFor.Timeout; got != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", got)
	}

	loop := wf.Actions[1].Loop
	if loop == nil || loop.Source != workflow.LoopCount || loop.Count != 3 {
		t.Fatalf("loop payload not decoded: %+v", loop)
	}
	if len(loop.Body) != 1 || loop.Body[0].Interaction.Kind != workflow.InteractionClick {
		t.Fatalf("loop body not decoded: %+v", loop.Body)
	}
}

func TestParseCUETemplating(t *testing.T) {
	// CUE comprehensions expand into plain action lists.
	content := `
_pages: ["a", "b", "c"]

workflow: {
	name: "visit-pages"
	actions: [
		for p in _pages {
			name:    "visit-\(p)"
			variant: "navigation"
			navigation: url: "https://example.com/\(p)"
		},
	]
}
`
	wf, errs := NewCUEParser().ParseInline(content)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(wf.Actions) != 3 {
		t.Fatalf("expected 3 expanded actions, got %d", len(wf.Actions))
	}
	if wf.Actions[1].Navigation.URL != "https://example.com/b" {
		t.Errorf("interpolation failed: %q", wf.Actions[1].Navigation.URL)
	}
}

func TestParseCUERejectsBadVariant(t *testing.T) {
	content := `
workflow: {
	name: "bad"
	actions: [
		{
			name:    "open"
			variant: "teleport"
			navigation: url: "https://example.com"
		},
	]
}
`
	wf, errs := NewCUEParser().ParseInline(content)
	if wf != nil || len(errs) == 0 {
		t.Fatal("expected an unknown variant to be rejected")
	}
}

func TestParseCUERequiresWorkflowStruct(t *testing.T) {
	_, errs := NewCUEParser().ParseInline(`name: "loose"`)
	if len(errs) == 0 {
		t.Fatal("expected a definition without a workflow struct to be rejected")
	}
	if !strings.Contains(errs[0].Message, "workflow") {
		t.Errorf("unhelpful error: %q", errs[0].Message)
	}
}

func TestParseCUESyntaxErrorHasPosition(t *testing.T) {
	_, errs := NewCUEParser().ParseInline("workflow: {\n\tname: \"x\n}")
	if len(errs) == 0 {
		t.Fatal("expected a syntax error")
	}
	if errs[0].Line == 0 {
		t.Errorf("expected a line position, got %+v", errs[0])
	}
}

func TestSchemaRegistryCustomSchema(t *testing.T) {
	parser := NewCUEParser()
	reg := parser.schemaRegistry

	if err := reg.RegisterSchema("selector", `#Schema: {css: string & !=""}`); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}
	if _, ok := reg.GetSchema("selector"); !ok {
		t.Fatal("registered schema not found")
	}

	names := reg.ListSchemas()
	if len(names) != 3 {
		t.Errorf("expected 3 schemas, got %v", names)
	}
}
