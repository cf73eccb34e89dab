package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/webpilot/webpilot/pkg/workflow"
)

const sampleYAMLWorkflow = `
name: login
actions:
  - name: open-login
    variant: navigation
    navigation:
      url: "https://example.com/login"
      wait_for:
        condition: element_visible
        target: "#username"
        timeout: 5s
  - name: fill-username
    variant: interaction
    interaction:
      selector: "#username"
      kind: type
      value: "alice"
  - name: fill-password
    variant: interaction
    interaction:
      selector: "#password"
      kind: type
      credential_ref: site-password
  - name: submit
    variant: interaction
    interaction:
      selector: "button[type=submit]"
      kind: click
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadWorkflowYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "login.yaml", sampleYAMLWorkflow)

	wf, err := LoadWorkflow(path)
	if err != nil {
		t.Fatalf("failed to load workflow: %v", err)
	}
	if wf.Name != "login" {
		t.Errorf("name = %q, want login", wf.Name)
	}
	if len(wf.Actions) != 4 {
		t.Fatalf("expected 4 actions, got %d", len(wf.Actions))
	}

	nav := wf.Actions[0]
	if nav.Variant != workflow.VariantNavigation {
		t.Errorf("first action variant = %s, want navigation", nav.Variant)
	}
	if nav.Navigation.WaitFor == nil || nav.Navigation.WaitFor.Timeout != 5*time.Second {
		t.Errorf("wait_for timeout not decoded: %+v", nav.Navigation.WaitFor)
	}
	if wf.Actions[2].Interaction.CredentialRef != "site-password" {
		t.Errorf("credential_ref not decoded: %+v", wf.Actions[2].Interaction)
	}
}

func TestLoadWorkflowRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, t.TempDir(), "typo.yaml", `
name: typo
actions:
  - name: open
    varient: navigation
    navigation:
      url: "https://example.com"
`)

	if _, err := LoadWorkflow(path); err == nil {
		t.Fatal("expected a misspelled field to be rejected")
	}
}

func TestLoadWorkflowRejectsInvalidDefinition(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", `
name: bad
actions:
  - name: open
    variant: navigation
`)

	_, err := LoadWorkflow(path)
	if err == nil {
		t.Fatal("expected validation to reject the missing payload")
	}
	if !workflow.IsValidation(err) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestLoadWorkflowUnsupportedExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "wf.toml", "name = 'x'")

	if _, err := LoadWorkflow(path); err == nil {
		t.Fatal("expected unsupported extension to be rejected")
	}
}

func TestLoadWorkflowDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", strings.Replace(sampleYAMLWorkflow, "name: login", "name: second", 1))
	writeFile(t, dir, "a.yaml", sampleYAMLWorkflow)
	writeFile(t, dir, "notes.txt", "not a workflow")

	workflows, err := LoadWorkflowDir(dir)
	if err != nil {
		t.Fatalf("failed to load directory: %v", err)
	}
	if len(workflows) != 2 {
		t.Fatalf("expected 2 workflows, got %d", len(workflows))
	}
	if workflows[0].Name != "login" || workflows[1].Name != "second" {
		t.Errorf("expected file-name order, got %q then %q", workflows[0].Name, workflows[1].Name)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}
	if cfg.Driver.Backend != "cdp" {
		t.Errorf("default backend = %q, want cdp", cfg.Driver.Backend)
	}
	if !cfg.Driver.Headless {
		t.Error("default driver must be headless")
	}
	if cfg.Driver.WaitTimeout != 15*time.Second {
		t.Errorf("default wait timeout = %v", cfg.Driver.WaitTimeout)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "webpilot.yaml", `
driver:
  backend: webdriver
  remote_url: "http://127.0.0.1:4444"
  wait_timeout: 30s
credentials:
  env_prefix: MYAPP_SECRET_
telemetry:
  log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Driver.Backend != "webdriver" {
		t.Errorf("backend = %q", cfg.Driver.Backend)
	}
	if cfg.Driver.WaitTimeout != 30*time.Second {
		t.Errorf("wait_timeout = %v", cfg.Driver.WaitTimeout)
	}
	if cfg.Credentials.EnvPrefix != "MYAPP_SECRET_" {
		t.Errorf("env_prefix = %q", cfg.Credentials.EnvPrefix)
	}
	// Unset sections keep their defaults.
	if cfg.Storage.Path != "webpilot.db" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
}

func TestLoadConfigWebDriverNeedsRemoteURL(t *testing.T) {
	path := writeFile(t, t.TempDir(), "webpilot.yaml", `
driver:
  backend: webdriver
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected webdriver without remote_url to be rejected")
	}
}

func TestYAMLAndCUEProduceSameWorkflow(t *testing.T) {
	dir := t.TempDir()

	yamlPath := writeFile(t, dir, "scrape.yaml", `
name: scrape
actions:
  - name: open
    variant: navigation
    navigation:
      url: "https://example.com"
      wait_for:
        condition: element_visible
        target: "#content"
        timeout: 5s
  - name: grab
    variant: utility
    utility:
      kind: evaluate
      script: "document.querySelector('#content').innerText"
      result_key: content
`)
	cuePath := writeFile(t, dir, "scrape.cue", `
workflow: {
	name: "scrape"
	actions: [
		{
			name:    "open"
			variant: "navigation"
			navigation: {
				url: "https://example.com"
				wait_for: {
					condition: "element_visible"
					target:    "#content"
					timeout:   "5s"
				}
			}
		},
		{
			name:    "grab"
			variant: "utility"
			utility: {
				kind:       "evaluate"
				script:     "document.querySelector('#content').innerText"
				result_key: "content"
			}
		},
	]
}
`)

	fromYAML, err := LoadWorkflow(yamlPath)
	if err != nil {
		t.Fatalf("failed to load YAML workflow: %v", err)
	}
	fromCUE, err := LoadWorkflow(cuePath)
	if err != nil {
		t.Fatalf("failed to load CUE workflow: %v", err)
	}

	if !reflect.DeepEqual(fromYAML, fromCUE) {
		t.Errorf("equivalent definitions decoded differently:\nyaml: %+v\ncue:  %+v", fromYAML, fromCUE)
	}
}
