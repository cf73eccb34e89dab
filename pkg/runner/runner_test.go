package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/webpilot/webpilot/pkg/credentials"
	"github.com/webpilot/webpilot/pkg/driver"
	"github.com/webpilot/webpilot/pkg/telemetry"
	"github.com/webpilot/webpilot/pkg/workflow"
)

// fakeDriver is a scripted in-memory Browser for runner tests.
type fakeDriver struct {
	mu    sync.Mutex
	calls []string

	// elements maps selectors to how many elements match.
	elements map[string]int

	// failClicks fails the first N click calls.
	failClicks int

	// failNavigation fails every navigation to this URL.
	failNavigation string

	// evaluateResult is returned by Evaluate.
	evaluateResult any

	url string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		elements: make(map[string]int),
		url:      "https://example.com/",
	}
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDriver) recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.record("navigate " + url)
	if url == d.failNavigation {
		return fmt.Errorf("navigation to %s failed", url)
	}
	d.mu.Lock()
	d.url = url
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Find(_ context.Context, selector string) (driver.Element, error) {
	d.record("find " + selector)
	if d.elements[selector] == 0 {
		return driver.Element{}, fmt.Errorf("no element matches %q", selector)
	}
	return driver.Element{Selector: selector}, nil
}

func (d *fakeDriver) FindAll(_ context.Context, selector string) ([]driver.Element, error) {
	d.record("find_all " + selector)
	els := make([]driver.Element, d.elements[selector])
	for i := range els {
		els[i] = driver.Element{Selector: selector}
	}
	return els, nil
}

func (d *fakeDriver) Click(_ context.Context, el driver.Element) error {
	d.record("click " + el.Selector)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failClicks > 0 {
		d.failClicks--
		return fmt.Errorf("click on %q failed", el.Selector)
	}
	return nil
}

func (d *fakeDriver) Type(_ context.Context, el driver.Element, text string) error {
	d.record("type " + el.Selector)
	if el.Selector == "#echoes-input" {
		// Simulates a backend that echoes the typed text in its error.
		return fmt.Errorf("cannot type %q into %q", text, el.Selector)
	}
	return nil
}

func (d *fakeDriver) Select(_ context.Context, el driver.Element, value string) error {
	d.record("select " + el.Selector)
	return nil
}

func (d *fakeDriver) Hover(_ context.Context, el driver.Element) error {
	d.record("hover " + el.Selector)
	return nil
}

func (d *fakeDriver) WaitFor(_ context.Context, cond driver.WaitCondition, _ time.Duration) error {
	d.record(fmt.Sprintf("wait %s %s", cond.Kind, cond.Target))
	if cond.Kind == driver.WaitElementVisible && d.elements[cond.Target] == 0 {
		return fmt.Errorf("element %q never became visible", cond.Target)
	}
	return nil
}

func (d *fakeDriver) CurrentURL(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *fakeDriver) Screenshot(_ context.Context) ([]byte, error) {
	d.record("screenshot")
	return []byte("png"), nil
}

func (d *fakeDriver) Evaluate(_ context.Context, script string) (any, error) {
	d.record("evaluate")
	return d.evaluateResult, nil
}

func (d *fakeDriver) Close(_ context.Context) error {
	d.record("close")
	return nil
}

// fakeTemplates resolves templates from a fixture map.
type fakeTemplates struct {
	workflows map[string]*workflow.Workflow
}

func (f *fakeTemplates) LookupWorkflow(_ context.Context, ref string) (*workflow.Workflow, error) {
	wf, ok := f.workflows[ref]
	if !ok {
		return nil, workflow.NewTemplateNotFoundError(ref)
	}
	return wf, nil
}

func newTestRunner(d driver.Browser, opts ...func(*Options)) *Runner {
	o := Options{
		Driver:      d,
		Credentials: credentials.NewStatic(map[string]string{"site-password": "hunter2"}),
		Logger:      zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o)
}

func navAction(name, url string) workflow.Action {
	return workflow.Action{
		Name:       name,
		Variant:    workflow.VariantNavigation,
		Navigation: &workflow.NavigationPayload{URL: url},
	}
}

func clickAction(name, selector string) workflow.Action {
	return workflow.Action{
		Name:    name,
		Variant: workflow.VariantInteraction,
		Interaction: &workflow.InteractionPayload{
			Selector: selector,
			Kind:     workflow.InteractionClick,
		},
	}
}

func wrap(name string, policy workflow.ErrorPolicy, actions ...workflow.Action) workflow.Action {
	return workflow.Action{
		Name:    name,
		Variant: workflow.VariantErrorHandling,
		ErrorHandling: &workflow.ErrorHandlingPayload{
			Actions: actions,
			Policy:  policy,
		},
	}
}

func TestRunAllLeavesSucceed(t *testing.T) {
	d := newFakeDriver()
	d.elements["#submit"] = 1
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "happy-path",
		Actions: []workflow.Action{
			navAction("open", "https://example.com/login"),
			clickAction("submit", "#submit"),
			{
				Name:    "note",
				Variant: workflow.VariantUtility,
				Utility: &workflow.UtilityPayload{Kind: workflow.UtilityLog, Message: "done"},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Status != RunSucceeded {
		t.Fatalf("expected succeeded, got %s", report.Status)
	}
	if len(report.Result.Children) != 3 {
		t.Fatalf("trace length %d, want 3", len(report.Result.Children))
	}
	for i, want := range []string{"open", "submit", "note"} {
		if got := report.Result.Children[i].ActionName; got != want {
			t.Fatalf("trace[%d] = %q, want %q (declared order must be preserved)", i, got, want)
		}
	}
}

func TestConditionalSkippedWithoutElse(t *testing.T) {
	d := newFakeDriver() // "#banner" matches nothing
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "maybe-dismiss",
		Actions: []workflow.Action{
			{
				Name:    "dismiss-banner",
				Variant: workflow.VariantConditional,
				Conditional: &workflow.ConditionalPayload{
					Predicate: workflow.Predicate{Kind: workflow.PredicateElementExists, Target: "#banner"},
					Then:      []workflow.Action{clickAction("close", "#banner .close")},
				},
			},
			navAction("continue", "https://example.com/next"),
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Status != RunSucceeded {
		t.Fatalf("a skipped branch alone must not fail the run, got %s", report.Status)
	}

	cond := report.Result.Children[0]
	if cond.Status != workflow.StatusSkipped {
		t.Fatalf("expected skipped conditional, got %s", cond.Status)
	}
	if len(cond.Children) != 0 {
		t.Fatalf("skipped conditional must have no children, got %d", len(cond.Children))
	}
}

func TestConditionalElseBranch(t *testing.T) {
	d := newFakeDriver()
	d.elements["#fallback"] = 1
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "branching",
		Actions: []workflow.Action{
			{
				Name:    "pick-branch",
				Variant: workflow.VariantConditional,
				Conditional: &workflow.ConditionalPayload{
					Predicate: workflow.Predicate{Kind: workflow.PredicateElementExists, Target: "#missing"},
					Then:      []workflow.Action{clickAction("then", "#primary")},
					Else:      []workflow.Action{clickAction("else", "#fallback")},
				},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	cond := report.Result.Children[0]
	if len(cond.Children) != 1 || cond.Children[0].ActionName != "else" {
		t.Fatalf("expected the else branch to run, got %+v", cond.Children)
	}
}

func TestLoopFixedCount(t *testing.T) {
	d := newFakeDriver()
	d.elements["#next"] = 1
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "paginate",
		Actions: []workflow.Action{
			{
				Name:    "next-pages",
				Variant: workflow.VariantLoop,
				Loop: &workflow.LoopPayload{
					Source: workflow.LoopCount,
					Count:  4,
					Body:   []workflow.Action{clickAction("next", "#next")},
				},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	loop := report.Result.Children[0]
	if len(loop.Children) != 4 {
		t.Fatalf("expected 4 iterations, got %d", len(loop.Children))
	}
	for i, child := range loop.Children {
		want := fmt.Sprintf("next-pages#%d", i)
		if child.ActionName != want {
			t.Fatalf("iteration %d named %q, want %q (iteration order must be preserved)", i, child.ActionName, want)
		}
	}
}

func TestForEachZeroMatches(t *testing.T) {
	d := newFakeDriver() // ".row" matches nothing
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "scrape-rows",
		Actions: []workflow.Action{
			{
				Name:    "rows",
				Variant: workflow.VariantLoop,
				Loop: &workflow.LoopPayload{
					Source:   workflow.LoopForEach,
					Selector: ".row",
					Body:     []workflow.Action{clickAction("open-row", ".row a")},
				},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	loop := report.Result.Children[0]
	if loop.Status != workflow.StatusSuccess {
		t.Fatalf("zero-match for_each must succeed, got %s", loop.Status)
	}
	if len(loop.Children) != 0 {
		t.Fatalf("zero-match for_each must have zero children, got %d", len(loop.Children))
	}
}

func TestWhileLoopGuard(t *testing.T) {
	d := newFakeDriver()
	d.elements["#spinner"] = 1 // never goes away
	r := newTestRunner(d, func(o *Options) { o.MaxLoopIterations = 5 })

	wf := &workflow.Workflow{
		Name: "spin",
		Actions: []workflow.Action{
			{
				Name:    "wait-for-spinner",
				Variant: workflow.VariantLoop,
				Loop: &workflow.LoopPayload{
					Source:    workflow.LoopWhile,
					Predicate: &workflow.Predicate{Kind: workflow.PredicateElementExists, Target: "#spinner"},
					Body: []workflow.Action{{
						Name:    "tick",
						Variant: workflow.VariantUtility,
						Utility: &workflow.UtilityPayload{Kind: workflow.UtilityLog, Message: "still spinning"},
					}},
				},
			},
		},
	}

	_, err := r.Run(context.Background(), wf)
	if err == nil {
		t.Fatal("expected the iteration guard to trip")
	}
	if !workflow.IsEngine(err) {
		t.Fatalf("guard breach must surface as an engine error, got %v", err)
	}
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	d := newFakeDriver()
	d.elements["#flaky"] = 1
	d.failClicks = 2
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "retry-click",
		Actions: []workflow.Action{
			{
				Name:    "click-with-retry",
				Variant: workflow.VariantErrorHandling,
				ErrorHandling: &workflow.ErrorHandlingPayload{
					Actions:     []workflow.Action{clickAction("flaky", "#flaky")},
					Policy:      workflow.PolicyRetry,
					MaxAttempts: 3,
					BackoffBase: time.Millisecond,
				},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Status != RunSucceeded {
		t.Fatalf("expected overall success, got %s", report.Status)
	}

	wrapper := report.Result.Children[0]
	if len(wrapper.Children) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", len(wrapper.Children))
	}
	for i, status := range []workflow.Status{workflow.StatusFailure, workflow.StatusFailure, workflow.StatusSuccess} {
		if wrapper.Children[i].Status != status {
			t.Fatalf("attempt %d status %s, want %s", i+1, wrapper.Children[i].Status, status)
		}
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	d := newFakeDriver()
	d.elements["#flaky"] = 1
	d.failClicks = 10
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "retry-click",
		Actions: []workflow.Action{
			{
				Name:    "click-with-retry",
				Variant: workflow.VariantErrorHandling,
				ErrorHandling: &workflow.ErrorHandlingPayload{
					Actions:     []workflow.Action{clickAction("flaky", "#flaky")},
					Policy:      workflow.PolicyRetry,
					MaxAttempts: 2,
					BackoffBase: time.Millisecond,
				},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Status != RunFailed {
		t.Fatalf("expected failure after exhausting attempts, got %s", report.Status)
	}
	if got := len(report.Result.Children[0].Children); got != 2 {
		t.Fatalf("expected 2 recorded attempts, got %d", got)
	}
}

func TestContinuePolicyAllowsNextSibling(t *testing.T) {
	d := newFakeDriver()
	d.failNavigation = "https://example.com/broken"
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "tolerant",
		Actions: []workflow.Action{
			wrap("tolerate", workflow.PolicyContinue, navAction("broken", "https://example.com/broken")),
			navAction("after", "https://example.com/next"),
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Status != RunSucceeded {
		t.Fatalf("suppressed failure must not fail the run, got %s", report.Status)
	}
	if len(report.Result.Children) != 2 {
		t.Fatalf("next sibling must still execute, trace length %d", len(report.Result.Children))
	}

	wrapper := report.Result.Children[0]
	if wrapper.Status != workflow.StatusSkipped {
		t.Fatalf("continue wrapper must report skipped, got %s", wrapper.Status)
	}
	if len(wrapper.Children) != 1 || !wrapper.Children[0].Failed() {
		t.Fatal("the suppressed failure must stay recorded in the wrapper's children")
	}
}

func TestAbortPolicyStopsSiblings(t *testing.T) {
	d := newFakeDriver()
	d.failNavigation = "https://example.com/broken"
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "strict",
		Actions: []workflow.Action{
			wrap("guard", workflow.PolicyAbort, navAction("broken", "https://example.com/broken")),
			navAction("after", "https://example.com/next"),
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Status != RunFailed {
		t.Fatalf("expected failed run, got %s", report.Status)
	}
	if len(report.Result.Children) != 1 {
		t.Fatalf("sibling after an aborted failure must not run, trace length %d", len(report.Result.Children))
	}
	for _, call := range d.recorded() {
		if call == "navigate https://example.com/next" {
			t.Fatal("driver must never see the sibling after an abort")
		}
	}
}

func TestFailFastWithoutWrapper(t *testing.T) {
	d := newFakeDriver()
	d.failNavigation = "https://example.com/broken"
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "bare",
		Actions: []workflow.Action{
			navAction("broken", "https://example.com/broken"),
			navAction("after", "https://example.com/next"),
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Status != RunFailed {
		t.Fatalf("expected failed run, got %s", report.Status)
	}
	// "failed at step 1" is distinguishable from "never reached step 2":
	// the unattempted action is absent, not marked failed.
	if len(report.Result.Children) != 1 {
		t.Fatalf("unattempted actions must be absent from the trace, length %d", len(report.Result.Children))
	}
}

func TestCredentialNotFoundSkipsDriver(t *testing.T) {
	d := newFakeDriver()
	d.elements["#password"] = 1
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "login",
		Actions: []workflow.Action{
			{
				Name:    "fill-password",
				Variant: workflow.VariantInteraction,
				Interaction: &workflow.InteractionPayload{
					Selector:      "#password",
					Kind:          workflow.InteractionType,
					CredentialRef: "unknown-secret",
				},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	res := report.Result.Children[0]
	if res.Kind != workflow.ErrorKindCredentialNotFound {
		t.Fatalf("expected credential_not_found failure, got %s/%s", res.Status, res.Kind)
	}
	if calls := d.recorded(); len(calls) != 0 {
		t.Fatalf("driver must not be invoked for the failed action, saw %v", calls)
	}
}

func TestSecretNeverReachesTrace(t *testing.T) {
	d := newFakeDriver()
	d.elements["#echoes-input"] = 1
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "login",
		Actions: []workflow.Action{
			{
				Name:    "fill-password",
				Variant: workflow.VariantInteraction,
				Interaction: &workflow.InteractionPayload{
					Selector:      "#echoes-input",
					Kind:          workflow.InteractionType,
					CredentialRef: "site-password",
				},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	res := report.Result.Children[0]
	if !res.Failed() {
		t.Fatalf("expected the echoing backend to fail the action, got %s", res.Status)
	}
	if strings.Contains(res.Message, "hunter2") {
		t.Fatalf("resolved secret leaked into the trace: %q", res.Message)
	}
	if !strings.Contains(res.Message, "[redacted]") {
		t.Fatalf("expected redaction marker in %q", res.Message)
	}
}

func TestTemplateExpansion(t *testing.T) {
	d := newFakeDriver()
	d.elements["#accept"] = 1
	templates := &fakeTemplates{workflows: map[string]*workflow.Workflow{
		"accept-cookies": {
			Name:    "accept-cookies",
			Actions: []workflow.Action{clickAction("accept", "#accept")},
		},
	}}
	r := newTestRunner(d, func(o *Options) { o.Templates = templates })

	wf := &workflow.Workflow{
		Name: "with-template",
		Actions: []workflow.Action{
			{
				Name:     "cookies",
				Variant:  workflow.VariantTemplate,
				Template: &workflow.TemplatePayload{WorkflowRef: "accept-cookies"},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	tpl := report.Result.Children[0]
	if tpl.Status != workflow.StatusSuccess {
		t.Fatalf("expected expanded template to succeed, got %s: %s", tpl.Status, tpl.Message)
	}
	if len(tpl.Children) != 1 || tpl.Children[0].ActionName != "accept" {
		t.Fatalf("expected inlined child trace, got %+v", tpl.Children)
	}
}

func TestTemplateNotFound(t *testing.T) {
	d := newFakeDriver()
	r := newTestRunner(d, func(o *Options) {
		o.Templates = &fakeTemplates{workflows: map[string]*workflow.Workflow{}}
	})

	wf := &workflow.Workflow{
		Name: "with-template",
		Actions: []workflow.Action{
			{
				Name:     "cookies",
				Variant:  workflow.VariantTemplate,
				Template: &workflow.TemplatePayload{WorkflowRef: "missing"},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("missing template must not crash the run: %v", err)
	}
	res := report.Result.Children[0]
	if res.Kind != workflow.ErrorKindTemplateNotFound {
		t.Fatalf("expected template_not_found failure, got %s/%s", res.Status, res.Kind)
	}
}

func TestCancellationBetweenActions(t *testing.T) {
	d := newFakeDriver()
	ctx, cancel := context.WithCancel(context.Background())
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "cancel-me",
		Actions: []workflow.Action{
			navAction("first", "https://example.com/a"),
			{
				Name:    "cancel",
				Variant: workflow.VariantUtility,
				Utility: &workflow.UtilityPayload{Kind: workflow.UtilityScript, Script: "x = 1"},
			},
			navAction("never", "https://example.com/b"),
		},
	}
	// Cancel from inside the second action's evaluator so the third is
	// never dispatched.
	r.opts.Scripts = scriptFunc(func(context.Context, string, map[string]any) (map[string]any, error) {
		cancel()
		return map[string]any{}, nil
	})

	report, err := r.Run(ctx, wf)
	if err != nil {
		t.Fatalf("cancellation must yield a structured report, got %v", err)
	}
	if report.Status != RunCancelled {
		t.Fatalf("expected cancelled status, got %s", report.Status)
	}
	if len(report.Result.Children) != 2 {
		t.Fatalf("trace must hold the executed prefix, length %d", len(report.Result.Children))
	}
	for _, call := range d.recorded() {
		if call == "navigate https://example.com/b" {
			t.Fatal("action after cancellation must not reach the driver")
		}
	}
}

type scriptFunc func(ctx context.Context, script string, input map[string]any) (map[string]any, error)

func (f scriptFunc) EvaluateScript(ctx context.Context, script string, input map[string]any) (map[string]any, error) {
	return f(ctx, script, input)
}

func TestEvaluateStoresData(t *testing.T) {
	d := newFakeDriver()
	d.evaluateResult = "Welcome back, Alice"
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "scrape",
		Actions: []workflow.Action{
			{
				Name:    "read-greeting",
				Variant: workflow.VariantUtility,
				Utility: &workflow.UtilityPayload{
					Kind:      workflow.UtilityEvaluate,
					Script:    `document.querySelector("h1").textContent`,
					ResultKey: "greeting",
				},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := report.Result.Data["greeting"]; got != "Welcome back, Alice" {
		t.Fatalf("extracted value not in run data, got %v", got)
	}
}

func TestValidationFailsBeforeDriver(t *testing.T) {
	d := newFakeDriver()
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name:    "malformed",
		Actions: []workflow.Action{{Name: "", Variant: workflow.VariantNavigation, Navigation: &workflow.NavigationPayload{URL: "https://x"}}},
	}

	_, err := r.Run(context.Background(), wf)
	if !workflow.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls := d.recorded(); len(calls) != 0 {
		t.Fatalf("a partially invalid workflow must never execute, saw %v", calls)
	}
}

// Running the same workflow against two independent drivers with
// identical scripted responses must produce structurally identical
// traces.
func TestDeterministicTraces(t *testing.T) {
	build := func() (*Runner, *fakeDriver) {
		d := newFakeDriver()
		d.elements["#submit"] = 1
		d.elements[".row"] = 3
		return newTestRunner(d), d
	}

	wf := &workflow.Workflow{
		Name: "deterministic",
		Actions: []workflow.Action{
			navAction("open", "https://example.com/"),
			{
				Name:    "rows",
				Variant: workflow.VariantLoop,
				Loop: &workflow.LoopPayload{
					Source:   workflow.LoopForEach,
					Selector: ".row",
					Body:     []workflow.Action{clickAction("submit", "#submit")},
				},
			},
		},
	}

	r1, _ := build()
	r2, _ := build()
	report1, err1 := r1.Run(context.Background(), wf)
	report2, err2 := r2.Run(context.Background(), wf)
	if err1 != nil || err2 != nil {
		t.Fatalf("runs failed: %v, %v", err1, err2)
	}

	var shape func(res workflow.ActionResult) string
	shape = func(res workflow.ActionResult) string {
		parts := []string{res.ActionName + "=" + string(res.Status)}
		for _, c := range res.Children {
			parts = append(parts, shape(c))
		}
		return "(" + strings.Join(parts, " ") + ")"
	}
	if shape(report1.Result) != shape(report2.Result) {
		t.Fatalf("traces differ:\n%s\n%s", shape(report1.Result), shape(report2.Result))
	}
}

func TestEmptyLoopBody(t *testing.T) {
	d := newFakeDriver()
	r := newTestRunner(d)

	wf := &workflow.Workflow{
		Name: "noop-loop",
		Actions: []workflow.Action{
			{
				Name:    "empty",
				Variant: workflow.VariantLoop,
				Loop:    &workflow.LoopPayload{Source: workflow.LoopCount, Count: 3, Body: []workflow.Action{}},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	loop := report.Result.Children[0]
	if loop.Status != workflow.StatusSuccess {
		t.Fatalf("empty body iterations must succeed, got %s", loop.Status)
	}
	if len(loop.Children) != 3 {
		t.Fatalf("expected 3 empty iterations, got %d", len(loop.Children))
	}
}

// failingTemplates simulates a lookup collaborator whose backing store
// dies mid-run.
type failingTemplates struct{ err error }

func (f *failingTemplates) LookupWorkflow(context.Context, string) (*workflow.Workflow, error) {
	return nil, f.err
}

func TestUnclassifiedResolverErrorIsNotCancellation(t *testing.T) {
	d := newFakeDriver()
	r := newTestRunner(d, func(o *Options) {
		o.Templates = &failingTemplates{err: fmt.Errorf("query workflow: database is locked")}
	})

	wf := &workflow.Workflow{
		Name: "with-template",
		Actions: []workflow.Action{
			{
				Name:     "cookies",
				Variant:  workflow.VariantTemplate,
				Template: &workflow.TemplatePayload{WorkflowRef: "accept-cookies"},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err == nil {
		t.Fatal("a broken lookup must surface as an error, not a cancelled run")
	}
	if !workflow.IsEngine(err) {
		t.Fatalf("expected engine classification, got %v", err)
	}
	if report != nil {
		t.Fatalf("no report expected for an unclassified fault, got status %s", report.Status)
	}
}

func TestScriptFailureIsScriptKind(t *testing.T) {
	d := newFakeDriver()
	r := newTestRunner(d)
	r.opts.Scripts = scriptFunc(func(context.Context, string, map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("name 'rows' is not defined")
	})

	wf := &workflow.Workflow{
		Name: "bad-script",
		Actions: []workflow.Action{
			{
				Name:    "transform",
				Variant: workflow.VariantUtility,
				Utility: &workflow.UtilityPayload{Kind: workflow.UtilityScript, Script: "x = rows"},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("a failing script must not crash the run: %v", err)
	}
	if report.Status != RunFailed {
		t.Fatalf("expected failed run, got %s", report.Status)
	}
	res := report.Result.Children[0]
	if res.Kind != workflow.ErrorKindScript {
		t.Fatalf("script failures carry the script kind, got %s/%s", res.Status, res.Kind)
	}
}

func TestActionTelemetryRecorded(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("telemetry setup failed: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	var mu sync.Mutex
	var seen []string
	tel.Events.Subscribe(func(e telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type+" "+e.ActionName)
	}, nil)

	d := newFakeDriver()
	d.elements["#submit"] = 1
	d.failClicks = 1
	r := newTestRunner(d, func(o *Options) { o.Telemetry = tel })

	wf := &workflow.Workflow{
		Name: "observed",
		Actions: []workflow.Action{
			navAction("open", "https://example.com/"),
			{
				Name:    "retry-submit",
				Variant: workflow.VariantErrorHandling,
				ErrorHandling: &workflow.ErrorHandlingPayload{
					Actions:     []workflow.Action{clickAction("submit", "#submit")},
					Policy:      workflow.PolicyRetry,
					MaxAttempts: 2,
					BackoffBase: time.Millisecond,
				},
			},
		},
	}

	report, err := r.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Status != RunSucceeded {
		t.Fatalf("expected success, got %s", report.Status)
	}

	mu.Lock()
	events := strings.Join(seen, "\n")
	mu.Unlock()
	for _, want := range []string{
		"action.started open",
		"action.completed open",
		"action.failed submit",
		"action.completed submit",
		"action.completed retry-submit",
	} {
		if !strings.Contains(events, want) {
			t.Fatalf("missing event %q, saw:\n%s", want, events)
		}
	}

	families, err := tel.Metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	got := make(map[string]bool, len(families))
	for _, mf := range families {
		got[mf.GetName()] = true
	}
	for _, want := range []string{
		"webpilot_actions_executed_total",
		"webpilot_action_duration_seconds",
		"webpilot_driver_calls_total",
		"webpilot_retry_attempts_total",
	} {
		if !got[want] {
			t.Fatalf("metric family %s not recorded", want)
		}
	}
}
