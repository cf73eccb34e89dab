// Package runner interprets a workflow as a tree of actions and
// produces a deterministic execution trace. Dispatch is depth-first and
// strictly sequential: browser backends are single-session and the
// ordering of UI interactions is load-bearing, so no two actions of one
// run ever execute concurrently. Independent runs may execute
// concurrently as long as each owns its own driver; the runner holds no
// process-wide state.
package runner

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/webpilot/webpilot/pkg/credentials"
	"github.com/webpilot/webpilot/pkg/driver"
	"github.com/webpilot/webpilot/pkg/telemetry"
	"github.com/webpilot/webpilot/pkg/workflow"
)

// DefaultMaxLoopIterations is the guard against while-predicates that
// never become false. Breaching it is reported as an engine error: an
// unbounded loop is an authored-workflow bug the engine flags rather
// than assumes.
const DefaultMaxLoopIterations = 1000

// predicateProbeTimeout bounds structural predicate checks so a
// conditional over a missing element decides quickly instead of
// consuming the driver's full wait budget.
const predicateProbeTimeout = 2 * time.Second

// TemplateResolver looks up a workflow referenced by a template action.
// Backed by the workflow store in production and by fixtures in tests.
type TemplateResolver interface {
	// LookupWorkflow returns the workflow registered under the given
	// reference, or a template_not_found workflow error.
	LookupWorkflow(ctx context.Context, ref string) (*workflow.Workflow, error)
}

// ScriptEvaluator runs engine-side scripts for script utility actions.
type ScriptEvaluator interface {
	// EvaluateScript runs the script with the given input bindings and
	// returns its exported values.
	EvaluateScript(ctx context.Context, script string, input map[string]any) (map[string]any, error)
}

// Options configures a Runner. Driver and Credentials are borrowed for
// the duration of Run calls; the runner owns nothing but the trace it
// builds.
type Options struct {
	// Driver is the browser capability the run executes against.
	Driver driver.Browser

	// Credentials resolves credential references at the point of use.
	Credentials credentials.Resolver

	// Templates resolves template actions. Optional; template actions
	// fail with template_not_found when nil.
	Templates TemplateResolver

	// Scripts evaluates script utility actions. Optional; script
	// actions fail when nil.
	Scripts ScriptEvaluator

	// MaxLoopIterations overrides the while-loop guard. Zero selects
	// DefaultMaxLoopIterations.
	MaxLoopIterations int

	// Logger receives structured execution logs.
	Logger zerolog.Logger

	// Telemetry records a span, metrics, and bus events per action and
	// per driver call. Optional; nil disables instrumentation.
	Telemetry *telemetry.Telemetry

	// RunID overrides the generated run identifier, for callers that
	// register the run elsewhere before executing it. Empty generates
	// a fresh UUID per Run call.
	RunID string
}

// RunStatus is the terminal status of one workflow run.
type RunStatus string

const (
	// RunSucceeded indicates every non-suppressed action succeeded.
	RunSucceeded RunStatus = "succeeded"

	// RunFailed indicates an unrecovered action failure.
	RunFailed RunStatus = "failed"

	// RunCancelled indicates the caller cancelled between actions.
	RunCancelled RunStatus = "cancelled"
)

// Report is the outcome of one workflow run: the composite trace plus
// run-level metadata. The trace accounts for every action attempted;
// actions never reached are simply absent.
type Report struct {
	// RunID is the unique identifier of this run.
	RunID string `json:"run_id"`

	// WorkflowID is the ID of the executed workflow.
	WorkflowID string `json:"workflow_id"`

	// WorkflowName is the name of the executed workflow.
	WorkflowName string `json:"workflow_name"`

	// Status is the terminal run status.
	Status RunStatus `json:"status"`

	// Result is the composite root of the execution trace.
	Result workflow.ActionResult `json:"result"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total wall-clock run time.
	Duration time.Duration `json:"duration"`
}

// Runner executes workflows against a browser driver. Instantiate one
// per run, or reuse across sequential runs of the same driver.
type Runner struct {
	opts Options
	log  zerolog.Logger
}

// New creates a Runner from options.
func New(opts Options) *Runner {
	if opts.MaxLoopIterations <= 0 {
		opts.MaxLoopIterations = DefaultMaxLoopIterations
	}
	if opts.Telemetry != nil && opts.Driver != nil {
		opts.Driver = instrumentBrowser(opts.Driver)
	}
	return &Runner{
		opts: opts,
		log:  opts.Logger.With().Str("component", "runner").Logger(),
	}
}

// runState is the mutable state threaded through one run: the shared
// data map later actions read values from, plus the run identifier
// stamped onto published events.
type runState struct {
	runID string
	data  map[string]any
}

// Run validates and executes the workflow, returning the execution
// report. Validation failures and engine errors return a non-nil error
// before or instead of a report; everything the user's workflow did
// wrong during execution is represented inside the report's trace.
func (r *Runner) Run(ctx context.Context, wf *workflow.Workflow) (*Report, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	if r.opts.Driver == nil {
		return nil, workflow.NewEngineError("runner has no driver", nil)
	}

	// Defensive copy: a caller mutating its workflow mid-run must not
	// change execution.
	wf = wf.Clone()

	runID := r.opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	if r.opts.Telemetry != nil {
		ctx = r.opts.Telemetry.WithContext(ctx)
	}
	log := r.log.With().
		Str("run_id", runID).
		Str("workflow", wf.Name).
		Logger()
	log.Info().Int("actions", len(wf.Actions)).Msg("run started")

	started := time.Now()
	st := &runState{runID: runID, data: make(map[string]any)}
	children, err := r.runSequence(ctx, wf.Actions, st)
	completed := time.Now()

	report := &Report{
		RunID:        runID,
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		StartedAt:    started,
		CompletedAt:  completed,
		Duration:     completed.Sub(started),
	}

	switch {
	case err != nil && workflow.IsEngine(err):
		return nil, err
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Context cancellation between actions. The executed prefix
		// stays in the trace; unattempted actions are absent.
		report.Status = RunCancelled
		report.Result = workflow.ActionResult{
			ActionName: wf.Name,
			Status:     workflow.StatusFailure,
			Message:    "run cancelled before completion",
			Children:   children,
			StartedAt:  started,
			Duration:   report.Duration,
		}
	case err != nil:
		// A collaborator returned an error it never classified. That
		// is a fault, not a cancellation; surface it as one.
		return nil, workflow.NewEngineError("unclassified error during run", err)
	default:
		status := workflow.Aggregate(children)
		report.Result = workflow.ActionResult{
			ActionName: wf.Name,
			Status:     status,
			Data:       st.data,
			Children:   children,
			StartedAt:  started,
			Duration:   report.Duration,
		}
		if status == workflow.StatusSuccess {
			report.Status = RunSucceeded
		} else {
			report.Status = RunFailed
			report.Result.Kind = firstFailureKind(children)
			report.Result.Message = firstFailureMessage(children)
		}
	}

	log.Info().
		Str("status", string(report.Status)).
		Dur("duration", report.Duration).
		Msg("run finished")
	return report, nil
}

// runSequence executes an ordered action sequence depth-first. It
// returns the results of every attempted action, stopping after the
// first unrecovered failure (fail-fast) or on cancellation. A non-nil
// error is either a context error or an engine error; user-content
// failures live inside the results.
func (r *Runner) runSequence(ctx context.Context, actions []workflow.Action, st *runState) ([]workflow.ActionResult, error) {
	results := make([]workflow.ActionResult, 0, len(actions))
	for i := range actions {
		// Cancellation is checked between actions only; an in-flight
		// driver call is allowed to complete.
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := r.runAction(ctx, &actions[i], st)
		if err != nil {
			return results, err
		}
		results = append(results, res)

		if res.Failed() {
			r.log.Debug().
				Str("action", res.ActionName).
				Str("kind", string(res.Kind)).
				Msg("stopping sequence after failure")
			break
		}
	}
	return results, nil
}

// runAction dispatches one action by variant and stamps timing onto the
// result. This is the single point of control: actions never reach the
// driver except through here.
func (r *Runner) runAction(ctx context.Context, a *workflow.Action, st *runState) (workflow.ActionResult, error) {
	started := time.Now()
	log := r.log.With().Str("action", a.Name).Str("variant", string(a.Variant)).Logger()
	log.Debug().Msg("dispatching action")

	ctx = telemetry.WithActionContext(ctx, st.runID, a.Name, string(a.Variant))

	var res workflow.ActionResult
	var err error
	switch a.Variant {
	case workflow.VariantNavigation:
		res = r.runNavigation(ctx, a)
	case workflow.VariantInteraction:
		res = r.runInteraction(ctx, a)
	case workflow.VariantUtility:
		res, err = r.runUtility(ctx, a, st)
	case workflow.VariantConditional:
		res, err = r.runConditional(ctx, a, st)
	case workflow.VariantLoop:
		res, err = r.runLoop(ctx, a, st)
	case workflow.VariantTemplate:
		res, err = r.runTemplate(ctx, a, st)
	case workflow.VariantErrorHandling:
		res, err = r.runErrorHandling(ctx, a, st)
	default:
		// Validation rejects unknown variants; reaching one here is an
		// engine bug.
		err = workflow.NewEngineError(
			fmt.Sprintf("unhandled action variant %q", a.Variant), nil).WithAction(a.Name)
	}
	if err != nil {
		telemetry.EndActionContext(ctx, st.runID, a.Name, string(a.Variant), string(workflow.StatusFailure), err)
		return workflow.ActionResult{}, err
	}

	res.StartedAt = started
	res.Duration = time.Since(started)

	// Failure messages are already scrubbed of resolved secrets, so
	// they are safe to hand to the event bus.
	var endErr error
	if res.Failed() {
		endErr = errors.New(res.Message)
	}
	telemetry.EndActionContext(ctx, st.runID, a.Name, string(a.Variant), string(res.Status), endErr)

	log.Debug().
		Str("status", string(res.Status)).
		Dur("duration", res.Duration).
		Msg("action finished")
	return res, nil
}

func (r *Runner) runNavigation(ctx context.Context, a *workflow.Action) workflow.ActionResult {
	nav := a.Navigation
	if err := r.opts.Driver.Navigate(ctx, nav.URL); err != nil {
		return workflow.Failure(*a, workflow.ErrorKindDriver, err.Error())
	}
	if nav.WaitFor != nil {
		cond := driver.WaitCondition{
			Kind:   driver.WaitKind(nav.WaitFor.Condition),
			Target: nav.WaitFor.Target,
		}
		if err := r.opts.Driver.WaitFor(ctx, cond, nav.WaitFor.Timeout); err != nil {
			return workflow.Failure(*a, workflow.ErrorKindDriver, err.Error())
		}
	}
	return workflow.Success(*a, fmt.Sprintf("navigated to %s", nav.URL))
}

func (r *Runner) runInteraction(ctx context.Context, a *workflow.Action) workflow.ActionResult {
	in := a.Interaction

	// Resolve the credential before any driver interaction: a missing
	// reference must fail the action without touching the page.
	value := in.Value
	secret := false
	if in.CredentialRef != "" {
		if r.opts.Credentials == nil {
			r.recordCredentialLookup("miss")
			return workflow.Failure(*a, workflow.ErrorKindCredentialNotFound,
				fmt.Sprintf("credential %q referenced but no resolver configured", in.CredentialRef))
		}
		resolved, err := r.opts.Credentials.Resolve(ctx, in.CredentialRef)
		if err != nil {
			r.recordCredentialLookup("miss")
			return workflow.Failure(*a, workflow.KindOf(err), err.Error())
		}
		r.recordCredentialLookup("resolved")
		value = resolved
		secret = true
	}

	el, err := r.opts.Driver.Find(ctx, in.Selector)
	if err != nil {
		return workflow.Failure(*a, workflow.ErrorKindDriver, err.Error())
	}

	switch in.Kind {
	case workflow.InteractionClick:
		err = r.opts.Driver.Click(ctx, el)
	case workflow.InteractionType:
		err = r.opts.Driver.Type(ctx, el, value)
	case workflow.InteractionSelect:
		err = r.opts.Driver.Select(ctx, el, value)
	case workflow.InteractionHover:
		err = r.opts.Driver.Hover(ctx, el)
	}
	if err != nil {
		// Driver messages never echo input, but scrub anyway: a
		// resolved secret must not reach the trace.
		msg := err.Error()
		if secret && value != "" {
			msg = strings.ReplaceAll(msg, value, "[redacted]")
		}
		return workflow.Failure(*a, workflow.ErrorKindDriver, msg)
	}

	if secret {
		return workflow.Success(*a, fmt.Sprintf("%s on %s with credential %q", in.Kind, in.Selector, in.CredentialRef))
	}
	return workflow.Success(*a, fmt.Sprintf("%s on %s", in.Kind, in.Selector))
}

func (r *Runner) runUtility(ctx context.Context, a *workflow.Action, st *runState) (workflow.ActionResult, error) {
	ut := a.Utility
	switch ut.Kind {
	case workflow.UtilityWait:
		select {
		case <-time.After(ut.Duration):
		case <-ctx.Done():
			return workflow.ActionResult{}, ctx.Err()
		}
		return workflow.Success(*a, fmt.Sprintf("waited %s", ut.Duration)), nil

	case workflow.UtilityScreenshot:
		img, err := r.opts.Driver.Screenshot(ctx)
		if err != nil {
			return workflow.Failure(*a, workflow.ErrorKindDriver, err.Error()), nil
		}
		res := workflow.Success(*a, fmt.Sprintf("captured screenshot (%d bytes)", len(img)))
		res.Data = map[string]any{resultKey(ut, "screenshot"): base64.StdEncoding.EncodeToString(img)}
		return res, nil

	case workflow.UtilityLog:
		r.log.Info().Str("action", a.Name).Msg(ut.Message)
		return workflow.Success(*a, ut.Message), nil

	case workflow.UtilityEvaluate:
		value, err := r.opts.Driver.Evaluate(ctx, ut.Script)
		if err != nil {
			return workflow.Failure(*a, workflow.ErrorKindDriver, err.Error()), nil
		}
		key := resultKey(ut, "value")
		st.data[key] = value
		res := workflow.Success(*a, "script evaluated")
		res.Data = map[string]any{key: value}
		return res, nil

	case workflow.UtilityScript:
		if r.opts.Scripts == nil {
			return workflow.Failure(*a, workflow.ErrorKindEngine, "no script evaluator configured"), nil
		}
		out, err := r.opts.Scripts.EvaluateScript(ctx, ut.Script, st.data)
		if err != nil {
			// An evaluator returning an unclassified error still means
			// the user's script failed, not the engine.
			kind := workflow.KindOf(err)
			if kind == workflow.ErrorKindEngine {
				kind = workflow.ErrorKindScript
			}
			return workflow.Failure(*a, kind, err.Error()), nil
		}
		for k, v := range out {
			st.data[k] = v
		}
		res := workflow.Success(*a, "script evaluated")
		res.Data = out
		return res, nil
	}
	return workflow.ActionResult{}, workflow.NewEngineError(
		fmt.Sprintf("unhandled utility kind %q", ut.Kind), nil).WithAction(a.Name)
}

func (r *Runner) runConditional(ctx context.Context, a *workflow.Action, st *runState) (workflow.ActionResult, error) {
	cond := a.Conditional
	holds, err := r.evalPredicate(ctx, &cond.Predicate, st)
	if err != nil {
		return workflow.ActionResult{}, err
	}

	var branch []workflow.Action
	switch {
	case holds:
		branch = cond.Then
	case cond.Else != nil:
		branch = cond.Else
	default:
		res := workflow.Skipped(*a, "predicate did not hold and no else branch")
		res.Data = map[string]any{"predicate": false}
		return res, nil
	}

	children, err := r.runSequence(ctx, branch, st)
	if err != nil {
		return workflow.ActionResult{}, err
	}

	res := workflow.ActionResult{
		ActionName: a.Name,
		Variant:    a.Variant,
		Status:     workflow.Aggregate(children),
		Data:       map[string]any{"predicate": holds},
		Children:   children,
	}
	if res.Status == workflow.StatusFailure {
		res.Kind = firstFailureKind(children)
		res.Message = firstFailureMessage(children)
	}
	return res, nil
}

func (r *Runner) runLoop(ctx context.Context, a *workflow.Action, st *runState) (workflow.ActionResult, error) {
	loop := a.Loop
	var children []workflow.ActionResult

	runIteration := func(i int) (workflow.ActionResult, error) {
		r.recordLoopIteration(string(loop.Source))
		st.data["loop_index"] = i
		body, err := r.runSequence(ctx, loop.Body, st)
		if err != nil {
			return workflow.ActionResult{}, err
		}
		iter := workflow.ActionResult{
			ActionName: fmt.Sprintf("%s#%d", a.Name, i),
			Variant:    a.Variant,
			Status:     workflow.Aggregate(body),
			Children:   body,
		}
		if iter.Status == workflow.StatusFailure {
			iter.Kind = firstFailureKind(body)
			iter.Message = firstFailureMessage(body)
		}
		return iter, nil
	}

	finish := func() (workflow.ActionResult, error) {
		delete(st.data, "loop_index")
		res := workflow.ActionResult{
			ActionName: a.Name,
			Variant:    a.Variant,
			Status:     workflow.Aggregate(children),
			Children:   children,
		}
		if res.Status == workflow.StatusFailure {
			res.Kind = firstFailureKind(children)
			res.Message = firstFailureMessage(children)
		} else {
			res.Message = fmt.Sprintf("%d iterations", len(children))
		}
		return res, nil
	}

	switch loop.Source {
	case workflow.LoopCount:
		for i := 0; i < loop.Count; i++ {
			iter, err := runIteration(i)
			if err != nil {
				return workflow.ActionResult{}, err
			}
			children = append(children, iter)
			if iter.Failed() {
				break
			}
		}
		return finish()

	case workflow.LoopWhile:
		for i := 0; ; i++ {
			if i >= r.opts.MaxLoopIterations {
				return workflow.ActionResult{}, workflow.NewEngineError(
					fmt.Sprintf("while loop exceeded %d iterations", r.opts.MaxLoopIterations), nil).
					WithAction(a.Name)
			}
			holds, err := r.evalPredicate(ctx, loop.Predicate, st)
			if err != nil {
				return workflow.ActionResult{}, err
			}
			if !holds {
				break
			}
			iter, err := runIteration(i)
			if err != nil {
				return workflow.ActionResult{}, err
			}
			children = append(children, iter)
			if iter.Failed() {
				break
			}
		}
		return finish()

	case workflow.LoopForEach:
		elements, err := r.opts.Driver.FindAll(ctx, loop.Selector)
		if err != nil {
			return workflow.Failure(*a, workflow.ErrorKindDriver, err.Error()), nil
		}
		for i := range elements {
			iter, err := runIteration(i)
			if err != nil {
				return workflow.ActionResult{}, err
			}
			children = append(children, iter)
			if iter.Failed() {
				break
			}
		}
		return finish()
	}
	return workflow.ActionResult{}, workflow.NewEngineError(
		fmt.Sprintf("unhandled loop source %q", loop.Source), nil).WithAction(a.Name)
}

func (r *Runner) runTemplate(ctx context.Context, a *workflow.Action, st *runState) (workflow.ActionResult, error) {
	ref := a.Template.WorkflowRef
	if r.opts.Templates == nil {
		return workflow.Failure(*a, workflow.ErrorKindTemplateNotFound,
			fmt.Sprintf("template %q referenced but no resolver configured", ref)), nil
	}
	tpl, err := r.opts.Templates.LookupWorkflow(ctx, ref)
	if err != nil {
		if workflow.IsRecoverable(err) {
			return workflow.Failure(*a, workflow.KindOf(err), err.Error()), nil
		}
		return workflow.ActionResult{}, err
	}

	children, err := r.runSequence(ctx, tpl.Clone().Actions, st)
	if err != nil {
		return workflow.ActionResult{}, err
	}
	res := workflow.ActionResult{
		ActionName: a.Name,
		Variant:    a.Variant,
		Status:     workflow.Aggregate(children),
		Message:    fmt.Sprintf("expanded workflow %q", ref),
		Children:   children,
	}
	if res.Status == workflow.StatusFailure {
		res.Kind = firstFailureKind(children)
		res.Message = firstFailureMessage(children)
	}
	return res, nil
}

func (r *Runner) runErrorHandling(ctx context.Context, a *workflow.Action, st *runState) (workflow.ActionResult, error) {
	eh := a.ErrorHandling

	if eh.Policy == workflow.PolicyRetry {
		return r.runRetry(ctx, a, st)
	}

	children, err := r.runSequence(ctx, eh.Actions, st)
	if err != nil {
		return workflow.ActionResult{}, err
	}

	status := workflow.Aggregate(children)
	res := workflow.ActionResult{
		ActionName: a.Name,
		Variant:    a.Variant,
		Status:     status,
		Children:   children,
	}
	if status != workflow.StatusFailure {
		return res, nil
	}

	switch eh.Policy {
	case workflow.PolicyAbort:
		res.Kind = firstFailureKind(children)
		res.Message = firstFailureMessage(children)
	case workflow.PolicyContinue:
		// The failure is recorded in the children but suppressed for
		// aggregation, so the next sibling still runs.
		res.Status = workflow.StatusSkipped
		res.Message = fmt.Sprintf("failure suppressed by continue policy: %s", firstFailureMessage(children))
		r.log.Warn().Str("action", a.Name).Str("cause", firstFailureMessage(children)).
			Msg("continuing past failure")
	}
	return res, nil
}

func (r *Runner) runRetry(ctx context.Context, a *workflow.Action, st *runState) (workflow.ActionResult, error) {
	eh := a.ErrorHandling
	delay := backoffFor(eh)
	var attempts []workflow.ActionResult

	for attempt := 0; attempt < eh.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay(attempt - 1)):
			case <-ctx.Done():
				return workflow.ActionResult{}, ctx.Err()
			}
			r.log.Debug().Str("action", a.Name).
				Int("attempt", attempt+1).Int("max_attempts", eh.MaxAttempts).
				Msg("retrying wrapped sequence")
		}

		children, err := r.runSequence(ctx, eh.Actions, st)
		if err != nil {
			return workflow.ActionResult{}, err
		}
		attemptRes := workflow.ActionResult{
			ActionName: fmt.Sprintf("%s attempt %d", a.Name, attempt+1),
			Variant:    a.Variant,
			Status:     workflow.Aggregate(children),
			Children:   children,
		}
		if attemptRes.Status == workflow.StatusFailure {
			attemptRes.Kind = firstFailureKind(children)
			attemptRes.Message = firstFailureMessage(children)
		}
		attempts = append(attempts, attemptRes)

		outcome := "success"
		if attemptRes.Status == workflow.StatusFailure {
			outcome = "failure"
		}
		r.recordRetryAttempt(outcome)

		if attemptRes.Status != workflow.StatusFailure {
			return workflow.ActionResult{
				ActionName: a.Name,
				Variant:    a.Variant,
				Status:     workflow.StatusSuccess,
				Message:    fmt.Sprintf("succeeded on attempt %d of %d", attempt+1, eh.MaxAttempts),
				Children:   attempts,
			}, nil
		}
	}

	last := attempts[len(attempts)-1]
	return workflow.ActionResult{
		ActionName: a.Name,
		Variant:    a.Variant,
		Status:     workflow.StatusFailure,
		Kind:       last.Kind,
		Message:    fmt.Sprintf("failed after %d attempts: %s", eh.MaxAttempts, last.Message),
		Children:   attempts,
	}, nil
}

// evalPredicate decides a predicate. Failures of a predicate action and
// unmet structural checks are ordinary "false" outcomes, not errors;
// only engine faults and cancellation propagate.
func (r *Runner) evalPredicate(ctx context.Context, p *workflow.Predicate, st *runState) (bool, error) {
	if p.Action != nil {
		res, err := r.runAction(ctx, p.Action, st)
		if err != nil {
			return false, err
		}
		return res.Succeeded(), nil
	}

	switch p.Kind {
	case workflow.PredicateElementExists:
		elements, err := r.opts.Driver.FindAll(ctx, p.Target)
		if err != nil {
			return false, nil
		}
		return len(elements) > 0, nil
	case workflow.PredicateElementVisible:
		cond := driver.WaitCondition{Kind: driver.WaitElementVisible, Target: p.Target}
		return r.opts.Driver.WaitFor(ctx, cond, predicateProbeTimeout) == nil, nil
	case workflow.PredicateURLContains:
		url, err := r.opts.Driver.CurrentURL(ctx)
		if err != nil {
			return false, nil
		}
		return strings.Contains(url, p.Target), nil
	}
	return false, workflow.NewEngineError(fmt.Sprintf("unhandled predicate kind %q", p.Kind), nil)
}

func resultKey(ut *workflow.UtilityPayload, fallback string) string {
	if ut.ResultKey != "" {
		return ut.ResultKey
	}
	return fallback
}

func firstFailureKind(children []workflow.ActionResult) workflow.ErrorKind {
	for i := range children {
		if children[i].Failed() {
			return children[i].Kind
		}
	}
	return ""
}

func firstFailureMessage(children []workflow.ActionResult) string {
	for i := range children {
		if children[i].Failed() {
			return children[i].Message
		}
	}
	return "action failed"
}
