package workflow

import (
	"time"
)

// Workflow is a named, ordered sequence of actions. It is the persisted
// unit: created by an editor or loaded from a definition file, consumed
// read-only by the runner.
type Workflow struct {
	// ID is the unique identifier for this workflow.
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable workflow name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Version is the workflow version, bumped on every save.
	Version int64 `json:"version" yaml:"version"`

	// Actions is the ordered top-level action sequence.
	Actions []Action `json:"actions" yaml:"actions" validate:"required,min=1,dive"`

	// Labels are key-value pairs for organizing workflows.
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// CreatedAt is when the workflow was first created.
	CreatedAt time.Time `json:"created_at" yaml:"created_at,omitempty"`

	// UpdatedAt is when the workflow was last updated.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at,omitempty"`
}

// Clone returns a deep copy of the workflow. The runner clones the
// workflow it is handed so a caller mutating its copy mid-run cannot
// change execution.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	out := *w
	out.Actions = cloneActions(w.Actions)
	if w.Labels != nil {
		out.Labels = make(map[string]string, len(w.Labels))
		for k, v := range w.Labels {
			out.Labels[k] = v
		}
	}
	return &out
}

// Variant identifies the concrete kind of an action. The set is closed:
// the runner dispatches exhaustively over these values.
type Variant string

const (
	// VariantNavigation drives the browser to a URL.
	VariantNavigation Variant = "navigation"

	// VariantInteraction interacts with a page element (click, type, ...).
	VariantInteraction Variant = "interaction"

	// VariantUtility performs a non-page step (wait, screenshot, log, ...).
	VariantUtility Variant = "utility"

	// VariantConditional branches on a predicate.
	VariantConditional Variant = "conditional"

	// VariantLoop repeats a body per an iteration source.
	VariantLoop Variant = "loop"

	// VariantTemplate expands another named workflow in place.
	VariantTemplate Variant = "template"

	// VariantErrorHandling wraps a sequence with an error policy.
	VariantErrorHandling Variant = "error_handling"
)

// Validate checks if the variant is one of the closed set.
func (v Variant) Validate() error {
	switch v {
	case VariantNavigation, VariantInteraction, VariantUtility,
		VariantConditional, VariantLoop, VariantTemplate, VariantErrorHandling:
		return nil
	default:
		return NewValidationError("invalid action variant: "+string(v), nil)
	}
}

// IsComposite returns true if the variant contains nested action sequences.
func (v Variant) IsComposite() bool {
	return v == VariantConditional || v == VariantLoop ||
		v == VariantTemplate || v == VariantErrorHandling
}

// Action is one step of a workflow, tagged by Variant with exactly one
// matching payload set. Actions are immutable once constructed;
// execution only produces results, it never writes back into the action.
type Action struct {
	// Name is the human label for this action.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Variant selects the payload and the dispatch path.
	Variant Variant `json:"variant" yaml:"variant" validate:"required"`

	// Navigation is set when Variant is "navigation".
	Navigation *NavigationPayload `json:"navigation,omitempty" yaml:"navigation,omitempty"`

	// Interaction is set when Variant is "interaction".
	Interaction *InteractionPayload `json:"interaction,omitempty" yaml:"interaction,omitempty"`

	// Utility is set when Variant is "utility".
	Utility *UtilityPayload `json:"utility,omitempty" yaml:"utility,omitempty"`

	// Conditional is set when Variant is "conditional".
	Conditional *ConditionalPayload `json:"conditional,omitempty" yaml:"conditional,omitempty"`

	// Loop is set when Variant is "loop".
	Loop *LoopPayload `json:"loop,omitempty" yaml:"loop,omitempty"`

	// Template is set when Variant is "template".
	Template *TemplatePayload `json:"template,omitempty" yaml:"template,omitempty"`

	// ErrorHandling is set when Variant is "error_handling".
	ErrorHandling *ErrorHandlingPayload `json:"error_handling,omitempty" yaml:"error_handling,omitempty"`
}

// NavigationPayload drives the browser to a target URL.
type NavigationPayload struct {
	// URL is the absolute or relative navigation target.
	URL string `json:"url" yaml:"url" validate:"required"`

	// WaitFor is an optional condition to await after navigation.
	WaitFor *WaitSpec `json:"wait_for,omitempty" yaml:"wait_for,omitempty"`
}

// WaitSpec describes a post-step wait condition.
type WaitSpec struct {
	// Condition is the wait condition kind (element_exists,
	// element_visible, url_contains).
	Condition string `json:"condition" yaml:"condition" validate:"required,oneof=element_exists element_visible url_contains"`

	// Target is the selector or URL substring the condition applies to.
	Target string `json:"target" yaml:"target" validate:"required"`

	// Timeout bounds the wait. Zero means the driver default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// InteractionKind is the kind of element interaction.
type InteractionKind string

const (
	// InteractionClick clicks the target element.
	InteractionClick InteractionKind = "click"

	// InteractionType types text into the target element.
	InteractionType InteractionKind = "type"

	// InteractionSelect selects an option in the target element.
	InteractionSelect InteractionKind = "select"

	// InteractionHover moves the pointer over the target element.
	InteractionHover InteractionKind = "hover"
)

// InteractionPayload interacts with a page element.
type InteractionPayload struct {
	// Selector locates the target element (CSS).
	Selector string `json:"selector" yaml:"selector" validate:"required"`

	// Kind is the interaction to perform.
	Kind InteractionKind `json:"kind" yaml:"kind" validate:"required,oneof=click type select hover"`

	// Value is the literal input for type/select interactions.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// CredentialRef names a secret to use in place of Value. The
	// resolved value is never written into results or logs.
	CredentialRef string `json:"credential_ref,omitempty" yaml:"credential_ref,omitempty"`
}

// UtilityKind is the kind of utility step.
type UtilityKind string

const (
	// UtilityWait pauses for a fixed duration.
	UtilityWait UtilityKind = "wait"

	// UtilityScreenshot captures the current page.
	UtilityScreenshot UtilityKind = "screenshot"

	// UtilityLog records a message in the trace.
	UtilityLog UtilityKind = "log"

	// UtilityEvaluate runs a script inside the browser.
	UtilityEvaluate UtilityKind = "evaluate"

	// UtilityScript runs a Starlark script engine-side against the
	// run's data map.
	UtilityScript UtilityKind = "script"
)

// UtilityPayload performs a step that does not target an element.
type UtilityPayload struct {
	// Kind is the utility step kind.
	Kind UtilityKind `json:"kind" yaml:"kind" validate:"required,oneof=wait screenshot log evaluate script"`

	// Duration is the pause length for wait steps.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Message is the text for log steps.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// Script is the source for evaluate (JavaScript) and script
	// (Starlark) steps.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`

	// ResultKey names the data-map key the step's value is stored
	// under. Defaults to "value".
	ResultKey string `json:"result_key,omitempty" yaml:"result_key,omitempty"`
}

// PredicateKind is the kind of a structural predicate.
type PredicateKind string

const (
	// PredicateElementExists holds when the selector matches an element.
	PredicateElementExists PredicateKind = "element_exists"

	// PredicateElementVisible holds when the selector matches a visible element.
	PredicateElementVisible PredicateKind = "element_visible"

	// PredicateURLContains holds when the current URL contains the target.
	PredicateURLContains PredicateKind = "url_contains"
)

// Predicate drives conditional branching and while loops. Exactly one
// of Action or Kind must be set: a nested action whose status decides
// the branch, or a structural page check.
type Predicate struct {
	// Action is a nested predicate action; its result status is the
	// predicate's boolean value.
	Action *Action `json:"action,omitempty" yaml:"action,omitempty"`

	// Kind is the structural predicate kind.
	Kind PredicateKind `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=element_exists element_visible url_contains"`

	// Target is the selector or URL substring for a structural predicate.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
}

// ConditionalPayload branches on a predicate.
type ConditionalPayload struct {
	// Predicate decides which branch runs.
	Predicate Predicate `json:"predicate" yaml:"predicate"`

	// Then runs when the predicate holds.
	Then []Action `json:"then" yaml:"then" validate:"dive"`

	// Else optionally runs when the predicate does not hold.
	Else []Action `json:"else,omitempty" yaml:"else,omitempty" validate:"dive"`
}

// LoopSourceKind selects how loop iterations are produced.
type LoopSourceKind string

const (
	// LoopCount iterates a fixed number of times.
	LoopCount LoopSourceKind = "count"

	// LoopWhile re-evaluates a predicate before every iteration.
	LoopWhile LoopSourceKind = "while"

	// LoopForEach iterates once per element matching a selector.
	LoopForEach LoopSourceKind = "for_each"
)

// LoopPayload repeats a body per an iteration source.
type LoopPayload struct {
	// Source selects the iteration source kind.
	Source LoopSourceKind `json:"source" yaml:"source" validate:"required,oneof=count while for_each"`

	// Count is the iteration count for count loops.
	Count int `json:"count,omitempty" yaml:"count,omitempty"`

	// Predicate is re-evaluated before every iteration of while loops.
	Predicate *Predicate `json:"predicate,omitempty" yaml:"predicate,omitempty"`

	// Selector matches the element set for for_each loops.
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`

	// Body is the action sequence executed once per iteration.
	Body []Action `json:"body" yaml:"body" validate:"dive"`
}

// TemplatePayload expands another named workflow in place. Resolution
// happens through a lookup collaborator injected into the runner; the
// model only carries the reference.
type TemplatePayload struct {
	// WorkflowRef names the workflow to expand.
	WorkflowRef string `json:"workflow_ref" yaml:"workflow_ref" validate:"required"`
}

// ErrorPolicy is the recovery contract of an error-handling wrapper.
type ErrorPolicy string

const (
	// PolicyAbort propagates the failure and stops the enclosing sequence.
	PolicyAbort ErrorPolicy = "abort"

	// PolicyContinue records the failure but lets the next sibling run.
	PolicyContinue ErrorPolicy = "continue"

	// PolicyRetry re-runs the wrapped sequence up to MaxAttempts times.
	PolicyRetry ErrorPolicy = "retry"
)

// BackoffKind selects the delay strategy between retry attempts.
type BackoffKind string

const (
	// BackoffConstant waits the base delay between every attempt.
	BackoffConstant BackoffKind = "constant"

	// BackoffExponential doubles the base delay per attempt, with jitter.
	BackoffExponential BackoffKind = "exponential"
)

// ErrorHandlingPayload wraps a sequence with an error policy.
type ErrorHandlingPayload struct {
	// Actions is the wrapped sequence.
	Actions []Action `json:"actions" yaml:"actions" validate:"required,min=1,dive"`

	// Policy is the recovery policy applied on a wrapped failure.
	Policy ErrorPolicy `json:"policy" yaml:"policy" validate:"required,oneof=abort continue retry"`

	// MaxAttempts bounds retry policies. Ignored for abort/continue.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`

	// Backoff selects the retry delay strategy. Defaults to constant.
	Backoff BackoffKind `json:"backoff,omitempty" yaml:"backoff,omitempty" validate:"omitempty,oneof=constant exponential"`

	// BackoffBase is the base delay between attempts.
	BackoffBase time.Duration `json:"backoff_base,omitempty" yaml:"backoff_base,omitempty"`
}

// cloneActions deep-copies an action sequence.
func cloneActions(actions []Action) []Action {
	if actions == nil {
		return nil
	}
	out := make([]Action, len(actions))
	for i := range actions {
		out[i] = cloneAction(actions[i])
	}
	return out
}

func cloneAction(a Action) Action {
	out := a
	if a.Navigation != nil {
		nav := *a.Navigation
		if a.Navigation.WaitFor != nil {
			wf := *a.Navigation.WaitFor
			nav.WaitFor = &wf
		}
		out.Navigation = &nav
	}
	if a.Interaction != nil {
		in := *a.Interaction
		out.Interaction = &in
	}
	if a.Utility != nil {
		ut := *a.Utility
		out.Utility = &ut
	}
	if a.Conditional != nil {
		cond := ConditionalPayload{
			Predicate: clonePredicate(a.Conditional.Predicate),
			Then:      cloneActions(a.Conditional.Then),
			Else:      cloneActions(a.Conditional.Else),
		}
		out.Conditional = &cond
	}
	if a.Loop != nil {
		loop := *a.Loop
		if a.Loop.Predicate != nil {
			p := clonePredicate(*a.Loop.Predicate)
			loop.Predicate = &p
		}
		loop.Body = cloneActions(a.Loop.Body)
		out.Loop = &loop
	}
	if a.Template != nil {
		tpl := *a.Template
		out.Template = &tpl
	}
	if a.ErrorHandling != nil {
		eh := *a.ErrorHandling
		eh.Actions = cloneActions(a.ErrorHandling.Actions)
		out.ErrorHandling = &eh
	}
	return out
}

func clonePredicate(p Predicate) Predicate {
	out := p
	if p.Action != nil {
		a := cloneAction(*p.Action)
		out.Action = &a
	}
	return out
}
