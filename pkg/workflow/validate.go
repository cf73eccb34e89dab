package workflow

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// maxNestingDepth bounds how deeply composite actions may nest. Authored
// workflows never get near this; it guards against definitions built by
// a runaway generator.
const maxNestingDepth = 32

var validate = validator.New()

// Validate performs the structural check of a workflow: required fields
// present, selectors non-empty, nested sequences well-formed. It is
// idempotent and performs no driver interaction; the runner calls it
// before executing anything, so a partially invalid workflow never runs.
func (w *Workflow) Validate() error {
	if w == nil {
		return NewValidationError("workflow is nil", nil)
	}
	if err := validate.Struct(w); err != nil {
		return NewValidationError("workflow failed schema validation", err)
	}
	for i := range w.Actions {
		if err := w.Actions[i].validateAt(0); err != nil {
			return err
		}
	}
	return nil
}

// Validate performs the structural check of a single action and its
// nested sequences.
func (a *Action) Validate() error {
	return a.validateAt(0)
}

func (a *Action) validateAt(depth int) error {
	if depth > maxNestingDepth {
		return NewValidationError(
			fmt.Sprintf("action nesting exceeds %d levels", maxNestingDepth), nil)
	}
	if a.Name == "" {
		return NewValidationError("action name must not be empty", nil)
	}
	if err := a.Variant.Validate(); err != nil {
		return err
	}
	if err := a.validatePayloadShape(); err != nil {
		return err
	}

	switch a.Variant {
	case VariantNavigation:
		if a.Navigation.URL == "" {
			return a.invalid("navigation url must not be empty")
		}
	case VariantInteraction:
		in := a.Interaction
		if in.Selector == "" {
			return a.invalid("interaction selector must not be empty")
		}
		switch in.Kind {
		case InteractionClick, InteractionType, InteractionSelect, InteractionHover:
		default:
			return a.invalid(fmt.Sprintf("invalid interaction kind: %s", in.Kind))
		}
		if in.Value != "" && in.CredentialRef != "" {
			return a.invalid("interaction value and credential_ref are mutually exclusive")
		}
	case VariantUtility:
		if err := a.validateUtility(); err != nil {
			return err
		}
	case VariantConditional:
		cond := a.Conditional
		if err := a.validatePredicate(&cond.Predicate, depth); err != nil {
			return err
		}
		if err := validateSequence(cond.Then, depth+1); err != nil {
			return err
		}
		if err := validateSequence(cond.Else, depth+1); err != nil {
			return err
		}
	case VariantLoop:
		if err := a.validateLoop(depth); err != nil {
			return err
		}
	case VariantTemplate:
		if a.Template.WorkflowRef == "" {
			return a.invalid("template workflow_ref must not be empty")
		}
	case VariantErrorHandling:
		eh := a.ErrorHandling
		if len(eh.Actions) == 0 {
			return a.invalid("error_handling must wrap at least one action")
		}
		switch eh.Policy {
		case PolicyAbort, PolicyContinue:
		case PolicyRetry:
			if eh.MaxAttempts < 1 {
				return a.invalid("retry policy requires max_attempts >= 1")
			}
			switch eh.Backoff {
			case "", BackoffConstant, BackoffExponential:
			default:
				return a.invalid(fmt.Sprintf("invalid backoff kind: %s", eh.Backoff))
			}
		default:
			return a.invalid(fmt.Sprintf("invalid error policy: %s", eh.Policy))
		}
		if err := validateSequence(eh.Actions, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// validatePayloadShape checks that exactly the payload matching the
// variant is set, keeping the tagged variant closed.
func (a *Action) validatePayloadShape() error {
	payloads := 0
	var matched bool
	count := func(set bool, variant Variant) {
		if set {
			payloads++
			if a.Variant == variant {
				matched = true
			}
		}
	}
	count(a.Navigation != nil, VariantNavigation)
	count(a.Interaction != nil, VariantInteraction)
	count(a.Utility != nil, VariantUtility)
	count(a.Conditional != nil, VariantConditional)
	count(a.Loop != nil, VariantLoop)
	count(a.Template != nil, VariantTemplate)
	count(a.ErrorHandling != nil, VariantErrorHandling)

	if payloads != 1 || !matched {
		return a.invalid(fmt.Sprintf("action must carry exactly the %s payload", a.Variant))
	}
	return nil
}

func (a *Action) validateUtility() error {
	ut := a.Utility
	switch ut.Kind {
	case UtilityWait:
		if ut.Duration <= 0 {
			return a.invalid("wait utility requires a positive duration")
		}
	case UtilityLog:
		if ut.Message == "" {
			return a.invalid("log utility requires a message")
		}
	case UtilityEvaluate, UtilityScript:
		if ut.Script == "" {
			return a.invalid(fmt.Sprintf("%s utility requires a script", ut.Kind))
		}
	case UtilityScreenshot:
	default:
		return a.invalid(fmt.Sprintf("invalid utility kind: %s", ut.Kind))
	}
	return nil
}

func (a *Action) validateLoop(depth int) error {
	loop := a.Loop
	switch loop.Source {
	case LoopCount:
		if loop.Count < 0 {
			return a.invalid("count loop requires a non-negative count")
		}
	case LoopWhile:
		if loop.Predicate == nil {
			return a.invalid("while loop requires a predicate")
		}
		if err := a.validatePredicate(loop.Predicate, depth); err != nil {
			return err
		}
	case LoopForEach:
		if loop.Selector == "" {
			return a.invalid("for_each loop requires a selector")
		}
	default:
		return a.invalid(fmt.Sprintf("invalid loop source: %s", loop.Source))
	}
	return validateSequence(loop.Body, depth+1)
}

func (a *Action) validatePredicate(p *Predicate, depth int) error {
	hasAction := p.Action != nil
	hasKind := p.Kind != ""
	if hasAction == hasKind {
		return a.invalid("predicate requires exactly one of action or kind")
	}
	if hasAction {
		return p.Action.validateAt(depth + 1)
	}
	switch p.Kind {
	case PredicateElementExists, PredicateElementVisible, PredicateURLContains:
	default:
		return a.invalid(fmt.Sprintf("invalid predicate kind: %s", p.Kind))
	}
	if p.Target == "" {
		return a.invalid("structural predicate requires a target")
	}
	return nil
}

func (a *Action) invalid(message string) *Error {
	return NewValidationError(message, nil).WithAction(a.Name)
}

func validateSequence(actions []Action, depth int) error {
	for i := range actions {
		if err := actions[i].validateAt(depth); err != nil {
			return err
		}
	}
	return nil
}
