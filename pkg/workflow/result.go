package workflow

import (
	"fmt"
	"time"
)

// Status is the outcome status of one executed action.
type Status string

const (
	// StatusSuccess indicates the action completed successfully.
	StatusSuccess Status = "success"

	// StatusFailure indicates the action failed.
	StatusFailure Status = "failure"

	// StatusSkipped indicates the action did not run or its failure
	// was suppressed by policy. Skipped results never affect the
	// aggregate status of their enclosing sequence.
	StatusSkipped Status = "skipped"
)

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusSuccess, StatusFailure, StatusSkipped:
		return nil
	default:
		return fmt.Errorf("invalid action status: %s", s)
	}
}

// ActionResult is the immutable outcome of executing one action.
// Composite actions carry their nested outcomes in Children, in
// execution order.
type ActionResult struct {
	// ActionName is the name of the executed action.
	ActionName string `json:"action_name"`

	// Variant is the variant of the executed action.
	Variant Variant `json:"variant"`

	// Status is the outcome status.
	Status Status `json:"status"`

	// Kind classifies the failure cause. Empty on success/skip.
	Kind ErrorKind `json:"kind,omitempty"`

	// Message is the human-readable outcome description. Always
	// non-empty for failures.
	Message string `json:"message,omitempty"`

	// Data carries values extracted during execution (scraped text,
	// evaluation results) for later actions and for the caller.
	Data map[string]any `json:"data,omitempty"`

	// Children are the nested outcomes of composite actions, in
	// execution order. A loop that stopped early carries only the
	// completed iterations.
	Children []ActionResult `json:"children,omitempty"`

	// StartedAt is when execution of the action began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`
}

// Succeeded returns true if the result status is success.
func (r ActionResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Failed returns true if the result status is failure.
func (r ActionResult) Failed() bool {
	return r.Status == StatusFailure
}

// Success creates a success result for the given action.
func Success(a Action, message string) ActionResult {
	return ActionResult{
		ActionName: a.Name,
		Variant:    a.Variant,
		Status:     StatusSuccess,
		Message:    message,
	}
}

// Failure creates a failure result for the given action. A failure
// always carries a non-empty message; an empty one is replaced so the
// invariant holds even for sloppy callers.
func Failure(a Action, kind ErrorKind, message string) ActionResult {
	if message == "" {
		message = "action failed"
	}
	return ActionResult{
		ActionName: a.Name,
		Variant:    a.Variant,
		Status:     StatusFailure,
		Kind:       kind,
		Message:    message,
	}
}

// Skipped creates a skipped result for the given action.
func Skipped(a Action, message string) ActionResult {
	return ActionResult{
		ActionName: a.Name,
		Variant:    a.Variant,
		Status:     StatusSkipped,
		Message:    message,
	}
}

// Aggregate computes the composite status of an executed sequence:
// success iff every non-skipped child succeeded. Skipped children are
// neutral, so a conditional that took no branch or a suppressed
// failure never flips the aggregate.
func Aggregate(children []ActionResult) Status {
	for i := range children {
		if children[i].Status == StatusFailure {
			return StatusFailure
		}
	}
	return StatusSuccess
}
