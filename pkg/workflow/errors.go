// Package workflow defines the action model of the webpilot engine:
// workflows, the closed set of action variants, execution results, and
// the classified error taxonomy shared by the runner and its
// collaborators.
package workflow

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error for recovery and reporting.
type ErrorKind string

const (
	// ErrorKindValidation indicates a malformed workflow or action,
	// detected before any driver interaction.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindDriver indicates an automation backend failure: element
	// not found, timeout, navigation failure.
	ErrorKindDriver ErrorKind = "driver"

	// ErrorKindCredentialNotFound indicates a credential reference
	// that the resolver could not satisfy.
	ErrorKindCredentialNotFound ErrorKind = "credential_not_found"

	// ErrorKindTemplateNotFound indicates a template reference to a
	// workflow the lookup collaborator does not know.
	ErrorKindTemplateNotFound ErrorKind = "template_not_found"

	// ErrorKindScript indicates an engine-side script that failed to
	// evaluate. The script is user-authored content, so the failure is
	// recoverable into a result like a driver failure.
	ErrorKindScript ErrorKind = "script"

	// ErrorKindEngine indicates an internal invariant violation. It is
	// the only kind treated as fatal: it signals a bug in the engine,
	// not in user-authored content.
	ErrorKindEngine ErrorKind = "engine"
)

// Error is a classified workflow execution error with context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Action is the name of the action involved, if applicable.
	Action string `json:"action,omitempty"`

	// Op is the operation being performed when the error occurred.
	Op string `json:"op,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Action != "" && e.Op != "":
		return fmt.Sprintf("[%s] %s (action=%s, op=%s)%s", e.Kind, e.Message, e.Action, e.Op, e.unwrapSuffix())
	case e.Action != "":
		return fmt.Sprintf("[%s] %s (action=%s)%s", e.Kind, e.Message, e.Action, e.unwrapSuffix())
	default:
		return fmt.Sprintf("[%s] %s%s", e.Kind, e.Message, e.unwrapSuffix())
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality for errors.Is: two workflow errors
// match when their kinds match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithAction adds action context to an error.
func (e *Error) WithAction(name string) *Error {
	e.Action = name
	return e
}

// WithOp adds operation context to an error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *Error {
	return &Error{Kind: ErrorKindValidation, Message: message, Err: err}
}

// NewDriverError creates a new driver error.
func NewDriverError(message string, err error) *Error {
	return &Error{Kind: ErrorKindDriver, Message: message, Err: err}
}

// NewCredentialNotFoundError creates a new credential-not-found error.
func NewCredentialNotFoundError(name string) *Error {
	return &Error{
		Kind:    ErrorKindCredentialNotFound,
		Message: fmt.Sprintf("credential %q not found", name),
	}
}

// NewTemplateNotFoundError creates a new template-not-found error.
func NewTemplateNotFoundError(ref string) *Error {
	return &Error{
		Kind:    ErrorKindTemplateNotFound,
		Message: fmt.Sprintf("template workflow %q not found", ref),
	}
}

// NewScriptError creates a new script evaluation error.
func NewScriptError(message string, err error) *Error {
	return &Error{Kind: ErrorKindScript, Message: message, Err: err}
}

// NewEngineError creates a new internal engine error.
func NewEngineError(message string, err error) *Error {
	return &Error{Kind: ErrorKindEngine, Message: message, Err: err}
}

// KindOf returns the classification of err, or ErrorKindEngine when the
// error carries no classification.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindEngine
}

// IsValidation returns true if the error is a validation error.
func IsValidation(err error) bool {
	return is(err, ErrorKindValidation)
}

// IsDriver returns true if the error is a driver error.
func IsDriver(err error) bool {
	return is(err, ErrorKindDriver)
}

// IsCredentialNotFound returns true if the error is a missing-credential error.
func IsCredentialNotFound(err error) bool {
	return is(err, ErrorKindCredentialNotFound)
}

// IsTemplateNotFound returns true if the error is a missing-template error.
func IsTemplateNotFound(err error) bool {
	return is(err, ErrorKindTemplateNotFound)
}

// IsScript returns true if the error is a script evaluation error.
func IsScript(err error) bool {
	return is(err, ErrorKindScript)
}

// IsEngine returns true if the error is an internal engine error.
func IsEngine(err error) bool {
	return is(err, ErrorKindEngine)
}

// IsRecoverable returns true if the error can be represented as an
// action failure in the trace. Engine errors are not recoverable: they
// surface to the caller instead of becoming a result.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case ErrorKindDriver, ErrorKindCredentialNotFound, ErrorKindTemplateNotFound, ErrorKindScript:
		return true
	default:
		return false
	}
}

func is(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
