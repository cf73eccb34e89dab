// Package driver defines the browser capability interface the runner
// executes against, and the backend adapters implementing it. The
// runner and the action model depend only on the Browser interface;
// backends are selected by configuration through New.
package driver

import (
	"context"
	"fmt"
	"time"
)

// Backend identifies a concrete automation backend.
type Backend string

const (
	// BackendCDP drives a Chrome/Chromium instance over the DevTools
	// protocol (chromedp).
	BackendCDP Backend = "cdp"

	// BackendWebDriver drives a W3C WebDriver remote session
	// (Selenium-compatible endpoint) over HTTP.
	BackendWebDriver Backend = "webdriver"
)

// Element is an opaque handle to a located page element. Backends stash
// their own node reference in the handle; callers only ever pass it
// back to the driver that produced it.
type Element struct {
	// Selector is the CSS selector the element was located with.
	Selector string

	// node is the backend-specific handle (CDP node, WebDriver
	// element ID). Nil when the backend addresses by selector.
	node any
}

// WaitKind is the kind of condition WaitFor blocks on.
type WaitKind string

const (
	// WaitElementExists waits until the selector matches an element.
	WaitElementExists WaitKind = "element_exists"

	// WaitElementVisible waits until the selector matches a visible element.
	WaitElementVisible WaitKind = "element_visible"

	// WaitURLContains waits until the page URL contains the substring.
	WaitURLContains WaitKind = "url_contains"
)

// WaitCondition describes a condition for WaitFor and for structural
// predicates.
type WaitCondition struct {
	// Kind is the condition kind.
	Kind WaitKind

	// Target is the selector or URL substring the kind applies to.
	Target string
}

// Browser is the capability interface through which workflows drive an
// automation backend. Every call is context-aware; failures carry a
// backend and operation context via *Error so the runner can fold them
// into the trace uniformly.
type Browser interface {
	// Navigate loads the given URL.
	Navigate(ctx context.Context, url string) error

	// Find locates the first element matching the selector.
	Find(ctx context.Context, selector string) (Element, error)

	// FindAll locates every element matching the selector. A selector
	// matching nothing returns an empty slice, not an error.
	FindAll(ctx context.Context, selector string) ([]Element, error)

	// Click clicks the element.
	Click(ctx context.Context, el Element) error

	// Type types text into the element.
	Type(ctx context.Context, el Element, text string) error

	// Select selects the option with the given value in the element.
	Select(ctx context.Context, el Element, value string) error

	// Hover moves the pointer over the element.
	Hover(ctx context.Context, el Element) error

	// WaitFor blocks until the condition holds or the timeout elapses.
	WaitFor(ctx context.Context, cond WaitCondition, timeout time.Duration) error

	// CurrentURL reports the page URL.
	CurrentURL(ctx context.Context) (string, error)

	// Screenshot captures the current page as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Evaluate runs a script in the page and returns its value.
	Evaluate(ctx context.Context, script string) (any, error)

	// Close ends the browser session. The driver is unusable afterwards.
	Close(ctx context.Context) error
}

// Error is a driver-level failure carrying backend and operation
// context. The runner treats every driver error uniformly as an action
// failure cause; drivers never panic their way out of a capability call.
type Error struct {
	// Backend is the backend that produced the error.
	Backend Backend

	// Op is the capability that failed (navigate, find, click, ...).
	Op string

	// Message is the human-readable failure description.
	Message string

	// Err is the underlying backend error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Backend, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(backend Backend, op, message string, err error) *Error {
	return &Error{Backend: backend, Op: op, Message: message, Err: err}
}
