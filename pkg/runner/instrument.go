package runner

import (
	"context"
	"time"

	"github.com/webpilot/webpilot/pkg/driver"
	"github.com/webpilot/webpilot/pkg/telemetry"
)

func (r *Runner) recordCredentialLookup(status string) {
	if r.opts.Telemetry != nil {
		r.opts.Telemetry.Metrics.RecordCredentialLookup(status)
	}
}

func (r *Runner) recordRetryAttempt(outcome string) {
	if r.opts.Telemetry != nil {
		r.opts.Telemetry.Metrics.RecordRetryAttempt(outcome)
	}
}

func (r *Runner) recordLoopIteration(source string) {
	if r.opts.Telemetry != nil {
		r.opts.Telemetry.Metrics.RecordLoopIteration(source)
	}
}

// instrumentedBrowser wraps a Browser so every capability call carries
// a driver span and the call/error/duration metrics. The telemetry
// aggregate is picked up from the call context.
type instrumentedBrowser struct {
	inner   driver.Browser
	backend string
}

// instrumentBrowser wraps the browser. The backend label comes from
// the driver when it identifies itself, "unknown" otherwise.
func instrumentBrowser(b driver.Browser) driver.Browser {
	backend := "unknown"
	if named, ok := b.(interface{ Backend() driver.Backend }); ok {
		backend = string(named.Backend())
	}
	return &instrumentedBrowser{inner: b, backend: backend}
}

func (b *instrumentedBrowser) Navigate(ctx context.Context, url string) error {
	return telemetry.RecordDriverOperation(ctx, b.backend, "navigate", func() error {
		return b.inner.Navigate(ctx, url)
	})
}

func (b *instrumentedBrowser) Find(ctx context.Context, selector string) (driver.Element, error) {
	var el driver.Element
	err := telemetry.RecordDriverOperation(ctx, b.backend, "find", func() error {
		var err error
		el, err = b.inner.Find(ctx, selector)
		return err
	})
	return el, err
}

func (b *instrumentedBrowser) FindAll(ctx context.Context, selector string) ([]driver.Element, error) {
	var els []driver.Element
	err := telemetry.RecordDriverOperation(ctx, b.backend, "find_all", func() error {
		var err error
		els, err = b.inner.FindAll(ctx, selector)
		return err
	})
	return els, err
}

func (b *instrumentedBrowser) Click(ctx context.Context, el driver.Element) error {
	return telemetry.RecordDriverOperation(ctx, b.backend, "click", func() error {
		return b.inner.Click(ctx, el)
	})
}

func (b *instrumentedBrowser) Type(ctx context.Context, el driver.Element, text string) error {
	return telemetry.RecordDriverOperation(ctx, b.backend, "type", func() error {
		return b.inner.Type(ctx, el, text)
	})
}

func (b *instrumentedBrowser) Select(ctx context.Context, el driver.Element, value string) error {
	return telemetry.RecordDriverOperation(ctx, b.backend, "select", func() error {
		return b.inner.Select(ctx, el, value)
	})
}

func (b *instrumentedBrowser) Hover(ctx context.Context, el driver.Element) error {
	return telemetry.RecordDriverOperation(ctx, b.backend, "hover", func() error {
		return b.inner.Hover(ctx, el)
	})
}

func (b *instrumentedBrowser) WaitFor(ctx context.Context, cond driver.WaitCondition, timeout time.Duration) error {
	return telemetry.RecordDriverOperation(ctx, b.backend, "wait_for", func() error {
		return b.inner.WaitFor(ctx, cond, timeout)
	})
}

func (b *instrumentedBrowser) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := telemetry.RecordDriverOperation(ctx, b.backend, "current_url", func() error {
		var err error
		url, err = b.inner.CurrentURL(ctx)
		return err
	})
	return url, err
}

func (b *instrumentedBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	var img []byte
	err := telemetry.RecordDriverOperation(ctx, b.backend, "screenshot", func() error {
		var err error
		img, err = b.inner.Screenshot(ctx)
		return err
	})
	return img, err
}

func (b *instrumentedBrowser) Evaluate(ctx context.Context, script string) (any, error) {
	var value any
	err := telemetry.RecordDriverOperation(ctx, b.backend, "evaluate", func() error {
		var err error
		value, err = b.inner.Evaluate(ctx, script)
		return err
	})
	return value, err
}

func (b *instrumentedBrowser) Close(ctx context.Context) error {
	return telemetry.RecordDriverOperation(ctx, b.backend, "close", func() error {
		return b.inner.Close(ctx)
	})
}
