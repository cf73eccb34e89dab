package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// cdpDriver drives a local Chrome/Chromium over the DevTools protocol.
// One driver owns one browser session.
type cdpDriver struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func newCDPDriver(ctx context.Context, cfg Config) (*cdpDriver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so a missing binary fails construction,
	// not the first action of a run.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, newError(BackendCDP, "start", "failed to start browser", err)
	}

	return &cdpDriver{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Backend reports the backend identity used in error and telemetry
// labels.
func (d *cdpDriver) Backend() Backend {
	return BackendCDP
}

// run executes chromedp actions on the session context while honoring
// the caller's context for cancellation.
func (d *cdpDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (d *cdpDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return newError(BackendCDP, "navigate", fmt.Sprintf("failed to navigate to %s", url), err)
	}
	return nil
}

func (d *cdpDriver) Find(ctx context.Context, selector string) (Element, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)))
	if err != nil {
		return Element{}, newError(BackendCDP, "find", fmt.Sprintf("failed to query %q", selector), err)
	}
	if len(nodes) == 0 {
		return Element{}, newError(BackendCDP, "find", fmt.Sprintf("no element matches %q", selector), nil)
	}
	return Element{Selector: selector, node: nodes[0]}, nil
}

func (d *cdpDriver) FindAll(ctx context.Context, selector string) ([]Element, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, newError(BackendCDP, "find_all", fmt.Sprintf("failed to query %q", selector), err)
	}
	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, Element{Selector: selector, node: n})
	}
	return elements, nil
}

func (d *cdpDriver) Click(ctx context.Context, el Element) error {
	var err error
	if n, ok := el.node.(*cdp.Node); ok {
		err = d.run(ctx, chromedp.MouseClickNode(n))
	} else {
		err = d.run(ctx, chromedp.Click(el.Selector, chromedp.ByQuery))
	}
	if err != nil {
		return newError(BackendCDP, "click", fmt.Sprintf("failed to click %q", el.Selector), err)
	}
	return nil
}

func (d *cdpDriver) Type(ctx context.Context, el Element, text string) error {
	if err := d.run(ctx, chromedp.SendKeys(el.Selector, text, chromedp.ByQuery)); err != nil {
		return newError(BackendCDP, "type", fmt.Sprintf("failed to type into %q", el.Selector), err)
	}
	return nil
}

func (d *cdpDriver) Select(ctx context.Context, el Element, value string) error {
	if err := d.run(ctx, chromedp.SetValue(el.Selector, value, chromedp.ByQuery)); err != nil {
		return newError(BackendCDP, "select", fmt.Sprintf("failed to select %q in %q", value, el.Selector), err)
	}
	return nil
}

func (d *cdpDriver) Hover(ctx context.Context, el Element) error {
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); if (!el) return false; el.dispatchEvent(new MouseEvent("mouseover", {bubbles: true})); return true; })()`,
		el.Selector)
	var found bool
	if err := d.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return newError(BackendCDP, "hover", fmt.Sprintf("failed to hover %q", el.Selector), err)
	}
	if !found {
		return newError(BackendCDP, "hover", fmt.Sprintf("no element matches %q", el.Selector), nil)
	}
	return nil
}

func (d *cdpDriver) WaitFor(ctx context.Context, cond WaitCondition, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.cfg.DefaultWaitTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	switch cond.Kind {
	case WaitElementExists:
		err = d.run(waitCtx, chromedp.WaitReady(cond.Target, chromedp.ByQuery))
	case WaitElementVisible:
		err = d.run(waitCtx, chromedp.WaitVisible(cond.Target, chromedp.ByQuery))
	case WaitURLContains:
		err = d.waitURLContains(waitCtx, cond.Target)
	default:
		return newError(BackendCDP, "wait", fmt.Sprintf("unknown wait condition: %s", cond.Kind), nil)
	}
	if err != nil {
		return newError(BackendCDP, "wait",
			fmt.Sprintf("condition %s(%q) not met within %s", cond.Kind, cond.Target, timeout), err)
	}
	return nil
}

func (d *cdpDriver) waitURLContains(ctx context.Context, substr string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		var loc string
		if err := d.run(ctx, chromedp.Location(&loc)); err != nil {
			return err
		}
		if strings.Contains(loc, substr) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *cdpDriver) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := d.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", newError(BackendCDP, "current_url", "failed to read location", err)
	}
	return loc, nil
}

func (d *cdpDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, newError(BackendCDP, "screenshot", "failed to capture screenshot", err)
	}
	return buf, nil
}

func (d *cdpDriver) Evaluate(ctx context.Context, script string) (any, error) {
	var out any
	if err := d.run(ctx, chromedp.Evaluate(script, &out)); err != nil {
		return nil, newError(BackendCDP, "evaluate", "script evaluation failed", err)
	}
	return out, nil
}

func (d *cdpDriver) Close(ctx context.Context) error {
	err := chromedp.Cancel(d.browserCtx)
	d.browserCancel()
	d.allocCancel()
	if err != nil {
		return newError(BackendCDP, "close", "failed to close browser", err)
	}
	return nil
}
