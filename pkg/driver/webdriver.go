package driver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// webDriverSession drives a remote browser through the W3C WebDriver
// protocol (the wire protocol spoken by Selenium servers and browser
// drivers such as chromedriver and geckodriver). The protocol is plain
// JSON over HTTP, so the session talks to the endpoint directly.
type webDriverSession struct {
	cfg       Config
	client    *http.Client
	baseURL   string
	sessionID string
}

// w3cElementKey is the reserved JSON key element references are
// returned under, per the WebDriver specification.
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

func newWebDriverSession(ctx context.Context, cfg Config) (*webDriverSession, error) {
	if cfg.RemoteURL == "" {
		return nil, fmt.Errorf("webdriver backend requires remote_url")
	}
	browserName := cfg.BrowserName
	if browserName == "" {
		browserName = "chrome"
	}

	s := &webDriverSession{
		cfg:     cfg,
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: strings.TrimRight(cfg.RemoteURL, "/"),
	}

	caps := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"browserName": browserName,
			},
		},
	}
	var resp struct {
		Value struct {
			SessionID string `json:"sessionId"`
		} `json:"value"`
	}
	if err := s.do(ctx, http.MethodPost, "/session", caps, &resp); err != nil {
		return nil, newError(BackendWebDriver, "start", "failed to create session", err)
	}
	if resp.Value.SessionID == "" {
		return nil, newError(BackendWebDriver, "start", "endpoint returned no session id", nil)
	}
	s.sessionID = resp.Value.SessionID
	return s, nil
}

// Backend reports the backend identity used in error and telemetry
// labels.
func (s *webDriverSession) Backend() Backend {
	return BackendWebDriver
}

func (s *webDriverSession) Navigate(ctx context.Context, url string) error {
	err := s.do(ctx, http.MethodPost, s.path("/url"), map[string]any{"url": url}, nil)
	if err != nil {
		return newError(BackendWebDriver, "navigate", fmt.Sprintf("failed to navigate to %s", url), err)
	}
	return nil
}

func (s *webDriverSession) Find(ctx context.Context, selector string) (Element, error) {
	var resp struct {
		Value map[string]string `json:"value"`
	}
	err := s.do(ctx, http.MethodPost, s.path("/element"), locator(selector), &resp)
	if err != nil {
		return Element{}, newError(BackendWebDriver, "find", fmt.Sprintf("no element matches %q", selector), err)
	}
	return Element{Selector: selector, node: resp.Value[w3cElementKey]}, nil
}

func (s *webDriverSession) FindAll(ctx context.Context, selector string) ([]Element, error) {
	var resp struct {
		Value []map[string]string `json:"value"`
	}
	err := s.do(ctx, http.MethodPost, s.path("/elements"), locator(selector), &resp)
	if err != nil {
		return nil, newError(BackendWebDriver, "find_all", fmt.Sprintf("failed to query %q", selector), err)
	}
	elements := make([]Element, 0, len(resp.Value))
	for _, ref := range resp.Value {
		elements = append(elements, Element{Selector: selector, node: ref[w3cElementKey]})
	}
	return elements, nil
}

func (s *webDriverSession) Click(ctx context.Context, el Element) error {
	id, err := s.elementID(ctx, el)
	if err != nil {
		return err
	}
	if err := s.do(ctx, http.MethodPost, s.path("/element/"+id+"/click"), map[string]any{}, nil); err != nil {
		return newError(BackendWebDriver, "click", fmt.Sprintf("failed to click %q", el.Selector), err)
	}
	return nil
}

func (s *webDriverSession) Type(ctx context.Context, el Element, text string) error {
	id, err := s.elementID(ctx, el)
	if err != nil {
		return err
	}
	body := map[string]any{"text": text}
	if err := s.do(ctx, http.MethodPost, s.path("/element/"+id+"/value"), body, nil); err != nil {
		return newError(BackendWebDriver, "type", fmt.Sprintf("failed to type into %q", el.Selector), err)
	}
	return nil
}

func (s *webDriverSession) Select(ctx context.Context, el Element, value string) error {
	script := `const el = arguments[0]; el.value = arguments[1]; el.dispatchEvent(new Event("change", {bubbles: true}));`
	id, err := s.elementID(ctx, el)
	if err != nil {
		return err
	}
	args := []any{map[string]string{w3cElementKey: id}, value}
	if _, err := s.executeScript(ctx, script, args); err != nil {
		return newError(BackendWebDriver, "select", fmt.Sprintf("failed to select %q in %q", value, el.Selector), err)
	}
	return nil
}

func (s *webDriverSession) Hover(ctx context.Context, el Element) error {
	script := `arguments[0].dispatchEvent(new MouseEvent("mouseover", {bubbles: true}));`
	id, err := s.elementID(ctx, el)
	if err != nil {
		return err
	}
	args := []any{map[string]string{w3cElementKey: id}}
	if _, err := s.executeScript(ctx, script, args); err != nil {
		return newError(BackendWebDriver, "hover", fmt.Sprintf("failed to hover %q", el.Selector), err)
	}
	return nil
}

func (s *webDriverSession) WaitFor(ctx context.Context, cond WaitCondition, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.cfg.DefaultWaitTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := s.conditionHolds(waitCtx, cond)
		if err == nil && ok {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return newError(BackendWebDriver, "wait",
				fmt.Sprintf("condition %s(%q) not met within %s", cond.Kind, cond.Target, timeout), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (s *webDriverSession) conditionHolds(ctx context.Context, cond WaitCondition) (bool, error) {
	switch cond.Kind {
	case WaitElementExists:
		els, err := s.FindAll(ctx, cond.Target)
		return err == nil && len(els) > 0, err
	case WaitElementVisible:
		script := `const el = document.querySelector(arguments[0]); return el !== null && el.offsetParent !== null;`
		v, err := s.executeScript(ctx, script, []any{cond.Target})
		if err != nil {
			return false, err
		}
		visible, _ := v.(bool)
		return visible, nil
	case WaitURLContains:
		url, err := s.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(url, cond.Target), nil
	default:
		return false, fmt.Errorf("unknown wait condition: %s", cond.Kind)
	}
}

func (s *webDriverSession) CurrentURL(ctx context.Context) (string, error) {
	var resp struct {
		Value string `json:"value"`
	}
	if err := s.do(ctx, http.MethodGet, s.path("/url"), nil, &resp); err != nil {
		return "", newError(BackendWebDriver, "current_url", "failed to read url", err)
	}
	return resp.Value, nil
}

func (s *webDriverSession) Screenshot(ctx context.Context) ([]byte, error) {
	var resp struct {
		Value string `json:"value"`
	}
	if err := s.do(ctx, http.MethodGet, s.path("/screenshot"), nil, &resp); err != nil {
		return nil, newError(BackendWebDriver, "screenshot", "failed to capture screenshot", err)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Value)
	if err != nil {
		return nil, newError(BackendWebDriver, "screenshot", "endpoint returned malformed image data", err)
	}
	return data, nil
}

func (s *webDriverSession) Evaluate(ctx context.Context, script string) (any, error) {
	v, err := s.executeScript(ctx, "return "+script+";", []any{})
	if err != nil {
		return nil, newError(BackendWebDriver, "evaluate", "script evaluation failed", err)
	}
	return v, nil
}

func (s *webDriverSession) Close(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, s.path(""), nil, nil); err != nil {
		return newError(BackendWebDriver, "close", "failed to delete session", err)
	}
	return nil
}

// elementID returns the wire reference of the element, re-locating by
// selector when the handle carries none.
func (s *webDriverSession) elementID(ctx context.Context, el Element) (string, error) {
	if id, ok := el.node.(string); ok && id != "" {
		return id, nil
	}
	found, err := s.Find(ctx, el.Selector)
	if err != nil {
		return "", err
	}
	return found.node.(string), nil
}

func (s *webDriverSession) executeScript(ctx context.Context, script string, args []any) (any, error) {
	var resp struct {
		Value any `json:"value"`
	}
	body := map[string]any{"script": script, "args": args}
	if err := s.do(ctx, http.MethodPost, s.path("/execute/sync"), body, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (s *webDriverSession) path(suffix string) string {
	return "/session/" + s.sessionID + suffix
}

// do issues one wire-protocol request. Non-2xx responses are decoded
// into the protocol's error envelope.
func (s *webDriverSession) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var wireErr struct {
			Value struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			} `json:"value"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&wireErr); decodeErr == nil && wireErr.Value.Error != "" {
			return fmt.Errorf("%s: %s", wireErr.Value.Error, wireErr.Value.Message)
		}
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func locator(selector string) map[string]any {
	return map[string]any{"using": "css selector", "value": selector}
}
