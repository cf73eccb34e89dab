package driver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeWebDriverEndpoint is a minimal W3C WebDriver server covering the
// wire calls the session backend issues.
type fakeWebDriverEndpoint struct {
	mu       sync.Mutex
	requests []string
	elements map[string][]string // selector -> element ids
	url      string
	deleted  bool
}

func newFakeEndpoint() *fakeWebDriverEndpoint {
	return &fakeWebDriverEndpoint{
		elements: make(map[string][]string),
		url:      "https://example.com/",
	}
}

func (f *fakeWebDriverEndpoint) handler() http.Handler {
	writeValue := func(w http.ResponseWriter, v any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"value": v})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/session":
			writeValue(w, map[string]string{"sessionId": "sess-1"})

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/element"):
			var body struct {
				Value string `json:"value"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			ids := f.elements[body.Value]
			f.mu.Unlock()
			if len(ids) == 0 {
				w.WriteHeader(http.StatusNotFound)
				writeValue(w, map[string]string{"error": "no such element", "message": "not found"})
				return
			}
			writeValue(w, map[string]string{w3cElementKey: ids[0]})

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/elements"):
			var body struct {
				Value string `json:"value"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			ids := f.elements[body.Value]
			f.mu.Unlock()
			refs := make([]map[string]string, 0, len(ids))
			for _, id := range ids {
				refs = append(refs, map[string]string{w3cElementKey: id})
			}
			writeValue(w, refs)

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/url"):
			var body struct {
				URL string `json:"url"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			f.url = body.URL
			f.mu.Unlock()
			writeValue(w, nil)

		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/url"):
			f.mu.Lock()
			url := f.url
			f.mu.Unlock()
			writeValue(w, url)

		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/screenshot"):
			writeValue(w, base64.StdEncoding.EncodeToString([]byte("png-bytes")))

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/execute/sync"):
			writeValue(w, true)

		case r.Method == http.MethodDelete:
			f.mu.Lock()
			f.deleted = true
			f.mu.Unlock()
			writeValue(w, nil)

		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/element/"):
			// click / value
			writeValue(w, nil)

		default:
			w.WriteHeader(http.StatusNotFound)
			writeValue(w, map[string]string{"error": "unknown command", "message": r.URL.Path})
		}
	})
}

func setupSession(t *testing.T) (*webDriverSession, *fakeWebDriverEndpoint) {
	t.Helper()

	fake := newFakeEndpoint()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	s, err := newWebDriverSession(context.Background(), Config{
		Backend:   BackendWebDriver,
		RemoteURL: server.URL,
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return s, fake
}

func TestWebDriverSessionLifecycle(t *testing.T) {
	s, fake := setupSession(t)

	if s.sessionID != "sess-1" {
		t.Fatalf("unexpected session id %q", s.sessionID)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !fake.deleted {
		t.Fatal("close must delete the remote session")
	}
}

func TestWebDriverNavigateAndURL(t *testing.T) {
	s, _ := setupSession(t)
	ctx := context.Background()

	if err := s.Navigate(ctx, "https://example.com/login"); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	url, err := s.CurrentURL(ctx)
	if err != nil {
		t.Fatalf("current url failed: %v", err)
	}
	if url != "https://example.com/login" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestWebDriverFindClickType(t *testing.T) {
	s, fake := setupSession(t)
	fake.elements["#login"] = []string{"el-1"}
	ctx := context.Background()

	el, err := s.Find(ctx, "#login")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if err := s.Click(ctx, el); err != nil {
		t.Fatalf("click failed: %v", err)
	}
	if err := s.Type(ctx, el, "alice"); err != nil {
		t.Fatalf("type failed: %v", err)
	}

	var clicked, typed bool
	for _, req := range fake.requests {
		if req == "POST /session/sess-1/element/el-1/click" {
			clicked = true
		}
		if req == "POST /session/sess-1/element/el-1/value" {
			typed = true
		}
	}
	if !clicked || !typed {
		t.Fatalf("expected click and value wire calls, got %v", fake.requests)
	}
}

func TestWebDriverFindMissingElement(t *testing.T) {
	s, _ := setupSession(t)

	_, err := s.Find(context.Background(), "#missing")
	if err == nil {
		t.Fatal("expected error for missing element")
	}
	if !strings.Contains(err.Error(), "no element matches") {
		t.Fatalf("unexpected error text: %v", err)
	}
	var derr *Error
	if !errors.As(err, &derr) || derr.Backend != BackendWebDriver {
		t.Fatalf("expected a webdriver-classified error, got %v", err)
	}
}

func TestWebDriverFindAllZeroMatches(t *testing.T) {
	s, _ := setupSession(t)

	els, err := s.FindAll(context.Background(), ".row")
	if err != nil {
		t.Fatalf("find_all failed: %v", err)
	}
	if len(els) != 0 {
		t.Fatalf("expected zero elements, got %d", len(els))
	}
}

func TestWebDriverScreenshot(t *testing.T) {
	s, _ := setupSession(t)

	data, err := s.Screenshot(context.Background())
	if err != nil {
		t.Fatalf("screenshot failed: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected screenshot payload %q", data)
	}
}

func TestFactoryRejectsUnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), Config{Backend: "puppeteer"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing backend")
	}
}

func TestFactoryWebDriverRequiresRemoteURL(t *testing.T) {
	if _, err := New(context.Background(), Config{Backend: BackendWebDriver}); err == nil {
		t.Fatal("expected error for missing remote_url")
	}
}
