package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/config"
	"github.com/TheNickoos/GilsTracker/internal/game"
	"github.com/TheNickoos/GilsTracker/internal/session"
	"github.com/TheNickoos/GilsTracker/internal/tracker"
	"github.com/gorilla/websocket"
)

var displayOff = config.DisplayConfig{ShowStatusEntry: false}

type fakeBackend struct {
	mu      sync.Mutex
	summary session.Summary
	history []tracker.Change
	health  *game.Health
	display config.DisplayConfig
	resets  int
	saveErr error
}

func (f *fakeBackend) Summary() session.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary
}

func (f *fakeBackend) History() []tracker.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history
}

func (f *fakeBackend) Health() *game.Health { return f.health }

func (f *fakeBackend) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.summary = session.Summary{Status: session.Initializing, LoggedIn: true}
	f.history = nil
}

func (f *fakeBackend) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func (f *fakeBackend) Display() config.DisplayConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.display
}

func (f *fakeBackend) SetDisplay(d config.DisplayConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.display = d
	return nil
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *fakeBackend, *Broadcaster) {
	t.Helper()
	backend := &fakeBackend{
		summary: session.Summary{Status: session.Tracking, LoggedIn: true, Tracking: true, Net: 1200, Gained: 1500, Spent: 300},
		history: []tracker.Change{{Delta: 1500}, {Delta: -300}},
		display: config.DisplayConfig{ShowStatusEntry: true},
	}
	b := NewBroadcaster(func() SnapshotPayload {
		return SnapshotPayload{Session: backend.Summary(), Display: backend.Display(), History: backend.History()}
	}, 10*time.Millisecond, time.Hour, 1)
	t.Cleanup(b.Stop)

	srv := httptest.NewServer(NewServer(backend, b, nil, token).Handler())
	t.Cleanup(srv.Close)
	return srv, backend, b
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func TestGetSession(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/session")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var s session.Summary
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Net != 1200 || s.Status != session.Tracking {
		t.Errorf("summary = %+v", s)
	}
}

func TestResetRequiresPost(t *testing.T) {
	srv, backend, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/session/reset")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET reset status = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/api/session/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST reset status = %d", resp.StatusCode)
	}
	var s session.Summary
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if backend.resetCount() != 1 || s.Tracking {
		t.Errorf("resets = %d, summary = %+v", backend.resetCount(), s)
	}
}

func TestGetHistory(t *testing.T) {
	srv, backend, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/history")
	if err != nil {
		t.Fatal(err)
	}
	var h []tracker.Change
	json.NewDecoder(resp.Body).Decode(&h)
	resp.Body.Close()
	if len(h) != 2 || h[1].Delta != -300 {
		t.Errorf("history = %+v", h)
	}

	backend.Reset()
	resp, err = http.Get(srv.URL + "/api/history")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var raw json.RawMessage
	json.NewDecoder(resp.Body).Decode(&raw)
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Errorf("empty history should encode as [], got %s", raw)
	}
}

func TestConfigGetAndPut(t *testing.T) {
	srv, backend, _ := newTestServer(t, "")

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/config", strings.NewReader(`{"display":{"showStatusEntry":false}}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}
	if backend.Display().ShowStatusEntry {
		t.Error("PUT should disable the status entry")
	}

	resp, err = http.Get(srv.URL + "/api/config")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var cfg ConfigPayload
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Display.ShowStatusEntry {
		t.Error("GET should reflect the saved preference")
	}
}

func TestConfigPutRejectsBadBody(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	for _, body := range []string{`{`, `{"display":{"showStatusEntry":"yes"}}`, `{"bogus":1}`} {
		req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/config", strings.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestConfigPutSaveFailure(t *testing.T) {
	srv, backend, _ := newTestServer(t, "")
	backend.saveErr = errors.New("disk full")

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/config", strings.NewReader(`{"display":{"showStatusEntry":false}}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, backend, _ := newTestServer(t, "secret")
	backend.health = &game.Health{Status: game.StatusFailed, ReadFailures: 3}

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz should not require auth, status = %d", resp.StatusCode)
	}
	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "degraded" || h.Source == nil || h.Source.ReadFailures != 3 {
		t.Errorf("health = %+v", h)
	}
}

func TestAuthorize(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")

	tests := []struct {
		name   string
		mutate func(*http.Request)
		want   int
	}{
		{"no token", func(*http.Request) {}, http.StatusUnauthorized},
		{"wrong token", func(r *http.Request) { r.Header.Set(TokenHeader, "nope") }, http.StatusUnauthorized},
		{"query token", func(r *http.Request) { r.URL.RawQuery = "token=secret" }, http.StatusOK},
		{"header token", func(r *http.Request) { r.Header.Set(TokenHeader, "secret") }, http.StatusOK},
		{"bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }, http.StatusOK},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/session", nil)
		tt.mutate(req)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	open := NewServer(&fakeBackend{}, nil, nil, "")
	restricted := NewServer(&fakeBackend{}, nil, []string{"https://dash.example.com"}, "")

	tests := []struct {
		name   string
		s      *Server
		origin string
		want   bool
	}{
		{"no origin", open, "", true},
		{"localhost", open, "http://localhost:5173", true},
		{"loopback v6", open, "http://[::1]:3000", true},
		{"same host", open, "http://gil.local:8787", true},
		{"foreign", open, "https://evil.example.com", false},
		{"allowed", restricted, "https://dash.example.com", true},
		{"not allowed", restricted, "http://localhost:5173", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://gil.local:8787/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := tt.s.checkOrigin(req); got != tt.want {
			t.Errorf("%s: checkOrigin = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWebSocketEndToEnd(t *testing.T) {
	srv, _, b := newTestServer(t, "secret")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=secret"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msg, payload := readMessage(t, conn)
	if msg.Type != MsgSnapshot {
		t.Fatalf("type = %s, want snapshot", msg.Type)
	}
	var snap SnapshotPayload
	if err := json.Unmarshal(payload, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Session.Net != 1200 || len(snap.History) != 2 || !snap.Display.ShowStatusEntry {
		t.Errorf("snapshot = %+v", snap)
	}

	b.QueueChange(tracker.Change{Delta: 10, Net: 1210}, session.Summary{Net: 1210})
	msg, _ = readMessage(t, conn)
	if msg.Type != MsgChange {
		t.Errorf("type = %s, want change", msg.Type)
	}

	// The connection limit is 1, so a second client is told why and closed.
	second, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer second.Close()
	msg, payload = readMessage(t, second)
	if msg.Type != MsgError {
		t.Fatalf("second client type = %s, want error", msg.Type)
	}
	var e ErrorPayload
	json.Unmarshal(payload, &e)
	if !strings.Contains(e.Message, "too many") {
		t.Errorf("error message = %q", e.Message)
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial should fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}
