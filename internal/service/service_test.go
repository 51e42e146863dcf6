package service

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/config"
	"github.com/TheNickoos/GilsTracker/internal/game"
	"github.com/TheNickoos/GilsTracker/internal/notify"
	"github.com/TheNickoos/GilsTracker/internal/session"
	"github.com/TheNickoos/GilsTracker/internal/tracker"
	"github.com/TheNickoos/GilsTracker/internal/ws"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGame struct {
	mu     sync.Mutex
	active bool
	gil    int64
	err    error
}

func (g *fakeGame) IsSessionActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

func (g *fakeGame) ReadTrackedQuantity() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gil, g.err
}

func (g *fakeGame) set(active bool, gil int64) {
	g.mu.Lock()
	g.active, g.gil = active, gil
	g.mu.Unlock()
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	game    *fakeGame
	tracker *tracker.Tracker
	svc     *Service
}

func newFixture(t *testing.T, cfgPath string, opts ...Option) *fixture {
	t.Helper()
	g := &fakeGame{}
	clock := &stepClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	tr := tracker.New(g, g, nil, tracker.WithClock(clock))
	svc := New(tr, config.Default(), cfgPath, opts...)
	t.Cleanup(svc.Close)
	return &fixture{game: g, tracker: tr, svc: svc}
}

// tickTo sets the game state and processes one tracker tick.
func (f *fixture) tickTo(active bool, gil int64) {
	f.game.set(active, gil)
	f.tracker.Tick()
}

func TestServiceRecordsHistory(t *testing.T) {
	f := newFixture(t, "")

	f.tickTo(true, 1000)
	assert.Empty(t, f.svc.History(), "anchoring the baseline is not a change")

	f.tickTo(true, 1200)
	f.tickTo(true, 1150)

	hist := f.svc.History()
	require.Len(t, hist, 2)
	assert.EqualValues(t, 200, hist[0].Delta)
	assert.EqualValues(t, -50, hist[1].Delta)

	sum := f.svc.Summary()
	assert.Equal(t, session.Tracking, sum.Status)
	assert.EqualValues(t, 150, sum.Net)
	assert.EqualValues(t, 200, sum.Gained)
	assert.EqualValues(t, 50, sum.Spent)
}

func TestServiceResetClearsHistory(t *testing.T) {
	f := newFixture(t, "")
	f.tickTo(true, 1000)
	f.tickTo(true, 1100)
	require.Len(t, f.svc.History(), 1)

	f.svc.Reset()
	assert.Empty(t, f.svc.History())
	assert.False(t, f.tracker.HasBaseline())

	f.tickTo(true, 5000)
	f.tickTo(true, 5010)
	hist := f.svc.History()
	require.Len(t, hist, 1)
	assert.EqualValues(t, 10, hist[0].Net)
}

func TestServiceHistoryEndsWithSession(t *testing.T) {
	f := newFixture(t, "")
	f.tickTo(true, 1000)
	f.tickTo(true, 1100)
	require.Len(t, f.svc.History(), 1)

	f.tickTo(false, 0)
	assert.Empty(t, f.svc.History())
	assert.Equal(t, session.LoggedOut, f.svc.Summary().Status)

	f.tickTo(true, 800)
	assert.Equal(t, session.Tracking, f.svc.Summary().Status)
	assert.Empty(t, f.svc.History(), "old session changes must not leak into a new one")
}

func TestServiceSetDisplayPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	f := newFixture(t, path)
	require.True(t, f.svc.Display().ShowStatusEntry)

	require.NoError(t, f.svc.SetDisplay(config.DisplayConfig{ShowStatusEntry: false}))
	assert.False(t, f.svc.Display().ShowStatusEntry)

	saved, err := config.Load(path)
	require.NoError(t, err)
	assert.False(t, saved.Display.ShowStatusEntry)
}

func TestServiceSetDisplaySaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	f := newFixture(t, filepath.Join(blocker, "config.yaml"))
	err := f.svc.SetDisplay(config.DisplayConfig{ShowStatusEntry: false})
	require.Error(t, err)
	assert.True(t, f.svc.Display().ShowStatusEntry, "failed save must not apply the change")
}

func TestServiceApplyConfig(t *testing.T) {
	f := newFixture(t, "")
	cfg := config.Default()
	cfg.Tracker.PollInterval = 2 * time.Second
	cfg.Display.ShowStatusEntry = false

	f.svc.ApplyConfig(cfg)
	assert.Equal(t, 2*time.Second, f.tracker.Interval())
	assert.False(t, f.svc.Display().ShowStatusEntry)

	f.svc.ApplyConfig(nil)
	assert.Equal(t, 2*time.Second, f.tracker.Interval())
}

func TestServiceHealth(t *testing.T) {
	f := newFixture(t, "")
	assert.Nil(t, f.svc.Health())

	f = newFixture(t, "", WithHealth(func() *game.Health {
		return &game.Health{Status: game.StatusDegraded, ParseFailures: 3}
	}))
	h := f.svc.Health()
	require.NotNil(t, h)
	assert.Equal(t, game.StatusDegraded, h.Status)
	assert.Equal(t, game.StatusDegraded, f.svc.Snapshot().Health.Status)
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []*notify.GilChangedMessage
}

func (p *capturePublisher) Name() string { return "capture" }

func (p *capturePublisher) Publish(_ context.Context, m *notify.GilChangedMessage) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, m)
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func TestServiceForwardsToDispatcher(t *testing.T) {
	pub := &capturePublisher{}
	d := notify.NewDispatcher(8, pub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	f := newFixture(t, "", WithDispatcher(d))
	f.tickTo(true, 100)
	f.tickTo(true, 90)
	f.tickTo(true, 300)

	assert.Eventually(t, func() bool { return pub.count() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestServiceDropsChangeFromResetSession(t *testing.T) {
	g := &fakeGame{}
	clock := &stepClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	tr := tracker.New(g, g, nil, tracker.WithClock(clock))

	// Registered first, so the reset lands before the service sees the change.
	resetOnce := true
	tr.Observe(func(tracker.Change) {
		if resetOnce {
			resetOnce = false
			tr.ResetBaseline()
		}
	})
	svc := New(tr, config.Default(), "")
	t.Cleanup(svc.Close)

	g.set(true, 1000)
	tr.Tick()
	g.set(true, 1500)
	tr.Tick()
	assert.Empty(t, svc.History(), "stale change must not enter the history")
	assert.False(t, tr.HasBaseline())

	g.set(true, 2000)
	tr.Tick()
	g.set(true, 2100)
	tr.Tick()
	hist := svc.History()
	require.Len(t, hist, 1)
	assert.EqualValues(t, 100, hist[0].Delta)
	assert.EqualValues(t, 100, svc.Summary().Net)
}

func readWS(t *testing.T, conn *websocket.Conn) (ws.MessageType, json.RawMessage) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg struct {
		Type    ws.MessageType  `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg.Type, msg.Payload
}

func TestServiceEndToEndWebsocket(t *testing.T) {
	f := newFixture(t, "")
	b := ws.NewBroadcaster(f.svc.Snapshot, 5*time.Millisecond, time.Hour, 0)
	defer b.Stop()
	f.svc.SetBroadcaster(b)

	srv := httptest.NewServer(ws.NewServer(f.svc, b, nil, "").Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	typ, payload := readWS(t, conn)
	require.Equal(t, ws.MsgSnapshot, typ)
	var snap ws.SnapshotPayload
	require.NoError(t, json.Unmarshal(payload, &snap))
	assert.Equal(t, session.LoggedOut, snap.Session.Status)

	f.tickTo(true, 1000)
	f.tickTo(true, 1500)

	typ, payload = readWS(t, conn)
	require.Equal(t, ws.MsgChange, typ)
	var change ws.ChangePayload
	require.NoError(t, json.Unmarshal(payload, &change))
	require.Len(t, change.Changes, 1)
	assert.EqualValues(t, 500, change.Changes[0].Delta)
	assert.EqualValues(t, 500, change.Session.Net)

	f.svc.Reset()
	typ, payload = readWS(t, conn)
	require.Equal(t, ws.MsgSnapshot, typ)
	require.NoError(t, json.Unmarshal(payload, &snap))
	assert.Equal(t, session.Initializing, snap.Session.Status)
	assert.Empty(t, snap.History)

	require.NoError(t, f.svc.SetDisplay(config.DisplayConfig{ShowStatusEntry: false}))
	typ, payload = readWS(t, conn)
	require.Equal(t, ws.MsgConfig, typ)
	var cfg ws.ConfigPayload
	require.NoError(t, json.Unmarshal(payload, &cfg))
	assert.False(t, cfg.Display.ShowStatusEntry)
}

func TestServiceStatusTransitions(t *testing.T) {
	f := newFixture(t, "")
	f.svc.checkStatus()
	assert.Equal(t, session.LoggedOut, f.svc.lastStatus)

	f.game.set(true, 0)
	f.game.mu.Lock()
	f.game.err = tracker.ErrUnavailable
	f.game.mu.Unlock()
	f.tracker.Tick()
	f.svc.checkStatus()
	assert.Equal(t, session.Initializing, f.svc.lastStatus)

	f.game.mu.Lock()
	f.game.err = nil
	f.game.mu.Unlock()
	f.tickTo(true, 10)
	f.svc.checkStatus()
	assert.Equal(t, session.Tracking, f.svc.lastStatus)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx, time.Millisecond) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
