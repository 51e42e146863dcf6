package app

import (
	"errors"
	"strings"
	"testing"

	"github.com/TheNickoos/GilsTracker/internal/game"
	"github.com/TheNickoos/GilsTracker/internal/session"
	"github.com/TheNickoos/GilsTracker/internal/tui/client"
	"github.com/TheNickoos/GilsTracker/internal/tui/views/debug"
	"github.com/TheNickoos/GilsTracker/internal/tui/views/detail"
	tea "github.com/charmbracelet/bubbletea"
)

func newTestModel() Model {
	m := New(nil, nil, "notty")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)
	m.connected = true
	m.statusBar.Connected = true
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	var msg tea.KeyMsg
	switch k {
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	return update(t, m, msg)
}

func trackingSnapshot(net int64) client.WSSnapshotMsg {
	return client.WSSnapshotMsg{Payload: client.SnapshotPayload{
		Session: client.Summary{
			Status: session.Tracking, LoggedIn: true, Tracking: true,
			Baseline: 1000, Current: 1000 + net, Net: net, Gained: net, PerHour: 300,
		},
		Display: client.Display{ShowStatusEntry: true},
		History: []client.Change{{Net: net, Delta: net, Current: 1000 + net}},
	}}
}

func TestDisconnectOverlay(t *testing.T) {
	m := New(nil, nil, "notty")
	m.width = 80
	m.height = 24
	m.connected = false

	v := m.View()
	if !strings.Contains(v, "DISCONNECTED") {
		t.Error("disconnect overlay should contain 'DISCONNECTED'")
	}
	if !strings.Contains(v, "Reconnecting") {
		t.Error("disconnect overlay should contain 'Reconnecting'")
	}
}

func TestSnapshotUpdatesStatusEntry(t *testing.T) {
	m := newTestModel()
	if !strings.Contains(m.View(), session.PlaceholderText) {
		t.Error("status entry should show the placeholder before any data")
	}

	m = update(t, m, trackingSnapshot(1200))
	v := m.View()
	if !strings.Contains(v, "Gil +1.2k | 300/h") {
		t.Errorf("status entry not updated:\n%s", v)
	}
	if !strings.Contains(v, "r: reset session") {
		t.Error("tooltip should carry the reset hint")
	}
}

func TestChangeAppendsHistory(t *testing.T) {
	m := newTestModel()
	m = update(t, m, trackingSnapshot(100))
	m = update(t, m, client.WSChangeMsg{Payload: client.ChangePayload{
		Changes: []client.Change{{Net: 50, Delta: -50, Current: 1050}},
		Session: client.Summary{Status: session.Tracking, LoggedIn: true, Tracking: true, Net: 50},
	}})
	if len(m.detail.History) != 2 {
		t.Fatalf("history len = %d, want 2", len(m.detail.History))
	}
	if m.detail.Summary.Net != 50 {
		t.Errorf("summary net = %d, want 50", m.detail.Summary.Net)
	}
	if events := m.debug.Events(); len(events) == 0 || events[len(events)-1].Kind != debug.KindGil {
		t.Error("changes should be logged to the debug view")
	}
}

func TestWindowToggle(t *testing.T) {
	m := newTestModel()
	m = press(t, m, "w")
	if m.overlay != OverlayDetail {
		t.Fatal("w should open the session window")
	}
	if !strings.Contains(m.View(), detail.TextLoggedOut) {
		t.Error("session window should say not logged in")
	}

	m = update(t, m, client.WSSnapshotMsg{Payload: client.SnapshotPayload{
		Session: client.Summary{Status: session.Initializing, LoggedIn: true},
		Display: client.Display{ShowStatusEntry: true},
	}})
	if !strings.Contains(m.View(), detail.TextInitializing) {
		t.Error("session window should say initializing")
	}

	m = press(t, m, "w")
	if m.overlay != OverlayNone {
		t.Error("w again should close the session window")
	}
}

func TestSettingsToggle(t *testing.T) {
	m := newTestModel()
	m = press(t, m, "c")
	if m.overlay != OverlaySettings {
		t.Fatal("c should open settings")
	}
	if !strings.Contains(m.View(), "[x] Show status entry") {
		t.Error("checkbox should start checked")
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m = next.(Model)
	if !m.settings.Saving || cmd == nil {
		t.Fatal("space should start saving the toggled value")
	}
	// Without an HTTP client the save fails and nothing changes.
	m = update(t, m, cmd())
	if m.settings.Saving || m.settings.Err == "" {
		t.Errorf("settings = %+v, want a save error", m.settings)
	}

	m = update(t, m, displaySavedMsg{display: &client.Display{ShowStatusEntry: false}})
	if m.statusBar.Visible {
		t.Error("saved display should hide the status entry")
	}
	if !strings.Contains(m.View(), "[ ] Show status entry") {
		t.Error("checkbox should be cleared")
	}

	m = press(t, m, "esc")
	if m.overlay != OverlayNone {
		t.Error("esc should close settings")
	}
	if strings.Contains(m.View(), session.PlaceholderText) {
		t.Error("hidden status entry should not render")
	}
}

func TestConfigMessageHidesEntry(t *testing.T) {
	m := newTestModel()
	m = update(t, m, client.WSConfigMsg{Payload: client.ConfigPayload{Display: client.Display{ShowStatusEntry: false}}})
	if m.statusBar.Visible || m.settings.ShowStatusEntry {
		t.Error("config message should hide the entry and clear the checkbox")
	}
}

func TestResetDone(t *testing.T) {
	m := newTestModel()
	m = update(t, m, trackingSnapshot(500))

	m = update(t, m, resetDoneMsg{err: errors.New("POST /api/session/reset: 401 unauthorized")})
	if !strings.Contains(m.View(), "401") {
		t.Error("reset failure should be shown")
	}

	m = update(t, m, resetDoneMsg{summary: &client.Summary{Status: session.Initializing, LoggedIn: true}})
	if m.lastError != "" {
		t.Error("successful reset should clear the error")
	}
	if len(m.detail.History) != 0 {
		t.Error("reset should clear recent changes")
	}
	if !strings.Contains(m.View(), session.PlaceholderText) {
		t.Error("status entry should return to the placeholder")
	}
}

func TestResetWithoutClientIsNoop(t *testing.T) {
	m := newTestModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd != nil {
		t.Error("reset without an HTTP client should not issue a command")
	}
}

func TestNewSeedsStatusBarWidth(t *testing.T) {
	m := New(nil, nil, "notty")
	m.connected = true
	m.statusBar.Connected = true
	snap := trackingSnapshot(10)
	snap.Payload.Health = &game.Health{Status: game.StatusFailed}
	m = update(t, m, snap)
	if m.statusBar.Width != m.width {
		t.Errorf("statusBar.Width = %d, want %d", m.statusBar.Width, m.width)
	}
	if !strings.Contains(m.statusBar.View(), "feed: failed") {
		t.Error("health marker should not wrap before the first resize")
	}
}

func TestDebugOverlayAndHealth(t *testing.T) {
	m := newTestModel()
	snap := trackingSnapshot(10)
	snap.Payload.Health = &game.Health{Status: game.StatusFailed, LastError: "open feed: permission denied"}
	m = update(t, m, snap)
	if !strings.Contains(m.View(), "feed: failed") {
		t.Error("failed feed should be visible in the status bar")
	}

	m = press(t, m, "d")
	if m.overlay != OverlayDebug {
		t.Fatal("d should open the debug log")
	}
	if !strings.Contains(m.View(), "feed failed") {
		t.Error("health transition should be logged")
	}
	m = press(t, m, "d")
	if m.overlay != OverlayNone {
		t.Error("d again should close the debug log")
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}
}

func TestErrorMessageShown(t *testing.T) {
	m := newTestModel()
	m = update(t, m, client.WSErrorMsg{Message: "too many websocket connections"})
	if !strings.Contains(m.View(), "too many websocket connections") {
		t.Error("server error should be shown")
	}
}
