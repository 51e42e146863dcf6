package app

import (
	"context"
	"fmt"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/session"
	"github.com/TheNickoos/GilsTracker/internal/tui/client"
	"github.com/TheNickoos/GilsTracker/internal/tui/theme"
	"github.com/TheNickoos/GilsTracker/internal/tui/views/debug"
	"github.com/TheNickoos/GilsTracker/internal/tui/views/detail"
	"github.com/TheNickoos/GilsTracker/internal/tui/views/settings"
	"github.com/TheNickoos/GilsTracker/internal/tui/views/status"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
	OverlaySettings
	OverlayDebug
)

const (
	historyLimit   = 50
	requestTimeout = 5 * time.Second
)

// resetDoneMsg reports the outcome of a reset request.
type resetDoneMsg struct {
	summary *client.Summary
	err     error
}

// displaySavedMsg reports the outcome of a settings change.
type displaySavedMsg struct {
	display *client.Display
	err     error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys    KeyMap
	width   int
	height  int
	overlay Overlay

	// Sub-views.
	statusBar status.Model
	detail    detail.Model
	settings  settings.Model
	debug     debug.Model

	// Connection state.
	connected bool
	lastError string
}

// defaultWidth is used until the first WindowSizeMsg arrives.
const defaultWidth = 80

// New creates the root model. helpStyle is the glamour style for the
// session window's help panel.
func New(ws *client.WSClient, http *client.HTTPClient, helpStyle string) Model {
	ctx, cancel := context.WithCancel(context.Background())
	bar := status.New()
	bar.Width = defaultWidth
	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		width:     defaultWidth,
		statusBar: bar,
		detail:    detail.New(helpStyle),
		settings:  settings.Model{ShowStatusEntry: true},
		debug:     debug.New(debug.DefaultCapacity),
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	if m.ws == nil {
		return nil
	}
	return m.ws.Listen(m.ctx)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case status.FrameMsg:
		return m, m.statusBar.Update(msg)

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.debug.Logf(debug.KindLink, "connected")
		return m, m.readNext()

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		if msg.Err != nil {
			m.debug.Logf(debug.KindLink, "disconnected: %v", msg.Err)
		}
		if m.ws == nil {
			return m, nil
		}
		return m, m.ws.Listen(m.ctx)

	case client.WSSnapshotMsg:
		p := msg.Payload
		m.detail.History = nil
		m.detail.AddChanges(p.History, historyLimit)
		m.applyDisplay(p.Display)
		if p.Health != nil {
			if m.statusBar.Health == nil || m.statusBar.Health.Status != p.Health.Status {
				m.debug.Logf(debug.KindHealth, "feed %s", p.Health.Status)
			}
		}
		m.statusBar.Health = p.Health
		cmd := m.setSummary(p.Session)
		return m, tea.Batch(cmd, m.readNext())

	case client.WSChangeMsg:
		for _, c := range msg.Payload.Changes {
			m.debug.Logf(debug.KindGil, "%s → %s", session.FormatSigned(c.Delta), session.FormatThousands(c.Current))
		}
		m.detail.AddChanges(msg.Payload.Changes, historyLimit)
		cmd := m.setSummary(msg.Payload.Session)
		return m, tea.Batch(cmd, m.readNext())

	case client.WSConfigMsg:
		m.applyDisplay(msg.Payload.Display)
		m.debug.Logf(debug.KindConfig, "show status entry: %t", msg.Payload.Display.ShowStatusEntry)
		return m, m.readNext()

	case client.WSErrorMsg:
		m.lastError = msg.Message
		m.debug.Logf(debug.KindError, "%s", msg.Message)
		return m, m.readNext()

	case resetDoneMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			m.debug.Logf(debug.KindError, "reset: %v", msg.err)
			return m, nil
		}
		m.lastError = ""
		m.detail.History = nil
		m.debug.Logf(debug.KindGil, "session reset")
		return m, m.setSummary(*msg.summary)

	case displaySavedMsg:
		m.settings.Saving = false
		if msg.err != nil {
			m.settings.Err = msg.err.Error()
			m.debug.Logf(debug.KindError, "save settings: %v", msg.err)
			return m, nil
		}
		m.settings.Err = ""
		m.applyDisplay(*msg.display)
		return m, nil
	}

	return m, nil
}

func (m *Model) setSummary(s client.Summary) tea.Cmd {
	m.detail.Summary = s
	return m.statusBar.SetSummary(s)
}

func (m *Model) applyDisplay(d client.Display) {
	m.statusBar.Visible = d.ShowStatusEntry
	m.settings.ShowStatusEntry = d.ShowStatusEntry
}

func (m Model) readNext() tea.Cmd {
	if m.ws == nil {
		return nil
	}
	return m.ws.ReadLoop(m.ctx)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.cancel()
		return m, tea.Quit
	}

	switch m.overlay {
	case OverlaySettings:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Settings):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Toggle):
			if m.settings.Saving {
				return m, nil
			}
			m.settings.Saving = true
			return m, m.saveShowStatusEntry(!m.settings.ShowStatusEntry)
		}
		return m, nil

	case OverlayDebug:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.debug.Scroll(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.Scroll(-1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Escape):
		m.overlay = OverlayNone
		return m, nil

	case key.Matches(msg, m.keys.Reset):
		return m, m.resetSession()

	case key.Matches(msg, m.keys.Window):
		if m.overlay == OverlayDetail {
			m.overlay = OverlayNone
		} else {
			m.overlay = OverlayDetail
		}
		return m, nil

	case key.Matches(msg, m.keys.Settings):
		m.overlay = OverlaySettings
		m.settings.Err = ""
		return m, nil

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil
	}

	return m, nil
}

func (m Model) resetSession() tea.Cmd {
	if m.http == nil {
		return nil
	}
	ctx, hc := m.ctx, m.http
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		s, err := hc.Reset(ctx)
		return resetDoneMsg{summary: s, err: err}
	}
}

func (m Model) saveShowStatusEntry(show bool) tea.Cmd {
	if m.http == nil {
		return func() tea.Msg {
			return displaySavedMsg{err: fmt.Errorf("not connected")}
		}
	}
	ctx, hc := m.ctx, m.http
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		d, err := hc.SetShowStatusEntry(ctx, show)
		return displaySavedMsg{display: d, err: err}
	}
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if !m.connected {
		return m.renderDisconnected()
	}

	var body string
	switch m.overlay {
	case OverlayDetail:
		body = m.detail.View()
	case OverlaySettings:
		body = m.settings.View()
	case OverlayDebug:
		body = m.debug.View(m.width, m.height-4)
	}

	sections := []string{m.statusBar.View()}
	if body != "" {
		sections = append(sections, body)
	}
	if m.lastError != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("  "+m.lastError))
	}
	sections = append(sections,
		theme.StyleDimmed.Render("  r:reset  w:window  c:settings  d:debug  q:quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	msg := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render("DISCONNECTED"),
		theme.StyleDimmed.Render("Reconnecting to gilstracker..."),
	)
	box := theme.StyleBorder.Padding(1, 4).Render(msg)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
