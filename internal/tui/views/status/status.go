// Package status renders the status-bar entry: the session net, its hourly
// rate, and the tooltip line beneath it.
package status

import (
	"math"
	"strings"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/session"
	"github.com/TheNickoos/GilsTracker/internal/tui/client"
	"github.com/TheNickoos/GilsTracker/internal/tui/theme"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
)

// ResetHint is the tooltip's last line in the TUI.
const ResetHint = "r: reset session"

const fps = 60

// FrameMsg advances the net counter animation by one frame.
type FrameMsg time.Time

func frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(t time.Time) tea.Msg { return FrameMsg(t) })
}

// Model holds the status bar state.
type Model struct {
	Connected bool
	// Visible mirrors display.show_status_entry.
	Visible bool
	Health  *client.Health
	Width   int

	summary client.Summary

	// The displayed net follows the real one on a spring.
	spring    harmonica.Spring
	pos, vel  float64
	animating bool
}

// New creates a status bar model.
func New() Model {
	return Model{
		Visible: true,
		spring:  harmonica.NewSpring(harmonica.FPS(fps), 6.0, 1.0),
	}
}

// SetSummary records new session totals and returns a command that starts
// the counter animation when the net moved.
func (m *Model) SetSummary(s client.Summary) tea.Cmd {
	wasTracking := m.summary.Tracking
	m.summary = s

	if !s.Tracking {
		m.pos, m.vel, m.animating = 0, 0, false
		return nil
	}
	// The first read of a session jumps straight to the value.
	if !wasTracking {
		m.pos, m.vel, m.animating = float64(s.Net), 0, false
		return nil
	}
	if m.animating || int64(math.Round(m.pos)) == s.Net {
		return nil
	}
	m.animating = true
	return frame()
}

// Update steps the animation.
func (m *Model) Update(FrameMsg) tea.Cmd {
	if !m.animating {
		return nil
	}
	target := float64(m.summary.Net)
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, target)
	if math.Abs(target-m.pos) < 0.5 && math.Abs(m.vel) < 0.5 {
		m.pos, m.vel, m.animating = target, 0, false
		return nil
	}
	return frame()
}

// Animating reports whether the counter is still moving.
func (m Model) Animating() bool { return m.animating }

// Summary returns the latest totals.
func (m Model) Summary() client.Summary { return m.summary }

// DisplayedNet is the net value currently shown, mid-animation included.
func (m Model) DisplayedNet() int64 {
	if !m.summary.Tracking {
		return 0
	}
	return int64(math.Round(m.pos))
}

// Text is the status entry text, e.g. "Gil +1.2k | 300/h".
func (m Model) Text() string {
	s := m.summary
	s.Net = m.DisplayedNet()
	return session.StatusText(s)
}

// Tooltip is the tooltip body on one line.
func (m Model) Tooltip() string {
	lines := strings.Split(session.Tooltip(m.summary, ResetHint), "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.Join(lines, "  ")
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}
	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")

	content := connStr
	if m.Visible {
		entryStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.TrendColor(m.summary.Net))
		if !m.summary.Tracking {
			entryStyle = theme.StyleDimmed
		}
		content += sep + entryStyle.Render(m.Text())
	} else {
		content += sep + theme.StyleDimmed.Render("status entry hidden (c: settings)")
	}
	if m.Health != nil && m.Health.Status != "healthy" {
		content += sep + lipgloss.NewStyle().Foreground(theme.HealthColor(string(m.Health.Status))).
			Render("feed: "+string(m.Health.Status))
	}
	if m.Visible {
		content += "\n" + theme.StyleDimmed.Render(m.Tooltip())
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
