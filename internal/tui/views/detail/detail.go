// Package detail renders the session window: the baseline, current gil,
// session totals and the most recent changes.
package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/session"
	"github.com/TheNickoos/GilsTracker/internal/tui/client"
	"github.com/TheNickoos/GilsTracker/internal/tui/theme"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	panelWidth    = 56
	labelWidth    = 10
	recentChanges = 8
)

// Window texts.
const (
	TextLoggedOut    = "Not logged in."
	TextInitializing = "Initializing... (waiting for first gil read)"
)

const helpMarkdown = `**Keys**

- ` + "`r`" + ` reset the session baseline
- ` + "`w`" + ` close this window
- ` + "`c`" + ` settings
- ` + "`q`" + ` quit
`

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorGil)

	styleSectionHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorDimmed)
)

// Model holds the state for the detail window.
type Model struct {
	Summary client.Summary
	History []client.Change

	help string
	now  func() time.Time
}

// New creates a detail model. style is a glamour standard style name
// ("dark", "light", "notty", ...).
func New(style string) Model {
	return Model{
		help: renderHelp(style),
		now:  time.Now,
	}
}

func renderHelp(style string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(panelWidth-4),
	)
	if err != nil {
		return helpMarkdown
	}
	out, err := r.Render(helpMarkdown)
	if err != nil {
		return helpMarkdown
	}
	return strings.Trim(out, "\n")
}

// AddChanges appends changes, keeping at most limit entries.
func (m *Model) AddChanges(changes []client.Change, limit int) {
	m.History = append(m.History, changes...)
	if limit > 0 && len(m.History) > limit {
		m.History = append([]client.Change(nil), m.History[len(m.History)-limit:]...)
	}
}

// View renders the detail panel.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("GilsTracker") + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")

	s := m.Summary
	switch {
	case !s.LoggedIn:
		b.WriteString(TextLoggedOut + "\n")
	case !s.Tracking:
		b.WriteString(TextInitializing + "\n")
	default:
		m.renderTotals(&b, s)
		m.renderRecent(&b)
	}

	if m.help != "" {
		b.WriteString("\n" + m.help)
	}
	return stylePanel.Width(panelWidth).Render(b.String())
}

func (m Model) renderTotals(b *strings.Builder, s client.Summary) {
	writeRow(b, "Start", session.FormatThousands(s.Baseline), theme.ColorBright)
	writeRow(b, "Current", session.FormatThousands(s.Current), theme.ColorBright)
	writeRow(b, "Net", signed(s.Net), theme.TrendColor(s.Net))
	writeRow(b, "Gained", "+"+session.FormatThousands(s.Gained), theme.ColorGain)
	writeRow(b, "Spent", "-"+session.FormatThousands(s.Spent), theme.ColorLoss)
	writeRow(b, "Rate", session.FormatThousands(s.PerHour)+" / hour", theme.TrendColor(s.PerHour))
	if s.StartedAt != nil {
		writeRow(b, "Session", formatDuration(m.now().Sub(*s.StartedAt)), theme.ColorBright)
	}
}

func (m Model) renderRecent(b *strings.Builder) {
	if len(m.History) == 0 {
		return
	}
	b.WriteString("\n" + styleSectionHeader.Render("Recent changes") + "\n")
	n := 0
	for i := len(m.History) - 1; i >= 0 && n < recentChanges; i-- {
		c := m.History[i]
		delta := lipgloss.NewStyle().Foreground(theme.TrendColor(c.Delta)).
			Render(fmt.Sprintf("%s %-8s", theme.TrendGlyph(c.Delta), signed(c.Delta)))
		at := "--:--:--"
		if !c.At.IsZero() {
			at = c.At.Local().Format("15:04:05")
		}
		fmt.Fprintf(b, "  %s  %s  → %s\n", theme.StyleDimmed.Render(at), delta, session.FormatThousands(c.Current))
		n++
	}
}

func writeRow(b *strings.Builder, label, value string, color lipgloss.Color) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Foreground(color).Render(value) + "\n")
}

func signed(v int64) string {
	if v >= 0 {
		return "+" + session.FormatThousands(v)
	}
	return session.FormatThousands(v)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
