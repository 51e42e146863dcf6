// Package debug renders the event log overlay: connection changes, gil
// movements, config and health updates, and errors as they reach the TUI.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/tui/theme"
	"github.com/charmbracelet/lipgloss"
)

// Kind classifies a log event by the message that produced it.
type Kind int

const (
	KindLink   Kind = iota // websocket connect and disconnect
	KindGil                // change messages and resets
	KindConfig             // config messages
	KindHealth             // feed health transitions in snapshots
	KindError              // error messages and failed requests
	kindCount
)

var kindLabels = [kindCount]string{"link", "gil", "cfg", "hlth", "err"}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "?"
	}
	return kindLabels[k]
}

func (k Kind) color() lipgloss.Color {
	switch k {
	case KindLink:
		return theme.ColorTracking
	case KindGil:
		return theme.ColorGil
	case KindConfig:
		return theme.ColorInitializing
	case KindHealth:
		return theme.ColorWarning
	case KindError:
		return theme.ColorDanger
	}
	return theme.ColorDimmed
}

// Event is one log line.
type Event struct {
	At   time.Time
	Kind Kind
	Text string
}

// DefaultCapacity bounds the log when New is given a non-positive size.
const DefaultCapacity = 200

// Model is a bounded event log viewed from the newest end.
type Model struct {
	events   []Event
	capacity int
	counts   [kindCount]int
	// back is how many events the view is scrolled away from the newest.
	back int
	now  func() time.Time
}

func New(capacity int) Model {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return Model{capacity: capacity, now: time.Now}
}

// Logf records an event stamped with the current time.
func (m *Model) Logf(kind Kind, format string, args ...any) {
	m.Record(Event{At: m.now(), Kind: kind, Text: fmt.Sprintf(format, args...)})
}

// Record appends e, evicting the oldest event when full, and jumps back to
// the newest entry.
func (m *Model) Record(e Event) {
	if len(m.events) == m.capacity {
		copy(m.events, m.events[1:])
		m.events = m.events[:len(m.events)-1]
	}
	m.events = append(m.events, e)
	if e.Kind >= 0 && e.Kind < kindCount {
		m.counts[e.Kind]++
	}
	m.back = 0
}

// Events returns the retained events, oldest first.
func (m Model) Events() []Event { return m.events }

// Count is the number of events of kind seen since start, evicted ones
// included.
func (m Model) Count(kind Kind) int {
	if kind < 0 || kind >= kindCount {
		return 0
	}
	return m.counts[kind]
}

// Scroll moves the view by delta events; positive scrolls toward older
// events. The view stays within the retained log.
func (m *Model) Scroll(delta int) {
	m.back = min(max(m.back+delta, 0), max(len(m.events)-1, 0))
}

// Back reports how far the view is scrolled from the newest event.
func (m Model) Back() int { return m.back }

// View renders the log in a width x height panel.
func (m Model) View(width, height int) string {
	inner := max(width-4, 20)
	rows := max(height-6, 3)

	title := theme.StyleHeader.Render(" EVENT LOG ")
	footer := theme.StyleDimmed.Render("j/k:scroll  esc:close  " + m.tally())

	var body string
	if len(m.events) == 0 {
		body = theme.StyleDimmed.Render("  Waiting for events from gilstracker.")
	} else {
		end := len(m.events) - m.back
		start := max(end-rows, 0)
		line := lipgloss.NewStyle().MaxWidth(inner - 4)
		lines := make([]string, 0, end-start)
		for _, e := range m.events[start:end] {
			kind := lipgloss.NewStyle().Foreground(e.Kind.color()).Width(5).Render(e.Kind.String())
			lines = append(lines, line.Render(theme.StyleDimmed.Render(e.At.Format("15:04:05.000"))+" "+kind+e.Text))
		}
		body = strings.Join(lines, "\n")
		if m.back > 0 {
			body += "\n" + theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.back))
		}
	}

	return lipgloss.NewStyle().
		Width(inner).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", footer))
}

// tally summarises the event counts, e.g. "12 gil, 1 err".
func (m Model) tally() string {
	var parts []string
	for k := Kind(0); k < kindCount; k++ {
		if m.counts[k] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", m.counts[k], k))
		}
	}
	if len(parts) == 0 {
		return "no events"
	}
	return strings.Join(parts, ", ")
}
