// Package settings renders the configuration window.
package settings

import (
	"strings"

	"github.com/TheNickoos/GilsTracker/internal/tui/theme"
	"github.com/charmbracelet/lipgloss"
)

// Label is the checkbox caption.
const Label = "Show status entry"

// Model holds the configuration window state.
type Model struct {
	ShowStatusEntry bool
	Saving          bool
	Err             string
}

// Checkbox renders the single option.
func (m Model) Checkbox() string {
	box := "[ ]"
	if m.ShowStatusEntry {
		box = "[x]"
	}
	return box + " " + Label
}

// View renders the settings panel.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(theme.StyleHeader.Render("GilsTracker Settings") + "\n\n")
	b.WriteString(theme.StyleSelected.Render("> "+m.Checkbox()) + "\n\n")
	switch {
	case m.Saving:
		b.WriteString(theme.StyleDimmed.Render("Saving...") + "\n")
	case m.Err != "":
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("Save failed: "+m.Err) + "\n")
	}
	b.WriteString(theme.StyleDimmed.Render("space: toggle  esc: close"))
	return theme.StyleBorder.Padding(0, 1).Render(b.String())
}
