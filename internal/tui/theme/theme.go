// Package theme provides the Lip Gloss color palette and reusable styles
// for the GilsTracker TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Gil trend colors.
var (
	ColorGain = lipgloss.Color("#22c55e")
	ColorLoss = lipgloss.Color("#dc2626")
	ColorFlat = lipgloss.Color("#e5e7eb")
	ColorGil  = lipgloss.Color("#f59e0b")
)

// Session status colors.
var (
	ColorLoggedOut    = lipgloss.Color("#4b5563")
	ColorInitializing = lipgloss.Color("#7c3aed")
	ColorTracking     = lipgloss.Color("#2563eb")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// TrendColor returns green for a positive net, red for a negative one.
func TrendColor(net int64) lipgloss.Color {
	switch {
	case net > 0:
		return ColorGain
	case net < 0:
		return ColorLoss
	default:
		return ColorFlat
	}
}

// StatusColor returns the color for a session status name.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "tracking":
		return ColorTracking
	case "initializing":
		return ColorInitializing
	default:
		return ColorLoggedOut
	}
}

// HealthColor returns the color for a source health status.
func HealthColor(status string) lipgloss.Color {
	switch status {
	case "healthy":
		return ColorHealthy
	case "degraded":
		return ColorWarning
	case "failed":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)

// TrendGlyph returns an arrow for the direction of a change.
func TrendGlyph(delta int64) string {
	switch {
	case delta > 0:
		return "▲"
	case delta < 0:
		return "▼"
	default:
		return "·"
	}
}
