package session

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// PlaceholderText is shown in the status entry before any totals exist.
const PlaceholderText = "Gil: …"

// FormatGil abbreviates v with k and M suffixes and at most one decimal,
// rounding halves away from zero: 1250 → "1.3k", -2000000 → "-2M".
func FormatGil(v int64) string {
	a := v
	if a < 0 {
		a = -a
	}
	switch {
	case a >= 1_000_000:
		return oneDecimal(float64(v)/1_000_000) + "M"
	case a >= 1_000:
		return oneDecimal(float64(v)/1_000) + "k"
	default:
		return strconv.FormatInt(v, 10)
	}
}

// FormatSigned is FormatGil with a leading "+" for non-negative values.
func FormatSigned(v int64) string {
	if v >= 0 {
		return "+" + FormatGil(v)
	}
	return FormatGil(v)
}

// FormatThousands renders v with comma group separators.
func FormatThousands(v int64) string {
	return printer.Sprintf("%d", v)
}

func oneDecimal(f float64) string {
	r := math.Round(f*10) / 10
	s := strconv.FormatFloat(r, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0")
}

// StatusText is the compact status entry, e.g. "Gil +1.2k | 300/h".
func StatusText(s Summary) string {
	if !s.Tracking {
		return PlaceholderText
	}
	return "Gil " + FormatSigned(s.Net) + " | " + FormatGil(s.PerHour) + "/h"
}

// DefaultResetHint is the last tooltip line when the caller has none.
const DefaultResetHint = "Click: reset session"

// Tooltip is the multi-line detail shown alongside the status entry. The
// last line tells the user how to reset; an empty hint uses DefaultResetHint.
func Tooltip(s Summary, resetHint string) string {
	if resetHint == "" {
		resetHint = DefaultResetHint
	}
	if !s.Tracking {
		return "GilsTracker\n" + resetHint
	}
	net := FormatThousands(s.Net)
	if s.Net >= 0 {
		net = "+" + net
	}
	var b strings.Builder
	b.WriteString("GilsTracker\n")
	b.WriteString("Net: " + net + "\n")
	b.WriteString("Gained: +" + FormatThousands(s.Gained) + "\n")
	b.WriteString("Spent:  -" + FormatThousands(s.Spent) + "\n")
	b.WriteString("Rate: " + FormatThousands(s.PerHour) + " / hour\n")
	b.WriteString(resetHint)
	return b.String()
}

// Trend classifies net for colouring: 1 gain, -1 loss, 0 flat.
func Trend(net int64) int {
	switch {
	case net > 0:
		return 1
	case net < 0:
		return -1
	default:
		return 0
	}
}
