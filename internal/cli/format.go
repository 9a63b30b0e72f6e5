package cli

import (
	"fmt"
	"time"
)

// FormatElapsed formats a duration for console output: milliseconds below
// one second, one decimal of seconds below a minute, M:SS above.
func FormatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	totalSeconds := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}

// OutcomeIcon returns the console marker for a journal outcome.
func OutcomeIcon(outcome string) string {
	switch outcome {
	case "checked_in":
		return "✅"
	case "invalid_qr", "timeout":
		return "⚠️"
	case "cancelled":
		return "⏹️"
	default:
		return "❌"
	}
}
