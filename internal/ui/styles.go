package ui

import "fmt"

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 215 // orange
	colorBad    = 203 // red
)

var noColor bool

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string {
	return paint(colorAccent, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	return paint(colorMuted, s)
}

// RenderStatus colors a run or engine status: green for completed and
// active, orange for paused and running, red for stopped, failed, error.
func RenderStatus(status string) string {
	switch status {
	case "completed", "active":
		return paint(colorOK, status)
	case "running", "paused", "draft":
		return paint(colorWarn, status)
	case "stopped", "failed", "error", "archived":
		return paint(colorBad, status)
	}
	return status
}

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
