package ui

import "fmt"

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 179 // amber
	colorFail   = 203 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderOK returns s in the success (green) color.
func RenderOK(s string) string { return paint(colorOK, s) }

// RenderFail returns s in the failure (red) color.
func RenderFail(s string) string { return paint(colorFail, s) }

// RenderPhase colors a session phase: reserved sessions green, sessions still
// negotiating amber.
func RenderPhase(phase string) string {
	switch phase {
	case "reserved":
		return RenderOK(phase)
	case "connected":
		return paint(colorWarn, phase)
	}
	return phase
}

// RenderStatus colors a gRPC health status.
func RenderStatus(status string) string {
	if status == "SERVING" {
		return paint(colorOK, status)
	}
	return paint(colorFail, status)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
