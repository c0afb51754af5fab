// Package cli provides shared formatting helpers for the vtpsync CLI.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + "\033[0m"
}

// Green wraps s in ANSI green. Returns s unchanged when NO_COLOR is set.
func Green(s string) string { return paint("\033[32m", s) }

// Yellow wraps s in ANSI yellow.
func Yellow(s string) string { return paint("\033[33m", s) }

// Red wraps s in ANSI red.
func Red(s string) string { return paint("\033[31m", s) }

// Bold wraps s in ANSI bold.
func Bold(s string) string { return paint("\033[1m", s) }

// Dim wraps s in ANSI dim.
func Dim(s string) string { return paint("\033[2m", s) }

// DotPad pads name with dots to the given width.
// Example: DotPad("sw1", 10) → "sw1 ......"
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}

// Status renders a device outcome word in its color.
func Status(failed, changed bool, skipped string) string {
	switch {
	case failed:
		return Red("FAILED")
	case skipped != "":
		return Dim("skipped")
	case changed:
		return Yellow("changed")
	default:
		return Green("ok")
	}
}

// OnOff renders a boolean as "on" or "off".
func OnOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// Dash returns s, or "-" when s is empty.
func Dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
