package cli

import (
	"strings"
	"testing"
)

func TestDotPad(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{"normal case", "sw-core-1", 30, "sw-core-1 " + strings.Repeat(".", 20)},
		{"short name", "ok", 10, "ok " + strings.Repeat(".", 7)},
		{"name equals width minus one", "abcde", 6, "abcde"},
		{"name longer than width", "very-long-name", 5, "very-long-name"},
		{"empty string", "", 10, " " + strings.Repeat(".", 9)},
		{"width of 1", "", 1, ""},
		{"zero width", "sw1", 0, "sw1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DotPad(tt.input, tt.width)
			if got != tt.expected {
				t.Errorf("DotPad(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.expected)
			}
		})
	}
}

func TestColorFunctions(t *testing.T) {
	saved := colorEnabled
	defer func() { colorEnabled = saved }()
	colorEnabled = true

	tests := []struct {
		name   string
		fn     func(string) string
		prefix string
	}{
		{"Green", Green, "\033[32m"},
		{"Yellow", Yellow, "\033[33m"},
		{"Red", Red, "\033[31m"},
		{"Bold", Bold, "\033[1m"},
		{"Dim", Dim, "\033[2m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn("hello")
			if !strings.HasPrefix(got, tt.prefix) || !strings.HasSuffix(got, "\033[0m") {
				t.Errorf("%s(hello) = %q", tt.name, got)
			}
		})
	}

	colorEnabled = false
	if got := Red("plain"); got != "plain" {
		t.Errorf("Red() with color disabled = %q", got)
	}
}

func TestStatus(t *testing.T) {
	saved := colorEnabled
	defer func() { colorEnabled = saved }()
	colorEnabled = false

	tests := []struct {
		failed, changed bool
		skipped         string
		want            string
	}{
		{true, true, "", "FAILED"},
		{false, false, "not deployable", "skipped"},
		{false, true, "", "changed"},
		{false, false, "", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Status(tt.failed, tt.changed, tt.skipped); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOnOffDash(t *testing.T) {
	if OnOff(true) != "on" || OnOff(false) != "off" {
		t.Error("OnOff")
	}
	if Dash("") != "-" || Dash("x") != "x" {
		t.Error("Dash")
	}
}
