package ui

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	prev := noColor
	t.Cleanup(func() { noColor = prev })

	noColor = false
	tests := []struct {
		name string
		got  string
		code string
	}{
		{"accent", RenderAccent("x"), "38;5;74m"},
		{"reserved", RenderPhase("reserved"), "38;5;114m"},
		{"connected", RenderPhase("connected"), "38;5;179m"},
		{"serving", RenderStatus("SERVING"), "38;5;114m"},
		{"not serving", RenderStatus("NOT_SERVING"), "38;5;203m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.got, tt.code) || !strings.HasSuffix(tt.got, "\x1b[0m") {
				t.Errorf("got %q, want color %s", tt.got, tt.code)
			}
		})
	}

	if got := RenderPhase("unknown"); got != "unknown" {
		t.Errorf("unknown phase colored: %q", got)
	}

	ForceNoColor()
	if got := RenderFail("boom"); got != "boom" {
		t.Errorf("ForceNoColor left %q", got)
	}
}

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		color bool
	}{
		{"no color wins", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, false},
		{"forced", map[string]string{"CLICOLOR_FORCE": "1"}, true},
		{"disabled", map[string]string{"CLICOLOR": "0"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"NO_COLOR", "CLICOLOR_FORCE", "CLICOLOR"} {
				t.Setenv(k, tt.env[k])
			}
			if got := ShouldUseColor(); got != tt.color {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.color)
			}
		})
	}
}
