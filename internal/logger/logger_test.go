package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("debug", false, &buf)
	defer Init("info", false)

	WithComponent("booth").Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"component":"booth"`) {
		t.Fatalf("expected component field in %q", out)
	}
	if !strings.Contains(out, `"message":"hello"`) {
		t.Fatalf("expected message in %q", out)
	}
}
