package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"error", LevelError},
		{"WARN", LevelWarn},
		{"warning", LevelWarn},
		{"Info", LevelInfo},
		{"debug", LevelDebug},
		{"bogus", LevelWarn},
		{"", LevelWarn},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

// TestLogger_Format checks level filtering, sorted fields and quoting.
func TestLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	off := false
	l := NewWithOptions(&buf, Options{Level: LevelInfo, TimeFormat: "-", Color: &off})

	l.Debugf("hidden %d", 1)
	l.With(map[string]any{"state": 3, "pc": "main#2"}).Infof("forked %s", "ok")
	l.With(map[string]any{"msg": "has space"}).Warnf("careful")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "[INFO] forked ok pc=main#2 state=3" {
		t.Errorf("unexpected line %q", lines[0])
	}
	if lines[1] != `[WARN] careful msg="has space"` {
		t.Errorf("unexpected line %q", lines[1])
	}
}

// TestLogger_Timestamp checks that the strftime layout is applied.
func TestLogger_Timestamp(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOptions(&buf, Options{Level: LevelError, TimeFormat: "%Y"})
	l.Errorf("boom")
	fields := strings.Fields(buf.String())
	if len(fields) != 3 || len(fields[1]) != 4 {
		t.Errorf("expected a 4-digit year after the level, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("buffers are not terminals and must not be colored")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	if l.IsEnabled(LevelError) {
		t.Errorf("nop logger must not be enabled")
	}
	if l.With(map[string]any{"a": 1}) != l {
		t.Errorf("nop With must return itself")
	}
}
