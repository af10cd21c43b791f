package cmd

import "testing"

func TestResolveLogFormat(t *testing.T) {
	tests := []struct {
		format string
		tty    bool
		want   string
	}{
		{"console", false, "console"},
		{"json", true, "json"},
		{"auto", true, "console"},
		{"auto", false, "json"},
	}

	for _, tt := range tests {
		if got := resolveLogFormat(tt.format, tt.tty); got != tt.want {
			t.Errorf("resolveLogFormat(%q, %v) = %q, want %q", tt.format, tt.tty, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger("debug", "auto"); err != nil {
		t.Errorf("newLogger() error = %v", err)
	}
	if _, err := newLogger("loud", "json"); err == nil {
		t.Error("expected error for bad level")
	}
}
