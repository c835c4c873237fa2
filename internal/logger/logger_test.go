package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func reset() {
	_ = Configure(Config{Level: "info", Format: "text"})
	SetOutput(os.Stderr)
}

func TestSetVerbose_TogglesDebug(t *testing.T) {
	defer reset()

	for _, on := range []bool{false, true, false} {
		SetVerbose(on)
		if got := IsVerbose(); got != on {
			t.Errorf("SetVerbose(%v): IsVerbose() = %v", on, got)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{" INFO ", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDebug_WhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") || !strings.Contains(output, "key=value") {
		t.Errorf("unexpected output: %q", output)
	}
}

func TestDebug_WhenNotVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("hidden")
	Section("Hidden Section")

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestInfoWarnError(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	Info("info message")
	Warn("warn message")
	Error("error message")

	output := buf.String()
	for _, want := range []string{"level=INFO", "level=WARN", "level=ERROR"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in %q", want, output)
		}
	}
}

func TestConfigure_JSON(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	if err := Configure(Config{Level: "warn", Format: "json"}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	Info("dropped")
	Warn("kept", "chunks", 3)

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", line, err)
	}
	if entry["msg"] != "kept" || entry["chunks"] != float64(3) {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestConfigure_Invalid(t *testing.T) {
	defer reset()

	if err := Configure(Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := Configure(Config{Level: "info", Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}
