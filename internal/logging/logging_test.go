package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestInit_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelDebug, "text", &buf)

	slog.Debug("debug message")
	if !strings.Contains(buf.String(), "debug message") {
		t.Errorf("expected debug message in output, got %q", buf.String())
	}
}

func TestInit_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelInfo, "json", &buf)

	slog.Info("hello")
	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("expected JSON output, got %q", out)
	}
}

func TestInit_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelWarn, "text", &buf)

	slog.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got %q", buf.String())
	}
}

func TestNew_ComponentAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelInfo, "text", &buf)

	logger := New("budget")
	logger.Info("reserved")
	if !strings.Contains(buf.String(), "component=budget") {
		t.Errorf("expected component attribute, got %q", buf.String())
	}
}
