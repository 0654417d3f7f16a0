package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogger_VerboseGating(t *testing.T) {
	var buf bytes.Buffer
	quiet := NewWithHandler("index", Verbose(false), NewHandler(FormatText, &buf))

	quiet.Debug("hidden %d", 1)
	quiet.Info("hidden too")
	if buf.Len() != 0 {
		t.Errorf("Expected no output when not verbose, got %q", buf.String())
	}

	quiet.Warn("parse failed for %s", "a.md")
	out := buf.String()
	if !strings.Contains(out, "parse failed for a.md") {
		t.Errorf("Expected warning in output, got %q", out)
	}
	if !strings.Contains(out, "component=index") {
		t.Errorf("Expected component attribute, got %q", out)
	}
}

func TestLogger_FieldsAsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithHandler("pipeline", Verbose(true), NewHandler(FormatJSON, &buf))

	l.DebugWithFields("parsed", []Field{Path("a.md"), Count(3), Revision(7), Error(errors.New("x"))})

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "parsed" {
		t.Errorf("Expected msg parsed, got %v", record["msg"])
	}
	if record["path"] != "a.md" {
		t.Errorf("Expected path a.md, got %v", record["path"])
	}
	if record["count"] != float64(3) {
		t.Errorf("Expected count 3, got %v", record["count"])
	}
	if record["level"] != "DEBUG" {
		t.Errorf("Expected DEBUG level, got %v", record["level"])
	}
}

func TestLogger_WithComponentAndCallback(t *testing.T) {
	var buf bytes.Buffer
	verbose := false
	base := NewWithCallback("root", func() bool { return verbose })
	base.handler = NewHandler(FormatText, &buf)
	child := base.WithComponent("child")

	child.Info("first")
	verbose = true
	child.Info("second")

	out := buf.String()
	if strings.Contains(out, "first") {
		t.Errorf("Expected first message to be gated, got %q", out)
	}
	if !strings.Contains(out, "second") || !strings.Contains(out, "component=child") {
		t.Errorf("Expected second message from child, got %q", out)
	}
}

func TestDiscard(t *testing.T) {
	// Must not panic and must not write anywhere visible
	Discard().Error("dropped %s", "message")
}
