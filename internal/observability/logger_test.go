package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestLogger_Events(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	l := NewLogger(&buf, dir)

	l.LogStep("run-1", 2, "SCADA", "pump 3 temperature")
	l.LogLLM("run-1", "planner", "prompt", "", errors.New("rate limited"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}

	var evt Event
	if err := json.Unmarshal([]byte(lines[0]), &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != EventTypeStep || evt.RunID != "run-1" || evt.Iteration != 2 || evt.Timestamp.IsZero() {
		t.Errorf("step event = %+v", evt)
	}

	data, err := os.ReadFile(filepath.Join(dir, "llm.jsonl"))
	if err != nil {
		t.Fatalf("llm exchanges should also go to the log dir: %v", err)
	}
	if !strings.Contains(string(data), "rate limited") || strings.Contains(string(data), `"step"`) {
		t.Errorf("llm.jsonl = %s", data)
	}
}

func TestLogger_NilIsSafe(t *testing.T) {
	var l *Logger
	l.LogAbort("run-1", 0, "HumanAbort", "operator quit")
}

func TestStatusLine(t *testing.T) {
	SetStatus(RoleOperator, "awaiting review of a very long proposal that will not fit")
	line := StatusLine()
	if !strings.Contains(line, string(RoleOperator)) || !strings.Contains(line, "...") {
		t.Errorf("status line = %q", line)
	}
	SetStatus(RoleOperator, strings.Repeat("a", 36)+"°C Überdruck Pumpe")
	if line := StatusLine(); !utf8.ValidString(line) || !strings.Contains(line, strings.Repeat("a", 36)+"°...") {
		t.Errorf("multibyte task cut badly: %q", line)
	}
	SetStatus(RoleIdle, "")
}
