package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan       EventType = "plan"
	EventTypeStep       EventType = "step"
	EventTypeToolResult EventType = "tool_result"
	EventTypePolicy     EventType = "policy_check"
	EventTypeReplan     EventType = "replan"
	EventTypeReview     EventType = "review"
	EventTypeSynthesis  EventType = "synthesis"
	EventTypeAbort      EventType = "abort"
	EventTypeLLM        EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Iteration int       `json:"iteration"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

// NewLogger writes events to out; LLM exchanges are also kept in logDir/llm.jsonl.
// An empty logDir disables the LLM file.
func NewLogger(out io.Writer, logDir string) *Logger {
	if out == nil {
		out = io.Discard
	}
	l := &Logger{
		out:     out,
		maxSize: 10 * 1024 * 1024, // 10MB
	}
	if logDir != "" {
		l.llmLogPath = filepath.Join(logDir, "llm.jsonl")
	}
	return l
}

// Nop returns a logger that drops everything.
func Nop() *Logger {
	return NewLogger(io.Discard, "")
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Fprintf(l.out, "{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	l.out.Write(append(data, '\n'))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(runID string, steps any) {
	l.Log(Event{Type: EventTypePlan, RunID: runID, Data: map[string]any{"steps": steps}})
}

func (l *Logger) LogStep(runID string, iteration int, kind, description string) {
	l.Log(Event{
		Type:      EventTypeStep,
		RunID:     runID,
		Iteration: iteration,
		Data:      map[string]string{"kind": kind, "description": description},
	})
}

func (l *Logger) LogToolResult(runID string, iteration int, tool string, succeeded bool, errText string) {
	l.Log(Event{
		Type:      EventTypeToolResult,
		RunID:     runID,
		Iteration: iteration,
		Data: map[string]any{
			"tool":      tool,
			"succeeded": succeeded,
			"error":     errText,
		},
	})
}

func (l *Logger) LogPolicy(runID string, iteration int, tool, effect, reason string) {
	l.Log(Event{
		Type:      EventTypePolicy,
		RunID:     runID,
		Iteration: iteration,
		Data:      map[string]string{"tool": tool, "effect": effect, "reason": reason},
	})
}

func (l *Logger) LogDecision(typ EventType, runID string, iteration int, action, reason string) {
	l.Log(Event{
		Type:      typ,
		RunID:     runID,
		Iteration: iteration,
		Data:      map[string]string{"action": action, "reason": reason},
	})
}

func (l *Logger) LogAbort(runID string, iteration int, kind, cause string) {
	l.Log(Event{
		Type:      EventTypeAbort,
		RunID:     runID,
		Iteration: iteration,
		Data:      map[string]string{"kind": kind, "cause": cause},
	})
}

func (l *Logger) LogLLM(runID, agent, prompt, response string, err error) {
	data := map[string]any{
		"agent":    agent,
		"prompt":   prompt,
		"response": response,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeLLM, RunID: runID, Data: data})
}
