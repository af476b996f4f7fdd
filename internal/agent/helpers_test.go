package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rahul/plantdoc/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel replays canned replies in order and records every prompt.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sb strings.Builder
	for _, msg := range messages {
		for _, p := range msg.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				sb.WriteString(tp.Text)
				sb.WriteString("\n")
			}
		}
	}
	m.prompts = append(m.prompts, sb.String())

	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func testCompleter(m llms.Model) Completer {
	return Completer{Model: m, Logger: observability.Nop()}
}

// stubTool answers every query with a fixed payload or error.
type stubTool struct {
	name    string
	payload string
	err     error
	panics  bool
	block   bool
	inputs  []string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }

func (s *stubTool) Execute(ctx context.Context, input string) (string, error) {
	s.inputs = append(s.inputs, input)
	if s.panics {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return s.payload, nil
}

func scadaStep(desc string) PlanStep  { return NewStep(KindSCADA, desc) }
func manualStep(desc string) PlanStep { return NewStep(KindManual, desc) }
