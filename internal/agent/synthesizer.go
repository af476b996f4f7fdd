package agent

import (
	"context"
	"fmt"
	"strings"
)

// FinalAnswer is the structured outcome of a successful run.
type FinalAnswer struct {
	Query    string
	Summary  string
	Evidence []StepResult
	Caveats  []string
}

// Render formats the answer for operators. Caveats are always printed.
func (a FinalAnswer) Render() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(a.Summary))
	sb.WriteString("\n")
	if len(a.Evidence) > 0 {
		sb.WriteString("\nEvidence:\n")
		for i, r := range a.Evidence {
			fmt.Fprintf(&sb, "  %d. %s\n", i+1, r.Step)
		}
	}
	if len(a.Caveats) > 0 {
		sb.WriteString("\nCaveats:\n")
		for _, c := range a.Caveats {
			fmt.Fprintf(&sb, "  - %s\n", c)
		}
	}
	return sb.String()
}

// Synthesizer aggregates completed steps into the final answer.
type Synthesizer struct {
	llm     Completer
	Prompts *PromptManager
}

func NewSynthesizer(llm Completer, prompts *PromptManager) *Synthesizer {
	llm.Agent = "synthesizer"
	return &Synthesizer{llm: llm, Prompts: prompts}
}

func (s *Synthesizer) Synthesize(ctx context.Context, runID, query string, history []StepResult) (FinalAnswer, error) {
	if len(history) == 0 {
		return FinalAnswer{}, SynthesisError("no completed steps to synthesize from", nil)
	}

	answer := FinalAnswer{Query: query}
	for _, r := range history {
		if r.Succeeded {
			answer.Evidence = append(answer.Evidence, r)
		} else {
			answer.Caveats = append(answer.Caveats, fmt.Sprintf("%s step %q failed: %s", r.Step.Kind, r.Step.Description, r.Error))
		}
	}

	if len(answer.Evidence) == 0 {
		answer.Summary = "No evidence could be gathered for this question; every diagnostic step failed."
		return answer, nil
	}

	system, err := s.Prompts.GetPrompt(PromptSynthesizer)
	if err != nil {
		return FinalAnswer{}, SynthesisError("failed to load synthesizer prompt", err)
	}

	reply, err := s.llm.complete(ctx, runID, system, evidencePrompt(query, history))
	if err != nil {
		return FinalAnswer{}, SynthesisError("synthesizer model call failed", err)
	}
	if strings.TrimSpace(reply) == "" {
		return FinalAnswer{}, SynthesisError("synthesizer returned an empty answer", nil)
	}
	answer.Summary = reply
	return answer, nil
}

func evidencePrompt(query string, history []StepResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", query)
	for i, r := range history {
		if r.Succeeded {
			fmt.Fprintf(&sb, "Step %d (%s) %s\nResult:\n%s\n\n", i+1, r.Step.Kind, r.Step.Description, r.Payload)
		} else {
			fmt.Fprintf(&sb, "Step %d (%s) %s\nFAILED: %s\n\n", i+1, r.Step.Kind, r.Step.Description, r.Error)
		}
	}
	return sb.String()
}
