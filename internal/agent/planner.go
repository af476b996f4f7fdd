package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rahul/plantdoc/internal/tools"
)

const planSchema = `{
  "type": "object",
  "properties": {
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "kind": {"type": "string"},
          "description": {"type": "string", "minLength": 1}
        },
        "required": ["kind", "description"]
      }
    }
  },
  "required": ["steps"]
}`

// Planner turns an operator question into an ordered plan.
type Planner struct {
	llm      Completer
	Registry *tools.Registry
	Prompts  *PromptManager
	// MaxSteps bounds the initial plan; extra steps are dropped.
	MaxSteps int
}

func NewPlanner(llm Completer, registry *tools.Registry, prompts *PromptManager) *Planner {
	llm.Agent = "planner"
	return &Planner{llm: llm, Registry: registry, Prompts: prompts, MaxSteps: 8}
}

// Plan returns 1..N pending steps or a PlanningError.
func (p *Planner) Plan(ctx context.Context, runID, query string) ([]PlanStep, error) {
	if strings.TrimSpace(query) == "" {
		return nil, PlanningError("empty query", nil)
	}

	system, err := p.Prompts.GetPrompt(PromptPlanner)
	if err != nil {
		return nil, PlanningError("failed to load planner prompt", err)
	}

	// Dynamic tool descriptions from the registry
	if p.Registry != nil {
		var toolDescriptions []string
		for _, name := range p.Registry.Names() {
			t := p.Registry.Get(name)
			toolDescriptions = append(toolDescriptions, fmt.Sprintf("- %s: %s", strings.ToUpper(t.Name()), t.Description()))
		}
		system = fmt.Sprintf("%s\n\n## Available Tools:\n%s", system, strings.Join(toolDescriptions, "\n"))
	}

	reply, err := p.llm.complete(ctx, runID, system, query)
	if err != nil {
		return nil, PlanningError("planner model call failed", err)
	}

	steps, err := ParsePlan(reply)
	if err != nil {
		return nil, PlanningError("could not parse plan", err)
	}
	if p.MaxSteps > 0 && len(steps) > p.MaxSteps {
		dropped := make([]string, 0, len(steps)-p.MaxSteps)
		for _, s := range steps[p.MaxSteps:] {
			dropped = append(dropped, s.String())
		}
		log.Printf("[Planner] run %s: plan has %d steps, keeping the first %d; dropped %s",
			runID, len(steps), p.MaxSteps, strings.Join(dropped, "; "))
		steps = steps[:p.MaxSteps]
	}
	return steps, nil
}

// ParsePlan accepts the JSON plan format and falls back to tagged lines
// ("SCADA: ...", "MANUAL: ..."). Unknown kinds and empty plans are errors.
func ParsePlan(reply string) ([]PlanStep, error) {
	if doc, ok := extractJSON(reply); ok {
		var parsed struct {
			Steps []struct {
				Kind        string `json:"kind"`
				Description string `json:"description"`
			} `json:"steps"`
		}
		if err := decodeValidated(planSchema, doc, &parsed); err != nil {
			return nil, err
		}
		steps := make([]PlanStep, 0, len(parsed.Steps))
		for i, s := range parsed.Steps {
			kind, err := ParseStepKind(s.Kind)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			if strings.TrimSpace(s.Description) == "" {
				return nil, fmt.Errorf("step %d: empty description", i+1)
			}
			steps = append(steps, NewStep(kind, s.Description))
		}
		if len(steps) == 0 {
			return nil, fmt.Errorf("plan has no steps")
		}
		return steps, nil
	}

	// Prose around the tagged lines is ignored.
	var steps []PlanStep
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if step, err := parseTaggedStep(line); err == nil {
			steps = append(steps, step)
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("no SCADA or MANUAL steps found in planner output")
	}
	return steps, nil
}
