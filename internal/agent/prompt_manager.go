package agent

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Prompt names looked up in the prompts directory as <name>.md.
const (
	PromptPlanner     = "planner"
	PromptReplan      = "replan"
	PromptSynthesizer = "synthesizer"
)

var defaultPrompts = map[string]string{
	PromptPlanner: `You are the planning agent of an industrial equipment diagnostics system.
Break the operator's question into the smallest ordered list of steps that answers it.
Each step is either a SCADA step (read sensor history: pressure, temperature, vibration, load, rpm, error codes)
or a MANUAL step (look up procedures, specifications, error codes or safety notes in equipment manuals).
Reply with JSON only: {"steps":[{"kind":"SCADA","description":"..."},{"kind":"MANUAL","description":"..."}]}`,

	PromptReplan: `You are the replanning agent of an industrial equipment diagnostics system.
A step just failed. Propose at most two corrective steps, or abort when nothing sensible can recover it.
Reply with JSON only: {"action":"insert","steps":[{"kind":"SCADA|MANUAL","description":"..."}],"reason":"..."}
or {"action":"abort","reason":"..."}`,

	PromptSynthesizer: `You are the synthesis agent of an industrial equipment diagnostics system.
Answer the operator's question using only the evidence below. Cite which step each fact comes from.
Say plainly when evidence is missing because a step failed.`,
}

type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// GetPrompt returns <dir>/<name>.md, or the built-in prompt when the file
// is missing. Extra *.md files named <name>.*.md are appended in name order.
func (pm *PromptManager) GetPrompt(name string) (string, error) {
	base, ok := defaultPrompts[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	if pm == nil || pm.Directory == "" {
		return base, nil
	}

	path := filepath.Join(pm.Directory, name+".md")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		base = strings.TrimSpace(string(data))
	case os.IsNotExist(err):
	default:
		return "", fmt.Errorf("failed to read prompt %s: %w", path, err)
	}

	extras, err := filepath.Glob(filepath.Join(pm.Directory, name+".*.md"))
	if err != nil {
		return "", err
	}
	sort.Strings(extras)

	contents := []string{base}
	for _, p := range extras {
		data, err := os.ReadFile(p)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", p, err)
			continue
		}
		contents = append(contents, strings.TrimSpace(string(data)))
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}
